package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/devrev/facet/internal/model"
)

// PostgresReplicaStore implements ReplicaStore for one read replica
type PostgresReplicaStore struct {
	id     string
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresReplicaStore creates a store bound to a single replica
func NewPostgresReplicaStore(
	id, host string,
	port int,
	database, user, password string,
	maxConns int,
	logger *zap.Logger,
) (*PostgresReplicaStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d",
		host, port, database, user, password, maxConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string for replica %s: %w", id, err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool for replica %s: %w", id, err)
	}

	// No startup ping: a replica that is down at boot must not block
	// the service, the breaker and lag tracker will keep it out of
	// rotation until it recovers.
	return &PostgresReplicaStore{
		id:     id,
		pool:   pool,
		logger: logger,
	}, nil
}

// ID returns the configured replica identifier
func (s *PostgresReplicaStore) ID() string {
	return s.id
}

// Query runs a read against the replica and returns generic rows
func (s *PostgresReplicaStore) Query(ctx context.Context, query string, params []interface{}) ([]model.Row, error) {
	rows, err := s.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("replica %s query failed: %w", s.id, err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// ObserveHeartbeat reads the replicated heartbeat timestamp
func (s *PostgresReplicaStore) ObserveHeartbeat(ctx context.Context) (time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx, `SELECT ts FROM replication_heartbeat WHERE id = 1`).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNoHeartbeat
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("replica %s heartbeat read failed: %w", s.id, err)
	}
	return ts, nil
}

// Ping checks the database connection
func (s *PostgresReplicaStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresReplicaStore) Close() {
	s.pool.Close()
}
