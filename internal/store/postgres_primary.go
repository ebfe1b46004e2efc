package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/devrev/facet/internal/model"
)

// PostgresPrimaryStore implements PrimaryStore and HeartbeatSink for
// the PostgreSQL primary
type PostgresPrimaryStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresPrimaryStore creates a new PostgreSQL primary store
func NewPostgresPrimaryStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	connMaxLifetime time.Duration,
	logger *zap.Logger,
) (*PostgresPrimaryStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d pool_max_conn_lifetime=%s",
		host, port, database, user, password, maxConns, minConns, connMaxLifetime,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping primary: %w", err)
	}

	return &PostgresPrimaryStore{
		pool:   pool,
		logger: logger,
	}, nil
}

// BatchInsert writes a drained flush batch in a single transaction.
// The composite primary key makes replayed batches no-ops.
func (s *PostgresPrimaryStore) BatchInsert(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	query := `
		INSERT INTO events (tenant_id, entity_id, attribute_id, value, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, entity_id, attribute_id, occurred_at) DO NOTHING
	`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query, e.TenantID, e.EntityID, e.AttributeID, e.Value, e.OccurredAt)
	}

	results := tx.SendBatch(ctx, batch)
	var execErr error
	for range events {
		if _, err := results.Exec(); err != nil && execErr == nil {
			execErr = err
		}
	}
	if err := results.Close(); err != nil && execErr == nil {
		execErr = err
	}
	if execErr != nil {
		return fmt.Errorf("failed to insert event batch: %w", execErr)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit event batch: %w", err)
	}

	return nil
}

// Query runs a read against the primary and returns generic rows
func (s *PostgresPrimaryStore) Query(ctx context.Context, query string, params []interface{}) ([]model.Row, error) {
	rows, err := s.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("primary query failed: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// WriteHeartbeat upserts the replication heartbeat row. The guard
// keeps the timestamp monotonic under concurrent writers.
func (s *PostgresPrimaryStore) WriteHeartbeat(ctx context.Context, ts time.Time) error {
	query := `
		INSERT INTO replication_heartbeat (id, ts)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET ts = EXCLUDED.ts
		WHERE replication_heartbeat.ts < EXCLUDED.ts
	`

	if _, err := s.pool.Exec(ctx, query, ts); err != nil {
		return fmt.Errorf("failed to write heartbeat: %w", err)
	}
	return nil
}

// Pool exposes the underlying pool so the hot projection store can
// share the primary's connections
func (s *PostgresPrimaryStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping checks the database connection
func (s *PostgresPrimaryStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresPrimaryStore) Close() {
	s.pool.Close()
}

// scanRows converts pgx rows into generic Row maps keyed by column name
func scanRows(rows pgx.Rows) ([]model.Row, error) {
	fields := rows.FieldDescriptions()
	out := make([]model.Row, 0)

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		row := make(model.Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}

	return out, rows.Err()
}
