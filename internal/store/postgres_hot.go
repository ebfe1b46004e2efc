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

// PostgresHotStore implements HotStore on the primary's hot_entities
// projection table
type PostgresHotStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresHotStore creates a hot store sharing the primary's pool
func NewPostgresHotStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresHotStore {
	return &PostgresHotStore{
		pool:   pool,
		logger: logger,
	}
}

// MergeUpsert merges attrs into the entity's hot entry. The jsonb
// concatenation runs inside a single statement, so concurrent upserts
// to distinct keys of the same entity both survive.
func (s *PostgresHotStore) MergeUpsert(ctx context.Context, tenantID, entityID string, attrs map[string]interface{}) error {
	query := `
		INSERT INTO hot_entities (tenant_id, entity_id, attrs, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id, entity_id)
		DO UPDATE SET attrs = hot_entities.attrs || EXCLUDED.attrs, updated_at = NOW()
	`

	if _, err := s.pool.Exec(ctx, query, tenantID, entityID, attrs); err != nil {
		return fmt.Errorf("hot upsert failed for %s/%s: %w", tenantID, entityID, err)
	}
	return nil
}

// GetEntry reads the hot projection entry for an entity
func (s *PostgresHotStore) GetEntry(ctx context.Context, tenantID, entityID string) (*model.HotEntry, error) {
	query := `
		SELECT attrs, updated_at
		FROM hot_entities
		WHERE tenant_id = $1 AND entity_id = $2
	`

	var attrs map[string]interface{}
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx, query, tenantID, entityID).Scan(&attrs, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("hot read failed for %s/%s: %w", tenantID, entityID, err)
	}

	return &model.HotEntry{
		TenantID:  tenantID,
		EntityID:  entityID,
		Attrs:     attrs,
		UpdatedAt: updatedAt,
	}, nil
}

// Ping checks the database connection
func (s *PostgresHotStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op, the pool belongs to the primary store
func (s *PostgresHotStore) Close() {}
