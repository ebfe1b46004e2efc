package store

import (
	"context"
	"errors"
	"time"

	"github.com/devrev/facet/internal/model"
)

// ErrNotFound is returned when a key is not found
var ErrNotFound = errors.New("not found")

// ErrNoHeartbeat is returned when a replica has no heartbeat row yet
var ErrNoHeartbeat = errors.New("no heartbeat")

// PrimaryStore is the authoritative event store. BatchInsert must be
// atomic per call and idempotent on the event identity key so that a
// retried flush cannot duplicate events.
type PrimaryStore interface {
	BatchInsert(ctx context.Context, events []model.Event) error
	Query(ctx context.Context, query string, params []interface{}) ([]model.Row, error)
	Ping(ctx context.Context) error
	Close()
}

// HeartbeatSink accepts replication heartbeat writes on the primary
type HeartbeatSink interface {
	WriteHeartbeat(ctx context.Context, ts time.Time) error
}

// ReplicaStore is a single read replica
type ReplicaStore interface {
	Query(ctx context.Context, query string, params []interface{}) ([]model.Row, error)
	// ObserveHeartbeat reads the replicated heartbeat timestamp.
	// Returns ErrNoHeartbeat when the row has not replicated yet.
	ObserveHeartbeat(ctx context.Context) (time.Time, error)
	Ping(ctx context.Context) error
	Close()
}

// ResponseCache stores serialized query responses with a TTL
type ResponseCache interface {
	// Get returns ErrNotFound on a miss or an expired entry.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// HotStore maintains the synchronously written hot projection.
// MergeUpsert must be atomic per entity and must preserve attribute
// keys not present in the incoming map.
type HotStore interface {
	MergeUpsert(ctx context.Context, tenantID, entityID string, attrs map[string]interface{}) error
	GetEntry(ctx context.Context, tenantID, entityID string) (*model.HotEntry, error)
	Ping(ctx context.Context) error
	Close()
}
