package model

import "time"

// Event is a single attribute observation for an entity.
// Its identity is (TenantID, EntityID, AttributeID, OccurredAt); the
// backing store deduplicates on that key, so replaying a flushed batch
// is harmless.
type Event struct {
	TenantID    string      `json:"tenant_id"`
	EntityID    string      `json:"entity_id"`
	AttributeID string      `json:"attribute_id"`
	Value       interface{} `json:"value"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// Row is a single result row from a routed read.
type Row map[string]interface{}

// FlushFailure describes a batch that was dropped after exhausting
// flush retries. Delivered to the registered failure callback.
type FlushFailure struct {
	ID       string    `json:"id"`
	Events   []Event   `json:"events"`
	Attempts int       `json:"attempts"`
	Err      string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}
