package model

import "time"

// HotEntry is the synchronously maintained projection of an entity's
// hot attributes. Attrs holds only the keys callers have upserted;
// the full attribute history lives in the event store.
type HotEntry struct {
	TenantID  string                 `json:"tenant_id"`
	EntityID  string                 `json:"entity_id"`
	Attrs     map[string]interface{} `json:"attrs"`
	UpdatedAt time.Time              `json:"updated_at"`
}
