package store

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/devrev/facet/internal/model"
)

// MemoryHotStore implements HotStore with an in-process map. Meant for
// single-instance deployments and tests; entries do not survive a
// restart.
type MemoryHotStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryHotEntry
	clock   quartz.Clock
}

type memoryHotEntry struct {
	// Per-entity lock so merges to the same entity serialize without
	// holding the store-wide lock.
	mu        sync.Mutex
	attrs     map[string]interface{}
	updatedAt time.Time
}

// NewMemoryHotStore creates an empty in-process hot store
func NewMemoryHotStore(clock quartz.Clock) *MemoryHotStore {
	return &MemoryHotStore{
		entries: make(map[string]*memoryHotEntry),
		clock:   clock,
	}
}

// MergeUpsert merges attrs into the entity's entry, last write wins
// per attribute key
func (s *MemoryHotStore) MergeUpsert(ctx context.Context, tenantID, entityID string, attrs map[string]interface{}) error {
	key := tenantID + "/" + entityID

	s.mu.Lock()
	entry, ok := s.entries[key]
	if !ok {
		entry = &memoryHotEntry{attrs: make(map[string]interface{})}
		s.entries[key] = entry
	}
	s.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	for k, v := range attrs {
		entry.attrs[k] = v
	}
	entry.updatedAt = s.clock.Now()

	return nil
}

// GetEntry reads the hot projection entry for an entity
func (s *MemoryHotStore) GetEntry(ctx context.Context, tenantID, entityID string) (*model.HotEntry, error) {
	key := tenantID + "/" + entityID

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	attrs := make(map[string]interface{}, len(entry.attrs))
	for k, v := range entry.attrs {
		attrs[k] = v
	}

	return &model.HotEntry{
		TenantID:  tenantID,
		EntityID:  entityID,
		Attrs:     attrs,
		UpdatedAt: entry.updatedAt,
	}, nil
}

// Ping always succeeds for the in-process store
func (s *MemoryHotStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryHotStore) Close() {}
