package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryHotStore_MergePreservesAbsentKeys(t *testing.T) {
	clock := quartz.NewMock(t)
	s := NewMemoryHotStore(clock)
	ctx := context.Background()

	require.NoError(t, s.MergeUpsert(ctx, "acme", "ticket-1", map[string]interface{}{
		"status":   "open",
		"priority": 2,
	}))

	clock.Advance(5 * time.Second)
	require.NoError(t, s.MergeUpsert(ctx, "acme", "ticket-1", map[string]interface{}{
		"status": "closed",
	}))

	entry, err := s.GetEntry(ctx, "acme", "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, "closed", entry.Attrs["status"])
	assert.Equal(t, 2, entry.Attrs["priority"])
	assert.Equal(t, clock.Now(), entry.UpdatedAt)
}

func TestMemoryHotStore_GetUnknownEntityReturnsNotFound(t *testing.T) {
	s := NewMemoryHotStore(quartz.NewMock(t))

	_, err := s.GetEntry(context.Background(), "acme", "no-such-entity")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryHotStore_EntriesAreScopedByTenant(t *testing.T) {
	s := NewMemoryHotStore(quartz.NewMock(t))
	ctx := context.Background()

	require.NoError(t, s.MergeUpsert(ctx, "acme", "ticket-1", map[string]interface{}{"status": "open"}))
	require.NoError(t, s.MergeUpsert(ctx, "globex", "ticket-1", map[string]interface{}{"status": "closed"}))

	acme, err := s.GetEntry(ctx, "acme", "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, "open", acme.Attrs["status"])

	globex, err := s.GetEntry(ctx, "globex", "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, "closed", globex.Attrs["status"])
}

func TestMemoryHotStore_GetReturnsIsolatedCopy(t *testing.T) {
	s := NewMemoryHotStore(quartz.NewMock(t))
	ctx := context.Background()

	require.NoError(t, s.MergeUpsert(ctx, "acme", "ticket-1", map[string]interface{}{"status": "open"}))

	entry, err := s.GetEntry(ctx, "acme", "ticket-1")
	require.NoError(t, err)
	entry.Attrs["status"] = "mutated"

	again, err := s.GetEntry(ctx, "acme", "ticket-1")
	require.NoError(t, err)
	assert.Equal(t, "open", again.Attrs["status"])
}

func TestMemoryHotStore_ConcurrentMergesAllLand(t *testing.T) {
	s := NewMemoryHotStore(quartz.NewMock(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.MergeUpsert(ctx, "acme", "ticket-1", map[string]interface{}{
				fmt.Sprintf("attr-%d", i): i,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entry, err := s.GetEntry(ctx, "acme", "ticket-1")
	require.NoError(t, err)
	assert.Len(t, entry.Attrs, 50)
}
