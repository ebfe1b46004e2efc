package service

import (
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/facet/internal/errors"
	"github.com/devrev/facet/internal/model"
)

func makeEvents(n int, prefix string) []model.Event {
	events := make([]model.Event, n)
	for i := range events {
		events[i] = model.Event{
			TenantID:    "acme",
			EntityID:    prefix,
			AttributeID: "status",
			Value:       i,
			OccurredAt:  time.Date(2025, 6, 1, 12, 0, i, 0, time.UTC),
		}
	}
	return events
}

func TestStagingBuffer_AppendAndDrainPreservesOrder(t *testing.T) {
	clock := quartz.NewMock(t)
	buffer := NewStagingBuffer(100, clock)

	first := makeEvents(3, "e1")
	second := makeEvents(2, "e2")

	depth, err := buffer.Append(first)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	depth, err = buffer.Append(second)
	require.NoError(t, err)
	assert.Equal(t, 5, depth)

	drained, _ := buffer.Drain()
	require.Len(t, drained, 5)
	assert.Equal(t, "e1", drained[0].EntityID)
	assert.Equal(t, "e1", drained[2].EntityID)
	assert.Equal(t, "e2", drained[3].EntityID)
	assert.Equal(t, 0, buffer.Depth())
}

func TestStagingBuffer_RejectsBatchThatDoesNotFit(t *testing.T) {
	clock := quartz.NewMock(t)
	buffer := NewStagingBuffer(5, clock)

	_, err := buffer.Append(makeEvents(4, "e1"))
	require.NoError(t, err)

	// 4 + 2 > 5: the whole batch is rejected, nothing partial.
	depth, err := buffer.Append(makeEvents(2, "e2"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeBufferFull, errors.CodeOf(err))
	assert.Equal(t, 4, depth)
	assert.Equal(t, 4, buffer.Depth())

	// A batch that fits is still accepted afterwards.
	depth, err = buffer.Append(makeEvents(1, "e3"))
	require.NoError(t, err)
	assert.Equal(t, 5, depth)
}

func TestStagingBuffer_DrainEmptyReturnsNil(t *testing.T) {
	clock := quartz.NewMock(t)
	buffer := NewStagingBuffer(10, clock)

	events, oldest := buffer.Drain()
	assert.Nil(t, events)
	assert.True(t, oldest.IsZero())
}

func TestStagingBuffer_OldestAgeTracksHead(t *testing.T) {
	clock := quartz.NewMock(t)
	buffer := NewStagingBuffer(10, clock)

	assert.Equal(t, time.Duration(0), buffer.OldestAge())

	_, err := buffer.Append(makeEvents(1, "e1"))
	require.NoError(t, err)

	clock.Advance(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, buffer.OldestAge())

	// Later appends do not reset the head's age.
	_, err = buffer.Append(makeEvents(1, "e2"))
	require.NoError(t, err)
	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 350*time.Millisecond, buffer.OldestAge())

	buffer.Drain()
	assert.Equal(t, time.Duration(0), buffer.OldestAge())
}

func TestStagingBuffer_RequeueFrontRestoresHead(t *testing.T) {
	clock := quartz.NewMock(t)
	buffer := NewStagingBuffer(10, clock)

	_, err := buffer.Append(makeEvents(2, "old"))
	require.NoError(t, err)

	drained, enqueuedAt := buffer.Drain()
	require.Len(t, drained, 2)

	_, err = buffer.Append(makeEvents(1, "new"))
	require.NoError(t, err)

	buffer.requeueFront(drained, enqueuedAt)

	events, oldest := buffer.Drain()
	require.Len(t, events, 3)
	assert.Equal(t, "old", events[0].EntityID)
	assert.Equal(t, "old", events[1].EntityID)
	assert.Equal(t, "new", events[2].EntityID)
	assert.Equal(t, enqueuedAt, oldest)
}
