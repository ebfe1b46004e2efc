package service

import (
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/devrev/facet/internal/errors"
	"github.com/devrev/facet/internal/model"
)

// StagingBuffer accumulates ingested events until the next flush.
// Appends are all-or-nothing: a batch that would push the buffer past
// capacity is rejected whole, so callers never see partial acceptance.
// Draining swaps the backing slice out under the lock; appends landing
// during a flush start the next generation.
type StagingBuffer struct {
	mu       sync.Mutex
	staged   []stagedEvent
	capacity int
	clock    quartz.Clock
}

type stagedEvent struct {
	event      model.Event
	enqueuedAt time.Time
}

// NewStagingBuffer creates a buffer with the given capacity
func NewStagingBuffer(capacity int, clock quartz.Clock) *StagingBuffer {
	return &StagingBuffer{
		staged:   make([]stagedEvent, 0, 1024),
		capacity: capacity,
		clock:    clock,
	}
}

// Append adds a batch in arrival order and returns the resulting
// depth. Returns a BUFFER_FULL error without buffering anything when
// the batch does not fit.
func (b *StagingBuffer) Append(events []model.Event) (int, error) {
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.staged)+len(events) > b.capacity {
		return len(b.staged), errors.BufferFull(len(b.staged), b.capacity)
	}

	for _, e := range events {
		b.staged = append(b.staged, stagedEvent{event: e, enqueuedAt: now})
	}

	return len(b.staged), nil
}

// Drain removes and returns everything buffered, in arrival order,
// along with the enqueue time of the oldest drained event. Returns
// nil when the buffer is empty.
func (b *StagingBuffer) Drain() ([]model.Event, time.Time) {
	b.mu.Lock()
	staged := b.staged
	b.staged = make([]stagedEvent, 0, 1024)
	b.mu.Unlock()

	if len(staged) == 0 {
		return nil, time.Time{}
	}

	events := make([]model.Event, len(staged))
	for i, s := range staged {
		events[i] = s.event
	}

	return events, staged[0].enqueuedAt
}

// requeueFront puts an aborted flush batch back at the head of the
// buffer, ahead of anything staged since the drain. The events were
// admitted once already, so capacity is not re-checked; depth may
// exceed capacity until the next flush.
func (b *StagingBuffer) requeueFront(events []model.Event, enqueuedAt time.Time) {
	if len(events) == 0 {
		return
	}

	restaged := make([]stagedEvent, 0, len(events)+64)
	for _, e := range events {
		restaged = append(restaged, stagedEvent{event: e, enqueuedAt: enqueuedAt})
	}

	b.mu.Lock()
	b.staged = append(restaged, b.staged...)
	b.mu.Unlock()
}

// Depth returns the number of buffered events
func (b *StagingBuffer) Depth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.staged)
}

// Capacity returns the configured capacity
func (b *StagingBuffer) Capacity() int {
	return b.capacity
}

// OldestAge returns the age of the oldest buffered event, zero when
// empty
func (b *StagingBuffer) OldestAge() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.staged) == 0 {
		return 0
	}
	return b.clock.Since(b.staged[0].enqueuedAt)
}
