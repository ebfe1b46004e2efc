package service

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// LagObservation is one replica's stored lag estimate
type LagObservation struct {
	Lag         time.Duration
	HeartbeatTS time.Time
	ObservedAt  time.Time
	Known       bool
}

// LagTracker keeps the freshest replication lag estimate per replica.
// Observations are last-write-wins by observation time, so local
// heartbeat polls and merged peer observations go through the same
// rule. An estimate older than the staleness window stops counting as
// known: a replica nobody has heard from is treated as unboundedly
// lagged, not as current.
//
// The replica set is fixed at construction; each replica has its own
// lock so observers of different replicas never contend.
type LagTracker struct {
	records   map[string]*lagRecord
	staleness time.Duration
	clock     quartz.Clock
}

type lagRecord struct {
	mu          sync.Mutex
	lag         time.Duration
	heartbeatTS time.Time
	observedAt  time.Time
	observed    bool
}

// NewLagTracker creates a tracker for the given replica IDs
func NewLagTracker(replicaIDs []string, staleness time.Duration, clock quartz.Clock) *LagTracker {
	records := make(map[string]*lagRecord, len(replicaIDs))
	for _, id := range replicaIDs {
		records[id] = &lagRecord{}
	}
	return &LagTracker{
		records:   records,
		staleness: staleness,
		clock:     clock,
	}
}

// Observe records a heartbeat read taken now. The lag estimate is the
// distance between the wall clock and the replicated heartbeat
// timestamp. Unknown replica IDs are ignored.
func (t *LagTracker) Observe(replicaID string, heartbeatTS time.Time) {
	t.ObserveAt(replicaID, heartbeatTS, t.clock.Now())
}

// ObserveAt records a heartbeat read taken at observedAt. Used when
// merging observations gossiped by peers. An observation older than
// the stored one is dropped.
func (t *LagTracker) ObserveAt(replicaID string, heartbeatTS, observedAt time.Time) {
	rec, ok := t.records[replicaID]
	if !ok {
		return
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.observed && observedAt.Before(rec.observedAt) {
		return
	}

	lag := observedAt.Sub(heartbeatTS)
	if lag < 0 {
		// Clock skew between primary and observer; the estimate
		// floors at zero rather than going negative.
		lag = 0
	}

	rec.lag = lag
	rec.heartbeatTS = heartbeatTS
	rec.observedAt = observedAt
	rec.observed = true
}

// Lag returns the stored lag estimate. ok is false when the replica
// was never observed, the estimate has gone stale, or the ID is
// unknown.
func (t *LagTracker) Lag(replicaID string) (time.Duration, bool) {
	rec, ok := t.records[replicaID]
	if !ok {
		return 0, false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.observed {
		return 0, false
	}
	if t.clock.Since(rec.observedAt) > t.staleness {
		return 0, false
	}
	return rec.lag, true
}

// Snapshot returns the stored observation per replica, applying the
// same staleness rule as Lag
func (t *LagTracker) Snapshot() map[string]LagObservation {
	out := make(map[string]LagObservation, len(t.records))
	now := t.clock.Now()

	for id, rec := range t.records {
		rec.mu.Lock()
		obs := LagObservation{
			Lag:         rec.lag,
			HeartbeatTS: rec.heartbeatTS,
			ObservedAt:  rec.observedAt,
			Known:       rec.observed && now.Sub(rec.observedAt) <= t.staleness,
		}
		rec.mu.Unlock()
		out[id] = obs
	}

	return out
}

// ReplicaIDs returns the tracked replica IDs
func (t *LagTracker) ReplicaIDs() []string {
	ids := make([]string, 0, len(t.records))
	for id := range t.records {
		ids = append(ids, id)
	}
	return ids
}
