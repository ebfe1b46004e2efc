package model

import "time"

// QuerySource values reported in QueryOutcome.Source. Replica reads
// report the replica ID instead.
const (
	SourcePrimary = "primary"
	SourceCache   = "cache"
)

// QueryOutcome carries a routed read's rows plus the metadata callers
// use to reason about freshness.
type QueryOutcome struct {
	Rows     []Row  `json:"rows"`
	Source   string `json:"source"`
	LagMs    int64  `json:"lag_ms"`
	CacheHit bool   `json:"cache_hit"`
}

// ReplicaDescriptor is the per-replica slice of a health snapshot
type ReplicaDescriptor struct {
	ID           string    `json:"id"`
	Addr         string    `json:"addr,omitempty"`
	LagMs        int64     `json:"lag_ms"`
	LagKnown     bool      `json:"lag_known"`
	ObservedAt   time.Time `json:"observed_at,omitempty"`
	BreakerState string    `json:"breaker_state"`
}

// HealthSnapshot is the operational view exposed on /v1/stats
type HealthSnapshot struct {
	BufferDepth         int                 `json:"buffer_depth"`
	BufferCapacity      int                 `json:"buffer_capacity"`
	OldestBufferedAgeMs int64               `json:"oldest_buffered_age_ms"`
	Replicas            []ReplicaDescriptor `json:"replicas"`
	CacheHits           uint64              `json:"cache_hits"`
	CacheMisses         uint64              `json:"cache_misses"`
	CacheHitRatio       float64             `json:"cache_hit_ratio"`
	FlushFailures       uint64              `json:"flush_failures"`
}
