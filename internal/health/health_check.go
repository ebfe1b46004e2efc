package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/facet/internal/model"
	"github.com/devrev/facet/internal/service"
	"github.com/devrev/facet/internal/store"
)

// HealthChecker provides liveness and readiness probes plus the
// operational snapshot served on /v1/stats
type HealthChecker struct {
	primary      store.PrimaryStore
	cache        store.ResponseCache
	optimizer    *service.WriteOptimizer
	tracker      *service.LagTracker
	breakers     *service.BreakerSet
	router       *service.QueryRouter
	replicaAddrs map[string]string
	logger       *zap.Logger
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(
	primary store.PrimaryStore,
	cache store.ResponseCache,
	optimizer *service.WriteOptimizer,
	tracker *service.LagTracker,
	breakers *service.BreakerSet,
	router *service.QueryRouter,
	replicaAddrs map[string]string,
	logger *zap.Logger,
) *HealthChecker {
	return &HealthChecker{
		primary:      primary,
		cache:        cache,
		optimizer:    optimizer,
		tracker:      tracker,
		breakers:     breakers,
		router:       router,
		replicaAddrs: replicaAddrs,
		logger:       logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ReadinessHandler handles readiness probe requests. Only the primary
// gates readiness: the cache and replicas are best effort and the
// router degrades around them, but without the primary neither writes
// nor strong reads can be served.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	if err := h.checkPrimary(ctx); err != nil {
		h.logger.Error("primary health check failed", zap.Error(err))
		checks["primary"] = "unhealthy: " + err.Error()
		ready = false
	} else {
		checks["primary"] = "healthy"
	}

	if err := h.checkCache(ctx); err != nil {
		h.logger.Warn("cache health check failed", zap.Error(err))
		checks["cache"] = "unhealthy: " + err.Error()
	} else {
		checks["cache"] = "healthy"
	}

	status := HealthStatus{
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")

	if ready {
		status.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		status.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(status)
}

func (h *HealthChecker) checkPrimary(ctx context.Context) error {
	if h.primary == nil {
		return nil
	}
	return h.primary.Ping(ctx)
}

func (h *HealthChecker) checkCache(ctx context.Context) error {
	if h.cache == nil {
		return nil
	}
	return h.cache.Ping(ctx)
}

// Snapshot assembles the operational view across the buffer, the lag
// tracker, the breakers, and the cache counters
func (h *HealthChecker) Snapshot() model.HealthSnapshot {
	stats := h.optimizer.Stats()
	lags := h.tracker.Snapshot()
	states := h.breakers.States()
	hits, misses := h.router.CacheStats()

	replicas := make([]model.ReplicaDescriptor, 0, len(lags))
	for id, obs := range lags {
		desc := model.ReplicaDescriptor{
			ID:           id,
			Addr:         h.replicaAddrs[id],
			LagKnown:     obs.Known,
			BreakerState: string(states[id]),
		}
		if obs.Known {
			desc.LagMs = obs.Lag.Milliseconds()
			desc.ObservedAt = obs.ObservedAt
		}
		replicas = append(replicas, desc)
	}
	sort.Slice(replicas, func(i, j int) bool { return replicas[i].ID < replicas[j].ID })

	var hitRatio float64
	if total := hits + misses; total > 0 {
		hitRatio = float64(hits) / float64(total)
	}

	return model.HealthSnapshot{
		BufferDepth:         stats.Depth,
		BufferCapacity:      stats.Capacity,
		OldestBufferedAgeMs: stats.OldestAge.Milliseconds(),
		Replicas:            replicas,
		CacheHits:           hits,
		CacheMisses:         misses,
		CacheHitRatio:       hitRatio,
		FlushFailures:       stats.FlushFailures,
	}
}
