package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/devrev/facet/internal/errors"
	"github.com/devrev/facet/internal/metrics"
	"github.com/devrev/facet/internal/model"
	"github.com/devrev/facet/internal/store"
)

// QueryRequest is one routed read
type QueryRequest struct {
	Query       string
	Params      []interface{}
	Consistency model.ConsistencyLevel
	// CacheKey enables response caching for eventual reads. Empty
	// disables caching for this request.
	CacheKey string
	CacheTTL time.Duration
}

// QueryRouterConfig holds routing behavior
type QueryRouterConfig struct {
	MaxAllowedLag     time.Duration
	ReplicaRetries    int
	FallbackToPrimary bool
	StrictBreaker     bool
	QueryTimeout      time.Duration
	DefaultCacheTTL   time.Duration
}

// QueryRouter routes reads by consistency level. Strong reads always
// hit the primary and never touch the cache. Eventual reads prefer
// the cache, then the healthiest sufficiently fresh replica, with the
// primary as a configurable fallback.
//
// The router consumes lag estimates and drives the breakers; it never
// writes lag observations.
type QueryRouter struct {
	cfg      QueryRouterConfig
	primary  store.PrimaryStore
	replicas map[string]store.ReplicaStore
	tracker  *LagTracker
	breakers *BreakerSet
	cache    store.ResponseCache // nil disables caching
	clock    quartz.Clock
	metrics  *metrics.Metrics
	logger   *zap.Logger

	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
}

// NewQueryRouter creates a query router
func NewQueryRouter(
	cfg QueryRouterConfig,
	primary store.PrimaryStore,
	replicas map[string]store.ReplicaStore,
	tracker *LagTracker,
	breakers *BreakerSet,
	cache store.ResponseCache,
	clock quartz.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
) *QueryRouter {
	return &QueryRouter{
		cfg:      cfg,
		primary:  primary,
		replicas: replicas,
		tracker:  tracker,
		breakers: breakers,
		cache:    cache,
		clock:    clock,
		metrics:  m,
		logger:   logger,
	}
}

// Execute routes one read according to its consistency level
func (r *QueryRouter) Execute(ctx context.Context, req QueryRequest) (model.QueryOutcome, error) {
	if !req.Consistency.Valid() {
		return model.QueryOutcome{}, errors.InvalidArgument("consistency level is required")
	}

	start := r.clock.Now()
	outcome, err := r.execute(ctx, req)
	if err != nil {
		r.metrics.RecordQueryError(string(errors.CodeOf(err)))
		return model.QueryOutcome{}, err
	}

	r.metrics.RecordQuery(string(req.Consistency), outcome.Source, r.clock.Since(start).Seconds())
	return outcome, nil
}

func (r *QueryRouter) execute(ctx context.Context, req QueryRequest) (model.QueryOutcome, error) {
	if req.Consistency == model.ConsistencyStrong {
		return r.executePrimary(ctx, req, false)
	}

	if outcome, ok := r.cacheGet(ctx, req); ok {
		return outcome, nil
	}

	return r.executeEventual(ctx, req)
}

// executeEventual walks lag-eligible replicas from freshest to most
// lagged, admitting each through its breaker at attempt time so only
// the replica actually tried claims a half-open probe.
func (r *QueryRouter) executeEventual(ctx context.Context, req QueryRequest) (model.QueryOutcome, error) {
	candidates := r.eligibleByLag()

	attempts := 0
	breakerBlocked := 0
	var lastErr error

	for _, cand := range candidates {
		if attempts >= r.cfg.ReplicaRetries {
			break
		}

		breaker := r.breakers.For(cand.id)
		if breaker != nil && !breaker.Allow() {
			breakerBlocked++
			continue
		}

		attempts++
		rows, err := r.queryReplica(ctx, cand.id, req)
		if err == nil {
			if breaker != nil {
				breaker.RecordSuccess()
			}
			outcome := model.QueryOutcome{
				Rows:   rows,
				Source: cand.id,
				LagMs:  cand.lag.Milliseconds(),
			}
			r.cacheSet(ctx, req, outcome.Rows)
			return outcome, nil
		}

		if ctx.Err() == context.Canceled {
			// The caller gave up; that says nothing about the
			// replica's health.
			return model.QueryOutcome{}, ctx.Err()
		}

		if breaker != nil {
			breaker.RecordFailure()
		}

		if stderrors.Is(err, context.DeadlineExceeded) {
			lastErr = errors.RouteTimeout(cand.id, err)
		} else {
			lastErr = err
		}

		r.logger.Warn("replica read failed",
			zap.String("replica_id", cand.id),
			zap.Int("attempt", attempts),
			zap.Error(err))
	}

	if r.cfg.FallbackToPrimary {
		return r.executePrimary(ctx, req, true)
	}

	switch {
	case lastErr != nil && errors.CodeOf(lastErr) == errors.CodeRouteTimeout:
		return model.QueryOutcome{}, lastErr
	case lastErr != nil:
		return model.QueryOutcome{}, errors.Unavailable("replica reads failed", lastErr)
	case r.cfg.StrictBreaker && len(candidates) > 0 && breakerBlocked == len(candidates):
		return model.QueryOutcome{}, errors.BreakerOpen(candidates[0].id)
	default:
		return model.QueryOutcome{}, errors.NoEligibleReplica(len(r.replicas))
	}
}

// executePrimary serves a read from the primary. Primary reads report
// zero lag; eventual reads that fell back still populate the cache.
func (r *QueryRouter) executePrimary(ctx context.Context, req QueryRequest, fallback bool) (model.QueryOutcome, error) {
	queryCtx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	rows, err := r.primary.Query(queryCtx, req.Query, req.Params)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return model.QueryOutcome{}, ctx.Err()
		}
		if stderrors.Is(err, context.DeadlineExceeded) {
			return model.QueryOutcome{}, errors.RouteTimeout(model.SourcePrimary, err)
		}
		return model.QueryOutcome{}, errors.Unavailable("primary read failed", err)
	}

	outcome := model.QueryOutcome{
		Rows:   rows,
		Source: model.SourcePrimary,
	}
	if fallback {
		r.cacheSet(ctx, req, outcome.Rows)
	}
	return outcome, nil
}

type lagCandidate struct {
	id  string
	lag time.Duration
}

// eligibleByLag returns replicas with a known lag at or under the
// threshold, freshest first, ties broken by ID for determinism.
// Unknown or stale lag excludes a replica outright.
func (r *QueryRouter) eligibleByLag() []lagCandidate {
	candidates := make([]lagCandidate, 0, len(r.replicas))
	for id := range r.replicas {
		lag, known := r.tracker.Lag(id)
		if !known || lag > r.cfg.MaxAllowedLag {
			continue
		}
		candidates = append(candidates, lagCandidate{id: id, lag: lag})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].lag != candidates[j].lag {
			return candidates[i].lag < candidates[j].lag
		}
		return candidates[i].id < candidates[j].id
	})

	return candidates
}

func (r *QueryRouter) queryReplica(ctx context.Context, replicaID string, req QueryRequest) ([]model.Row, error) {
	replica := r.replicas[replicaID]

	queryCtx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	return replica.Query(queryCtx, req.Query, req.Params)
}

// cacheGet serves an eventual read from the response cache when the
// request opted in. Cache staleness is bounded by the entry's TTL, so
// hits report zero lag.
func (r *QueryRouter) cacheGet(ctx context.Context, req QueryRequest) (model.QueryOutcome, bool) {
	if r.cache == nil || req.CacheKey == "" {
		return model.QueryOutcome{}, false
	}

	payload, err := r.cache.Get(ctx, req.CacheKey)
	if err != nil {
		if !stderrors.Is(err, store.ErrNotFound) {
			r.logger.Warn("cache read failed", zap.String("cache_key", req.CacheKey), zap.Error(err))
		}
		r.cacheMisses.Add(1)
		r.metrics.RecordCacheMiss()
		return model.QueryOutcome{}, false
	}

	var rows []model.Row
	if err := json.Unmarshal(payload, &rows); err != nil {
		r.logger.Warn("cache payload corrupt", zap.String("cache_key", req.CacheKey), zap.Error(err))
		r.cacheMisses.Add(1)
		r.metrics.RecordCacheMiss()
		return model.QueryOutcome{}, false
	}

	r.cacheHits.Add(1)
	r.metrics.RecordCacheHit()
	return model.QueryOutcome{
		Rows:     rows,
		Source:   model.SourceCache,
		CacheHit: true,
	}, true
}

// cacheSet stores an eventual read's rows, best effort
func (r *QueryRouter) cacheSet(ctx context.Context, req QueryRequest, rows []model.Row) {
	if r.cache == nil || req.CacheKey == "" {
		return
	}

	ttl := req.CacheTTL
	if ttl <= 0 {
		ttl = r.cfg.DefaultCacheTTL
	}

	payload, err := json.Marshal(rows)
	if err != nil {
		r.logger.Warn("cache payload encode failed", zap.String("cache_key", req.CacheKey), zap.Error(err))
		return
	}

	if err := r.cache.Set(ctx, req.CacheKey, payload, ttl); err != nil {
		r.logger.Warn("cache write failed", zap.String("cache_key", req.CacheKey), zap.Error(err))
	}
}

// CacheStats returns cumulative cache hit and miss counts
func (r *QueryRouter) CacheStats() (hits, misses uint64) {
	return r.cacheHits.Load(), r.cacheMisses.Load()
}
