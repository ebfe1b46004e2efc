package service

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/devrev/facet/internal/metrics"
	"github.com/devrev/facet/internal/store"
)

// ReplicaMonitor polls every replica for its last replicated
// heartbeat and feeds the observations to the lag tracker. Replicas
// that cannot be reached simply miss their update; the tracker's
// staleness window turns a string of misses into "lag unknown".
type ReplicaMonitor struct {
	interval time.Duration
	replicas map[string]store.ReplicaStore
	tracker  *LagTracker
	clock    quartz.Clock
	metrics  *metrics.Metrics
	logger   *zap.Logger

	cancel context.CancelFunc
	ticker quartz.Waiter
}

// NewReplicaMonitor creates a replica monitor
func NewReplicaMonitor(
	interval time.Duration,
	replicas map[string]store.ReplicaStore,
	tracker *LagTracker,
	clock quartz.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ReplicaMonitor {
	return &ReplicaMonitor{
		interval: interval,
		replicas: replicas,
		tracker:  tracker,
		clock:    clock,
		metrics:  m,
		logger:   logger,
	}
}

// Start begins the polling loop
func (rm *ReplicaMonitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	rm.cancel = cancel
	rm.ticker = rm.clock.TickerFunc(ctx, rm.interval, func() error {
		rm.pollOnce(ctx)
		return nil
	}, "replica_monitor", "poll")

	rm.logger.Info("replica monitor started",
		zap.Duration("interval", rm.interval),
		zap.Int("replicas", len(rm.replicas)))
}

// pollOnce observes every replica in parallel. The whole round is
// bounded by one interval so a hung replica cannot delay the next
// round.
func (rm *ReplicaMonitor) pollOnce(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, rm.interval)
	defer cancel()

	var g errgroup.Group
	for id, replica := range rm.replicas {
		g.Go(func() error {
			rm.pollReplica(pollCtx, id, replica)
			return nil
		})
	}
	_ = g.Wait()
}

func (rm *ReplicaMonitor) pollReplica(ctx context.Context, id string, replica store.ReplicaStore) {
	ts, err := replica.ObserveHeartbeat(ctx)
	if err != nil {
		if stderrors.Is(err, store.ErrNoHeartbeat) {
			rm.logger.Debug("replica has no heartbeat yet", zap.String("replica_id", id))
			return
		}
		rm.logger.Warn("heartbeat poll failed", zap.String("replica_id", id), zap.Error(err))
		return
	}

	rm.tracker.Observe(id, ts)
	if lag, known := rm.tracker.Lag(id); known {
		rm.metrics.UpdateReplicaLag(id, lag.Seconds())
	}
}

// Close stops the polling loop
func (rm *ReplicaMonitor) Close() {
	if rm.cancel == nil {
		return
	}
	rm.cancel()
	_ = rm.ticker.Wait("replica_monitor", "poll")
	rm.logger.Info("replica monitor stopped")
}
