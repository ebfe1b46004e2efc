package service

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/devrev/facet/internal/metrics"
	"github.com/devrev/facet/internal/store"
)

// HeartbeatWriter periodically stamps the primary with the current
// time. The row replicates to every replica, and the age of the
// replicated stamp is each replica's lag estimate.
//
// Run exactly one writer per cluster. The heartbeat row's guard
// clause tolerates a second writer during failover but two writers in
// steady state halve the effective measurement interval.
type HeartbeatWriter struct {
	interval time.Duration
	sink     store.HeartbeatSink
	clock    quartz.Clock
	metrics  *metrics.Metrics
	logger   *zap.Logger

	cancel context.CancelFunc
	ticker quartz.Waiter
}

// NewHeartbeatWriter creates a heartbeat writer
func NewHeartbeatWriter(interval time.Duration, sink store.HeartbeatSink, clock quartz.Clock, m *metrics.Metrics, logger *zap.Logger) *HeartbeatWriter {
	return &HeartbeatWriter{
		interval: interval,
		sink:     sink,
		clock:    clock,
		metrics:  m,
		logger:   logger,
	}
}

// Start begins the heartbeat loop
func (h *HeartbeatWriter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.ticker = h.clock.TickerFunc(ctx, h.interval, func() error {
		h.writeOnce(ctx)
		return nil
	}, "heartbeat", "write")

	h.logger.Info("heartbeat writer started", zap.Duration("interval", h.interval))
}

func (h *HeartbeatWriter) writeOnce(ctx context.Context) {
	writeCtx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	ts := h.clock.Now()
	if err := h.sink.WriteHeartbeat(writeCtx, ts); err != nil {
		h.metrics.RecordHeartbeatWrite("failure")
		h.logger.Warn("heartbeat write failed", zap.Error(err))
		return
	}
	h.metrics.RecordHeartbeatWrite("success")
}

// Close stops the heartbeat loop
func (h *HeartbeatWriter) Close() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	_ = h.ticker.Wait("heartbeat", "write")
	h.logger.Info("heartbeat writer stopped")
}
