package service

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devrev/facet/internal/errors"
	"github.com/devrev/facet/internal/metrics"
	"github.com/devrev/facet/internal/model"
	"github.com/devrev/facet/internal/store"
)

// WriteOptimizerConfig holds flush tuning for the write path
type WriteOptimizerConfig struct {
	HighWatermark   int
	FlushInterval   time.Duration
	MaxFlushRetries int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
}

// FlushFailedHandler receives batches dropped after exhausting
// retries
type FlushFailedHandler func(model.FlushFailure)

// OptimizerStats is the write path slice of the health snapshot.
// Depth counts accepted-but-not-yet-durable events, including a batch
// currently being flushed.
type OptimizerStats struct {
	Depth         int
	Capacity      int
	OldestAge     time.Duration
	Flushes       uint64
	FlushFailures uint64
	EventsFlushed uint64
}

// WriteOptimizer absorbs event ingestion into the staging buffer and
// flushes batches to the primary in the background. Flushes are
// single-flight: a timer tick or high-watermark kick that arrives
// while a flush is running is skipped, the next trigger picks up
// whatever accumulated. Hot attribute upserts bypass the buffer and
// hit the hot store synchronously.
type WriteOptimizer struct {
	cfg     WriteOptimizerConfig
	buffer  *StagingBuffer
	primary store.PrimaryStore
	hot     store.HotStore
	clock   quartz.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics

	onFlushFailed FlushFailedHandler

	// flushMu serializes flushes; triggers use TryLock so they skip
	// instead of queueing behind a running flush.
	flushMu sync.Mutex

	kickCh   chan struct{}
	cancel   context.CancelFunc
	ticker   quartz.Waiter
	kickDone chan struct{}
	started  bool
	closed   atomic.Bool

	flushes        atomic.Uint64
	flushFailures  atomic.Uint64
	eventsFlushed  atomic.Uint64
	inFlight       atomic.Int64
	inFlightOldest atomic.Int64 // unix nanos, 0 when idle
}

// NewWriteOptimizer creates a write optimizer; Start launches its
// background flushing
func NewWriteOptimizer(
	cfg WriteOptimizerConfig,
	buffer *StagingBuffer,
	primary store.PrimaryStore,
	hot store.HotStore,
	clock quartz.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
) *WriteOptimizer {
	return &WriteOptimizer{
		cfg:      cfg,
		buffer:   buffer,
		primary:  primary,
		hot:      hot,
		clock:    clock,
		metrics:  m,
		logger:   logger,
		kickCh:   make(chan struct{}, 1),
		kickDone: make(chan struct{}),
	}
}

// SetFlushFailedHandler registers the dropped-batch callback. Must be
// called before Start. The callback runs on the flush goroutine and
// should hand work off quickly.
func (w *WriteOptimizer) SetFlushFailedHandler(fn FlushFailedHandler) {
	w.onFlushFailed = fn
}

// Start launches the interval flusher and the high-watermark listener
func (w *WriteOptimizer) Start() {
	if w.started {
		return
	}
	w.started = true

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.ticker = w.clock.TickerFunc(ctx, w.cfg.FlushInterval, func() error {
		w.tryFlush(ctx)
		return nil
	}, "write_optimizer", "flush")

	go func() {
		defer close(w.kickDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.kickCh:
				w.tryFlush(ctx)
			}
		}
	}()

	w.logger.Info("write optimizer started",
		zap.Duration("flush_interval", w.cfg.FlushInterval),
		zap.Int("high_watermark", w.cfg.HighWatermark),
		zap.Int("capacity", w.buffer.Capacity()))
}

// Ingest buffers a batch of events and returns the buffer depth
// after the append. Returns BUFFER_FULL without buffering anything
// when the batch does not fit, leaving the caller to shed load or
// retry later. The events become durable on a later flush; immediate
// visibility goes through UpsertHot.
func (w *WriteOptimizer) Ingest(ctx context.Context, events []model.Event) (int, error) {
	if w.closed.Load() {
		return 0, errors.Unavailable("write optimizer is shut down", nil)
	}
	if len(events) == 0 {
		return w.buffer.Depth(), nil
	}

	depth, err := w.buffer.Append(events)
	if err != nil {
		w.metrics.RecordIngest("rejected", 0)
		return depth, err
	}

	w.metrics.RecordIngest("accepted", len(events))
	w.publishBufferStats()

	if depth >= w.cfg.HighWatermark {
		select {
		case w.kickCh <- struct{}{}:
		default:
		}
	}

	return depth, nil
}

// UpsertHot synchronously merges attrs into the entity's hot
// projection entry. Keys not present in attrs keep their stored
// values.
func (w *WriteOptimizer) UpsertHot(ctx context.Context, tenantID, entityID string, attrs map[string]interface{}) error {
	if w.closed.Load() {
		return errors.Unavailable("write optimizer is shut down", nil)
	}

	if err := w.hot.MergeUpsert(ctx, tenantID, entityID, attrs); err != nil {
		w.metrics.RecordHotUpsert("failure")
		return errors.UpsertFailed(tenantID, entityID, err)
	}

	w.metrics.RecordHotUpsert("success")
	return nil
}

// Flush runs one flush cycle immediately, waiting for any running
// flush to finish first. Mainly for tests and shutdown.
func (w *WriteOptimizer) Flush(ctx context.Context) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	w.flushLocked(ctx)
}

// Stats returns the write path health counters
func (w *WriteOptimizer) Stats() OptimizerStats {
	depth := w.buffer.Depth() + int(w.inFlight.Load())
	oldest := w.buffer.OldestAge()
	if nanos := w.inFlightOldest.Load(); nanos > 0 {
		if age := w.clock.Since(time.Unix(0, nanos)); age > oldest {
			oldest = age
		}
	}

	return OptimizerStats{
		Depth:         depth,
		Capacity:      w.buffer.Capacity(),
		OldestAge:     oldest,
		Flushes:       w.flushes.Load(),
		FlushFailures: w.flushFailures.Load(),
		EventsFlushed: w.eventsFlushed.Load(),
	}
}

// Close stops background flushing and drains whatever is buffered.
// The final drain is best effort: batches that still cannot be
// written before ctx expires are reported as dropped.
func (w *WriteOptimizer) Close(ctx context.Context) error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}

	if w.started {
		w.cancel()
		_ = w.ticker.Wait("write_optimizer", "flush")
		<-w.kickDone
	}

	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	w.flushLocked(ctx)

	w.logger.Info("write optimizer stopped",
		zap.Uint64("events_flushed", w.eventsFlushed.Load()),
		zap.Uint64("flush_failures", w.flushFailures.Load()))
	return nil
}

// tryFlush runs a flush cycle unless one is already running
func (w *WriteOptimizer) tryFlush(ctx context.Context) {
	if !w.flushMu.TryLock() {
		return
	}
	defer w.flushMu.Unlock()
	w.flushLocked(ctx)
}

func (w *WriteOptimizer) flushLocked(ctx context.Context) {
	events, oldestEnqueued := w.buffer.Drain()
	if len(events) == 0 {
		return
	}

	w.inFlight.Store(int64(len(events)))
	w.inFlightOldest.Store(oldestEnqueued.UnixNano())
	defer func() {
		w.inFlight.Store(0)
		w.inFlightOldest.Store(0)
		w.publishBufferStats()
	}()

	start := w.clock.Now()
	attempts, err := w.writeBatch(ctx, events)
	if err == nil {
		w.flushes.Add(1)
		w.eventsFlushed.Add(uint64(len(events)))
		w.metrics.RecordFlush("success", len(events), w.clock.Since(start).Seconds())
		return
	}

	if stderrors.Is(err, context.Canceled) && w.closed.Load() {
		// Shutdown interrupted this cycle. Put the batch back at
		// the head so the final drain gets one more try at it.
		w.buffer.requeueFront(events, oldestEnqueued)
		return
	}

	// Retries exhausted or the context ended: the batch is dropped
	// and reported, the write path stays up.
	w.flushFailures.Add(1)
	w.metrics.RecordFlush("failure", len(events), 0)
	w.metrics.RecordFlushFailure()

	failure := model.FlushFailure{
		ID:       uuid.NewString(),
		Events:   events,
		Attempts: attempts,
		Err:      err.Error(),
		FailedAt: w.clock.Now(),
	}
	w.logger.Error("flush failed, dropping batch",
		zap.String("failure_id", failure.ID),
		zap.Int("events", len(events)),
		zap.Int("attempts", attempts),
		zap.Error(err))
	if w.onFlushFailed != nil {
		w.onFlushFailed(failure)
	}
}

// writeBatch attempts the batch insert with bounded exponential
// backoff. Context cancellation is permanent, everything else retries
// up to MaxFlushRetries times after the initial attempt.
func (w *WriteOptimizer) writeBatch(ctx context.Context, events []model.Event) (int, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = w.cfg.RetryBaseDelay
	eb.MaxInterval = w.cfg.RetryMaxDelay
	eb.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(w.cfg.MaxFlushRetries)), ctx)

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := w.primary.BatchInsert(ctx, events)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		w.metrics.RecordFlush("retry", len(events), 0)
		w.logger.Warn("flush attempt failed",
			zap.Int("attempt", attempts),
			zap.Int("events", len(events)),
			zap.Error(err))
		return err
	}, policy)

	return attempts, err
}

func (w *WriteOptimizer) publishBufferStats() {
	stats := w.Stats()
	w.metrics.UpdateBufferStats(stats.Depth, stats.OldestAge.Seconds())
}
