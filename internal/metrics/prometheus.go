package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ingest metrics
	IngestTotal     *prometheus.CounterVec
	IngestEvents    prometheus.Counter
	BufferDepth     prometheus.Gauge
	BufferOldest    prometheus.Gauge
	HotUpsertsTotal *prometheus.CounterVec

	// Flush metrics
	FlushesTotal       *prometheus.CounterVec
	FlushDuration      prometheus.Histogram
	FlushBatchSize     prometheus.Histogram
	FlushFailuresTotal prometheus.Counter
	EventsFlushed      prometheus.Counter

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter

	// Replica health metrics
	ReplicaLag           *prometheus.GaugeVec
	BreakerState         *prometheus.GaugeVec
	BreakerTransitions   *prometheus.CounterVec
	HeartbeatWritesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics against the
// given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		IngestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facet_ingest_requests_total",
				Help: "Total number of ingest calls",
			},
			[]string{"status"},
		),

		IngestEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "facet_ingest_events_total",
				Help: "Total number of events accepted into the staging buffer",
			},
		),

		BufferDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "facet_buffer_depth",
				Help: "Current number of buffered events awaiting flush",
			},
		),

		BufferOldest: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "facet_buffer_oldest_age_seconds",
				Help: "Age of the oldest buffered event",
			},
		),

		HotUpsertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facet_hot_upserts_total",
				Help: "Total number of hot projection upserts",
			},
			[]string{"status"},
		),

		FlushesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facet_flushes_total",
				Help: "Total number of flush attempts by outcome",
			},
			[]string{"status"},
		),

		FlushDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "facet_flush_duration_seconds",
				Help:    "Duration of successful batch flushes",
				Buckets: prometheus.DefBuckets,
			},
		),

		FlushBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "facet_flush_batch_size",
				Help:    "Number of events per flushed batch",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),

		FlushFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "facet_flush_failures_total",
				Help: "Total number of batches dropped after exhausting flush retries",
			},
		),

		EventsFlushed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "facet_events_flushed_total",
				Help: "Total number of events durably written to the primary",
			},
		),

		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facet_queries_total",
				Help: "Total number of routed queries by consistency and source",
			},
			[]string{"consistency", "source"},
		),

		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "facet_query_duration_seconds",
				Help:    "Duration of routed queries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"consistency"},
		),

		QueryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facet_query_errors_total",
				Help: "Total number of routed query errors by code",
			},
			[]string{"error_code"},
		),

		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "facet_cache_hits_total",
				Help: "Total number of response cache hits",
			},
		),

		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "facet_cache_misses_total",
				Help: "Total number of response cache misses",
			},
		),

		ReplicaLag: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "facet_replica_lag_seconds",
				Help: "Last observed replication lag per replica",
			},
			[]string{"replica_id"},
		),

		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "facet_breaker_state",
				Help: "Circuit breaker state per replica (0 closed, 1 half-open, 2 open)",
			},
			[]string{"replica_id"},
		),

		BreakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facet_breaker_transitions_total",
				Help: "Total number of circuit breaker state transitions",
			},
			[]string{"replica_id", "to_state"},
		),

		HeartbeatWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "facet_heartbeat_writes_total",
				Help: "Total number of heartbeat writes by outcome",
			},
			[]string{"status"},
		),
	}
}

// RecordIngest records an ingest call outcome
func (m *Metrics) RecordIngest(status string, events int) {
	m.IngestTotal.WithLabelValues(status).Inc()
	if status == "accepted" {
		m.IngestEvents.Add(float64(events))
	}
}

// RecordHotUpsert records a hot upsert outcome
func (m *Metrics) RecordHotUpsert(status string) {
	m.HotUpsertsTotal.WithLabelValues(status).Inc()
}

// RecordFlush records a flush attempt outcome
func (m *Metrics) RecordFlush(status string, batchSize int, duration float64) {
	m.FlushesTotal.WithLabelValues(status).Inc()
	if status == "success" {
		m.FlushDuration.Observe(duration)
		m.FlushBatchSize.Observe(float64(batchSize))
		m.EventsFlushed.Add(float64(batchSize))
	}
}

// RecordFlushFailure records a dropped batch
func (m *Metrics) RecordFlushFailure() {
	m.FlushFailuresTotal.Inc()
}

// UpdateBufferStats updates the buffer gauges
func (m *Metrics) UpdateBufferStats(depth int, oldestAgeSeconds float64) {
	m.BufferDepth.Set(float64(depth))
	m.BufferOldest.Set(oldestAgeSeconds)
}

// RecordQuery records a routed query
func (m *Metrics) RecordQuery(consistency, source string, duration float64) {
	m.QueriesTotal.WithLabelValues(consistency, source).Inc()
	m.QueryDuration.WithLabelValues(consistency).Observe(duration)
}

// RecordQueryError records a routed query error
func (m *Metrics) RecordQueryError(errorCode string) {
	m.QueryErrors.WithLabelValues(errorCode).Inc()
}

// RecordCacheHit records a response cache hit
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss records a response cache miss
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// UpdateReplicaLag updates the lag gauge for a replica
func (m *Metrics) UpdateReplicaLag(replicaID string, lagSeconds float64) {
	m.ReplicaLag.WithLabelValues(replicaID).Set(lagSeconds)
}

// UpdateBreakerState updates the breaker gauge for a replica
func (m *Metrics) UpdateBreakerState(replicaID string, state float64) {
	m.BreakerState.WithLabelValues(replicaID).Set(state)
}

// RecordBreakerTransition records a breaker state change
func (m *Metrics) RecordBreakerTransition(replicaID, toState string) {
	m.BreakerTransitions.WithLabelValues(replicaID, toState).Inc()
}

// RecordHeartbeatWrite records a heartbeat write outcome
func (m *Metrics) RecordHeartbeatWrite(status string) {
	m.HeartbeatWritesTotal.WithLabelValues(status).Inc()
}
