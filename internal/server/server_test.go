package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/facet/internal/config"
	"github.com/devrev/facet/internal/errors"
	"github.com/devrev/facet/internal/handler"
	"github.com/devrev/facet/internal/health"
	"github.com/devrev/facet/internal/metrics"
	"github.com/devrev/facet/internal/model"
	"github.com/devrev/facet/internal/service"
	"github.com/devrev/facet/internal/store"
	"github.com/devrev/facet/internal/validation"
)

// noopPrimary satisfies PrimaryStore for routing tests
type noopPrimary struct{}

func (noopPrimary) BatchInsert(ctx context.Context, events []model.Event) error { return nil }
func (noopPrimary) Query(ctx context.Context, query string, params []interface{}) ([]model.Row, error) {
	return nil, nil
}
func (noopPrimary) Ping(ctx context.Context) error { return nil }
func (noopPrimary) Close()                         {}

func newTestServer(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()

	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	clock := quartz.NewMock(t)
	logger := zap.NewNop()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	errs := errors.NewHTTPWriter(logger)
	primary := noopPrimary{}

	tracker := service.NewLagTracker(nil, 10*time.Second, clock)
	breakers := service.NewBreakerSet(nil, 3, 5*time.Second, clock)
	hot := store.NewMemoryHotStore(clock)

	buffer := service.NewStagingBuffer(16, clock)
	optimizer := service.NewWriteOptimizer(service.WriteOptimizerConfig{
		HighWatermark:   16,
		FlushInterval:   time.Minute,
		MaxFlushRetries: 1,
		RetryBaseDelay:  time.Millisecond,
		RetryMaxDelay:   5 * time.Millisecond,
	}, buffer, primary, hot, clock, m, logger)

	router := service.NewQueryRouter(service.QueryRouterConfig{
		MaxAllowedLag:     5 * time.Second,
		ReplicaRetries:    2,
		FallbackToPrimary: true,
		QueryTimeout:      time.Second,
		DefaultCacheTTL:   30 * time.Second,
	}, primary, map[string]store.ReplicaStore{}, tracker, breakers, nil, clock, m, logger)

	checker := health.NewHealthChecker(primary, nil, optimizer, tracker, breakers, router, nil, logger)
	handlers := handler.NewHandlers(optimizer, router, hot, checker, validation.NewValidator(),
		errs, logger, model.ConsistencyEventual)

	srv := NewServer(cfg, handlers, checker, errs, logger)
	srv.SetupRoutes()
	return srv.Handler()
}

func TestServer_HealthRoutesAreWired(t *testing.T) {
	h := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_MatchedRoutesCarryRequestID(t *testing.T) {
	h := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_UnknownPathReturnsJSON404(t *testing.T) {
	h := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v2/nothing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp errors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, errors.CodeNotFound, resp.ErrorCode)
}

func TestServer_WrongMethodReturnsJSON405(t *testing.T) {
	h := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/stats", nil))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var resp errors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, errors.CodeInvalidArgument, resp.ErrorCode)
}

func TestServer_IngestRateLimitAppliesWhenEnabled(t *testing.T) {
	h := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.RequestsPerSecond = 1
		cfg.RateLimit.Burst = 1
	})

	// The limiter sits in front of the handler, so even a bad body
	// consumes a token.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader("{")))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestServer_RateLimitDisabledByDefault(t *testing.T) {
	h := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = false
	})

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader("{")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}
