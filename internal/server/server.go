// Package server provides the HTTP servers for facetd.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/devrev/facet/internal/config"
	"github.com/devrev/facet/internal/errors"
	"github.com/devrev/facet/internal/handler"
	"github.com/devrev/facet/internal/health"
	"github.com/devrev/facet/internal/middleware"
)

// Server is the facet API server
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	handlers   *handler.Handlers
	checker    *health.HealthChecker
	errs       *errors.HTTPWriter
	logger     *zap.Logger
	cfg        *config.Config
}

// NewServer creates the API server
func NewServer(cfg *config.Config, handlers *handler.Handlers, checker *health.HealthChecker, errs *errors.HTTPWriter, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		router:     router,
		httpServer: httpServer,
		handlers:   handlers,
		checker:    checker,
		errs:       errs,
		logger:     logger,
		cfg:        cfg,
	}
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() {
	chain := middleware.Chain(
		middleware.Recovery(s.logger, s.errs),
		middleware.RequestID,
		middleware.Logging(s.logger),
	)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	s.router.HandleFunc("/health/live", s.checker.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.checker.ReadinessHandler).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Ingest is the only rate-limited route; reads shed load through
	// the buffer and breakers instead.
	var ingest http.Handler = http.HandlerFunc(s.handlers.IngestEvents)
	if s.cfg.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(s.cfg.RateLimit.RequestsPerSecond, s.cfg.RateLimit.Burst, s.errs, s.logger)
		ingest = rl.Limit(ingest)
	}
	v1.Handle("/events", ingest).Methods(http.MethodPost)

	v1.HandleFunc("/entities/{tenant_id}/{entity_id}/hot", s.handlers.UpsertHotEntity).Methods(http.MethodPut)
	v1.HandleFunc("/entities/{tenant_id}/{entity_id}/hot", s.handlers.GetHotEntity).Methods(http.MethodGet)
	v1.HandleFunc("/entities/{tenant_id}/{entity_id}", s.handlers.GetEntity).Methods(http.MethodGet)
	v1.HandleFunc("/query", s.handlers.Query).Methods(http.MethodPost)
	v1.HandleFunc("/stats", s.handlers.Stats).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errs.Write(w, http.StatusNotFound, errors.CodeNotFound, "endpoint not found", r.Header.Get("X-Request-ID"))
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errs.Write(w, http.StatusMethodNotAllowed, errors.CodeInvalidArgument, "method not allowed", r.Header.Get("X-Request-ID"))
	})
}

// Start starts the HTTP server and blocks until shutdown
func (s *Server) Start() error {
	s.logger.Info("starting api server", zap.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down api server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the root handler for tests
func (s *Server) Handler() http.Handler {
	return s.router
}
