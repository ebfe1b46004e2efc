package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/devrev/facet/internal/config"
	"github.com/devrev/facet/internal/errors"
	"github.com/devrev/facet/internal/handler"
	"github.com/devrev/facet/internal/health"
	"github.com/devrev/facet/internal/metrics"
	"github.com/devrev/facet/internal/model"
	"github.com/devrev/facet/internal/server"
	"github.com/devrev/facet/internal/service"
	"github.com/devrev/facet/internal/store"
	"github.com/devrev/facet/internal/validation"
)

func main() {
	bootLogger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		bootLogger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		bootLogger.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	logger.Info("starting facetd",
		zap.String("node_id", cfg.Server.NodeID),
		zap.Int("port", cfg.Server.Port),
		zap.String("primary_host", cfg.Primary.Host),
		zap.Int("replicas", len(cfg.Replicas)))

	clock := quartz.NewReal()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	// Stores.
	primary, err := store.NewPostgresPrimaryStore(
		cfg.Primary.Host,
		cfg.Primary.Port,
		cfg.Primary.Database,
		cfg.Primary.User,
		cfg.Primary.Password,
		cfg.Primary.MaxConnections,
		cfg.Primary.MinConnections,
		cfg.Primary.ConnMaxLifetime,
		logger,
	)
	if err != nil {
		logger.Fatal("failed to initialize primary store", zap.Error(err))
	}
	logger.Info("primary store initialized")

	var hot store.HotStore
	switch cfg.Hot.Backend {
	case "memory":
		hot = store.NewMemoryHotStore(clock)
		logger.Info("hot store initialized", zap.String("backend", "memory"))
	default:
		hot = store.NewPostgresHotStore(primary.Pool(), logger)
		logger.Info("hot store initialized", zap.String("backend", "postgres"))
	}

	replicas := make(map[string]store.ReplicaStore, len(cfg.Replicas))
	replicaAddrs := make(map[string]string, len(cfg.Replicas))
	replicaIDs := make([]string, 0, len(cfg.Replicas))
	for _, rc := range cfg.Replicas {
		replica, err := store.NewPostgresReplicaStore(
			rc.ID, rc.Host, rc.Port, rc.Database, rc.User, rc.Password, rc.MaxConnections, logger,
		)
		if err != nil {
			logger.Fatal("failed to initialize replica store",
				zap.String("replica_id", rc.ID), zap.Error(err))
		}
		replicas[rc.ID] = replica
		replicaAddrs[rc.ID] = fmt.Sprintf("%s:%d", rc.Host, rc.Port)
		replicaIDs = append(replicaIDs, rc.ID)
	}
	logger.Info("replica stores initialized", zap.Strings("replica_ids", replicaIDs))

	var cache store.ResponseCache
	switch cfg.Cache.Backend {
	case "redis":
		redisCache, err := store.NewRedisResponseCache(
			cfg.Cache.Redis.Host,
			cfg.Cache.Redis.Port,
			cfg.Cache.Redis.Password,
			cfg.Cache.Redis.DB,
			cfg.Cache.Redis.PoolSize,
			cfg.Cache.Redis.MinIdleConns,
			cfg.Cache.CompressionThreshold,
			logger,
		)
		if err != nil {
			logger.Fatal("failed to initialize response cache", zap.Error(err))
		}
		cache = redisCache
		logger.Info("response cache initialized", zap.String("backend", "redis"))
	case "memory":
		cache = store.NewMemoryResponseCache(cfg.Cache.MaxEntries, clock, logger)
		logger.Info("response cache initialized", zap.String("backend", "memory"))
	default:
		logger.Info("response cache disabled")
	}

	// Routing state.
	tracker := service.NewLagTracker(replicaIDs, cfg.Heartbeat.Staleness(), clock)
	breakers := service.NewBreakerSet(replicaIDs, cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown, clock)
	for _, id := range replicaIDs {
		breakers.For(id).OnTransition(func(from, to service.BreakerState) {
			logger.Info("replica breaker state change",
				zap.String("replica_id", id),
				zap.String("from", string(from)),
				zap.String("to", string(to)))
			m.RecordBreakerTransition(id, string(to))
			m.UpdateBreakerState(id, to.GaugeValue())
		})
		m.UpdateBreakerState(id, service.BreakerClosed.GaugeValue())
	}

	// Write path.
	buffer := service.NewStagingBuffer(cfg.Buffer.Capacity, clock)
	optimizer := service.NewWriteOptimizer(
		service.WriteOptimizerConfig{
			HighWatermark:   cfg.Buffer.HighWatermark,
			FlushInterval:   cfg.Buffer.FlushInterval,
			MaxFlushRetries: cfg.Buffer.MaxFlushRetries,
			RetryBaseDelay:  cfg.Buffer.RetryBaseDelay,
			RetryMaxDelay:   cfg.Buffer.RetryMaxDelay,
		},
		buffer,
		primary,
		hot,
		clock,
		m,
		logger,
	)
	optimizer.SetFlushFailedHandler(func(f model.FlushFailure) {
		logger.Error("flush batch dropped after retries",
			zap.String("failure_id", f.ID),
			zap.Int("events", len(f.Events)),
			zap.Int("attempts", f.Attempts))
	})

	// Read path.
	defaultConsistency, err := model.ParseConsistencyLevel(cfg.Router.DefaultConsistency, model.ConsistencyEventual)
	if err != nil {
		logger.Fatal("invalid default consistency level", zap.Error(err))
	}
	router := service.NewQueryRouter(
		service.QueryRouterConfig{
			MaxAllowedLag:     cfg.Router.MaxAllowedLag,
			ReplicaRetries:    cfg.Router.ReplicaRetries,
			FallbackToPrimary: cfg.Router.FallbackToPrimaryEnabled(),
			StrictBreaker:     cfg.Router.StrictBreaker,
			QueryTimeout:      cfg.Router.QueryTimeout,
			DefaultCacheTTL:   cfg.Cache.DefaultTTL,
		},
		primary,
		replicas,
		tracker,
		breakers,
		cache,
		clock,
		m,
		logger,
	)

	checker := health.NewHealthChecker(primary, cache, optimizer, tracker, breakers, router, replicaAddrs, logger)
	validator := validation.NewValidator()
	errWriter := errors.NewHTTPWriter(logger)
	handlers := handler.NewHandlers(optimizer, router, hot, checker, validator, errWriter, logger, defaultConsistency)

	apiServer := server.NewServer(cfg, handlers, checker, errWriter, logger)
	apiServer.SetupRoutes()

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = server.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, checker, logger)
		metricsServer.Start()
	}

	// Background services.
	var heartbeat *service.HeartbeatWriter
	if cfg.Heartbeat.WriteEnabled {
		heartbeat = service.NewHeartbeatWriter(cfg.Heartbeat.Interval, primary, clock, m, logger)
		heartbeat.Start()
	}

	monitor := service.NewReplicaMonitor(cfg.Heartbeat.Interval, replicas, tracker, clock, m, logger)
	monitor.Start()

	var gossip *service.GossipService
	if cfg.Gossip.Enabled {
		gossip, err = service.NewGossipService(&cfg.Gossip, cfg.Server.NodeID, tracker, clock, logger)
		if err != nil {
			logger.Fatal("failed to initialize gossip", zap.Error(err))
		}
		gossip.Start(cfg.Heartbeat.Interval)
	}

	optimizer.Start()
	logger.Info("all services started")

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- apiServer.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("received signal", zap.String("signal", sig.String()))
	}

	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop taking requests first, then drain the buffer while the
	// stores are still up.
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown failed", zap.Error(err))
	}
	if err := optimizer.Close(shutdownCtx); err != nil {
		logger.Warn("write optimizer close failed", zap.Error(err))
	}

	if heartbeat != nil {
		heartbeat.Close()
	}
	monitor.Close()
	if gossip != nil {
		if err := gossip.Shutdown(); err != nil {
			logger.Warn("gossip shutdown failed", zap.Error(err))
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Warn("metrics server stop failed", zap.Error(err))
		}
	}

	if cache != nil {
		if err := cache.Close(); err != nil {
			logger.Warn("cache close failed", zap.Error(err))
		}
	}
	for _, replica := range replicas {
		replica.Close()
	}
	hot.Close()
	primary.Close()

	logger.Info("facetd stopped")
}

// buildLogger constructs the process logger from config
func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}
