package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the complete facetd configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Primary   DatabaseConfig  `mapstructure:"primary"`
	Replicas  []ReplicaConfig `mapstructure:"replicas"`
	Hot       HotConfig       `mapstructure:"hot"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Buffer    BufferConfig    `mapstructure:"buffer"`
	Router    RouterConfig    `mapstructure:"router"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Gossip    GossipConfig    `mapstructure:"gossip"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP API server configuration
type ServerConfig struct {
	NodeID          string        `mapstructure:"node_id"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds connection settings for the primary store
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ReplicaConfig holds connection settings for one read replica
type ReplicaConfig struct {
	ID             string `mapstructure:"id"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// HotConfig selects the hot projection backend
type HotConfig struct {
	// Backend is "postgres" (projection table on the primary) or
	// "memory" (in-process, single-instance deployments only).
	Backend string `mapstructure:"backend"`
}

// CacheConfig holds response cache configuration
type CacheConfig struct {
	// Backend is "redis", "memory", or "none".
	Backend              string        `mapstructure:"backend"`
	DefaultTTL           time.Duration `mapstructure:"default_ttl"`
	CompressionThreshold int           `mapstructure:"compression_threshold"`
	MaxEntries           int           `mapstructure:"max_entries"`
	Redis                RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// BufferConfig holds staging buffer and flush configuration
type BufferConfig struct {
	Capacity        int           `mapstructure:"capacity"`
	HighWatermark   int           `mapstructure:"high_watermark"`
	FlushInterval   time.Duration `mapstructure:"flush_interval"`
	MaxFlushRetries int           `mapstructure:"max_flush_retries"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay   time.Duration `mapstructure:"retry_max_delay"`
}

// RouterConfig holds query routing configuration
type RouterConfig struct {
	DefaultConsistency string        `mapstructure:"default_consistency"`
	MaxAllowedLag      time.Duration `mapstructure:"max_allowed_lag"`
	ReplicaRetries     int           `mapstructure:"replica_retries"`
	FallbackToPrimary  *bool         `mapstructure:"fallback_to_primary"`
	StrictBreaker      bool          `mapstructure:"strict_breaker"`
	QueryTimeout       time.Duration `mapstructure:"query_timeout"`
}

// BreakerConfig holds per-replica circuit breaker configuration
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// HeartbeatConfig holds replication heartbeat configuration
type HeartbeatConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	StalenessFactor float64       `mapstructure:"staleness_factor"`
	// WriteEnabled turns on the heartbeat writer. Disable when the
	// database infrastructure already maintains the heartbeat row.
	WriteEnabled bool `mapstructure:"write_enabled"`
}

// GossipConfig holds peer gossip configuration for sharing lag
// observations between facetd instances
type GossipConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	BindAddr  string   `mapstructure:"bind_addr"`
	BindPort  int      `mapstructure:"bind_port"`
	SeedNodes []string `mapstructure:"seed_nodes"`
}

// RateLimitConfig holds ingest rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FallbackToPrimaryEnabled resolves the tri-state yaml field
// (unset means enabled)
func (r RouterConfig) FallbackToPrimaryEnabled() bool {
	return r.FallbackToPrimary == nil || *r.FallbackToPrimary
}

// Staleness returns the window after which an unrefreshed lag
// observation no longer counts as known
func (h HeartbeatConfig) Staleness() time.Duration {
	return time.Duration(float64(h.Interval) * h.StalenessFactor)
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			NodeID:          "facetd-1",
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Primary: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "facet",
			User:            "facet",
			Password:        "",
			MaxConnections:  50,
			MinConnections:  10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Hot: HotConfig{
			Backend: "postgres",
		},
		Cache: CacheConfig{
			Backend:              "memory",
			DefaultTTL:           30 * time.Second,
			CompressionThreshold: 4096,
			MaxEntries:           10000,
			Redis: RedisConfig{
				Host:         "localhost",
				Port:         6379,
				DB:           0,
				PoolSize:     100,
				MinIdleConns: 10,
			},
		},
		Buffer: BufferConfig{
			Capacity:        100000,
			HighWatermark:   5000,
			FlushInterval:   100 * time.Millisecond,
			MaxFlushRetries: 5,
			RetryBaseDelay:  50 * time.Millisecond,
			RetryMaxDelay:   2 * time.Second,
		},
		Router: RouterConfig{
			DefaultConsistency: "eventual",
			MaxAllowedLag:      3 * time.Second,
			ReplicaRetries:     2,
			StrictBreaker:      false,
			QueryTimeout:       5 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			Cooldown:         10 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval:        time.Second,
			StalenessFactor: 2.0,
			WriteEnabled:    true,
		},
		Gossip: GossipConfig{
			Enabled:  false,
			BindAddr: "0.0.0.0",
			BindPort: 7946,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 1000,
			Burst:             2000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.NodeID == "" {
		return errors.New("server.node_id is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Primary.Host == "" {
		return errors.New("primary.host is required")
	}
	if c.Primary.Database == "" {
		return errors.New("primary.database is required")
	}
	if c.Primary.User == "" {
		return errors.New("primary.user is required")
	}
	seen := make(map[string]bool, len(c.Replicas))
	for i, r := range c.Replicas {
		if r.ID == "" {
			return fmt.Errorf("replicas[%d].id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("replicas[%d].id %q is duplicated", i, r.ID)
		}
		seen[r.ID] = true
		if r.Host == "" {
			return fmt.Errorf("replicas[%d].host is required", i)
		}
	}
	switch c.Hot.Backend {
	case "postgres", "memory":
	default:
		return errors.New("hot.backend must be one of: postgres, memory")
	}
	switch c.Cache.Backend {
	case "redis", "memory", "none":
	default:
		return errors.New("cache.backend must be one of: redis, memory, none")
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Host == "" {
		return errors.New("cache.redis.host is required when cache.backend is redis")
	}
	if c.Buffer.Capacity <= 0 {
		return errors.New("buffer.capacity must be positive")
	}
	if c.Buffer.HighWatermark <= 0 || c.Buffer.HighWatermark > c.Buffer.Capacity {
		return errors.New("buffer.high_watermark must be positive and at most buffer.capacity")
	}
	if c.Buffer.FlushInterval <= 0 {
		return errors.New("buffer.flush_interval must be positive")
	}
	if c.Buffer.MaxFlushRetries < 0 {
		return errors.New("buffer.max_flush_retries must not be negative")
	}
	if !isValidConsistencyLevel(c.Router.DefaultConsistency) {
		return errors.New("router.default_consistency must be one of: strong, eventual")
	}
	if c.Router.MaxAllowedLag <= 0 {
		return errors.New("router.max_allowed_lag must be positive")
	}
	if c.Router.ReplicaRetries < 1 {
		return errors.New("router.replica_retries must be at least 1")
	}
	if c.Router.QueryTimeout <= 0 {
		return errors.New("router.query_timeout must be positive")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return errors.New("breaker.failure_threshold must be positive")
	}
	if c.Breaker.Cooldown <= 0 {
		return errors.New("breaker.cooldown must be positive")
	}
	if c.Heartbeat.Interval <= 0 {
		return errors.New("heartbeat.interval must be positive")
	}
	if c.Heartbeat.StalenessFactor < 1 {
		return errors.New("heartbeat.staleness_factor must be at least 1")
	}
	if c.Gossip.Enabled && c.Gossip.BindPort <= 0 {
		return errors.New("gossip.bind_port must be positive when gossip is enabled")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// isValidConsistencyLevel checks if the consistency level is valid
func isValidConsistencyLevel(level string) bool {
	switch level {
	case "strong", "eventual":
		return true
	default:
		return false
	}
}
