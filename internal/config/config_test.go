package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "facetd-1", cfg.Server.NodeID)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Primary.Host)
	assert.Empty(t, cfg.Replicas)

	assert.Equal(t, 100000, cfg.Buffer.Capacity)
	assert.Equal(t, 5000, cfg.Buffer.HighWatermark)
	assert.Equal(t, 100*time.Millisecond, cfg.Buffer.FlushInterval)

	assert.Equal(t, "eventual", cfg.Router.DefaultConsistency)
	assert.Equal(t, 3*time.Second, cfg.Router.MaxAllowedLag)
	assert.True(t, cfg.Router.FallbackToPrimaryEnabled())

	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, 2*time.Second, cfg.Heartbeat.Staleness())

	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "postgres", cfg.Hot.Backend)
	assert.False(t, cfg.Gossip.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	content := `
server:
  node_id: facetd-test
  port: 9001
replicas:
  - id: replica-1
    host: db-replica-1
    database: facet
    user: facet
  - id: replica-2
    host: db-replica-2
    database: facet
    user: facet
router:
  max_allowed_lag: 15s
  fallback_to_primary: false
buffer:
  capacity: 500
  high_watermark: 100
cache:
  backend: none
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "facetd-test", cfg.Server.NodeID)
	assert.Equal(t, 9001, cfg.Server.Port)
	require.Len(t, cfg.Replicas, 2)
	assert.Equal(t, "replica-1", cfg.Replicas[0].ID)
	assert.Equal(t, "db-replica-2", cfg.Replicas[1].Host)

	assert.Equal(t, 15*time.Second, cfg.Router.MaxAllowedLag)
	assert.False(t, cfg.Router.FallbackToPrimaryEnabled())
	assert.Equal(t, 500, cfg.Buffer.Capacity)
	assert.Equal(t, "none", cfg.Cache.Backend)

	// Unset keys keep their defaults.
	assert.Equal(t, "localhost", cfg.Primary.Host)
	assert.Equal(t, 100*time.Millisecond, cfg.Buffer.FlushInterval)
	assert.Equal(t, 2, cfg.Router.ReplicaRetries)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "facetd-1", cfg.Server.NodeID)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	os.Setenv("FACET_NODE_ID", "facetd-env")
	os.Setenv("PRIMARY_HOST", "db-primary")
	os.Setenv("ROUTER_MAX_ALLOWED_LAG", "7s")
	os.Setenv("CACHE_BACKEND", "none")
	defer func() {
		os.Unsetenv("FACET_NODE_ID")
		os.Unsetenv("PRIMARY_HOST")
		os.Unsetenv("ROUTER_MAX_ALLOWED_LAG")
		os.Unsetenv("CACHE_BACKEND")
	}()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "facetd-env", cfg.Server.NodeID)
	assert.Equal(t, "db-primary", cfg.Primary.Host)
	assert.Equal(t, 7*time.Second, cfg.Router.MaxAllowedLag)
	assert.Equal(t, "none", cfg.Cache.Backend)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	content := `
buffer:
  capacity: -1
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buffer.capacity")
}

func TestConfigValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"missing node id", func(c *Config) { c.Server.NodeID = "" }, "server.node_id"},
		{"bad server port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"missing primary host", func(c *Config) { c.Primary.Host = "" }, "primary.host"},
		{"missing primary database", func(c *Config) { c.Primary.Database = "" }, "primary.database"},
		{"replica without id", func(c *Config) {
			c.Replicas = []ReplicaConfig{{Host: "db-replica-1"}}
		}, "replicas[0].id"},
		{"duplicate replica ids", func(c *Config) {
			c.Replicas = []ReplicaConfig{
				{ID: "replica-1", Host: "a"},
				{ID: "replica-1", Host: "b"},
			}
		}, "duplicated"},
		{"unknown hot backend", func(c *Config) { c.Hot.Backend = "dynamo" }, "hot.backend"},
		{"unknown cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"redis backend without host", func(c *Config) {
			c.Cache.Backend = "redis"
			c.Cache.Redis.Host = ""
		}, "cache.redis.host"},
		{"watermark above capacity", func(c *Config) {
			c.Buffer.Capacity = 10
			c.Buffer.HighWatermark = 11
		}, "high_watermark"},
		{"unknown consistency", func(c *Config) { c.Router.DefaultConsistency = "bounded" }, "default_consistency"},
		{"zero replica retries", func(c *Config) { c.Router.ReplicaRetries = 0 }, "replica_retries"},
		{"staleness factor below one", func(c *Config) { c.Heartbeat.StalenessFactor = 0.5 }, "staleness_factor"},
		{"gossip enabled without port", func(c *Config) {
			c.Gossip.Enabled = true
			c.Gossip.BindPort = 0
		}, "gossip.bind_port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestRouterConfig_FallbackToPrimaryEnabled(t *testing.T) {
	var r RouterConfig
	assert.True(t, r.FallbackToPrimaryEnabled())

	disabled := false
	r.FallbackToPrimary = &disabled
	assert.False(t, r.FallbackToPrimaryEnabled())

	enabled := true
	r.FallbackToPrimary = &enabled
	assert.True(t, r.FallbackToPrimaryEnabled())
}

func TestHeartbeatConfig_Staleness(t *testing.T) {
	h := HeartbeatConfig{Interval: 2 * time.Second, StalenessFactor: 2.5}
	assert.Equal(t, 5*time.Second, h.Staleness())
}
