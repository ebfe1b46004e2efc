package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables.
// The file is optional; defaults plus environment overrides are enough
// to start against a local stack.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "config file %s not found, using defaults and environment variables\n", configPath)
		} else {
			v := viper.New()
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := v.Unmarshal(cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to config
func applyEnvironmentOverrides(cfg *Config) {
	if nodeID := os.Getenv("FACET_NODE_ID"); nodeID != "" {
		cfg.Server.NodeID = nodeID
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if dbHost := os.Getenv("PRIMARY_HOST"); dbHost != "" {
		cfg.Primary.Host = dbHost
	}
	if dbPort := os.Getenv("PRIMARY_PORT"); dbPort != "" {
		if p, err := strconv.Atoi(dbPort); err == nil {
			cfg.Primary.Port = p
		}
	}
	if dbName := os.Getenv("PRIMARY_DATABASE"); dbName != "" {
		cfg.Primary.Database = dbName
	}
	if dbUser := os.Getenv("PRIMARY_USER"); dbUser != "" {
		cfg.Primary.User = dbUser
	}
	if dbPassword := os.Getenv("PRIMARY_PASSWORD"); dbPassword != "" {
		cfg.Primary.Password = dbPassword
	}

	if backend := os.Getenv("CACHE_BACKEND"); backend != "" {
		cfg.Cache.Backend = backend
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		cfg.Cache.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		if p, err := strconv.Atoi(redisPort); err == nil {
			cfg.Cache.Redis.Port = p
		}
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Cache.Redis.Password = redisPassword
	}

	if lag := os.Getenv("ROUTER_MAX_ALLOWED_LAG"); lag != "" {
		if d, err := time.ParseDuration(lag); err == nil {
			cfg.Router.MaxAllowedLag = d
		}
	}
	if level := os.Getenv("ROUTER_DEFAULT_CONSISTENCY"); level != "" {
		cfg.Router.DefaultConsistency = level
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}
