package store

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Payload format markers. Entries written before compression was
// introduced have no marker; a leading byte outside this set is
// treated as raw legacy data.
const (
	formatRaw    byte = 0x00
	formatSnappy byte = 0x01
)

// RedisResponseCache implements ResponseCache for Redis. Payloads at
// or above the compression threshold are stored snappy-compressed.
type RedisResponseCache struct {
	client               *redis.Client
	logger               *zap.Logger
	compressionThreshold int
}

// NewRedisResponseCache creates a new Redis response cache
func NewRedisResponseCache(
	host string,
	port int,
	password string,
	db, poolSize, minIdleConns, compressionThreshold int,
	logger *zap.Logger,
) (*RedisResponseCache, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: minIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisResponseCache{
		client:               client,
		logger:               logger,
		compressionThreshold: compressionThreshold,
	}, nil
}

// NewRedisResponseCacheWithClient wraps an existing client. Used by
// tests running against miniredis.
func NewRedisResponseCacheWithClient(client *redis.Client, compressionThreshold int, logger *zap.Logger) *RedisResponseCache {
	return &RedisResponseCache{
		client:               client,
		logger:               logger,
		compressionThreshold: compressionThreshold,
	}
}

// Get retrieves a cached response
func (s *RedisResponseCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.decode(data)
}

// Set stores a response with TTL
func (s *RedisResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, s.encode(value), ttl).Err()
}

// Delete removes a cached response
func (s *RedisResponseCache) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Ping checks the Redis connection
func (s *RedisResponseCache) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisResponseCache) Close() error {
	return s.client.Close()
}

func (s *RedisResponseCache) encode(value []byte) []byte {
	if s.compressionThreshold > 0 && len(value) >= s.compressionThreshold {
		compressed := snappy.Encode(nil, value)
		out := make([]byte, 0, 1+len(compressed))
		out = append(out, formatSnappy)
		return append(out, compressed...)
	}
	out := make([]byte, 0, 1+len(value))
	out = append(out, formatRaw)
	return append(out, value...)
}

func (s *RedisResponseCache) decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	switch data[0] {
	case formatSnappy:
		decoded, err := snappy.Decode(nil, data[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to decompress cached payload: %w", err)
		}
		return decoded, nil
	case formatRaw:
		return data[1:], nil
	default:
		return data, nil
	}
}
