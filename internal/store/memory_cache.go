package store

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"
)

const memoryCacheSweepInterval = time.Minute

// MemoryResponseCache implements ResponseCache with an in-process map.
// The zero-infrastructure option for single-instance deployments.
type MemoryResponseCache struct {
	mu      sync.RWMutex
	data    map[string]*memoryCacheItem
	maxSize int
	clock   quartz.Clock
	logger  *zap.Logger
	cancel  context.CancelFunc
	sweeper quartz.Waiter
}

type memoryCacheItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryResponseCache creates a memory-backed response cache and
// starts its expiry sweeper
func NewMemoryResponseCache(maxSize int, clock quartz.Clock, logger *zap.Logger) *MemoryResponseCache {
	c := &MemoryResponseCache{
		data:    make(map[string]*memoryCacheItem),
		maxSize: maxSize,
		clock:   clock,
		logger:  logger,
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.sweeper = clock.TickerFunc(ctx, memoryCacheSweepInterval, func() error {
		c.removeExpired()
		return nil
	}, "memcache", "sweep")

	return c
}

// Get retrieves a cached response
func (c *MemoryResponseCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.data[key]
	if !exists {
		return nil, ErrNotFound
	}
	if c.clock.Now().After(item.expiresAt) {
		return nil, ErrNotFound
	}

	return item.value, nil
}

// Set stores a response with TTL
func (c *MemoryResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.data) >= c.maxSize {
		c.evictLocked()
	}

	c.data[key] = &memoryCacheItem{
		value:     stored,
		expiresAt: c.clock.Now().Add(ttl),
	}

	return nil
}

// Delete removes a cached response
func (c *MemoryResponseCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	return nil
}

// Ping always succeeds for the in-process cache
func (c *MemoryResponseCache) Ping(ctx context.Context) error {
	return nil
}

// Close stops the expiry sweeper
func (c *MemoryResponseCache) Close() error {
	c.cancel()
	_ = c.sweeper.Wait("memcache", "sweep")
	return nil
}

// Size returns the number of cached entries
func (c *MemoryResponseCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// evictLocked frees one slot, preferring expired entries
func (c *MemoryResponseCache) evictLocked() {
	now := c.clock.Now()
	for k, v := range c.data {
		if now.After(v.expiresAt) {
			delete(c.data, k)
			return
		}
	}
	for k := range c.data {
		delete(c.data, k)
		return
	}
}

func (c *MemoryResponseCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for key, item := range c.data {
		if now.After(item.expiresAt) {
			delete(c.data, key)
		}
	}
}
