package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pricelens/backend/internal/domain"
)

const defaultCleanupInterval = 10 * time.Minute

// entry is a cached payload with its expiry
type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a thread-safe in-process byte cache with TTL support.
// It backs the semantic matcher so that repeated runs over an unchanged page
// do not pay for a second model call.
type MemoryCache struct {
	data   map[string]entry
	mutex  sync.RWMutex
	now    func() time.Time
	stop   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewMemoryCache creates a cache and starts its janitor. A zero interval uses 10 minutes.
func NewMemoryCache(cleanupInterval time.Duration, logger *zap.Logger) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}
	if logger == nil {
		logger = zap.L()
	}

	c := &MemoryCache{
		data:   make(map[string]entry),
		now:    time.Now,
		stop:   make(chan struct{}),
		logger: logger.Named("cache"),
	}
	go c.janitor(cleanupInterval)
	return c
}

// Get returns a copy of the cached value or domain.ErrCacheMiss
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, ok := c.data[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, domain.ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value for ttl
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = entry{
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// Delete removes a key
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
	return nil
}

// Size returns the number of stored entries, expired ones included
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Close stops the janitor. It is safe to call more than once.
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// purgeExpired drops expired entries and returns how many were removed
func (c *MemoryCache) purgeExpired() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.data {
		if !now.Before(e.expiresAt) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := c.purgeExpired(); removed > 0 {
				c.logger.Debug("expired entries purged", zap.Int("removed", removed))
			}
		case <-c.stop:
			return
		}
	}
}
