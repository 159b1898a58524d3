package cache

import (
	"context"
	"sync"
	"time"

	"github.com/capture/backend/internal/domain/capture"
)

// InMemoryMetricsCache implements capture.MetricsCache using an in-memory map
// This is suitable for single-instance deployments and testing
type InMemoryMetricsCache struct {
	mu              sync.RWMutex
	entries         map[string]*capture.CacheEntry
	ttl             time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	stopChan        chan struct{}
	wg              sync.WaitGroup
	closeOnce       sync.Once
}

// InMemoryOption configures an InMemoryMetricsCache
type InMemoryOption func(*InMemoryMetricsCache)

// WithTTL overrides the entry lifetime
func WithTTL(ttl time.Duration) InMemoryOption {
	return func(c *InMemoryMetricsCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCleanupInterval sets how often the background sweep runs.
// Zero disables the background sweep; Cleanup can still be called directly.
func WithCleanupInterval(interval time.Duration) InMemoryOption {
	return func(c *InMemoryMetricsCache) {
		c.cleanupInterval = interval
	}
}

// WithClock injects the time source
func WithClock(now func() time.Time) InMemoryOption {
	return func(c *InMemoryMetricsCache) {
		c.now = now
	}
}

// NewInMemoryMetricsCache creates a new in-memory metrics cache
// It starts a background goroutine to sweep expired entries
func NewInMemoryMetricsCache(opts ...InMemoryOption) *InMemoryMetricsCache {
	c := &InMemoryMetricsCache{
		entries:         make(map[string]*capture.CacheEntry),
		ttl:             capture.DefaultCacheTTL,
		cleanupInterval: time.Hour,
		now:             time.Now,
		stopChan:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop()
	}

	return c
}

// Get returns the cached result; an expired entry is deleted and reported as a miss
func (c *InMemoryMetricsCache) Get(ctx context.Context, start, end time.Time) (*capture.MetricsResult, bool, error) {
	key := capture.CacheKey(start, end)

	c.mu.RLock()
	e, exists := c.entries[key]
	c.mu.RUnlock()
	if !exists {
		return nil, false, nil
	}

	if e.IsExpired(c.now()) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, ok := c.entries[key]; ok && cur.IsExpired(c.now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}

	return e.Result, true, nil
}

// Set stores the result for the range, replacing any previous entry
func (c *InMemoryMetricsCache) Set(ctx context.Context, start, end time.Time, result *capture.MetricsResult) error {
	key := capture.CacheKey(start, end)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = capture.NewCacheEntry(result, c.now(), c.ttl)
	return nil
}

// Clear removes the entry for exactly this range
func (c *InMemoryMetricsCache) Clear(ctx context.Context, start, end time.Time) error {
	key := capture.CacheKey(start, end)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// ClearAll removes every entry
func (c *InMemoryMetricsCache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*capture.CacheEntry)
	return nil
}

// Cleanup removes expired entries and returns how many were removed
func (c *InMemoryMetricsCache) Cleanup(ctx context.Context) (int, error) {
	return c.cleanup(), nil
}

// Close stops the cleanup goroutine and releases resources
// Safe to call multiple times
func (c *InMemoryMetricsCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired entries
func (c *InMemoryMetricsCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *InMemoryMetricsCache) cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if e.IsExpired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of entries in the cache, expired ones included
func (c *InMemoryMetricsCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Ensure InMemoryMetricsCache implements capture.MetricsCache
var _ capture.MetricsCache = (*InMemoryMetricsCache)(nil)
