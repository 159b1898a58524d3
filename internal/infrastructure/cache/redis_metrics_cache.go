package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/capture/backend/internal/domain/capture"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces metrics entries in a shared Redis
const DefaultKeyPrefix = "capture:metrics:"

// RedisMetricsCache implements capture.MetricsCache using Redis
// This is suitable for deployments where multiple instances share results
type RedisMetricsCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisMetricsCache creates a new Redis-based metrics cache
func NewRedisMetricsCache(cfg RedisConfig) (*RedisMetricsCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisMetricsCacheWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisMetricsCacheWithClient creates a cache with an existing Redis client
// This is useful for testing or when sharing a client across components
func NewRedisMetricsCacheWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisMetricsCache {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = capture.DefaultCacheTTL
	}
	return &RedisMetricsCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		now:       time.Now,
	}
}

func (c *RedisMetricsCache) key(start, end time.Time) string {
	return c.keyPrefix + capture.CacheKey(start, end)
}

// Get returns the cached result for the range
func (c *RedisMetricsCache) Get(ctx context.Context, start, end time.Time) (*capture.MetricsResult, bool, error) {
	key := c.key(start, end)

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached metrics: %w", err)
	}

	var entry capture.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt entry is dropped so the next computation can replace it.
		_ = c.client.Del(ctx, key).Err()
		return nil, false, fmt.Errorf("failed to decode cached metrics: %w", err)
	}

	// Redis expires keys itself; this guards against clock skew between writers.
	if entry.Result == nil || entry.IsExpired(c.now()) {
		_ = c.client.Del(ctx, key).Err()
		return nil, false, nil
	}

	return entry.Result, true, nil
}

// Set stores the result with the configured TTL
func (c *RedisMetricsCache) Set(ctx context.Context, start, end time.Time, result *capture.MetricsResult) error {
	entry := capture.NewCacheEntry(result, c.now(), c.ttl)
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	if err := c.client.Set(ctx, c.key(start, end), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cached metrics: %w", err)
	}
	return nil
}

// Clear removes the entry for exactly this range
func (c *RedisMetricsCache) Clear(ctx context.Context, start, end time.Time) error {
	if err := c.client.Del(ctx, c.key(start, end)).Err(); err != nil {
		return fmt.Errorf("failed to clear cached metrics: %w", err)
	}
	return nil
}

// ClearAll removes every key under the cache prefix using SCAN so Redis is never blocked
func (c *RedisMetricsCache) ClearAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.keyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cached metrics: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to clear cached metrics: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Cleanup is a no-op: Redis evicts expired keys on its own
func (c *RedisMetricsCache) Cleanup(ctx context.Context) (int, error) {
	return 0, nil
}

// Close closes the Redis client
func (c *RedisMetricsCache) Close() error {
	return c.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (c *RedisMetricsCache) GetClient() *redis.Client {
	return c.client
}

// Ensure RedisMetricsCache implements capture.MetricsCache
var _ capture.MetricsCache = (*RedisMetricsCache)(nil)
