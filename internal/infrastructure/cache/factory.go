package cache

import (
	"fmt"

	"github.com/capture/backend/internal/domain/capture"
	"github.com/capture/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Store is a metrics cache that holds resources until closed
type Store interface {
	capture.MetricsCache
	Close() error
}

// MetricsCacheFactory creates metrics caches based on configuration
type MetricsCacheFactory struct {
	redisConfig           config.RedisConfig
	cacheConfig           config.CacheConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*MetricsCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *MetricsCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory cache when Redis is unavailable
// Default is taken from cache.allow_in_memory_fallback
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *MetricsCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewMetricsCacheFactory creates a new factory
func NewMetricsCacheFactory(redisCfg config.RedisConfig, cacheCfg config.CacheConfig, opts ...FactoryOption) *MetricsCacheFactory {
	f := &MetricsCacheFactory{
		redisConfig:           redisCfg,
		cacheConfig:           cacheCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: cacheCfg.AllowInMemoryFallback,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisCache creates a Redis-based metrics cache
func (f *MetricsCacheFactory) CreateRedisCache() (*RedisMetricsCache, error) {
	c, err := NewRedisMetricsCache(RedisConfig{
		Host:      f.redisConfig.Host,
		Port:      f.redisConfig.Port,
		Password:  f.redisConfig.Password,
		DB:        f.redisConfig.DB,
		KeyPrefix: f.cacheConfig.KeyPrefix,
		TTL:       f.cacheConfig.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis metrics cache: %w", err)
	}
	return c, nil
}

// CreateInMemoryCache creates an in-memory metrics cache
// Its background sweep is disabled; expired entries are removed by the scheduled sweeper job
func (f *MetricsCacheFactory) CreateInMemoryCache() *InMemoryMetricsCache {
	return NewInMemoryMetricsCache(
		WithTTL(f.cacheConfig.TTL),
		WithCleanupInterval(0),
	)
}

// CreateCache creates a metrics cache. Redis is used when enabled and reachable;
// otherwise the in-memory cache is returned if fallback is allowed.
func (f *MetricsCacheFactory) CreateCache() (Store, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Redis disabled, using in-memory metrics cache")
		return f.CreateInMemoryCache(), nil
	}

	c, err := f.CreateRedisCache()
	if err == nil {
		f.logger.Info("Using Redis metrics cache", zap.String("addr", f.redisConfig.Addr()))
		return c, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for metrics cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory metrics cache. "+
		"Cached results will not be shared between instances.",
		zap.Error(err),
	)
	return f.CreateInMemoryCache(), nil
}
