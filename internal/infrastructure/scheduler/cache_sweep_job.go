package scheduler

import (
	"context"
	"fmt"

	"github.com/capture/backend/internal/domain/capture"
	"go.uber.org/zap"
)

// CacheSweepJobName identifies the metrics cache sweeper
const CacheSweepJobName = "metrics_cache_sweep"

// CacheSweepJob removes expired entries from the metrics cache
type CacheSweepJob struct {
	cache  capture.MetricsCache
	logger *zap.Logger
}

// NewCacheSweepJob creates a new CacheSweepJob
func NewCacheSweepJob(cache capture.MetricsCache, logger *zap.Logger) *CacheSweepJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheSweepJob{cache: cache, logger: logger}
}

// Name implements Job
func (j *CacheSweepJob) Name() string {
	return CacheSweepJobName
}

// Run implements Job
func (j *CacheSweepJob) Run(ctx context.Context) error {
	removed, err := j.cache.Cleanup(ctx)
	if err != nil {
		return fmt.Errorf("sweep metrics cache: %w", err)
	}
	if removed > 0 {
		j.logger.Info("Expired metrics cache entries removed", zap.Int("removed", removed))
	}
	return nil
}

var _ Job = (*CacheSweepJob)(nil)
