package capture

import (
	"context"
	"time"
)

// DefaultCacheTTL is how long a computed result stays fresh.
const DefaultCacheTTL = 48 * time.Hour

// MetricsCache memoizes computed results by calendar-day range.
type MetricsCache interface {
	// Get returns the cached result for the range. An expired entry is
	// removed and reported as a miss.
	Get(ctx context.Context, start, end time.Time) (*MetricsResult, bool, error)
	// Set stores a result for the range.
	Set(ctx context.Context, start, end time.Time, result *MetricsResult) error
	// Clear removes the entry for exactly this range.
	Clear(ctx context.Context, start, end time.Time) error
	// ClearAll removes every entry.
	ClearAll(ctx context.Context) error
	// Cleanup removes all expired entries and returns how many were removed.
	Cleanup(ctx context.Context) (int, error)
}

// CacheKey derives the cache key from the UTC calendar days of the bounds,
// so any time of day within the same days maps to the same entry.
func CacheKey(start, end time.Time) string {
	return start.UTC().Format(time.DateOnly) + "_" + end.UTC().Format(time.DateOnly)
}

// CacheEntry is a cached result with its lifetime.
type CacheEntry struct {
	Result    *MetricsResult `json:"result"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// NewCacheEntry creates an entry written at now that lives for ttl.
func NewCacheEntry(result *MetricsResult, now time.Time, ttl time.Duration) *CacheEntry {
	return &CacheEntry{
		Result:    result,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the entry is stale at now.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
