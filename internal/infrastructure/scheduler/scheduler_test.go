package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/capture/backend/internal/domain/capture"
	"github.com/capture/backend/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block bool
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return j.err
}

// ---------------------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------------------

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, nil)
	assert.Equal(t, DefaultSchedulerConfig().JobTimeout, s.config.JobTimeout)
	assert.False(t, s.IsRunning())
}

func TestScheduler_Register(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig(), zap.NewNop())

	require.NoError(t, s.Register(&countingJob{name: "a"}, time.Minute))

	err := s.Register(&countingJob{name: "a"}, time.Minute)
	assert.ErrorIs(t, err, ErrDuplicateJob)

	err = s.Register(&countingJob{name: "b"}, 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	err = s.Register(&countingJob{name: "c"}, time.Minute)
	assert.ErrorIs(t, err, ErrSchedulerRunning)
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig(), zap.NewNop())
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, 10*time.Millisecond))

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.IsRunning())

	stopped := job.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, job.runs.Load(), "no runs after stop")

	run, ok := s.LastRun("tick")
	require.True(t, ok)
	assert.Equal(t, JobStatusSuccess, run.Status)
	assert.NotNil(t, run.CompletedAt)
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig(), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_RunNow(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig(), zap.NewNop())
	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", err: errors.New("boom")}
	require.NoError(t, s.Register(ok, time.Hour))
	require.NoError(t, s.Register(bad, time.Hour))

	run, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, JobStatusSuccess, run.Status)
	assert.Equal(t, int32(1), ok.runs.Load())

	run, err = s.RunNow(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, JobStatusFailed, run.Status)
	assert.Equal(t, "boom", run.Error)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_JobTimeout(t *testing.T) {
	s := NewScheduler(SchedulerConfig{JobTimeout: 20 * time.Millisecond}, zap.NewNop())
	job := &countingJob{name: "slow", block: true}
	require.NoError(t, s.Register(job, time.Hour))

	run, err := s.RunNow(context.Background(), "slow")
	require.Error(t, err)
	assert.Equal(t, JobStatusFailed, run.Status)
	assert.Contains(t, run.Error, context.DeadlineExceeded.Error())
	assert.GreaterOrEqual(t, run.Duration(), 20*time.Millisecond)
}

func TestScheduler_RunsDoNotOverlap(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig(), zap.NewNop())

	var active, maxActive atomic.Int32
	job := &funcJob{name: "serial", fn: func(ctx context.Context) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	}}
	require.NoError(t, s.Register(job, time.Hour))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.RunNow(context.Background(), "serial")
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive.Load())
}

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

// ---------------------------------------------------------------------------
// Cache sweep
// ---------------------------------------------------------------------------

type sweepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *sweepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *sweepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCacheSweepJob_RemovesExpired(t *testing.T) {
	clock := &sweepClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := cache.NewInMemoryMetricsCache(cache.WithClock(clock.Now), cache.WithCleanupInterval(0))
	defer store.Close()

	ctx := context.Background()
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Set(ctx, jan, jan.AddDate(0, 1, -1), &capture.MetricsResult{PeriodLabel: "January 2024"}))

	clock.Advance(capture.DefaultCacheTTL - time.Hour)
	require.NoError(t, store.Set(ctx, feb, feb.AddDate(0, 1, -1), &capture.MetricsResult{PeriodLabel: "February 2024"}))
	clock.Advance(2 * time.Hour)

	job := NewCacheSweepJob(store, zap.NewNop())
	assert.Equal(t, CacheSweepJobName, job.Name())
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 1, store.Size())

	_, hit, err := store.Get(ctx, feb, feb.AddDate(0, 1, -1))
	require.NoError(t, err)
	assert.True(t, hit)
}

type brokenCache struct {
	capture.MetricsCache
}

func (brokenCache) Cleanup(context.Context) (int, error) {
	return 0, errors.New("connection refused")
}

func TestCacheSweepJob_Error(t *testing.T) {
	job := NewCacheSweepJob(brokenCache{}, nil)
	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep metrics cache")
}

func TestScheduler_SweepsCache(t *testing.T) {
	clock := &sweepClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := cache.NewInMemoryMetricsCache(cache.WithClock(clock.Now), cache.WithCleanupInterval(0))
	defer store.Close()

	ctx := context.Background()
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Set(ctx, jan, jan.AddDate(0, 1, -1), &capture.MetricsResult{}))
	clock.Advance(capture.DefaultCacheTTL + time.Minute)

	s := NewScheduler(DefaultSchedulerConfig(), zap.NewNop())
	require.NoError(t, s.Register(NewCacheSweepJob(store, zap.NewNop()), 10*time.Millisecond))
	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	assert.Eventually(t, func() bool { return store.Size() == 0 }, time.Second, 5*time.Millisecond)
}
