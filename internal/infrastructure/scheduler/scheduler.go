package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a job run
type JobStatus string

const (
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job is a unit of periodic background work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobRun records one execution of a job
type JobRun struct {
	ID          uuid.UUID
	Job         string
	Status      JobStatus
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

func newJobRun(job string) *JobRun {
	return &JobRun{
		ID:        uuid.New(),
		Job:       job,
		Status:    JobStatusRunning,
		StartedAt: time.Now(),
	}
}

func (r *JobRun) finish(err error) {
	now := time.Now()
	r.CompletedAt = &now
	if err != nil {
		r.Status = JobStatusFailed
		r.Error = err.Error()
		return
	}
	r.Status = JobStatusSuccess
}

// Duration returns how long the run took, or has taken so far
func (r JobRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	// JobTimeout bounds a single run
	JobTimeout time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		JobTimeout: 5 * time.Minute,
	}
}

type registration struct {
	job      Job
	interval time.Duration
}

// Scheduler runs registered jobs on fixed intervals. Runs of the same job
// never overlap.
type Scheduler struct {
	config SchedulerConfig
	logger *zap.Logger

	jobs    map[string]*registration
	order   []string
	running map[string]*sync.Mutex
	lastRun map[string]JobRun

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, logger *zap.Logger) *Scheduler {
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultSchedulerConfig().JobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:  config,
		logger:  logger.Named("scheduler"),
		jobs:    make(map[string]*registration),
		running: make(map[string]*sync.Mutex),
		lastRun: make(map[string]JobRun),
	}
}

// Register adds a job that runs every interval once the scheduler starts.
func (s *Scheduler) Register(job Job, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: interval for %s must be positive", ErrInvalidConfig, job.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return ErrSchedulerRunning
	}
	if _, ok := s.jobs[job.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name())
	}
	s.jobs[job.Name()] = &registration{job: job, interval: interval}
	s.running[job.Name()] = &sync.Mutex{}
	s.order = append(s.order, job.Name())
	return nil
}

// Start starts one ticker loop per registered job
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, name := range s.order {
		reg := s.jobs[name]
		s.wg.Add(1)
		go s.loop(ctx, reg)
	}

	s.logger.Info("Scheduler started",
		zap.Int("jobs", len(s.order)),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the loops to exit
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the scheduler has been started
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// RunNow runs a registered job immediately and waits for it to finish.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobRun, error) {
	s.mu.Lock()
	reg, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return JobRun{}, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	run := s.execute(ctx, reg.job)
	if run.Status == JobStatusFailed {
		return run, fmt.Errorf("job %s failed: %s", name, run.Error)
	}
	return run, nil
}

// LastRun returns the most recent finished run of a job.
func (s *Scheduler) LastRun(name string) (JobRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.lastRun[name]
	return run, ok
}

func (s *Scheduler) loop(ctx context.Context, reg *registration) {
	defer s.wg.Done()

	ticker := time.NewTicker(reg.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, reg.job)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) JobRun {
	s.mu.Lock()
	lock := s.running[job.Name()]
	s.mu.Unlock()
	lock.Lock()
	defer lock.Unlock()

	run := newJobRun(job.Name())
	logger := s.logger.With(
		zap.String("job", job.Name()),
		zap.String("run_id", run.ID.String()),
	)
	logger.Debug("Job started")

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	err := job.Run(jobCtx)
	cancel()
	run.finish(err)

	if err != nil {
		logger.Error("Job failed", zap.Duration("duration", run.Duration()), zap.Error(err))
	} else {
		logger.Debug("Job completed", zap.Duration("duration", run.Duration()))
	}

	s.mu.Lock()
	s.lastRun[job.Name()] = *run
	s.mu.Unlock()
	return *run
}
