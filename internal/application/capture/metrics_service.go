package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/capture/backend/internal/domain/capture"
	"github.com/capture/backend/internal/domain/integration"
	"github.com/capture/backend/internal/domain/shared"
	"github.com/capture/backend/internal/infrastructure/logger"
	"github.com/capture/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Recorder receives computation and cache lookup outcomes.
type Recorder interface {
	RecordCacheLookup(ctx context.Context, hit bool, err error)
	RecordComputation(ctx context.Context, mode string, elapsed time.Duration, orders, profiles int, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheLookup(context.Context, bool, error) {}

func (nopRecorder) RecordComputation(context.Context, string, time.Duration, int, int, error) {}

// SettingsSource tells where effective settings came from.
type SettingsSource string

const (
	SettingsFromStore    SettingsSource = "store"
	SettingsFromDefaults SettingsSource = "defaults"
)

// MetricsService drives the engine over single ranges and year-over-year
// comparisons, memoizing results in the metrics cache.
type MetricsService struct {
	source   integration.CommerceSource
	cache    capture.MetricsCache
	settings capture.SettingsRepository
	engine   *capture.Engine
	defaults capture.Settings
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
	inflight singleflight.Group
	timeout  time.Duration
}

// DefaultComputeTimeout bounds a shared computation once it is detached from
// the caller that started it.
const DefaultComputeTimeout = 5 * time.Minute

// MetricsServiceOption configures a MetricsService.
type MetricsServiceOption func(*MetricsService)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) MetricsServiceOption {
	return func(s *MetricsService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the sink for computation metrics.
func WithRecorder(r Recorder) MetricsServiceOption {
	return func(s *MetricsService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithClock sets the clock deciding which months have started.
func WithClock(now func() time.Time) MetricsServiceOption {
	return func(s *MetricsService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithComputeTimeout bounds each shared range computation.
func WithComputeTimeout(d time.Duration) MetricsServiceOption {
	return func(s *MetricsService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithDefaultSettings sets the settings used when the store is unavailable.
func WithDefaultSettings(guestSKU, weddingTagID string) MetricsServiceOption {
	return func(s *MetricsService) {
		if strings.TrimSpace(guestSKU) != "" {
			s.defaults.GuestSKUs = []string{guestSKU}
		}
		s.defaults.WeddingTagID = weddingTagID
	}
}

// NewMetricsService creates a MetricsService. settings may be nil, in which
// case the default settings are always used.
func NewMetricsService(
	source integration.CommerceSource,
	cache capture.MetricsCache,
	settings capture.SettingsRepository,
	engine *capture.Engine,
	opts ...MetricsServiceOption,
) *MetricsService {
	s := &MetricsService{
		source:   source,
		cache:    cache,
		settings: settings,
		engine:   engine,
		defaults: capture.Settings{GuestSKUs: []string{capture.DefaultGuestSKU}},
		recorder: nopRecorder{},
		logger:   zap.NewNop(),
		now:      time.Now,
		timeout:  DefaultComputeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = capture.NewEngine()
	}
	return s
}

// ---------------------------------------------------------------------------
// Range mode
// ---------------------------------------------------------------------------

// GetMetrics returns the metrics for [start, end], computing them on a cache
// miss. Failures are returned as *ComputationError.
func (s *MetricsService) GetMetrics(ctx context.Context, start, end time.Time) (*capture.MetricsResult, error) {
	began := time.Now()
	if err := validateRange(start, end); err != nil {
		return nil, newComputationError(err, time.Since(began))
	}

	ctx, log := logger.WithComputation(ctx, s.logger, uuid.NewString(), start, end)
	ctx, span := telemetry.StartSpan(ctx, "capture.get_metrics",
		telemetry.AttrMode.String(telemetry.ModeRange),
		attribute.String("capture.range", capture.CacheKey(start, end)),
	)

	result, stats, err := s.metrics(ctx, log, capture.DefaultLabel(start, end), start, end)
	elapsed := time.Since(began)
	telemetry.EndSpan(span, err)

	if stats.computed || err != nil {
		s.recorder.RecordComputation(ctx, telemetry.ModeRange, elapsed, stats.orders, stats.profiles, err)
	}
	if err != nil {
		log.Error("Capture metrics computation failed",
			zap.String("kind", string(integration.KindOf(err))),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, newComputationError(err, elapsed)
	}
	return result, nil
}

type computeStats struct {
	computed bool
	orders   int
	profiles int
}

// metrics serves one range from the cache or computes it. Concurrent callers
// for the same range share a single computation.
func (s *MetricsService) metrics(ctx context.Context, log *zap.Logger, label string, start, end time.Time) (*capture.MetricsResult, computeStats, error) {
	if cached, ok := s.lookup(ctx, log, start, end); ok {
		return relabel(cached, label), computeStats{}, nil
	}

	type outcome struct {
		result *capture.MetricsResult
		stats  computeStats
	}
	// Detached from the caller that starts it; bounded by s.timeout instead.
	ch := s.inflight.DoChan(capture.CacheKey(start, end), func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		result, stats, err := s.compute(cctx, log, label, start, end)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(cctx, start, end, result); err != nil {
			log.Warn("Failed to store metrics in cache", zap.Error(err))
		}
		return outcome{result: result, stats: stats}, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, computeStats{}, ctx.Err()
	}
	if res.Err != nil {
		return nil, computeStats{}, res.Err
	}
	v, joined := res.Val, res.Shared
	out := v.(outcome)
	if joined {
		return relabel(out.result, label), computeStats{}, nil
	}
	return out.result, out.stats, nil
}

func (s *MetricsService) lookup(ctx context.Context, log *zap.Logger, start, end time.Time) (*capture.MetricsResult, bool) {
	cached, hit, err := s.cache.Get(ctx, start, end)
	s.recorder.RecordCacheLookup(ctx, hit, err)
	if err != nil {
		log.Warn("Metrics cache read failed, recomputing", zap.Error(err))
		return nil, false
	}
	if hit {
		log.Debug("Metrics cache hit")
	}
	return cached, hit
}

func (s *MetricsService) compute(ctx context.Context, log *zap.Logger, label string, start, end time.Time) (*capture.MetricsResult, computeStats, error) {
	settings, _ := s.loadSettings(ctx, log)

	var (
		orders   []capture.Order
		profiles []capture.CustomerProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = s.source.FetchOrders(gctx, start, end)
		if err != nil {
			return fmt.Errorf("fetch orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		profiles, err = s.source.FetchProfiles(gctx, start, end)
		if err != nil {
			return fmt.Errorf("fetch profiles: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, computeStats{}, err
	}

	result := s.engine.Compute(capture.Input{
		Label:    label,
		Start:    start,
		End:      end,
		Orders:   orders,
		Profiles: profiles,
		Settings: settings,
	})

	log.Info("Capture metrics computed",
		zap.Int("orders", len(orders)),
		zap.Int("profiles", len(profiles)),
		zap.Int("buckets", len(result.Staff)),
		zap.Float64("company_capture_rate", result.Company.CaptureRate),
	)
	return result, computeStats{computed: true, orders: len(orders), profiles: len(profiles)}, nil
}

func relabel(r *capture.MetricsResult, label string) *capture.MetricsResult {
	if r == nil || r.PeriodLabel == label {
		return r
	}
	cp := *r
	cp.PeriodLabel = label
	return &cp
}

func validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || start.After(end) {
		return shared.ErrInvalidRange
	}
	return nil
}

// ---------------------------------------------------------------------------
// Year-over-year mode
// ---------------------------------------------------------------------------

// GetYearOverYear compares every started month of the current year with the
// same month of the prior year. Months are computed one after another so the
// shared request budget of the commerce client is never flooded.
func (s *MetricsService) GetYearOverYear(ctx context.Context) (*capture.YearOverYearReport, error) {
	began := time.Now()
	now := s.now().UTC()
	year := now.Year()

	ctx, log := logger.WithComputation(ctx, s.logger, uuid.NewString(),
		time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), now)
	ctx, span := telemetry.StartSpan(ctx, "capture.get_year_over_year",
		telemetry.AttrMode.String(telemetry.ModeYearOverYear),
		attribute.Int("capture.year", year),
	)

	report, stats, err := s.yearOverYear(ctx, log, year, now)
	elapsed := time.Since(began)
	telemetry.EndSpan(span, err)
	s.recorder.RecordComputation(ctx, telemetry.ModeYearOverYear, elapsed, stats.orders, stats.profiles, err)

	if err != nil {
		log.Error("Year-over-year computation failed",
			zap.String("kind", string(integration.KindOf(err))),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, newComputationError(err, elapsed)
	}
	log.Info("Year-over-year report computed",
		zap.Int("months", len(report.Months)),
		zap.Duration("elapsed", elapsed),
	)
	return report, nil
}

func (s *MetricsService) yearOverYear(ctx context.Context, log *zap.Logger, year int, now time.Time) (*capture.YearOverYearReport, computeStats, error) {
	report := &capture.YearOverYearReport{Year: year}
	var total computeStats

	for month := time.January; month <= time.December; month++ {
		curStart, curEnd := capture.MonthRange(year, month)
		if curStart.After(now) {
			break
		}
		priorStart, priorEnd := capture.MonthRange(year-1, month)

		current, stats, err := s.metrics(ctx, log, monthLabel(year, month), curStart, curEnd)
		if err != nil {
			return nil, total, fmt.Errorf("%s %d: %w", month, year, err)
		}
		total.add(stats)

		prior, stats, err := s.metrics(ctx, log, monthLabel(year-1, month), priorStart, priorEnd)
		if err != nil {
			return nil, total, fmt.Errorf("%s %d: %w", month, year-1, err)
		}
		total.add(stats)

		report.Months = append(report.Months, capture.NewMonthComparison(month, month.String(), current, prior))
	}

	report.GeneratedAt = s.now()
	return report, total, nil
}

func (c *computeStats) add(o computeStats) {
	c.computed = c.computed || o.computed
	c.orders += o.orders
	c.profiles += o.profiles
}

func monthLabel(year int, month time.Month) string {
	return fmt.Sprintf("%s %d", month, year)
}

// ---------------------------------------------------------------------------
// Cache administration
// ---------------------------------------------------------------------------

// InvalidateRange drops the cached result for [start, end].
func (s *MetricsService) InvalidateRange(ctx context.Context, start, end time.Time) error {
	if err := validateRange(start, end); err != nil {
		return err
	}
	if err := s.cache.Clear(ctx, start, end); err != nil {
		return fmt.Errorf("clear cached range: %w", err)
	}
	logger.Enrich(ctx, s.logger).Info("Metrics cache entry cleared",
		zap.String("range", capture.CacheKey(start, end)))
	return nil
}

// InvalidateAll drops every cached result.
func (s *MetricsService) InvalidateAll(ctx context.Context) error {
	if err := s.cache.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear metrics cache: %w", err)
	}
	logger.Enrich(ctx, s.logger).Info("Metrics cache cleared")
	return nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// EffectiveSettings returns the settings a computation started now would use.
func (s *MetricsService) EffectiveSettings(ctx context.Context) (capture.Settings, SettingsSource) {
	return s.loadSettings(ctx, logger.Enrich(ctx, s.logger))
}

// UpdateSettings stores new settings and drops every cached result computed
// with the previous ones.
func (s *MetricsService) UpdateSettings(ctx context.Context, settings capture.Settings) error {
	if s.settings == nil {
		return ErrSettingsStoreDisabled
	}
	settings.GuestSKUs = trimSKUs(settings.GuestSKUs)
	settings.WeddingTagID = strings.TrimSpace(settings.WeddingTagID)
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.settings.SaveSettings(ctx, &settings); err != nil {
		return fmt.Errorf("save capture settings: %w", err)
	}

	log := logger.Enrich(ctx, s.logger)
	log.Info("Capture settings updated",
		zap.Strings("guest_skus", settings.GuestSKUs),
		zap.String("wedding_tag_id", settings.WeddingTagID),
	)
	if err := s.cache.ClearAll(ctx); err != nil {
		log.Warn("Failed to clear metrics cache after settings update", zap.Error(err))
	}
	return nil
}

// loadSettings reads the stored settings, degrading to the defaults when the
// store is missing, empty or failing.
func (s *MetricsService) loadSettings(ctx context.Context, log *zap.Logger) (capture.Settings, SettingsSource) {
	defaults := capture.Settings{
		GuestSKUs:    append([]string(nil), s.defaults.GuestSKUs...),
		WeddingTagID: s.defaults.WeddingTagID,
	}
	if s.settings == nil {
		return defaults, SettingsFromDefaults
	}

	stored, err := s.settings.GetSettings(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrSettingsNotFound) {
			log.Debug("No capture settings stored, using defaults")
		} else {
			log.Warn("Failed to load capture settings, using defaults", zap.Error(err))
		}
		return defaults, SettingsFromDefaults
	}

	settings := capture.Settings{
		GuestSKUs:    trimSKUs(stored.GuestSKUs),
		WeddingTagID: strings.TrimSpace(stored.WeddingTagID),
	}
	if settings.Validate() != nil {
		log.Warn("Stored capture settings have no guest SKUs, using default SKU",
			zap.Strings("default_skus", defaults.GuestSKUs))
		settings.GuestSKUs = defaults.GuestSKUs
	}
	if settings.WeddingTagID == "" {
		settings.WeddingTagID = defaults.WeddingTagID
	}
	return settings, SettingsFromStore
}

func trimSKUs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, sku := range in {
		if sku = strings.TrimSpace(sku); sku != "" {
			out = append(out, sku)
		}
	}
	return out
}
