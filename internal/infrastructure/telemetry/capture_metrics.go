package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/capture/backend/internal/domain/integration"
	"github.com/capture/backend/internal/infrastructure/ecommerce"
	"go.opentelemetry.io/otel/metric"
)

// Computation modes.
const (
	ModeRange        = "range"
	ModeYearOverYear = "year_over_year"
)

// CaptureMetrics holds the instruments for ingestion, caching and computation.
type CaptureMetrics struct {
	requestsTotal       *Counter
	requestDuration     *Histogram
	retriesTotal        *Counter
	retryDelay          *Histogram
	cacheLookups        *Counter
	computationsTotal   *Counter
	computationDuration *Histogram
	ordersProcessed     *Counter
	profilesProcessed   *Counter
}

// NewCaptureMetrics creates all capture instruments from meter.
func NewCaptureMetrics(meter metric.Meter) (*CaptureMetrics, error) {
	if meter == nil {
		return nil, errors.New("NewCaptureMetrics: meter cannot be nil")
	}

	m := &CaptureMetrics{}
	var err error

	if m.requestsTotal, err = NewCounter(meter,
		"capture_commerce_requests_total",
		"Commerce platform API requests by endpoint and outcome",
		"{request}"); err != nil {
		return nil, err
	}
	if m.requestDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "capture_commerce_request_duration_seconds",
		Description: "Commerce platform API request latency",
		Unit:        "s",
		Boundaries:  RequestDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.retriesTotal, err = NewCounter(meter,
		"capture_commerce_retries_total",
		"Commerce platform API retries by error kind",
		"{retry}"); err != nil {
		return nil, err
	}
	if m.retryDelay, err = NewHistogram(meter, HistogramOpts{
		Name:        "capture_commerce_retry_delay_seconds",
		Description: "Backoff delay before a retried request",
		Unit:        "s",
		Boundaries:  RequestDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = NewCounter(meter,
		"capture_cache_lookups_total",
		"Metrics cache lookups by result",
		"{lookup}"); err != nil {
		return nil, err
	}
	if m.computationsTotal, err = NewCounter(meter,
		"capture_computations_total",
		"Metrics computations by mode and outcome",
		"{computation}"); err != nil {
		return nil, err
	}
	if m.computationDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "capture_computation_duration_seconds",
		Description: "Wall time of a metrics computation including ingestion",
		Unit:        "s",
		Boundaries:  ComputationDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.ordersProcessed, err = NewCounter(meter,
		"capture_orders_processed_total",
		"Orders fed into metrics computations",
		"{order}"); err != nil {
		return nil, err
	}
	if m.profilesProcessed, err = NewCounter(meter,
		"capture_profiles_processed_total",
		"Customer profiles fed into metrics computations",
		"{profile}"); err != nil {
		return nil, err
	}

	return m, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	return string(integration.KindOf(err))
}

// ObserveRequest records one dispatched platform request.
func (m *CaptureMetrics) ObserveRequest(ctx context.Context, endpoint string, err error, duration time.Duration) {
	m.requestsTotal.Inc(ctx, AttrEndpoint.String(endpoint), AttrOutcome.String(outcomeOf(err)))
	m.requestDuration.RecordDuration(ctx, duration, AttrEndpoint.String(endpoint))
}

// ObserveRetry records a scheduled retry and its backoff.
func (m *CaptureMetrics) ObserveRetry(ctx context.Context, endpoint string, kind integration.ErrorKind, delay time.Duration) {
	m.retriesTotal.Inc(ctx, AttrEndpoint.String(endpoint), AttrErrorKind.String(string(kind)))
	m.retryDelay.RecordDuration(ctx, delay, AttrErrorKind.String(string(kind)))
}

// RecordCacheLookup records a cache hit, miss or failed read.
func (m *CaptureMetrics) RecordCacheLookup(ctx context.Context, hit bool, err error) {
	state := "miss"
	switch {
	case err != nil:
		state = "error"
	case hit:
		state = "hit"
	}
	m.cacheLookups.Inc(ctx, AttrCacheState.String(state))
}

// RecordComputation records one finished computation.
func (m *CaptureMetrics) RecordComputation(ctx context.Context, mode string, elapsed time.Duration, orders, profiles int, err error) {
	outcome := AttrOutcome.String(outcomeOf(err))
	m.computationsTotal.Inc(ctx, AttrMode.String(mode), outcome)
	m.computationDuration.RecordDuration(ctx, elapsed, AttrMode.String(mode), outcome)
	if err == nil {
		m.ordersProcessed.Add(ctx, int64(orders))
		m.profilesProcessed.Add(ctx, int64(profiles))
	}
}

var _ ecommerce.RequestObserver = (*CaptureMetrics)(nil)
