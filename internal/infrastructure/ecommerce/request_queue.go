package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/capture/backend/internal/domain/integration"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrQueueClosed is returned for requests submitted after Close
var ErrQueueClosed = errors.New("commerce: request queue closed")

const defaultQueueCapacity = 256

// Attempt performs one exchange with the platform
type Attempt func(ctx context.Context) ([]byte, error)

// RequestObserver receives per-attempt outcomes, e.g. for metrics
type RequestObserver interface {
	ObserveRequest(ctx context.Context, endpoint string, err error, duration time.Duration)
	ObserveRetry(ctx context.Context, endpoint string, kind integration.ErrorKind, delay time.Duration)
}

type queuedRequest struct {
	ctx      context.Context
	endpoint string
	attempt  Attempt
	tracker  *requestTracker
	reply    chan queuedResult
}

type queuedResult struct {
	body    []byte
	err     error
	history []RequestState
}

// RequestQueue serializes all platform traffic through one FIFO lane.
// A single drainer goroutine waits on the rate limiter before every attempt
// and runs the retry loop, so retries also count against the shared limit.
type RequestQueue struct {
	requests chan *queuedRequest
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	policy   RetryPolicy
	sleep    func(context.Context, time.Duration) error
	observer RequestObserver
	logger   *zap.Logger

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// QueueOption configures a RequestQueue
type QueueOption func(*RequestQueue)

// WithQueueLogger sets the logger
func WithQueueLogger(logger *zap.Logger) QueueOption {
	return func(q *RequestQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithBreaker routes every attempt through the circuit breaker
func WithBreaker(cb *gobreaker.CircuitBreaker) QueueOption {
	return func(q *RequestQueue) {
		q.breaker = cb
	}
}

// WithObserver registers an observer for attempts and retries
func WithObserver(o RequestObserver) QueueOption {
	return func(q *RequestQueue) {
		q.observer = o
	}
}

// WithSleep replaces the backoff sleep, mainly for tests
func WithSleep(sleep func(context.Context, time.Duration) error) QueueOption {
	return func(q *RequestQueue) {
		if sleep != nil {
			q.sleep = sleep
		}
	}
}

// WithQueueCapacity sets how many requests may wait in the lane
func WithQueueCapacity(n int) QueueOption {
	return func(q *RequestQueue) {
		if n > 0 {
			q.requests = make(chan *queuedRequest, n)
		}
	}
}

// NewRequestQueue creates a queue and starts its drainer
func NewRequestQueue(rps float64, burst int, policy RetryPolicy, opts ...QueueOption) *RequestQueue {
	q := &RequestQueue{
		requests: make(chan *queuedRequest, defaultQueueCapacity),
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		policy:   policy,
		sleep:    sleepContext,
		logger:   zap.NewNop(),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	go q.run()
	return q
}

// Do enqueues an attempt function and blocks until it succeeds, fails
// permanently or ctx is done.
func (q *RequestQueue) Do(ctx context.Context, endpoint string, attempt Attempt) ([]byte, error) {
	res := q.do(ctx, endpoint, attempt)
	return res.body, res.err
}

func (q *RequestQueue) do(ctx context.Context, endpoint string, attempt Attempt) queuedResult {
	r := &queuedRequest{
		ctx:      ctx,
		endpoint: endpoint,
		attempt:  attempt,
		tracker:  newRequestTracker(),
		reply:    make(chan queuedResult, 1),
	}
	_ = r.tracker.transition(StateQueued)

	select {
	case <-q.done:
		return queuedResult{err: ErrQueueClosed}
	default:
	}

	select {
	case q.requests <- r:
	case <-ctx.Done():
		return queuedResult{err: ctx.Err()}
	case <-q.done:
		return queuedResult{err: ErrQueueClosed}
	}

	return q.await(ctx, r)
}

// await blocks for the reply of an enqueued request
func (q *RequestQueue) await(ctx context.Context, r *queuedRequest) queuedResult {
	select {
	case res := <-r.reply:
		return res
	case <-ctx.Done():
		return queuedResult{err: ctx.Err()}
	case <-q.stopped:
		// run replies before it stops, so an empty reply means the
		// request landed in the lane after the final drain.
		select {
		case res := <-r.reply:
			return res
		default:
			return queuedResult{err: ErrQueueClosed}
		}
	}
}

// Close stops the drainer. Waiting requests fail with ErrQueueClosed and an
// in-flight request is interrupted, including its backoff sleep.
func (q *RequestQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
	<-q.stopped
}

func (q *RequestQueue) run() {
	defer close(q.stopped)
	for {
		select {
		case <-q.done:
			for {
				select {
				case r := <-q.requests:
					_ = r.tracker.transition(StateFailed)
					r.reply <- queuedResult{err: ErrQueueClosed, history: r.tracker.history}
				default:
					return
				}
			}
		case r := <-q.requests:
			body, err := q.process(r)
			r.reply <- queuedResult{body: body, err: err, history: r.tracker.history}
		}
	}
}

// process drives one request through the state machine
func (q *RequestQueue) process(r *queuedRequest) ([]byte, error) {
	t := r.tracker
	if err := r.ctx.Err(); err != nil {
		_ = t.transition(StateFailed)
		return nil, err
	}

	ctx, cancel := q.requestContext(r.ctx)
	defer cancel()

	for {
		if err := q.limiter.Wait(ctx); err != nil {
			_ = t.transition(StateFailed)
			return nil, q.stopErr(r, err)
		}

		_ = t.transition(StateInFlight)
		start := time.Now()
		body, err := q.dispatch(ctx, r)
		if q.observer != nil {
			q.observer.ObserveRequest(r.ctx, r.endpoint, err, time.Since(start))
		}
		if err == nil {
			_ = t.transition(StateDone)
			return body, nil
		}

		// Only the caller's context or Close end the loop early. A client
		// timeout also wraps context.DeadlineExceeded and stays retryable.
		if ctx.Err() != nil {
			_ = t.transition(StateFailed)
			return nil, q.stopErr(r, err)
		}

		delay, retry := q.policy.Next(err, t.attempts)
		if !retry {
			_ = t.transition(StateFailed)
			if t.attempts > 1 {
				return nil, fmt.Errorf("after %d attempts: %w", t.attempts, err)
			}
			return nil, err
		}

		_ = t.transition(StateRetryWait)
		kind := integration.KindOf(err)
		q.logger.Warn("Retrying commerce request",
			zap.String("endpoint", r.endpoint),
			zap.Int("attempt", t.attempts),
			zap.String("kind", string(kind)),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if q.observer != nil {
			q.observer.ObserveRetry(r.ctx, r.endpoint, kind, delay)
		}
		if err := q.sleep(ctx, delay); err != nil {
			_ = t.transition(StateFailed)
			return nil, q.stopErr(r, err)
		}
	}
}

// requestContext derives a context from the caller's that Close also cancels
func (q *RequestQueue) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-q.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// stopErr reports ErrQueueClosed when Close interrupted the request
func (q *RequestQueue) stopErr(r *queuedRequest, err error) error {
	if r.ctx.Err() == nil {
		select {
		case <-q.done:
			return fmt.Errorf("%w: %w", ErrQueueClosed, err)
		default:
		}
	}
	return err
}

func (q *RequestQueue) dispatch(ctx context.Context, r *queuedRequest) ([]byte, error) {
	if q.breaker == nil {
		return r.attempt(ctx)
	}
	out, err := q.breaker.Execute(func() (interface{}, error) {
		return r.attempt(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", integration.ErrPlatformUnreachable, ErrCircuitOpen)
	}
	if err != nil {
		return nil, err
	}
	body, _ := out.([]byte)
	return body, nil
}
