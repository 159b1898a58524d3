package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/capture/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Request state machine
// ---------------------------------------------------------------------------

// RequestState is the lifecycle state of one queued request
type RequestState int

const (
	StateIdle RequestState = iota
	StateQueued
	StateInFlight
	StateRetryWait
	StateDone
	StateFailed
)

// String returns the state name
func (s RequestState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQueued:
		return "queued"
	case StateInFlight:
		return "in_flight"
	case StateRetryWait:
		return "retry_wait"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// IsTerminal reports whether no further transition is possible
func (s RequestState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

var allowedTransitions = map[RequestState][]RequestState{
	StateIdle:      {StateQueued},
	StateQueued:    {StateInFlight, StateFailed},
	StateInFlight:  {StateDone, StateRetryWait, StateFailed},
	StateRetryWait: {StateInFlight, StateFailed},
}

// ErrInvalidTransition is returned for a transition the state machine does not allow
var ErrInvalidTransition = errors.New("commerce: invalid request state transition")

// requestTracker records the state history and attempt count of one request
type requestTracker struct {
	state    RequestState
	attempts int
	history  []RequestState
}

func newRequestTracker() *requestTracker {
	return &requestTracker{state: StateIdle, history: []RequestState{StateIdle}}
}

func (r *requestTracker) transition(to RequestState) error {
	for _, allowed := range allowedTransitions[r.state] {
		if allowed == to {
			r.state = to
			r.history = append(r.history, to)
			if to == StateInFlight {
				r.attempts++
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.state, to)
}

// ---------------------------------------------------------------------------
// RetryPolicy
// ---------------------------------------------------------------------------

// RetryPolicy decides whether and when a failed attempt is retried
type RetryPolicy struct {
	// MaxAttempts bounds the total attempts, including the first
	MaxAttempts int
	// RateLimitBaseDelay doubles with every rate-limited attempt
	RateLimitBaseDelay time.Duration
	// RateLimitMaxDelay caps the rate-limit delay
	RateLimitMaxDelay time.Duration
	// TransientBaseDelay is multiplied by the attempt number
	TransientBaseDelay time.Duration
}

// RateLimitBackoff returns base * 2^(attempt-1), capped at RateLimitMaxDelay
func (p RetryPolicy) RateLimitBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.RateLimitBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.RateLimitMaxDelay > 0 && d >= p.RateLimitMaxDelay {
			return p.RateLimitMaxDelay
		}
	}
	if p.RateLimitMaxDelay > 0 && d > p.RateLimitMaxDelay {
		return p.RateLimitMaxDelay
	}
	return d
}

// TransientBackoff returns base * attempt
func (p RetryPolicy) TransientBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.TransientBaseDelay * time.Duration(attempt)
}

// Next returns the delay before the next attempt after attempt failed with
// err, and false when the error is final.
func (p RetryPolicy) Next(err error, attempt int) (time.Duration, bool) {
	if attempt >= p.MaxAttempts {
		return 0, false
	}
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return 0, false
	case errors.Is(err, integration.ErrPlatformRateLimited):
		d := p.RateLimitBackoff(attempt)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.RetryAfter > d {
			d = min(statusErr.RetryAfter, p.RateLimitMaxDelay)
		}
		return d, true
	case errors.Is(err, integration.ErrPlatformUpstream), errors.Is(err, integration.ErrPlatformUnreachable):
		return p.TransientBackoff(attempt), true
	default:
		return 0, false
	}
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
