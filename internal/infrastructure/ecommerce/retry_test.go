package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capture/backend/internal/domain/integration"
)

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        5,
		RateLimitBaseDelay: time.Second,
		RateLimitMaxDelay:  10 * time.Second,
		TransientBaseDelay: 200 * time.Millisecond,
	}
}

func TestRetryPolicy_RateLimitBackoff(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{40, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.want, p.RateLimitBackoff(tt.attempt))
		})
	}
}

func TestRetryPolicy_RateLimitBackoffNeverDecreases(t *testing.T) {
	p := testPolicy()
	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := p.RateLimitBackoff(attempt)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, p.RateLimitMaxDelay)
		prev = d
	}
}

func TestRetryPolicy_TransientBackoff(t *testing.T) {
	p := testPolicy()
	assert.Equal(t, 200*time.Millisecond, p.TransientBackoff(1))
	assert.Equal(t, 400*time.Millisecond, p.TransientBackoff(2))
	assert.Equal(t, 600*time.Millisecond, p.TransientBackoff(3))
}

func TestRetryPolicy_Next(t *testing.T) {
	p := testPolicy()
	rateLimited := &StatusError{StatusCode: 429, kind: integration.ErrPlatformRateLimited}
	slowDown := &StatusError{StatusCode: 429, RetryAfter: 7 * time.Second, kind: integration.ErrPlatformRateLimited}
	tooSlow := &StatusError{StatusCode: 429, RetryAfter: time.Minute, kind: integration.ErrPlatformRateLimited}

	tests := []struct {
		name      string
		err       error
		attempt   int
		wantDelay time.Duration
		wantRetry bool
	}{
		{"rate limited", rateLimited, 2, 2 * time.Second, true},
		{"retry after honoured", slowDown, 1, 7 * time.Second, true},
		{"retry after capped", tooSlow, 1, 10 * time.Second, true},
		{"upstream", &StatusError{StatusCode: 503, kind: integration.ErrPlatformUpstream}, 3, 600 * time.Millisecond, true},
		{"unreachable", fmt.Errorf("%w: dial", integration.ErrPlatformUnreachable), 1, 200 * time.Millisecond, true},
		{"attempts exhausted", rateLimited, 5, 0, false},
		{"auth", &StatusError{StatusCode: 401, kind: integration.ErrPlatformAuthFailed}, 1, 0, false},
		{"circuit open", fmt.Errorf("%w: %w", integration.ErrPlatformUnreachable, ErrCircuitOpen), 1, 0, false},
		{"client timeout", fmt.Errorf("%w: %w", integration.ErrPlatformUnreachable, context.DeadlineExceeded), 2, 400 * time.Millisecond, true},
		{"unknown", errors.New("boom"), 1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, retry := p.Next(tt.err, tt.attempt)
			assert.Equal(t, tt.wantRetry, retry)
			assert.Equal(t, tt.wantDelay, d)
		})
	}
}

func TestRequestTracker_Transitions(t *testing.T) {
	tr := newRequestTracker()
	require.NoError(t, tr.transition(StateQueued))
	require.NoError(t, tr.transition(StateInFlight))
	require.NoError(t, tr.transition(StateRetryWait))
	require.NoError(t, tr.transition(StateInFlight))
	require.NoError(t, tr.transition(StateDone))

	assert.Equal(t, 2, tr.attempts)
	assert.True(t, tr.state.IsTerminal())
	assert.Equal(t, []RequestState{StateIdle, StateQueued, StateInFlight, StateRetryWait, StateInFlight, StateDone}, tr.history)

	err := tr.transition(StateInFlight)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateDone, tr.state)
}

func TestRequestTracker_RejectsSkippingQueue(t *testing.T) {
	tr := newRequestTracker()
	assert.ErrorIs(t, tr.transition(StateInFlight), ErrInvalidTransition)
	assert.ErrorIs(t, tr.transition(StateRetryWait), ErrInvalidTransition)
	assert.Equal(t, StateIdle, tr.state)
}

func TestRequestState_String(t *testing.T) {
	assert.Equal(t, "retry_wait", StateRetryWait.String())
	assert.Equal(t, "invalid", RequestState(99).String())
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, integration.ErrPlatformBadRequest},
		{http.StatusUnprocessableEntity, integration.ErrPlatformBadRequest},
		{http.StatusUnauthorized, integration.ErrPlatformAuthFailed},
		{http.StatusForbidden, integration.ErrPlatformForbidden},
		{http.StatusNotFound, integration.ErrPlatformNotFound},
		{http.StatusTooManyRequests, integration.ErrPlatformRateLimited},
		{http.StatusInternalServerError, integration.ErrPlatformUpstream},
		{http.StatusServiceUnavailable, integration.ErrPlatformUpstream},
		{http.StatusConflict, integration.ErrPlatformBadRequest},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.ErrorIs(t, classifyStatus(tt.status), tt.want)
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-4", now))
	assert.Equal(t, 5*time.Second, parseRetryAfter("5", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
}

func TestStatusError_Message(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "2")

	err := newStatusError(http.StatusTooManyRequests, header, []byte(`{"message":"Too many requests","type":"rateLimit"}`))
	assert.Equal(t, "Too many requests", err.Message)
	assert.Equal(t, 2*time.Second, err.RetryAfter)
	assert.ErrorIs(t, err, integration.ErrPlatformRateLimited)
	assert.Equal(t, "integration: platform rate limited: status 429: Too many requests", err.Error())

	plain := newStatusError(http.StatusBadGateway, http.Header{}, []byte("<html>bad gateway</html>"))
	assert.Equal(t, "<html>bad gateway</html>", plain.Message)
}

func TestTruncate_KeepsRuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "ok", 10, "ok"},
		{"ascii", "abcdef", 3, "abc..."},
		{"cut inside rune", "ab€cd", 3, "ab..."},
		{"cut after rune", "ab€cd", 5, "ab€..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}

	long := strings.Repeat("€", 100)
	assert.True(t, utf8.ValidString(newStatusError(http.StatusBadGateway, http.Header{}, []byte(long)).Message))
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, want, ParseTimestamp("2024-01-10T12:00:00Z"))
	assert.Equal(t, want, ParseTimestamp("2024-01-10T07:00:00-05:00"))
	assert.Equal(t, want, ParseTimestamp("2024-01-10 12:00:00"))
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), ParseTimestamp("2024-01-10"))
	assert.True(t, ParseTimestamp("").IsZero())
	assert.True(t, ParseTimestamp("yesterday").IsZero())
}
