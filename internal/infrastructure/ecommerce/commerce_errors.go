package ecommerce

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/capture/backend/internal/domain/integration"
)

// ErrCircuitOpen is returned without contacting the platform while the
// circuit breaker is open.
var ErrCircuitOpen = errors.New("commerce: circuit breaker open")

// StatusError is a non-2xx platform response
type StatusError struct {
	StatusCode int
	// RetryAfter is the server-requested delay, zero when absent
	RetryAfter time.Duration
	Message    string
	kind       error
}

// Error implements the error interface
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: status %d", e.kind, e.StatusCode)
	}
	return fmt.Sprintf("%v: status %d: %s", e.kind, e.StatusCode, e.Message)
}

// Unwrap returns the integration sentinel for the status class
func (e *StatusError) Unwrap() error {
	return e.kind
}

// classifyStatus maps an HTTP status to the integration error taxonomy
func classifyStatus(status int) error {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return integration.ErrPlatformBadRequest
	case status == http.StatusUnauthorized:
		return integration.ErrPlatformAuthFailed
	case status == http.StatusForbidden:
		return integration.ErrPlatformForbidden
	case status == http.StatusNotFound:
		return integration.ErrPlatformNotFound
	case status == http.StatusTooManyRequests:
		return integration.ErrPlatformRateLimited
	case status >= 500:
		return integration.ErrPlatformUpstream
	default:
		return integration.ErrPlatformBadRequest
	}
}

// newStatusError builds a StatusError from a response status, headers and body
func newStatusError(status int, header http.Header, body []byte) *StatusError {
	e := &StatusError{
		StatusCode: status,
		RetryAfter: parseRetryAfter(header.Get("Retry-After"), time.Now()),
		kind:       classifyStatus(status),
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		e.Message = errResp.Message
	} else if len(body) > 0 {
		e.Message = truncate(strings.TrimSpace(string(body)), 200)
	}
	return e
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
