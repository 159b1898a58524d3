package integration

import (
	"context"
	"errors"

	"github.com/capture/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Platform Errors
// ---------------------------------------------------------------------------

var (
	ErrPlatformBadRequest      = errors.New("integration: platform rejected the request")
	ErrPlatformAuthFailed      = errors.New("integration: platform authentication failed")
	ErrPlatformForbidden       = errors.New("integration: platform access forbidden")
	ErrPlatformNotFound        = errors.New("integration: platform resource not found")
	ErrPlatformRateLimited     = errors.New("integration: platform rate limited")
	ErrPlatformUpstream        = errors.New("integration: platform server error")
	ErrPlatformUnreachable     = errors.New("integration: platform unreachable")
	ErrPlatformInvalidResponse = errors.New("integration: invalid platform response")
	ErrPlatformNotConfigured   = errors.New("integration: platform not configured")
)

// ---------------------------------------------------------------------------
// ErrorKind
// ---------------------------------------------------------------------------

// ErrorKind classifies a failure for callers deciding whether to retry.
type ErrorKind string

const (
	KindValidation   ErrorKind = "VALIDATION"
	KindUnauthorized ErrorKind = "UNAUTHORIZED"
	KindForbidden    ErrorKind = "FORBIDDEN"
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindRateLimited  ErrorKind = "RATE_LIMITED"
	KindUpstream     ErrorKind = "UPSTREAM_ERROR"
	KindUnreachable  ErrorKind = "UNREACHABLE"
	KindUnknown      ErrorKind = "UNKNOWN"
)

// Retryable reports whether a later attempt may succeed without any change
// on the caller's side.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindUpstream, KindUnreachable:
		return true
	default:
		return false
	}
}

var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrPlatformBadRequest, KindValidation},
	{ErrPlatformAuthFailed, KindUnauthorized},
	{ErrPlatformNotConfigured, KindUnauthorized},
	{ErrPlatformForbidden, KindForbidden},
	{ErrPlatformNotFound, KindNotFound},
	{ErrPlatformRateLimited, KindRateLimited},
	{ErrPlatformUpstream, KindUpstream},
	{ErrPlatformInvalidResponse, KindUpstream},
	{ErrPlatformUnreachable, KindUnreachable},
	{context.DeadlineExceeded, KindUnreachable},
}

// KindOf classifies err. Domain validation errors map to KindValidation and
// anything unrecognised to KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return KindValidation
	}
	return KindUnknown
}
