package dto

import (
	"net/http"

	"github.com/capture/backend/internal/domain/integration"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeServiceUnavailable is used when an optional backend is not configured
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRange is used when a date range is invalid
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
)

// Commerce platform error codes
const (
	// ErrCodeRateLimited is used when the platform keeps rate limiting after retries
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
	// ErrCodeUpstreamAuth is used when the platform rejects the credentials
	ErrCodeUpstreamAuth = "ERR_UPSTREAM_AUTH"
	// ErrCodeUpstreamForbidden is used when the credentials lack access
	ErrCodeUpstreamForbidden = "ERR_UPSTREAM_FORBIDDEN"
	// ErrCodeUpstreamNotFound is used when the platform endpoint does not exist
	ErrCodeUpstreamNotFound = "ERR_UPSTREAM_NOT_FOUND"
	// ErrCodeUpstream is used for platform server errors and malformed replies
	ErrCodeUpstream = "ERR_UPSTREAM"
	// ErrCodeUpstreamUnavailable is used when the platform cannot be reached
	ErrCodeUpstreamUnavailable = "ERR_UPSTREAM_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:            http.StatusInternalServerError,
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeValidationRange: http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,

	ErrCodeNotFound: http.StatusNotFound,

	// Platform errors are reported as gateway failures
	ErrCodeRateLimited:         http.StatusTooManyRequests,
	ErrCodeUpstreamAuth:        http.StatusBadGateway,
	ErrCodeUpstreamForbidden:   http.StatusBadGateway,
	ErrCodeUpstreamNotFound:    http.StatusBadGateway,
	ErrCodeUpstream:            http.StatusBadGateway,
	ErrCodeUpstreamUnavailable: http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":               ErrCodeNotFound,
	"INVALID_INPUT":           ErrCodeValidation,
	"INVALID_RANGE":           ErrCodeValidationRange,
	"NO_GUEST_SKUS":           ErrCodeValidation,
	"SETTINGS_NOT_FOUND":      ErrCodeNotFound,
	"SETTINGS_STORE_DISABLED": ErrCodeServiceUnavailable,
}

// NormalizeErrorCode converts a domain error code to the API format
// Unknown codes are returned as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}

// kindErrorCodes maps commerce failure kinds to API error codes
var kindErrorCodes = map[integration.ErrorKind]string{
	integration.KindValidation:   ErrCodeValidation,
	integration.KindUnauthorized: ErrCodeUpstreamAuth,
	integration.KindForbidden:    ErrCodeUpstreamForbidden,
	integration.KindNotFound:     ErrCodeUpstreamNotFound,
	integration.KindRateLimited:  ErrCodeRateLimited,
	integration.KindUpstream:     ErrCodeUpstream,
	integration.KindUnreachable:  ErrCodeUpstreamUnavailable,
	integration.KindUnknown:      ErrCodeInternal,
}

// ErrorCodeForKind returns the API error code for a failure kind
func ErrorCodeForKind(kind integration.ErrorKind) string {
	if code, ok := kindErrorCodes[kind]; ok {
		return code
	}
	return ErrCodeInternal
}
