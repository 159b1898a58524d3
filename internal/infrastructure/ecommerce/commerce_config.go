package ecommerce

import (
	"encoding/base64"
	"errors"
	"time"
)

// CommerceConfig holds configuration for the commerce platform API
type CommerceConfig struct {
	// BaseURL is the API root, e.g. https://api.example.com/v1
	BaseURL string
	// AppID is the application id used as the basic-auth user
	AppID string
	// AppKey is the application secret used as the basic-auth password
	AppKey string
	// Tenant is sent in the tenant header on every request
	Tenant string
	// PageSize is the number of records requested per page (platform maximum 50)
	PageSize int
	// MaxPages caps the number of pages fetched per query
	MaxPages int
	// RequestsPerSecond is the sustained request ceiling shared by all callers
	RequestsPerSecond float64
	// Burst is the number of requests allowed above the sustained rate
	Burst int
	// MaxAttempts bounds the attempts per request, including the first
	MaxAttempts int
	// RateLimitBaseDelay is the first backoff after a 429, doubled per attempt
	RateLimitBaseDelay time.Duration
	// RateLimitMaxDelay caps the rate-limit backoff
	RateLimitMaxDelay time.Duration
	// TransientBaseDelay is multiplied by the attempt number after a 5xx or network error
	TransientBaseDelay time.Duration
	// Timeout is the HTTP request timeout
	Timeout time.Duration
	// BreakerFailureThreshold is the number of consecutive failed requests that opens the circuit
	BreakerFailureThreshold uint32
	// BreakerOpenTimeout is how long the circuit stays open before probing again
	BreakerOpenTimeout time.Duration
}

// Defaults for the commerce platform client
const (
	DefaultPageSize                = 50
	DefaultMaxPages                = 100
	DefaultRequestsPerSecond       = 2.0
	DefaultBurst                   = 1
	DefaultMaxAttempts             = 5
	DefaultRateLimitBaseDelay      = time.Second
	DefaultRateLimitMaxDelay       = 30 * time.Second
	DefaultTransientBaseDelay      = 500 * time.Millisecond
	DefaultTimeout                 = 30 * time.Second
	DefaultBreakerFailureThreshold = 10
	DefaultBreakerOpenTimeout      = 30 * time.Second
)

// Errors for commerce configuration
var (
	ErrCommerceConfigMissingBaseURL = errors.New("commerce: base URL is required")
	ErrCommerceConfigMissingAppID   = errors.New("commerce: app id is required")
	ErrCommerceConfigMissingAppKey  = errors.New("commerce: app key is required")
	ErrCommerceConfigMissingTenant  = errors.New("commerce: tenant is required")
)

// NewCommerceConfig creates a new commerce configuration with defaults
func NewCommerceConfig(baseURL, appID, appKey, tenant string) *CommerceConfig {
	return &CommerceConfig{
		BaseURL:                 baseURL,
		AppID:                   appID,
		AppKey:                  appKey,
		Tenant:                  tenant,
		PageSize:                DefaultPageSize,
		MaxPages:                DefaultMaxPages,
		RequestsPerSecond:       DefaultRequestsPerSecond,
		Burst:                   DefaultBurst,
		MaxAttempts:             DefaultMaxAttempts,
		RateLimitBaseDelay:      DefaultRateLimitBaseDelay,
		RateLimitMaxDelay:       DefaultRateLimitMaxDelay,
		TransientBaseDelay:      DefaultTransientBaseDelay,
		Timeout:                 DefaultTimeout,
		BreakerFailureThreshold: DefaultBreakerFailureThreshold,
		BreakerOpenTimeout:      DefaultBreakerOpenTimeout,
	}
}

// Validate validates the commerce configuration and fills unset fields with defaults
func (c *CommerceConfig) Validate() error {
	if c.BaseURL == "" {
		return ErrCommerceConfigMissingBaseURL
	}
	if c.AppID == "" {
		return ErrCommerceConfigMissingAppID
	}
	if c.AppKey == "" {
		return ErrCommerceConfigMissingAppKey
	}
	if c.Tenant == "" {
		return ErrCommerceConfigMissingTenant
	}
	if c.PageSize <= 0 || c.PageSize > DefaultPageSize {
		c.PageSize = DefaultPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RateLimitBaseDelay <= 0 {
		c.RateLimitBaseDelay = DefaultRateLimitBaseDelay
	}
	if c.RateLimitMaxDelay < c.RateLimitBaseDelay {
		c.RateLimitMaxDelay = max(DefaultRateLimitMaxDelay, c.RateLimitBaseDelay)
	}
	if c.TransientBaseDelay <= 0 {
		c.TransientBaseDelay = DefaultTransientBaseDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.BreakerFailureThreshold == 0 {
		c.BreakerFailureThreshold = DefaultBreakerFailureThreshold
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = DefaultBreakerOpenTimeout
	}
	return nil
}

// AuthorizationHeader returns the basic-auth header value for the app credentials
func (c *CommerceConfig) AuthorizationHeader() string {
	token := base64.StdEncoding.EncodeToString([]byte(c.AppID + ":" + c.AppKey))
	return "Basic " + token
}

// RetryPolicy returns the retry policy described by the configuration
func (c *CommerceConfig) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:        c.MaxAttempts,
		RateLimitBaseDelay: c.RateLimitBaseDelay,
		RateLimitMaxDelay:  c.RateLimitMaxDelay,
		TransientBaseDelay: c.TransientBaseDelay,
	}
}
