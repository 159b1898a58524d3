package ecommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/capture/backend/internal/domain/capture"
	"github.com/capture/backend/internal/domain/integration"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	// maxResponseSize limits the size of API responses to prevent memory exhaustion (10MB)
	maxResponseSize = 10 * 1024 * 1024

	ordersPath    = "/order"
	customersPath = "/customer"
)

// CommerceClient fetches orders and customer profiles from the commerce platform
type CommerceClient struct {
	config     *CommerceConfig
	httpClient *http.Client
	queue      *RequestQueue
	logger     *zap.Logger
}

// NewCommerceClient creates a new client. The configuration is validated and
// defaults are filled in. Extra queue options are applied after the ones
// derived from the configuration.
func NewCommerceClient(config *CommerceConfig, logger *zap.Logger, opts ...QueueOption) (*CommerceClient, error) {
	if config == nil {
		return nil, integration.ErrPlatformNotConfigured
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("commerce")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "commerce",
		MaxRequests: 1,
		Timeout:     config.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerFailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !(errors.Is(err, integration.ErrPlatformUpstream) ||
				errors.Is(err, integration.ErrPlatformUnreachable))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	queueOpts := append([]QueueOption{WithQueueLogger(logger), WithBreaker(breaker)}, opts...)

	return &CommerceClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		queue:  NewRequestQueue(config.RequestsPerSecond, config.Burst, config.RetryPolicy(), queueOpts...),
		logger: logger,
	}, nil
}

// Close stops the request queue
func (c *CommerceClient) Close() {
	c.queue.Close()
}

// ---------------------------------------------------------------------------
// CommerceSource Implementation
// ---------------------------------------------------------------------------

// FetchOrders returns every order paid within [start, end], inclusive by calendar day
func (c *CommerceClient) FetchOrders(ctx context.Context, start, end time.Time) ([]capture.Order, error) {
	query := url.Values{}
	query.Add("orderPaidDate", "gte:"+formatDate(start))
	query.Add("orderPaidDate", "lte:"+formatDate(end))

	records, err := paginate(ctx, c, ordersPath, query, func(body []byte) ([]OrderRecord, error) {
		var resp OrderSearchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		return resp.Orders, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch orders: %w", err)
	}

	orders := make([]capture.Order, 0, len(records))
	for _, r := range records {
		orders = append(orders, r.ToDomain())
	}
	return orders, nil
}

// FetchProfiles returns every customer created within [start, end]. The
// platform treats the upper bound as the start of that day, so it is
// advanced by one day to include profiles created on the end day.
func (c *CommerceClient) FetchProfiles(ctx context.Context, start, end time.Time) ([]capture.CustomerProfile, error) {
	query := url.Values{}
	query.Add("createdAt", "gte:"+formatDate(start))
	query.Add("createdAt", "lte:"+formatDate(ProfileUpperBound(end)))

	records, err := paginate(ctx, c, customersPath, query, func(body []byte) ([]CustomerRecord, error) {
		var resp CustomerSearchResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		return resp.Customers, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch profiles: %w", err)
	}

	profiles := make([]capture.CustomerProfile, 0, len(records))
	for _, r := range records {
		profiles = append(profiles, r.ToDomain())
	}
	return profiles, nil
}

// ProfileUpperBound returns the creation-date upper bound sent for a range
// ending at end.
func ProfileUpperBound(end time.Time) time.Time {
	return end.UTC().AddDate(0, 0, 1)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// ---------------------------------------------------------------------------
// Pagination
// ---------------------------------------------------------------------------

// paginate requests pages until one comes back short or MaxPages is reached
func paginate[T any](ctx context.Context, c *CommerceClient, path string, query url.Values, decode func([]byte) ([]T, error)) ([]T, error) {
	var all []T
	for page := 1; page <= c.config.MaxPages; page++ {
		q := cloneValues(query)
		q.Set("limit", strconv.Itoa(c.config.PageSize))
		q.Set("page", strconv.Itoa(page))

		body, err := c.get(ctx, path, q)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		records, err := decode(body)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", integration.ErrPlatformInvalidResponse, page, err)
		}
		all = append(all, records...)

		if len(records) < c.config.PageSize {
			c.logger.Debug("Pagination complete",
				zap.String("path", path),
				zap.Int("pages", page),
				zap.Int("records", len(all)),
			)
			return all, nil
		}
	}

	c.logger.Warn("Pagination safety cap reached",
		zap.String("path", path),
		zap.Int("max_pages", c.config.MaxPages),
		zap.Int("records", len(all)),
	)
	return all, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+2)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

// get enqueues a GET request and returns the response body
func (c *CommerceClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := strings.TrimRight(c.config.BaseURL, "/") + path + "?" + query.Encode()
	return c.queue.Do(ctx, path, func(ctx context.Context) ([]byte, error) {
		return c.doRequest(ctx, target)
	})
}

// doRequest performs a single HTTP exchange and classifies failures
func (c *CommerceClient) doRequest(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformBadRequest, err)
	}
	req.Header.Set("Authorization", c.config.AuthorizationHeader())
	req.Header.Set("tenant", c.config.Tenant)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", integration.ErrPlatformUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", integration.ErrPlatformUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp.StatusCode, resp.Header, body)
	}
	return body, nil
}

// Ensure CommerceClient implements CommerceSource interface
var _ integration.CommerceSource = (*CommerceClient)(nil)
