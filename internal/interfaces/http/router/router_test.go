package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appcapture "github.com/capture/backend/internal/application/capture"
	"github.com/capture/backend/internal/domain/capture"
	"github.com/capture/backend/internal/infrastructure/cache"
	"github.com/capture/backend/internal/interfaces/http/dto"
	"github.com/capture/backend/internal/interfaces/http/handler"
	"github.com/capture/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Router and DomainGroup
// ---------------------------------------------------------------------------

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestDomainGroup(t *testing.T) {
	engine := gin.New()
	var order []string

	group := NewDomainGroup("items", "/items").
		Use(func(c *gin.Context) {
			order = append(order, "mw")
			c.Next()
		}).
		GET("", func(c *gin.Context) { c.String(http.StatusOK, "list") }).
		PUT("/:id", func(c *gin.Context) { c.String(http.StatusOK, "put "+c.Param("id")) }).
		DELETE("/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, "items", group.Name())
	assert.Equal(t, "/items", group.Prefix())

	NewRouter(engine).Register(group).Setup()

	tests := []struct {
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{http.MethodGet, "/api/v1/items", http.StatusOK, "list"},
		{http.MethodPut, "/api/v1/items/7", http.StatusOK, "put 7"},
		{http.MethodDelete, "/api/v1/items/7", http.StatusNoContent, ""},
		{http.MethodGet, "/items", http.StatusNotFound, "404 page not found"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
	assert.Len(t, order, 3)
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

type emptySource struct{}

func (emptySource) FetchOrders(context.Context, time.Time, time.Time) ([]capture.Order, error) {
	return nil, nil
}

func (emptySource) FetchProfiles(context.Context, time.Time, time.Time) ([]capture.CustomerProfile, error) {
	return nil, nil
}

func newTestEngine(t *testing.T) (*gin.Engine, *prometheus.Registry) {
	t.Helper()

	store := cache.NewInMemoryMetricsCache(cache.WithCleanupInterval(0))
	t.Cleanup(func() { _ = store.Close() })

	svc := appcapture.NewMetricsService(emptySource{}, store, nil, capture.NewEngine())
	reg := prometheus.NewRegistry()

	tracing := middleware.DefaultTracingConfig()
	tracing.Enabled = false

	engine, err := NewEngine(EngineConfig{
		Tracing:     tracing,
		CORS:        middleware.DefaultCORSConfig(),
		MaxBodySize: 1 << 10,
		MetricsPath: "/metrics",
	}, Dependencies{
		Capture:  handler.NewCaptureHandler(svc),
		Health:   handler.NewHealthHandler("capture-metrics", "test"),
		Metrics:  middleware.NewHTTPMetrics(reg, "capture"),
		Gatherer: reg,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return engine, reg
}

func TestNewEngine_RequiresHandlers(t *testing.T) {
	_, err := NewEngine(EngineConfig{}, Dependencies{})
	require.Error(t, err)
}

func TestNewEngine_Routes(t *testing.T) {
	engine, _ := newTestEngine(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"liveness", http.MethodGet, "/health", "", http.StatusOK},
		{"readiness", http.MethodGet, "/health/ready", "", http.StatusOK},
		{"metrics by month", http.MethodGet, "/api/v1/capture/metrics?month=2024-01", "", http.StatusOK},
		{"metrics by dates", http.MethodGet, "/api/v1/capture/metrics?start=2024-01-01&end=2024-01-31", "", http.StatusOK},
		{"inverted range", http.MethodGet, "/api/v1/capture/metrics?start=2024-02-01&end=2024-01-01", "", http.StatusBadRequest},
		{"year over year", http.MethodGet, "/api/v1/capture/year-over-year", "", http.StatusOK},
		{"clear range", http.MethodDelete, "/api/v1/capture/cache?month=2024-01", "", http.StatusOK},
		{"clear all", http.MethodDelete, "/api/v1/capture/cache/all", "", http.StatusOK},
		{"settings", http.MethodGet, "/api/v1/capture/settings", "", http.StatusOK},
		{"settings without store", http.MethodPut, "/api/v1/capture/settings", `{"guest_skus":["X"]}`, http.StatusServiceUnavailable},
		{"oversized body", http.MethodPut, "/api/v1/capture/settings", `{"guest_skus":["` + strings.Repeat("x", 2048) + `"]}`, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
				req.Header.Set("Content-Type", "application/json")
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDKey))

			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus == http.StatusOK, resp.Success)
		})
	}
}

func TestNewEngine_PrometheusEndpoint(t *testing.T) {
	engine, _ := newTestEngine(t)

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `capture_http_requests_total{method="GET",route="/health",status="200"} 1`)
}
