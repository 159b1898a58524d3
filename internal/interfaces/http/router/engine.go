package router

import (
	"errors"

	"github.com/capture/backend/internal/infrastructure/logger"
	"github.com/capture/backend/internal/interfaces/http/handler"
	"github.com/capture/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// EngineConfig configures the HTTP engine
type EngineConfig struct {
	Mode           string // gin mode: debug, release, test
	Tracing        middleware.TracingConfig
	CORS           middleware.CORSConfig
	MaxBodySize    int64
	TrustedProxies []string
	// MetricsPath exposes Prometheus metrics; empty disables the endpoint
	MetricsPath string
}

// Dependencies are the handlers and collaborators the engine wires together
type Dependencies struct {
	Capture  *handler.CaptureHandler
	Health   *handler.HealthHandler
	Metrics  *middleware.HTTPMetrics
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// CaptureRoutes returns the capture metrics route group
func CaptureRoutes(h *handler.CaptureHandler) *DomainGroup {
	return NewDomainGroup("capture", "/capture").
		GET("/metrics", h.GetMetrics).
		GET("/year-over-year", h.GetYearOverYear).
		DELETE("/cache", h.InvalidateRange).
		DELETE("/cache/all", h.InvalidateAll).
		GET("/settings", h.GetSettings).
		PUT("/settings", h.UpdateSettings)
}

// NewEngine builds the gin engine with the middleware chain and all routes
func NewEngine(cfg EngineConfig, deps Dependencies) (*gin.Engine, error) {
	if deps.Capture == nil || deps.Health == nil {
		return nil, errors.New("capture and health handlers are required")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		middleware.TracingWithConfig(cfg.Tracing),
		middleware.SpanErrorMarker(),
		logger.GinMiddleware(log),
		middleware.Secure(),
		middleware.CORSWithConfig(cfg.CORS),
		middleware.BodyLimit(cfg.MaxBodySize),
	)
	if deps.Metrics != nil {
		engine.Use(deps.Metrics.Middleware())
	}

	engine.GET("/health", deps.Health.Live)
	engine.GET("/health/ready", deps.Health.Ready)
	if cfg.MetricsPath != "" && deps.Gatherer != nil {
		engine.GET(cfg.MetricsPath, middleware.MetricsHandler(deps.Gatherer))
	}

	NewRouter(engine).Register(CaptureRoutes(deps.Capture)).Setup()
	return engine, nil
}
