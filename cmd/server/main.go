package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcapture "github.com/capture/backend/internal/application/capture"
	"github.com/capture/backend/internal/domain/capture"
	"github.com/capture/backend/internal/domain/integration"
	"github.com/capture/backend/internal/infrastructure/cache"
	"github.com/capture/backend/internal/infrastructure/config"
	"github.com/capture/backend/internal/infrastructure/ecommerce"
	"github.com/capture/backend/internal/infrastructure/logger"
	"github.com/capture/backend/internal/infrastructure/persistence"
	"github.com/capture/backend/internal/infrastructure/scheduler"
	"github.com/capture/backend/internal/infrastructure/telemetry"
	"github.com/capture/backend/internal/interfaces/http/handler"
	"github.com/capture/backend/internal/interfaces/http/middleware"
	"github.com/capture/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(baseLog)
	}()

	if err := run(cfg, baseLog); err != nil {
		baseLog.Fatal("Capture metrics service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, baseLog *zap.Logger) error {
	ctx := context.Background()

	// Telemetry
	telCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telCfg, baseLog)
	if err != nil {
		return err
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telCfg, baseLog)
	if err != nil {
		return err
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telCfg, baseLog)
	if err != nil {
		return err
	}
	log := loggerProvider.Bridge(baseLog)
	defer shutdownTelemetry(log, tracerProvider, meterProvider, loggerProvider)

	captureMetrics, err := telemetry.NewCaptureMetrics(meterProvider.Meter("capture"))
	if err != nil {
		return err
	}

	log.Info("Starting capture metrics service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	health := handler.NewHealthHandler(cfg.App.Name, version)

	// Settings store (optional)
	var settingsRepo capture.SettingsRepository
	if cfg.Database.Enabled {
		gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
		db, err := persistence.NewDatabase(&cfg.Database, persistence.WithGormLogger(gormLog))
		if err != nil {
			return err
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("Error closing database", zap.Error(err))
			}
		}()

		dbTracing := telemetry.DefaultDBTracingConfig()
		dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
		dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
		if cfg.Telemetry.DBSlowQueryThresh > 0 {
			dbTracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
		}
		if cfg.Database.Driver == "sqlite" {
			dbTracing.DBSystem = "sqlite"
		}
		if err := telemetry.RegisterDBTracing(db.DB, dbTracing, log); err != nil {
			return err
		}

		settingsRepo = persistence.NewGormCaptureSettingsRepository(db.DB)
		health.AddCheck("database", db.Ping)
		log.Info("Settings store connected", zap.String("driver", cfg.Database.Driver))
	} else {
		log.Info("Settings store disabled, using configured defaults")
	}

	// Metrics cache
	store, err := cache.NewMetricsCacheFactory(cfg.Redis, cfg.Cache,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.Cache.AllowInMemoryFallback),
	).CreateCache()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing metrics cache", zap.Error(err))
		}
	}()
	if redisCache, ok := store.(*cache.RedisMetricsCache); ok {
		health.AddCheck("redis", func(ctx context.Context) error {
			return redisCache.GetClient().Ping(ctx).Err()
		})
	}

	// Commerce platform
	source, closeSource, err := newCommerceSource(cfg.Commerce, log, captureMetrics)
	if err != nil {
		return err
	}
	defer closeSource()

	engine := capture.NewEngine(
		capture.WithMatcher(capture.NewMatcher(cfg.Capture.MatchThreshold)),
		capture.WithAttributionKey(cfg.Capture.AttributionKey),
	)
	service := appcapture.NewMetricsService(source, store, settingsRepo, engine,
		appcapture.WithLogger(log),
		appcapture.WithRecorder(captureMetrics),
		appcapture.WithDefaultSettings(cfg.Capture.DefaultGuestSKU, cfg.Capture.WeddingTagID),
	)

	// Background jobs
	var jobs *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		jobs = scheduler.NewScheduler(scheduler.SchedulerConfig{JobTimeout: cfg.Scheduler.JobTimeout}, log)
		if err := jobs.Register(scheduler.NewCacheSweepJob(store, log), cfg.Scheduler.CacheSweepInterval); err != nil {
			return err
		}
		if err := jobs.Start(ctx); err != nil {
			return err
		}
	}

	// HTTP
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsCfg.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	tracingCfg := middleware.DefaultTracingConfig()
	tracingCfg.Enabled = cfg.Telemetry.Enabled
	tracingCfg.ServiceName = cfg.Telemetry.ServiceName

	mode := gin.DebugMode
	if cfg.App.Env == "production" {
		mode = gin.ReleaseMode
	}

	httpEngine, err := router.NewEngine(router.EngineConfig{
		Mode:           mode,
		Tracing:        tracingCfg,
		CORS:           corsCfg,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		MetricsPath:    "/metrics",
	}, router.Dependencies{
		Capture:  handler.NewCaptureHandler(service),
		Health:   health,
		Metrics:  middleware.NewHTTPMetrics(registry, "capture"),
		Gatherer: registry,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        httpEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down server...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if jobs != nil {
		if err := jobs.Stop(shutdownCtx); err != nil {
			log.Warn("Scheduler did not stop cleanly", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("Server exited gracefully")
	return nil
}

// newCommerceSource builds the platform client, or a source that reports
// ErrPlatformNotConfigured when credentials are missing.
func newCommerceSource(cfg config.CommerceConfig, log *zap.Logger, observer ecommerce.RequestObserver) (integration.CommerceSource, func(), error) {
	if !cfg.Configured() {
		log.Warn("Commerce platform credentials missing, computations will fail until configured")
		return integration.UnconfiguredSource{}, func() {}, nil
	}

	clientCfg := ecommerce.NewCommerceConfig(cfg.BaseURL, cfg.AppID, cfg.AppKey, cfg.Tenant)
	clientCfg.PageSize = cfg.PageSize
	clientCfg.MaxPages = cfg.MaxPages
	clientCfg.RequestsPerSecond = cfg.RequestsPerSecond
	clientCfg.Burst = cfg.Burst
	clientCfg.MaxAttempts = cfg.MaxAttempts
	clientCfg.RateLimitBaseDelay = cfg.RateLimitBaseDelay
	clientCfg.RateLimitMaxDelay = cfg.RateLimitMaxDelay
	clientCfg.TransientBaseDelay = cfg.TransientBaseDelay
	clientCfg.Timeout = cfg.Timeout
	clientCfg.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	if cfg.BreakerFailureThreshold > 0 {
		clientCfg.BreakerFailureThreshold = uint32(cfg.BreakerFailureThreshold)
	}

	client, err := ecommerce.NewCommerceClient(clientCfg, log, ecommerce.WithObserver(observer))
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func shutdownTelemetry(log *zap.Logger, providers ...shutdowner) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, p := range providers {
		if err := p.Shutdown(ctx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}
}
