package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultGuestSKU is used when the settings store cannot supply a guest SKU list
const DefaultGuestSKU = "GUEST-COUNT"

// Config holds all application configuration
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Commerce  CommerceConfig
	Capture   CaptureConfig
	Scheduler SchedulerConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds settings store connection settings
type DatabaseConfig struct {
	Enabled         bool
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string // database name, or file path for sqlite
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CacheConfig holds metrics cache settings
type CacheConfig struct {
	TTL                   time.Duration
	CleanupInterval       time.Duration
	KeyPrefix             string
	AllowInMemoryFallback bool
}

// CommerceConfig holds the commerce platform API settings
type CommerceConfig struct {
	BaseURL                 string
	AppID                   string
	AppKey                  string
	Tenant                  string
	PageSize                int
	MaxPages                int
	RequestsPerSecond       float64
	Burst                   int
	MaxAttempts             int
	RateLimitBaseDelay      time.Duration
	RateLimitMaxDelay       time.Duration
	TransientBaseDelay      time.Duration
	Timeout                 time.Duration
	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration
}

// Configured reports whether credentials for the commerce platform are present
func (c CommerceConfig) Configured() bool {
	return c.BaseURL != "" && c.AppID != "" && c.AppKey != "" && c.Tenant != ""
}

// CaptureConfig holds metrics computation settings
type CaptureConfig struct {
	DefaultGuestSKU string
	WeddingTagID    string
	MatchThreshold  float64
	AttributionKey  string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// SchedulerConfig holds background job configuration
type SchedulerConfig struct {
	Enabled            bool
	CacheSweepInterval time.Duration
	JobTimeout         time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CAPTURE_ prefix (e.g., CAPTURE_COMMERCE_APP_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("CAPTURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that default to true need an explicit viper default,
	// otherwise an unset key is indistinguishable from false.
	v.SetDefault("database.enabled", true)
	v.SetDefault("cache.allow_in_memory_fallback", true)
	v.SetDefault("scheduler.enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Database: DatabaseConfig{
			Enabled:         v.GetBool("database.enabled"),
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Cache: CacheConfig{
			TTL:                   v.GetDuration("cache.ttl"),
			CleanupInterval:       v.GetDuration("cache.cleanup_interval"),
			KeyPrefix:             v.GetString("cache.key_prefix"),
			AllowInMemoryFallback: v.GetBool("cache.allow_in_memory_fallback"),
		},
		Commerce: CommerceConfig{
			BaseURL:                 v.GetString("commerce.base_url"),
			AppID:                   v.GetString("commerce.app_id"),
			AppKey:                  v.GetString("commerce.app_key"),
			Tenant:                  v.GetString("commerce.tenant"),
			PageSize:                v.GetInt("commerce.page_size"),
			MaxPages:                v.GetInt("commerce.max_pages"),
			RequestsPerSecond:       v.GetFloat64("commerce.requests_per_second"),
			Burst:                   v.GetInt("commerce.burst"),
			MaxAttempts:             v.GetInt("commerce.max_attempts"),
			RateLimitBaseDelay:      v.GetDuration("commerce.rate_limit_base_delay"),
			RateLimitMaxDelay:       v.GetDuration("commerce.rate_limit_max_delay"),
			TransientBaseDelay:      v.GetDuration("commerce.transient_base_delay"),
			Timeout:                 v.GetDuration("commerce.timeout"),
			BreakerFailureThreshold: v.GetInt("commerce.breaker_failure_threshold"),
			BreakerOpenTimeout:      v.GetDuration("commerce.breaker_open_timeout"),
		},
		Capture: CaptureConfig{
			DefaultGuestSKU: v.GetString("capture.default_guest_sku"),
			WeddingTagID:    v.GetString("capture.wedding_tag_id"),
			MatchThreshold:  v.GetFloat64("capture.match_threshold"),
			AttributionKey:  v.GetString("capture.attribution_key"),
		},
		Scheduler: SchedulerConfig{
			Enabled:            v.GetBool("scheduler.enabled"),
			CacheSweepInterval: v.GetDuration("scheduler.cache_sweep_interval"),
			JobTimeout:         v.GetDuration("scheduler.job_timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "capture-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	// Metrics computations over a cold cache page through the platform API.
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 10 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	// CORS origins are intentionally left empty: no cross-origin requests until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "capture"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 48 * time.Hour
	}
	if cfg.Cache.CleanupInterval == 0 {
		cfg.Cache.CleanupInterval = time.Hour
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "capture:metrics:"
	}
	if cfg.Commerce.PageSize == 0 {
		cfg.Commerce.PageSize = 50
	}
	if cfg.Commerce.MaxPages == 0 {
		cfg.Commerce.MaxPages = 100
	}
	if cfg.Commerce.RequestsPerSecond == 0 {
		cfg.Commerce.RequestsPerSecond = 2
	}
	if cfg.Commerce.Burst == 0 {
		cfg.Commerce.Burst = 1
	}
	if cfg.Commerce.MaxAttempts == 0 {
		cfg.Commerce.MaxAttempts = 5
	}
	if cfg.Commerce.RateLimitBaseDelay == 0 {
		cfg.Commerce.RateLimitBaseDelay = time.Second
	}
	if cfg.Commerce.RateLimitMaxDelay == 0 {
		cfg.Commerce.RateLimitMaxDelay = 30 * time.Second
	}
	if cfg.Commerce.TransientBaseDelay == 0 {
		cfg.Commerce.TransientBaseDelay = 500 * time.Millisecond
	}
	if cfg.Commerce.Timeout == 0 {
		cfg.Commerce.Timeout = 30 * time.Second
	}
	if cfg.Commerce.BreakerFailureThreshold == 0 {
		cfg.Commerce.BreakerFailureThreshold = 10
	}
	if cfg.Commerce.BreakerOpenTimeout == 0 {
		cfg.Commerce.BreakerOpenTimeout = 30 * time.Second
	}
	if cfg.Capture.DefaultGuestSKU == "" {
		cfg.Capture.DefaultGuestSKU = DefaultGuestSKU
	}
	if cfg.Capture.MatchThreshold == 0 {
		cfg.Capture.MatchThreshold = 85
	}
	if cfg.Capture.AttributionKey == "" {
		cfg.Capture.AttributionKey = "attribution"
	}
	if cfg.Scheduler.CacheSweepInterval == 0 {
		cfg.Scheduler.CacheSweepInterval = cfg.Cache.CleanupInterval
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 5 * time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 15 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl cannot be negative")
	}
	if c.Cache.CleanupInterval < 0 {
		return fmt.Errorf("cache.cleanup_interval cannot be negative")
	}

	if c.Commerce.PageSize < 0 || c.Commerce.PageSize > 50 {
		return fmt.Errorf("commerce.page_size must be between 1 and 50, got %d", c.Commerce.PageSize)
	}
	if c.Commerce.MaxPages < 0 {
		return fmt.Errorf("commerce.max_pages cannot be negative")
	}
	if c.Commerce.RequestsPerSecond < 0 {
		return fmt.Errorf("commerce.requests_per_second cannot be negative")
	}
	if c.Commerce.BaseURL != "" {
		u, err := url.Parse(c.Commerce.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("commerce.base_url must be an absolute URL, got %q", c.Commerce.BaseURL)
		}
	}

	if c.Capture.MatchThreshold < 0 || c.Capture.MatchThreshold > 100 {
		return fmt.Errorf("capture.match_threshold must be between 0 and 100, got %f", c.Capture.MatchThreshold)
	}

	if c.App.Env == "production" {
		if !c.Commerce.Configured() {
			return fmt.Errorf("commerce.base_url, app_id, app_key and tenant are required in production")
		}
		if c.Database.Enabled && c.Database.Driver == "postgres" {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.DBName
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// IsProduction reports whether the app runs in the production environment
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
