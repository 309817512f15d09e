// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, persistence backend selection, submission
// queue tuning, deletion lifecycle windows, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// StoreConfig selects and parameterizes the persistence backend. Both
// backends implement the identical store contract; swapping them must be
// invisible to every other component.
type StoreConfig struct {
	Backend     string // STORE_BACKEND: "sqlite" | "postgres"
	SQLitePath  string // SQLITE_PATH (backend "sqlite")
	PostgresDSN string // POSTGRES_DSN (backend "postgres")
}

// QueueConfig tunes the durable submission retry queue and its background
// processor pool.
type QueueConfig struct {
	MaxRetries     int           // QUEUE_MAX_RETRIES (default 3)
	PollInterval   time.Duration // QUEUE_POLL_INTERVAL (default 1s)
	BatchSize      int           // QUEUE_BATCH_SIZE (default 25)
	AttemptTimeout time.Duration // QUEUE_ATTEMPT_TIMEOUT (default 30s), also the lock lease
	Workers        int           // QUEUE_WORKERS (default 2)
	ItemTTL        time.Duration // QUEUE_ITEM_TTL (default 168h)
}

// DeletionConfig tunes the GDPR deletion lifecycle.
type DeletionConfig struct {
	GracePeriod   time.Duration // DELETION_GRACE_PERIOD (default 720h = 30 days)
	SweepInterval time.Duration // DELETION_SWEEP_INTERVAL (default 1h)
}

// SessionConfig tunes concurrent-session collision detection.
type SessionConfig struct {
	ActivityWindow time.Duration // SESSION_ACTIVITY_WINDOW (default 30m)
}

// GatewayConfig points at the external HR backend.
type GatewayConfig struct {
	BaseURL    string        // HR_BASE_URL
	APIKey     string        // HR_API_KEY (static source for the pull-refreshed cache)
	APIKeyTTL  time.Duration // HR_API_KEY_TTL (default 15m)
	HTTPTimeout time.Duration // HR_HTTP_TIMEOUT (default 30s)
}

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-timeclock-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // must exceed the stream attempt window
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App subsystems
	Store    StoreConfig
	Queue    QueueConfig
	Deletion DeletionConfig
	Session  SessionConfig
	Gateway  GatewayConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Persistence
		Store: StoreConfig{
			Backend:     strings.ToLower(getenv("STORE_BACKEND", "sqlite")),
			SQLitePath:  getenv("SQLITE_PATH", "app.db"),
			PostgresDSN: getenv("POSTGRES_DSN", ""),
		},

		// Submission queue
		Queue: QueueConfig{
			MaxRetries:     getint("QUEUE_MAX_RETRIES", 3),
			PollInterval:   getdur("QUEUE_POLL_INTERVAL", time.Second),
			BatchSize:      getint("QUEUE_BATCH_SIZE", 25),
			AttemptTimeout: getdur("QUEUE_ATTEMPT_TIMEOUT", 30*time.Second),
			Workers:        getint("QUEUE_WORKERS", 2),
			ItemTTL:        getdur("QUEUE_ITEM_TTL", 7*24*time.Hour),
		},

		// Deletion lifecycle
		Deletion: DeletionConfig{
			GracePeriod:   getdur("DELETION_GRACE_PERIOD", 30*24*time.Hour),
			SweepInterval: getdur("DELETION_SWEEP_INTERVAL", time.Hour),
		},

		// Session collision detection
		Session: SessionConfig{
			ActivityWindow: getdur("SESSION_ACTIVITY_WINDOW", 30*time.Minute),
		},

		// External HR gateway
		Gateway: GatewayConfig{
			BaseURL:     getenv("HR_BASE_URL", "http://localhost:9090"),
			APIKey:      getenv("HR_API_KEY", ""),
			APIKeyTTL:   getdur("HR_API_KEY_TTL", 15*time.Minute),
			HTTPTimeout: getdur("HR_HTTP_TIMEOUT", 30*time.Second),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-timeclock-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.Store.Backend {
	case "sqlite":
		if strings.TrimSpace(cfg.Store.SQLitePath) == "" {
			return cfg, errors.New("SQLITE_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Store.PostgresDSN) == "" {
			return cfg, errors.New("POSTGRES_DSN must not be empty when STORE_BACKEND=postgres")
		}
	default:
		return cfg, errors.New("STORE_BACKEND must be one of: sqlite, postgres")
	}
	if cfg.Queue.MaxRetries < 0 {
		return cfg, errors.New("QUEUE_MAX_RETRIES must be >= 0")
	}
	if cfg.Queue.PollInterval <= 0 || cfg.Queue.AttemptTimeout <= 0 || cfg.Queue.ItemTTL <= 0 {
		return cfg, errors.New("queue intervals must be positive durations")
	}
	if cfg.Queue.BatchSize < 1 {
		return cfg, errors.New("QUEUE_BATCH_SIZE must be >= 1")
	}
	if cfg.Queue.Workers < 1 {
		return cfg, errors.New("QUEUE_WORKERS must be >= 1")
	}
	if cfg.Deletion.GracePeriod <= 0 || cfg.Deletion.SweepInterval <= 0 {
		return cfg, errors.New("deletion windows must be positive durations")
	}
	if cfg.Session.ActivityWindow <= 0 {
		return cfg, errors.New("SESSION_ACTIVITY_WINDOW must be > 0")
	}
	if strings.TrimSpace(cfg.Gateway.BaseURL) == "" {
		return cfg, errors.New("HR_BASE_URL must not be empty")
	}
	if cfg.Gateway.APIKeyTTL <= 0 || cfg.Gateway.HTTPTimeout <= 0 {
		return cfg, errors.New("gateway durations must be positive")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
