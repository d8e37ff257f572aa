// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database and Redis wiring, admission
// limits, payment verification, model routing and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/tbourn/go-forecast-backend/internal/sysutil"
)

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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-forecast-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and locates the relational store.
type DBConfig struct {
	Driver      string // sqlite|postgres
	Path        string // SQLite path
	PostgresDSN string // DATABASE_URL
}

// RedisConfig locates the optional shared-state store. An empty Addr keeps
// all shared state in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AdmissionConfig bounds free-tier generation traffic.
type AdmissionConfig struct {
	BurstLimit      int
	BurstWindow     time.Duration
	DailyIPLimit    int
	DailyDevLimit   int
	DailyWindow     time.Duration
	CaptchaAfter    int // IP daily count above which captcha is required
	SpikeWindow     time.Duration
	SpikeThreshold  int
	MaxTrackedKeys  int
	FreeBodyLimit   int64
	PaidBodyLimit   int64
	PaidPerMinute   float64 // per-IP token bucket on the paid endpoint
	LookupPerMinute float64 // per-IP token bucket on retrieval
}

// DefaultPaymentMinAmount is the smallest amount a card checkout can capture.
// Set PAYMENT_MIN_AMOUNT to the product price in production; 0 disables the
// check.
const DefaultPaymentMinAmount = 50

// PaymentConfig tunes session verification.
type PaymentConfig struct {
	MaxAge          time.Duration
	MinAmount       int64 // smallest currency unit
	ExpectedPriceID string
	ReplayBackend   string // memory|redis|db
	ReplayRetention time.Duration
}

// LLMConfig routes generation calls.
type LLMConfig struct {
	BaseURL        string
	FreeModel      string
	PrimaryModel   string
	FallbackModel  string
	MaxAttempts    int
	InitialBackoff time.Duration
	Timeout        time.Duration
}

// ChartConfig locates the birth-chart service.
type ChartConfig struct {
	URL     string
	Timeout time.Duration
}

// AbuseConfig sets the hourly alert thresholds.
type AbuseConfig struct {
	FreeHourlyThreshold int
	PaidHourlyThreshold int
	Cooldown            time.Duration
}

// Secrets holds provider credentials. They are bound with envconfig and
// never logged.
type Secrets struct {
	OpenAIKey       string `envconfig:"OPENAI_API_KEY"`
	StripeSecretKey string `envconfig:"STRIPE_SECRET_KEY"`
	ChartAPIKey     string `envconfig:"CHART_API_KEY"`
	TurnstileSecret string `envconfig:"TURNSTILE_SECRET_KEY"`
	AdminToken      string `envconfig:"ADMIN_TOKEN"`
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // must cover retries + fallback
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	DB    DBConfig
	Redis RedisConfig

	Admission AdmissionConfig
	Payment   PaymentConfig
	LLM       LLMConfig
	Chart     ChartConfig
	Abuse     AbuseConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig

	Secrets Secrets
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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver:      strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:        getenv("DB_PATH", "app.db"),
			PostgresDSN: getenv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		Admission: AdmissionConfig{
			BurstLimit:      getint("BURST_LIMIT", 1),
			BurstWindow:     getdur("BURST_WINDOW", 60*time.Second),
			DailyIPLimit:    getint("DAILY_IP_LIMIT", 10),
			DailyDevLimit:   getint("DAILY_DEVICE_LIMIT", 10),
			DailyWindow:     getdur("DAILY_WINDOW", 24*time.Hour),
			CaptchaAfter:    getint("CAPTCHA_AFTER", 5),
			SpikeWindow:     getdur("SPIKE_WINDOW", 5*time.Minute),
			SpikeThreshold:  getint("SPIKE_THRESHOLD", 100),
			MaxTrackedKeys:  getint("MAX_TRACKED_KEYS", 10000),
			FreeBodyLimit:   int64(getint("FREE_BODY_LIMIT", 5000)),
			PaidBodyLimit:   int64(getint("PAID_BODY_LIMIT", 10000)),
			PaidPerMinute:   getfloat("PAID_RATE_PER_MINUTE", 2),
			LookupPerMinute: getfloat("LOOKUP_RATE_PER_MINUTE", 20),
		},
		Payment: PaymentConfig{
			MaxAge:          getdur("PAYMENT_MAX_AGE", time.Hour),
			MinAmount:       int64(getint("PAYMENT_MIN_AMOUNT", DefaultPaymentMinAmount)),
			ExpectedPriceID: getenv("STRIPE_EXPECTED_PRICE_ID", ""),
			ReplayBackend:   strings.ToLower(getenv("REPLAY_BACKEND", "")),
			ReplayRetention: getdur("REPLAY_RETENTION", 30*24*time.Hour),
		},
		LLM: LLMConfig{
			BaseURL:        strings.TrimRight(getenv("LLM_BASE_URL", "https://api.openai.com"), "/"),
			FreeModel:      getenv("LLM_FREE_MODEL", "gpt-4.1-mini"),
			PrimaryModel:   getenv("LLM_PRIMARY_MODEL", "gpt-5-2025-08-07"),
			FallbackModel:  getenv("LLM_FALLBACK_MODEL", "gpt-5-mini-2025-08-07"),
			MaxAttempts:    getint("LLM_MAX_ATTEMPTS", 3),
			InitialBackoff: getdur("LLM_INITIAL_BACKOFF", time.Second),
			Timeout:        getdur("LLM_TIMEOUT", 25*time.Second),
		},
		Chart: ChartConfig{
			URL:     getenv("CHART_API_URL", ""),
			Timeout: getdur("CHART_TIMEOUT", 10*time.Second),
		},
		Abuse: AbuseConfig{
			FreeHourlyThreshold: getint("ABUSE_FREE_HOURLY_THRESHOLD", 50),
			PaidHourlyThreshold: getint("ABUSE_PAID_HOURLY_THRESHOLD", 20),
			Cooldown:            getdur("ABUSE_ALERT_COOLDOWN", time.Hour),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-forecast-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if err := envconfig.Process("", &cfg.Secrets); err != nil {
		return cfg, err
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
	if cfg.Payment.ReplayBackend == "" {
		cfg.Payment.ReplayBackend = "memory"
		if cfg.Redis.Addr != "" {
			cfg.Payment.ReplayBackend = "redis"
		}
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
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.PostgresDSN) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be sqlite or postgres")
	}
	switch cfg.Payment.ReplayBackend {
	case "memory", "db":
	case "redis":
		if cfg.Redis.Addr == "" {
			return cfg, errors.New("REPLAY_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return cfg, errors.New("REPLAY_BACKEND must be memory, redis or db")
	}
	a := cfg.Admission
	if a.BurstLimit < 1 || a.DailyIPLimit < 1 || a.DailyDevLimit < 1 {
		return cfg, errors.New("admission limits must be >= 1")
	}
	if a.BurstWindow <= 0 || a.DailyWindow <= 0 || a.SpikeWindow <= 0 {
		return cfg, errors.New("admission windows must be positive durations")
	}
	if a.FreeBodyLimit <= 0 || a.PaidBodyLimit <= 0 {
		return cfg, errors.New("body limits must be > 0")
	}
	if a.PaidPerMinute <= 0 || a.LookupPerMinute <= 0 {
		return cfg, errors.New("per-minute rates must be > 0")
	}
	if cfg.Payment.MaxAge <= 0 {
		return cfg, errors.New("PAYMENT_MAX_AGE must be > 0")
	}
	if cfg.Payment.MinAmount < 0 {
		return cfg, errors.New("PAYMENT_MIN_AMOUNT must be >= 0")
	}
	if cfg.LLM.MaxAttempts < 1 {
		return cfg, errors.New("LLM_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.LLM.InitialBackoff < 0 || cfg.LLM.Timeout <= 0 {
		return cfg, errors.New("LLM_INITIAL_BACKOFF must be >= 0 and LLM_TIMEOUT > 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

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
	v, ok := os.LookupEnv(k)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	if b, ok := sysutil.ParseBool(v); ok {
		return b
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
