// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// logging, persistence paths, the Redis-backed order-lookup rate limiter,
// LLM routing/retry budgets, and conversation-flow tuning constants.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-chatbot-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RateLimitConfig defines the sliding-window limiter that protects the
// external order-lookup backend. Each dimension carries its own cap inside
// one shared window. An empty RedisAddr disables the limiter (fail open).
type RateLimitConfig struct {
	Enabled   bool          // ORDER_RL_ENABLED
	RedisAddr string        // ORDER_RL_REDIS_ADDR (host:port)
	RedisDB   int           // ORDER_RL_REDIS_DB
	Window    time.Duration // ORDER_RL_WINDOW (sliding window length)
	MaxPerIP  int           // ORDER_RL_MAX_IP
	MaxPerUsr int           // ORDER_RL_MAX_USER
	MaxPerOrd int           // ORDER_RL_MAX_ORDER
	Timeout   time.Duration // ORDER_RL_TIMEOUT (per Redis call)
}

// LLMConfig defines the model router tiers and the call-layer budgets.
type LLMConfig struct {
	BaseURL        string        // LLM_BASE_URL
	APIKey         string        // LLM_API_KEY
	EconomyModel   string        // LLM_ECONOMY_MODEL
	ReasoningModel string        // LLM_REASONING_MODEL
	Timeout        time.Duration // LLM_TIMEOUT (per call)
	MaxAttempts    int           // LLM_MAX_ATTEMPTS (schema/429 retries)
	RetryBaseDelay time.Duration // LLM_RETRY_BASE_DELAY
	ComplexLength  int           // LLM_COMPLEX_LENGTH (chars implying reasoning tier)
}

// OrderLookupConfig defines the HMAC-signed order backend client.
type OrderLookupConfig struct {
	BaseURL     string        // ORDERS_BASE_URL
	KeyID       string        // ORDERS_KEY_ID
	Secret      string        // ORDERS_SECRET
	Timeout     time.Duration // ORDERS_TIMEOUT (per call)
	MaxAttempts int           // ORDERS_MAX_ATTEMPTS (429 retries)
}

// CatalogConfig defines the local product index served to the
// recommendations flow. An empty DataPath starts with an empty index.
type CatalogConfig struct {
	DataPath   string  // CATALOG_DATA_PATH (JSON product dump)
	MaxResults int     // CATALOG_MAX_RESULTS (per search)
	MinScore   float64 // CATALOG_MIN_SCORE (similarity cutoff in [0..1])
}

// FlowConfig holds conversation-flow tuning constants. These are business
// knobs, not invariants, so they stay configurable.
type FlowConfig struct {
	MemoryFreshness  time.Duration // FLOW_MEMORY_FRESHNESS (recommendations snapshot age cap)
	ManyCandidates   int           // FLOW_MANY_CANDIDATES (disambiguation cutoff)
	SnapshotMaxItems int           // FLOW_SNAPSHOT_MAX_ITEMS (catalog items kept per bot turn)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool
	APIBasePath string

	// App
	DBPath string // SQLite path

	// Edge rate limiting (HTTP token bucket, per user/IP)
	RateRPS   float64
	RateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Event intake
	IdempotencyTTL time.Duration // how long a processed event receipt is replayable

	// Core subsystems
	RateLimit   RateLimitConfig
	LLM         LLMConfig
	OrderLookup OrderLookupConfig
	Catalog     CatalogConfig
	Flow        FlowConfig

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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "app.db"),

		// Edge rate limiting
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

		// Event intake
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Order-lookup protection
		RateLimit: RateLimitConfig{
			Enabled:   getbool("ORDER_RL_ENABLED", true),
			RedisAddr: getenv("ORDER_RL_REDIS_ADDR", ""),
			RedisDB:   getint("ORDER_RL_REDIS_DB", 0),
			Window:    getdur("ORDER_RL_WINDOW", 15*time.Minute),
			MaxPerIP:  getint("ORDER_RL_MAX_IP", 8),
			MaxPerUsr: getint("ORDER_RL_MAX_USER", 6),
			MaxPerOrd: getint("ORDER_RL_MAX_ORDER", 4),
			Timeout:   getdur("ORDER_RL_TIMEOUT", 500*time.Millisecond),
		},

		// LLM call layer
		LLM: LLMConfig{
			BaseURL:        getenv("LLM_BASE_URL", "https://api.openai.com"),
			APIKey:         getenv("LLM_API_KEY", ""),
			EconomyModel:   getenv("LLM_ECONOMY_MODEL", "gpt-4o-mini"),
			ReasoningModel: getenv("LLM_REASONING_MODEL", "gpt-4o"),
			Timeout:        getdur("LLM_TIMEOUT", 30*time.Second),
			MaxAttempts:    getint("LLM_MAX_ATTEMPTS", 3),
			RetryBaseDelay: getdur("LLM_RETRY_BASE_DELAY", 400*time.Millisecond),
			ComplexLength:  getint("LLM_COMPLEX_LENGTH", 280),
		},

		// Order backend
		OrderLookup: OrderLookupConfig{
			BaseURL:     getenv("ORDERS_BASE_URL", ""),
			KeyID:       getenv("ORDERS_KEY_ID", ""),
			Secret:      getenv("ORDERS_SECRET", ""),
			Timeout:     getdur("ORDERS_TIMEOUT", 10*time.Second),
			MaxAttempts: getint("ORDERS_MAX_ATTEMPTS", 3),
		},

		// Product catalog
		Catalog: CatalogConfig{
			DataPath:   getenv("CATALOG_DATA_PATH", ""),
			MaxResults: getint("CATALOG_MAX_RESULTS", 12),
			MinScore:   getfloat("CATALOG_MIN_SCORE", 0.08),
		},

		// Flow tuning
		Flow: FlowConfig{
			MemoryFreshness:  getdur("FLOW_MEMORY_FRESHNESS", 5*time.Minute),
			ManyCandidates:   getint("FLOW_MANY_CANDIDATES", 6),
			SnapshotMaxItems: getint("FLOW_SNAPSHOT_MAX_ITEMS", 5),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-chatbot-backend"),
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
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
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
	if cfg.RateLimit.Window <= 0 {
		return cfg, errors.New("ORDER_RL_WINDOW must be > 0")
	}
	if cfg.RateLimit.MaxPerIP < 1 || cfg.RateLimit.MaxPerUsr < 1 || cfg.RateLimit.MaxPerOrd < 1 {
		return cfg, errors.New("ORDER_RL_MAX_* must be >= 1")
	}
	if cfg.RateLimit.Timeout <= 0 {
		return cfg, errors.New("ORDER_RL_TIMEOUT must be > 0")
	}
	if cfg.LLM.MaxAttempts < 1 {
		return cfg, errors.New("LLM_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.LLM.Timeout <= 0 {
		return cfg, errors.New("LLM_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.LLM.EconomyModel) == "" || strings.TrimSpace(cfg.LLM.ReasoningModel) == "" {
		return cfg, errors.New("LLM model tiers must not be empty")
	}
	if cfg.OrderLookup.MaxAttempts < 1 {
		return cfg, errors.New("ORDERS_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.OrderLookup.Timeout <= 0 {
		return cfg, errors.New("ORDERS_TIMEOUT must be > 0")
	}
	if cfg.Catalog.MaxResults < 1 {
		return cfg, errors.New("CATALOG_MAX_RESULTS must be >= 1")
	}
	if cfg.Catalog.MinScore < 0 || cfg.Catalog.MinScore > 1 {
		return cfg, errors.New("CATALOG_MIN_SCORE must be in [0,1]")
	}
	if cfg.Flow.MemoryFreshness <= 0 {
		return cfg, errors.New("FLOW_MEMORY_FRESHNESS must be > 0")
	}
	if cfg.Flow.ManyCandidates < 2 {
		return cfg, errors.New("FLOW_MANY_CANDIDATES must be >= 2")
	}
	if cfg.Flow.SnapshotMaxItems < 1 {
		return cfg, errors.New("FLOW_SNAPSHOT_MAX_ITEMS must be >= 1")
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
