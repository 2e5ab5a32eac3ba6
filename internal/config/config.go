// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database access, request batching, the
// recommendation cache, upstream providers, rate limiting, and observability.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "relocation-gateway")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// BatchConfig tunes the client-side request coordinator.
type BatchConfig struct {
	Delay           time.Duration // BATCH_DELAY debounce window, restarted per enqueue
	MaxWait         time.Duration // BATCH_MAX_WAIT cap measured from the first pending request
	Cooldown        time.Duration // BATCH_COOLDOWN throttle after a successful identical request
	ClientCacheTTL  time.Duration // CLIENT_CACHE_TTL
	ClientCacheSize int           // CLIENT_CACHE_SIZE (LRU capacity)
}

// DispatchConfig tunes the server-side batch dispatcher.
type DispatchConfig struct {
	Concurrency       int           // DISPATCH_CONCURRENCY parallel downstream calls per batch
	DownstreamBaseURL string        // DOWNSTREAM_BASE_URL; empty dispatches in-process
	DownstreamTimeout time.Duration // DOWNSTREAM_TIMEOUT per downstream call
}

// GeoCacheConfig configures the persistent recommendation cache.
type GeoCacheConfig struct {
	ExploreTTL     time.Duration // GEO_CACHE_EXPLORE_TTL
	PopularTTL     time.Duration // GEO_CACHE_POPULAR_TTL
	GridSize       float64       // GEO_CACHE_GRID degrees per cell
	FuzzyScanLimit int           // GEO_CACHE_FUZZY_LIMIT rows scanned on fuzzy lookup
}

// ProvidersConfig holds upstream API settings.
type ProvidersConfig struct {
	PerplexityAPIKey   string
	PerplexityModel    string
	PerplexityURL      string
	NominatimURL       string
	NominatimUserAgent string
	GeocodeCacheTTL    time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Database
	DBDriver    string // sqlite|postgres
	DBPath      string // SQLite path
	DatabaseURL string // Postgres DSN
	AppVersion  string // cache key version prefix; empty disables versioning

	// Auth
	ServiceRoleKey string // bearer token for internal and admin routes
	AnonKey        string // bearer token accepted on public function routes

	// Rate limiting
	RateRPS        float64       // tokens per second (>= 0)
	RateBurst      int           // bucket size (>= 1)
	UserRateMax    int           // sliding window requests per user
	UserRateWindow time.Duration // sliding window length

	// Coordination layer
	Batch     BatchConfig
	Dispatch  DispatchConfig
	GeoCache  GeoCacheConfig
	Providers ProvidersConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL  time.Duration // how long a given Idempotency-Key is valid
	CleanupInterval time.Duration // CLEANUP_INTERVAL purge of expired rows; 0 disables

	// Observability
	OTEL OTELConfig
}

// TTLFor returns the persistent cache lifetime for recommendations generated
// in the given mode ("popular" or anything else, treated as "explore").
func (c GeoCacheConfig) TTLFor(mode string) time.Duration {
	if mode == "popular" {
		return c.PopularTTL
	}
	return c.ExploreTTL
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

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Database
		DBDriver:    strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:      getenv("DB_PATH", "app.db"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		AppVersion:  strings.TrimSpace(getenv("APP_VERSION", "")),

		// Auth
		ServiceRoleKey: getenv("SERVICE_ROLE_KEY", ""),
		AnonKey:        getenv("ANON_KEY", ""),

		// Rate limiting
		RateRPS:        getfloat("RATE_RPS", 5.0),
		RateBurst:      getint("RATE_BURST", 10),
		UserRateMax:    getint("USER_RATE_MAX", 10),
		UserRateWindow: getdur("USER_RATE_WINDOW", time.Minute),

		// Coordination layer
		Batch: BatchConfig{
			Delay:           getdur("BATCH_DELAY", 2*time.Second),
			MaxWait:         getdur("BATCH_MAX_WAIT", 5*time.Second),
			Cooldown:        getdur("BATCH_COOLDOWN", 5*time.Minute),
			ClientCacheTTL:  getdur("CLIENT_CACHE_TTL", 15*time.Minute),
			ClientCacheSize: getint("CLIENT_CACHE_SIZE", 1024),
		},
		Dispatch: DispatchConfig{
			Concurrency:       getint("DISPATCH_CONCURRENCY", 4),
			DownstreamBaseURL: strings.TrimRight(getenv("DOWNSTREAM_BASE_URL", ""), "/"),
			DownstreamTimeout: getdur("DOWNSTREAM_TIMEOUT", 30*time.Second),
		},
		GeoCache: GeoCacheConfig{
			ExploreTTL:     getdur("GEO_CACHE_EXPLORE_TTL", 180*24*time.Hour),
			PopularTTL:     getdur("GEO_CACHE_POPULAR_TTL", 7*24*time.Hour),
			GridSize:       getfloat("GEO_CACHE_GRID", 0.02),
			FuzzyScanLimit: getint("GEO_CACHE_FUZZY_LIMIT", 50),
		},
		Providers: ProvidersConfig{
			PerplexityAPIKey:   getenv("PERPLEXITY_API_KEY", ""),
			PerplexityModel:    getenv("PERPLEXITY_MODEL", "sonar"),
			PerplexityURL:      getenv("PERPLEXITY_URL", "https://api.perplexity.ai/chat/completions"),
			NominatimURL:       strings.TrimRight(getenv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"), "/"),
			NominatimUserAgent: getenv("NOMINATIM_USER_AGENT", "calmlysettled-gateway/1.0"),
			GeocodeCacheTTL:    getdur("GEOCODE_CACHE_TTL", 24*time.Hour),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL:  getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		CleanupInterval: getdur("CLEANUP_INTERVAL", time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "relocation-gateway"),
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
	if cfg.DBDriver == "postgresql" || cfg.DBDriver == "pg" {
		cfg.DBDriver = "postgres"
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
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL must be set when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.UserRateMax < 1 || cfg.UserRateWindow <= 0 {
		return cfg, errors.New("USER_RATE_MAX must be >= 1 and USER_RATE_WINDOW > 0")
	}
	if cfg.Batch.Delay <= 0 || cfg.Batch.MaxWait < cfg.Batch.Delay {
		return cfg, errors.New("BATCH_DELAY must be > 0 and BATCH_MAX_WAIT >= BATCH_DELAY")
	}
	if cfg.Batch.Cooldown < 0 || cfg.Batch.ClientCacheTTL <= 0 || cfg.Batch.ClientCacheSize < 1 {
		return cfg, errors.New("BATCH_COOLDOWN must be >= 0, CLIENT_CACHE_TTL > 0, CLIENT_CACHE_SIZE >= 1")
	}
	if cfg.Dispatch.Concurrency < 1 {
		return cfg, errors.New("DISPATCH_CONCURRENCY must be >= 1")
	}
	if cfg.Dispatch.DownstreamTimeout <= 0 {
		return cfg, errors.New("DOWNSTREAM_TIMEOUT must be > 0")
	}
	if cfg.GeoCache.ExploreTTL <= 0 || cfg.GeoCache.PopularTTL <= 0 {
		return cfg, errors.New("GEO_CACHE_*_TTL must be > 0")
	}
	if cfg.GeoCache.GridSize <= 0 || cfg.GeoCache.GridSize > 1 {
		return cfg, errors.New("GEO_CACHE_GRID must be in (0,1]")
	}
	if cfg.GeoCache.FuzzyScanLimit < 0 {
		return cfg, errors.New("GEO_CACHE_FUZZY_LIMIT must be >= 0")
	}
	if cfg.Providers.GeocodeCacheTTL <= 0 {
		return cfg, errors.New("GEOCODE_CACHE_TTL must be > 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.CleanupInterval < 0 {
		return cfg, errors.New("CLEANUP_INTERVAL must be >= 0")
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
