// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the database, authentication, the claim
// coordinator, caching, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool          `env:"ENABLE_HSTS" envDefault:"false"`
	HSTSMaxAge time.Duration `env:"HSTS_MAX_AGE" envDefault:"4320h"`
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	Insecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ServiceName string  `env:"OTEL_SERVICE_NAME" envDefault:"go-discount-backend"`
	SampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"1.0"`
}

// DBConfig selects and locates the relational store.
type DBConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite|postgres
	DSN    string `env:"DB_DSN"`                        // postgres DSN, or sqlite file/DSN override
	Path   string `env:"DB_PATH" envDefault:"discounts.db"`
}

// AuthConfig holds JWT settings.
type AuthConfig struct {
	Secret        string        `env:"JWT_SECRET"`
	Issuer        string        `env:"JWT_ISSUER" envDefault:"go-discount-backend"`
	TokenTTL      time.Duration `env:"JWT_TTL" envDefault:"1h"`
	TokenEndpoint bool          `env:"AUTH_TOKEN_ENDPOINT" envDefault:"false"` // expose POST /auth/token
}

// ClaimConfig tunes the claim coordinator and its route.
type ClaimConfig struct {
	LockTimeout  time.Duration `env:"CLAIM_LOCK_TIMEOUT" envDefault:"2s"`
	MaxAttempts  int           `env:"CLAIM_MAX_ATTEMPTS" envDefault:"3"`
	RetryBackoff time.Duration `env:"CLAIM_RETRY_BACKOFF" envDefault:"25ms"`
	RateRPS      float64       `env:"CLAIM_RATE_RPS" envDefault:"1"`
	RateBurst    int           `env:"CLAIM_RATE_BURST" envDefault:"3"`
}

// CacheConfig configures the optional Redis catalog cache.
type CacheConfig struct {
	RedisAddr string        `env:"REDIS_ADDR"` // empty disables caching
	TTL       time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"5s"`
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        `env:"PORT" envDefault:"8080"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT" envDefault:"20s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxHeaderBytes    int           `env:"MAX_HEADER_BYTES" envDefault:"1048576"`
	MaxBodyBytes      int64         `env:"MAX_BODY_BYTES" envDefault:"65536"`

	// GinMode is debug, release or test.
	GinMode string `env:"GIN_MODE" envDefault:"release"`

	// H2C serves HTTP/2 without TLS.
	H2C bool `env:"H2C_ENABLED" envDefault:"false"`

	// Logging / Docs
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty      bool   `env:"LOG_PRETTY" envDefault:"false"`
	SwaggerEnabled bool   `env:"SWAGGER_ENABLED" envDefault:"false"`
	APIBasePath    string `env:"API_BASE_PATH" envDefault:"/api/v1"`

	DB    DBConfig
	Auth  AuthConfig
	Claim ClaimConfig
	Cache CacheConfig

	// Rate limiting (per authenticated caller, or client IP on the token endpoint)
	RateRPS   float64 `env:"RATE_RPS" envDefault:"5"`
	RateBurst int     `env:"RATE_BURST" envDefault:"10"`

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

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
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	// --- normalization ---
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	cfg.GinMode = strings.ToLower(strings.TrimSpace(cfg.GinMode))
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.APIBasePath = normalizeBasePath(cfg.APIBasePath)
	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pgx" {
		cfg.DB.Driver = "postgres"
	}
	cfg.CORS.AllowedOrigins = trimAll(cfg.CORS.AllowedOrigins)

	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be > 0")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.MaxBodyBytes <= 0 {
		return errors.New("MAX_BODY_BYTES must be > 0")
	}

	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" && strings.TrimSpace(cfg.DB.DSN) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return errors.New("DB_DSN is required when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}

	if len(cfg.Auth.Secret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 bytes")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return errors.New("JWT_TTL must be > 0")
	}

	if cfg.Claim.LockTimeout <= 0 {
		return errors.New("CLAIM_LOCK_TIMEOUT must be > 0")
	}
	if cfg.Claim.MaxAttempts < 1 {
		return errors.New("CLAIM_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Claim.RetryBackoff <= 0 {
		return errors.New("CLAIM_RETRY_BACKOFF must be > 0")
	}
	if cfg.Claim.RateRPS < 0 || cfg.RateRPS < 0 {
		return errors.New("RATE_RPS and CLAIM_RATE_RPS must be >= 0")
	}
	if cfg.Claim.RateBurst < 1 || cfg.RateBurst < 1 {
		return errors.New("RATE_BURST and CLAIM_RATE_BURST must be >= 1")
	}
	if cfg.Cache.TTL <= 0 {
		return errors.New("CATALOG_CACHE_TTL must be > 0")
	}

	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// DatabaseDSN returns what repo.Open expects for the configured driver.
func (cfg Config) DatabaseDSN() string {
	if cfg.DB.Driver == "sqlite" && strings.TrimSpace(cfg.DB.DSN) == "" {
		return cfg.DB.Path
	}
	return cfg.DB.DSN
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		if t := strings.TrimSpace(p); t != "" {
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
