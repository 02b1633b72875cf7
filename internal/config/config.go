// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// MinJWTSecretLength is the minimum HS256 signing secret length in bytes.
const MinJWTSecretLength = 32

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the Redis URL used by the rate limiter (e.g. redis://localhost:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`

	// JWTSecret is the HS256 signing secret shared by every API process.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim written into every token.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAccessTTL is the access token lifetime (e.g. "1h").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "24h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// RateLimitEnabled turns the rate limit middleware on or off.
	RateLimitEnabled bool `mapstructure:"RATE_LIMIT_ENABLED"`
	// RateLimitFailOpen lets requests through when Redis is unreachable; false rejects them with 429.
	RateLimitFailOpen bool `mapstructure:"RATE_LIMIT_FAIL_OPEN"`
	// RateLimitPerMinute, RateLimitPerHour and RateLimitPerDay are the defaults for endpoints without a rule.
	RateLimitPerMinute int `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	RateLimitPerHour   int `mapstructure:"RATE_LIMIT_PER_HOUR"`
	RateLimitPerDay    int `mapstructure:"RATE_LIMIT_PER_DAY"`
	// RateLimitRulesFile is an optional YAML file replacing the built-in endpoint rules.
	RateLimitRulesFile string `mapstructure:"RATE_LIMIT_RULES_FILE"`
	// RateLimitTrustProxy enables client IP resolution from proxy headers.
	RateLimitTrustProxy bool `mapstructure:"RATE_LIMIT_TRUST_PROXY"`

	// AuthzPolicyFile is an optional Rego module replacing the built-in role policy (package agenda.authz).
	AuthzPolicyFile string `mapstructure:"AUTHZ_POLICY_FILE"`

	// SessionSweepInterval is how often the worker deactivates expired sessions (e.g. "15m").
	SessionSweepInterval string `mapstructure:"SESSION_SWEEP_INTERVAL"`

	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogDev switches to the human-readable development encoder.
	LogDev bool `mapstructure:"LOG_DEV"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables trace and metric export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "minha-agenda")
	v.SetDefault("JWT_ACCESS_TTL", "1h")
	v.SetDefault("JWT_REFRESH_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_FAIL_OPEN", true)
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 60)
	v.SetDefault("RATE_LIMIT_PER_HOUR", 1000)
	v.SetDefault("RATE_LIMIT_PER_DAY", 10000)
	v.SetDefault("RATE_LIMIT_RULES_FILE", "")
	v.SetDefault("RATE_LIMIT_TRUST_PROXY", true)
	v.SetDefault("AUTHZ_POLICY_FILE", "")
	v.SetDefault("SESSION_SWEEP_INTERVAL", "15m")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEV", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.RateLimitPerMinute <= 0 || cfg.RateLimitPerHour <= 0 || cfg.RateLimitPerDay <= 0 {
		return nil, errors.New("config: RATE_LIMIT_PER_MINUTE, RATE_LIMIT_PER_HOUR and RATE_LIMIT_PER_DAY must be positive")
	}

	if cfg.Env == "production" && cfg.LogDev {
		return nil, errors.New("config: LOG_DEV must not be true when APP_ENV=production")
	}

	return &cfg, nil
}

// ValidateAuth checks the settings the token codec needs. Binaries that mint or verify tokens call it after Load.
func (c *Config) ValidateAuth() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must be set")
	}
	if len(c.JWTSecret) < MinJWTSecretLength {
		return errors.New("config: JWT_SECRET must be at least 32 bytes")
	}
	return nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, time.Hour)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return parseDuration(c.JWTRefreshTTL, 24*time.Hour)
}

// SweepInterval parses SessionSweepInterval. Returns 15m if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.SessionSweepInterval, 15*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
