package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q, want default", cfg.RedisURL)
	}
	if cfg.JWTIssuer != "minha-agenda" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "minha-agenda")
	}
	if cfg.JWTAccessTTL != "1h" {
		t.Errorf("JWTAccessTTL = %q, want %q", cfg.JWTAccessTTL, "1h")
	}
	if cfg.JWTRefreshTTL != "24h" {
		t.Errorf("JWTRefreshTTL = %q, want %q", cfg.JWTRefreshTTL, "24h")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if !cfg.RateLimitEnabled {
		t.Error("RateLimitEnabled should default to true")
	}
	if !cfg.RateLimitFailOpen {
		t.Error("RateLimitFailOpen should default to true")
	}
	if cfg.RateLimitPerMinute != 60 || cfg.RateLimitPerHour != 1000 || cfg.RateLimitPerDay != 10000 {
		t.Errorf("rate limit defaults = %d/%d/%d, want 60/1000/10000",
			cfg.RateLimitPerMinute, cfg.RateLimitPerHour, cfg.RateLimitPerDay)
	}
	if !cfg.RateLimitTrustProxy {
		t.Error("RateLimitTrustProxy should default to true")
	}
	if cfg.AuthzPolicyFile != "" {
		t.Errorf("AuthzPolicyFile = %q, want empty", cfg.AuthzPolicyFile)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "14")
	os.Setenv("RATE_LIMIT_FAIL_OPEN", "false")
	os.Setenv("RATE_LIMIT_PER_MINUTE", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
	if cfg.RateLimitFailOpen {
		t.Error("RateLimitFailOpen should be false")
	}
	if cfg.RateLimitPerMinute != 5 {
		t.Errorf("RateLimitPerMinute = %d, want 5", cfg.RateLimitPerMinute)
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"valid middle", "12", 12, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_RateLimitMustBePositive(t *testing.T) {
	os.Clearenv()
	os.Setenv("RATE_LIMIT_PER_HOUR", "0")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error for a zero hourly limit")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
}

func TestLoad_LogDevInProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("LOG_DEV", "true")
	os.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("Load should return error when LOG_DEV=true and APP_ENV=production")
	}
}

func TestValidateAuth(t *testing.T) {
	cases := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"empty", "", true},
		{"short", "too-short", true},
		{"exactly min", strings.Repeat("k", MinJWTSecretLength), false},
		{"long", strings.Repeat("k", 64), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{JWTSecret: tc.secret}
			err := cfg.ValidateAuth()
			if tc.wantErr && err == nil {
				t.Fatal("ValidateAuth should return error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("ValidateAuth: %v", err)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	cases := []struct {
		name  string
		value string
		get   func(*Config) time.Duration
		set   func(*Config, string)
		want  time.Duration
	}{
		{"access valid", "30m", (*Config).AccessTTL, func(c *Config, s string) { c.JWTAccessTTL = s }, 30 * time.Minute},
		{"access invalid", "invalid", (*Config).AccessTTL, func(c *Config, s string) { c.JWTAccessTTL = s }, time.Hour},
		{"access zero", "0", (*Config).AccessTTL, func(c *Config, s string) { c.JWTAccessTTL = s }, time.Hour},
		{"access negative", "-5m", (*Config).AccessTTL, func(c *Config, s string) { c.JWTAccessTTL = s }, time.Hour},
		{"refresh valid", "336h", (*Config).RefreshTTL, func(c *Config, s string) { c.JWTRefreshTTL = s }, 336 * time.Hour},
		{"refresh invalid", "invalid", (*Config).RefreshTTL, func(c *Config, s string) { c.JWTRefreshTTL = s }, 24 * time.Hour},
		{"refresh negative", "-1h", (*Config).RefreshTTL, func(c *Config, s string) { c.JWTRefreshTTL = s }, 24 * time.Hour},
		{"sweep valid", "5m", (*Config).SweepInterval, func(c *Config, s string) { c.SessionSweepInterval = s }, 5 * time.Minute},
		{"sweep empty", "", (*Config).SweepInterval, func(c *Config, s string) { c.SessionSweepInterval = s }, 15 * time.Minute},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			tc.set(cfg, tc.value)
			if got := tc.get(cfg); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}
