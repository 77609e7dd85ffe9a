package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	LockLocal = "local"
	LockRedis = "redis"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	StorageBackend string        `mapstructure:"STORAGE_BACKEND"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema       string        `mapstructure:"DB_SCHEMA"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	LockBackend    string        `mapstructure:"LOCK_BACKEND"`
	LockTTL        time.Duration `mapstructure:"LOCK_TTL"`
	LockWait       time.Duration `mapstructure:"LOCK_WAIT"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	MaxOccurrences          int    `mapstructure:"MAX_OCCURRENCES"`
	MaxSlots                int    `mapstructure:"MAX_SLOTS"`
	RecurrenceHorizonMonths int    `mapstructure:"RECURRENCE_HORIZON_MONTHS"`
	SearchDefaultDays       int    `mapstructure:"SEARCH_DEFAULT_DAYS"`
	SearchTimezone          string `mapstructure:"SEARCH_TIMEZONE"`
}

var keys = []string{
	"PORT", "ENV", "STORAGE_BACKEND", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA",
	"REDIS_URL", "LOCK_BACKEND", "LOCK_TTL", "LOCK_WAIT",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"MAX_OCCURRENCES", "MAX_SLOTS", "RECURRENCE_HORIZON_MONTHS", "SEARCH_DEFAULT_DAYS", "SEARCH_TIMEZONE",
}

// Load reads configuration from the environment, falling back to a .env file
// in the working directory. The result is not validated.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORAGE_BACKEND", StoragePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("LOCK_BACKEND", "")
	v.SetDefault("LOCK_TTL", "10s")
	v.SetDefault("LOCK_WAIT", "3s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("MAX_OCCURRENCES", 2000)
	v.SetDefault("MAX_SLOTS", 20000)
	v.SetDefault("RECURRENCE_HORIZON_MONTHS", 6)
	v.SetDefault("SEARCH_DEFAULT_DAYS", 30)
	v.SetDefault("SEARCH_TIMEZONE", "UTC")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	cfg.LockBackend = strings.ToLower(strings.TrimSpace(cfg.LockBackend))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedLockBackend returns LOCK_BACKEND when set, otherwise redis if a
// REDIS_URL is configured and local if not.
func (c *Config) ResolvedLockBackend() string {
	if c.LockBackend != "" {
		return c.LockBackend
	}
	if c.RedisURL != "" {
		return LockRedis
	}
	return LockLocal
}

// Validate checks that the configuration is consistent. Outside development
// a signing key is mandatory so bearer tokens are always verified.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND is %q", StoragePostgres)
		}
	case StorageMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORAGE_BACKEND %q is not allowed in production", StorageMemory)
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StoragePostgres, StorageMemory, c.StorageBackend)
	}

	switch c.ResolvedLockBackend() {
	case LockLocal:
	case LockRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when LOCK_BACKEND is %q", LockRedis)
		}
		if c.LockTTL <= 0 || c.LockWait <= 0 {
			return fmt.Errorf("LOCK_TTL and LOCK_WAIT must be positive")
		}
	default:
		return fmt.Errorf("LOCK_BACKEND must be %q or %q, got %q", LockLocal, LockRedis, c.LockBackend)
	}

	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY must be set when ENV=%q", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.MaxOccurrences <= 0 {
		return fmt.Errorf("MAX_OCCURRENCES must be positive, got %d", c.MaxOccurrences)
	}
	if c.MaxSlots <= 0 {
		return fmt.Errorf("MAX_SLOTS must be positive, got %d", c.MaxSlots)
	}
	if c.RecurrenceHorizonMonths <= 0 {
		return fmt.Errorf("RECURRENCE_HORIZON_MONTHS must be positive, got %d", c.RecurrenceHorizonMonths)
	}
	if c.SearchDefaultDays < 0 {
		return fmt.Errorf("SEARCH_DEFAULT_DAYS must not be negative, got %d", c.SearchDefaultDays)
	}
	if _, err := time.LoadLocation(c.SearchTimezone); err != nil || c.SearchTimezone == "" {
		return fmt.Errorf("SEARCH_TIMEZONE %q is not a valid IANA zone", c.SearchTimezone)
	}

	return nil
}
