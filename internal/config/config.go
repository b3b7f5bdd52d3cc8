// Package config loads the reference server's environment configuration.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	goRotate "github.com/MrEthical07/goRotate"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendBolt     = "bolt"
)

// Config holds all environment-based configuration for gorotate-server.
type Config struct {
	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Signing secrets and token lifetimes. Lifetimes accept Go durations
	// plus a "d" day suffix, e.g. "15m" or "7d".
	AccessSecret  string   `env:"AUTH_JWT_SECRET"`
	AccessExpire  Duration `env:"AUTH_JWT_EXPIRE" envDefault:"15m"`
	RefreshSecret string   `env:"AUTH_REFRESH_SECRET"`
	RefreshExpire Duration `env:"AUTH_REFRESH_EXPIRE" envDefault:"7d"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`
	DatabaseURL  string `env:"DATABASE_URL"`
	BoltPath     string `env:"BOLT_PATH" envDefault:"gorotate.db"`

	// RedisAddr enables the Redis caches, the Redis store backend and the
	// refresh throttle. Empty keeps everything in process.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix     string `env:"KEY_PREFIX" envDefault:"gr"`

	// IssuerKey enables POST /auth/session for the login service that
	// authenticates users. Empty leaves issuing to in-process callers.
	IssuerKey string `env:"ISSUER_KEY"`

	CookieDomain   string `env:"COOKIE_DOMAIN"`
	CookiePath     string `env:"COOKIE_PATH" envDefault:"/"`
	CookieInsecure bool   `env:"COOKIE_INSECURE" envDefault:"false"`

	LockWait        time.Duration `env:"LOCK_WAIT" envDefault:"3s"`
	RefreshThrottle bool          `env:"REFRESH_THROTTLE" envDefault:"false"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"10m"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`
	AuditEnabled    bool          `env:"AUDIT_ENABLED" envDefault:"true"`
	AuditTimeout    time.Duration `env:"AUDIT_SINK_TIMEOUT" envDefault:"2s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from environment variables, after loading a
// .env file when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

const minIssuerKeyLen = 32

func (c *Config) validate() error {
	if c.AccessSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	if c.RefreshSecret == "" {
		return errors.New("AUTH_REFRESH_SECRET is required")
	}
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("AUTH_JWT_SECRET and AUTH_REFRESH_SECRET must differ")
	}

	switch c.StoreBackend {
	case BackendMemory, BackendBolt:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.RefreshThrottle && c.RedisAddr == "" {
		return errors.New("REFRESH_THROTTLE requires REDIS_ADDR")
	}
	if c.SweepInterval < 0 {
		return errors.New("SWEEP_INTERVAL must not be negative")
	}
	if c.IssuerKey != "" && len(c.IssuerKey) < minIssuerKeyLen {
		return fmt.Errorf("ISSUER_KEY must be at least %d characters", minIssuerKeyLen)
	}

	return nil
}

// Production reports whether the server runs with production defaults.
func (c *Config) Production() bool {
	return c.Environment == "production"
}

// Engine maps the environment onto an engine configuration. The result
// still goes through goRotate.Config.Validate at build time.
func (c *Config) Engine() goRotate.Config {
	cfg := goRotate.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(c.AccessSecret)
	cfg.JWT.RefreshPrivateKey = []byte(c.RefreshSecret)
	cfg.JWT.AccessTTL = time.Duration(c.AccessExpire)
	cfg.JWT.RefreshTTL = time.Duration(c.RefreshExpire)
	cfg.Lock.WaitTimeout = c.LockWait
	cfg.Cache.KeyPrefix = c.KeyPrefix
	cfg.Security.ProductionMode = c.Production()
	cfg.Security.EnableRefreshThrottle = c.RefreshThrottle
	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Audit.SinkTimeout = c.AuditTimeout
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	return cfg
}

// Duration is a time.Duration that also accepts whole days ("7d").
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid duration %q", s)
		}
		*d = Duration(time.Duration(n) * 24 * time.Hour)
		return nil
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
