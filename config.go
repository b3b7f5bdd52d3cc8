package goRotate

import (
	"errors"
	"time"
)

// Config is the complete engine configuration. Start from [DefaultConfig]
// and override fields; [Builder.Build] validates and clones it.
type Config struct {
	JWT         JWTConfig
	Hasher      HasherConfig
	Lock        LockConfig
	Idempotency IdempotencyConfig
	Cache       CacheConfig
	Security    SecurityConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the access and refresh token codecs. Refresh keys
// default to the access keys when empty.
type JWTConfig struct {
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	SigningMethod     string // "ed25519" (default), "hs256" optional
	PrivateKey        []byte
	PublicKey         []byte
	RefreshPrivateKey []byte
	RefreshPublicKey  []byte
	Issuer            string
	Audience          string
	Leeway            time.Duration
	KeyID             string
}

/*
====================================
HASHER CONFIG
====================================
*/

// HasherConfig holds the argon2id parameters for refresh token digests.
type HasherConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
ROTATION CONFIG
====================================
*/

// LockConfig controls the per-fingerprint rotation lock.
type LockConfig struct {
	// TTL bounds how long a crashed holder can block a pair.
	TTL time.Duration
	// WaitTimeout is how long a contending request waits for the holder's
	// result before failing with ErrLockContention. Zero fails immediately.
	WaitTimeout time.Duration
	// RetryInterval is the poll period while waiting.
	RetryInterval time.Duration
}

// IdempotencyConfig controls the replay window for identical refresh calls.
type IdempotencyConfig struct {
	TTL time.Duration
}

// CacheConfig controls key naming and the per-owner fast path.
type CacheConfig struct {
	KeyPrefix       string
	FastPathEnabled bool
	// FastPathTTL defaults to twice the access token lifetime when zero.
	FastPathTTL time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds the optional per-owner refresh throttle.
type SecurityConfig struct {
	ProductionMode          bool
	EnableRefreshThrottle   bool
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// SinkTimeout bounds each sink call. Zero means none.
	SinkTimeout time.Duration
}

// MetricsConfig toggles in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Key material must still be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
		},
		Hasher: HasherConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Lock: LockConfig{
			TTL:           60 * time.Second,
			WaitTimeout:   3 * time.Second,
			RetryInterval: 50 * time.Millisecond,
		},
		Idempotency: IdempotencyConfig{
			TTL: 60 * time.Second,
		},
		Cache: CacheConfig{
			KeyPrefix:       "gr",
			FastPathEnabled: true,
		},
		Security: SecurityConfig{
			ProductionMode:          false,
			EnableRefreshThrottle:   false,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.JWT.RefreshPrivateKey = cloneBytes(cfg.JWT.RefreshPrivateKey)
	out.JWT.RefreshPublicKey = cloneBytes(cfg.JWT.RefreshPublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// fastPathTTL resolves the zero default.
func (c *Config) fastPathTTL() time.Duration {
	if c.Cache.FastPathTTL > 0 {
		return c.Cache.FastPathTTL
	}
	return 2 * c.JWT.AccessTTL
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}

	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}

	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 PrivateKey must be at least 32 bytes")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.RefreshPrivateKey) > 0 && len(c.JWT.RefreshPrivateKey) < 32 {
		return errors.New("hs256 RefreshPrivateKey must be at least 32 bytes")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Hasher
	if c.Hasher.Memory < 8*1024 {
		return errors.New("Hasher Memory must be >= 8192 KB")
	}
	if c.Hasher.Time < 1 {
		return errors.New("Hasher Time must be >= 1")
	}
	if c.Hasher.Parallelism < 1 {
		return errors.New("Hasher Parallelism must be >= 1")
	}
	if c.Hasher.SaltLength < 16 {
		return errors.New("Hasher SaltLength must be >= 16")
	}
	if c.Hasher.KeyLength < 16 {
		return errors.New("Hasher KeyLength must be >= 16")
	}

	// Lock
	if c.Lock.TTL <= 0 {
		return errors.New("Lock TTL must be > 0")
	}
	if c.Lock.WaitTimeout < 0 {
		return errors.New("Lock WaitTimeout must be >= 0")
	}
	if c.Lock.WaitTimeout > 0 && c.Lock.RetryInterval <= 0 {
		return errors.New("Lock RetryInterval must be > 0 when WaitTimeout is set")
	}
	if c.Lock.WaitTimeout >= c.Lock.TTL {
		return errors.New("Lock WaitTimeout must be < Lock TTL")
	}

	// Idempotency
	if c.Idempotency.TTL <= 0 {
		return errors.New("Idempotency TTL must be > 0")
	}
	if c.Idempotency.TTL > 10*time.Minute {
		return errors.New("Idempotency TTL must be <= 10m")
	}

	// Cache
	if c.Cache.KeyPrefix == "" {
		return errors.New("Cache KeyPrefix must not be empty")
	}
	if c.Cache.FastPathTTL < 0 {
		return errors.New("Cache FastPathTTL must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.SinkTimeout < 0 {
		return errors.New("Audit SinkTimeout must be >= 0")
	}

	// Security
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("MaxRefreshAttempts must be > 0 when refresh throttle is enabled")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("RefreshCooldownDuration must be > 0 when refresh throttle is enabled")
		}
	}
	if c.Security.ProductionMode && c.JWT.SigningMethod == "hs256" &&
		len(c.JWT.RefreshPrivateKey) == 0 {
		return errors.New("ProductionMode requires a distinct RefreshPrivateKey for hs256")
	}

	return nil
}
