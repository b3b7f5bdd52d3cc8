package goRotate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goRotate/cache"
	"github.com/MrEthical07/goRotate/cache/memory"
	"github.com/MrEthical07/goRotate/cache/rediscache"
	"github.com/MrEthical07/goRotate/hasher"
	internalaudit "github.com/MrEthical07/goRotate/internal/audit"
	"github.com/MrEthical07/goRotate/internal/flows"
	"github.com/MrEthical07/goRotate/internal/rate"
	"github.com/MrEthical07/goRotate/jwt"
	"github.com/MrEthical07/goRotate/store"
)

// Builder assembles an Engine. A Builder is single use.
//
// Cache backends resolve in order: an explicit With*KV, then Redis when
// WithRedis was given, then one shared in-process cache.
type Builder struct {
	config Config
	store  store.Store
	redis  redis.UniversalClient

	lockKV   cache.KV
	idemKV   cache.KV
	activeKV cache.KV

	hasher    hasher.Hasher
	logger    *slog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The config is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the durable token store. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis backs every cache, and the refresh throttle, with client. The
// caller keeps ownership of the client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCacheKV backs the lock, idempotency and fast-path caches with kv.
func (b *Builder) WithCacheKV(kv cache.KV) *Builder {
	b.lockKV, b.idemKV, b.activeKV = kv, kv, kv
	return b
}

func (b *Builder) WithLockKV(kv cache.KV) *Builder {
	b.lockKV = kv
	return b
}

func (b *Builder) WithIdempotencyKV(kv cache.KV) *Builder {
	b.idemKV = kv
	return b
}

func (b *Builder) WithActiveKV(kv cache.KV) *Builder {
	b.activeKV = kv
	return b
}

// WithHasher overrides the argon2id hasher built from Config.Hasher.
func (b *Builder) WithHasher(h hasher.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithLogger sets the structured logger. Defaults to a discarding logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination. Events flow only when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides time.Now for token expiry, record expiry and the
// in-process cache.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("token store required")
	}
	if cfg.Security.EnableRefreshThrottle && b.redis == nil {
		return nil, errors.New("refresh throttle requires redis client")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	engine := &Engine{
		config:  cfg,
		store:   b.store,
		logger:  logger,
		now:     now,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- CACHES --------
	var shared *memory.KV
	resolve := func(kv cache.KV) cache.KV {
		if kv != nil {
			return kv
		}
		if b.redis != nil {
			return rediscache.New(b.redis)
		}
		if shared == nil {
			shared = memory.New(memory.WithNow(now))
			engine.sweepers = append(engine.sweepers, shared)
		}
		return shared
	}
	engine.locks = cache.NewLockCache(resolve(b.lockKV), cfg.Cache.KeyPrefix)
	engine.idem = cache.NewIdempotencyCache(resolve(b.idemKV), cfg.Cache.KeyPrefix)
	engine.marks = cache.NewRevocationMarks(resolve(b.idemKV), cfg.Cache.KeyPrefix)
	if cfg.Cache.FastPathEnabled {
		engine.active = cache.NewActiveTokenCache(resolve(b.activeKV), cfg.Cache.KeyPrefix)
	}
	for _, kv := range []cache.KV{b.lockKV, b.idemKV, b.activeKV} {
		if s, ok := kv.(sweeper); ok && !containsSweeper(engine.sweepers, s) {
			engine.sweepers = append(engine.sweepers, s)
		}
	}

	// -------- HASHER --------
	engine.hasher = b.hasher
	if engine.hasher == nil {
		h, err := hasher.NewArgon2(hasher.Config{
			Memory:      cfg.Hasher.Memory,
			Time:        cfg.Hasher.Time,
			Parallelism: cfg.Hasher.Parallelism,
			SaltLength:  cfg.Hasher.SaltLength,
			KeyLength:   cfg.Hasher.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		engine.hasher = h
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:         cfg.JWT.AccessTTL,
		RefreshTTL:        cfg.JWT.RefreshTTL,
		SigningMethod:     jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:        cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:         cloneBytes(cfg.JWT.PublicKey),
		RefreshPrivateKey: cloneBytes(cfg.JWT.RefreshPrivateKey),
		RefreshPublicKey:  cloneBytes(cfg.JWT.RefreshPublicKey),
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
		Leeway:            cfg.JWT.Leeway,
		KeyID:             cfg.JWT.KeyID,
		Now:               now,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = jm

	// -------- THROTTLE / AUDIT --------
	if cfg.Security.EnableRefreshThrottle {
		engine.limiter = rate.New(b.redis, rate.Config{
			Enabled:     true,
			MaxAttempts: cfg.Security.MaxRefreshAttempts,
			Window:      cfg.Security.RefreshCooldownDuration,
			KeyPrefix:   cfg.Cache.KeyPrefix + ":rl",
		})
	}
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		SinkTimeout: cfg.Audit.SinkTimeout,
	}, b.auditSink)

	engine.flows = engine.buildFlowDeps()

	b.built = true

	return engine, nil
}

func (e *Engine) buildFlowDeps() flows.Deps {
	onCacheError := func(op string, err error) {
		e.cacheError(context.Background(), op, err)
	}

	var active flows.ActiveCache
	if e.active != nil {
		active = e.active
	}
	var limiter flows.RefreshRateLimiter
	if e.limiter != nil {
		limiter = refreshThrottle{
			limiter: e.limiter,
			onError: func(err error) { onCacheError("rate_check", err) },
		}
	}
	activeTTL := e.config.fastPathTTL()

	return flows.Deps{
		Rotate: flows.RotateDeps{
			Tokens:      e.tokens,
			Store:       e.store,
			Hasher:      e.hasher,
			Active:      active,
			ActiveTTL:   activeTTL,
			Marks:       e.marks,
			RateLimiter: limiter,
			Now:         e.now,
			CacheError:  onCacheError,
		},
		Issue: flows.IssueDeps{
			Tokens:     e.tokens,
			Store:      e.store,
			Hasher:     e.hasher,
			Active:     active,
			ActiveTTL:  activeTTL,
			CacheError: onCacheError,
		},
		Revoke: flows.RevokeDeps{
			Tokens:     e.tokens,
			Store:      e.store,
			Hasher:     e.hasher,
			Active:     active,
			CacheError: onCacheError,
		},
	}
}

func containsSweeper(list []sweeper, s sweeper) bool {
	for _, have := range list {
		if have == s {
			return true
		}
	}
	return false
}
