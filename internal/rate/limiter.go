package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "gr:rl"

// Config holds refresh throttle tuning parameters.
type Config struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
	KeyPrefix   string
}

// Limiter enforces a per-owner refresh budget using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultPrefix
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckRefresh counts one refresh for owner and fails with ErrRateLimited
// once the window budget is spent.
func (l *Limiter) CheckRefresh(ctx context.Context, owner string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.refreshKey(owner), l.config.Window)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}

	return nil
}

// Attempts returns the current counter for owner. Missing keys return zero.
func (l *Limiter) Attempts(ctx context.Context, owner string) (int, error) {
	count, err := l.redis.Get(ctx, l.refreshKey(owner)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears owner's counter. Called after a fresh Issue.
func (l *Limiter) Reset(ctx context.Context, owner string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}
	if err := l.redis.Del(ctx, l.refreshKey(owner)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) refreshKey(owner string) string {
	return l.config.KeyPrefix + ":ar:" + owner
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
