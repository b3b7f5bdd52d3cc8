// Package rediscache is a cache.KV on Redis.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goRotate/cache"
)

// KEYS[1] key, ARGV[1] expected value.
var compareAndDeleteLua = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// KV adapts a go-redis client. The caller owns the client's lifecycle.
type KV struct {
	redis redis.UniversalClient
}

var _ cache.KV = (*KV)(nil)

func New(client redis.UniversalClient) *KV {
	return &KV{redis: client}
}

// Get reads key. A missing key is not an error.
//
//	Performance: 1 Redis GET.
func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := k.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable(err)
	}
	return v, true, nil
}

// Set writes key with a millisecond TTL.
//
//	Performance: 1 Redis SET PX.
func (k *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := k.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// SetNX writes key only when it is absent.
//
//	Performance: 1 Redis SET NX PX.
func (k *KV) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := k.redis.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

func (k *KV) Delete(ctx context.Context, key string) error {
	if err := k.redis.Del(ctx, key).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// CompareAndDelete deletes key only while it holds value.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-delete).
func (k *KV) CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error) {
	n, err := compareAndDeleteLua.Run(ctx, k.redis, []string{key}, value).Int64()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", cache.ErrUnavailable, err)
}
