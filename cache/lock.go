package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// LockCache hands out TTL-bounded locks keyed by an arbitrary string.
type LockCache struct {
	kv     KV
	prefix string
}

// Lock is a held lock. Release deletes it only while this holder still owns
// it, so a lock that expired and was re-acquired elsewhere is left alone.
type Lock struct {
	cache  *LockCache
	key    string
	holder []byte
}

// NewLockCache stores locks under prefix+":lock:".
func NewLockCache(kv KV, prefix string) *LockCache {
	return &LockCache{kv: kv, prefix: prefix + ":lock:"}
}

// TryAcquire attempts set-if-absent on key. ok=false with a nil error means
// another holder has it.
func (c *LockCache) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	if ttl <= 0 {
		return nil, false, errors.New("lock ttl must be > 0")
	}

	holder := []byte(uuid.NewString())
	ok, err := c.kv.SetNX(ctx, c.prefix+key, holder, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	return &Lock{cache: c, key: c.prefix + key, holder: holder}, true, nil
}

// Release gives the lock back. Releasing twice is harmless.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	_, err := l.cache.kv.CompareAndDelete(ctx, l.key, l.holder)
	return err
}
