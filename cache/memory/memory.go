// Package memory is an in-process cache.KV. Expired keys are dropped lazily
// on access and by Sweep.
package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goRotate/cache"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// KV is a mutex-guarded map with per-key expiry.
type KV struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

var _ cache.KV = (*KV)(nil)

// Option configures a KV.
type Option func(*KV)

// WithNow overrides the clock used for expiry.
func WithNow(now func() time.Time) Option {
	return func(k *KV) {
		if now != nil {
			k.now = now
		}
	}
}

func New(opts ...Option) *KV {
	k := &KV{data: make(map[string]entry), now: time.Now}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// liveLocked returns the entry for key, dropping it when expired.
func (k *KV) liveLocked(key string) (entry, bool) {
	e, ok := k.data[key]
	if !ok {
		return entry{}, false
	}
	if !k.now().Before(e.expiresAt) {
		delete(k.data, key)
		return entry{}, false
	}
	return e, true
}

func (k *KV) Get(_ context.Context, key string) ([]byte, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.liveLocked(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(e.value), true, nil
}

func (k *KV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	k.mu.Lock()
	k.data[key] = entry{value: bytes.Clone(value), expiresAt: k.now().Add(ttl)}
	k.mu.Unlock()
	return nil
}

func (k *KV) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.liveLocked(key); ok {
		return false, nil
	}
	k.data[key] = entry{value: bytes.Clone(value), expiresAt: k.now().Add(ttl)}
	return true, nil
}

func (k *KV) Delete(_ context.Context, key string) error {
	k.mu.Lock()
	delete(k.data, key)
	k.mu.Unlock()
	return nil
}

func (k *KV) CompareAndDelete(_ context.Context, key string, value []byte) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.liveLocked(key)
	if !ok || !bytes.Equal(e.value, value) {
		return false, nil
	}
	delete(k.data, key)
	return true, nil
}

// Sweep removes every expired key and returns how many it dropped.
func (k *KV) Sweep() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	n := 0
	for key, e := range k.data {
		if !now.Before(e.expiresAt) {
			delete(k.data, key)
			n++
		}
	}
	return n
}

// Len returns the number of stored keys, including expired ones not yet swept.
func (k *KV) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.data)
}
