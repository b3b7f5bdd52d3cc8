package goRotate

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goRotate/cache"
	cachememory "github.com/MrEthical07/goRotate/cache/memory"
	"github.com/MrEthical07/goRotate/store"
	"github.com/MrEthical07/goRotate/store/memory"
	"github.com/MrEthical07/goRotate/store/storetest"
)

type testEnv struct {
	clock *storetest.Clock
	store *countingStore
	kv    *cachememory.KV
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("access-secret-0123456789abcdef!!")
	cfg.JWT.RefreshPrivateKey = []byte("refresh-secret-0123456789abcdef!")
	cfg.JWT.AccessTTL = time.Minute
	cfg.JWT.RefreshTTL = time.Hour
	cfg.Hasher = HasherConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
	cfg.Lock.WaitTimeout = 2 * time.Second
	cfg.Lock.RetryInterval = 5 * time.Millisecond
	cfg.Cache.KeyPrefix = "test"
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEnv() *testEnv {
	clock := storetest.NewClock()
	return &testEnv{
		clock: clock,
		store: &countingStore{Store: memory.New(memory.WithNow(clock.Now))},
		kv:    cachememory.New(cachememory.WithNow(clock.Now)),
	}
}

// engine builds an Engine over the env's shared store and cache, so two
// engines from one env behave like two processes.
func (env *testEnv) engine(t *testing.T, cfg Config, opts ...func(*Builder)) *Engine {
	t.Helper()
	b := New().
		WithConfig(cfg).
		WithStore(env.store).
		WithCacheKV(env.kv).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func newTestEngine(t *testing.T) (*Engine, *testEnv) {
	t.Helper()
	env := newTestEnv()
	return env.engine(t, testConfig()), env
}

func samePair(a, b *TokenPair) bool {
	return a.AccessToken == b.AccessToken && a.RefreshToken == b.RefreshToken
}

func mustIssue(t *testing.T, e *Engine, owner string) *TokenPair {
	t.Helper()
	pair, err := e.Issue(context.Background(), owner)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return pair
}

// countingStore counts rotation writes and can be switched into failure.
type countingStore struct {
	store.Store
	updates atomic.Int64
	down    atomic.Bool
}

func (s *countingStore) FindActiveForOwner(ctx context.Context, owner string) (*store.Record, error) {
	if s.down.Load() {
		return nil, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
	}
	return s.Store.FindActiveForOwner(ctx, owner)
}

func (s *countingStore) UpdateActiveToken(ctx context.Context, u store.Update) (*store.Record, error) {
	if s.down.Load() {
		return nil, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
	}
	rec, err := s.Store.UpdateActiveToken(ctx, u)
	if err == nil {
		s.updates.Add(1)
	}
	return rec, err
}

func (s *countingStore) Revoke(ctx context.Context, rec store.Record) (bool, error) {
	if s.down.Load() {
		return false, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
	}
	return s.Store.Revoke(ctx, rec)
}

// brokenKV fails every call.
type brokenKV struct {
	calls atomic.Int64
}

var _ cache.KV = (*brokenKV)(nil)

func (k *brokenKV) fail() error {
	k.calls.Add(1)
	return fmt.Errorf("%w: dial tcp: connection refused", cache.ErrUnavailable)
}

func (k *brokenKV) Get(context.Context, string) ([]byte, bool, error) { return nil, false, k.fail() }

func (k *brokenKV) Set(context.Context, string, []byte, time.Duration) error { return k.fail() }

func (k *brokenKV) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, k.fail()
}

func (k *brokenKV) Delete(context.Context, string) error { return k.fail() }

func (k *brokenKV) CompareAndDelete(context.Context, string, []byte) (bool, error) {
	return false, k.fail()
}
