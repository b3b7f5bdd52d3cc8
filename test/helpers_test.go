//go:build integration
// +build integration

package test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goRotate "github.com/MrEthical07/goRotate"
	"github.com/MrEthical07/goRotate/store"
	"github.com/MrEthical07/goRotate/store/redisstore"
)

func integrationConfig() goRotate.Config {
	cfg := goRotate.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("integration-access-0123456789abcd")
	cfg.JWT.RefreshPrivateKey = []byte("integration-refresh-0123456789abc")
	cfg.JWT.AccessTTL = time.Minute
	cfg.JWT.RefreshTTL = time.Hour
	cfg.Hasher = goRotate.HasherConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
	cfg.Lock.WaitTimeout = 2 * time.Second
	cfg.Lock.RetryInterval = 5 * time.Millisecond
	cfg.Cache.KeyPrefix = "it"
	cfg.Metrics.Enabled = true
	return cfg
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// newRedisEngine builds one "process" over shared Redis state.
func newRedisEngine(t *testing.T, rdb redis.UniversalClient) *goRotate.Engine {
	t.Helper()
	return buildEngine(t, integrationConfig(), redisstore.New(rdb, redisstore.WithPrefix("it:rt")), func(b *goRotate.Builder) {
		b.WithRedis(rdb)
	})
}

func buildEngine(t *testing.T, cfg goRotate.Config, s store.Store, opts ...func(*goRotate.Builder)) *goRotate.Engine {
	t.Helper()

	b := goRotate.New().WithConfig(cfg).WithStore(s)
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
