package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goRotate/cache"
)

func newTestKV(t *testing.T) (*KV, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb), mr
}

func TestGetSet(t *testing.T) {
	ctx := context.Background()
	kv, mr := newTestKV(t)

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", []byte("v"), 5*time.Second))
	v, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
	assert.Equal(t, 5*time.Second, mr.TTL("k"))

	mr.FastForward(6 * time.Second)
	_, ok, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetNXAndCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	kv, _ := newTestKV(t)

	ok, err := kv.SetNX(ctx, "lock", []byte("holder-a"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = kv.SetNX(ctx, "lock", []byte("holder-b"), time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = kv.CompareAndDelete(ctx, "lock", []byte("holder-b"))
	require.NoError(t, err)
	assert.False(t, ok, "non-holder release is a no-op")

	ok, err = kv.CompareAndDelete(ctx, "lock", []byte("holder-a"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, kv.Delete(ctx, "lock"))
}

func TestBackendFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	kv, mr := newTestKV(t)
	mr.Close()

	_, _, err := kv.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrUnavailable)
	_, err = kv.SetNX(ctx, "k", []byte("v"), time.Second)
	require.ErrorIs(t, err, cache.ErrUnavailable)
	require.ErrorIs(t, kv.Set(ctx, "k", []byte("v"), time.Second), cache.ErrUnavailable)
}
