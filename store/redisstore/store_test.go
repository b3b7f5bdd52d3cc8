package redisstore

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goRotate/store"
	"github.com/MrEthical07/goRotate/store/storetest"
)

func newTestStore(t *testing.T, now func() time.Time) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, WithNow(now), WithPrefix("test")), mr
}

func TestStoreSuite(t *testing.T) {
	storetest.Run(t, func(t *testing.T, now func() time.Time) store.Store {
		s, _ := newTestStore(t, now)
		return s
	})
}

func TestRecordKeysShareOwnerHashTag(t *testing.T) {
	clock := storetest.NewClock()
	s, mr := newTestStore(t, clock.Now)

	rec, err := s.Create(t.Context(), "owner-1", "hash-1", clock.Now().Add(time.Hour))
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:{owner-1}:idx"))
	assert.True(t, mr.Exists("test:{owner-1}:rec:"+rec.ID))
	assert.Equal(t, "hash-1", mr.HGet("test:{owner-1}:rec:"+rec.ID, "hash"))

	ttl := mr.TTL("test:{owner-1}:rec:" + rec.ID)
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 1)
}

func TestDeleteExpiredPrunesDanglingIndexEntries(t *testing.T) {
	clock := storetest.NewClock()
	s, mr := newTestStore(t, clock.Now)

	rec, err := s.Create(t.Context(), "owner-1", "hash-1", clock.Now().Add(time.Hour))
	require.NoError(t, err)

	// Redis expiring the record key on its own leaves the index member behind.
	mr.Del("test:{owner-1}:rec:" + rec.ID)

	n, err := s.DeleteExpired(t.Context(), clock.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
	assert.False(t, mr.Exists("test:{owner-1}:idx"))
}

func TestUnavailableWrapsRedisErrors(t *testing.T) {
	clock := storetest.NewClock()
	s, mr := newTestStore(t, clock.Now)
	mr.Close()

	_, err := s.Create(t.Context(), "owner-1", "hash-1", clock.Now().Add(time.Hour))
	require.ErrorIs(t, err, store.ErrUnavailable)

	_, err = s.FindActiveForOwner(t.Context(), "owner-1")
	require.ErrorIs(t, err, store.ErrUnavailable)

	require.ErrorIs(t, s.Ping(t.Context()), store.ErrUnavailable)
}

func TestDeleteExpiredWalksClusterMasters(t *testing.T) {
	clock := storetest.NewClock()
	mr := miniredis.RunT(t)
	client := redis.NewClusterClient(&redis.ClusterOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = client.Close() })
	s := New(client, WithNow(clock.Now), WithPrefix("test"))

	for _, owner := range []string{"owner-1", "owner-2", "owner-3"} {
		_, err := s.Create(t.Context(), owner, "hash-"+owner, clock.Now().Add(time.Minute))
		require.NoError(t, err)
	}
	_, err := s.Create(t.Context(), "owner-4", "hash-4", clock.Now().Add(time.Hour))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	n, err := s.DeleteExpired(t.Context(), clock.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.False(t, mr.Exists("test:{owner-1}:idx"))
	assert.True(t, mr.Exists("test:{owner-4}:idx"))
}
