// Package storetest holds the behaviour suite every store.Store backend must
// pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goRotate/store"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed, whole-second instant.
func NewClock() *Clock {
	return &Clock{now: time.Unix(1_760_000_000, 0).UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Factory returns a fresh, empty store whose expiry checks use now.
type Factory func(t *testing.T, now func() time.Time) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store, clock *Clock)
	}{
		{"CreateThenFind", testCreateThenFind},
		{"FindUnknownOwner", testFindUnknownOwner},
		{"CreateRevokesPrevious", testCreateRevokesPrevious},
		{"UpdateIsConditional", testUpdateIsConditional},
		{"RevokeIsIdempotent", testRevokeIsIdempotent},
		{"RevokeWithStaleHashIsNoop", testRevokeWithStaleHash},
		{"ExpiredRecordsAreInactive", testExpiredRecordsInactive},
		{"RevokeAllForOwner", testRevokeAllForOwner},
		{"DeleteExpired", testDeleteExpired},
		{"ConcurrentUpdateSingleWinner", testConcurrentUpdate},
		{"Ping", testPing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewClock()
			tt.fn(t, newStore(t, clock.Now), clock)
		})
	}
}

func testCreateThenFind(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	exp := clock.Now().Add(time.Hour)

	created, err := s.Create(ctx, "owner-1", "hash-1", exp)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "owner-1", created.Owner)
	assert.Equal(t, "hash-1", created.SecretHash)
	assert.False(t, created.Revoked)

	found, err := s.FindActiveForOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "hash-1", found.SecretHash)
	assert.True(t, found.ExpiresAt.Equal(exp), "expiry %v != %v", found.ExpiresAt, exp)
}

func testFindUnknownOwner(t *testing.T, s store.Store, _ *Clock) {
	_, err := s.FindActiveForOwner(context.Background(), "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testCreateRevokesPrevious(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	first, err := s.Create(ctx, "owner-1", "hash-1", clock.Now().Add(time.Hour))
	require.NoError(t, err)

	clock.Advance(time.Second)
	second, err := s.Create(ctx, "owner-1", "hash-2", clock.Now().Add(time.Hour))
	require.NoError(t, err)

	found, err := s.FindActiveForOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)

	_, err = s.UpdateActiveToken(ctx, store.Update{
		Owner: "owner-1", ID: first.ID, PreviousHash: "hash-1",
		NextHash: "hash-x", NextExpiresAt: clock.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, store.ErrConflict)
}

func testUpdateIsConditional(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	rec, err := s.Create(ctx, "owner-1", "hash-1", clock.Now().Add(time.Hour))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	nextExp := clock.Now().Add(2 * time.Hour)
	updated, err := s.UpdateActiveToken(ctx, store.Update{
		Owner: "owner-1", ID: rec.ID, PreviousHash: "hash-1",
		NextHash: "hash-2", NextExpiresAt: nextExp,
	})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, updated.ID)
	assert.Equal(t, "hash-2", updated.SecretHash)
	assert.True(t, updated.ExpiresAt.Equal(nextExp))

	// Replaying the superseded hash must fail.
	_, err = s.UpdateActiveToken(ctx, store.Update{
		Owner: "owner-1", ID: rec.ID, PreviousHash: "hash-1",
		NextHash: "hash-3", NextExpiresAt: nextExp,
	})
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = s.UpdateActiveToken(ctx, store.Update{
		Owner: "owner-2", ID: rec.ID, PreviousHash: "hash-2",
		NextHash: "hash-3", NextExpiresAt: nextExp,
	})
	require.ErrorIs(t, err, store.ErrConflict, "owner scoping")

	_, err = s.UpdateActiveToken(ctx, store.Update{
		Owner: "owner-1", ID: "missing-id", PreviousHash: "hash-2",
		NextHash: "hash-3", NextExpiresAt: nextExp,
	})
	require.ErrorIs(t, err, store.ErrConflict)

	found, err := s.FindActiveForOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-2", found.SecretHash)
}

func testRevokeIsIdempotent(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	rec, err := s.Create(ctx, "owner-1", "hash-1", clock.Now().Add(time.Hour))
	require.NoError(t, err)

	changed, err := s.Revoke(ctx, *rec)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.Revoke(ctx, *rec)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = s.FindActiveForOwner(ctx, "owner-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.UpdateActiveToken(ctx, store.Update{
		Owner: "owner-1", ID: rec.ID, PreviousHash: "hash-1",
		NextHash: "hash-2", NextExpiresAt: clock.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, store.ErrConflict, "revoked records never rotate")

	changed, err = s.Revoke(ctx, store.Record{ID: "missing-id", Owner: "owner-1", SecretHash: "hash-1"})
	require.NoError(t, err)
	assert.False(t, changed)
}

func testRevokeWithStaleHash(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	rec, err := s.Create(ctx, "owner-1", "hash-1", clock.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = s.UpdateActiveToken(ctx, store.Update{
		Owner: "owner-1", ID: rec.ID, PreviousHash: "hash-1",
		NextHash: "hash-2", NextExpiresAt: clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	changed, err := s.Revoke(ctx, *rec)
	require.NoError(t, err)
	assert.False(t, changed, "stale hash must not revoke the rotated record")

	found, err := s.FindActiveForOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "hash-2", found.SecretHash)
}

func testExpiredRecordsInactive(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	rec, err := s.Create(ctx, "owner-1", "hash-1", clock.Now().Add(time.Minute))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	_, err = s.FindActiveForOwner(ctx, "owner-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.UpdateActiveToken(ctx, store.Update{
		Owner: "owner-1", ID: rec.ID, PreviousHash: "hash-1",
		NextHash: "hash-2", NextExpiresAt: clock.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, store.ErrConflict)
}

func testRevokeAllForOwner(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	_, err := s.Create(ctx, "owner-1", "hash-1", clock.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = s.Create(ctx, "owner-2", "hash-2", clock.Now().Add(time.Hour))
	require.NoError(t, err)

	n, err := s.RevokeAllForOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.RevokeAllForOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	_, err = s.FindActiveForOwner(ctx, "owner-1")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FindActiveForOwner(ctx, "owner-2")
	require.NoError(t, err)
}

func testDeleteExpired(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	_, err := s.Create(ctx, "owner-1", "hash-1", clock.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = s.Create(ctx, "owner-2", "hash-2", clock.Now().Add(3*time.Hour))
	require.NoError(t, err)
	revoked, err := s.Create(ctx, "owner-3", "hash-3", clock.Now().Add(3*time.Hour))
	require.NoError(t, err)
	_, err = s.Revoke(ctx, *revoked)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	n, err := s.DeleteExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.DeleteExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	_, err = s.FindActiveForOwner(ctx, "owner-2")
	require.NoError(t, err)
}

func testConcurrentUpdate(t *testing.T, s store.Store, clock *Clock) {
	ctx := context.Background()
	rec, err := s.Create(ctx, "owner-1", "hash-0", clock.Now().Add(time.Hour))
	require.NoError(t, err)

	const workers = 16
	var (
		wins      atomic.Int32
		conflicts atomic.Int32
		wg        sync.WaitGroup
		start     = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := s.UpdateActiveToken(ctx, store.Update{
				Owner: "owner-1", ID: rec.ID, PreviousHash: "hash-0",
				NextHash: "hash-next-" + string(rune('a'+i)), NextExpiresAt: clock.Now().Add(time.Hour),
			})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, store.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load(), "exactly one rotation may win")
	assert.EqualValues(t, workers-1, conflicts.Load())
}

func testPing(t *testing.T, s store.Store, _ *Clock) {
	require.NoError(t, s.Ping(context.Background()))
}
