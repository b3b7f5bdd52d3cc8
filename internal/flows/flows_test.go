package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goRotate/cache"
	cachememory "github.com/MrEthical07/goRotate/cache/memory"
	"github.com/MrEthical07/goRotate/hasher"
	"github.com/MrEthical07/goRotate/jwt"
	"github.com/MrEthical07/goRotate/store"
	"github.com/MrEthical07/goRotate/store/memory"
	"github.com/MrEthical07/goRotate/store/storetest"
)

const (
	testAccessTTL  = time.Minute
	testRefreshTTL = time.Hour
)

type fixture struct {
	clock  *storetest.Clock
	tokens *jwt.Manager
	hasher *hasher.Argon2
	store  *memory.Store
	active *cache.ActiveTokenCache

	cacheErrors []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := storetest.NewClock()
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:         testAccessTTL,
		RefreshTTL:        testRefreshTTL,
		SigningMethod:     jwt.MethodHS256,
		PrivateKey:        []byte("access-secret-0123456789abcdef!!"),
		RefreshPrivateKey: []byte("refresh-secret-0123456789abcdef!"),
		Now:               clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h, err := hasher.NewArgon2(hasher.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	kv := cachememory.New(cachememory.WithNow(clock.Now))
	return &fixture{
		clock:  clock,
		tokens: tokens,
		hasher: h,
		store:  memory.New(memory.WithNow(clock.Now)),
		active: cache.NewActiveTokenCache(kv, "test"),
	}
}

func (f *fixture) recordCacheError(op string, _ error) {
	f.cacheErrors = append(f.cacheErrors, op)
}

func (f *fixture) rotateDeps() RotateDeps {
	return RotateDeps{
		Tokens:     f.tokens,
		Store:      f.store,
		Hasher:     f.hasher,
		Active:     f.active,
		ActiveTTL:  2 * testAccessTTL,
		Now:        f.clock.Now,
		CacheError: f.recordCacheError,
	}
}

func (f *fixture) issue(t *testing.T, owner string) jwt.Pair {
	t.Helper()
	res := RunIssue(context.Background(), owner, IssueDeps{
		Tokens:     f.tokens,
		Store:      f.store,
		Hasher:     f.hasher,
		Active:     f.active,
		ActiveTTL:  2 * testAccessTTL,
		CacheError: f.recordCacheError,
	})
	if res.Failure != IssueFailureNone {
		t.Fatalf("issue failed: kind=%d err=%v", res.Failure, res.Err)
	}
	return *res.Pair
}

func TestRotateSuccessKillsOldSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair := f.issue(t, "u1")

	res := RunRotate(ctx, pair.AccessToken, pair.RefreshToken, f.rotateDeps())
	if res.Failure != RotateFailureNone {
		t.Fatalf("rotate failed: kind=%d err=%v", res.Failure, res.Err)
	}
	if !res.FastPath {
		t.Fatal("expected the record primed by issue to come from the fast path")
	}
	if res.Pair.RefreshToken == pair.RefreshToken || res.Pair.AccessToken == pair.AccessToken {
		t.Fatal("rotation must mint a new pair")
	}

	replay := RunRotate(ctx, pair.AccessToken, pair.RefreshToken, f.rotateDeps())
	if replay.Failure != RotateFailureHashMismatch {
		t.Fatalf("expected hash mismatch on replay, got kind=%d", replay.Failure)
	}

	next := RunRotate(ctx, res.Pair.AccessToken, res.Pair.RefreshToken, f.rotateDeps())
	if next.Failure != RotateFailureNone {
		t.Fatalf("rotating the new pair failed: kind=%d err=%v", next.Failure, next.Err)
	}
}

func TestRotateAcceptsExpiredAccessToken(t *testing.T) {
	f := newFixture(t)
	pair := f.issue(t, "u1")
	f.clock.Advance(testAccessTTL + time.Minute)

	res := RunRotate(context.Background(), pair.AccessToken, pair.RefreshToken, f.rotateDeps())
	if res.Failure != RotateFailureNone {
		t.Fatalf("expired access token must be accepted: kind=%d err=%v", res.Failure, res.Err)
	}
	if res.FastPath {
		t.Fatal("fast-path entry should have expired with its TTL")
	}
}

func TestRotateRejections(t *testing.T) {
	tests := []struct {
		name string
		mut  func(t *testing.T, f *fixture, pair jwt.Pair) (access, refresh string)
		want RotateFailureKind
	}{
		{
			name: "expired refresh",
			mut: func(_ *testing.T, f *fixture, pair jwt.Pair) (string, string) {
				f.clock.Advance(testRefreshTTL + time.Second)
				return pair.AccessToken, pair.RefreshToken
			},
			want: RotateFailureRefreshExpired,
		},
		{
			name: "garbage refresh",
			mut: func(_ *testing.T, _ *fixture, pair jwt.Pair) (string, string) {
				return pair.AccessToken, "not-a-token"
			},
			want: RotateFailureRefreshInvalid,
		},
		{
			name: "access token used as refresh",
			mut: func(_ *testing.T, _ *fixture, pair jwt.Pair) (string, string) {
				return pair.AccessToken, pair.AccessToken
			},
			want: RotateFailureRefreshInvalid,
		},
		{
			name: "forged access",
			mut: func(t *testing.T, f *fixture, pair jwt.Pair) (string, string) {
				other, err := jwt.NewManager(jwt.Config{
					AccessTTL: testAccessTTL, RefreshTTL: testRefreshTTL,
					SigningMethod: jwt.MethodHS256, PrivateKey: []byte("attacker-secret-0123456789abcdef"),
					Now: f.clock.Now,
				})
				if err != nil {
					t.Fatalf("NewManager: %v", err)
				}
				forged, _, err := other.CreateAccess("u1")
				if err != nil {
					t.Fatalf("CreateAccess: %v", err)
				}
				return forged, pair.RefreshToken
			},
			want: RotateFailureAccessInvalid,
		},
		{
			name: "owner mismatch",
			mut: func(t *testing.T, f *fixture, pair jwt.Pair) (string, string) {
				access, _, err := f.tokens.CreateAccess("u2")
				if err != nil {
					t.Fatalf("CreateAccess: %v", err)
				}
				return access, pair.RefreshToken
			},
			want: RotateFailureOwnerMismatch,
		},
		{
			name: "unknown record",
			mut: func(t *testing.T, f *fixture, _ jwt.Pair) (string, string) {
				minted, err := f.tokens.MintPair("ghost")
				if err != nil {
					t.Fatalf("MintPair: %v", err)
				}
				return minted.AccessToken, minted.RefreshToken
			},
			want: RotateFailureRecordMissing,
		},
		{
			name: "revoked record",
			mut: func(t *testing.T, f *fixture, pair jwt.Pair) (string, string) {
				if _, err := f.store.RevokeAllForOwner(context.Background(), "u1"); err != nil {
					t.Fatalf("RevokeAllForOwner: %v", err)
				}
				// The fast path still holds the record; it must not be trusted over the store.
				if err := f.active.Delete(context.Background(), "u1"); err != nil {
					t.Fatalf("Delete: %v", err)
				}
				return pair.AccessToken, pair.RefreshToken
			},
			want: RotateFailureRecordMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			pair := f.issue(t, "u1")
			access, refresh := tt.mut(t, f, pair)

			res := RunRotate(context.Background(), access, refresh, f.rotateDeps())
			if res.Failure != tt.want {
				t.Fatalf("expected failure kind %d, got %d (err=%v)", tt.want, res.Failure, res.Err)
			}
			if res.Pair != nil {
				t.Fatal("failed rotation must not return a pair")
			}
		})
	}
}

func TestRotateStaleCacheFallsThroughToStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair := f.issue(t, "u1")

	rec, err := f.store.FindActiveForOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("FindActiveForOwner: %v", err)
	}
	stale := *rec
	stale.SecretHash, _ = f.hasher.Hash("some-older-refresh-token")
	if err := f.active.Set(ctx, &stale, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	res := RunRotate(ctx, pair.AccessToken, pair.RefreshToken, f.rotateDeps())
	if res.Failure != RotateFailureNone {
		t.Fatalf("stale cache must fall through: kind=%d err=%v", res.Failure, res.Err)
	}
	if res.FastPath {
		t.Fatal("expected store path")
	}

	cached, ok, err := f.active.Get(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("expected refreshed cache entry, ok=%v err=%v", ok, err)
	}
	if !f.hasher.Compare(res.Pair.RefreshToken, cached.SecretHash) {
		t.Fatal("cache must hold the new digest")
	}
}

type brokenKV struct{}

var errBroken = errors.New("cache down")

func (brokenKV) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errBroken }
func (brokenKV) Set(context.Context, string, []byte, time.Duration) error {
	return errBroken
}
func (brokenKV) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, errBroken
}
func (brokenKV) Delete(context.Context, string) error { return errBroken }
func (brokenKV) CompareAndDelete(context.Context, string, []byte) (bool, error) {
	return false, errBroken
}

func TestRotateCacheOutageDegradesToStore(t *testing.T) {
	f := newFixture(t)
	pair := f.issue(t, "u1")
	f.active = cache.NewActiveTokenCache(brokenKV{}, "test")
	f.cacheErrors = nil

	res := RunRotate(context.Background(), pair.AccessToken, pair.RefreshToken, f.rotateDeps())
	if res.Failure != RotateFailureNone {
		t.Fatalf("cache outage must not fail rotation: kind=%d err=%v", res.Failure, res.Err)
	}
	if len(f.cacheErrors) != 2 || f.cacheErrors[0] != "active_get" || f.cacheErrors[1] != "active_set" {
		t.Fatalf("unexpected cache error ops: %v", f.cacheErrors)
	}
}

type conflictStore struct {
	*memory.Store
	err error
}

func (s conflictStore) UpdateActiveToken(context.Context, store.Update) (*store.Record, error) {
	return nil, s.err
}

func TestRotateStoreFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want RotateFailureKind
	}{
		{"lost race", store.ErrConflict, RotateFailureConflict},
		{"vanished", store.ErrNotFound, RotateFailureConflict},
		{"unavailable", store.ErrUnavailable, RotateFailureStore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			pair := f.issue(t, "u1")
			deps := f.rotateDeps()
			deps.Store = conflictStore{Store: f.store, err: tt.err}

			res := RunRotate(context.Background(), pair.AccessToken, pair.RefreshToken, deps)
			if res.Failure != tt.want {
				t.Fatalf("expected kind %d, got %d", tt.want, res.Failure)
			}
			if _, ok, _ := f.active.Get(context.Background(), "u1"); ok {
				t.Fatal("failed CAS must evict the fast-path entry")
			}
		})
	}
}

func TestRotateRecordsRevocationMark(t *testing.T) {
	ctx := context.Background()

	t.Run("mark read before swap", func(t *testing.T) {
		f := newFixture(t)
		pair := f.issue(t, "u1")
		marks := cache.NewRevocationMarks(cachememory.New(cachememory.WithNow(f.clock.Now)), "test")
		mark, err := marks.Mark(ctx, "u1", time.Minute)
		if err != nil {
			t.Fatalf("Mark: %v", err)
		}
		deps := f.rotateDeps()
		deps.Marks = marks

		res := RunRotate(ctx, pair.AccessToken, pair.RefreshToken, deps)
		if res.Failure != RotateFailureNone {
			t.Fatalf("rotate failed: kind=%d err=%v", res.Failure, res.Err)
		}
		if res.Mark != mark || !res.Replayable {
			t.Fatalf("expected mark %q replayable, got %q replayable=%v", mark, res.Mark, res.Replayable)
		}
	})

	t.Run("unreadable mark is not replayable", func(t *testing.T) {
		f := newFixture(t)
		pair := f.issue(t, "u1")
		f.cacheErrors = nil
		deps := f.rotateDeps()
		deps.Marks = cache.NewRevocationMarks(brokenKV{}, "test")

		res := RunRotate(ctx, pair.AccessToken, pair.RefreshToken, deps)
		if res.Failure != RotateFailureNone {
			t.Fatalf("mark outage must not fail rotation: kind=%d err=%v", res.Failure, res.Err)
		}
		if res.Replayable {
			t.Fatal("rotation without a known mark must not be replayable")
		}
		if len(f.cacheErrors) == 0 || f.cacheErrors[0] != "revocation_get" {
			t.Fatalf("unexpected cache error ops: %v", f.cacheErrors)
		}
	})
}

type denyLimiter struct{ owners []string }

func (d *denyLimiter) CheckRefresh(_ context.Context, owner string) error {
	d.owners = append(d.owners, owner)
	return errors.New("rate limited")
}

func TestRotateRateLimited(t *testing.T) {
	f := newFixture(t)
	pair := f.issue(t, "u1")
	limiter := &denyLimiter{}
	deps := f.rotateDeps()
	deps.RateLimiter = limiter

	res := RunRotate(context.Background(), pair.AccessToken, pair.RefreshToken, deps)
	if res.Failure != RotateFailureRateLimited {
		t.Fatalf("expected rate limited, got %d", res.Failure)
	}
	if len(limiter.owners) != 1 || limiter.owners[0] != "u1" {
		t.Fatalf("limiter keyed by %v", limiter.owners)
	}
}

func TestRunRevokeOutcomes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pair := f.issue(t, "u1")
	deps := RevokeDeps{Tokens: f.tokens, Store: f.store, Hasher: f.hasher, Active: f.active}

	if res := RunRevoke(ctx, "garbage", "u1", deps); res.Outcome != RevokeOutcomeInvalidToken {
		t.Fatalf("garbage: %s", res.Outcome)
	}
	if res := RunRevoke(ctx, pair.RefreshToken, "u2", deps); res.Outcome != RevokeOutcomeOwnerMismatch {
		t.Fatalf("owner mismatch: %s", res.Outcome)
	}

	res := RunRevoke(ctx, pair.RefreshToken, "", deps)
	if res.Outcome != RevokeOutcomeRevoked || res.Owner != "u1" {
		t.Fatalf("expected revoke with owner from token, got %s owner=%q", res.Outcome, res.Owner)
	}
	if _, ok, _ := f.active.Get(ctx, "u1"); ok {
		t.Fatal("revoke must evict the fast-path entry")
	}
	if res := RunRevoke(ctx, pair.RefreshToken, "u1", deps); res.Outcome != RevokeOutcomeNotFound {
		t.Fatalf("second revoke: %s", res.Outcome)
	}

	rotated := f.issue(t, "u1")
	if res := RunRevoke(ctx, pair.RefreshToken, "u1", deps); res.Outcome != RevokeOutcomeHashMismatch {
		t.Fatalf("superseded token: %s", res.Outcome)
	}
	if res := RunRevoke(ctx, rotated.RefreshToken, "u1", deps); res.Outcome != RevokeOutcomeRevoked {
		t.Fatalf("current token: %s", res.Outcome)
	}
}

func TestRunRevokeExpiredTokenIsNoop(t *testing.T) {
	f := newFixture(t)
	pair := f.issue(t, "u1")
	f.clock.Advance(testRefreshTTL + time.Minute)

	res := RunRevoke(context.Background(), pair.RefreshToken, "u1", RevokeDeps{Tokens: f.tokens, Store: f.store, Hasher: f.hasher})
	if res.Outcome != RevokeOutcomeNotFound || res.Err != nil {
		t.Fatalf("expired token: %s err=%v", res.Outcome, res.Err)
	}
}

func TestRunIssueRevokesPrevious(t *testing.T) {
	f := newFixture(t)
	first := f.issue(t, "u1")
	second := f.issue(t, "u1")

	if res := RunRotate(context.Background(), first.AccessToken, first.RefreshToken, f.rotateDeps()); res.Failure != RotateFailureHashMismatch {
		t.Fatalf("earlier login must be dead, got kind %d", res.Failure)
	}
	if res := RunRotate(context.Background(), second.AccessToken, second.RefreshToken, f.rotateDeps()); res.Failure != RotateFailureNone {
		t.Fatalf("latest login must rotate: kind=%d err=%v", res.Failure, res.Err)
	}
}
