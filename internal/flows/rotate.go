package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goRotate/hasher"
	"github.com/MrEthical07/goRotate/jwt"
	"github.com/MrEthical07/goRotate/store"
)

// RotateFailureKind classifies rotation failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureRefreshExpired
	RotateFailureRefreshInvalid
	RotateFailureAccessInvalid
	RotateFailureOwnerMismatch
	RotateFailureRateLimited
	RotateFailureRecordMissing
	RotateFailureHashMismatch
	RotateFailureMint
	RotateFailureHash
	RotateFailureConflict
	RotateFailureStore
)

// RotateResult carries either the new pair or failure metadata.
type RotateResult struct {
	Failure  RotateFailureKind
	Err      error
	Owner    string
	RecordID string
	FastPath bool
	Pair     *jwt.Pair
	// Mark is the owner's revocation mark read before the swap. Replayable
	// is false when the mark could not be read.
	Mark       string
	Replayable bool
}

type RotateTokens interface {
	ParseRefresh(token string) (*jwt.Claims, error)
	ParseAccessIgnoringExpiry(token string) (*jwt.Claims, error)
	MintPair(owner string) (jwt.Pair, error)
}

type RotateStore interface {
	FindActiveForOwner(ctx context.Context, owner string) (*store.Record, error)
	UpdateActiveToken(ctx context.Context, u store.Update) (*store.Record, error)
}

// ActiveCache is the per-owner fast-path mirror of the durable record.
type ActiveCache interface {
	Get(ctx context.Context, owner string) (*store.Record, bool, error)
	Set(ctx context.Context, rec *store.Record, ttl time.Duration) error
	Delete(ctx context.Context, owner string) error
}

// RevocationMarks reads the per-owner mark that logout rewrites.
type RevocationMarks interface {
	Current(ctx context.Context, owner string) (string, error)
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, owner string) error
}

// RotateDeps captures rotation dependencies. Active, Marks and RateLimiter
// are optional.
type RotateDeps struct {
	Tokens      RotateTokens
	Store       RotateStore
	Hasher      hasher.Hasher
	Active      ActiveCache
	ActiveTTL   time.Duration
	Marks       RevocationMarks
	RateLimiter RefreshRateLimiter
	Now         func() time.Time
	// CacheError observes fast-path failures, which never fail the flow.
	CacheError func(op string, err error)
}

// RunRotate validates the presented pair against the authoritative record
// and swaps in a freshly minted pair. The caller holds the rotation lock.
func RunRotate(ctx context.Context, accessToken, refreshToken string, deps RotateDeps) RotateResult {
	refreshClaims, err := deps.Tokens.ParseRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return RotateResult{Failure: RotateFailureRefreshExpired, Err: err}
		}
		return RotateResult{Failure: RotateFailureRefreshInvalid, Err: err}
	}

	accessClaims, err := deps.Tokens.ParseAccessIgnoringExpiry(accessToken)
	if err != nil {
		return RotateResult{Failure: RotateFailureAccessInvalid, Err: err}
	}

	owner := accessClaims.Owner()
	if refreshClaims.Owner() != owner {
		return RotateResult{Failure: RotateFailureOwnerMismatch, Owner: owner}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, owner); err != nil {
			return RotateResult{Failure: RotateFailureRateLimited, Err: err, Owner: owner}
		}
	}

	// The mark must be read before the swap: a logout that lands after it
	// then always moves the mark past the one recorded for replay.
	mark, replayable := "", true
	if deps.Marks != nil {
		m, err := deps.Marks.Current(ctx, owner)
		if err != nil {
			deps.cacheError("revocation_get", err)
			replayable = false
		}
		mark = m
	}

	rec, fastPath, res := lookupActive(ctx, owner, refreshToken, deps)
	if res.Failure != RotateFailureNone {
		return res
	}

	pair, err := deps.Tokens.MintPair(owner)
	if err != nil {
		return RotateResult{Failure: RotateFailureMint, Err: err, Owner: owner, RecordID: rec.ID}
	}

	digest, err := deps.Hasher.Hash(pair.RefreshToken)
	if err != nil {
		return RotateResult{Failure: RotateFailureHash, Err: err, Owner: owner, RecordID: rec.ID}
	}

	updated, err := deps.Store.UpdateActiveToken(ctx, store.Update{
		Owner:         owner,
		ID:            rec.ID,
		PreviousHash:  rec.SecretHash,
		NextHash:      digest,
		NextExpiresAt: pair.RefreshExpiresAt,
	})
	if err != nil {
		evictActive(ctx, owner, deps)
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			return RotateResult{Failure: RotateFailureConflict, Err: err, Owner: owner, RecordID: rec.ID}
		}
		return RotateResult{Failure: RotateFailureStore, Err: err, Owner: owner, RecordID: rec.ID}
	}

	if deps.Active != nil {
		if err := deps.Active.Set(ctx, updated, deps.ActiveTTL); err != nil {
			deps.cacheError("active_set", err)
		}
	}

	return RotateResult{
		Failure:    RotateFailureNone,
		Owner:      owner,
		RecordID:   updated.ID,
		FastPath:   fastPath,
		Pair:       &pair,
		Mark:       mark,
		Replayable: replayable,
	}
}

// lookupActive resolves the owner's record, fast path first. A cached entry
// that is stale or does not match falls through to the store before the
// token is rejected.
func lookupActive(ctx context.Context, owner, refreshToken string, deps RotateDeps) (*store.Record, bool, RotateResult) {
	if deps.Active != nil {
		cached, ok, err := deps.Active.Get(ctx, owner)
		switch {
		case err != nil:
			deps.cacheError("active_get", err)
		case ok && cached.Active(deps.now()) && deps.Hasher.Compare(refreshToken, cached.SecretHash):
			return cached, true, RotateResult{}
		}
	}

	rec, err := deps.Store.FindActiveForOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			evictActive(ctx, owner, deps)
			return nil, false, RotateResult{Failure: RotateFailureRecordMissing, Err: err, Owner: owner}
		}
		return nil, false, RotateResult{Failure: RotateFailureStore, Err: err, Owner: owner}
	}

	if !deps.Hasher.Compare(refreshToken, rec.SecretHash) {
		evictActive(ctx, owner, deps)
		return nil, false, RotateResult{Failure: RotateFailureHashMismatch, Owner: owner, RecordID: rec.ID}
	}

	return rec, false, RotateResult{}
}

func evictActive(ctx context.Context, owner string, deps RotateDeps) {
	if deps.Active == nil {
		return
	}
	if err := deps.Active.Delete(ctx, owner); err != nil {
		deps.cacheError("active_delete", err)
	}
}

func (d RotateDeps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d RotateDeps) cacheError(op string, err error) {
	if d.CacheError != nil {
		d.CacheError(op, err)
	}
}
