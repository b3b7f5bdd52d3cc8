package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goRotate/hasher"
	"github.com/MrEthical07/goRotate/jwt"
	"github.com/MrEthical07/goRotate/store"
)

// RevokeOutcome reports what a revoke did. Every outcome except
// RevokeOutcomeFailed is a success from the caller's point of view.
type RevokeOutcome int

const (
	RevokeOutcomeRevoked RevokeOutcome = iota
	RevokeOutcomeInvalidToken
	RevokeOutcomeOwnerMismatch
	RevokeOutcomeNotFound
	RevokeOutcomeHashMismatch
	RevokeOutcomeAlreadyRevoked
	RevokeOutcomeFailed
)

func (o RevokeOutcome) String() string {
	switch o {
	case RevokeOutcomeRevoked:
		return "revoked"
	case RevokeOutcomeInvalidToken:
		return "invalid_token"
	case RevokeOutcomeOwnerMismatch:
		return "owner_mismatch"
	case RevokeOutcomeNotFound:
		return "not_found"
	case RevokeOutcomeHashMismatch:
		return "hash_mismatch"
	case RevokeOutcomeAlreadyRevoked:
		return "already_revoked"
	default:
		return "failed"
	}
}

type RevokeResult struct {
	Outcome  RevokeOutcome
	Err      error
	Owner    string
	RecordID string
}

type RevokeTokens interface {
	ParseRefreshIgnoringExpiry(token string) (*jwt.Claims, error)
}

type RevokeStore interface {
	FindActiveForOwner(ctx context.Context, owner string) (*store.Record, error)
	Revoke(ctx context.Context, rec store.Record) (bool, error)
}

// RevokeDeps captures logout dependencies. Active is optional.
type RevokeDeps struct {
	Tokens     RevokeTokens
	Store      RevokeStore
	Hasher     hasher.Hasher
	Active     ActiveCache
	CacheError func(op string, err error)
}

// RunRevoke marks the record behind refreshToken revoked. An empty owner
// takes the owner from the token itself. Invalid, foreign, unknown and
// already revoked tokens are no-ops.
func RunRevoke(ctx context.Context, refreshToken, owner string, deps RevokeDeps) RevokeResult {
	claims, err := deps.Tokens.ParseRefreshIgnoringExpiry(refreshToken)
	if err != nil {
		return RevokeResult{Outcome: RevokeOutcomeInvalidToken, Owner: owner}
	}
	if owner == "" {
		owner = claims.Owner()
	}
	if claims.Owner() != owner {
		return RevokeResult{Outcome: RevokeOutcomeOwnerMismatch, Owner: owner}
	}

	rec, err := deps.Store.FindActiveForOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return RevokeResult{Outcome: RevokeOutcomeNotFound, Owner: owner}
		}
		return RevokeResult{Outcome: RevokeOutcomeFailed, Err: err, Owner: owner}
	}

	if !deps.Hasher.Compare(refreshToken, rec.SecretHash) {
		return RevokeResult{Outcome: RevokeOutcomeHashMismatch, Owner: owner, RecordID: rec.ID}
	}

	changed, err := deps.Store.Revoke(ctx, *rec)
	if err != nil {
		return RevokeResult{Outcome: RevokeOutcomeFailed, Err: err, Owner: owner, RecordID: rec.ID}
	}

	if deps.Active != nil {
		if err := deps.Active.Delete(ctx, owner); err != nil && deps.CacheError != nil {
			deps.CacheError("active_delete", err)
		}
	}

	if !changed {
		return RevokeResult{Outcome: RevokeOutcomeAlreadyRevoked, Owner: owner, RecordID: rec.ID}
	}
	return RevokeResult{Outcome: RevokeOutcomeRevoked, Owner: owner, RecordID: rec.ID}
}
