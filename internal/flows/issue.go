package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goRotate/hasher"
	"github.com/MrEthical07/goRotate/jwt"
	"github.com/MrEthical07/goRotate/store"
)

// IssueFailureKind classifies issuance failures.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureMint
	IssueFailureHash
	IssueFailureStore
)

type IssueResult struct {
	Failure IssueFailureKind
	Err     error
	Record  *store.Record
	Pair    *jwt.Pair
}

type IssueTokens interface {
	MintPair(owner string) (jwt.Pair, error)
}

type IssueStore interface {
	Create(ctx context.Context, owner, secretHash string, expiresAt time.Time) (*store.Record, error)
}

// IssueDeps captures issuance dependencies. Active is optional.
type IssueDeps struct {
	Tokens     IssueTokens
	Store      IssueStore
	Hasher     hasher.Hasher
	Active     ActiveCache
	ActiveTTL  time.Duration
	CacheError func(op string, err error)
}

// RunIssue mints a first pair for owner and persists its refresh digest.
// The store revokes the owner's earlier records as part of Create.
func RunIssue(ctx context.Context, owner string, deps IssueDeps) IssueResult {
	pair, err := deps.Tokens.MintPair(owner)
	if err != nil {
		return IssueResult{Failure: IssueFailureMint, Err: err}
	}

	digest, err := deps.Hasher.Hash(pair.RefreshToken)
	if err != nil {
		return IssueResult{Failure: IssueFailureHash, Err: err}
	}

	rec, err := deps.Store.Create(ctx, owner, digest, pair.RefreshExpiresAt)
	if err != nil {
		return IssueResult{Failure: IssueFailureStore, Err: err}
	}

	if deps.Active != nil {
		if err := deps.Active.Set(ctx, rec, deps.ActiveTTL); err != nil && deps.CacheError != nil {
			deps.CacheError("active_set", err)
		}
	}

	return IssueResult{Failure: IssueFailureNone, Record: rec, Pair: &pair}
}
