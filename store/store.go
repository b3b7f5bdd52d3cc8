package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by FindActiveForOwner when the owner has no
	// active record.
	ErrNotFound = errors.New("store: no active record")
	// ErrConflict is returned by UpdateActiveToken when no record matches the
	// expected owner, id and previous hash, or the match is revoked or expired.
	ErrConflict = errors.New("store: conditional update failed")
	// ErrUnavailable wraps every infrastructure failure.
	ErrUnavailable = errors.New("store: backend unavailable")
)

// Record is one active or historical refresh credential.
type Record struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner"`
	SecretHash string    `json:"token"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Revoked    bool      `json:"revoked"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Active reports whether r is usable for rotation at now.
func (r *Record) Active(now time.Time) bool {
	return r != nil && !r.Revoked && now.Before(r.ExpiresAt)
}

// Update describes one rotation: the record identified by Owner and ID moves
// from PreviousHash to NextHash.
type Update struct {
	Owner         string
	ID            string
	PreviousHash  string
	NextHash      string
	NextExpiresAt time.Time
}

// Store is the durable refresh-token store.
//
// All methods are safe for concurrent use. Queries are scoped by owner and
// only consider records that are not revoked and not expired, except where
// noted.
type Store interface {
	// Create inserts a new active record for owner. Earlier active records
	// of the same owner are revoked in the same atomic step.
	Create(ctx context.Context, owner, secretHash string, expiresAt time.Time) (*Record, error)
	// FindActiveForOwner returns the newest active record, or ErrNotFound.
	FindActiveForOwner(ctx context.Context, owner string) (*Record, error)
	// UpdateActiveToken swaps the stored hash and expiry when the record is
	// still active and still holds PreviousHash. Otherwise ErrConflict.
	UpdateActiveToken(ctx context.Context, u Update) (*Record, error)
	// Revoke marks rec revoked when it is still active and still holds
	// rec.SecretHash. It reports whether a record changed; a record that is
	// already gone is not an error.
	Revoke(ctx context.Context, rec Record) (bool, error)
	// RevokeAllForOwner revokes every active record of owner.
	RevokeAllForOwner(ctx context.Context, owner string) (int64, error)
	// DeleteExpired removes records whose expiry is at or before now,
	// revoked or not.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// Ping checks backend availability.
	Ping(ctx context.Context) error
}
