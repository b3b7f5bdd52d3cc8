package jwt

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes access from refresh tokens in the "kind" claim so one
// cannot be replayed as the other even when both share a key.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the payload carried by every token. Subject holds the owner.
type Claims struct {
	Kind Kind `json:"kind"`
	// Timestamp is the creation instant in Unix nanoseconds. Refresh tokens
	// always carry it so two tokens minted in the same second differ.
	Timestamp int64 `json:"ts,omitempty"`
	jwt.RegisteredClaims
}

// Owner returns the subject identifier.
func (c *Claims) Owner() string { return c.Subject }

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Pair is a freshly minted access/refresh token pair.
type Pair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
