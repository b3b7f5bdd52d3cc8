package goRotate

import "errors"

var (
	// ErrInvalidSignature is returned when the refresh token is forged, malformed
	// or otherwise fails verification for a reason other than expiry.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrRefreshExpired is returned when the refresh token is authentic but past
	// its expiry. The client must log in again.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrInvalidAccessToken is returned when the access token presented with a
	// refresh fails signature verification. Expiry alone never causes it.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrAccessTokenExpired is returned by ValidateAccess for an authentic but
	// expired access token.
	ErrAccessTokenExpired = errors.New("access token expired")
	// ErrInvalidRefreshToken is returned when no active record matches the
	// presented refresh token: unknown, revoked, superseded by a rotation, or
	// issued for another owner. Clients should treat it as a forced logout.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrLockContention is returned when another request is rotating the same
	// pair and did not finish within Lock.WaitTimeout. Retrying is safe.
	ErrLockContention = errors.New("refresh already in progress")
	// ErrStoreUnavailable wraps durable store failures.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrRefreshRateLimited is returned when the owner's refresh budget is spent.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrMalformedRequest is returned when a required token is missing.
	ErrMalformedRequest = errors.New("malformed refresh request")
	// ErrEngineNotReady is returned by methods on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrorClass groups errors by how a caller should react.
type ErrorClass int

const (
	// ClassInternal: infrastructure or programming failure. Log and return 5xx.
	ClassInternal ErrorClass = iota
	// ClassFatal: the presented credentials are unusable. Do not retry.
	ClassFatal
	// ClassTransient: retry after a short delay with the same credentials.
	ClassTransient
)

func (c ErrorClass) String() string {
	switch c {
	case ClassFatal:
		return "fatal"
	case ClassTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Classify maps an error returned by the Engine to its ErrorClass.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrLockContention),
		errors.Is(err, ErrRefreshRateLimited):
		return ClassTransient
	case errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrRefreshExpired),
		errors.Is(err, ErrInvalidAccessToken),
		errors.Is(err, ErrAccessTokenExpired),
		errors.Is(err, ErrInvalidRefreshToken),
		errors.Is(err, ErrMalformedRequest):
		return ClassFatal
	default:
		return ClassInternal
	}
}
