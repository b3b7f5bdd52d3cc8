package httpapi

import (
	"errors"
	"net/http"

	goRotate "github.com/MrEthical07/goRotate"
)

// StatusFor maps an Engine error to the HTTP status the handlers send.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, goRotate.ErrMalformedRequest):
		return http.StatusForbidden
	case errors.Is(err, goRotate.ErrInvalidSignature),
		errors.Is(err, goRotate.ErrInvalidAccessToken),
		errors.Is(err, goRotate.ErrAccessTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, goRotate.ErrRefreshExpired),
		errors.Is(err, goRotate.ErrInvalidRefreshToken):
		return http.StatusForbidden
	case errors.Is(err, goRotate.ErrLockContention):
		return http.StatusConflict
	case errors.Is(err, goRotate.ErrRefreshRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode is the stable machine-readable code written to error bodies.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, goRotate.ErrMalformedRequest):
		return "malformed_request"
	case errors.Is(err, goRotate.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, goRotate.ErrInvalidAccessToken):
		return "invalid_access_token"
	case errors.Is(err, goRotate.ErrAccessTokenExpired):
		return "access_token_expired"
	case errors.Is(err, goRotate.ErrRefreshExpired):
		return "refresh_expired"
	case errors.Is(err, goRotate.ErrInvalidRefreshToken):
		return "invalid_refresh_token"
	case errors.Is(err, goRotate.ErrLockContention):
		return "refresh_in_progress"
	case errors.Is(err, goRotate.ErrRefreshRateLimited):
		return "rate_limited"
	default:
		return "internal_error"
	}
}

// errorMessage keeps infrastructure details out of responses.
func errorMessage(err error) string {
	if StatusFor(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}
