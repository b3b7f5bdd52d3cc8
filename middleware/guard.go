package middleware

import (
	"context"
	"errors"
	"net/http"

	goRotate "github.com/MrEthical07/goRotate"
	"github.com/MrEthical07/goRotate/httpapi"
)

// Validator checks access tokens. *goRotate.Engine satisfies it.
type Validator interface {
	ValidateAccess(ctx context.Context, token string) (*goRotate.Claims, error)
}

// Refresher validates access tokens and rotates expired ones.
type Refresher interface {
	Validator
	Refresh(ctx context.Context, accessToken, refreshToken string) (*goRotate.TokenPair, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims a guard attached to the request.
func ClaimsFromContext(ctx context.Context) (*goRotate.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*goRotate.Claims)
	return claims, ok
}

func withClaims(r *http.Request, claims *goRotate.Claims) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), claimsContextKey{}, claims))
}

// Guard rejects requests without a valid, unexpired access token.
func Guard(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := httpapi.BearerToken(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.ValidateAccess(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, withClaims(r, claims))
		})
	}
}

// AutoRefresh attaches claims when the request carries a valid access
// token. An expired access token paired with a refresh cookie is rotated
// in place: the new refresh token is set as a cookie, the new access token
// is returned in X-Access-Token, and the request continues as the owner.
//
// Requests without a token, or whose rotation fails, continue anonymously.
// A malformed or forged access token is rejected with 401. Pair it with
// RequireClaims on routes that need a caller.
func AutoRefresh(r Refresher, cookie httpapi.CookieOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			token, ok := httpapi.BearerToken(req)
			if !ok || r == nil {
				next.ServeHTTP(w, req)
				return
			}

			claims, err := r.ValidateAccess(req.Context(), token)
			switch {
			case err == nil:
				next.ServeHTTP(w, withClaims(req, claims))
				return
			case !errors.Is(err, goRotate.ErrAccessTokenExpired):
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			refresh := httpapi.RefreshToken(req, cookie)
			if refresh == "" {
				next.ServeHTTP(w, req)
				return
			}

			ctx := goRotate.WithClientIP(req.Context(), httpapi.ClientIP(req))
			pair, err := r.Refresh(ctx, token, refresh)
			if err != nil {
				next.ServeHTTP(w, req)
				return
			}

			claims, err = r.ValidateAccess(req.Context(), pair.AccessToken)
			if err != nil {
				next.ServeHTTP(w, req)
				return
			}

			httpapi.SetRefreshCookie(w, cookie, pair.RefreshToken, pair.RefreshExpiresAt)
			w.Header().Set(AccessTokenHeader, pair.AccessToken)
			w.Header().Add("Access-Control-Expose-Headers", AccessTokenHeader)
			next.ServeHTTP(w, withClaims(req, claims))
		})
	}
}

// AccessTokenHeader carries a rotated access token back to the client.
const AccessTokenHeader = "X-Access-Token"

// RequireClaims rejects requests that no earlier guard authenticated.
func RequireClaims(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ClaimsFromContext(r.Context()); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
