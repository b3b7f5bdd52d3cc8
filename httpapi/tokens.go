package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// RefreshTokenCookie is the default cookie carrying the refresh token.
	RefreshTokenCookie = "refreshToken"
	// RefreshTokenHeader carries the refresh token for clients without a
	// cookie jar.
	RefreshTokenHeader = "X-Refresh-Token"
)

// CookieOptions controls the refresh token cookie. The zero value is a
// Secure, SameSite=None cookie named refreshToken on path "/".
type CookieOptions struct {
	Name   string
	Path   string
	Domain string
	// Insecure drops the Secure attribute. Only for local development over
	// plain HTTP; with it SameSite falls back to Lax, since browsers reject
	// SameSite=None without Secure.
	Insecure bool
}

func (o CookieOptions) name() string {
	if o.Name == "" {
		return RefreshTokenCookie
	}
	return o.Name
}

func (o CookieOptions) path() string {
	if o.Path == "" {
		return "/"
	}
	return o.Path
}

func (o CookieOptions) sameSite() http.SameSite {
	if o.Insecure {
		return http.SameSiteLaxMode
	}
	return http.SameSiteNoneMode
}

// SetRefreshCookie writes the HttpOnly refresh cookie expiring with the token.
func SetRefreshCookie(w http.ResponseWriter, opts CookieOptions, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.name(),
		Value:    token,
		Path:     opts.path(),
		Domain:   opts.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   !opts.Insecure,
		SameSite: opts.sameSite(),
	})
}

// ClearRefreshCookie expires the refresh cookie immediately.
func ClearRefreshCookie(w http.ResponseWriter, opts CookieOptions) {
	http.SetCookie(w, &http.Cookie{
		Name:     opts.name(),
		Value:    "",
		Path:     opts.path(),
		Domain:   opts.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !opts.Insecure,
		SameSite: opts.sameSite(),
	})
}

// RefreshToken reads the refresh token from the cookie, falling back to
// the X-Refresh-Token header.
func RefreshToken(r *http.Request, opts CookieOptions) string {
	if c, err := r.Cookie(opts.name()); err == nil && c.Value != "" {
		return c.Value
	}
	return strings.TrimSpace(r.Header.Get(RefreshTokenHeader))
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	const bearer = "Bearer "
	value := r.Header.Get("Authorization")
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// ClientIP returns the request's remote host without the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
