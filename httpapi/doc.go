// Package httpapi exposes Engine refresh and logout over HTTP.
//
// The refresh token travels in an HttpOnly cookie for browsers or the
// X-Refresh-Token header for native clients; the access token travels in
// the Authorization header. Errors are JSON bodies of the form
//
//	{"error": {"code": "invalid_refresh_token", "message": "..."}}
//
// with the status chosen by [StatusFor].
package httpapi
