// Package middleware exposes net/http adapters around goRotate.Engine
// access-token validation and rotation.
//
// # Guards
//
//   - [Guard] rejects requests without a valid access token.
//   - [AutoRefresh] attaches claims when present and transparently rotates
//     an expired access token using the refresh cookie.
//   - [RequireClaims] rejects requests no earlier guard authenticated.
//
// Each guard reads the Authorization header and injects validated claims
// into the request context, retrievable with [ClaimsFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Token parsing,
// rotation and revocation are delegated to the Engine; cookie and header
// conventions are shared with package httpapi.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access the token store or caches.
//   - Make authorization decisions beyond pass/reject.
package middleware
