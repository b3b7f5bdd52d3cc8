// Package jwt signs and verifies the compact tokens exchanged during session
// rotation: short-lived access tokens and long-lived refresh tokens.
//
// A [Codec] handles one token kind with one key. Verification distinguishes
// [ErrExpired] (authentic but stale) from [ErrInvalidSignature] (everything
// else) so callers can tell a garbage token from a legitimate old one.
// [Codec.VerifyIgnoringExpiry] exists for the access token presented during
// rotation, which is expected to be expired.
//
// [Manager] pairs an access codec with a refresh codec and mints both tokens
// for an owner in one call.
package jwt
