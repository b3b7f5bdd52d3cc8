package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint identifies one exact (access, refresh) pair: lowercase hex
// SHA-256 of access + "::" + refresh. It keys the rotation lock and the
// idempotency entry.
func Fingerprint(accessToken, refreshToken string) string {
	h := sha256.New()
	h.Write([]byte(accessToken))
	h.Write([]byte("::"))
	h.Write([]byte(refreshToken))
	return hex.EncodeToString(h.Sum(nil))
}

// ShortFingerprint truncates a fingerprint for log lines.
func ShortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
