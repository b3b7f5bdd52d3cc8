// Package hasher implements one-way, salted hashing of refresh-token secrets
// (and, separately, user passwords) with Argon2id.
//
// # Output format
//
// Digests are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports digests produced with weaker parameters so callers
// can re-hash on the next successful verification.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets. Callers supply plaintext and receive digests.
//   - Import any other goRotate package.
//   - Log plaintext secrets or digests.
package hasher
