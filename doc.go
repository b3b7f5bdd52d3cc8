// Package goRotate issues and rotates JWT access/refresh token pairs against
// a durable store of hashed refresh credentials.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Rotation
//
// [Engine.Refresh] trades a pair for a new one. The refresh token is
// single-use: the store swaps its argon2id digest with a conditional update,
// so of any number of concurrent rotations of one token exactly one wins.
// Identical requests are coalesced in-process, serialized across processes
// by a short-lived lock, and answered from an idempotency cache for a short
// window, so a client that retries a refresh gets the same pair back rather
// than a forced logout.
//
// # Architecture boundaries
//
// goRotate is the public surface: [Engine], [Builder], [Config], the error
// sentinels and value types. Flow orchestration, rate limiting and audit
// dispatch live under internal/. Storage backends live under store/ and
// cache backends under cache/; both are interfaces the caller may implement.
//
// # Failure model
//
// The store is authoritative. Cache failures are logged, counted under
// [MetricCacheError] and treated as misses; they never fail a request.
// Store failures wrap [ErrStoreUnavailable]. Use [Classify] to decide
// between retrying, forcing a new login, and reporting a 5xx.
package goRotate
