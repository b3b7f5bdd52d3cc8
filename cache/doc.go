// Package cache provides the short-lived caches used by rotation, each
// layered over an injected key-value store with TTL support ([KV]):
//
//   - [LockCache]: set-if-absent mutual exclusion keyed by request
//     fingerprint. The TTL is the deadlock failsafe.
//   - [IdempotencyCache]: the token pair produced for a fingerprint, held for
//     a short replay window.
//   - [RevocationMarks]: a per-owner mark rewritten on logout so replays
//     minted before it stop validating.
//   - [ActiveTokenCache]: a per-owner mirror of the durable record for the
//     fast path.
//
// The caches are independent: each may sit on its own KV instance. All of
// them are best-effort. Callers treat errors as misses and fall back to the
// durable store.
//
// Backends: [memory.KV] (in-process, injectable clock) and rediscache.KV.
package cache
