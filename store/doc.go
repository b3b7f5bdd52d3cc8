// Package store defines the durable record of the current refresh token per
// owner and the contract every backend implements.
//
// # Architecture boundaries
//
// The store is the single source of truth for rotation. Caches in front of it
// are optional and re-derivable. Every state transition is a conditional
// update so two concurrent rotations of the same token cannot both succeed.
//
// Backends live in subpackages: postgres, redisstore, bolt and memory. The
// storetest package holds the behaviour suite they all pass.
//
// # What this package must NOT do
//
//   - Hash, sign or interpret tokens. Callers pass pre-computed digests.
//   - Import goRotate, jwt or cache.
package store
