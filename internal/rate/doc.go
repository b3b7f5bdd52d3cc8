// Package rate provides the Redis-backed refresh throttle.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// <prefix>:ar:<owner>, one counter per owner.
//
// # What this package must NOT do
//
//   - Decide how a throttled refresh is reported (the engine maps ErrRateLimited).
//   - Be imported outside the goRotate module.
package rate
