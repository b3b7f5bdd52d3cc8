// Package flows contains pure-function orchestrators for the Engine's token
// operations.
//
// Each flow function (RunRotate, RunIssue, RunRevoke) accepts a typed
// dependency struct and returns a result value without side effects beyond
// those dependencies. Failures come back as a kind enum so the Engine alone
// decides the public error, metric and audit event.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the token manager, hasher, store, fast-path
// cache and rate limiter. They do NOT own any of these resources; ownership
// stays with the Engine. Locking, idempotency and in-process coalescing are
// the Engine's concern and happen around RunRotate.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goRotate (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
