// Package internal contains helpers private to goRotate.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for the rotation, issue and revoke operations
//   - rate: Redis-backed fixed-window refresh throttle
//   - dbx: database/sql transaction helper
//   - config, logging, server: the reference server
//
// # What this package must NOT do
//
//   - Export types that appear in the public goRotate API.
//   - Be imported by any package outside the goRotate module.
package internal
