// Package blacklist provides revocation state for the token subsystem: per-token
// blacklist entries, token-family registration and rotation, and per-user
// revocation epochs.
//
// # Backends
//
// Two implementations share the [Store] contract. [Redis] is the production
// backend: entries carry native TTLs, family membership lives in Redis sets,
// and the rotation step is a Lua compare-and-swap so that concurrent refresh
// attempts against the same token produce exactly one winner. [Memory] is a
// mutex-guarded in-process fallback for single-instance and development
// deployments; its state does not survive a restart and is not shared across
// instances.
//
// Backend selection happens once at process start. Nothing in this package
// branches on which backend is active.
//
// # What this package must NOT do
//
//   - Parse or verify tokens (that belongs to the token package).
//   - Decide fail-open vs fail-closed policy; it only reports
//     [ErrUnavailable] and leaves the decision to the caller.
package blacklist
