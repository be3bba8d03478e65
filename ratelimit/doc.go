// Package ratelimit provides per-(identity, action) attempt counters with
// lockout escalation for authentication workflows.
//
// # Window semantics
//
// Fixed-window counters: increment, set the window TTL on the first hit,
// escalate to a lockout key once the configured budget is exceeded. While a
// lockout is active every call reports the remaining lockout time without
// extending it. A successful authenticated action resets the pair's counter
// so legitimate users are not punished for earlier mistakes.
//
// Two backends share the [Limiter] contract: [Memory] (mutex-guarded,
// instance-local) and [Redis] (shared across instances, INCR+EXPIRE and
// SET NX lockout keys).
package ratelimit
