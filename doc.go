// Package authcore provides a session-management core built on JWT access
// tokens and rotating refresh tokens with reuse detection, backed by a
// revocation blacklist, per-action rate limiting, and asynchronous audit
// logging.
//
// The package is a library, not a server: credential storage and the HTTP
// layer stay with the caller. A [CredentialVerifier] supplies identity
// checks; [Service] methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Service], [Builder], [Config],
// the error sentinels, and context carriers. Token encoding, blacklist
// backends, rate limiting, and audit dispatch live in sub-packages and are
// orchestrated here.
//
// # What this package must NOT do
//
//   - Store or hash credentials. Password verification belongs to the
//     [CredentialVerifier]; the password sub-package is an optional helper
//     for implementing one.
//   - Expose which stage of a login failed. [PublicError] collapses
//     credential and token failures to [ErrAuthenticationFailed] for the
//     outer boundary.
//   - Perform I/O during construction beyond the single backend probe in
//     [Builder.Build].
package authcore
