// Package token implements the signed-token layer of the session core: a JWT
// codec for issuing and verifying self-contained credentials, and a manager
// that adds rotation, reuse detection, and revocation on top of it.
//
// The split is deliberate. [Codec.Verify] answers only "is this token
// cryptographically and temporally valid" — it never consults revocation
// state. [Manager] owns the business rules: token families, the
// rotate-with-reuse-detection state machine, per-user revocation epochs, and
// the fail-open/fail-closed policy when the blacklist store is unreachable.
//
// # What this package must NOT do
//
//   - Rate limit, audit, or look up user accounts (the service façade does).
//   - Branch on which blacklist backend is active.
package token
