package blacklist

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the backing store cannot be reached.
// Callers decide whether that means deny (fail closed) or allow (fail open).
var ErrUnavailable = errors.New("blacklist store unavailable")

// RotateStatus is the outcome of a [Store.RotateCurrent] compare-and-swap.
type RotateStatus int

const (
	// RotateRotated means the presented token id was current and has been
	// replaced by the next token id.
	RotateRotated RotateStatus = iota
	// RotateMismatch means the presented token id is no longer the family's
	// current token. This is the reuse-detection signal.
	RotateMismatch
	// RotateNotFound means the family is unknown or expired.
	RotateNotFound
)

// Store tracks revoked tokens, token families, and per-user revocation epochs.
//
// All mutating operations are idempotent and safe under concurrent use. TTLs
// should match the remaining natural lifetime of the token they guard, so
// entries self-expire once remembering them no longer matters.
type Store interface {
	// IsRevoked reports whether the token id has been individually revoked.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// Revoke blacklists a single token id for the given TTL.
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error

	// IsFamilyRevoked reports whether the whole family has been revoked.
	IsFamilyRevoked(ctx context.Context, familyID string) (bool, error)

	// RevokeFamily marks the family revoked for the given TTL. Idempotent.
	RevokeFamily(ctx context.Context, familyID string, ttl time.Duration) error

	// RegisterFamily records a new family with its first current refresh
	// token id and owning user.
	RegisterFamily(ctx context.Context, familyID, userID, tokenID string, ttl time.Duration) error

	// RotateCurrent advances the family's current token id from presented to
	// next, but only if presented still is the current one. The comparison
	// and swap are atomic: two concurrent calls presenting the same token id
	// yield exactly one RotateRotated and one RotateMismatch.
	RotateCurrent(ctx context.Context, familyID, presentedTokenID, nextTokenID string, ttl time.Duration) (RotateStatus, error)

	// FamilyMembers returns every token id ever registered under the family
	// that has not yet expired out of the store.
	FamilyMembers(ctx context.Context, familyID string) ([]string, error)

	// FamilyOwner returns the user id the family was registered for, or ""
	// when the family is unknown.
	FamilyOwner(ctx context.Context, familyID string) (string, error)

	// UserEpoch returns the user's current revocation epoch. Tokens issued
	// with an older epoch are rejected. Zero for users never bumped.
	UserEpoch(ctx context.Context, userID string) (int64, error)

	// BumpUserEpoch increments the user's revocation epoch and returns the
	// new value. This is the O(1) logout-all primitive.
	BumpUserEpoch(ctx context.Context, userID string) (int64, error)

	// Ping checks backend availability.
	Ping(ctx context.Context) error
}
