package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/repensar/authcore/blacklist"
	"github.com/repensar/authcore/ratelimit"
	"github.com/repensar/authcore/token"
)

var (
	// ErrInvalidCredentials is returned when identifier or password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned when the account is administratively locked.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is returned when the account is deactivated.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrRateLimited is returned when an attempt budget is exhausted. Errors
	// carrying it are usually a *RateLimitedError with the retry delay.
	ErrRateLimited = errors.New("rate limited")
	// ErrTokenExpired is returned when a token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed is returned when a token cannot be parsed or its
	// claims are incomplete.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenBadSignature is returned when the signature does not verify.
	ErrTokenBadSignature = errors.New("token signature invalid")
	// ErrTokenRevoked is returned when a structurally valid token has been
	// revoked, belongs to a revoked family, or predates a logout-all.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenReuseDetected is returned when an already-consumed refresh
	// token is presented again. The whole family is revoked as a side effect.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached and the configured policy does not permit proceeding.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrAuthenticationFailed is the collapsed public form of credential and
	// token failures. See [PublicError].
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// RateLimitedError wraps ErrRateLimited with the delay after which the
// caller may retry.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// PublicError maps err to the form safe to show an unauthenticated caller.
// Credential and token failures collapse to [ErrAuthenticationFailed] so
// responses do not reveal whether an account exists or which check failed.
// Rate limit errors pass through with their retry delay; store availability
// collapses too, since outages must not be probeable from outside.
func PublicError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRateLimited):
		return err
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrAccountDisabled),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrTokenBadSignature),
		errors.Is(err, ErrTokenRevoked),
		errors.Is(err, ErrTokenReuseDetected),
		errors.Is(err, ErrStoreUnavailable):
		return ErrAuthenticationFailed
	default:
		return ErrAuthenticationFailed
	}
}

// mapError lifts sub-package sentinels into the root taxonomy so callers
// only ever match against authcore errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrBadSignature):
		return ErrTokenBadSignature
	case errors.Is(err, token.ErrMalformed):
		return ErrTokenMalformed
	case errors.Is(err, token.ErrReuseDetected):
		return ErrTokenReuseDetected
	case errors.Is(err, token.ErrRevoked):
		return ErrTokenRevoked
	case errors.Is(err, blacklist.ErrUnavailable),
		errors.Is(err, ratelimit.ErrUnavailable):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}
