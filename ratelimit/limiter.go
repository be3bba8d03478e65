package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Well-known limiter actions. The set is open: any string names an action,
// provided a profile is configured for it.
const (
	ActionLogin         = "login"
	ActionRegister      = "register"
	ActionRefresh       = "refresh"
	ActionPasswordReset = "password_reset"
)

var (
	// ErrUnavailable is returned when the backing store cannot be reached.
	ErrUnavailable = errors.New("rate limit store unavailable")
	// ErrUnknownAction is returned when no profile is configured for the
	// requested action.
	ErrUnknownAction = errors.New("unknown rate limit action")
)

// Profile is the budget for one action: MaxAttempts per Window, then a
// lockout of Lockout (or, when Lockout is zero, a denial for the remainder
// of the window).
type Profile struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

// Result reports a [Limiter.CheckAndRecord] outcome. RetryAfter is only
// meaningful when Allowed is false.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter enforces attempt budgets per (identity, action) pair. Identity is
// typically a client IP or user identifier.
type Limiter interface {
	// CheckAndRecord counts this attempt and reports whether it is allowed.
	// Attempts made while locked out do not extend the lockout.
	CheckAndRecord(ctx context.Context, identity, action string) (Result, error)

	// Reset clears the counter and any lockout for the pair, typically after
	// a successful authenticated action.
	Reset(ctx context.Context, identity, action string) error
}

// DefaultProfiles returns the stock action budgets. All values are
// configuration, not behavior: callers override freely.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		ActionLogin:         {MaxAttempts: 5, Window: 5 * time.Minute, Lockout: 15 * time.Minute},
		ActionRegister:      {MaxAttempts: 3, Window: time.Hour},
		ActionRefresh:       {MaxAttempts: 10, Window: time.Minute},
		ActionPasswordReset: {MaxAttempts: 3, Window: time.Hour},
	}
}

func validateProfiles(profiles map[string]Profile) error {
	if len(profiles) == 0 {
		return errors.New("at least one rate limit profile required")
	}
	for action, p := range profiles {
		if action == "" {
			return errors.New("rate limit profile with empty action")
		}
		if p.MaxAttempts <= 0 {
			return errors.New("rate limit MaxAttempts must be > 0 for " + action)
		}
		if p.Window <= 0 {
			return errors.New("rate limit Window must be > 0 for " + action)
		}
		if p.Lockout < 0 {
			return errors.New("rate limit Lockout must be >= 0 for " + action)
		}
	}
	return nil
}

func cloneProfiles(profiles map[string]Profile) map[string]Profile {
	out := make(map[string]Profile, len(profiles))
	for action, p := range profiles {
		out[action] = p
	}
	return out
}
