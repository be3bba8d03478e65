package authcore

import (
	"errors"
	"time"

	"github.com/repensar/authcore/ratelimit"
)

// Config holds all tunables for a [Service]. Configure once before
// [Builder.Build]; treat as immutable afterwards.
type Config struct {
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Blacklist BlacklistConfig
	Audit     AuditConfig
	Security  SecurityConfig
	Redis     RedisConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing and lifetimes.
type JWTConfig struct {
	// SigningKey is the HS256 secret, at least 32 bytes.
	SigningKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
}

// RateLimitConfig maps actions to attempt budgets. Empty means
// [ratelimit.DefaultProfiles].
type RateLimitConfig struct {
	Profiles map[string]ratelimit.Profile
}

// BlacklistConfig controls the revocation store.
type BlacklistConfig struct {
	// RedisPrefix namespaces all keys, shared with the rate limiter and
	// audit history. Defaults to "ac".
	RedisPrefix string
	// SweepSchedule is a cron expression for the memory backend's expired
	// entry sweeper. Empty disables the sweeper. Ignored on Redis.
	SweepSchedule string
}

// AuditConfig controls the async audit pipeline.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// HistorySize bounds the queryable event window.
	HistorySize int
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds cross-cutting policy knobs.
type SecurityConfig struct {
	// FailOpen lets revocation *reads* pass when the store is unreachable.
	// Writes and rotation always fail closed. Default false.
	FailOpen bool
	// RevokeAccessOnFamilyRevocation extends the family check to access
	// token authorization, at the cost of an extra store read per call.
	RevokeAccessOnFamilyRevocation bool
	// StoreTimeout bounds the startup probe of the Redis backend.
	StoreTimeout time.Duration
}

// RedisConfig describes the shared store connection. A client passed via
// [Builder.WithRedis] takes precedence.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Profiles: ratelimit.DefaultProfiles(),
		},
		Blacklist: BlacklistConfig{
			RedisPrefix:   "ac",
			SweepSchedule: "@every 5m",
		},
		Audit: AuditConfig{
			Enabled:     true,
			BufferSize:  256,
			DropIfFull:  true,
			HistorySize: 1024,
		},
		Security: SecurityConfig{
			StoreTimeout: 3 * time.Second,
		},
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if len(c.JWT.SigningKey) < 32 {
		return errors.New("JWT.SigningKey must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT.AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT.RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT.RefreshTTL must be greater than JWT.AccessTTL")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.Enabled && c.Audit.HistorySize < 0 {
		return errors.New("Audit.HistorySize must be >= 0")
	}
	if c.Security.StoreTimeout <= 0 {
		return errors.New("Security.StoreTimeout must be > 0")
	}
	for _, action := range []string{ratelimit.ActionLogin, ratelimit.ActionRefresh} {
		if _, ok := c.RateLimit.Profiles[action]; !ok {
			return errors.New("RateLimit.Profiles missing required action " + action)
		}
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.SigningKey = cloneBytes(cfg.JWT.SigningKey)
	if cfg.RateLimit.Profiles != nil {
		out.RateLimit.Profiles = make(map[string]ratelimit.Profile, len(cfg.RateLimit.Profiles))
		for action, p := range cfg.RateLimit.Profiles {
			out.RateLimit.Profiles[action] = p
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
