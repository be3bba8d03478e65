package authcore

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// FromEnv builds a Config from environment variables, loading a .env file
// first when one exists. Unset variables keep their defaults.
//
//	AUTHCORE_SIGNING_KEY      HS256 secret (required for a valid config)
//	AUTHCORE_ISSUER           issuer claim
//	AUTHCORE_ACCESS_TTL       e.g. "30m"
//	AUTHCORE_REFRESH_TTL      e.g. "720h"
//	AUTHCORE_FAIL_OPEN        "true"/"false"
//	AUTHCORE_REDIS_PREFIX     key namespace
//	AUTHCORE_SWEEP_SCHEDULE   cron expression for the memory sweeper
//	AUTHCORE_AUDIT_ENABLED    "true"/"false"
//	REDIS_ADDR                host:port of the shared store
//	REDIS_PASSWORD
//	REDIS_DB                  integer database index
func FromEnv() Config {
	// Missing .env is fine; real environments set variables directly.
	_ = godotenv.Load()

	cfg := defaultConfig()

	if v := os.Getenv("AUTHCORE_SIGNING_KEY"); v != "" {
		cfg.JWT.SigningKey = []byte(v)
	}
	if v := os.Getenv("AUTHCORE_ISSUER"); v != "" {
		cfg.JWT.Issuer = v
	}
	if d, ok := envDuration("AUTHCORE_ACCESS_TTL"); ok {
		cfg.JWT.AccessTTL = d
	}
	if d, ok := envDuration("AUTHCORE_REFRESH_TTL"); ok {
		cfg.JWT.RefreshTTL = d
	}
	if b, ok := envBool("AUTHCORE_FAIL_OPEN"); ok {
		cfg.Security.FailOpen = b
	}
	if v := os.Getenv("AUTHCORE_REDIS_PREFIX"); v != "" {
		cfg.Blacklist.RedisPrefix = v
	}
	if v := os.Getenv("AUTHCORE_SWEEP_SCHEDULE"); v != "" {
		cfg.Blacklist.SweepSchedule = v
	}
	if b, ok := envBool("AUTHCORE_AUDIT_ENABLED"); ok {
		cfg.Audit.Enabled = b
	}

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if n, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		cfg.Redis.DB = n
	}

	return cfg
}

func envDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}
