package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a [Limiter] backed by a shared Redis instance, so budgets hold
// across processes. Counters use INCR with an EXPIRE set on the first hit;
// lockouts are separate SET NX keys so repeat attempts never extend them.
type Redis struct {
	redis    redis.UniversalClient
	profiles map[string]Profile
	prefix   string
}

// NewRedis builds a Redis-backed limiter. Prefix defaults to "ac" when empty.
func NewRedis(client redis.UniversalClient, profiles map[string]Profile, prefix string) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if err := validateProfiles(profiles); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "ac"
	}
	return &Redis{redis: client, profiles: cloneProfiles(profiles), prefix: prefix}, nil
}

func (r *Redis) counterKey(identity, action string) string {
	return r.prefix + ":rl:" + action + ":" + identity
}

func (r *Redis) lockoutKey(identity, action string) string {
	return r.prefix + ":rl:lock:" + action + ":" + identity
}

func (r *Redis) CheckAndRecord(ctx context.Context, identity, action string) (Result, error) {
	profile, ok := r.profiles[action]
	if !ok {
		return Result{}, ErrUnknownAction
	}

	lockKey := r.lockoutKey(identity, action)
	remaining, err := r.redis.PTTL(ctx, lockKey).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if remaining > 0 {
		return Result{RetryAfter: remaining}, nil
	}

	key := r.counterKey(identity, action)
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := r.redis.PExpire(ctx, key, profile.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if count <= int64(profile.MaxAttempts) {
		return Result{Allowed: true}, nil
	}

	if profile.Lockout > 0 {
		// NX keeps an already-set lockout intact if two instances race here.
		if err := r.redis.SetNX(ctx, lockKey, "1", profile.Lockout).Err(); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Result{RetryAfter: profile.Lockout}, nil
	}

	ttl, err := r.redis.PTTL(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl < 0 {
		ttl = profile.Window
	}
	return Result{RetryAfter: ttl}, nil
}

func (r *Redis) Reset(ctx context.Context, identity, action string) error {
	if _, ok := r.profiles[action]; !ok {
		return ErrUnknownAction
	}
	err := r.redis.Del(ctx, r.counterKey(identity, action), r.lockoutKey(identity, action)).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
