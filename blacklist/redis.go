package blacklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateCodeRotated  int64 = 0
	rotateCodeMismatch int64 = 1
	rotateCodeNotFound int64 = 2
)

const rotateCurrentScript = `
local cur = redis.call("HGET", KEYS[1], "cur")
if not cur then
  return 2
end
if cur ~= ARGV[1] then
  return 1
end
redis.call("HSET", KEYS[1], "cur", ARGV[2])
redis.call("SADD", KEYS[2], ARGV[2])
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[1], ttl)
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 0
`

var rotateCurrentLua = redis.NewScript(rotateCurrentScript)

// Redis is the shared [Store] backend. Revocation entries and family state
// carry native TTLs; the rotation step runs as a Lua compare-and-swap so the
// check-then-mark sequence is atomic at the protocol level.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedis creates a [Store] backed by the given Redis client. prefix sets
// the key namespace shared by all server instances.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "ac"
	}
	return &Redis{redis: client, prefix: prefix}
}

func (r *Redis) tokenKey(tokenID string) string {
	return r.prefix + ":bl:" + tokenID
}

func (r *Redis) familyKey(familyID string) string {
	return r.prefix + ":fam:" + familyID
}

func (r *Redis) familyRevokedKey(familyID string) string {
	return r.prefix + ":famrev:" + familyID
}

func (r *Redis) membersKey(familyID string) string {
	return r.prefix + ":members:" + familyID
}

func (r *Redis) epochKey(userID string) string {
	return r.prefix + ":epoch:" + userID
}

// IsRevoked reports whether the token id has an unexpired blacklist entry.
func (r *Redis) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.tokenKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Revoke blacklists the token id with a TTL matching its remaining lifetime.
func (r *Redis) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.redis.Set(ctx, r.tokenKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsFamilyRevoked reports whether the family revocation marker exists.
func (r *Redis) IsFamilyRevoked(ctx context.Context, familyID string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.familyRevokedKey(familyID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// RevokeFamily sets the family revocation marker. SET is idempotent, so a
// second revocation of the same family is a no-op aside from refreshing TTL.
func (r *Redis) RevokeFamily(ctx context.Context, familyID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.redis.Set(ctx, r.familyRevokedKey(familyID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RegisterFamily records family state and seeds the member set in one
// transaction pipeline.
func (r *Redis) RegisterFamily(ctx context.Context, familyID, userID, tokenID string, ttl time.Duration) error {
	famKey := r.familyKey(familyID)
	memKey := r.membersKey(familyID)

	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, famKey, "user", userID, "cur", tokenID)
		pipe.Expire(ctx, famKey, ttl)
		pipe.SAdd(ctx, memKey, tokenID)
		pipe.Expire(ctx, memKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// RotateCurrent runs the Lua compare-and-swap against the family hash.
func (r *Redis) RotateCurrent(ctx context.Context, familyID, presentedTokenID, nextTokenID string, ttl time.Duration) (RotateStatus, error) {
	code, err := rotateCurrentLua.Run(
		ctx,
		r.redis,
		[]string{r.familyKey(familyID), r.membersKey(familyID)},
		presentedTokenID,
		nextTokenID,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return RotateNotFound, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch code {
	case rotateCodeRotated:
		return RotateRotated, nil
	case rotateCodeMismatch:
		return RotateMismatch, nil
	case rotateCodeNotFound:
		return RotateNotFound, nil
	default:
		return RotateNotFound, fmt.Errorf("%w: unknown rotate script status %d", ErrUnavailable, code)
	}
}

// FamilyMembers returns the tracked token ids for the family.
func (r *Redis) FamilyMembers(ctx context.Context, familyID string) ([]string, error) {
	ids, err := r.redis.SMembers(ctx, r.membersKey(familyID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ids, nil
}

// FamilyOwner returns the user id the family was registered for.
func (r *Redis) FamilyOwner(ctx context.Context, familyID string) (string, error) {
	owner, err := r.redis.HGet(ctx, r.familyKey(familyID), "user").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return owner, nil
}

// UserEpoch returns the stored epoch counter, zero when absent.
func (r *Redis) UserEpoch(ctx context.Context, userID string) (int64, error) {
	epoch, err := r.redis.Get(ctx, r.epochKey(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return epoch, nil
}

// BumpUserEpoch atomically increments the epoch counter. The key carries no
// TTL: it is one integer per user and must outlive every issued token.
func (r *Redis) BumpUserEpoch(ctx context.Context, userID string) (int64, error) {
	epoch, err := r.redis.Incr(ctx, r.epochKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return epoch, nil
}

// Ping checks Redis availability.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
