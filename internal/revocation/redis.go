package revocation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/gso-inventory-auth/internal/utils"
)

// Redis is a Registry shared by every instance pointing at the same Redis.
// Each revoked token becomes one key whose TTL equals the token's remaining
// lifetime, so the set prunes itself.
type Redis struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedis returns a Redis-backed registry storing keys under prefix.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "revoked"
	}
	return &Redis{rdb: rdb, prefix: prefix, now: time.Now}
}

func (r *Redis) key(token string) string {
	return r.prefix + ":" + utils.HashToken(token)
}

// Add stores token until expiresAt.  Already expired tokens are skipped.
func (r *Redis) Add(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	// Round up so the key never disappears before the token does.
	if rem := ttl % time.Second; rem != 0 {
		ttl += time.Second - rem
	}
	return r.rdb.Set(ctx, r.key(token), 1, ttl).Err()
}

// Contains reports whether token is revoked.  Redis errors are returned to
// the caller, which must treat them as a failed authentication.
func (r *Redis) Contains(ctx context.Context, token string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
