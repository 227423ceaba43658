package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mfa:replay:"

// RedisGuard shares consumed steps between instances. Entries expire through
// the key TTL, so no sweep is needed.
type RedisGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisGuard(client redis.UniversalClient, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) CheckAndConsume(ctx context.Context, accountID string, step uint64) (Status, error) {
	// SetNX reports true when the key was newly set.
	ok, err := g.client.SetNX(ctx, redisKey(accountID, step), "1", g.ttl).Result()
	if err != nil {
		return Fresh, fmt.Errorf("replay check: %w", err)
	}
	if !ok {
		return AlreadyUsed, nil
	}
	return Fresh, nil
}

// Ping verifies the redis connection is still alive.
func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

func redisKey(accountID string, step uint64) string {
	return fmt.Sprintf("%s%s:%d", redisKeyPrefix, accountID, step)
}
