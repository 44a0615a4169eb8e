package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const claimKeyPrefix = "meetsync:claim:"

// releaseScript deletes a claim only if it is still held by the caller, so a
// worker whose claim expired cannot drop a claim taken over by another worker.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClaimer shares claims between worker processes. Claims expire after
// ttl so a crashed worker's item is handed out again.
type RedisClaimer struct {
	client *redis.Client
	owner  string
	ttl    time.Duration
}

func NewRedisClaimer(client *redis.Client, ttl time.Duration) *RedisClaimer {
	return &RedisClaimer{client: client, owner: uuid.NewString(), ttl: ttl}
}

func (c *RedisClaimer) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := c.client.SetNX(ctx, claimKeyPrefix+key, c.owner, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", key, err)
	}
	return ok, nil
}

func (c *RedisClaimer) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, c.client, []string{claimKeyPrefix + key}, c.owner).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", key, err)
	}
	return nil
}

// LocalClaimer serves workers running as goroutines of a single process.
type LocalClaimer struct {
	claims *cache.Cache
	ttl    time.Duration
}

func NewLocalClaimer(ttl time.Duration) *LocalClaimer {
	return &LocalClaimer{claims: cache.New(ttl, 2*ttl), ttl: ttl}
}

func (c *LocalClaimer) Claim(_ context.Context, key string) (bool, error) {
	// Add fails if an unexpired claim exists.
	if err := c.claims.Add(key, struct{}{}, c.ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *LocalClaimer) Release(_ context.Context, key string) error {
	c.claims.Delete(key)
	return nil
}
