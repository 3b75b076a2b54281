package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeckCache holds one ordered deck of pet IDs per user with a TTL. It is the
// single source of "what this user has not yet seen"; injected so tests can
// substitute miniredis with deterministic clock control.
type DeckCache interface {
	// Get returns the cached deck. ok is false on a miss; an expired or
	// fully-drained deck reads as a miss.
	Get(ctx context.Context, userID string) (petIDs []string, ok bool, err error)
	// Put replaces the user's deck in one atomic step and arms the TTL.
	// An empty deck clears the key instead of caching emptiness.
	Put(ctx context.Context, userID string, petIDs []string) error
	// Remove deletes one pet from the user's deck atomically. Removing a
	// pet that is not present is a no-op.
	Remove(ctx context.Context, userID, petID string) error
}

const defaultOpTimeout = 3 * time.Second

// RedisDeckCache implements DeckCache on a Redis list per user.
type RedisDeckCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDeckCache builds a deck cache on an existing Redis client.
func NewRedisDeckCache(client *redis.Client, ttl time.Duration) *RedisDeckCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisDeckCache{
		client: client,
		prefix: "deck",
		ttl:    ttl,
	}
}

func (c *RedisDeckCache) key(userID string) string {
	return fmt.Sprintf("%s:%s", c.prefix, userID)
}

func (c *RedisDeckCache) Get(ctx context.Context, userID string) ([]string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	ids, err := c.client.LRange(ctx, c.key(userID), 0, -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("deck cache get: %w", err)
	}
	if len(ids) == 0 {
		// Redis drops a list key when its last element is removed, so a
		// swiped-through deck and an expired one both land here.
		return nil, false, nil
	}
	return ids, true, nil
}

func (c *RedisDeckCache) Put(ctx context.Context, userID string, petIDs []string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	key := c.key(userID)
	if len(petIDs) == 0 {
		if err := c.client.Del(ctx, key).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("deck cache clear: %w", err)
		}
		return nil
	}
	// One MULTI block: an abandoned generation never leaves a partial deck.
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.RPush(ctx, key, toAny(petIDs)...)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deck cache put: %w", err)
	}
	return nil
}

func (c *RedisDeckCache) Remove(ctx context.Context, userID, petID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()
	if err := c.client.LRem(ctx, c.key(userID), 1, petID).Err(); err != nil {
		return fmt.Errorf("deck cache remove: %w", err)
	}
	return nil
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
