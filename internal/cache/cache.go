// Package cache is a best-effort read-through cache for the hot listing
// endpoints. A cache failure is never surfaced to callers: reads report a
// miss and writes are dropped, so the API keeps serving from Postgres when
// Redis is down.
package cache

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KeyLotListing      = "lot-listing"
	KeyAdminLotListing = "admin-lot-listing"
)

func KeyDashboardStats(userID string) string {
	return "dashboard-stats:" + userID
}

type Cache struct {
	client *redis.Client
}

// New wraps a client; a nil client yields a cache that misses everything,
// which is how the API runs when REDIS_ADDR is unset.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get returns the cached payload for key, or ok=false on miss or error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("cache: get %s: %v", key, err)
		}
		return nil, false
	}
	return payload, true
}

func (c *Cache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
}

// Invalidate deletes the given keys. Deleting instead of rewriting keeps
// mutations cheap and lets the next read repopulate from the database.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.client == nil || len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("cache: invalidate %v: %v", keys, err)
	}
}
