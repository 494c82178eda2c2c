// Package redis provides a Redis-backed read-through cache for aggregate
// queries. Statistics are expensive to recompute per request and tolerate
// brief staleness, so they sit behind a short TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/logger"
)

// DefaultTTL is used when a caller passes a non-positive TTL.
const DefaultTTL = 30 * time.Second

// Cache implements the ledger engine's Cache port on Redis.
type Cache struct {
	client *redis.Client
	logger *logger.Logger
}

// NewCache creates a new cache
func NewCache(client *redis.Client, log *logger.Logger) *Cache {
	return &Cache{
		client: client,
		logger: log.WithComponent("cache"),
	}
}

// Get loads the cached JSON value at key into dest. The bool reports a
// hit; a miss is not an error.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("cache miss", "key", key)
		return false, nil
	}
	if err != nil {
		c.logger.Error("cache error", "operation", "get", "key", key, "error", err)
		return false, fmt.Errorf("failed to get cached value: %w", err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	c.logger.Debug("cache hit", "key", key)
	return true, nil
}

// Set stores value at key as JSON with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Error("cache error", "operation", "set", "key", key, "error", err)
		return fmt.Errorf("failed to set cached value: %w", err)
	}

	return nil
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
