// Package cache memoizes compiled D2 scripts in Redis. Compilation is a pure
// function of its inputs, so a cached script is always the one a fresh
// browser run would produce.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "diagram:d2:script:"

// ScriptCache stores compiled scripts by key.
type ScriptCache interface {
	// Get returns the script and true on a hit, "" and false on a miss.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, script string) error
}

// Key derives the cache key for a compile request.
func Key(source, layout, theme string) string {
	h := sha256.New()
	for _, part := range []string{layout, theme, source} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RedisCache is a ScriptCache on Redis with a fixed TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects to addr and checks the connection.
func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	_, err := rdb.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

// Close closes the connection to Redis.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	script, err := c.rdb.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cached script: %w", err)
	}
	return script, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, script string) error {
	if err := c.rdb.Set(ctx, keyPrefix+key, script, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache script: %w", err)
	}
	return nil
}
