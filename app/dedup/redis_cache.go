package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const seenKeyPrefix = "courant:seen:"

// RedisCache backs the seen-identity cache with Redis so dedup state
// survives process restarts.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Seen(ctx context.Context, identity string) bool {
	exists, err := c.client.Exists(ctx, seenKeyPrefix+identity).Result()
	if err != nil {
		slog.Warn("Seen-cache lookup failed", "error", err)
		return false
	}
	return exists > 0
}

func (c *RedisCache) MarkSeen(ctx context.Context, identity string) {
	if err := c.client.Set(ctx, seenKeyPrefix+identity, "1", SeenTTL).Err(); err != nil {
		slog.Warn("Seen-cache write failed", "error", err)
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
