package config

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "coverpath:config:"

// RedisCache is a read-through cache decorator over another Service.
// Redis failures degrade to the wrapped store; a miss in the wrapped
// store is not cached.
type RedisCache struct {
	next   Service
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(next Service, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.With("module", "config_cache"),
	}
}

func cacheKey(key, scope string) string {
	return cacheKeyPrefix + scope + ":" + key
}

func (c *RedisCache) GetSetting(ctx context.Context, key, scope string) (any, error) {
	cached, err := c.client.Get(ctx, cacheKey(key, scope)).Result()
	if err == nil {
		var value any
		if err := json.Unmarshal([]byte(cached), &value); err == nil {
			return value, nil
		}

		c.logger.WarnContext(ctx, "Discarding undecodable cached setting", "key", key, "scope", scope)
	} else if err != redis.Nil {
		c.logger.WarnContext(ctx, "Redis lookup failed, falling back to store", "key", key, "error", err)
	}

	value, err := c.next.GetSetting(ctx, key, scope)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(value)
	if err == nil {
		if err := c.client.Set(ctx, cacheKey(key, scope), payload, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "Failed to cache setting", "key", key, "error", err)
		}
	}

	return value, nil
}

func (c *RedisCache) SetSetting(ctx context.Context, key, scope string, value any) error {
	err := c.next.SetSetting(ctx, key, scope, value)
	if err != nil {
		return err
	}

	if err := c.client.Del(ctx, cacheKey(key, scope)).Err(); err != nil {
		c.logger.WarnContext(ctx, "Failed to invalidate cached setting", "key", key, "error", err)
	}

	return nil
}
