package store

import (
	"context"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// The redis cache keeps values under `/<prefix>/sqlcache/<key>`,
// so several servers can share one database.
type redisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache returns a cache backed by Redis
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) Cache {
	return &redisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *redisCache) key(key string) string {
	return path.Join("/", c.prefix, "sqlcache", key)
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		logger.ContextKV(ctx, xlog.ERROR, "reason", "redis_get", "key", key, "err", err.Error())
		return "", false, errors.Wrap(err, "failed to get value from Redis")
	}
	return val, true, nil
}

func (c *redisCache) Put(ctx context.Context, key, value string) error {
	err := c.client.Set(ctx, c.key(key), value, c.ttl).Err()
	if err != nil {
		return errors.Wrap(err, "failed to store value in Redis")
	}
	return nil
}
