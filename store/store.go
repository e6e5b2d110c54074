// Package store caches generated SQL, so a repeated question does not cost
// another model call.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents", "store")

// Cache stores text values by key
type Cache interface {
	// Get returns the cached value, ok is false when the key is not present
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Put stores the value
	Put(ctx context.Context, key, value string) error
}

// Kinds of caches
const (
	KindNone   = ""
	KindMemory = "memory"
	KindRedis  = "redis"
)

// Config specifies the cache
type Config struct {
	// Kind is memory|redis, the cache is disabled when empty
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty" validate:"omitempty,oneof=memory redis"`
	// URL is the Redis connection string, redis://host:6379/0
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// Prefix is the namespace of Redis keys
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// TTL of the cached values, zero means no expiration
	TTL time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	// MaxEntries limits the memory cache, zero means unlimited
	MaxEntries int `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
}

// New returns the cache for the configuration,
// nil is returned when the cache is disabled.
func New(ctx context.Context, cfg *Config) (Cache, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Kind {
	case KindNone:
		return nil, nil
	case KindMemory:
		return NewMemoryCache(cfg.MaxEntries, cfg.TTL), nil
	case KindRedis:
		client, err := Dial(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return NewRedisCache(client, cfg.Prefix, cfg.TTL), nil
	}
	return nil, errors.Errorf("unsupported cache kind: %s", cfg.Kind)
}

// Dial connects to Redis
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		url = "redis://localhost:6379"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse Redis URL")
	}
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	logger.KV(xlog.DEBUG, "status", "redis_connected", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}

// Key returns a stable key for the parts
func Key(parts ...string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(parts, "\x00")))
}
