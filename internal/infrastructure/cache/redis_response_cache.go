package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultKeyPrefix namespaces response cache keys in a shared Redis.
const defaultKeyPrefix = "analytics:response:"

// RedisResponseCache is the durable tier of the response cache. It is shared
// across process instances, so the same fingerprint written twice is
// harmless by construction.
type RedisResponseCache struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisResponseCache creates a durable cache tier, verifying connectivity.
func NewRedisResponseCache(cfg RedisConfig) (*RedisResponseCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisResponseCache{
		client:    client,
		keyPrefix: defaultKeyPrefix,
	}, nil
}

// NewRedisResponseCacheWithClient wraps an existing client. Useful for tests
// and for sharing one connection pool across components.
func NewRedisResponseCacheWithClient(client *redis.Client, keyPrefix string) *RedisResponseCache {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisResponseCache{client: client, keyPrefix: keyPrefix}
}

// Get returns the payload for key when present.
func (c *RedisResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("durable cache read failed: %w", err)
	}
	return payload, true, nil
}

// Set stores payload under key with ttl. Redis expires the entry itself
// once the TTL elapses.
func (c *RedisResponseCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.keyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("durable cache write failed: %w", err)
	}
	return nil
}

// Delete removes key.
func (c *RedisResponseCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("durable cache delete failed: %w", err)
	}
	return nil
}

// ClearExpired sweeps the keyspace for entries that carry no TTL (written by
// older formats or restored from a dump with expiry lost) and removes them.
// Entries with a live TTL are left for Redis to expire. Idempotent and safe
// to run concurrently with reads and writes.
func (c *RedisResponseCache) ClearExpired(ctx context.Context) (int, error) {
	removed := 0
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := c.client.TTL(ctx, key).Result()
		if err != nil {
			return removed, fmt.Errorf("durable cache sweep failed: %w", err)
		}
		// -1 means the key exists without an expiry.
		if ttl == -1 {
			if err := c.client.Del(ctx, key).Err(); err != nil {
				return removed, fmt.Errorf("durable cache sweep failed: %w", err)
			}
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("durable cache sweep failed: %w", err)
	}
	return removed, nil
}

// EntryCount returns the number of live entries under the cache prefix.
func (c *RedisResponseCache) EntryCount(ctx context.Context) (int64, error) {
	var count int64
	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("durable cache count failed: %w", err)
	}
	return count, nil
}

// Close closes the underlying Redis client.
func (c *RedisResponseCache) Close() error {
	return c.client.Close()
}
