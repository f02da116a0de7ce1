package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by GetJSON when the key is absent or unreadable.
var ErrMiss = errors.New("cache miss")

// Cache is a thin JSON layer over Redis. A Cache with a nil client treats
// every lookup as a miss and every write as a no-op, so the API keeps
// working when Redis is down at startup.
type Cache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func New(client *redis.Client, prefix string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, prefix: prefix, logger: logger}
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// GetJSON decodes the cached value into v.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil {
		return ErrMiss
	}

	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return ErrMiss
	}

	if err := json.Unmarshal(raw, v); err != nil {
		c.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		_ = c.client.Del(ctx, c.key(key)).Err()
		return ErrMiss
	}
	return nil
}

// SetJSON stores v for ttl. Failures are logged, not returned: the cache is
// an optimisation and callers already hold the authoritative value.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// Delete removes keys. Unlike SetJSON it reports errors, since a failed
// invalidation leaves stale entitlements behind.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	return nil
}

// Generation returns the counter stored under key, 0 when it was never
// bumped. ok is false when the cache is disabled or Redis cannot be read;
// callers must then skip caching altogether.
func (c *Cache) Generation(ctx context.Context, key string) (gen int64, ok bool) {
	if c == nil || c.client == nil {
		return 0, false
	}

	gen, err := c.client.Get(ctx, c.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.logger.Warn("cache generation read failed", "key", key, "error", err)
		return 0, false
	}
	return gen, true
}

// Bump increments the counter under key. Entries written under an older
// generation are never read again and age out with their TTL.
func (c *Cache) Bump(ctx context.Context, key string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("bumping cache generation: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("cache disabled")
	}
	return c.client.Ping(ctx).Err()
}
