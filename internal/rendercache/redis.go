package rendercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "render:"

// RedisCache stores renders as JSON values with a Redis expiry.
type RedisCache struct {
	client  *redis.Client
	timeout time.Duration
	now     func() time.Time
}

// NewRedisCache returns a cache on client. Every call is bounded by timeout.
func NewRedisCache(client *redis.Client, timeout time.Duration) *RedisCache {
	return &RedisCache{client: client, timeout: timeout, now: time.Now}
}

// NewRedisClient connects to addr. The connection is lazy; use Ping to check
// it.
func NewRedisClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

func (c *RedisCache) Get(ctx context.Context, key string) (*CachedRender, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, mapRedisError("get", err)
	}

	var render CachedRender
	if err := json.Unmarshal(data, &render); err != nil {
		return nil, fmt.Errorf("decode cached render %s: %w", key, err)
	}
	return &render, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, render *CachedRender, ttl time.Duration) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	stored := *render
	stored.Key = key
	stored.StoredAt = c.now().UTC()
	stored.TTL = ttl

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode render %s: %w", key, err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, ttl).Err(); err != nil {
		return mapRedisError("set", err)
	}
	return nil
}

func (c *RedisCache) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func mapRedisError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s: %v", ErrBackendTimeout, op, err)
	}
	return fmt.Errorf("redis %s: %w", op, err)
}

var _ Cache = (*RedisCache)(nil)
