package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gomodule/redigo/redis"
)

// DefaultSeenKey is the Redis set holding ingested post ids.
const DefaultSeenKey = "ideahunter:seen"

// SeenKey returns the set key for the store identified by namespace, such as
// a database path or DSN, so stores sharing one Redis never share entries.
func SeenKey(namespace string) string {
	if namespace == "" {
		return DefaultSeenKey
	}
	return fmt.Sprintf("%s:%016x", DefaultSeenKey, xxhash.Sum64String(namespace))
}

// RedisCache is a SeenCache stored in a Redis set.
type RedisCache struct {
	pool *redis.Pool
	key  string
}

// NewRedisPool creates a connection pool for addr.
func NewRedisPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     3,
		IdleTimeout: 240 * time.Second,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr,
				redis.DialConnectTimeout(5*time.Second),
				redis.DialReadTimeout(5*time.Second),
				redis.DialWriteTimeout(5*time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// NewRedisCache creates a cache using pool. An empty key uses DefaultSeenKey.
func NewRedisCache(pool *redis.Pool, key string) *RedisCache {
	if key == "" {
		key = DefaultSeenKey
	}
	return &RedisCache{pool: pool, key: key}
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer conn.Close()

	if _, err := redis.String(conn.Do("PING")); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Seen implements SeenCache with one pipelined SISMEMBER per id.
func (c *RedisCache) Seen(ctx context.Context, ids []string) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	if len(ids) == 0 {
		return seen, nil
	}

	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	defer conn.Close()

	for _, id := range ids {
		if err := conn.Send("SISMEMBER", c.key, id); err != nil {
			return nil, fmt.Errorf("redis send: %w", err)
		}
	}
	if err := conn.Flush(); err != nil {
		return nil, fmt.Errorf("redis flush: %w", err)
	}
	for _, id := range ids {
		member, err := redis.Bool(conn.Receive())
		if err != nil {
			return nil, fmt.Errorf("redis sismember: %w", err)
		}
		if member {
			seen[id] = struct{}{}
		}
	}
	return seen, nil
}

// MarkSeen implements SeenCache.
func (c *RedisCache) MarkSeen(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("SADD", redis.Args{}.Add(c.key).AddFlat(ids)...); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

// Forget implements SeenCache.
func (c *RedisCache) Forget(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("SREM", redis.Args{}.Add(c.key).AddFlat(ids)...); err != nil {
		return fmt.Errorf("redis srem: %w", err)
	}
	return nil
}

// Close releases the pool.
func (c *RedisCache) Close() error {
	return c.pool.Close()
}
