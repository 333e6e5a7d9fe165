// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Redis-backed Cacher for multi-instance deployments.
type RedisCache struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
	closed     atomic.Bool

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	resetAt atomic.Pointer[time.Time]
}

// RedisOptions configures a RedisCache.
type RedisOptions struct {
	// URL is the connection URL, e.g. redis://localhost:6379/0.
	URL string

	// Prefix is prepended to every key so multiple applications can share
	// one Redis instance.
	Prefix string

	DefaultTTL     time.Duration
	PoolSize       int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DefaultRedisOptions returns the defaults used when config leaves the
// tunables unset.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Prefix:         "busadmin:",
		DefaultTTL:     time.Minute,
		PoolSize:       10,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    3 * time.Second,
		WriteTimeout:   3 * time.Second,
	}
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(opts RedisOptions) (*RedisCache, error) {
	if opts.URL == "" {
		return nil, errors.New("redis URL is required")
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.PoolSize > 0 {
		redisOpts.PoolSize = opts.PoolSize
	}
	if opts.ConnectTimeout > 0 {
		redisOpts.DialTimeout = opts.ConnectTimeout
	}
	if opts.ReadTimeout > 0 {
		redisOpts.ReadTimeout = opts.ReadTimeout
	}
	if opts.WriteTimeout > 0 {
		redisOpts.WriteTimeout = opts.WriteTimeout
	}

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisCache{
		client:     client,
		prefix:     opts.Prefix,
		defaultTTL: opts.DefaultTTL,
	}, nil
}

func (c *RedisCache) key(key string) string {
	return c.prefix + key
}

// Get retrieves a value.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrCacheClosed
	}

	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.misses.Add(1)
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	c.hits.Add(1)
	return val, nil
}

// Set stores a value.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return err
	}
	c.sets.Add(1)
	return nil
}

// Delete removes a key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	return c.client.Del(ctx, c.key(key)).Err()
}

// DeleteByPrefix removes every key under the given prefix using SCAN,
// which is safe on production instances where KEYS is not.
func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	return c.deletePattern(ctx, c.prefix+prefix+"*")
}

// Clear removes every key under the cache prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	return c.deletePattern(ctx, c.prefix+"*")
}

func (c *RedisCache) deletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Has reports whether key exists.
func (c *RedisCache) Has(ctx context.Context, key string) (bool, error) {
	if c.closed.Load() {
		return false, ErrCacheClosed
	}

	exists, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		return c.client.Close()
	}
	return nil
}

// Ping checks connection health, for the health endpoint.
func (c *RedisCache) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}
	return c.client.Ping(ctx).Err()
}

// Stats returns local counters; Redis does not track hits per prefix.
// Items is an approximate SCAN count under the prefix.
func (c *RedisCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	items := 0
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", 1000).Result()
		if err != nil {
			break
		}
		items += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Items:   items,
		HitRate: hitRate(hits, misses),
		ResetAt: c.resetAt.Load(),
	}
}

// ResetStats zeroes the counters.
func (c *RedisCache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	now := time.Now()
	c.resetAt.Store(&now)
}

var (
	_ Cacher        = (*RedisCache)(nil)
	_ StatsProvider = (*RedisCache)(nil)
)
