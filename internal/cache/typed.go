// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"time"
)

// TypedCache is a type-safe wrapper over a Cacher. Values are stored as
// JSON, so the same typed view works over the memory and Redis backends.
type TypedCache[T any] struct {
	cache      Cacher
	defaultTTL time.Duration
}

// NewTyped creates a typed view over cache.
func NewTyped[T any](cache Cacher, defaultTTL time.Duration) *TypedCache[T] {
	return &TypedCache[T]{cache: cache, defaultTTL: defaultTTL}
}

// Get retrieves and decodes a value. A decode failure counts as a miss;
// the stale bytes are dropped.
func (c *TypedCache[T]) Get(ctx context.Context, key string) (*T, bool) {
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		_ = c.cache.Delete(ctx, key)
		return nil, false
	}
	return &value, true
}

// Set encodes and stores a value with the default TTL.
func (c *TypedCache[T]) Set(ctx context.Context, key string, value *T) error {
	return c.SetWithTTL(ctx, key, value, c.defaultTTL)
}

// SetWithTTL encodes and stores a value with a custom TTL.
func (c *TypedCache[T]) SetWithTTL(ctx context.Context, key string, value *T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.cache.Set(ctx, key, data, ttl)
}

// Delete removes a key.
func (c *TypedCache[T]) Delete(ctx context.Context, key string) error {
	return c.cache.Delete(ctx, key)
}

// GetOrSet returns the cached value for key, or computes, stores and
// returns it on a miss. A failed store is not an error; the computed
// value is still returned.
func (c *TypedCache[T]) GetOrSet(ctx context.Context, key string, fn func() (*T, error)) (*T, error) {
	if value, ok := c.Get(ctx, key); ok {
		return value, nil
	}

	value, err := fn()
	if err != nil {
		return nil, err
	}
	_ = c.Set(ctx, key, value)
	return value, nil
}
