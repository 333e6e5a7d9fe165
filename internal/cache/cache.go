// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cache provides the caching layer in front of the platform API:
// dashboard statistics are expensive upstream aggregations, so they are
// held briefly in either an in-memory or a Redis backend.
package cache

import (
	"context"
	"time"
)

// Cacher is the interface all cache backends implement. Values are raw
// bytes so the same interface covers the in-memory and Redis backends.
// Implementations must be safe for concurrent use.
type Cacher interface {
	// Get returns the value for key, or ErrCacheMiss when absent or
	// expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value under key. A zero ttl means the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// DeleteByPrefix removes every key starting with prefix.
	DeleteByPrefix(ctx context.Context, prefix string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Has reports whether a key exists and is not expired.
	Has(ctx context.Context, key string) (bool, error)

	// Close releases backend resources.
	Close() error
}

// Stats holds counters for one cache backend.
type Stats struct {
	Hits    int64      `json:"hits"`
	Misses  int64      `json:"misses"`
	Sets    int64      `json:"sets"`
	Items   int        `json:"items"`
	HitRate float64    `json:"hit_rate"`
	Size    int64      `json:"size_bytes,omitempty"`
	ResetAt *time.Time `json:"reset_at,omitempty"`
}

// StatsProvider is implemented by backends that track statistics.
type StatsProvider interface {
	Stats() Stats
	ResetStats()
}

// Error is the error type for cache operations.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrCacheMiss indicates the key was not found or has expired.
	ErrCacheMiss Error = "cache miss"

	// ErrCacheClosed indicates the cache has been closed.
	ErrCacheClosed Error = "cache closed"
)

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}
