// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache is a thread-safe in-memory Cacher. It is the default
// backend and the fallback when Redis is configured but unreachable.
type MemoryCache struct {
	data       sync.Map
	defaultTTL time.Duration
	maxSize    int
	stopCh     chan struct{}
	closed     atomic.Bool

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	size    atomic.Int64
	resetAt atomic.Pointer[time.Time]
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
	size      int64
}

// MemoryOptions configures a MemoryCache.
type MemoryOptions struct {
	DefaultTTL      time.Duration
	MaxSize         int           // maximum entries, 0 = unlimited
	CleanupInterval time.Duration // 0 = no background cleanup
}

// NewMemory creates a memory cache. When CleanupInterval is positive a
// background goroutine evicts expired entries; otherwise eviction is
// lazy, on access.
func NewMemory(opts MemoryOptions) *MemoryCache {
	c := &MemoryCache{
		defaultTTL: opts.DefaultTTL,
		maxSize:    opts.MaxSize,
		stopCh:     make(chan struct{}),
	}
	if opts.CleanupInterval > 0 {
		go c.cleanupLoop(opts.CleanupInterval)
	}
	return c
}

// Get retrieves a value, evicting it if expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrCacheClosed
	}

	val, ok := c.data.Load(key)
	if !ok {
		c.misses.Add(1)
		return nil, ErrCacheMiss
	}

	entry := val.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		c.deleteEntry(key, entry)
		c.misses.Add(1)
		return nil, ErrCacheMiss
	}

	c.hits.Add(1)
	// Copy out so callers cannot mutate the cached bytes.
	result := make([]byte, len(entry.value))
	copy(result, entry.value)
	return result, nil
}

// Set stores a value. At capacity it first drops expired entries; if the
// cache is still full the write proceeds anyway, replacing on key
// collision.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if c.maxSize > 0 && c.count() >= c.maxSize {
		c.removeExpired()
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	entry := &memoryEntry{
		value:     valueCopy,
		expiresAt: time.Now().Add(ttl),
		size:      int64(len(value)),
	}

	if old, loaded := c.data.Swap(key, entry); loaded {
		c.size.Add(-old.(*memoryEntry).size)
	}
	c.size.Add(entry.size)
	c.sets.Add(1)
	return nil
}

// Delete removes a key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	if val, loaded := c.data.LoadAndDelete(key); loaded {
		c.size.Add(-val.(*memoryEntry).size)
	}
	return nil
}

// DeleteByPrefix removes every key starting with prefix.
func (c *MemoryCache) DeleteByPrefix(_ context.Context, prefix string) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	c.data.Range(func(key, value any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			c.deleteEntry(key.(string), value.(*memoryEntry))
		}
		return true
	})
	return nil
}

// Clear removes all entries.
func (c *MemoryCache) Clear(_ context.Context) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	c.data.Range(func(key, _ any) bool {
		c.data.Delete(key)
		return true
	})
	c.size.Store(0)
	return nil
}

// Has reports whether key exists and is not expired.
func (c *MemoryCache) Has(_ context.Context, key string) (bool, error) {
	if c.closed.Load() {
		return false, ErrCacheClosed
	}

	val, ok := c.data.Load(key)
	if !ok {
		return false, nil
	}
	entry := val.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		c.deleteEntry(key, entry)
		return false, nil
	}
	return true, nil
}

// Close stops the cleanup goroutine.
func (c *MemoryCache) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		close(c.stopCh)
	}
	return nil
}

// Stats returns current counters.
func (c *MemoryCache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	return Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Items:   c.count(),
		HitRate: hitRate(hits, misses),
		Size:    c.size.Load(),
		ResetAt: c.resetAt.Load(),
	}
}

// ResetStats zeroes the counters.
func (c *MemoryCache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.sets.Store(0)
	now := time.Now()
	c.resetAt.Store(&now)
}

func (c *MemoryCache) count() int {
	count := 0
	c.data.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (c *MemoryCache) deleteEntry(key string, entry *memoryEntry) {
	if _, loaded := c.data.LoadAndDelete(key); loaded {
		c.size.Add(-entry.size)
	}
}

func (c *MemoryCache) removeExpired() {
	now := time.Now()
	c.data.Range(func(key, value any) bool {
		entry := value.(*memoryEntry)
		if now.After(entry.expiresAt) {
			c.deleteEntry(key.(string), entry)
		}
		return true
	})
}

func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

var (
	_ Cacher        = (*MemoryCache)(nil)
	_ StatsProvider = (*MemoryCache)(nil)
)
