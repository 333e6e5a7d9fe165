// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/schooltransit/busadmin/internal/model"
)

// Cache keys for dashboard statistics.
const (
	keyPlatformStats  = "stats:platform"
	keySchoolStatsPre = "stats:school:"
)

// Manager owns the cache backend and the typed views the dashboards use.
// Statistics are short-lived upstream aggregations; the manager keeps
// them warm between page loads and invalidates them after CRUD writes.
type Manager struct {
	backend Cacher
	name    string

	Platform *TypedCache[model.PlatformStats]
	School   *TypedCache[model.SchoolStats]
}

// ManagerOptions configures the manager from application config.
type ManagerOptions struct {
	RedisURL string // empty = in-memory backend
	Prefix   string
	TTL      time.Duration
	MaxSize  int
}

// NewManager builds the cache manager. When Redis is configured but
// unreachable it falls back to the in-memory backend with a warning, so
// a cache outage never blocks startup.
func NewManager(opts ManagerOptions) *Manager {
	name := "memory"
	var backend Cacher

	if opts.RedisURL != "" {
		redisOpts := DefaultRedisOptions()
		redisOpts.URL = opts.RedisURL
		if opts.Prefix != "" {
			redisOpts.Prefix = opts.Prefix
		}
		if opts.TTL > 0 {
			redisOpts.DefaultTTL = opts.TTL
		}

		rc, err := NewRedis(redisOpts)
		if err != nil {
			slog.Warn("redis cache unavailable, using in-memory cache",
				"error", err)
		} else {
			backend = rc
			name = "redis"
		}
	}

	if backend == nil {
		backend = NewMemory(MemoryOptions{
			DefaultTTL:      opts.TTL,
			MaxSize:         opts.MaxSize,
			CleanupInterval: time.Minute,
		})
	}

	return &Manager{
		backend:  backend,
		name:     name,
		Platform: NewTyped[model.PlatformStats](backend, opts.TTL),
		School:   NewTyped[model.SchoolStats](backend, opts.TTL),
	}
}

// PlatformStats returns the cached platform-wide statistics, fetching
// them through fn on a miss.
func (m *Manager) PlatformStats(ctx context.Context, fn func() (*model.PlatformStats, error)) (*model.PlatformStats, error) {
	return m.Platform.GetOrSet(ctx, keyPlatformStats, fn)
}

// SchoolStats returns the cached statistics for one school.
func (m *Manager) SchoolStats(ctx context.Context, schoolID string, fn func() (*model.SchoolStats, error)) (*model.SchoolStats, error) {
	return m.School.GetOrSet(ctx, keySchoolStatsPre+schoolID, fn)
}

// InvalidatePlatform drops the platform statistics. Called after any
// school or school-admin write.
func (m *Manager) InvalidatePlatform(ctx context.Context) {
	if err := m.backend.Delete(ctx, keyPlatformStats); err != nil {
		slog.Warn("invalidating platform stats cache", "error", err)
	}
}

// InvalidateSchool drops one school's statistics. Called after any fleet
// or roster write scoped to that school.
func (m *Manager) InvalidateSchool(ctx context.Context, schoolID string) {
	if err := m.backend.Delete(ctx, keySchoolStatsPre+schoolID); err != nil {
		slog.Warn("invalidating school stats cache",
			"school_id", schoolID, "error", err)
	}
}

// InvalidateAll clears every cached entry.
func (m *Manager) InvalidateAll(ctx context.Context) {
	if err := m.backend.Clear(ctx); err != nil {
		slog.Warn("clearing cache", "error", err)
	}
}

// Backend names the active backend, "memory" or "redis".
func (m *Manager) Backend() string {
	return m.name
}

// Stats returns the backend's counters.
func (m *Manager) Stats() Stats {
	if sp, ok := m.backend.(StatsProvider); ok {
		return sp.Stats()
	}
	return Stats{}
}

// Ping reports backend health; the in-memory backend is always healthy.
func (m *Manager) Ping(ctx context.Context) error {
	if rc, ok := m.backend.(*RedisCache); ok {
		return rc.Ping(ctx)
	}
	return nil
}

// Close releases the backend.
func (m *Manager) Close() error {
	return m.backend.Close()
}
