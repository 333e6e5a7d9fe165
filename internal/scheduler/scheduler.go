// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the periodic maintenance jobs: pruning idle
// session stores, enforcing audit retention, reloading the GeoIP
// database and flushing the stats cache.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/schooltransit/busadmin/internal/audit"
	"github.com/schooltransit/busadmin/internal/cache"
	"github.com/schooltransit/busadmin/internal/geoip"
	"github.com/schooltransit/busadmin/internal/session"
)

// Scheduler owns the cron runner and the maintenance jobs.
type Scheduler struct {
	cron     *cron.Cron
	logger   *slog.Logger
	registry *session.Registry
	audits   *audit.Service
	geo      *geoip.Lookup
	cache    *cache.Manager

	auditRetention time.Duration
	sessionMaxIdle time.Duration
}

// Options configures the scheduler. Audits, Geo and Cache may be nil;
// their jobs are skipped.
type Options struct {
	Registry       *session.Registry
	Audits         *audit.Service
	Geo            *geoip.Lookup
	Cache          *cache.Manager
	AuditRetention time.Duration
	SessionMaxIdle time.Duration
}

// New creates a scheduler.
func New(logger *slog.Logger, opts Options) *Scheduler {
	if opts.SessionMaxIdle <= 0 {
		opts.SessionMaxIdle = 48 * time.Hour
	}
	return &Scheduler{
		cron:           cron.New(),
		logger:         logger,
		registry:       opts.Registry,
		audits:         opts.Audits,
		geo:            opts.Geo,
		cache:          opts.Cache,
		auditRetention: opts.AuditRetention,
		sessionMaxIdle: opts.SessionMaxIdle,
	}
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	if s.registry != nil {
		if _, err := s.cron.AddFunc("*/30 * * * *", s.pruneSessions); err != nil {
			return err
		}
	}
	if s.audits != nil && s.auditRetention > 0 {
		if _, err := s.cron.AddFunc("30 3 * * *", s.purgeAuditEvents); err != nil {
			return err
		}
	}
	if s.geo != nil {
		if _, err := s.cron.AddFunc("0 4 * * *", s.reloadGeoIP); err != nil {
			return err
		}
	}
	if s.cache != nil {
		if _, err := s.cron.AddFunc("15 4 * * *", s.flushStatsCache); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
	return nil
}

// Stop waits for running jobs and stops the runner.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// pruneSessions drops session stores idle past the threshold. The
// durable records stay in SQLite; only the process-local stores go.
func (s *Scheduler) pruneSessions() {
	if removed := s.registry.Prune(s.sessionMaxIdle); removed > 0 {
		s.logger.Info("pruned idle session stores",
			"removed", removed,
			"remaining", s.registry.Len(),
		)
	}
}

// purgeAuditEvents enforces the audit retention window.
func (s *Scheduler) purgeAuditEvents() {
	removed, err := s.audits.PurgeOlderThan(context.Background(), s.auditRetention)
	if err != nil {
		s.logger.Error("purging audit events", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("purged audit events",
			"removed", removed,
			"retention", s.auditRetention,
		)
	}
}

// flushStatsCache drops every cached stat once a day. TTLs keep entries
// fresh minute to minute; the flush bounds how long a redis backend can
// serve entries written by a prior deployment.
func (s *Scheduler) flushStatsCache() {
	s.cache.InvalidateAll(context.Background())
	s.logger.Debug("flushed stats cache")
}

// reloadGeoIP picks up a refreshed GeoLite2 database file.
func (s *Scheduler) reloadGeoIP() {
	if err := s.geo.Reload(); err != nil {
		s.logger.Warn("reloading GeoIP database", "error", err)
	}
}
