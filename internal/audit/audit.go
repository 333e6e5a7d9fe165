// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package audit records authentication and provisioning events to the
// local database. The external platform keeps the business data; this
// trail answers "who signed in from where" for the dashboards.
package audit

import (
	"context"
	"database/sql"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mileusna/useragent"

	"github.com/schooltransit/busadmin/internal/geoip"
	"github.com/schooltransit/busadmin/internal/middleware"
	"github.com/schooltransit/busadmin/internal/model"
	"github.com/schooltransit/busadmin/internal/store"
)

// Service writes and reads audit events.
type Service struct {
	queries *store.Queries
	geo     *geoip.Lookup
}

// NewService creates an audit service. geo may be nil when GeoIP is not
// configured.
func NewService(db *sql.DB, geo *geoip.Lookup) *Service {
	return &Service{queries: store.New(db), geo: geo}
}

// Event describes one auditable occurrence tied to a request.
type Event struct {
	Level   string
	Message string
	User    *model.User
	Email   string // set when no user record exists yet, e.g. failed sign-in
}

// RecordRequest writes an event annotated with the request's client IP,
// parsed user agent and country. Insert failures are logged, never
// propagated; auditing must not break the flow it observes.
func (s *Service) RecordRequest(r *http.Request, ev Event) {
	params := store.InsertAuditEventParams{
		Level:   ev.Level,
		Message: ev.Message,
	}

	if ev.User != nil {
		params.UserID = sql.NullString{String: ev.User.ID, Valid: true}
		params.UserEmail = sql.NullString{String: ev.User.Email, Valid: true}
	} else if ev.Email != "" {
		params.UserEmail = sql.NullString{String: ev.Email, Valid: true}
	}

	ip := middleware.ClientIP(r)
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	params.IP = sql.NullString{String: ip, Valid: ip != ""}
	params.Path = sql.NullString{String: r.URL.Path, Valid: true}

	if uaString := r.UserAgent(); uaString != "" {
		ua := useragent.Parse(uaString)
		if ua.Name != "" {
			params.Browser = sql.NullString{String: ua.Name, Valid: true}
		}
		if ua.OS != "" {
			params.OS = sql.NullString{String: ua.OS, Valid: true}
		}
	}
	if s.geo != nil {
		if country := s.geo.Country(ip); country != "" {
			params.Country = sql.NullString{String: country, Valid: true}
		}
	}

	// Background context so a canceled request still leaves its trace.
	if err := s.queries.InsertAuditEvent(context.Background(), params); err != nil {
		slog.Error("writing audit event", "error", err, "message", ev.Message)
	}
}

// SignInSucceeded records a successful sign-in.
func (s *Service) SignInSucceeded(r *http.Request, user *model.User) {
	s.RecordRequest(r, Event{
		Level:   store.EventLevelInfo,
		Message: "sign-in succeeded",
		User:    user,
	})
}

// SignInRejected records a sign-in the platform rejected.
func (s *Service) SignInRejected(r *http.Request, email string) {
	s.RecordRequest(r, Event{
		Level:   store.EventLevelWarning,
		Message: "sign-in rejected",
		Email:   email,
	})
}

// AccountLocked records a lockout after repeated failures.
func (s *Service) AccountLocked(r *http.Request, email string, duration time.Duration) {
	s.RecordRequest(r, Event{
		Level:   store.EventLevelWarning,
		Message: "account locked for " + duration.String(),
		Email:   email,
	})
}

// SignedOut records a sign-out.
func (s *Service) SignedOut(r *http.Request, user *model.User) {
	s.RecordRequest(r, Event{
		Level:   store.EventLevelInfo,
		Message: "signed out",
		User:    user,
	})
}

// Registered records a super-admin self-registration.
func (s *Service) Registered(r *http.Request, user *model.User) {
	s.RecordRequest(r, Event{
		Level:   store.EventLevelInfo,
		Message: "super administrator registered",
		User:    user,
	})
}

// SessionInvalidated records a forced re-authentication after the
// platform rejected a stored token mid-session.
func (s *Service) SessionInvalidated(r *http.Request, user *model.User) {
	s.RecordRequest(r, Event{
		Level:   store.EventLevelWarning,
		Message: "session invalidated by upstream",
		User:    user,
	})
}

// Recent returns the newest events for the dashboard panel.
func (s *Service) Recent(ctx context.Context, limit int64) ([]store.AuditEvent, error) {
	return s.queries.ListRecentAuditEvents(ctx, limit)
}

// PurgeOlderThan removes events past the retention window. Returns the
// number removed.
func (s *Service) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	return s.queries.DeleteAuditEventsBefore(ctx, time.Now().Add(-retention))
}
