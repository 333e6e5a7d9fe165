// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging provides a slog handler that mirrors warnings and
// errors into the audit log, so operational failures show up on the
// dashboards next to the authentication trail.
package logging

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/schooltransit/busadmin/internal/middleware"
	"github.com/schooltransit/busadmin/internal/store"
)

// AuditLogHandler wraps another slog handler and additionally writes
// records at WARN and above to the audit_events table.
type AuditLogHandler struct {
	inner   slog.Handler
	queries *store.Queries
	level   slog.Level
}

// NewAuditLogHandler creates a handler mirroring WARN and above.
func NewAuditLogHandler(inner slog.Handler, db *sql.DB) *AuditLogHandler {
	return &AuditLogHandler{
		inner:   inner,
		queries: store.New(db),
		level:   slog.LevelWarn,
	}
}

// NewAuditLogHandlerWithLevel creates a handler with a custom threshold.
func NewAuditLogHandlerWithLevel(inner slog.Handler, db *sql.DB, level slog.Level) *AuditLogHandler {
	return &AuditLogHandler{
		inner:   inner,
		queries: store.New(db),
		level:   level,
	}
}

// Enabled implements slog.Handler.
func (h *AuditLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *AuditLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}
	if r.Level >= h.level {
		h.mirror(ctx, r)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *AuditLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AuditLogHandler{
		inner:   h.inner.WithAttrs(attrs),
		queries: h.queries,
		level:   h.level,
	}
}

// WithGroup implements slog.Handler.
func (h *AuditLogHandler) WithGroup(name string) slog.Handler {
	return &AuditLogHandler{
		inner:   h.inner.WithGroup(name),
		queries: h.queries,
		level:   h.level,
	}
}

// mirror writes the record into the audit log. The insert uses a
// background context so a canceled request still leaves its trace.
func (h *AuditLogHandler) mirror(ctx context.Context, r slog.Record) {
	params := store.InsertAuditEventParams{
		Level:   eventLevel(r.Level),
		Message: r.Message + attrSuffix(r),
	}
	if path := middleware.GetRequestPath(ctx); path != "" {
		params.Path = sql.NullString{String: path, Valid: true}
	}
	_ = h.queries.InsertAuditEvent(context.Background(), params)
}

func eventLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return store.EventLevelError
	case level >= slog.LevelWarn:
		return store.EventLevelWarning
	default:
		return store.EventLevelInfo
	}
}

// attrSuffix renders the record's attributes as a compact key=value
// suffix. Attribute sets here are small; a full JSON encoder would be
// overkill for log mirroring.
func attrSuffix(r slog.Record) string {
	if r.NumAttrs() == 0 {
		return ""
	}

	var sb strings.Builder
	r.Attrs(func(a slog.Attr) bool {
		sb.WriteString(" ")
		sb.WriteString(a.Key)
		sb.WriteString("=")
		sb.WriteString(a.Value.String())
		return true
	})
	return " (" + strings.TrimSpace(sb.String()) + ")"
}
