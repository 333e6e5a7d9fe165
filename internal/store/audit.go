// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

// Audit event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// AuditEvent is one entry in the auth audit log.
type AuditEvent struct {
	ID        int64
	Level     string
	Message   string
	UserID    sql.NullString
	UserEmail sql.NullString
	IP        sql.NullString
	Path      sql.NullString
	Browser   sql.NullString
	OS        sql.NullString
	Country   sql.NullString
	CreatedAt time.Time
}

// Queries wraps the database handle with typed query methods.
type Queries struct {
	db *sql.DB
}

// New creates a Queries instance over the given database.
func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// InsertAuditEventParams holds the fields for a new audit event.
type InsertAuditEventParams struct {
	Level     string
	Message   string
	UserID    sql.NullString
	UserEmail sql.NullString
	IP        sql.NullString
	Path      sql.NullString
	Browser   sql.NullString
	OS        sql.NullString
	Country   sql.NullString
}

// InsertAuditEvent records a new audit event.
func (q *Queries) InsertAuditEvent(ctx context.Context, p InsertAuditEventParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO audit_events (level, message, user_id, user_email, ip, path, browser, os, country)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Level, p.Message, p.UserID, p.UserEmail, p.IP, p.Path, p.Browser, p.OS, p.Country)
	return err
}

// ListRecentAuditEvents returns the most recent audit events, newest first.
func (q *Queries) ListRecentAuditEvents(ctx context.Context, limit int64) ([]AuditEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, level, message, user_id, user_email, ip, path, browser, os, country, created_at
		FROM audit_events
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.Level, &e.Message, &e.UserID, &e.UserEmail,
			&e.IP, &e.Path, &e.Browser, &e.OS, &e.Country, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteAuditEventsBefore removes audit events created before the cutoff.
// Returns the number of deleted rows.
func (q *Queries) DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM audit_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountAuditEvents returns the total number of audit events.
func (q *Queries) CountAuditEvents(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&n)
	return n, err
}
