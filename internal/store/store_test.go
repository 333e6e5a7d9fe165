// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "busadmin-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(db))
	return db
}

func TestMigrateCreatesTables(t *testing.T) {
	db := testDB(t)

	for _, table := range []string{"sessions", "audit_events"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		assert.NoError(t, err, "table %s missing", table)
	}
}

func TestAuditEventRoundTrip(t *testing.T) {
	db := testDB(t)
	q := New(db)
	ctx := context.Background()

	err := q.InsertAuditEvent(ctx, InsertAuditEventParams{
		Level:     EventLevelWarning,
		Message:   "Sign-in failed: invalid password",
		UserEmail: sql.NullString{String: "a@x.com", Valid: true},
		IP:        sql.NullString{String: "203.0.113.7", Valid: true},
		Path:      sql.NullString{String: "/sign-in", Valid: true},
		Browser:   sql.NullString{String: "Firefox", Valid: true},
		OS:        sql.NullString{String: "Linux", Valid: true},
	})
	require.NoError(t, err)

	events, err := q.ListRecentAuditEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, EventLevelWarning, e.Level)
	assert.Equal(t, "Sign-in failed: invalid password", e.Message)
	assert.True(t, e.UserEmail.Valid)
	assert.Equal(t, "a@x.com", e.UserEmail.String)
	assert.False(t, e.UserID.Valid, "UserID should be null")
}

func TestDeleteAuditEventsBefore(t *testing.T) {
	db := testDB(t)
	q := New(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := q.InsertAuditEvent(ctx, InsertAuditEventParams{
			Level:   EventLevelInfo,
			Message: "User signed in",
		})
		require.NoError(t, err)
	}

	// Nothing should be older than an hour ago.
	n, err := q.DeleteAuditEventsBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	// Everything is older than a future cutoff.
	n, err = q.DeleteAuditEventsBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	count, err := q.CountAuditEvents(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
