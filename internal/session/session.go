// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package session holds the authenticated identity for each browser
// session: the durable record (user plus bearer tokens) persisted through
// the scs session manager, and the transient runtime flags that gate the
// one-time bootstrap against the platform API.
package session

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
)

// NewManager creates a new scs session manager configured with SQLite store.
func NewManager(db *sql.DB, isDev bool) *scs.SessionManager {
	sm := scs.New()

	// Use SQLite store
	sm.Store = sqlite3store.New(db)

	// Configure session
	sm.Lifetime = 24 * time.Hour
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = !isDev // Secure cookies in production only

	return sm
}
