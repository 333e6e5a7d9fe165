// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"github.com/schooltransit/busadmin/internal/guard"
	"github.com/schooltransit/busadmin/internal/session"
)

// WithSessionStore resolves the per-session store, runs the one-time
// bootstrap, and places both the store and a state snapshot in the
// request context. Every route sits behind this middleware, inside
// the session manager's LoadAndSave.
//
// The bootstrap runs synchronously, so by the time a guard decides,
// initialization has completed; overlapping requests from the same
// browser still issue a single validation call.
func WithSessionStore(registry *session.Registry, sm *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := registry.For(sm.Token(r.Context()))
			store.InitializeAuth(r.Context())

			ctx := context.WithValue(r.Context(), ContextKeyStore, store)
			ctx = context.WithValue(ctx, ContextKeyState, store.Snapshot(r.Context()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a route group on one role. An unauthenticated
// session is sent to the entry screen, an authenticated session with
// the other role is sent to its own dashboard. Must run after
// WithSessionStore.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := GetState(r)
			g := guard.New(role)

			switch d := g.Evaluate(st); d.Phase {
			case guard.PhaseAuthorized:
				next.ServeHTTP(w, r)
			case guard.PhaseRedirecting:
				if d.Location == "" {
					// Latched repeat inside one request; nothing to send twice.
					return
				}
				slog.Debug("route guard redirect",
					"path", r.URL.Path,
					"to", d.Location,
					"required_role", role,
				)
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
			default:
				// Bootstrap incomplete; render the neutral holding state
				// rather than deciding anything.
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Session initializing, retry shortly", http.StatusServiceUnavailable)
			}
		})
	}
}

// ForceReauth clears the session and sends the browser to the entry
// screen. Called when an authenticated upstream call comes back 401.
func ForceReauth(w http.ResponseWriter, r *http.Request) {
	if store := GetStore(r); store != nil {
		if err := store.Logout(r.Context()); err != nil {
			slog.Error("clearing session for re-authentication", "error", err)
		}
	}
	http.Redirect(w, r, guard.EntryPath, http.StatusSeeOther)
}
