// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package middleware provides HTTP middleware for session handling,
// role-gated routing and request hardening.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/schooltransit/busadmin/internal/model"
	"github.com/schooltransit/busadmin/internal/session"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// Context keys set by the session middleware.
const (
	ContextKeyStore       ContextKey = "session_store"
	ContextKeyState       ContextKey = "session_state"
	ContextKeyRequestPath ContextKey = "request_path"
)

// GetStore retrieves the per-session store from the request context.
// Returns nil outside the session middleware.
func GetStore(r *http.Request) *session.Store {
	st, _ := r.Context().Value(ContextKeyStore).(*session.Store)
	return st
}

// GetState retrieves the session snapshot taken by the session middleware.
func GetState(r *http.Request) session.State {
	st, _ := r.Context().Value(ContextKeyState).(session.State)
	return st
}

// GetUser returns the authenticated user from the request context, or nil.
func GetUser(r *http.Request) *model.User {
	return GetState(r).User
}

// AccessToken returns the session's bearer token, or "".
func AccessToken(r *http.Request) string {
	return GetState(r).AccessToken
}

// RequestPath stores the request path in the context so the logging
// handler can include the URL in mirrored audit events.
func RequestPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ContextKeyRequestPath, r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestPath retrieves the request path from the context.
func GetRequestPath(ctx context.Context) string {
	path, _ := ctx.Value(ContextKeyRequestPath).(string)
	return path
}

// getClientIP extracts the client IP, honoring reverse-proxy headers.
func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		// X-Forwarded-For can hold a chain; the first hop is the client.
		if i := strings.IndexByte(ip, ','); i >= 0 {
			return strings.TrimSpace(ip[:i])
		}
		return ip
	}
	return r.RemoteAddr
}

// ClientIP is the exported form used by the audit service.
func ClientIP(r *http.Request) string {
	return getClientIP(r)
}
