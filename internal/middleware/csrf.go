// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"log/slog"
	"net/http"

	"filippo.io/csrf/gorilla"
)

// CSRFConfig holds configuration for CSRF protection. The underlying
// library validates Fetch metadata headers rather than cookies.
type CSRFConfig struct {
	// AuthKey is a 32-byte key; the session secret is reused here.
	AuthKey []byte

	// ErrorHandler is called when validation fails.
	ErrorHandler http.Handler

	// TrustedOrigins lists host-only origins allowed to post cross-site.
	TrustedOrigins []string
}

// DefaultCSRFConfig returns defaults; in development localhost origins
// are trusted so forms work over plain HTTP.
func DefaultCSRFConfig(authKey []byte, isDev bool, serverAddr string) CSRFConfig {
	cfg := CSRFConfig{AuthKey: authKey}
	if isDev {
		cfg.TrustedOrigins = []string{serverAddr, "localhost:8080", "127.0.0.1:8080"}
	}
	return cfg
}

// CSRF returns the CSRF protection middleware.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	var opts []csrf.Option

	if cfg.ErrorHandler != nil {
		opts = append(opts, csrf.ErrorHandler(cfg.ErrorHandler))
	} else {
		opts = append(opts, csrf.ErrorHandler(http.HandlerFunc(csrfErrorHandler)))
	}
	if len(cfg.TrustedOrigins) > 0 {
		opts = append(opts, csrf.TrustedOrigins(cfg.TrustedOrigins))
	}

	return csrf.Protect(cfg.AuthKey, opts...)
}

func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	reasonStr := "unknown"
	if reason := csrf.FailureReason(r); reason != nil {
		reasonStr = reason.Error()
	}
	slog.Error("CSRF validation failed",
		"reason", reasonStr,
		"method", r.Method,
		"path", r.URL.Path,
		"origin", r.Header.Get("Origin"),
		"sec_fetch_site", r.Header.Get("Sec-Fetch-Site"),
	)
	http.Error(w, "Forbidden - CSRF validation failed", http.StatusForbidden)
}
