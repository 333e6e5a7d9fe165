// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// SecurityHeadersConfig holds configuration for security headers.
type SecurityHeadersConfig struct {
	// IsDevelopment disables HSTS for plain-HTTP local runs.
	IsDevelopment bool

	// ContentSecurityPolicy overrides the default policy when set.
	ContentSecurityPolicy string

	// HSTSMaxAge is the Strict-Transport-Security max-age in seconds.
	// 0 disables HSTS.
	HSTSMaxAge int

	HSTSIncludeSubDomains bool

	// FrameOptions is the X-Frame-Options value, empty to disable.
	FrameOptions string

	// ReferrerPolicy is the Referrer-Policy value.
	ReferrerPolicy string

	// PermissionsPolicy is the Permissions-Policy value.
	PermissionsPolicy string
}

// DefaultSecurityHeadersConfig returns the defaults for the dashboard.
// The application serves only its own templates and static assets, so
// the policy stays close to 'self'.
func DefaultSecurityHeadersConfig(isDev bool) SecurityHeadersConfig {
	cfg := SecurityHeadersConfig{
		IsDevelopment:  isDev,
		HSTSMaxAge:     31536000,
		FrameOptions:   "DENY",
		ReferrerPolicy: "strict-origin-when-cross-origin",
	}

	cfg.ContentSecurityPolicy = buildCSP(map[string]string{
		"default-src": "'self'",
		"script-src":  "'self'",
		"style-src":   "'self' 'unsafe-inline'",
		"img-src":     "'self' data:",
		"font-src":    "'self' data:",
		"connect-src": "'self'",
		"object-src":  "'none'",
		"base-uri":    "'self'",
		"form-action": "'self'",
	})
	if !isDev {
		cfg.HSTSIncludeSubDomains = true
	}

	cfg.PermissionsPolicy = buildPermissionsPolicy(map[string]string{
		"accelerometer": "()",
		"camera":        "()",
		"geolocation":   "()",
		"microphone":    "()",
		"payment":       "()",
		"usb":           "()",
	})

	return cfg
}

var cspOrder = []string{
	"default-src", "script-src", "style-src", "img-src", "font-src",
	"connect-src", "frame-src", "object-src", "base-uri", "form-action",
}

// buildCSP builds a Content-Security-Policy string with stable ordering.
func buildCSP(directives map[string]string) string {
	var parts []string
	for _, key := range cspOrder {
		if value, ok := directives[key]; ok {
			parts = append(parts, key+" "+value)
		}
	}
	for key, value := range directives {
		ordered := false
		for _, o := range cspOrder {
			if key == o {
				ordered = true
				break
			}
		}
		if !ordered {
			parts = append(parts, key+" "+value)
		}
	}
	return strings.Join(parts, "; ")
}

func buildPermissionsPolicy(policies map[string]string) string {
	var parts []string
	for key, value := range policies {
		parts = append(parts, key+"="+value)
	}
	return strings.Join(parts, ", ")
}

// SecurityHeaders returns a middleware that adds security headers.
func SecurityHeaders(cfg SecurityHeadersConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.ContentSecurityPolicy != "" {
				w.Header().Set("Content-Security-Policy", cfg.ContentSecurityPolicy)
			}
			if !cfg.IsDevelopment && cfg.HSTSMaxAge > 0 {
				hsts := "max-age=" + strconv.Itoa(cfg.HSTSMaxAge)
				if cfg.HSTSIncludeSubDomains {
					hsts += "; includeSubDomains"
				}
				w.Header().Set("Strict-Transport-Security", hsts)
			}
			if cfg.FrameOptions != "" {
				w.Header().Set("X-Frame-Options", cfg.FrameOptions)
			}
			w.Header().Set("X-Content-Type-Options", "nosniff")
			if cfg.ReferrerPolicy != "" {
				w.Header().Set("Referrer-Policy", cfg.ReferrerPolicy)
			}
			if cfg.PermissionsPolicy != "" {
				w.Header().Set("Permissions-Policy", cfg.PermissionsPolicy)
			}

			next.ServeHTTP(w, r)
		})
	}
}
