// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a failure reported by the platform API. Non-2xx responses carry
// a {message} body; Message holds it verbatim so screens can surface the
// upstream wording unchanged.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("api request failed with status %d", e.StatusCode)
}

// IsUnauthorized reports whether err is an upstream 401. CRUD handlers
// escalate these to a forced re-authentication redirect.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// StatusOf returns the upstream status code carried by err, or 0 when err
// is not an upstream rejection (e.g. a transport failure).
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
