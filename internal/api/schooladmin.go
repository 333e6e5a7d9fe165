// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"net/http"

	"github.com/schooltransit/busadmin/internal/model"
)

// SchoolStats returns the caller's school-scoped aggregate counts.
func (c *Client) SchoolStats(ctx context.Context, token string) (*model.SchoolStats, error) {
	env, err := c.do(ctx, http.MethodGet, "/school-admin/stats", token, nil)
	if err != nil {
		return nil, err
	}
	var stats model.SchoolStats
	if err := decodeData(env, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Profile returns the caller's own account record.
func (c *Client) Profile(ctx context.Context, token string) (*model.Profile, error) {
	env, err := c.do(ctx, http.MethodGet, "/school-admin/profile", token, nil)
	if err != nil {
		return nil, err
	}
	var profile model.Profile
	if err := decodeData(env, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ProfileInput is the payload for profile updates. Empty fields are
// omitted so the platform keeps their current values.
type ProfileInput struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// UpdateProfile updates the caller's own account record.
func (c *Client) UpdateProfile(ctx context.Context, token string, in ProfileInput) error {
	_, err := c.do(ctx, http.MethodPut, "/school-admin/profile", token, in)
	return err
}

// ChangePasswordInput is the payload for credential rotation.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword rotates the caller's password.
func (c *Client) ChangePassword(ctx context.Context, token string, in ChangePasswordInput) error {
	_, err := c.do(ctx, http.MethodPut, "/school-admin/change-password", token, in)
	return err
}
