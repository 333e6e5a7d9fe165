// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"net/http"

	"github.com/schooltransit/busadmin/internal/model"
)

// ListSchools returns all provisioned schools.
func (c *Client) ListSchools(ctx context.Context, token string) ([]model.School, error) {
	env, err := c.do(ctx, http.MethodGet, "/super-admin/schools", token, nil)
	if err != nil {
		return nil, err
	}
	var schools []model.School
	if err := decodeData(env, &schools); err != nil {
		return nil, err
	}
	return schools, nil
}

// ListSchoolAdmins returns all school-administrator accounts.
func (c *Client) ListSchoolAdmins(ctx context.Context, token string) ([]model.SchoolAdmin, error) {
	env, err := c.do(ctx, http.MethodGet, "/super-admin/school-admins", token, nil)
	if err != nil {
		return nil, err
	}
	var admins []model.SchoolAdmin
	if err := decodeData(env, &admins); err != nil {
		return nil, err
	}
	return admins, nil
}

// PlatformStats returns the platform-wide aggregate counts.
func (c *Client) PlatformStats(ctx context.Context, token string) (*model.PlatformStats, error) {
	env, err := c.do(ctx, http.MethodGet, "/super-admin/stats", token, nil)
	if err != nil {
		return nil, err
	}
	var stats model.PlatformStats
	if err := decodeData(env, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SchoolInput is the payload for creating or updating a school.
type SchoolInput struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Contact string `json:"contact"`
}

// CreateSchool provisions a new school.
func (c *Client) CreateSchool(ctx context.Context, token string, in SchoolInput) error {
	_, err := c.do(ctx, http.MethodPost, "/super-admin/create-school", token, in)
	return err
}

// UpdateSchool updates a school record.
func (c *Client) UpdateSchool(ctx context.Context, token, id string, in SchoolInput) error {
	_, err := c.do(ctx, http.MethodPut, "/super-admin/schools/"+id, token, in)
	return err
}

// DeleteSchool removes a school.
func (c *Client) DeleteSchool(ctx context.Context, token, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/super-admin/schools/"+id, token, nil)
	return err
}

// SchoolAdminInput is the payload for creating or updating a
// school-administrator account. Password is only set on create.
type SchoolAdminInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	SchoolID string `json:"schoolId"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
}

// CreateSchoolAdmin provisions a new school-administrator account.
func (c *Client) CreateSchoolAdmin(ctx context.Context, token string, in SchoolAdminInput) error {
	_, err := c.do(ctx, http.MethodPost, "/create-school-admin", token, in)
	return err
}

// UpdateSchoolAdmin updates a school-administrator account.
func (c *Client) UpdateSchoolAdmin(ctx context.Context, token, id string, in SchoolAdminInput) error {
	_, err := c.do(ctx, http.MethodPut, "/school-admins/"+id, token, in)
	return err
}

// DeleteSchoolAdmin removes a school-administrator account.
func (c *Client) DeleteSchoolAdmin(ctx context.Context, token, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/school-admins/"+id, token, nil)
	return err
}
