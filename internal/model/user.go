// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines the records exchanged with the transportation
// platform API: users, schools, fleet resources and dashboard statistics.
package model

// User roles. The two roles are mutually exclusive; each has a disjoint
// set of screens and API scopes.
const (
	RoleSuperAdmin  = "super_admin"
	RoleSchoolAdmin = "school_admin"
)

// User is the authenticated identity as reported by the platform API.
// SchoolID is set only for school administrators.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	SchoolID string `json:"schoolId,omitempty"`
}

// IsSuperAdmin returns true if the user has the super-administrator role.
func (u *User) IsSuperAdmin() bool {
	return u.Role == RoleSuperAdmin
}

// IsSchoolAdmin returns true if the user has the school-administrator role.
func (u *User) IsSchoolAdmin() bool {
	return u.Role == RoleSchoolAdmin
}

// ValidRole reports whether role is one of the two known roles.
func ValidRole(role string) bool {
	return role == RoleSuperAdmin || role == RoleSchoolAdmin
}

// DashboardPath returns the dashboard route for the given role.
// Unknown roles fall back to the landing page.
func DashboardPath(role string) string {
	switch role {
	case RoleSuperAdmin:
		return "/dashboard"
	case RoleSchoolAdmin:
		return "/school/dashboard"
	default:
		return "/"
	}
}
