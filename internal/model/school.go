// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// School is a provisioned school record.
type School struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Contact   string `json:"contact"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// SchoolAdmin is a school-administrator account, scoped to one school.
type SchoolAdmin struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	SchoolID  string  `json:"schoolId"`
	Phone     string  `json:"phone,omitempty"`
	Address   string  `json:"address,omitempty"`
	School    *School `json:"school,omitempty"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt,omitempty"`
}

// PlatformStats is the platform-wide aggregate shown on the
// super-administrator dashboard.
type PlatformStats struct {
	TotalSchools      int `json:"totalSchools"`
	TotalSchoolAdmins int `json:"totalSchoolAdmins"`
	TotalBuses        int `json:"totalBuses"`
	TotalDrivers      int `json:"totalDrivers"`
	TotalRoutes       int `json:"totalRoutes"`
	TotalChildren     int `json:"totalChildren"`
	TotalParents      int `json:"totalParents"`
}

// SchoolStats is the school-scoped aggregate shown on the
// school-administrator dashboard.
type SchoolStats struct {
	School           *School `json:"school"`
	TotalBuses       int     `json:"totalBuses"`
	ActiveBuses      int     `json:"activeBuses"`
	InactiveBuses    int     `json:"inactiveBuses"`
	TotalRoutes      int     `json:"totalRoutes"`
	ActiveRoutes     int     `json:"activeRoutes"`
	InactiveRoutes   int     `json:"inactiveRoutes"`
	TotalDrivers     int     `json:"totalDrivers"`
	ActiveDrivers    int     `json:"activeDrivers"`
	InactiveDrivers  int     `json:"inactiveDrivers"`
	TotalParents     int     `json:"totalParents"`
	ActiveParents    int     `json:"activeParents"`
	InactiveParents  int     `json:"inactiveParents"`
	TotalChildren    int     `json:"totalChildren"`
	ActiveChildren   int     `json:"activeChildren"`
	InactiveChildren int     `json:"inactiveChildren"`
}

// Profile is the school administrator's own editable account record.
type Profile struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	SchoolID string  `json:"schoolId"`
	Phone    string  `json:"phone,omitempty"`
	Address  string  `json:"address,omitempty"`
	School   *School `json:"school,omitempty"`
}
