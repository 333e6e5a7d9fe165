// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// Bus is a vehicle in the school's fleet.
type Bus struct {
	ID            string  `json:"id"`
	BusNumber     string  `json:"busNumber"`
	Capacity      int     `json:"capacity"`
	Model         string  `json:"model,omitempty"`
	PlateNumber   string  `json:"plateNumber"`
	IsActive      bool    `json:"isActive"`
	DriverID      string  `json:"driverId,omitempty"`
	Driver        *Driver `json:"driver,omitempty"`
	ChildrenCount int     `json:"childrenCount,omitempty"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt,omitempty"`
}

// Driver is a bus driver employed by the school.
type Driver struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	LicenseNumber string `json:"licenseNumber"`
	Address       string `json:"address,omitempty"`
	IsActive      bool   `json:"isActive"`
	AssignedBus   *Bus   `json:"assignedBus,omitempty"`
	RoutesCount   int    `json:"routesCount,omitempty"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

// Route is a pickup/drop route served by at most one bus.
type Route struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	StartStop         string   `json:"startStop"`
	EndStop           string   `json:"endStop"`
	Stops             []string `json:"stops,omitempty"`
	IsActive          bool     `json:"isActive"`
	BusID             string   `json:"busId,omitempty"`
	AssignedBusNumber string   `json:"assignedBusNumber,omitempty"`
	ChildrenCount     int      `json:"childrenCount,omitempty"`
	CreatedAt         string   `json:"createdAt"`
	UpdatedAt         string   `json:"updatedAt,omitempty"`
}

// Child is a transported child, linked to a parent and optionally to a
// bus and route.
type Child struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Class      string  `json:"class"`
	PickupStop string  `json:"pickupStop"`
	DropStop   string  `json:"dropStop"`
	IsActive   bool    `json:"isActive"`
	ParentID   string  `json:"parentId"`
	BusID      string  `json:"busId,omitempty"`
	RouteID    string  `json:"routeId,omitempty"`
	Parent     *Parent `json:"parent,omitempty"`
	Bus        *Bus    `json:"bus,omitempty"`
	Route      *Route  `json:"route,omitempty"`
	CreatedAt  string  `json:"createdAt"`
	UpdatedAt  string  `json:"updatedAt,omitempty"`
}

// Parent is a parent account with zero or more children.
type Parent struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Email            string  `json:"email"`
	Phone            string  `json:"phone"`
	Address          string  `json:"address"`
	EmergencyContact string  `json:"emergencyContact,omitempty"`
	IsActive         bool    `json:"isActive"`
	Children         []Child `json:"children,omitempty"`
	ChildrenCount    int     `json:"childrenCount,omitempty"`
	CreatedAt        string  `json:"createdAt"`
	UpdatedAt        string  `json:"updatedAt,omitempty"`
}
