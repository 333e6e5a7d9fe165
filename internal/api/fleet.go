// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"net/http"

	"github.com/schooltransit/busadmin/internal/model"
)

// listResource fetches a school-scoped resource collection into out.
func (c *Client) listResource(ctx context.Context, token, path string, out any) error {
	env, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return err
	}
	return decodeData(env, out)
}

// ListBuses returns the school's buses.
func (c *Client) ListBuses(ctx context.Context, token string) ([]model.Bus, error) {
	var buses []model.Bus
	if err := c.listResource(ctx, token, "/bus", &buses); err != nil {
		return nil, err
	}
	return buses, nil
}

// BusInput is the payload for creating or updating a bus.
type BusInput struct {
	BusNumber   string `json:"busNumber"`
	Capacity    int    `json:"capacity"`
	Model       string `json:"model,omitempty"`
	PlateNumber string `json:"plateNumber"`
	DriverID    string `json:"driverId,omitempty"`
	IsActive    *bool  `json:"isActive,omitempty"`
}

// CreateBus adds a bus to the fleet.
func (c *Client) CreateBus(ctx context.Context, token string, in BusInput) error {
	_, err := c.do(ctx, http.MethodPost, "/bus", token, in)
	return err
}

// UpdateBus updates a bus.
func (c *Client) UpdateBus(ctx context.Context, token, id string, in BusInput) error {
	_, err := c.do(ctx, http.MethodPut, "/bus/"+id, token, in)
	return err
}

// DeleteBus removes a bus.
func (c *Client) DeleteBus(ctx context.Context, token, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/bus/"+id, token, nil)
	return err
}

// ListDrivers returns the school's drivers.
func (c *Client) ListDrivers(ctx context.Context, token string) ([]model.Driver, error) {
	var drivers []model.Driver
	if err := c.listResource(ctx, token, "/driver", &drivers); err != nil {
		return nil, err
	}
	return drivers, nil
}

// DriverInput is the payload for creating or updating a driver.
// Password is only set on create.
type DriverInput struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password,omitempty"`
	Phone         string `json:"phone"`
	LicenseNumber string `json:"licenseNumber"`
	Address       string `json:"address,omitempty"`
	IsActive      *bool  `json:"isActive,omitempty"`
}

// CreateDriver adds a driver.
func (c *Client) CreateDriver(ctx context.Context, token string, in DriverInput) error {
	_, err := c.do(ctx, http.MethodPost, "/driver", token, in)
	return err
}

// UpdateDriver updates a driver.
func (c *Client) UpdateDriver(ctx context.Context, token, id string, in DriverInput) error {
	_, err := c.do(ctx, http.MethodPut, "/driver/"+id, token, in)
	return err
}

// DeleteDriver removes a driver.
func (c *Client) DeleteDriver(ctx context.Context, token, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/driver/"+id, token, nil)
	return err
}

// ListRoutes returns the school's routes.
func (c *Client) ListRoutes(ctx context.Context, token string) ([]model.Route, error) {
	var routes []model.Route
	if err := c.listResource(ctx, token, "/route", &routes); err != nil {
		return nil, err
	}
	return routes, nil
}

// RouteInput is the payload for creating or updating a route.
type RouteInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	StartStop   string   `json:"startStop"`
	EndStop     string   `json:"endStop"`
	Stops       []string `json:"stops,omitempty"`
	BusID       string   `json:"busId,omitempty"`
	IsActive    *bool    `json:"isActive,omitempty"`
}

// CreateRoute adds a route.
func (c *Client) CreateRoute(ctx context.Context, token string, in RouteInput) error {
	_, err := c.do(ctx, http.MethodPost, "/route", token, in)
	return err
}

// UpdateRoute updates a route.
func (c *Client) UpdateRoute(ctx context.Context, token, id string, in RouteInput) error {
	_, err := c.do(ctx, http.MethodPut, "/route/"+id, token, in)
	return err
}

// DeleteRoute removes a route.
func (c *Client) DeleteRoute(ctx context.Context, token, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/route/"+id, token, nil)
	return err
}

// ListChildren returns the school's children.
func (c *Client) ListChildren(ctx context.Context, token string) ([]model.Child, error) {
	var children []model.Child
	if err := c.listResource(ctx, token, "/child", &children); err != nil {
		return nil, err
	}
	return children, nil
}

// ChildInput is the payload for creating or updating a child record.
type ChildInput struct {
	Name       string `json:"name"`
	Class      string `json:"class"`
	PickupStop string `json:"pickupStop"`
	DropStop   string `json:"dropStop"`
	ParentID   string `json:"parentId"`
	BusID      string `json:"busId,omitempty"`
	RouteID    string `json:"routeId,omitempty"`
	IsActive   *bool  `json:"isActive,omitempty"`
}

// CreateChild adds a child record.
func (c *Client) CreateChild(ctx context.Context, token string, in ChildInput) error {
	_, err := c.do(ctx, http.MethodPost, "/child", token, in)
	return err
}

// UpdateChild updates a child record.
func (c *Client) UpdateChild(ctx context.Context, token, id string, in ChildInput) error {
	_, err := c.do(ctx, http.MethodPut, "/child/"+id, token, in)
	return err
}

// DeleteChild removes a child record.
func (c *Client) DeleteChild(ctx context.Context, token, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/child/"+id, token, nil)
	return err
}

// ListParents returns the school's parents.
func (c *Client) ListParents(ctx context.Context, token string) ([]model.Parent, error) {
	var parents []model.Parent
	if err := c.listResource(ctx, token, "/parent", &parents); err != nil {
		return nil, err
	}
	return parents, nil
}

// ParentInput is the payload for creating or updating a parent account.
// Password is only set on create.
type ParentInput struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Password         string `json:"password,omitempty"`
	Phone            string `json:"phone"`
	Address          string `json:"address"`
	EmergencyContact string `json:"emergencyContact,omitempty"`
	IsActive         *bool  `json:"isActive,omitempty"`
}

// CreateParent adds a parent account.
func (c *Client) CreateParent(ctx context.Context, token string, in ParentInput) error {
	_, err := c.do(ctx, http.MethodPost, "/parent", token, in)
	return err
}

// UpdateParent updates a parent account.
func (c *Client) UpdateParent(ctx context.Context, token, id string, in ParentInput) error {
	_, err := c.do(ctx, http.MethodPut, "/parent/"+id, token, in)
	return err
}

// DeleteParent removes a parent account.
func (c *Client) DeleteParent(ctx context.Context, token, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/parent/"+id, token, nil)
	return err
}
