// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/schooltransit/busadmin/internal/api"
	"github.com/schooltransit/busadmin/internal/audit"
	"github.com/schooltransit/busadmin/internal/cache"
	"github.com/schooltransit/busadmin/internal/middleware"
	"github.com/schooltransit/busadmin/internal/model"
	"github.com/schooltransit/busadmin/internal/render"
)

// SchoolHandler handles the school-administrator screens: the school
// dashboard, fleet management (buses, drivers, routes, children, parents)
// and the administrator's own profile.
type SchoolHandler struct {
	api      *api.Client
	renderer *render.Renderer
	cache    *cache.Manager
	audits   *audit.Service
}

// NewSchoolHandler creates a new SchoolHandler.
func NewSchoolHandler(client *api.Client, renderer *render.Renderer, cm *cache.Manager, audits *audit.Service) *SchoolHandler {
	return &SchoolHandler{
		api:      client,
		renderer: renderer,
		cache:    cm,
		audits:   audits,
	}
}

// Dashboard renders the school overview. Stats go through the cache; a
// fetch failure shows the error panel with a retry action and leaves the
// session alone.
func (h *SchoolHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)

	stats, err := h.cache.SchoolStats(r.Context(), user.SchoolID, func() (*model.SchoolStats, error) {
		return h.api.SchoolStats(r.Context(), middleware.AccessToken(r))
	})

	td := render.TemplateData{Title: "School Dashboard", ActivePath: RouteSchoolDashboard, User: user}
	if err != nil {
		slog.Error("failed to load school dashboard", "error", err)
		td.Error = upstreamMessage(err, "Failed to load dashboard data")
	} else {
		td.Data = stats
	}
	if err := h.renderer.Render(w, r, "admin/school_dashboard", td); err != nil {
		logAndInternalError(w, "failed to render school dashboard", "error", err)
	}
}

// renderList fetches a fleet listing and renders it, or shows the error
// panel when the fetch fails.
func renderList[T any](h *SchoolHandler, w http.ResponseWriter, r *http.Request,
	title, route, tmpl, fallback string,
	fetch func(token string) ([]T, error)) {

	items, err := fetch(middleware.AccessToken(r))

	td := render.TemplateData{Title: title, ActivePath: route, User: middleware.GetUser(r)}
	if err != nil {
		slog.Error("failed to load "+tmpl, "error", err)
		td.Error = upstreamMessage(err, fallback)
	} else {
		td.Data = items
	}
	if err := h.renderer.Render(w, r, "admin/"+tmpl, td); err != nil {
		logAndInternalError(w, "failed to render "+tmpl, "error", err)
	}
}

// --- Buses ---

// Buses renders the bus fleet screen.
func (h *SchoolHandler) Buses(w http.ResponseWriter, r *http.Request) {
	renderList(h, w, r, "Buses", RouteSchoolBuses, "buses", "Failed to load buses",
		func(token string) ([]model.Bus, error) { return h.api.ListBuses(r.Context(), token) })
}

func busInputFromForm(r *http.Request) (api.BusInput, string) {
	capacity, err := strconv.Atoi(r.FormValue("capacity"))
	if err != nil || capacity <= 0 {
		return api.BusInput{}, "Capacity must be a positive number"
	}
	in := api.BusInput{
		BusNumber:   strings.TrimSpace(r.FormValue("bus_number")),
		Capacity:    capacity,
		Model:       strings.TrimSpace(r.FormValue("model")),
		PlateNumber: strings.TrimSpace(r.FormValue("plate_number")),
		DriverID:    r.FormValue("driver_id"),
	}
	if in.BusNumber == "" || in.PlateNumber == "" {
		return api.BusInput{}, "Bus number and plate number are required"
	}
	if active := r.FormValue("is_active"); active != "" {
		v := active == "true" || active == "on"
		in.IsActive = &v
	}
	return in, ""
}

// CreateBus adds a bus to the fleet.
// POST /school/buses
func (h *SchoolHandler) CreateBus(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, RouteSchoolBuses, "create bus", "Bus created", func(token string) error {
		in, msg := busInputFromForm(r)
		if msg != "" {
			return &formError{msg}
		}
		return h.api.CreateBus(r.Context(), token, in)
	})
}

// UpdateBus updates a bus.
// POST /school/buses/{id}
func (h *SchoolHandler) UpdateBus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, RouteSchoolBuses, "update bus", "Bus updated", func(token string) error {
		in, msg := busInputFromForm(r)
		if msg != "" {
			return &formError{msg}
		}
		return h.api.UpdateBus(r.Context(), token, id, in)
	})
}

// DeleteBus removes a bus.
// POST /school/buses/{id}/delete
func (h *SchoolHandler) DeleteBus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, RouteSchoolBuses, "delete bus", "Bus deleted", func(token string) error {
		return h.api.DeleteBus(r.Context(), token, id)
	})
}

// --- Drivers ---

// Drivers renders the driver roster.
func (h *SchoolHandler) Drivers(w http.ResponseWriter, r *http.Request) {
	renderList(h, w, r, "Drivers", RouteSchoolDrivers, "drivers", "Failed to load drivers",
		func(token string) ([]model.Driver, error) { return h.api.ListDrivers(r.Context(), token) })
}

func driverInputFromForm(r *http.Request, requirePassword bool) (api.DriverInput, string) {
	in := api.DriverInput{
		Name:          strings.TrimSpace(r.FormValue("name")),
		Email:         strings.TrimSpace(r.FormValue("email")),
		Password:      r.FormValue("password"),
		Phone:         strings.TrimSpace(r.FormValue("phone")),
		LicenseNumber: strings.TrimSpace(r.FormValue("license_number")),
		Address:       strings.TrimSpace(r.FormValue("address")),
	}
	if in.Name == "" || in.Email == "" || in.Phone == "" || in.LicenseNumber == "" {
		return api.DriverInput{}, "Name, email, phone and license number are required"
	}
	if requirePassword && in.Password == "" {
		return api.DriverInput{}, "Password is required"
	}
	if active := r.FormValue("is_active"); active != "" {
		v := active == "true" || active == "on"
		in.IsActive = &v
	}
	return in, ""
}

// CreateDriver adds a driver.
// POST /school/drivers
func (h *SchoolHandler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, RouteSchoolDrivers, "create driver", "Driver created", func(token string) error {
		in, msg := driverInputFromForm(r, true)
		if msg != "" {
			return &formError{msg}
		}
		return h.api.CreateDriver(r.Context(), token, in)
	})
}

// UpdateDriver updates a driver.
// POST /school/drivers/{id}
func (h *SchoolHandler) UpdateDriver(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, RouteSchoolDrivers, "update driver", "Driver updated", func(token string) error {
		in, msg := driverInputFromForm(r, false)
		if msg != "" {
			return &formError{msg}
		}
		return h.api.UpdateDriver(r.Context(), token, id, in)
	})
}

// DeleteDriver removes a driver.
// POST /school/drivers/{id}/delete
func (h *SchoolHandler) DeleteDriver(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, RouteSchoolDrivers, "delete driver", "Driver deleted", func(token string) error {
		return h.api.DeleteDriver(r.Context(), token, id)
	})
}

// --- Routes ---

// Routes renders the route list.
func (h *SchoolHandler) Routes(w http.ResponseWriter, r *http.Request) {
	renderList(h, w, r, "Routes", RouteSchoolRoutes, "routes", "Failed to load routes",
		func(token string) ([]model.Route, error) { return h.api.ListRoutes(r.Context(), token) })
}

func routeInputFromForm(r *http.Request) (api.RouteInput, string) {
	in := api.RouteInput{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
		StartStop:   strings.TrimSpace(r.FormValue("start_stop")),
		EndStop:     strings.TrimSpace(r.FormValue("end_stop")),
		BusID:       r.FormValue("bus_id"),
	}
	if in.Name == "" || in.StartStop == "" || in.EndStop == "" {
		return api.RouteInput{}, "Name, start stop and end stop are required"
	}
	// One stop per line in the textarea.
	for _, stop := range strings.Split(r.FormValue("stops"), "\n") {
		if stop = strings.TrimSpace(stop); stop != "" {
			in.Stops = append(in.Stops, stop)
		}
	}
	if active := r.FormValue("is_active"); active != "" {
		v := active == "true" || active == "on"
		in.IsActive = &v
	}
	return in, ""
}

// CreateRoute adds a route.
// POST /school/routes
func (h *SchoolHandler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, RouteSchoolRoutes, "create route", "Route created", func(token string) error {
		in, msg := routeInputFromForm(r)
		if msg != "" {
			return &formError{msg}
		}
		return h.api.CreateRoute(r.Context(), token, in)
	})
}

// UpdateRoute updates a route.
// POST /school/routes/{id}
func (h *SchoolHandler) UpdateRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, RouteSchoolRoutes, "update route", "Route updated", func(token string) error {
		in, msg := routeInputFromForm(r)
		if msg != "" {
			return &formError{msg}
		}
		return h.api.UpdateRoute(r.Context(), token, id, in)
	})
}

// DeleteRoute removes a route.
// POST /school/routes/{id}/delete
func (h *SchoolHandler) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, RouteSchoolRoutes, "delete route", "Route deleted", func(token string) error {
		return h.api.DeleteRoute(r.Context(), token, id)
	})
}

// --- Children ---

// Children renders the children list.
func (h *SchoolHandler) Children(w http.ResponseWriter, r *http.Request) {
	renderList(h, w, r, "Children", RouteSchoolChildren, "children", "Failed to load children",
		func(token string) ([]model.Child, error) { return h.api.ListChildren(r.Context(), token) })
}

func childInputFromForm(r *http.Request) (api.ChildInput, string) {
	in := api.ChildInput{
		Name:       strings.TrimSpace(r.FormValue("name")),
		Class:      strings.TrimSpace(r.FormValue("class")),
		PickupStop: strings.TrimSpace(r.FormValue("pickup_stop")),
		DropStop:   strings.TrimSpace(r.FormValue("drop_stop")),
		ParentID:   r.FormValue("parent_id"),
		BusID:      r.FormValue("bus_id"),
		RouteID:    r.FormValue("route_id"),
	}
	if in.Name == "" || in.Class == "" || in.PickupStop == "" || in.DropStop == "" || in.ParentID == "" {
		return api.ChildInput{}, "Name, class, stops and parent are required"
	}
	if active := r.FormValue("is_active"); active != "" {
		v := active == "true" || active == "on"
		in.IsActive = &v
	}
	return in, ""
}

// CreateChild adds a child record.
// POST /school/children
func (h *SchoolHandler) CreateChild(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, RouteSchoolChildren, "create child", "Child added", func(token string) error {
		in, msg := childInputFromForm(r)
		if msg != "" {
			return &formError{msg}
		}
		return h.api.CreateChild(r.Context(), token, in)
	})
}

// UpdateChild updates a child record.
// POST /school/children/{id}
func (h *SchoolHandler) UpdateChild(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, RouteSchoolChildren, "update child", "Child updated", func(token string) error {
		in, msg := childInputFromForm(r)
		if msg != "" {
			return &formError{msg}
		}
		return h.api.UpdateChild(r.Context(), token, id, in)
	})
}

// DeleteChild removes a child record.
// POST /school/children/{id}/delete
func (h *SchoolHandler) DeleteChild(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, RouteSchoolChildren, "delete child", "Child removed", func(token string) error {
		return h.api.DeleteChild(r.Context(), token, id)
	})
}

// --- Parents ---

// Parents renders the parent accounts list.
func (h *SchoolHandler) Parents(w http.ResponseWriter, r *http.Request) {
	renderList(h, w, r, "Parents", RouteSchoolParents, "parents", "Failed to load parents",
		func(token string) ([]model.Parent, error) { return h.api.ListParents(r.Context(), token) })
}

func parentInputFromForm(r *http.Request, requirePassword bool) (api.ParentInput, string) {
	in := api.ParentInput{
		Name:             strings.TrimSpace(r.FormValue("name")),
		Email:            strings.TrimSpace(r.FormValue("email")),
		Password:         r.FormValue("password"),
		Phone:            strings.TrimSpace(r.FormValue("phone")),
		Address:          strings.TrimSpace(r.FormValue("address")),
		EmergencyContact: strings.TrimSpace(r.FormValue("emergency_contact")),
	}
	if in.Name == "" || in.Email == "" || in.Phone == "" || in.Address == "" {
		return api.ParentInput{}, "Name, email, phone and address are required"
	}
	if requirePassword && in.Password == "" {
		return api.ParentInput{}, "Password is required"
	}
	if active := r.FormValue("is_active"); active != "" {
		v := active == "true" || active == "on"
		in.IsActive = &v
	}
	return in, ""
}

// CreateParent adds a parent account.
// POST /school/parents
func (h *SchoolHandler) CreateParent(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, RouteSchoolParents, "create parent", "Parent created", func(token string) error {
		in, msg := parentInputFromForm(r, true)
		if msg != "" {
			return &formError{msg}
		}
		return h.api.CreateParent(r.Context(), token, in)
	})
}

// UpdateParent updates a parent account.
// POST /school/parents/{id}
func (h *SchoolHandler) UpdateParent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, RouteSchoolParents, "update parent", "Parent updated", func(token string) error {
		in, msg := parentInputFromForm(r, false)
		if msg != "" {
			return &formError{msg}
		}
		return h.api.UpdateParent(r.Context(), token, id, in)
	})
}

// DeleteParent removes a parent account.
// POST /school/parents/{id}/delete
func (h *SchoolHandler) DeleteParent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, RouteSchoolParents, "delete parent", "Parent removed", func(token string) error {
		return h.api.DeleteParent(r.Context(), token, id)
	})
}

// --- Profile ---

// Profile renders the administrator's own account screen.
func (h *SchoolHandler) Profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.api.Profile(r.Context(), middleware.AccessToken(r))

	td := render.TemplateData{Title: "Profile", ActivePath: RouteSchoolProfile, User: middleware.GetUser(r)}
	if err != nil {
		slog.Error("failed to load profile", "error", err)
		td.Error = upstreamMessage(err, "Failed to load profile")
	} else {
		td.Data = profile
	}
	if err := h.renderer.Render(w, r, "admin/profile", td); err != nil {
		logAndInternalError(w, "failed to render profile", "error", err)
	}
}

// UpdateProfile updates the administrator's own account record.
// POST /school/profile
func (h *SchoolHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, RouteSchoolProfile, "update profile", "Profile updated", func(token string) error {
		in := api.ProfileInput{
			Name:    strings.TrimSpace(r.FormValue("name")),
			Email:   strings.TrimSpace(r.FormValue("email")),
			Phone:   strings.TrimSpace(r.FormValue("phone")),
			Address: strings.TrimSpace(r.FormValue("address")),
		}
		if in.Name == "" || in.Email == "" {
			return &formError{"Name and email are required"}
		}
		return h.api.UpdateProfile(r.Context(), token, in)
	})
}

// ChangePassword rotates the administrator's password.
// POST /school/profile/password
func (h *SchoolHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, RouteSchoolProfile, "change password", "Password changed", func(token string) error {
		in := api.ChangePasswordInput{
			CurrentPassword: r.FormValue("current_password"),
			NewPassword:     r.FormValue("new_password"),
		}
		if in.CurrentPassword == "" || in.NewPassword == "" {
			return &formError{"Current and new passwords are required"}
		}
		if in.NewPassword != r.FormValue("confirm_password") {
			return &formError{"New passwords do not match"}
		}
		return h.api.ChangePassword(r.Context(), token, in)
	})
}

// formError is a validation failure detected before the platform is
// called. It renders as a flash message on the originating screen.
type formError struct {
	msg string
}

func (e *formError) Error() string { return e.msg }

// mutate wraps a fleet mutation: parse the form, run the operation,
// invalidate the school's cached stats and flash the outcome. An upstream
// 401 forces re-authentication; any other failure keeps the operator on
// the screen with the platform's message.
func (h *SchoolHandler) mutate(w http.ResponseWriter, r *http.Request, route, op, success string, fn func(token string) error) {
	if !parseFormOrRedirect(w, r, h.renderer, route) {
		return
	}

	if err := fn(middleware.AccessToken(r)); err != nil {
		var fe *formError
		if errors.As(err, &fe) {
			flashError(w, r, h.renderer, route, fe.msg)
			return
		}
		if api.IsUnauthorized(err) {
			slog.Warn("upstream rejected access token", "op", op)
			h.audits.SessionInvalidated(r, middleware.GetUser(r))
			middleware.ForceReauth(w, r)
			return
		}
		slog.Error("failed to "+op, "error", err)
		flashError(w, r, h.renderer, route, upstreamMessage(err, "Failed to "+op))
		return
	}

	if user := middleware.GetUser(r); user != nil && user.SchoolID != "" {
		h.cache.InvalidateSchool(r.Context(), user.SchoolID)
	}
	h.cache.InvalidatePlatform(r.Context())
	flashSuccess(w, r, h.renderer, route, success)
}
