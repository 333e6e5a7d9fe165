// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/schooltransit/busadmin/internal/api"
	"github.com/schooltransit/busadmin/internal/audit"
	"github.com/schooltransit/busadmin/internal/cache"
	"github.com/schooltransit/busadmin/internal/middleware"
	"github.com/schooltransit/busadmin/internal/model"
	"github.com/schooltransit/busadmin/internal/render"
	"github.com/schooltransit/busadmin/internal/store"
)

// SuperHandler handles the super-administrator screens: the platform
// dashboard plus school and school-administrator management.
type SuperHandler struct {
	api      *api.Client
	renderer *render.Renderer
	cache    *cache.Manager
	audits   *audit.Service
}

// NewSuperHandler creates a new SuperHandler.
func NewSuperHandler(client *api.Client, renderer *render.Renderer, cm *cache.Manager, audits *audit.Service) *SuperHandler {
	return &SuperHandler{
		api:      client,
		renderer: renderer,
		cache:    cm,
		audits:   audits,
	}
}

// dashboardData is what the platform dashboard template renders.
type dashboardData struct {
	Stats        *model.PlatformStats
	Schools      []model.School
	SchoolAdmins []model.SchoolAdmin
	RecentEvents []store.AuditEvent
}

// Dashboard renders the platform overview. The three fetches run in
// parallel; any failure renders the page with an error panel and a retry
// action instead of partial numbers. Read failures never tear down the
// session.
func (h *SuperHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	token := middleware.AccessToken(r)

	var data dashboardData
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		stats, err := h.cache.PlatformStats(ctx, func() (*model.PlatformStats, error) {
			return h.api.PlatformStats(ctx, token)
		})
		data.Stats = stats
		return err
	})
	g.Go(func() error {
		schools, err := h.api.ListSchools(ctx, token)
		data.Schools = schools
		return err
	})
	g.Go(func() error {
		admins, err := h.api.ListSchoolAdmins(ctx, token)
		data.SchoolAdmins = admins
		return err
	})

	td := render.TemplateData{Title: "Platform Dashboard", ActivePath: RouteDashboard, User: middleware.GetUser(r)}
	if err := g.Wait(); err != nil {
		slog.Error("failed to load platform dashboard", "error", err)
		td.Error = upstreamMessage(err, "Failed to load dashboard data")
	} else {
		// Local audit trail; best effort, never blocks the page.
		events, err := h.audits.Recent(r.Context(), 10)
		if err != nil {
			slog.Error("failed to load recent audit events", "error", err)
		}
		data.RecentEvents = events
		td.Data = data
	}
	if err := h.renderer.Render(w, r, "admin/dashboard", td); err != nil {
		logAndInternalError(w, "failed to render dashboard", "error", err)
	}
}

// Schools renders the school management screen.
func (h *SuperHandler) Schools(w http.ResponseWriter, r *http.Request) {
	schools, err := h.api.ListSchools(r.Context(), middleware.AccessToken(r))

	td := render.TemplateData{Title: "Schools", ActivePath: RouteSchools, User: middleware.GetUser(r)}
	if err != nil {
		slog.Error("failed to list schools", "error", err)
		td.Error = upstreamMessage(err, "Failed to load schools")
	} else {
		td.Data = schools
	}
	if err := h.renderer.Render(w, r, "admin/schools", td); err != nil {
		logAndInternalError(w, "failed to render schools", "error", err)
	}
}

// CreateSchool provisions a new school.
// POST /schools
func (h *SuperHandler) CreateSchool(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, RouteSchools) {
		return
	}

	in := api.SchoolInput{
		Name:    strings.TrimSpace(r.FormValue("name")),
		Address: strings.TrimSpace(r.FormValue("address")),
		Contact: strings.TrimSpace(r.FormValue("contact")),
	}
	if in.Name == "" || in.Address == "" || in.Contact == "" {
		flashError(w, r, h.renderer, RouteSchools, "Name, address and contact are required")
		return
	}

	if err := h.api.CreateSchool(r.Context(), middleware.AccessToken(r), in); err != nil {
		h.writeFailed(w, r, RouteSchools, "create school", err)
		return
	}

	h.cache.InvalidatePlatform(r.Context())
	flashSuccess(w, r, h.renderer, RouteSchools, "School created")
}

// UpdateSchool updates a school record.
// POST /schools/{id}
func (h *SuperHandler) UpdateSchool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !parseFormOrRedirect(w, r, h.renderer, RouteSchools) {
		return
	}

	in := api.SchoolInput{
		Name:    strings.TrimSpace(r.FormValue("name")),
		Address: strings.TrimSpace(r.FormValue("address")),
		Contact: strings.TrimSpace(r.FormValue("contact")),
	}
	if err := h.api.UpdateSchool(r.Context(), middleware.AccessToken(r), id, in); err != nil {
		h.writeFailed(w, r, RouteSchools, "update school", err)
		return
	}

	h.cache.InvalidatePlatform(r.Context())
	h.cache.InvalidateSchool(r.Context(), id)
	flashSuccess(w, r, h.renderer, RouteSchools, "School updated")
}

// DeleteSchool removes a school.
// POST /schools/{id}/delete
func (h *SuperHandler) DeleteSchool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.api.DeleteSchool(r.Context(), middleware.AccessToken(r), id); err != nil {
		h.writeFailed(w, r, RouteSchools, "delete school", err)
		return
	}

	h.cache.InvalidatePlatform(r.Context())
	h.cache.InvalidateSchool(r.Context(), id)
	flashSuccess(w, r, h.renderer, RouteSchools, "School deleted")
}

// SchoolAdmins renders the school-administrator management screen. The
// school list is fetched alongside so the create form can offer a school
// picker.
func (h *SuperHandler) SchoolAdmins(w http.ResponseWriter, r *http.Request) {
	token := middleware.AccessToken(r)

	var (
		admins  []model.SchoolAdmin
		schools []model.School
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		admins, err = h.api.ListSchoolAdmins(ctx, token)
		return err
	})
	g.Go(func() error {
		var err error
		schools, err = h.api.ListSchools(ctx, token)
		return err
	})

	td := render.TemplateData{Title: "School Administrators", ActivePath: RouteSchoolAdmins, User: middleware.GetUser(r)}
	if err := g.Wait(); err != nil {
		slog.Error("failed to list school admins", "error", err)
		td.Error = upstreamMessage(err, "Failed to load school administrators")
	} else {
		td.Data = struct {
			Admins  []model.SchoolAdmin
			Schools []model.School
		}{admins, schools}
	}
	if err := h.renderer.Render(w, r, "admin/school_admins", td); err != nil {
		logAndInternalError(w, "failed to render school admins", "error", err)
	}
}

// CreateSchoolAdmin provisions a new school-administrator account.
// POST /school-admins
func (h *SuperHandler) CreateSchoolAdmin(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, RouteSchoolAdmins) {
		return
	}

	in := api.SchoolAdminInput{
		Name:     strings.TrimSpace(r.FormValue("name")),
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
		SchoolID: r.FormValue("school_id"),
		Phone:    strings.TrimSpace(r.FormValue("phone")),
		Address:  strings.TrimSpace(r.FormValue("address")),
	}
	if in.Name == "" || in.Email == "" || in.Password == "" || in.SchoolID == "" {
		flashError(w, r, h.renderer, RouteSchoolAdmins, "Name, email, password and school are required")
		return
	}

	if err := h.api.CreateSchoolAdmin(r.Context(), middleware.AccessToken(r), in); err != nil {
		h.writeFailed(w, r, RouteSchoolAdmins, "create school admin", err)
		return
	}

	h.cache.InvalidatePlatform(r.Context())
	flashSuccess(w, r, h.renderer, RouteSchoolAdmins, "School administrator created")
}

// UpdateSchoolAdmin updates a school-administrator account.
// POST /school-admins/{id}
func (h *SuperHandler) UpdateSchoolAdmin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !parseFormOrRedirect(w, r, h.renderer, RouteSchoolAdmins) {
		return
	}

	in := api.SchoolAdminInput{
		Name:     strings.TrimSpace(r.FormValue("name")),
		Email:    strings.TrimSpace(r.FormValue("email")),
		SchoolID: r.FormValue("school_id"),
		Phone:    strings.TrimSpace(r.FormValue("phone")),
		Address:  strings.TrimSpace(r.FormValue("address")),
	}
	if err := h.api.UpdateSchoolAdmin(r.Context(), middleware.AccessToken(r), id, in); err != nil {
		h.writeFailed(w, r, RouteSchoolAdmins, "update school admin", err)
		return
	}

	h.cache.InvalidatePlatform(r.Context())
	flashSuccess(w, r, h.renderer, RouteSchoolAdmins, "School administrator updated")
}

// DeleteSchoolAdmin removes a school-administrator account.
// POST /school-admins/{id}/delete
func (h *SuperHandler) DeleteSchoolAdmin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.api.DeleteSchoolAdmin(r.Context(), middleware.AccessToken(r), id); err != nil {
		h.writeFailed(w, r, RouteSchoolAdmins, "delete school admin", err)
		return
	}

	h.cache.InvalidatePlatform(r.Context())
	flashSuccess(w, r, h.renderer, RouteSchoolAdmins, "School administrator deleted")
}

// writeFailed handles a failed mutation. A stale access token means the
// session is no longer valid upstream, so the operator is signed out and
// sent back to the entry page; everything else stays on the screen with
// the platform's message.
func (h *SuperHandler) writeFailed(w http.ResponseWriter, r *http.Request, route, op string, err error) {
	if api.IsUnauthorized(err) {
		slog.Warn("upstream rejected access token", "op", op)
		h.audits.SessionInvalidated(r, middleware.GetUser(r))
		middleware.ForceReauth(w, r)
		return
	}
	slog.Error("failed to "+op, "error", err)
	flashError(w, r, h.renderer, route, upstreamMessage(err, "Failed to "+op))
}
