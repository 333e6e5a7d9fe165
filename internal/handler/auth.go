// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"

	"github.com/schooltransit/busadmin/internal/api"
	"github.com/schooltransit/busadmin/internal/audit"
	"github.com/schooltransit/busadmin/internal/guard"
	"github.com/schooltransit/busadmin/internal/middleware"
	"github.com/schooltransit/busadmin/internal/model"
	"github.com/schooltransit/busadmin/internal/render"
)

// AuthHandler handles the landing page and the sign-in, sign-up and
// sign-out flows for both administrator roles.
type AuthHandler struct {
	api             *api.Client
	renderer        *render.Renderer
	sessionManager  *scs.SessionManager
	audits          *audit.Service
	loginProtection *middleware.LoginProtection
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(client *api.Client, renderer *render.Renderer, sm *scs.SessionManager, audits *audit.Service, lp *middleware.LoginProtection) *AuthHandler {
	return &AuthHandler{
		api:             client,
		renderer:        renderer,
		sessionManager:  sm,
		audits:          audits,
		loginProtection: lp,
	}
}

// Landing renders the entry page with the sign-in and sign-up forms.
// Already-authenticated users are forwarded to their role's dashboard
// instead of seeing the forms again.
func (h *AuthHandler) Landing(w http.ResponseWriter, r *http.Request) {
	decision := guard.NewLanding().Evaluate(middleware.GetState(r))
	if decision.Phase == guard.PhaseRedirecting && decision.Location != "" {
		http.Redirect(w, r, decision.Location, http.StatusSeeOther)
		return
	}

	if err := h.renderer.Render(w, r, "auth/landing", render.TemplateData{
		Title: "Sign In",
	}); err != nil {
		logAndInternalError(w, "failed to render landing page", "error", err)
	}
}

// SignInSuper handles the super-administrator sign-in form.
// POST /sign-in/super
func (h *AuthHandler) SignInSuper(w http.ResponseWriter, r *http.Request) {
	h.signIn(w, r, model.RoleSuperAdmin)
}

// SignInSchool handles the school-administrator sign-in form.
// POST /sign-in/school
func (h *AuthHandler) SignInSchool(w http.ResponseWriter, r *http.Request) {
	h.signIn(w, r, model.RoleSchoolAdmin)
}

func (h *AuthHandler) signIn(w http.ResponseWriter, r *http.Request, role string) {
	if !parseFormOrRedirect(w, r, h.renderer, RouteRoot) {
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	if email == "" || password == "" {
		flashError(w, r, h.renderer, RouteRoot, "Email and password are required")
		return
	}

	if h.loginProtection != nil {
		if locked, remaining := h.loginProtection.IsAccountLocked(email); locked {
			h.audits.AccountLocked(r, email, remaining)
			flashError(w, r, h.renderer, RouteRoot,
				"Account temporarily locked. Try again in "+formatDuration(remaining))
			return
		}
	}

	creds := api.Credentials{Email: email, Password: password}
	var (
		sess *api.Session
		err  error
	)
	if role == model.RoleSuperAdmin {
		sess, err = h.api.LoginSuperAdmin(r.Context(), creds)
	} else {
		sess, err = h.api.LoginSchoolAdmin(r.Context(), creds)
	}
	if err != nil {
		h.rejectSignIn(w, r, email, err)
		return
	}

	if h.loginProtection != nil {
		h.loginProtection.RecordSuccessfulLogin(email)
	}

	// Regenerate the session ID to prevent session fixation.
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		logAndInternalError(w, "session renewal error", "error", err)
		return
	}

	store := middleware.GetStore(r)
	if err := store.Login(r.Context(), sess.User, sess.AccessToken, sess.RefreshToken); err != nil {
		logAndInternalError(w, "failed to persist session", "error", err)
		return
	}

	slog.Info("user signed in", "email", sess.User.Email, "role", sess.User.Role)
	h.audits.SignInSucceeded(r, sess.User)

	h.renderer.SetFlash(r, "Welcome back, "+sess.User.Name, "success")
	http.Redirect(w, r, model.DashboardPath(sess.User.Role), http.StatusSeeOther)
}

// rejectSignIn surfaces a failed credential exchange. The platform's own
// message ("Invalid credentials" and friends) is shown verbatim; the
// session stays untouched so an already-signed-in tab is not disturbed by
// a failed attempt in another form.
func (h *AuthHandler) rejectSignIn(w http.ResponseWriter, r *http.Request, email string, err error) {
	slog.Warn("sign-in rejected", "email", email, "status", api.StatusOf(err))
	h.audits.SignInRejected(r, email)

	if h.loginProtection != nil {
		if locked, duration := h.loginProtection.RecordFailedAttempt(email); locked {
			h.audits.AccountLocked(r, email, duration)
			flashError(w, r, h.renderer, RouteRoot,
				"Too many failed attempts. Account locked for "+formatDuration(duration))
			return
		}
		remaining := h.loginProtection.GetRemainingAttempts(email)
		if remaining <= 3 && remaining > 0 {
			flashError(w, r, h.renderer, RouteRoot,
				upstreamMessage(err, "Sign in failed")+". "+formatAttempts(remaining))
			return
		}
	}
	flashError(w, r, h.renderer, RouteRoot, upstreamMessage(err, "Sign in failed"))
}

func formatAttempts(n int) string {
	if n == 1 {
		return "1 attempt remaining"
	}
	return fmt.Sprintf("%d attempts remaining", n)
}

// SignUp handles super-administrator self-registration. The shared
// registration secret is forwarded to the platform, which validates it.
// POST /sign-up
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrRedirect(w, r, h.renderer, RouteRoot) {
		return
	}

	req := api.RegisterRequest{
		Name:     strings.TrimSpace(r.FormValue("name")),
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
		Secret:   r.FormValue("secret"),
	}
	if req.Name == "" || req.Email == "" || req.Password == "" || req.Secret == "" {
		flashError(w, r, h.renderer, RouteRoot, "All fields are required")
		return
	}

	sess, err := h.api.RegisterSuperAdmin(r.Context(), req)
	if err != nil {
		slog.Warn("registration rejected", "email", req.Email, "status", api.StatusOf(err))
		flashError(w, r, h.renderer, RouteRoot, upstreamMessage(err, "Registration failed"))
		return
	}

	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		logAndInternalError(w, "session renewal error", "error", err)
		return
	}
	store := middleware.GetStore(r)
	if err := store.Login(r.Context(), sess.User, sess.AccessToken, sess.RefreshToken); err != nil {
		logAndInternalError(w, "failed to persist session", "error", err)
		return
	}

	slog.Info("super admin registered", "email", sess.User.Email)
	h.audits.Registered(r, sess.User)

	h.renderer.SetFlash(r, "Account created", "success")
	http.Redirect(w, r, model.DashboardPath(sess.User.Role), http.StatusSeeOther)
}

// SignOut clears the session and returns to the landing page.
// POST /sign-out
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	store := middleware.GetStore(r)
	user := middleware.GetUser(r)

	if user != nil {
		h.audits.SignedOut(r, user)
	}
	if err := store.Logout(r.Context()); err != nil {
		slog.Error("failed to clear session", "error", err)
	}
	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		slog.Error("session destroy error", "error", err)
	}

	slog.Info("user signed out")
	http.Redirect(w, r, RouteRoot, http.StatusSeeOther)
}
