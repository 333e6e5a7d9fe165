// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/scs/v2"

	"github.com/schooltransit/busadmin/internal/model"
	"github.com/schooltransit/busadmin/internal/session"
)

type staticVerifier struct {
	token string
	user  *model.User
}

func (v *staticVerifier) Me(_ context.Context, token string) (*model.User, error) {
	if token != v.token {
		return nil, errors.New("Token expired")
	}
	u := *v.user
	return &u, nil
}

// testStack builds LoadAndSave → WithSessionStore → RequireRole → ok.
func testStack(t *testing.T, verifier session.Verifier, role string) (http.Handler, *scs.SessionManager, *session.Registry) {
	t.Helper()

	sm := scs.New()
	registry := session.NewRegistry(session.NewSCSPersistence(sm), verifier)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("content"))
	})

	var h http.Handler = ok
	h = RequireRole(role)(h)
	h = WithSessionStore(registry, sm)(h)
	return sm.LoadAndSave(h), sm, registry
}

func TestRequireRoleAnonymousRedirectsToEntry(t *testing.T) {
	h, _, _ := testStack(t, &staticVerifier{token: "t1", user: &model.User{Role: model.RoleSuperAdmin}}, model.RoleSuperAdmin)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status = %d; want 303", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q; want /", loc)
	}
}

func TestRequireRoleAuthorizedAndCrossRole(t *testing.T) {
	user := &model.User{ID: "2", Role: model.RoleSchoolAdmin, SchoolID: "s1"}
	verifier := &staticVerifier{token: "t1", user: user}

	sm := scs.New()
	registry := session.NewRegistry(session.NewSCSPersistence(sm), verifier)

	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := GetUser(r); got == nil || got.ID != user.ID {
			t.Errorf("context user = %+v", got)
		}
		if AccessToken(r) != "t1" {
			t.Errorf("AccessToken = %q", AccessToken(r))
		}
		w.WriteHeader(http.StatusOK)
	})
	protected := sm.LoadAndSave(WithSessionStore(registry, sm)(RequireRole(model.RoleSchoolAdmin)(h)))

	// Establish the session the way the sign-in handler does.
	login := sm.LoadAndSave(WithSessionStore(registry, sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := GetStore(r).Login(r.Context(), user, "t1", "r1"); err != nil {
			t.Fatalf("Login: %v", err)
		}
	})))

	rr := httptest.NewRecorder()
	login.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sign-in", nil))
	cookies := rr.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("no session cookie issued")
	}

	req := httptest.NewRequest(http.MethodGet, "/school/dashboard", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr = httptest.NewRecorder()
	protected.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("authorized request status = %d; body %q", rr.Code, rr.Body.String())
	}

	// The same session hitting the super-admin group goes to its own
	// dashboard, not the entry screen.
	wrong := sm.LoadAndSave(WithSessionStore(registry, sm)(RequireRole(model.RoleSuperAdmin)(h)))
	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr = httptest.NewRecorder()
	wrong.ServeHTTP(rr, req)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("cross-role status = %d; want 303", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != model.DashboardPath(model.RoleSchoolAdmin) {
		t.Errorf("Location = %q; want school dashboard", loc)
	}
}

func TestRequireRoleRejectedTokenFailsClosed(t *testing.T) {
	verifier := &staticVerifier{token: "valid", user: &model.User{Role: model.RoleSuperAdmin}}
	sm := scs.New()
	registry := session.NewRegistry(session.NewSCSPersistence(sm), verifier)

	// Seed a session holding a token the platform will reject.
	seed := sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := session.NewSCSPersistence(sm)
		_ = p.Save(r.Context(), session.Record{
			User:          &model.User{ID: "1", Role: model.RoleSuperAdmin},
			Authenticated: true,
			AccessToken:   "stale",
		})
	}))
	rr := httptest.NewRecorder()
	seed.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rr.Result().Cookies()

	protected := sm.LoadAndSave(WithSessionStore(registry, sm)(RequireRole(model.RoleSuperAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with a rejected token")
	}))))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr = httptest.NewRecorder()
	protected.ServeHTTP(rr, req)

	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status = %d; want 303", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q; want /", loc)
	}
}

func TestForceReauth(t *testing.T) {
	sm := scs.New()
	registry := session.NewRegistry(session.NewSCSPersistence(sm),
		&staticVerifier{token: "t1", user: &model.User{Role: model.RoleSuperAdmin}})

	h := sm.LoadAndSave(WithSessionStore(registry, sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := GetStore(r)
		_ = store.Login(r.Context(), &model.User{ID: "1", Role: model.RoleSuperAdmin}, "t1", "")
		ForceReauth(w, r)

		if st := store.Snapshot(r.Context()); st.Authenticated || st.AccessToken != "" {
			t.Errorf("session survived forced re-auth: %+v", st)
		}
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/" {
		t.Errorf("status = %d, location = %q", rr.Code, rr.Header().Get("Location"))
	}
}
