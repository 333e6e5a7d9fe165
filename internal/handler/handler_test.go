// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"

	"github.com/schooltransit/busadmin/internal/api"
	"github.com/schooltransit/busadmin/internal/audit"
	"github.com/schooltransit/busadmin/internal/cache"
	"github.com/schooltransit/busadmin/internal/middleware"
	"github.com/schooltransit/busadmin/internal/model"
	"github.com/schooltransit/busadmin/internal/render"
	"github.com/schooltransit/busadmin/internal/session"
	"github.com/schooltransit/busadmin/internal/testutil"
)

const (
	testPassword = "hunter2-hunter2"
	testSecret   = "registration-secret"
	superToken   = "token-super"
	schoolToken  = "token-school"
)

// fakeUpstream stands in for the transportation platform API. It issues
// fixed tokens on login and keeps just enough mutable state for the CRUD
// round trips the handlers perform.
type fakeUpstream struct {
	srv *httptest.Server

	superUser  model.User
	schoolUser model.User

	mu      sync.Mutex
	tokens  map[string]model.User
	schools []model.School
	buses   []model.Bus
	nextID  int

	statsCalls atomic.Int32
	mutations  atomic.Int32
	failReads  atomic.Bool // data reads return 500
	fail401    atomic.Bool // mutations return 401
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()

	up := &fakeUpstream{
		superUser:  model.User{ID: "u1", Name: "Root", Email: "root@transit.example", Role: model.RoleSuperAdmin},
		schoolUser: model.User{ID: "u2", Name: "Head", Email: "head@school.example", Role: model.RoleSchoolAdmin, SchoolID: "s1"},
		schools: []model.School{
			{ID: "s1", Name: "Northside Elementary", Address: "1 Oak St", Contact: "555-0101"},
		},
		nextID: 100,
	}
	up.tokens = map[string]model.User{
		superToken:  up.superUser,
		schoolToken: up.schoolUser,
	}

	r := chi.NewRouter()
	r.Post("/super-admin/login", up.login(up.superUser, superToken))
	r.Post("/school-admin/login", up.login(up.schoolUser, schoolToken))
	r.Post("/super-admin/register", up.register)
	r.Get("/auth/me", up.me)

	r.Get("/super-admin/stats", up.platformStats)
	r.Get("/super-admin/schools", up.listSchools)
	r.Get("/super-admin/school-admins", up.listSchoolAdmins)
	r.Post("/super-admin/create-school", up.createSchool)
	r.Put("/super-admin/schools/{id}", up.mutation)
	r.Delete("/super-admin/schools/{id}", up.deleteSchool)
	r.Post("/create-school-admin", up.mutation)
	r.Put("/school-admins/{id}", up.mutation)
	r.Delete("/school-admins/{id}", up.mutation)

	r.Get("/school-admin/stats", up.schoolStats)
	r.Get("/school-admin/profile", up.profile)
	r.Put("/school-admin/profile", up.mutation)
	r.Put("/school-admin/change-password", up.changePassword)

	r.Get("/bus", up.listBuses)
	r.Post("/bus", up.createBus)
	r.Put("/bus/{id}", up.mutation)
	r.Delete("/bus/{id}", up.deleteBus)
	for _, res := range []string{"driver", "route", "child", "parent"} {
		r.Get("/"+res, up.emptyList)
		r.Post("/"+res, up.mutation)
		r.Put("/"+res+"/{id}", up.mutation)
		r.Delete("/"+res+"/{id}", up.mutation)
	}

	up.srv = httptest.NewServer(r)
	t.Cleanup(up.srv.Close)
	return up
}

func (up *fakeUpstream) login(user model.User, token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds api.Credentials
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Email != user.Email || creds.Password != testPassword {
			writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user": user, "access_token": token, "refresh_token": "refresh-" + token,
		})
	}
}

func (up *fakeUpstream) register(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Secret != testSecret {
		writeMessage(w, http.StatusForbidden, "Invalid registration secret")
		return
	}
	user := model.User{ID: "u9", Name: req.Name, Email: req.Email, Role: model.RoleSuperAdmin}
	up.mu.Lock()
	up.tokens["token-registered"] = user
	up.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{
		"user": user, "access_token": "token-registered", "refresh_token": "",
	})
}

func (up *fakeUpstream) me(w http.ResponseWriter, r *http.Request) {
	user, ok := up.authed(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Token expired")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (up *fakeUpstream) authed(r *http.Request) (model.User, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	up.mu.Lock()
	defer up.mu.Unlock()
	user, ok := up.tokens[token]
	return user, ok
}

func (up *fakeUpstream) requireRead(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := up.authed(r); !ok {
		writeMessage(w, http.StatusUnauthorized, "Token expired")
		return false
	}
	if up.failReads.Load() {
		writeMessage(w, http.StatusInternalServerError, "Upstream unavailable")
		return false
	}
	return true
}

func (up *fakeUpstream) platformStats(w http.ResponseWriter, r *http.Request) {
	if !up.requireRead(w, r) {
		return
	}
	up.statsCalls.Add(1)
	up.mu.Lock()
	n := len(up.schools)
	up.mu.Unlock()
	writeData(w, model.PlatformStats{TotalSchools: n, TotalSchoolAdmins: 1, TotalBuses: 4})
}

func (up *fakeUpstream) listSchools(w http.ResponseWriter, r *http.Request) {
	if !up.requireRead(w, r) {
		return
	}
	up.mu.Lock()
	defer up.mu.Unlock()
	writeData(w, up.schools)
}

func (up *fakeUpstream) listSchoolAdmins(w http.ResponseWriter, r *http.Request) {
	if !up.requireRead(w, r) {
		return
	}
	writeData(w, []model.SchoolAdmin{
		{ID: "a1", Name: "Head", Email: "head@school.example", SchoolID: "s1"},
	})
}

func (up *fakeUpstream) mutation(w http.ResponseWriter, r *http.Request) {
	if up.fail401.Load() {
		writeMessage(w, http.StatusUnauthorized, "Token expired")
		return
	}
	if _, ok := up.authed(r); !ok {
		writeMessage(w, http.StatusUnauthorized, "Token expired")
		return
	}
	up.mutations.Add(1)
	writeData(w, nil)
}

func (up *fakeUpstream) createSchool(w http.ResponseWriter, r *http.Request) {
	if up.fail401.Load() {
		writeMessage(w, http.StatusUnauthorized, "Token expired")
		return
	}
	var in api.SchoolInput
	_ = json.NewDecoder(r.Body).Decode(&in)
	up.mu.Lock()
	up.nextID++
	up.schools = append(up.schools, model.School{ID: "s" + strconv.Itoa(up.nextID), Name: in.Name, Address: in.Address, Contact: in.Contact})
	up.mu.Unlock()
	up.mutations.Add(1)
	writeData(w, nil)
}

func (up *fakeUpstream) deleteSchool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	up.mu.Lock()
	kept := up.schools[:0]
	for _, s := range up.schools {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	up.schools = kept
	up.mu.Unlock()
	up.mutations.Add(1)
	writeData(w, nil)
}

func (up *fakeUpstream) schoolStats(w http.ResponseWriter, r *http.Request) {
	if !up.requireRead(w, r) {
		return
	}
	up.statsCalls.Add(1)
	writeData(w, model.SchoolStats{
		School:     &model.School{ID: "s1", Name: "Northside Elementary"},
		TotalBuses: 4, ActiveBuses: 3, InactiveBuses: 1,
		TotalChildren: 120, ActiveChildren: 118, InactiveChildren: 2,
	})
}

func (up *fakeUpstream) profile(w http.ResponseWriter, r *http.Request) {
	if !up.requireRead(w, r) {
		return
	}
	writeData(w, model.Profile{ID: "u2", Name: "Head", Email: "head@school.example", SchoolID: "s1"})
}

func (up *fakeUpstream) changePassword(w http.ResponseWriter, r *http.Request) {
	var in api.ChangePasswordInput
	_ = json.NewDecoder(r.Body).Decode(&in)
	if in.CurrentPassword != testPassword {
		writeMessage(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	up.mutations.Add(1)
	writeData(w, nil)
}

func (up *fakeUpstream) listBuses(w http.ResponseWriter, r *http.Request) {
	if !up.requireRead(w, r) {
		return
	}
	up.mu.Lock()
	defer up.mu.Unlock()
	writeData(w, up.buses)
}

func (up *fakeUpstream) createBus(w http.ResponseWriter, r *http.Request) {
	if up.fail401.Load() {
		writeMessage(w, http.StatusUnauthorized, "Token expired")
		return
	}
	var in api.BusInput
	_ = json.NewDecoder(r.Body).Decode(&in)
	up.mu.Lock()
	up.nextID++
	up.buses = append(up.buses, model.Bus{
		ID: "b" + strconv.Itoa(up.nextID), BusNumber: in.BusNumber,
		Capacity: in.Capacity, PlateNumber: in.PlateNumber,
	})
	up.mu.Unlock()
	up.mutations.Add(1)
	writeData(w, nil)
}

func (up *fakeUpstream) deleteBus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	up.mu.Lock()
	kept := up.buses[:0]
	for _, b := range up.buses {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	up.buses = kept
	up.mu.Unlock()
	up.mutations.Add(1)
	writeData(w, nil)
}

func (up *fakeUpstream) emptyList(w http.ResponseWriter, r *http.Request) {
	if !up.requireRead(w, r) {
		return
	}
	writeData(w, []struct{}{})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"success": false, "message": msg})
}

// testTemplates is the minimal template tree the handlers render into.
func testTemplates() fstest.MapFS {
	page := func(body string) *fstest.MapFile {
		return &fstest.MapFile{Data: []byte(`{{define "content"}}{{template "error_panel" .}}` + body + `{{end}}`)}
	}
	return fstest.MapFS{
		"layouts/base.html": {Data: []byte(
			`{{define "base"}}<html><body>{{template "flash" .}}{{block "content" .}}{{end}}</body></html>{{end}}`)},
		"layouts/admin.html": {Data: []byte(
			`{{define "nav"}}{{if .User}}<nav>{{roleLabel .User.Role}}</nav>{{end}}{{end}}`)},
		"partials/flash.html": {Data: []byte(
			`{{define "flash"}}{{if .Flash}}<div class="flash {{.FlashType}}">{{.Flash}}</div>{{end}}{{end}}`)},
		"partials/error_panel.html": {Data: []byte(
			`{{define "error_panel"}}{{if .Error}}<div class="error-panel">{{.Error}}<form method="get" action="{{.ActivePath}}"><button>Retry</button></form></div>{{end}}{{end}}`)},
		"auth/landing.html": {Data: []byte(
			`{{define "content"}}<h1>{{.Title}}</h1><form method="post" action="/sign-in/super"></form>{{end}}`)},
		"admin/dashboard.html":       page(`{{with .Data}}<span id="schools">{{.Stats.TotalSchools}}</span><ul>{{range .RecentEvents}}<li class="event">{{.Message}}</li>{{end}}</ul>{{end}}`),
		"admin/schools.html":         page(`<ul>{{range .Data}}<li>{{.Name}}</li>{{end}}</ul>`),
		"admin/school_admins.html":   page(`<ul>{{with .Data}}{{range .Admins}}<li>{{.Name}}</li>{{end}}{{end}}</ul>`),
		"admin/school_dashboard.html": page(`{{with .Data}}<span id="buses">{{.TotalBuses}}</span>{{end}}`),
		"admin/buses.html":           page(`<ul>{{range .Data}}<li>{{.BusNumber}}</li>{{end}}</ul>`),
		"admin/drivers.html":         page(`<ul>{{range .Data}}<li>{{.Name}}</li>{{end}}</ul>`),
		"admin/routes.html":          page(`<ul>{{range .Data}}<li>{{.Name}}</li>{{end}}</ul>`),
		"admin/children.html":        page(`<ul>{{range .Data}}<li>{{.Name}}</li>{{end}}</ul>`),
		"admin/parents.html":         page(`<ul>{{range .Data}}<li>{{.Name}}</li>{{end}}</ul>`),
		"admin/profile.html":         page(`{{with .Data}}<span id="email">{{.Email}}</span>{{end}}`),
	}
}

// testApp wires the full handler stack against the fake upstream, the
// way cmd/busadmin does minus TLS, CSRF and security headers.
type testApp struct {
	handler  http.Handler
	upstream *fakeUpstream
	cache    *cache.Manager
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	up := newFakeUpstream(t)
	client := api.New(up.srv.URL, 5*time.Second)

	sm := scs.New()
	registry := session.NewRegistry(session.NewSCSPersistence(sm), client)

	renderer, err := render.New(render.Config{TemplatesFS: testTemplates(), SessionManager: sm})
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}

	cm := cache.NewManager(cache.ManagerOptions{})
	t.Cleanup(func() { _ = cm.Close() })

	db := testutil.TestDB(t)
	audits := audit.NewService(db, nil)
	lp := middleware.NewLoginProtection(middleware.LoginProtectionConfig{
		IPRateLimit:       1000,
		IPBurst:           1000,
		MaxFailedAttempts: 3,
		LockoutDuration:   time.Minute,
		AttemptWindow:     time.Minute,
	})

	authH := NewAuthHandler(client, renderer, sm, audits, lp)
	superH := NewSuperHandler(client, renderer, cm, audits)
	schoolH := NewSchoolHandler(client, renderer, cm, audits)
	healthH := NewHealthHandler(db, cm)

	r := chi.NewRouter()
	r.Get("/healthz", healthH.Health)

	r.Group(func(g chi.Router) {
		g.Use(sm.LoadAndSave)
		g.Use(middleware.RequestPath)
		g.Use(middleware.WithSessionStore(registry, sm))

		g.Get(RouteRoot, authH.Landing)
		g.Post(RouteSignInSuper, authH.SignInSuper)
		g.Post(RouteSignInSchool, authH.SignInSchool)
		g.Post(RouteSignUp, authH.SignUp)
		g.Post(RouteSignOut, authH.SignOut)

		g.Group(func(s chi.Router) {
			s.Use(middleware.RequireRole(model.RoleSuperAdmin))
			s.Get(RouteDashboard, superH.Dashboard)
			s.Get(RouteSchools, superH.Schools)
			s.Post(RouteSchools, superH.CreateSchool)
			s.Post(RouteSchools+"/{id}", superH.UpdateSchool)
			s.Post(RouteSchools+"/{id}/delete", superH.DeleteSchool)
			s.Get(RouteSchoolAdmins, superH.SchoolAdmins)
			s.Post(RouteSchoolAdmins, superH.CreateSchoolAdmin)
			s.Post(RouteSchoolAdmins+"/{id}", superH.UpdateSchoolAdmin)
			s.Post(RouteSchoolAdmins+"/{id}/delete", superH.DeleteSchoolAdmin)
		})

		g.Group(func(s chi.Router) {
			s.Use(middleware.RequireRole(model.RoleSchoolAdmin))
			s.Get(RouteSchoolDashboard, schoolH.Dashboard)
			s.Get(RouteSchoolBuses, schoolH.Buses)
			s.Post(RouteSchoolBuses, schoolH.CreateBus)
			s.Post(RouteSchoolBuses+"/{id}", schoolH.UpdateBus)
			s.Post(RouteSchoolBuses+"/{id}/delete", schoolH.DeleteBus)
			s.Get(RouteSchoolDrivers, schoolH.Drivers)
			s.Post(RouteSchoolDrivers, schoolH.CreateDriver)
			s.Post(RouteSchoolDrivers+"/{id}", schoolH.UpdateDriver)
			s.Post(RouteSchoolDrivers+"/{id}/delete", schoolH.DeleteDriver)
			s.Get(RouteSchoolRoutes, schoolH.Routes)
			s.Post(RouteSchoolRoutes, schoolH.CreateRoute)
			s.Post(RouteSchoolRoutes+"/{id}", schoolH.UpdateRoute)
			s.Post(RouteSchoolRoutes+"/{id}/delete", schoolH.DeleteRoute)
			s.Get(RouteSchoolChildren, schoolH.Children)
			s.Post(RouteSchoolChildren, schoolH.CreateChild)
			s.Post(RouteSchoolChildren+"/{id}", schoolH.UpdateChild)
			s.Post(RouteSchoolChildren+"/{id}/delete", schoolH.DeleteChild)
			s.Get(RouteSchoolParents, schoolH.Parents)
			s.Post(RouteSchoolParents, schoolH.CreateParent)
			s.Post(RouteSchoolParents+"/{id}", schoolH.UpdateParent)
			s.Post(RouteSchoolParents+"/{id}/delete", schoolH.DeleteParent)
			s.Get(RouteSchoolProfile, schoolH.Profile)
			s.Post(RouteSchoolProfile, schoolH.UpdateProfile)
			s.Post(RouteSchoolProfile+"/password", schoolH.ChangePassword)
		})
	})

	return &testApp{handler: r, upstream: up, cache: cm}
}

// browser drives the app the way a cookie-keeping client would.
type browser struct {
	t       *testing.T
	app     *testApp
	cookies []*http.Cookie
}

func (a *testApp) browser(t *testing.T) *browser {
	return &browser{t: t, app: a}
}

func (b *browser) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()

	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}

	rr := httptest.NewRecorder()
	b.app.handler.ServeHTTP(rr, req)

	for _, c := range rr.Result().Cookies() {
		replaced := false
		for i, have := range b.cookies {
			if have.Name == c.Name {
				b.cookies[i] = c
				replaced = true
			}
		}
		if !replaced {
			b.cookies = append(b.cookies, c)
		}
	}
	return rr
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(http.MethodGet, path, nil)
}

func (b *browser) post(path string, form url.Values) *httptest.ResponseRecorder {
	return b.do(http.MethodPost, path, form)
}

// signInSuper establishes an authenticated super-admin session.
func (b *browser) signInSuper() {
	b.t.Helper()
	rr := b.post(RouteSignInSuper, url.Values{
		"email":    {b.app.upstream.superUser.Email},
		"password": {testPassword},
	})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != RouteDashboard {
		b.t.Fatalf("super sign-in: status %d location %q", rr.Code, rr.Header().Get("Location"))
	}
}

// signInSchool establishes an authenticated school-admin session.
func (b *browser) signInSchool() {
	b.t.Helper()
	rr := b.post(RouteSignInSchool, url.Values{
		"email":    {b.app.upstream.schoolUser.Email},
		"password": {testPassword},
	})
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != RouteSchoolDashboard {
		b.t.Fatalf("school sign-in: status %d location %q", rr.Code, rr.Header().Get("Location"))
	}
}

func wantRedirect(t *testing.T, rr *httptest.ResponseRecorder, location string) {
	t.Helper()
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status = %d; want 303 (body %q)", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != location {
		t.Fatalf("Location = %q; want %q", loc, location)
	}
}
