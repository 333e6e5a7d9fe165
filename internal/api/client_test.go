// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/schooltransit/busadmin/internal/model"
)

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/me" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok1" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{
				"id": "1", "name": "A", "email": "a@x.com", "role": "super_admin",
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	user, err := c.Me(context.Background(), "tok1")
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if user.ID != "1" || user.Role != model.RoleSuperAdmin {
		t.Errorf("user = %+v", user)
	}
}

func TestMeRejectedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Token expired"})
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.Me(context.Background(), "stale")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsUnauthorized(err) {
		t.Errorf("IsUnauthorized = false for %v", err)
	}
	if err.Error() != "Token expired" {
		t.Errorf("message = %q; want upstream message verbatim", err.Error())
	}
}

func TestLoginSuperAdmin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/super-admin/login" || r.Method != http.MethodPost {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var creds Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Fatalf("decoding credentials: %v", err)
		}
		if creds.Email != "a@x.com" || creds.Password != "p" {
			t.Errorf("creds = %+v", creds)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user": map[string]any{
				"id": "1", "name": "A", "email": "a@x.com", "role": "super_admin",
			},
			"access_token": "t1",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	sess, err := c.LoginSuperAdmin(context.Background(), Credentials{Email: "a@x.com", Password: "p"})
	if err != nil {
		t.Fatalf("LoginSuperAdmin: %v", err)
	}
	if sess.AccessToken != "t1" {
		t.Errorf("AccessToken = %q", sess.AccessToken)
	}
	if sess.User.Name != "A" {
		t.Errorf("User = %+v", sess.User)
	}
	if sess.RefreshToken != "" {
		t.Errorf("RefreshToken = %q; want empty", sess.RefreshToken)
	}
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Invalid credentials"})
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.LoginSchoolAdmin(context.Background(), Credentials{Email: "a@x.com", Password: "wrong"})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "Invalid credentials" {
		t.Errorf("message = %q; want %q", err.Error(), "Invalid credentials")
	}
	if StatusOf(err) != http.StatusUnauthorized {
		t.Errorf("StatusOf = %d", StatusOf(err))
	}
}

func TestListSchools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "s1", "name": "North Elementary", "address": "1 Main St", "contact": "555-0100"},
				{"id": "s2", "name": "South Elementary", "address": "2 Main St", "contact": "555-0200"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	schools, err := c.ListSchools(context.Background(), "tok")
	if err != nil {
		t.Fatalf("ListSchools: %v", err)
	}
	if len(schools) != 2 || schools[0].Name != "North Elementary" {
		t.Errorf("schools = %+v", schools)
	}
}

func TestErrorWithoutMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, 0)
	_, err := c.PlatformStats(context.Background(), "tok")
	if err == nil {
		t.Fatal("expected error")
	}
	if StatusOf(err) != http.StatusBadGateway {
		t.Errorf("StatusOf = %d", StatusOf(err))
	}
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, 20*time.Millisecond)
	_, err := c.Me(context.Background(), "tok")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	// A transport failure carries no upstream status.
	if StatusOf(err) != 0 {
		t.Errorf("StatusOf = %d; want 0", StatusOf(err))
	}
}
