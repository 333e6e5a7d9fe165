// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/schooltransit/busadmin/internal/model"
)

// fakeVerifier accepts a single token and counts validation calls.
type fakeVerifier struct {
	calls   atomic.Int64
	token   string
	user    *model.User
	release chan struct{} // when set, Me blocks until closed
}

func (v *fakeVerifier) Me(_ context.Context, token string) (*model.User, error) {
	v.calls.Add(1)
	if v.release != nil {
		<-v.release
	}
	if token != v.token {
		return nil, errors.New("Token expired")
	}
	u := *v.user
	return &u, nil
}

func superAdmin() *model.User {
	return &model.User{ID: "1", Name: "A", Email: "a@x.com", Role: model.RoleSuperAdmin}
}

func seeded(t *testing.T, rec Record) *MemoryPersistence {
	t.Helper()
	p := &MemoryPersistence{}
	if err := p.Save(context.Background(), rec); err != nil {
		t.Fatalf("seeding persistence: %v", err)
	}
	return p
}

func TestInitializeAuthNoToken(t *testing.T) {
	v := &fakeVerifier{token: "t1", user: superAdmin()}
	s := NewStore(&MemoryPersistence{}, v)
	ctx := context.Background()

	s.InitializeAuth(ctx)

	st := s.Snapshot(ctx)
	if !st.Initialized {
		t.Error("Initialized = false")
	}
	if st.Loading {
		t.Error("Loading = true")
	}
	if st.Authenticated || st.User != nil {
		t.Error("anonymous session should stay anonymous")
	}
	if v.calls.Load() != 0 {
		t.Errorf("validation calls = %d; want 0 without a token", v.calls.Load())
	}
}

func TestInitializeAuthAcceptedToken(t *testing.T) {
	v := &fakeVerifier{
		token: "t1",
		user:  &model.User{ID: "2", Name: "B", Email: "b@x.com", Role: model.RoleSchoolAdmin, SchoolID: "s1"},
	}
	p := seeded(t, Record{User: superAdmin(), Authenticated: true, AccessToken: "t1"})
	s := NewStore(p, v)
	ctx := context.Background()

	s.InitializeAuth(ctx)

	st := s.Snapshot(ctx)
	if !st.Initialized || st.Loading {
		t.Errorf("flags = {init: %v, loading: %v}", st.Initialized, st.Loading)
	}
	if !st.Authenticated {
		t.Error("Authenticated = false")
	}
	// The server's record is authoritative and replaces the persisted user.
	if st.User == nil || st.User.Role != model.RoleSchoolAdmin || st.User.ID != "2" {
		t.Errorf("User = %+v; want server record", st.User)
	}
	if st.AccessToken != "t1" {
		t.Errorf("AccessToken = %q", st.AccessToken)
	}
}

func TestInitializeAuthRejectedTokenClearsCredentials(t *testing.T) {
	v := &fakeVerifier{token: "valid", user: superAdmin()}
	p := seeded(t, Record{User: superAdmin(), Authenticated: true, AccessToken: "stale", RefreshToken: "r1"})
	s := NewStore(p, v)
	ctx := context.Background()

	s.InitializeAuth(ctx)

	st := s.Snapshot(ctx)
	if st.User != nil || st.Authenticated {
		t.Errorf("stale identity survived: %+v", st)
	}
	if st.AccessToken != "" || st.RefreshToken != "" {
		t.Error("rejected tokens must be fully cleared, not merely flagged")
	}
	if !st.Initialized || st.Loading {
		t.Errorf("flags = {init: %v, loading: %v}", st.Initialized, st.Loading)
	}
}

func TestInitializeAuthIdempotent(t *testing.T) {
	v := &fakeVerifier{token: "t1", user: superAdmin()}
	p := seeded(t, Record{User: superAdmin(), Authenticated: true, AccessToken: "t1"})
	s := NewStore(p, v)
	ctx := context.Background()

	s.InitializeAuth(ctx)
	s.InitializeAuth(ctx)
	s.InitializeAuth(ctx)

	if got := v.calls.Load(); got != 1 {
		t.Errorf("validation calls = %d; want 1", got)
	}
}

func TestInitializeAuthConcurrentSingleFlight(t *testing.T) {
	v := &fakeVerifier{token: "t1", user: superAdmin(), release: make(chan struct{})}
	p := seeded(t, Record{User: superAdmin(), Authenticated: true, AccessToken: "t1"})
	s := NewStore(p, v)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.InitializeAuth(ctx)
		}()
	}

	// Wait for the first call to reach the verifier, observe the loading
	// state, then let it finish.
	deadline := time.Now().Add(time.Second)
	for v.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("verifier never called")
		}
		time.Sleep(time.Millisecond)
	}
	if st := s.Snapshot(ctx); !st.Loading {
		t.Error("Loading = false while validation in flight")
	}
	close(v.release)
	wg.Wait()

	if got := v.calls.Load(); got != 1 {
		t.Errorf("validation calls = %d; want 1", got)
	}
	if st := s.Snapshot(ctx); !st.Initialized || st.Loading {
		t.Errorf("flags = {init: %v, loading: %v}", st.Initialized, st.Loading)
	}
}

func TestAuthenticatedImpliesUserAndToken(t *testing.T) {
	// A persisted record claiming authentication without a token must be
	// repaired on load, never observed by a page.
	p := seeded(t, Record{User: superAdmin(), Authenticated: true, AccessToken: ""})
	s := NewStore(p, &fakeVerifier{token: "t1", user: superAdmin()})

	st := s.Snapshot(context.Background())
	if st.Authenticated {
		t.Error("Authenticated without a token observed")
	}
}

func TestLogoutClearsIdentityKeepsInitialized(t *testing.T) {
	v := &fakeVerifier{token: "t1", user: superAdmin()}
	p := seeded(t, Record{User: superAdmin(), Authenticated: true, AccessToken: "t1", RefreshToken: "r1"})
	s := NewStore(p, v)
	ctx := context.Background()

	s.InitializeAuth(ctx)
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	st := s.Snapshot(ctx)
	if st.User != nil || st.Authenticated || st.AccessToken != "" || st.RefreshToken != "" {
		t.Errorf("identity not fully cleared: %+v", st)
	}
	if !st.Initialized {
		t.Error("Logout must not reset Initialized")
	}
}

func TestSetTokens(t *testing.T) {
	p := seeded(t, Record{User: superAdmin(), Authenticated: true, AccessToken: "t1", RefreshToken: "r1"})
	s := NewStore(p, &fakeVerifier{token: "t1", user: superAdmin()})
	ctx := context.Background()

	if err := s.SetTokens(ctx, "t2", "r2"); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}

	st := s.Snapshot(ctx)
	if st.AccessToken != "t2" || st.RefreshToken != "r2" {
		t.Errorf("tokens = %q/%q", st.AccessToken, st.RefreshToken)
	}
	if st.User == nil || !st.Authenticated {
		t.Error("SetTokens must not touch identity")
	}
}

func TestLoginThenReloadRoundTrip(t *testing.T) {
	u := superAdmin()
	v := &fakeVerifier{token: "tok1", user: u}
	p := &MemoryPersistence{}
	ctx := context.Background()

	s := NewStore(p, v)
	if err := s.Login(ctx, u, "tok1", ""); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Simulated reload: durable fields survive in p, transient flags reset
	// with a fresh store.
	s2 := NewStore(p, v)
	st := s2.Snapshot(ctx)
	if st.Initialized || st.Loading {
		t.Errorf("fresh process flags = {init: %v, loading: %v}; want false", st.Initialized, st.Loading)
	}

	s2.InitializeAuth(ctx)
	st = s2.Snapshot(ctx)
	if !st.Authenticated || st.User == nil || st.User.ID != u.ID {
		t.Errorf("after reload: %+v", st)
	}
	if st.AccessToken != "tok1" {
		t.Errorf("AccessToken = %q", st.AccessToken)
	}
}

func TestRegistryScopesStoresByToken(t *testing.T) {
	r := NewRegistry(&MemoryPersistence{}, &fakeVerifier{token: "t1", user: superAdmin()})

	a := r.For("session-a")
	b := r.For("session-b")
	if a == b {
		t.Fatal("distinct tokens must get distinct stores")
	}
	if again := r.For("session-a"); again != a {
		t.Error("same token must get the same store")
	}

	a.InitializeAuth(context.Background())
	if b.Initialized() {
		t.Error("bootstrap state leaked across sessions")
	}
}

func TestRegistryPrune(t *testing.T) {
	r := NewRegistry(&MemoryPersistence{}, &fakeVerifier{token: "t1", user: superAdmin()})
	r.For("a")
	r.For("b")

	if removed := r.Prune(time.Hour); removed != 0 {
		t.Errorf("Prune removed %d fresh stores", removed)
	}
	if removed := r.Prune(0); removed != 2 {
		t.Errorf("Prune removed %d; want 2", removed)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d; want 0", r.Len())
	}
}
