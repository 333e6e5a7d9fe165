// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/schooltransit/busadmin/internal/model"
)

// Verifier validates a bearer token against the platform API and returns
// the canonical user record. Implemented by *api.Client.
type Verifier interface {
	Me(ctx context.Context, token string) (*model.User, error)
}

// State is an atomic snapshot of the session: the durable record plus the
// transient runtime flags. No reader ever observes a partially-applied
// mutation.
type State struct {
	User          *model.User
	Authenticated bool
	AccessToken   string
	RefreshToken  string
	Loading       bool
	Initialized   bool
}

// Store is the single source of truth for "who is logged in and with what
// credentials" within one browser session. The durable record lives behind
// Persistence; the loading and initialized flags are process-local and
// reset on every process start.
//
// Initialized is monotonic: once true it stays true for the lifetime of
// this Store, and InitializeAuth becomes a no-op.
type Store struct {
	persist  Persistence
	verifier Verifier

	// initMu serializes the bootstrap so overlapping InitializeAuth calls
	// issue exactly one validation request.
	initMu sync.Mutex

	mu          sync.Mutex
	loading     bool
	initialized bool
	lastSeen    time.Time
}

// NewStore creates a Store over the given persistence and verifier.
func NewStore(persist Persistence, verifier Verifier) *Store {
	return &Store{persist: persist, verifier: verifier, lastSeen: time.Now()}
}

// Snapshot returns the current state. Non-blocking with respect to an
// in-flight bootstrap: while validation runs, Loading is true.
func (s *Store) Snapshot(ctx context.Context) State {
	rec, err := s.persist.Load(ctx)
	if err != nil {
		slog.Error("loading session record", "error", err)
		rec = Record{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		User:          rec.User,
		Authenticated: rec.Authenticated,
		AccessToken:   rec.AccessToken,
		RefreshToken:  rec.RefreshToken,
		Loading:       s.loading,
		Initialized:   s.initialized,
	}
}

// Login unconditionally installs the just-issued identity and tokens.
// The caller guarantees the platform issued them; no validation happens
// here.
func (s *Store) Login(ctx context.Context, user *model.User, accessToken, refreshToken string) error {
	return s.persist.Save(ctx, Record{
		User:          user,
		Authenticated: true,
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
	})
}

// Logout clears the identity and both tokens. It does not touch the
// initialized flag and does not navigate; callers redirect afterward.
func (s *Store) Logout(ctx context.Context) error {
	return s.persist.Clear(ctx)
}

// SetTokens replaces only the token fields, for token-refresh flows.
func (s *Store) SetTokens(ctx context.Context, accessToken, refreshToken string) error {
	rec, err := s.persist.Load(ctx)
	if err != nil {
		return err
	}
	rec.AccessToken = accessToken
	rec.RefreshToken = refreshToken
	rec.normalize()
	return s.persist.Save(ctx, rec)
}

// InitializeAuth runs the one-time session bootstrap: it revalidates a
// persisted token against the platform API before any role-gated decision
// is trusted.
//
// The call is idempotent and re-entrant safe. Validation failure,
// upstream rejection and transport failure alike, fails closed: the
// stale credentials are fully cleared so a later page load cannot see the
// previous user. Failures never bubble; they are expressed only through
// the store's flags.
func (s *Store) InitializeAuth(ctx context.Context) {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	rec, err := s.persist.Load(ctx)
	if err != nil {
		slog.Error("loading session record for bootstrap", "error", err)
		rec = Record{}
	}

	// Nothing to validate.
	if rec.AccessToken == "" {
		s.finishInit()
		return
	}

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	user, err := s.verifier.Me(ctx, rec.AccessToken)
	if err != nil {
		// Token is invalid or the platform is unreachable; either way the
		// session must not survive.
		slog.Warn("session bootstrap failed, clearing credentials", "error", err)
		if clearErr := s.persist.Clear(ctx); clearErr != nil {
			slog.Error("clearing rejected session", "error", clearErr)
		}
		s.finishInit()
		return
	}

	rec.User = user
	rec.Authenticated = true
	if saveErr := s.persist.Save(ctx, rec); saveErr != nil {
		slog.Error("saving validated session", "error", saveErr)
	}
	s.finishInit()
}

// finishInit terminates the loading state and marks the store initialized.
// Runs on every bootstrap exit path.
func (s *Store) finishInit() {
	s.mu.Lock()
	s.loading = false
	s.initialized = true
	s.mu.Unlock()
}

// Initialized reports whether the bootstrap has completed.
func (s *Store) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// touch records activity for registry pruning.
func (s *Store) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// idleSince reports how long ago the store was last used.
func (s *Store) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Registry hands out one Store per scs session token, so the transient
// flags are scoped to the browser session the way the durable record is.
type Registry struct {
	persist  Persistence
	verifier Verifier

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry creates a Registry over shared persistence and verifier.
func NewRegistry(persist Persistence, verifier Verifier) *Registry {
	return &Registry{
		persist:  persist,
		verifier: verifier,
		stores:   make(map[string]*Store),
	}
}

// For returns the Store for the given session token, creating it on first
// use. A fresh token (e.g. after login renews the session) gets a fresh
// store whose bootstrap revalidates the persisted record.
func (r *Registry) For(token string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.stores[token]
	if !ok {
		st = NewStore(r.persist, r.verifier)
		r.stores[token] = st
	}
	st.touch()
	return st
}

// Prune drops stores idle for longer than maxIdle. Returns the number
// removed. Wired to the maintenance scheduler.
func (r *Registry) Prune(maxIdle time.Duration) int {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for token, st := range r.stores {
		if st.idleSince(now) > maxIdle {
			delete(r.stores, token)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}
