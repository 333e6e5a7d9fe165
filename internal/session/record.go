// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/alexedwards/scs/v2"

	"github.com/schooltransit/busadmin/internal/model"
)

// sessionKeyAuth is the scs key under which the durable record is stored.
const sessionKeyAuth = "auth_record"

// Record is the durable subset of the session state: exactly the fields
// that survive a reload. Runtime flags (loading, initialized) are kept
// outside this struct on purpose, so the persisted subset is enforced by
// construction rather than by a serialization filter.
type Record struct {
	User          *model.User `json:"user"`
	Authenticated bool        `json:"isAuthenticated"`
	AccessToken   string      `json:"accessToken"`
	RefreshToken  string      `json:"refreshToken"`
}

// normalize repairs a record so that Authenticated can never be observed
// without a user and an access token.
func (r *Record) normalize() {
	if r.User == nil || r.AccessToken == "" {
		r.Authenticated = false
	}
}

// Persistence reads and writes the durable record. The production
// implementation is backed by the scs session manager; tests use
// MemoryPersistence.
type Persistence interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, rec Record) error
	Clear(ctx context.Context) error
}

// SCSPersistence stores the record in the scs-managed session, which the
// manager keeps in SQLite so it survives restarts and reloads.
type SCSPersistence struct {
	sm *scs.SessionManager
}

// NewSCSPersistence creates a Persistence over the given session manager.
func NewSCSPersistence(sm *scs.SessionManager) *SCSPersistence {
	return &SCSPersistence{sm: sm}
}

// Load reads the durable record from the request's session. A missing
// record is returned as the zero value, not an error.
func (p *SCSPersistence) Load(ctx context.Context) (Record, error) {
	var rec Record
	raw := p.sm.GetBytes(ctx, sessionKeyAuth)
	if len(raw) == 0 {
		return rec, nil
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding session record: %w", err)
	}
	rec.normalize()
	return rec, nil
}

// Save writes the durable record into the request's session.
func (p *SCSPersistence) Save(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}
	p.sm.Put(ctx, sessionKeyAuth, raw)
	return nil
}

// Clear removes the durable record from the request's session.
func (p *SCSPersistence) Clear(ctx context.Context) error {
	p.sm.Remove(ctx, sessionKeyAuth)
	return nil
}

// MemoryPersistence is an in-memory Persistence for tests. Safe for
// concurrent use.
type MemoryPersistence struct {
	mu  sync.Mutex
	rec Record
	set bool
}

// Load returns the stored record, or the zero value when none is set.
func (p *MemoryPersistence) Load(_ context.Context) (Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.set {
		return Record{}, nil
	}
	rec := p.rec
	rec.normalize()
	return rec, nil
}

// Save stores the record.
func (p *MemoryPersistence) Save(_ context.Context, rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec = rec
	p.set = true
	return nil
}

// Clear removes the stored record.
func (p *MemoryPersistence) Clear(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rec = Record{}
	p.set = false
	return nil
}
