// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package guard implements the role-gated routing protocol shared by every
// authenticated page. A guard is a small state machine evaluated against
// session snapshots: it holds rendering until the session bootstrap has
// completed, then issues at most one redirect per decision, so repeated
// evaluations during a single navigation never thrash.
package guard

import (
	"github.com/schooltransit/busadmin/internal/model"
	"github.com/schooltransit/busadmin/internal/session"
)

// EntryPath is the unauthenticated entry screen every rejected session is
// sent to.
const EntryPath = "/"

// Phase is the observable state of a guard evaluation.
type Phase int

const (
	// PhaseBootstrapping means the session bootstrap has not completed;
	// the page renders a neutral loading state, no redirect, no data fetch.
	PhaseBootstrapping Phase = iota
	// PhaseRedirecting means the session does not belong on this page.
	PhaseRedirecting
	// PhaseAuthorized means the page may fetch and render its content.
	PhaseAuthorized
)

func (p Phase) String() string {
	switch p {
	case PhaseBootstrapping:
		return "bootstrapping"
	case PhaseRedirecting:
		return "redirecting"
	case PhaseAuthorized:
		return "authorized"
	}
	return "unknown"
}

// Decision is the outcome of one guard evaluation. Location is non-empty
// only on the single evaluation that should issue the navigation; a
// repeat evaluation in PhaseRedirecting returns an empty Location so the
// caller cannot redirect twice.
type Decision struct {
	Phase    Phase
	Location string
}

// Guard enforces a required role for one page over one session. Not safe
// for concurrent use; callers evaluate it from a single request at a time.
type Guard struct {
	required   string
	redirected bool
}

// New creates a guard requiring the given role.
func New(required string) *Guard {
	return &Guard{required: required}
}

// Evaluate runs one step of the guard machine against a session snapshot.
//
// Decision order once the bootstrap has completed: an unauthenticated
// session goes to the entry screen; an authenticated session with the
// wrong role goes to its own dashboard; everything else is authorized.
// The redirect fires exactly once; later evaluations with an unchanged
// session stay in PhaseRedirecting without a Location. The latch releases
// when the session turns unauthenticated, so the guard can route the next
// sign-in correctly.
func (g *Guard) Evaluate(st session.State) Decision {
	if !st.Initialized || st.Loading {
		return Decision{Phase: PhaseBootstrapping}
	}

	if !st.Authenticated || st.User == nil || st.AccessToken == "" {
		return g.redirect(EntryPath)
	}
	if st.User.Role != g.required {
		return g.redirect(model.DashboardPath(st.User.Role))
	}

	g.redirected = false
	return Decision{Phase: PhaseAuthorized}
}

func (g *Guard) redirect(to string) Decision {
	if g.redirected {
		return Decision{Phase: PhaseRedirecting}
	}
	g.redirected = true
	return Decision{Phase: PhaseRedirecting, Location: to}
}

// Landing is the entry-screen variant of the guard with reversed polarity:
// an authenticated session is forwarded into its role's dashboard, an
// anonymous one renders the sign-in surface in place. The one-shot latch
// resets only when the session becomes unauthenticated again, so the
// multiple store updates of a single login transition produce a single
// navigation.
type Landing struct {
	forwarded bool
}

// NewLanding creates a landing-page guard.
func NewLanding() *Landing {
	return &Landing{}
}

// Evaluate runs one step of the landing machine. PhaseAuthorized here
// means "render the sign-in surface"; PhaseRedirecting carries the
// dashboard path on its first firing only.
func (l *Landing) Evaluate(st session.State) Decision {
	if !st.Initialized || st.Loading {
		return Decision{Phase: PhaseBootstrapping}
	}

	if st.Authenticated && st.User != nil && st.AccessToken != "" {
		if l.forwarded {
			return Decision{Phase: PhaseRedirecting}
		}
		l.forwarded = true
		return Decision{Phase: PhaseRedirecting, Location: model.DashboardPath(st.User.Role)}
	}

	l.forwarded = false
	return Decision{Phase: PhaseAuthorized}
}
