// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginProtection combines per-IP rate limiting with per-account lockout
// on the sign-in and sign-up routes. The upstream platform also rejects
// bad credentials; this layer keeps brute-force traffic off it.
type LoginProtection struct {
	ipLimiters *limiterCache[string]

	failedAttempts map[string]*loginAttempt
	attemptsMu     sync.RWMutex

	maxFailedAttempts int
	lockoutDuration   time.Duration
	attemptWindow     time.Duration
}

// loginAttempt tracks failed sign-ins for one account.
type loginAttempt struct {
	count       int
	firstFailed time.Time
	lockedUntil time.Time
	lockouts    int
}

// LoginProtectionConfig holds configuration for login protection.
type LoginProtectionConfig struct {
	// IPRateLimit is requests per second per IP.
	IPRateLimit float64
	// IPBurst is the burst size per IP.
	IPBurst int
	// MaxFailedAttempts before an account locks.
	MaxFailedAttempts int
	// LockoutDuration is the base lockout; it doubles per lockout,
	// capped at 24 hours.
	LockoutDuration time.Duration
	// AttemptWindow is the window for counting failures.
	AttemptWindow time.Duration
}

// DefaultLoginProtectionConfig returns sensible defaults.
func DefaultLoginProtectionConfig() LoginProtectionConfig {
	return LoginProtectionConfig{
		IPRateLimit:       0.5,
		IPBurst:           5,
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
		AttemptWindow:     15 * time.Minute,
	}
}

// NewLoginProtection creates a login protection instance and starts its
// cleanup loop.
func NewLoginProtection(cfg LoginProtectionConfig) *LoginProtection {
	if cfg.IPRateLimit <= 0 {
		cfg.IPRateLimit = 0.5
	}
	if cfg.IPBurst <= 0 {
		cfg.IPBurst = 5
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.AttemptWindow <= 0 {
		cfg.AttemptWindow = 15 * time.Minute
	}

	lp := &LoginProtection{
		ipLimiters:        newLimiterCache[string](cfg.IPRateLimit, cfg.IPBurst),
		failedAttempts:    make(map[string]*loginAttempt),
		maxFailedAttempts: cfg.MaxFailedAttempts,
		lockoutDuration:   cfg.LockoutDuration,
		attemptWindow:     cfg.AttemptWindow,
	}
	go lp.cleanup()
	return lp
}

// CheckIPRateLimit reports whether a request from ip may proceed.
func (lp *LoginProtection) CheckIPRateLimit(ip string) bool {
	return lp.ipLimiters.get(ip).Allow()
}

// IsAccountLocked reports whether an account is locked and for how much
// longer.
func (lp *LoginProtection) IsAccountLocked(email string) (bool, time.Duration) {
	lp.attemptsMu.RLock()
	attempt, exists := lp.failedAttempts[email]
	lp.attemptsMu.RUnlock()

	if !exists {
		return false, 0
	}
	if time.Now().Before(attempt.lockedUntil) {
		return true, time.Until(attempt.lockedUntil)
	}
	return false, 0
}

// RecordFailedAttempt records a rejected sign-in. Returns whether the
// account is now locked and for how long.
func (lp *LoginProtection) RecordFailedAttempt(email string) (bool, time.Duration) {
	lp.attemptsMu.Lock()
	defer lp.attemptsMu.Unlock()

	now := time.Now()
	attempt, exists := lp.failedAttempts[email]
	if !exists {
		lp.failedAttempts[email] = &loginAttempt{count: 1, firstFailed: now}
		return false, 0
	}

	if now.Sub(attempt.firstFailed) > lp.attemptWindow {
		attempt.count = 1
		attempt.firstFailed = now
		return false, 0
	}

	attempt.count++
	if attempt.count < lp.maxFailedAttempts {
		return false, 0
	}

	lockDuration := lp.lockoutDuration
	for i := 0; i < attempt.lockouts; i++ {
		lockDuration *= 2
		if lockDuration > 24*time.Hour {
			lockDuration = 24 * time.Hour
			break
		}
	}
	attempt.lockedUntil = now.Add(lockDuration)
	attempt.lockouts++
	attempt.count = 0

	slog.Warn("account locked after failed sign-ins",
		"email", email,
		"lockouts", attempt.lockouts,
		"duration", lockDuration,
	)
	return true, lockDuration
}

// RecordSuccessfulLogin clears failure tracking for an account.
func (lp *LoginProtection) RecordSuccessfulLogin(email string) {
	lp.attemptsMu.Lock()
	defer lp.attemptsMu.Unlock()
	delete(lp.failedAttempts, email)
}

// GetRemainingAttempts returns attempts left before lockout.
func (lp *LoginProtection) GetRemainingAttempts(email string) int {
	lp.attemptsMu.RLock()
	attempt, exists := lp.failedAttempts[email]
	lp.attemptsMu.RUnlock()

	if !exists || time.Since(attempt.firstFailed) > lp.attemptWindow {
		return lp.maxFailedAttempts
	}
	remaining := lp.maxFailedAttempts - attempt.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (lp *LoginProtection) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		lp.cleanupStaleEntries()
	}
}

func (lp *LoginProtection) cleanupStaleEntries() {
	now := time.Now()

	if lp.ipLimiters.clearIfExceeds(10000) {
		slog.Info("cleared IP rate limiters due to size")
	}

	lp.attemptsMu.Lock()
	for email, attempt := range lp.failedAttempts {
		if now.After(attempt.lockedUntil) &&
			now.Sub(attempt.firstFailed) > lp.attemptWindow {
			delete(lp.failedAttempts, email)
		}
	}
	lp.attemptsMu.Unlock()
}

// Middleware rate-limits POSTs to the route it wraps.
func (lp *LoginProtection) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ip := getClientIP(r)
			if !lp.CheckIPRateLimit(ip) {
				slog.Warn("sign-in rate limit exceeded", "ip", ip)
				http.Error(w, "Too many attempts, slow down", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limiterCache is a generic rate limiter cache with double-check locking.
type limiterCache[K comparable] struct {
	limiters map[K]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

func newLimiterCache[K comparable](rps float64, burst int) *limiterCache[K] {
	return &limiterCache[K]{
		limiters: make(map[K]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

func (lc *limiterCache[K]) get(key K) *rate.Limiter {
	lc.mu.RLock()
	limiter, exists := lc.limiters[key]
	lc.mu.RUnlock()
	if exists {
		return limiter
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	if limiter, exists = lc.limiters[key]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(lc.rate, lc.burst)
	lc.limiters[key] = limiter
	return limiter
}

// clearIfExceeds drops all entries when the cache grows past maxSize.
func (lc *limiterCache[K]) clearIfExceeds(maxSize int) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if len(lc.limiters) > maxSize {
		lc.limiters = make(map[K]*rate.Limiter)
		return true
	}
	return false
}
