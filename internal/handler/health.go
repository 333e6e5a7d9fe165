// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/schooltransit/busadmin/internal/cache"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	db        *sql.DB
	cache     *cache.Manager
	startTime time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *sql.DB, cm *cache.Manager) *HealthHandler {
	return &HealthHandler{
		db:        db,
		cache:     cm,
		startTime: time.Now(),
	}
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status    string           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Checks    map[string]Check `json:"checks"`
	System    SystemInfo       `json:"system"`
}

// Check represents a single health check result.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// SystemInfo contains system-level information.
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutines"`
	NumCPU       int    `json:"num_cpus"`
	MemAlloc     string `json:"mem_alloc"`
	MemSys       string `json:"mem_sys"`
}

// Health handles GET /healthz requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]Check{
		"database": h.checkDatabase(r),
		"cache":    h.checkCache(r),
	}

	overallStatus := "healthy"
	for _, c := range checks {
		if c.Status != "healthy" {
			overallStatus = "degraded"
			break
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	status := HealthStatus{
		Status:    overallStatus,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    checks,
		System: SystemInfo{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     formatBytes(mem.Alloc),
			MemSys:       formatBytes(mem.Sys),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if overallStatus != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (h *HealthHandler) checkDatabase(r *http.Request) Check {
	start := time.Now()
	if err := h.db.PingContext(r.Context()); err != nil {
		return Check{Status: "unhealthy", Message: err.Error()}
	}
	return Check{Status: "healthy", Latency: time.Since(start).Round(time.Microsecond).String()}
}

func (h *HealthHandler) checkCache(r *http.Request) Check {
	start := time.Now()
	if err := h.cache.Ping(r.Context()); err != nil {
		return Check{Status: "unhealthy", Message: err.Error()}
	}
	return Check{
		Status:  "healthy",
		Message: h.cache.Backend(),
		Latency: time.Since(start).Round(time.Microsecond).String(),
	}
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMG"[exp])
}
