// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package geoip resolves client IPs to country codes using a MaxMind
// GeoLite2-Country database. The audit log annotates sign-in events with
// the resulting code.
package geoip

import (
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/oschwald/maxminddb-golang"
)

var privateCIDRs []*net.IPNet

func init() {
	for _, block := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"fc00::/7",
		"fe80::/10",
	} {
		if _, cidr, err := net.ParseCIDR(block); err == nil {
			privateCIDRs = append(privateCIDRs, cidr)
		}
	}
}

// Lookup wraps the MaxMind reader. The zero-value-with-Init form lets
// the application run with lookups disabled when no database path is
// configured.
type Lookup struct {
	db        *maxminddb.Reader
	dbPath    string
	dbModTime time.Time
	enabled   bool
	mu        sync.RWMutex
}

type geoRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// NewLookup creates an uninitialized lookup.
func NewLookup() *Lookup {
	return &Lookup{}
}

// Init loads the database at dbPath. An empty path disables lookups
// without error.
func (g *Lookup) Init(dbPath string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dbPath = dbPath
	if dbPath == "" {
		g.enabled = false
		return nil
	}
	return g.loadDatabase()
}

// loadDatabase opens or reloads the database. Caller holds the write
// lock.
func (g *Lookup) loadDatabase() error {
	info, err := os.Stat(g.dbPath)
	if err != nil {
		g.enabled = false
		if os.IsNotExist(err) {
			return fmt.Errorf("GeoIP database not found: %s", g.dbPath)
		}
		return fmt.Errorf("GeoIP database stat error: %w", err)
	}

	if g.db != nil && info.ModTime().Equal(g.dbModTime) {
		return nil
	}
	if g.db != nil {
		_ = g.db.Close()
		g.db = nil
	}

	db, err := maxminddb.Open(g.dbPath)
	if err != nil {
		g.enabled = false
		return fmt.Errorf("opening GeoIP database: %w", err)
	}

	g.db = db
	g.dbModTime = info.ModTime()
	g.enabled = true
	return nil
}

// Reload re-reads the database when its mtime changed. Safe to call
// from the maintenance scheduler.
func (g *Lookup) Reload() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.dbPath == "" {
		return nil
	}
	return g.loadDatabase()
}

// Country returns the two-letter ISO code for ip, "LOCAL" for private
// or loopback addresses, and "" when the lookup is disabled or fails.
func (g *Lookup) Country(ip string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	if parsed.IsLoopback() || isPrivateIP(parsed) {
		return "LOCAL"
	}
	if !g.enabled || g.db == nil {
		return ""
	}

	var record geoRecord
	if err := g.db.Lookup(parsed, &record); err != nil {
		return ""
	}
	return record.Country.ISOCode
}

// IsEnabled reports whether lookups are available.
func (g *Lookup) IsEnabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enabled
}

// Close closes the database.
func (g *Lookup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.db != nil {
		err := g.db.Close()
		g.db = nil
		g.enabled = false
		return err
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	for _, cidr := range privateCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
