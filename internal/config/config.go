// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// knownWeakSecrets contains default/example secrets that must be rejected.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-secret-key!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// APIBaseURL is the origin of the transportation platform API. All
	// business operations are delegated to it; this app is only a client.
	APIBaseURL string `env:"BUSADMIN_API_URL,required"`

	// APITimeout bounds every outbound call, including the session
	// bootstrap; an unbounded hang there would block every page behind
	// the loading state.
	APITimeout time.Duration `env:"BUSADMIN_API_TIMEOUT" envDefault:"10s"`

	DBPath        string `env:"BUSADMIN_DB_PATH" envDefault:"./data/busadmin.db"`
	SessionSecret string `env:"BUSADMIN_SESSION_SECRET,required"`
	ServerHost    string `env:"BUSADMIN_SERVER_HOST" envDefault:"localhost"`
	ServerPort    int    `env:"BUSADMIN_SERVER_PORT" envDefault:"8080"`
	Env           string `env:"BUSADMIN_ENV" envDefault:"development"`
	LogLevel      string `env:"BUSADMIN_LOG_LEVEL" envDefault:"info"`

	// Cache configuration
	RedisURL     string `env:"BUSADMIN_REDIS_URL"`                         // Optional Redis URL for distributed caching
	CachePrefix  string `env:"BUSADMIN_CACHE_PREFIX" envDefault:"busadm:"` // Redis key prefix
	CacheTTL     int    `env:"BUSADMIN_CACHE_TTL" envDefault:"60"`         // Stats cache TTL in seconds
	CacheMaxSize int    `env:"BUSADMIN_CACHE_MAX_SIZE" envDefault:"1000"`  // Max memory cache entries

	// GeoIP configuration
	GeoIPDBPath string `env:"BUSADMIN_GEOIP_DB_PATH"` // Path to GeoLite2-Country.mmdb file

	// AuditRetentionDays is how long auth audit events are kept.
	AuditRetentionDays int `env:"BUSADMIN_AUDIT_RETENTION_DAYS" envDefault:"90"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// GeoIPEnabled returns true if a GeoIP database is configured.
func (c Config) GeoIPEnabled() bool {
	return c.GeoIPDBPath != ""
}

// MinSessionSecretLength is the minimum required length for the session secret.
const MinSessionSecretLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// The API origin is read once at startup and must be absolute.
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("BUSADMIN_API_URL must be an absolute URL, got %q", cfg.APIBaseURL)
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if cfg.APITimeout <= 0 {
		return nil, fmt.Errorf("BUSADMIN_API_TIMEOUT must be positive, got %s", cfg.APITimeout)
	}

	// Validate session secret length
	if len(cfg.SessionSecret) < MinSessionSecretLength {
		return nil, fmt.Errorf("BUSADMIN_SESSION_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSessionSecretLength, len(cfg.SessionSecret))
	}

	// Reject known weak/default secrets
	for _, weak := range knownWeakSecrets {
		if cfg.SessionSecret == weak {
			return nil, fmt.Errorf("BUSADMIN_SESSION_SECRET is a known default value and must not be used; " +
				"generate a secure secret with: openssl rand -base64 32")
		}
	}

	// Warn about low-entropy secrets
	if !hasMinimumEntropy(cfg.SessionSecret) {
		slog.Warn("BUSADMIN_SESSION_SECRET has low character diversity; " +
			"consider generating a random secret with: openssl rand -base64 32")
	}

	return cfg, nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}
