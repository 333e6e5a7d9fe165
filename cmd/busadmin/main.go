// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/schooltransit/busadmin/internal/api"
	"github.com/schooltransit/busadmin/internal/audit"
	"github.com/schooltransit/busadmin/internal/cache"
	"github.com/schooltransit/busadmin/internal/config"
	"github.com/schooltransit/busadmin/internal/geoip"
	"github.com/schooltransit/busadmin/internal/handler"
	"github.com/schooltransit/busadmin/internal/logging"
	"github.com/schooltransit/busadmin/internal/middleware"
	"github.com/schooltransit/busadmin/internal/model"
	"github.com/schooltransit/busadmin/internal/render"
	"github.com/schooltransit/busadmin/internal/scheduler"
	"github.com/schooltransit/busadmin/internal/session"
	"github.com/schooltransit/busadmin/internal/store"
	"github.com/schooltransit/busadmin/internal/version"
	"github.com/schooltransit/busadmin/web"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "busadmin - School Bus Administration Dashboard\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  BUSADMIN_API_URL           Transportation platform API origin (required)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  BUSADMIN_SESSION_SECRET    Session encryption key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  BUSADMIN_DB_PATH           SQLite database path (default: ./data/busadmin.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  BUSADMIN_SERVER_PORT      Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  BUSADMIN_ENV               Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  BUSADMIN_REDIS_URL         Redis URL for distributed stats caching (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  BUSADMIN_GEOIP_DB_PATH     GeoLite2-Country.mmdb path for audit geo tags (optional)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if *showVersion {
		info := version.Info{Version: appVersion, GitCommit: appGitCommit, BuildTime: appBuildTime}
		_, _ = fmt.Printf("busadmin %s\n", info)
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	versionInfo := version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}

	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	slog.Info("running database migrations")
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	// Upgrade logger to mirror WARN and ERROR records into the audit trail
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger = slog.New(logging.NewAuditLogHandler(textHandler, db))
	slog.SetDefault(logger)

	slog.Info("starting busadmin",
		"version", versionInfo.Version,
		"commit", versionInfo.GitCommit,
		"env", cfg.Env,
		"api", cfg.APIBaseURL,
	)

	// Platform API client; it also serves as the session token verifier.
	client := api.New(cfg.APIBaseURL, cfg.APITimeout)

	sessionManager := session.NewManager(db, cfg.IsDevelopment())
	registry := session.NewRegistry(session.NewSCSPersistence(sessionManager), client)
	slog.Info("session manager initialized")

	cacheManager := cache.NewManager(cache.ManagerOptions{
		RedisURL: cfg.RedisURL,
		Prefix:   cfg.CachePrefix,
		TTL:      time.Duration(cfg.CacheTTL) * time.Second,
		MaxSize:  cfg.CacheMaxSize,
	})
	defer func() {
		if err := cacheManager.Close(); err != nil {
			slog.Error("error closing cache", "error", err)
		}
	}()
	slog.Info("stats cache initialized", "backend", cacheManager.Backend())

	// GeoIP lookup for audit events; disabled when no database is set.
	geo := geoip.NewLookup()
	if err := geo.Init(cfg.GeoIPDBPath); err != nil {
		slog.Warn("geoip unavailable", "error", err)
	}
	defer func() { _ = geo.Close() }()

	audits := audit.NewService(db, geo)

	templatesFS, err := fs.Sub(web.Templates, "templates")
	if err != nil {
		return fmt.Errorf("getting templates fs: %w", err)
	}
	renderer, err := render.New(render.Config{
		TemplatesFS:    templatesFS,
		SessionManager: sessionManager,
		IsDev:          cfg.IsDevelopment(),
	})
	if err != nil {
		return fmt.Errorf("initializing renderer: %w", err)
	}
	slog.Info("template renderer initialized")

	sched := scheduler.New(logger, scheduler.Options{
		Registry:       registry,
		Audits:         audits,
		Geo:            geo,
		Cache:          cacheManager,
		AuditRetention: time.Duration(cfg.AuditRetentionDays) * 24 * time.Hour,
	})
	if err := sched.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	loginProtection := middleware.NewLoginProtection(middleware.DefaultLoginProtectionConfig())
	slog.Info("login protection initialized")

	authHandler := handler.NewAuthHandler(client, renderer, sessionManager, audits, loginProtection)
	superHandler := handler.NewSuperHandler(client, renderer, cacheManager, audits)
	schoolHandler := handler.NewSchoolHandler(client, renderer, cacheManager, audits)
	healthHandler := handler.NewHealthHandler(db, cacheManager)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment())))
	r.Use(middleware.RequestPath)

	r.Get("/healthz", healthHandler.Health)

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		return fmt.Errorf("getting static fs: %w", err)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	csrfConfig := middleware.DefaultCSRFConfig([]byte(cfg.SessionSecret), cfg.IsDevelopment(), cfg.ServerAddr())

	r.Group(func(g chi.Router) {
		g.Use(sessionManager.LoadAndSave)
		g.Use(middleware.CSRF(csrfConfig))
		g.Use(middleware.WithSessionStore(registry, sessionManager))

		g.Get(handler.RouteRoot, authHandler.Landing)

		// Credential exchange takes the brute-force limiter on top.
		g.Group(func(a chi.Router) {
			a.Use(loginProtection.Middleware())
			a.Post(handler.RouteSignInSuper, authHandler.SignInSuper)
			a.Post(handler.RouteSignInSchool, authHandler.SignInSchool)
			a.Post(handler.RouteSignUp, authHandler.SignUp)
		})
		g.Post(handler.RouteSignOut, authHandler.SignOut)

		g.Group(func(s chi.Router) {
			s.Use(middleware.RequireRole(model.RoleSuperAdmin))
			s.Get(handler.RouteDashboard, superHandler.Dashboard)
			s.Get(handler.RouteSchools, superHandler.Schools)
			s.Post(handler.RouteSchools, superHandler.CreateSchool)
			s.Post(handler.RouteSchools+"/{id}", superHandler.UpdateSchool)
			s.Post(handler.RouteSchools+"/{id}/delete", superHandler.DeleteSchool)
			s.Get(handler.RouteSchoolAdmins, superHandler.SchoolAdmins)
			s.Post(handler.RouteSchoolAdmins, superHandler.CreateSchoolAdmin)
			s.Post(handler.RouteSchoolAdmins+"/{id}", superHandler.UpdateSchoolAdmin)
			s.Post(handler.RouteSchoolAdmins+"/{id}/delete", superHandler.DeleteSchoolAdmin)
		})

		g.Group(func(s chi.Router) {
			s.Use(middleware.RequireRole(model.RoleSchoolAdmin))
			s.Get(handler.RouteSchoolDashboard, schoolHandler.Dashboard)
			s.Get(handler.RouteSchoolBuses, schoolHandler.Buses)
			s.Post(handler.RouteSchoolBuses, schoolHandler.CreateBus)
			s.Post(handler.RouteSchoolBuses+"/{id}", schoolHandler.UpdateBus)
			s.Post(handler.RouteSchoolBuses+"/{id}/delete", schoolHandler.DeleteBus)
			s.Get(handler.RouteSchoolDrivers, schoolHandler.Drivers)
			s.Post(handler.RouteSchoolDrivers, schoolHandler.CreateDriver)
			s.Post(handler.RouteSchoolDrivers+"/{id}", schoolHandler.UpdateDriver)
			s.Post(handler.RouteSchoolDrivers+"/{id}/delete", schoolHandler.DeleteDriver)
			s.Get(handler.RouteSchoolRoutes, schoolHandler.Routes)
			s.Post(handler.RouteSchoolRoutes, schoolHandler.CreateRoute)
			s.Post(handler.RouteSchoolRoutes+"/{id}", schoolHandler.UpdateRoute)
			s.Post(handler.RouteSchoolRoutes+"/{id}/delete", schoolHandler.DeleteRoute)
			s.Get(handler.RouteSchoolChildren, schoolHandler.Children)
			s.Post(handler.RouteSchoolChildren, schoolHandler.CreateChild)
			s.Post(handler.RouteSchoolChildren+"/{id}", schoolHandler.UpdateChild)
			s.Post(handler.RouteSchoolChildren+"/{id}/delete", schoolHandler.DeleteChild)
			s.Get(handler.RouteSchoolParents, schoolHandler.Parents)
			s.Post(handler.RouteSchoolParents, schoolHandler.CreateParent)
			s.Post(handler.RouteSchoolParents+"/{id}", schoolHandler.UpdateParent)
			s.Post(handler.RouteSchoolParents+"/{id}/delete", schoolHandler.DeleteParent)
			s.Get(handler.RouteSchoolProfile, schoolHandler.Profile)
			s.Post(handler.RouteSchoolProfile, schoolHandler.UpdateProfile)
			s.Post(handler.RouteSchoolProfile+"/password", schoolHandler.ChangePassword)
		})
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
