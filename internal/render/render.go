// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package render parses and executes the dashboard templates.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/schooltransit/busadmin/internal/model"
)

// Renderer holds the parsed template set and session-backed flash state.
type Renderer struct {
	templates      map[string]*template.Template
	sessionManager *scs.SessionManager
	isDev          bool
}

// Config holds renderer configuration.
type Config struct {
	TemplatesFS    fs.FS
	SessionManager *scs.SessionManager
	IsDev          bool
}

// New creates a Renderer with all templates parsed up front, so a
// broken template fails startup instead of a request.
func New(cfg Config) (*Renderer, error) {
	r := &Renderer{
		templates:      make(map[string]*template.Template),
		sessionManager: cfg.SessionManager,
		isDev:          cfg.IsDev,
	}
	if err := r.parseTemplates(cfg.TemplatesFS); err != nil {
		return nil, err
	}
	return r, nil
}

// parseTemplates builds one template set per page. Auth pages use the
// base layout alone; admin pages add the dashboard chrome.
func (r *Renderer) parseTemplates(templatesFS fs.FS) error {
	partials, err := r.getTemplateFiles(templatesFS, "partials")
	if err != nil {
		return fmt.Errorf("getting partials: %w", err)
	}

	baseLayout := "layouts/base.html"
	adminLayout := "layouts/admin.html"

	adminTemplates, err := r.getTemplateFiles(templatesFS, "admin")
	if err != nil {
		return fmt.Errorf("getting admin templates: %w", err)
	}
	for _, tmplPath := range adminTemplates {
		name := "admin/" + strings.TrimSuffix(filepath.Base(tmplPath), ".html")

		files := []string{baseLayout, adminLayout}
		files = append(files, partials...)
		files = append(files, tmplPath)

		tmpl, err := template.New("").Funcs(r.templateFuncs()).ParseFS(templatesFS, files...)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}

	authTemplates, err := r.getTemplateFiles(templatesFS, "auth")
	if err != nil {
		return fmt.Errorf("getting auth templates: %w", err)
	}
	for _, tmplPath := range authTemplates {
		name := "auth/" + strings.TrimSuffix(filepath.Base(tmplPath), ".html")

		files := []string{baseLayout}
		files = append(files, partials...)
		files = append(files, tmplPath)

		tmpl, err := template.New("").Funcs(r.templateFuncs()).ParseFS(templatesFS, files...)
		if err != nil {
			return fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}

	return nil
}

func (r *Renderer) getTemplateFiles(templatesFS fs.FS, dir string) ([]string, error) {
	var files []string

	entries, err := fs.ReadDir(templatesFS, dir)
	if err != nil {
		// Directory might not exist, that's ok.
		return files, nil
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".html") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func (r *Renderer) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("Jan 2, 2006")
		},
		"formatDateTime": func(t time.Time) string {
			return t.Format("Jan 2, 2006 3:04 PM")
		},
		"truncate": func(s string, length int) string {
			if len(s) <= length {
				return s
			}
			return s[:length] + "..."
		},
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
		"roleLabel": func(role string) string {
			switch role {
			case model.RoleSuperAdmin:
				return "Super Administrator"
			case model.RoleSchoolAdmin:
				return "School Administrator"
			default:
				return role
			}
		},
		"activeIf": func(current, path string) string {
			if current == path {
				return "active"
			}
			return ""
		},
	}
}

// TemplateData is the envelope passed to every template.
type TemplateData struct {
	Title       string
	Data        any
	User        *model.User
	ActivePath  string
	Flash       string
	FlashType   string
	Error       string // page-level error panel with retry
	CurrentYear int
}

// Render executes a page template into a buffer first, so template
// errors produce a 500 instead of a half-written page.
func (r *Renderer) Render(w http.ResponseWriter, req *http.Request, name string, data TemplateData) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}

	data.CurrentYear = time.Now().Year()
	if data.ActivePath == "" {
		data.ActivePath = req.URL.Path
	}

	if r.sessionManager != nil {
		if flash := r.sessionManager.PopString(req.Context(), "flash"); flash != "" {
			data.Flash = flash
			data.FlashType = r.sessionManager.PopString(req.Context(), "flash_type")
			if data.FlashType == "" {
				data.FlashType = "info"
			}
		}
	}

	buf := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(buf, "base", data); err != nil {
		return fmt.Errorf("executing template %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

// SetFlash stores a one-shot flash message in the session.
func (r *Renderer) SetFlash(req *http.Request, message, flashType string) {
	if r.sessionManager != nil {
		r.sessionManager.Put(req.Context(), "flash", message)
		r.sessionManager.Put(req.Context(), "flash_type", flashType)
	}
}
