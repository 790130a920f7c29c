package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/auth"
	"github.com/saltyorg/subrewind/internal/database"
	"github.com/saltyorg/subrewind/internal/maintenance"
	"github.com/saltyorg/subrewind/internal/media"
	"github.com/saltyorg/subrewind/internal/monitor"
	"github.com/saltyorg/subrewind/internal/notification"
	"github.com/saltyorg/subrewind/internal/web/handlers"
	"github.com/saltyorg/subrewind/internal/web/middleware"
	"github.com/saltyorg/subrewind/internal/web/sse"
)

//go:embed templates/*
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Server represents the web server
type Server struct {
	db              *database.DB
	port            int
	bind            string
	allowedNet      *net.IPNet
	router          *chi.Mux
	templates       map[string]*template.Template
	authService     *auth.Service
	apiKeyService   *auth.APIKeyService
	sseBroker       *sse.Broker
	monitor         *monitor.Monitor
	notificationMgr *notification.Manager
	handlers        *handlers.Handlers
}

// NewServer creates a new web server
func NewServer(db *database.DB, port int, bind string, allowedNet *net.IPNet, isDev bool) *Server {
	s := &Server{
		db:            db,
		port:          port,
		bind:          bind,
		allowedNet:    allowedNet,
		router:        chi.NewRouter(),
		authService:   auth.NewService(db),
		apiKeyService: auth.NewAPIKeyService(db),
		sseBroker:     sse.NewBroker(),
	}

	s.loadTemplates()
	s.setupRoutes(isDev)

	return s
}

// SSEBroker returns the SSE broker for broadcasting events
func (s *Server) SSEBroker() *sse.Broker {
	return s.sseBroker
}

// SetMonitor sets the session monitor and updates handlers
func (s *Server) SetMonitor(m *monitor.Monitor) {
	s.monitor = m
	if s.handlers != nil {
		s.handlers.SetMonitor(m)
	}
}

// SetNotificationManager sets the notification manager and updates handlers
func (s *Server) SetNotificationManager(mgr *notification.Manager) {
	s.notificationMgr = mgr
	if s.handlers != nil {
		s.handlers.SetNotificationManager(mgr)
	}
}

// SetMaintenanceManager passes the maintenance scheduler through to the handlers
func (s *Server) SetMaintenanceManager(m *maintenance.Manager) {
	if s.handlers != nil {
		s.handlers.SetMaintenanceManager(m)
	}
}

// SetVersionInfo passes build metadata through to the handlers
func (s *Server) SetVersionInfo(version, commit, date string) {
	if s.handlers != nil {
		s.handlers.SetVersionInfo(version, commit, date)
	}
}

// Handlers returns the handler set
func (s *Server) Handlers() *handlers.Handlers {
	return s.handlers
}

// templateFuncMap returns the common template functions
func templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"formatTime": func(t any) string {
			switch v := t.(type) {
			case time.Time:
				return v.Format("2006-01-02 15:04:05")
			case *time.Time:
				if v != nil {
					return v.Format("2006-01-02 15:04:05")
				}
			}
			return ""
		},
		"formatMillis": media.FormatMillis,
		"formatDuration": func(d time.Duration) string {
			return d.Round(time.Second).String()
		},
		"add": func(a, b int) int {
			return a + b
		},
		"sub": func(a, b int) int {
			return a - b
		},
		"min": func(a, b int) int {
			if a < b {
				return a
			}
			return b
		},
		"percent": func(part, whole int64) int {
			if whole <= 0 {
				return 0
			}
			p := int(part * 100 / whole)
			if p > 100 {
				p = 100
			}
			return p
		},
		"json": func(v any) string {
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err.Error()
			}
			return string(b)
		},
		"truncate": func(s string, maxLen int) string {
			if len(s) <= maxLen {
				return s
			}
			return s[:maxLen] + "..."
		},
		"jsEscape": func(s string) string {
			// Escape for use in JavaScript strings
			s = strings.ReplaceAll(s, "\\", "\\\\")
			s = strings.ReplaceAll(s, "'", "\\'")
			s = strings.ReplaceAll(s, "\"", "\\\"")
			s = strings.ReplaceAll(s, "\n", "\\n")
			s = strings.ReplaceAll(s, "\r", "\\r")
			return s
		},
	}
}

// loadTemplates loads all HTML templates
// Each page template is parsed with the base template and partials
func (s *Server) loadTemplates() {
	s.templates = make(map[string]*template.Template)
	funcMap := templateFuncMap()

	// List of page templates to load
	pageTemplates := []string{
		"login.html",
		"dashboard.html",
		"history.html",
		"settings.html",
		"logs.html",
		"wizard/setup.html",
	}

	for _, page := range pageTemplates {
		// Parse base template first, then partials, then the page template
		tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS,
			"templates/base.html",
			"templates/partials/*.html",
			"templates/"+page,
		)
		if err != nil {
			log.Fatal().Err(err).Str("template", page).Msg("Failed to parse template")
		}
		s.templates[page] = tmpl
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(isDev bool) {
	r := s.router

	// Global middleware (applied to all routes, except timeout which is per-group)
	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.allowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)
	// Note: Timeout middleware is applied per-group, not globally, to allow SSE long-lived connections

	// SSE endpoint - no timeout (long-lived connections)
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(s.authService))
		r.Get("/api/events", s.sseBroker.ServeHTTP)
	})

	// Static files
	staticContent, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to setup static files")
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticContent))))

	// Create handlers
	h := handlers.New(s.db, s.templates, s.authService, s.apiKeyService, s.sseBroker, isDev)
	s.handlers = h

	// Set managers if already available
	if s.monitor != nil {
		h.SetMonitor(s.monitor)
	}
	if s.notificationMgr != nil {
		h.SetNotificationManager(s.notificationMgr)
	}

	// Public routes (no auth required)
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Get("/login", h.LoginPage)
		r.Post("/login", h.LoginSubmit)
		r.Get("/logout", h.Logout)

		// Setup wizard (only works if no users exist)
		r.Get("/setup", h.SetupWizard)
		r.Post("/setup", h.SetupSubmit)
		r.Post("/setup/test", h.SetupTestConnection)
	})

	// Read-only JSON API (API key auth)
	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKeyAuth(s.apiKeyService))
			r.Get("/status", h.APIStatus)
			r.Get("/history", h.APIHistory)
			r.Get("/stats", h.APIStats)
		})
	})

	// Protected routes (session auth required)
	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))
		r.Use(middleware.SessionAuth(s.authService))
		r.Use(middleware.RequireSetup(s.db))

		// Profile management
		r.Post("/profile/username", h.ProfileUpdateUsername)
		r.Post("/profile/password", h.ProfileUpdatePassword)

		// Dashboard
		r.Get("/", h.Dashboard)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/dashboard/sessions", h.DashboardSessionsPartial)
		r.Get("/dashboard/events", h.DashboardEventsPartial)

		// Override history
		r.Get("/history", h.HistoryPage)

		// Settings
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.SettingsPage)
			r.Post("/", h.SettingsUpdate)

			// Plex connection
			r.Get("/connection", h.SettingsConnectionPage)
			r.Post("/connection", h.SettingsConnectionUpdate)
			r.Post("/connection/test", h.SettingsConnectionTest)

			// Monitor tuning
			r.Get("/monitor", h.SettingsMonitorPage)
			r.Post("/monitor", h.SettingsMonitorUpdate)

			// Notification settings
			r.Get("/notifications", h.SettingsNotificationsPage)
			r.Get("/notifications/new", h.NotificationProviderNew)
			r.Post("/notifications", h.NotificationProviderCreate)
			r.Get("/notifications/{id}", h.NotificationProviderEdit)
			r.Post("/notifications/{id}", h.NotificationProviderUpdate)
			r.Delete("/notifications/{id}", h.NotificationProviderDelete)
			r.Post("/notifications/{id}/test", h.NotificationProviderTest)
			r.Post("/notifications/logs/clear", h.NotificationLogsClear)

			// API keys
			r.Get("/apikeys", h.SettingsAPIKeysPage)
			r.Post("/apikeys", h.APIKeyCreate)
			r.Delete("/apikeys/{id}", h.APIKeyDelete)

			r.Get("/about", h.SettingsAboutPage)
		})

		// Override history maintenance
		r.Post("/history/clear", h.HistoryClear)

		// Logs
		r.Get("/logs", h.LogsPage)
	})
}

// Start starts the web server
func (s *Server) Start(ctx context.Context) error {
	var addr string
	if s.bind != "" {
		addr = fmt.Sprintf("%s:%d", s.bind, s.port)
	} else {
		addr = fmt.Sprintf(":%d", s.port)
	}

	server := &http.Server{
		Addr:    addr,
		Handler: s.router,
		// ReadTimeout is for reading request body
		ReadTimeout: 15 * time.Second,
		// WriteTimeout disabled (0) to allow SSE long-lived connections
		// Chi middleware timeout (60s) protects regular requests
		WriteTimeout: 0,
		// IdleTimeout for keep-alive connections between requests
		IdleTimeout: 120 * time.Second,
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		// Stop SSE broker first to close all client connections gracefully
		s.sseBroker.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
