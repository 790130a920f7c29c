package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/config"
	"github.com/saltyorg/subrewind/internal/plex"
	"github.com/saltyorg/subrewind/internal/web/sse"
)

// ConnectionSettings holds the Plex connection configuration for display.
// The token itself never leaves the server; only its presence is shown.
type ConnectionSettings struct {
	PlexURL          string
	TokenSet         bool
	MonitorEnabled   bool
	UseNotifications bool
	MonitorRunning   bool
}

// SettingsConnectionPage renders the Plex connection settings page
func (h *Handlers) SettingsConnectionPage(w http.ResponseWriter, r *http.Request) {
	loader := config.NewLoader(h.db)

	settings := ConnectionSettings{
		PlexURL:          loader.String("plex.url", ""),
		MonitorEnabled:   loader.BoolDefaultTrue("monitor.enabled"),
		UseNotifications: loader.BoolDefaultTrue("monitor.use_notifications"),
	}
	if token := loader.String("plex.token", ""); token != "" {
		settings.TokenSet = true
	}
	if h.monitor != nil {
		settings.MonitorRunning = h.monitor.IsRunning()
	}

	h.render(w, r, "settings.html", map[string]any{
		"Tab":      "connection",
		"Settings": settings,
	})
}

// SettingsConnectionUpdate saves the Plex connection and restarts the monitor
func (h *Handlers) SettingsConnectionUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.flashErr(w, "Invalid form data")
		h.redirect(w, r, "/settings/connection")
		return
	}

	plexURL := strings.TrimSpace(r.FormValue("plex_url"))
	plexToken := strings.TrimSpace(r.FormValue("plex_token"))
	monitorEnabled := r.FormValue("monitor_enabled") == "on"
	useNotifications := r.FormValue("use_notifications") == "on"

	if plexURL == "" {
		h.flashErr(w, "Plex URL is required")
		h.redirect(w, r, "/settings/connection")
		return
	}
	if err := ValidateServerURL(plexURL, "Plex URL"); err != nil {
		h.flashErr(w, err.Error())
		h.redirect(w, r, "/settings/connection")
		return
	}

	var saveErr error
	if err := h.db.SetSetting("plex.url", plexURL); err != nil {
		saveErr = err
	}
	// An empty token field keeps the stored token
	if plexToken != "" {
		if err := h.db.SetSetting("plex.token", plexToken); err != nil {
			saveErr = err
		}
	}
	if err := h.db.SetSetting("monitor.enabled", strconv.FormatBool(monitorEnabled)); err != nil {
		saveErr = err
	}
	if err := h.db.SetSetting("monitor.use_notifications", strconv.FormatBool(useNotifications)); err != nil {
		saveErr = err
	}

	if saveErr != nil {
		h.flashErr(w, "Failed to save some settings")
		h.redirect(w, r, "/settings/connection")
		return
	}

	if h.sseBroker != nil {
		h.sseBroker.Broadcast(sse.Event{Type: sse.EventSettingsChanged, Data: map[string]any{"section": "connection"}})
	}

	if h.monitor != nil {
		if err := h.monitor.Reload(); err != nil {
			log.Error().Err(err).Msg("Failed to restart monitor after settings change")
			h.flashErr(w, "Settings saved, but the monitor failed to restart: "+err.Error())
			h.redirect(w, r, "/settings/connection")
			return
		}
	}

	h.flash(w, "Connection settings saved")
	h.redirect(w, r, "/settings/connection")
}

// SettingsConnectionTest checks a Plex URL and token without saving them.
// Blank fields fall back to the stored values so the saved connection can be
// re-tested from the same form.
func (h *Handlers) SettingsConnectionTest(w http.ResponseWriter, r *http.Request) {
	plexURL := strings.TrimSpace(r.FormValue("plex_url"))
	plexToken := strings.TrimSpace(r.FormValue("plex_token"))

	loader := config.NewLoader(h.db)
	if plexURL == "" {
		plexURL = loader.String("plex.url", "")
	}
	if plexToken == "" {
		plexToken = loader.String("plex.token", "")
	}
	if plexURL == "" || plexToken == "" {
		h.jsonError(w, "Plex URL and token are required", http.StatusBadRequest)
		return
	}
	if err := ValidateServerURL(plexURL, "Plex URL"); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	identity, err := plex.NewClient(plexURL, plexToken).TestConnection(r.Context())
	if err != nil {
		h.jsonError(w, "Connection failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "Connected to Plex " + identity.Version,
		"version": identity.Version,
		"machine": identity.MachineIdentifier,
	})
}
