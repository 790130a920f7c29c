package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/database"
	"github.com/saltyorg/subrewind/internal/monitor"
)

// DashboardStats contains summary statistics for the last 24 hours
type DashboardStats struct {
	TrackedSessions int
	ActiveOverrides int
	AppliedToday    int
	RestoredToday   int
	FailedToday     int
	TotalEvents     int
}

// DashboardData contains data for the dashboard page
type DashboardData struct {
	Status         monitor.Status
	Stats          DashboardStats
	RecentEvents   []*database.OverrideEvent
	PlexConfigured bool
	MonitorEnabled bool
}

// Dashboard renders the main dashboard
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	data := DashboardData{}

	if h.monitor != nil {
		data.Status = h.monitor.Status()
	}
	data.Stats.TrackedSessions = data.Status.SessionCount
	data.Stats.ActiveOverrides = data.Status.ActiveOverrides

	if url, _ := h.db.GetSetting("plex.url"); url != "" {
		data.PlexConfigured = true
	}
	data.MonitorEnabled = true
	if val, _ := h.db.GetSetting("monitor.enabled"); val == "false" {
		data.MonitorEnabled = false
	}

	applied, restored, failed, err := h.db.CountOverrideEventsLast24h()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load override stats")
	}
	data.Stats.AppliedToday = applied
	data.Stats.RestoredToday = restored
	data.Stats.FailedToday = failed

	if total, err := h.db.CountOverrideEvents(); err == nil {
		data.Stats.TotalEvents = total
	}

	events, err := h.db.ListOverrideEvents(10, 0)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load recent override events")
	}
	data.RecentEvents = events

	h.render(w, r, "dashboard.html", data)
}

// DashboardSessionsPartial renders the active sessions table rows for the
// dashboard's live refresh
func (h *Handlers) DashboardSessionsPartial(w http.ResponseWriter, r *http.Request) {
	var status monitor.Status
	if h.monitor != nil {
		status = h.monitor.Status()
	}
	h.renderPartial(w, "dashboard.html", "session_rows", status)
}

// DashboardEventsPartial renders the recent events table rows for the
// dashboard's live refresh
func (h *Handlers) DashboardEventsPartial(w http.ResponseWriter, r *http.Request) {
	events, err := h.db.ListOverrideEvents(10, 0)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load recent override events")
	}
	h.renderPartial(w, "dashboard.html", "event_rows", events)
}
