package handlers

import (
	"net/http"
	"strconv"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/config"
	"github.com/saltyorg/subrewind/internal/logging"
)

// GeneralSettings holds the general configuration for display
type GeneralSettings struct {
	LogLevel            string
	LogMaxSizeMB        int
	LogMaxBackups       int
	LogMaxAgeDays       int
	LogCompress         bool
	HistoryRetention    int
	NotificationLogDays int
	MaintenanceSchedule string
}

// SettingsPage renders the general settings page
func (h *Handlers) SettingsPage(w http.ResponseWriter, r *http.Request) {
	loader := config.NewLoader(h.db)

	settings := GeneralSettings{
		LogLevel:            loader.String("log.level", "info"),
		LogMaxSizeMB:        loader.Int("log.max_size_mb", logging.DefaultMaxSizeMB),
		LogMaxBackups:       loader.Int("log.max_backups", logging.DefaultMaxBackups),
		LogMaxAgeDays:       loader.Int("log.max_age_days", logging.DefaultMaxAgeDays),
		LogCompress:         loader.Bool("log.compress", logging.DefaultCompress),
		HistoryRetention:    loader.Int("history.retention_days", 30),
		NotificationLogDays: loader.Int("notifications.log_days", 14),
		MaintenanceSchedule: loader.String("maintenance.schedule", "30 3 * * *"),
	}

	h.render(w, r, "settings.html", map[string]any{
		"Tab":      "general",
		"Settings": settings,
	})
}

// SettingsUpdate handles general settings updates
func (h *Handlers) SettingsUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.flashErr(w, "Invalid form data")
		h.redirect(w, r, "/settings")
		return
	}

	// Parse form values
	logLevel := r.FormValue("log_level")
	logMaxSizeMB, _ := strconv.Atoi(r.FormValue("log_max_size_mb"))
	logMaxBackups, _ := strconv.Atoi(r.FormValue("log_max_backups"))
	logMaxAgeDays, _ := strconv.Atoi(r.FormValue("log_max_age_days"))
	logCompress := r.FormValue("log_compress") == "on"
	historyRetention, _ := strconv.Atoi(r.FormValue("history_retention_days"))
	notificationLogDays, _ := strconv.Atoi(r.FormValue("notification_log_days"))
	maintenanceSchedule := r.FormValue("maintenance_schedule")

	// Validate log level
	switch logLevel {
	case "trace", "debug", "info":
		// valid
	default:
		logLevel = "info"
	}

	// Validate
	if logMaxSizeMB < 1 {
		logMaxSizeMB = logging.DefaultMaxSizeMB
	}
	if logMaxBackups < 0 {
		logMaxBackups = logging.DefaultMaxBackups
	}
	if logMaxAgeDays < 0 {
		logMaxAgeDays = logging.DefaultMaxAgeDays
	}
	if historyRetention < 0 {
		historyRetention = 0 // 0 = keep forever
	}
	if notificationLogDays < 0 {
		notificationLogDays = 0
	}
	if maintenanceSchedule != "" {
		if _, err := cron.ParseStandard(maintenanceSchedule); err != nil {
			h.flashErr(w, "Invalid maintenance schedule: "+err.Error())
			h.redirect(w, r, "/settings")
			return
		}
	}

	// Save to database
	var saveErr error
	if err := h.db.SetSetting("log.level", logLevel); err != nil {
		saveErr = err
	}
	if err := h.db.SetSetting("log.max_size_mb", strconv.Itoa(logMaxSizeMB)); err != nil {
		saveErr = err
	}
	if err := h.db.SetSetting("log.max_backups", strconv.Itoa(logMaxBackups)); err != nil {
		saveErr = err
	}
	if err := h.db.SetSetting("log.max_age_days", strconv.Itoa(logMaxAgeDays)); err != nil {
		saveErr = err
	}
	if err := h.db.SetSetting("log.compress", strconv.FormatBool(logCompress)); err != nil {
		saveErr = err
	}
	if err := h.db.SetSetting("history.retention_days", strconv.Itoa(historyRetention)); err != nil {
		saveErr = err
	}
	if err := h.db.SetSetting("notifications.log_days", strconv.Itoa(notificationLogDays)); err != nil {
		saveErr = err
	}
	if maintenanceSchedule != "" {
		if err := h.db.SetSetting("maintenance.schedule", maintenanceSchedule); err != nil {
			saveErr = err
		}
	}

	if saveErr != nil {
		h.flashErr(w, "Failed to save some settings")
		h.redirect(w, r, "/settings")
		return
	}

	// Apply logging changes immediately (level + rotation settings)
	loader := config.NewLoader(h.db)
	logging.Apply(logLevel, loader, logging.FilePathForDB(h.db.Path()))

	if h.maintenance != nil {
		if err := h.maintenance.Reschedule(); err != nil {
			log.Error().Err(err).Msg("Failed to reschedule maintenance job")
		}
	}

	log.Info().Str("log_level", logLevel).Msg("General settings saved")
	h.flash(w, "Settings saved")
	h.redirect(w, r, "/settings")
}

// SettingsAboutPage renders the about settings page
func (h *Handlers) SettingsAboutPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "settings.html", map[string]any{
		"Tab": "about",
	})
}
