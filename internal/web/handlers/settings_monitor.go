package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/config"
	"github.com/saltyorg/subrewind/internal/monitor"
	"github.com/saltyorg/subrewind/internal/web/sse"
)

// MonitorSettings holds the detector tuning for display
type MonitorSettings struct {
	RewindThresholdSeconds int
	MaxRewindSeconds       int
	ActivePollSeconds      int
	IdlePollSeconds        int
	GraceMissedPolls       int
	ForwardConfirmCycles   int
	JitterToleranceSeconds float64
	MinSampleIntervalMs    int
	CommandRetryLimit      int
	PreferredLanguage      string
}

// SettingsMonitorPage renders the monitor tuning page
func (h *Handlers) SettingsMonitorPage(w http.ResponseWriter, r *http.Request) {
	opts := monitor.OptionsFromSettings(config.NewLoader(h.db))

	settings := MonitorSettings{
		RewindThresholdSeconds: int(opts.RewindThreshold / time.Second),
		MaxRewindSeconds:       int(opts.MaxRewind / time.Second),
		ActivePollSeconds:      int(opts.ActiveInterval / time.Second),
		IdlePollSeconds:        int(opts.IdleInterval / time.Second),
		GraceMissedPolls:       opts.GraceMissedPolls,
		ForwardConfirmCycles:   opts.ForwardConfirmCycles,
		JitterToleranceSeconds: opts.JitterTolerance.Seconds(),
		MinSampleIntervalMs:    int(opts.MinSampleInterval / time.Millisecond),
		CommandRetryLimit:      opts.CommandRetryLimit,
		PreferredLanguage:      opts.PreferredLanguage,
	}

	h.render(w, r, "settings.html", map[string]any{
		"Tab":      "monitor",
		"Settings": settings,
	})
}

// SettingsMonitorUpdate validates and saves the monitor tuning, then reloads
// the running monitor so the new values take effect immediately.
func (h *Handlers) SettingsMonitorUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.flashErr(w, "Invalid form data")
		h.redirect(w, r, "/settings/monitor")
		return
	}

	current := monitor.OptionsFromSettings(config.NewLoader(h.db))

	opts := monitor.Options{
		RewindThreshold:      formSeconds(r, "rewind_threshold_seconds", current.RewindThreshold),
		MaxRewind:            formSeconds(r, "max_rewind_seconds", current.MaxRewind),
		ActiveInterval:       formSeconds(r, "active_poll_seconds", current.ActiveInterval),
		IdleInterval:         formSeconds(r, "idle_poll_seconds", current.IdleInterval),
		GraceMissedPolls:     formInt(r, "grace_missed_polls", current.GraceMissedPolls),
		ForwardConfirmCycles: formInt(r, "forward_confirm_cycles", current.ForwardConfirmCycles),
		JitterTolerance:      formFloatSeconds(r, "jitter_tolerance_seconds", current.JitterTolerance),
		MinSampleInterval:    time.Duration(formInt(r, "min_sample_interval_ms", int(current.MinSampleInterval/time.Millisecond))) * time.Millisecond,
		CommandRetryLimit:    formInt(r, "command_retry_limit", current.CommandRetryLimit),
		PreferredLanguage:    strings.TrimSpace(r.FormValue("preferred_subtitle_language")),
	}

	if err := opts.Validate(); err != nil {
		h.flashErr(w, "Invalid monitor settings: "+err.Error())
		h.redirect(w, r, "/settings/monitor")
		return
	}

	values := map[string]string{
		"monitor.rewind_threshold_seconds":    strconv.Itoa(int(opts.RewindThreshold / time.Second)),
		"monitor.max_rewind_seconds":          strconv.Itoa(int(opts.MaxRewind / time.Second)),
		"monitor.active_poll_seconds":         strconv.Itoa(int(opts.ActiveInterval / time.Second)),
		"monitor.idle_poll_seconds":           strconv.Itoa(int(opts.IdleInterval / time.Second)),
		"monitor.grace_missed_polls":          strconv.Itoa(opts.GraceMissedPolls),
		"monitor.forward_confirm_cycles":      strconv.Itoa(opts.ForwardConfirmCycles),
		"monitor.jitter_tolerance_seconds":    strconv.FormatFloat(opts.JitterTolerance.Seconds(), 'f', -1, 64),
		"monitor.min_sample_interval_ms":      strconv.Itoa(int(opts.MinSampleInterval / time.Millisecond)),
		"monitor.command_retry_limit":         strconv.Itoa(opts.CommandRetryLimit),
		"monitor.preferred_subtitle_language": opts.PreferredLanguage,
	}

	var saveErr error
	for key, value := range values {
		if err := h.db.SetSetting(key, value); err != nil {
			saveErr = err
		}
	}
	if saveErr != nil {
		h.flashErr(w, "Failed to save some settings")
		h.redirect(w, r, "/settings/monitor")
		return
	}

	if h.sseBroker != nil {
		h.sseBroker.Broadcast(sse.Event{Type: sse.EventSettingsChanged, Data: map[string]any{"section": "monitor"}})
	}

	if h.monitor != nil {
		if err := h.monitor.Reload(); err != nil {
			log.Error().Err(err).Msg("Failed to restart monitor after settings change")
			h.flashErr(w, "Settings saved, but the monitor failed to restart: "+err.Error())
			h.redirect(w, r, "/settings/monitor")
			return
		}
	}

	h.flash(w, "Monitor settings saved")
	h.redirect(w, r, "/settings/monitor")
}

// formInt reads an integer form field, keeping the current value when the
// field is missing or malformed.
func formInt(r *http.Request, field string, current int) int {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return current
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return current
	}
	return v
}

// formSeconds reads a whole-seconds form field as a duration.
func formSeconds(r *http.Request, field string, current time.Duration) time.Duration {
	return time.Duration(formInt(r, field, int(current/time.Second))) * time.Second
}

// formFloatSeconds reads a fractional-seconds form field as a duration.
func formFloatSeconds(r *http.Request, field string, current time.Duration) time.Duration {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return current
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return current
	}
	return time.Duration(v * float64(time.Second))
}
