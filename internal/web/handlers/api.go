package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/database"
	"github.com/saltyorg/subrewind/internal/media"
	"github.com/saltyorg/subrewind/internal/monitor"
)

// apiEvent is the JSON shape of one override audit row
type apiEvent struct {
	ID             int64     `json:"id"`
	SessionKey     string    `json:"session_key"`
	UserTitle      string    `json:"user_title"`
	PlayerTitle    string    `json:"player_title"`
	MediaTitle     string    `json:"media_title"`
	RatingKey      string    `json:"rating_key"`
	Action         string    `json:"action"`
	SavedStreamID  int64     `json:"saved_stream_id"`
	ForcedStreamID int64     `json:"forced_stream_id"`
	PositionMs     int64     `json:"position_ms"`
	Position       string    `json:"position"`
	Detail         string    `json:"detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func toAPIEvent(e *database.OverrideEvent) apiEvent {
	return apiEvent{
		ID:             e.ID,
		SessionKey:     e.SessionKey,
		UserTitle:      e.UserTitle,
		PlayerTitle:    e.PlayerTitle,
		MediaTitle:     e.MediaTitle,
		RatingKey:      e.RatingKey,
		Action:         e.Action,
		SavedStreamID:  e.SavedStreamID,
		ForcedStreamID: e.ForcedStreamID,
		PositionMs:     e.PositionMs,
		Position:       media.FormatMillis(e.PositionMs),
		Detail:         e.Detail,
		CreatedAt:      e.CreatedAt,
	}
}

// APIStatus returns the live monitor snapshot
func (h *Handlers) APIStatus(w http.ResponseWriter, r *http.Request) {
	var status monitor.Status
	if h.monitor != nil {
		status = h.monitor.Status()
	}

	version := h.getVersionInfo()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"version": version.Version,
		"monitor": status,
	})
}

// APIHistory returns a page of the override audit trail
func (h *Handlers) APIHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 500 {
		limit = n
	}
	offset := 0
	if n, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && n > 0 {
		offset = n
	}

	action := r.URL.Query().Get("action")
	switch action {
	case "", database.OverrideActionApplied, database.OverrideActionRestored, database.OverrideActionRestoreFailed:
	default:
		h.jsonError(w, "Unknown action filter", http.StatusBadRequest)
		return
	}

	events, err := h.db.ListOverrideEventsFiltered(action, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list override events")
		h.jsonError(w, "Failed to load history", http.StatusInternalServerError)
		return
	}

	total, err := h.db.CountOverrideEventsFiltered(action)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count override events")
		h.jsonError(w, "Failed to load history", http.StatusInternalServerError)
		return
	}

	out := make([]apiEvent, 0, len(events))
	for _, e := range events {
		out = append(out, toAPIEvent(e))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"events": out,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// APIStats returns override counts for the last day alongside totals
func (h *Handlers) APIStats(w http.ResponseWriter, r *http.Request) {
	applied, restored, failed, err := h.db.CountOverrideEventsLast24h()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load override stats")
		h.jsonError(w, "Failed to load stats", http.StatusInternalServerError)
		return
	}

	total, _ := h.db.CountOverrideEvents()

	var status monitor.Status
	if h.monitor != nil {
		status = h.monitor.Status()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"last_24h": map[string]int{
			"applied":        applied,
			"restored":       restored,
			"restore_failed": failed,
		},
		"total_events":     total,
		"monitor_running":  status.Running,
		"tracked_sessions": status.SessionCount,
		"active_overrides": status.ActiveOverrides,
	})
}
