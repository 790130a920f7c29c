package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/database"
	"github.com/saltyorg/subrewind/internal/media"
)

// HistoryItem represents one override event for the history page
type HistoryItem struct {
	*database.OverrideEvent
	Position string
}

// HistoryPage renders the override audit trail
func (h *Handlers) HistoryPage(w http.ResponseWriter, r *http.Request) {
	// Parse query params
	page := 1
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		page = p
	}

	action := r.URL.Query().Get("action")
	switch action {
	case database.OverrideActionApplied, database.OverrideActionRestored, database.OverrideActionRestoreFailed:
	default:
		action = ""
	}

	limit := 50
	offset := (page - 1) * limit

	events, err := h.db.ListOverrideEventsFiltered(action, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list override events")
		h.flashErr(w, "Failed to load override history")
		h.redirect(w, r, "/")
		return
	}

	items := make([]HistoryItem, 0, len(events))
	for _, e := range events {
		items = append(items, HistoryItem{
			OverrideEvent: e,
			Position:      media.FormatMillis(e.PositionMs),
		})
	}

	totalCount, _ := h.db.CountOverrideEventsFiltered(action)
	totalPages := max((totalCount+limit-1)/limit, 1)

	stats, _ := h.db.GetOverrideStatsByAction()

	h.render(w, r, "history.html", map[string]any{
		"Events":     items,
		"Page":       page,
		"TotalPages": totalPages,
		"TotalCount": totalCount,
		"Action":     action,
		"Stats":      stats,
		"HasPrev":    page > 1,
		"HasNext":    page < totalPages,
		"PrevPage":   page - 1,
		"NextPage":   page + 1,
	})
}

// HistoryClear deletes the entire override audit trail
func (h *Handlers) HistoryClear(w http.ResponseWriter, r *http.Request) {
	count, err := h.db.DeleteAllOverrideEvents()
	if err != nil {
		log.Error().Err(err).Msg("Failed to clear override history")
		h.flashErr(w, "Failed to clear override history")
		h.redirect(w, r, "/history")
		return
	}

	h.flash(w, "Cleared "+strconv.FormatInt(count, 10)+" override events")
	h.redirect(w, r, "/history")
}
