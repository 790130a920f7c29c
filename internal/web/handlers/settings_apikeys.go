package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/database"
)

// SettingsAPIKeysPage renders the API keys settings page
func (h *Handlers) SettingsAPIKeysPage(w http.ResponseWriter, r *http.Request) {
	keys, err := h.apiKeyService.List()
	if err != nil {
		h.flashErr(w, "Failed to load API keys")
		keys = []*database.APIKey{}
	}

	h.render(w, r, "settings.html", map[string]any{
		"Tab":  "apikeys",
		"Keys": keys,
	})
}

// APIKeyCreate creates a new API key. The raw key is returned in the JSON
// response and shown exactly once; only its hash is stored.
func (h *Handlers) APIKeyCreate(w http.ResponseWriter, r *http.Request) {
	record, key, err := h.apiKeyService.Create(r.FormValue("name"))
	if err != nil {
		h.jsonError(w, "Failed to create API key: "+err.Error(), http.StatusBadRequest)
		return
	}

	log.Info().Str("name", record.Name).Msg("API key created")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"message": "API key created. Copy it now; it will not be shown again.",
		"name":    record.Name,
		"key":     key,
	})
}

// APIKeyDelete removes an API key
func (h *Handlers) APIKeyDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.jsonError(w, "Invalid API key ID", http.StatusBadRequest)
		return
	}

	if err := h.apiKeyService.Delete(id); err != nil {
		h.jsonError(w, "Failed to delete API key", http.StatusInternalServerError)
		return
	}

	log.Info().Int64("key_id", id).Msg("API key deleted")

	w.Header().Set("HX-Redirect", "/settings/apikeys")
	h.jsonSuccess(w, "API key deleted")
}
