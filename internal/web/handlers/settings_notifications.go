package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/database"
	"github.com/saltyorg/subrewind/internal/notification"
)

// eventTypeOption pairs an event type with its display label
type eventTypeOption struct {
	Type  string
	Label string
}

// eventTypeOptions returns all subscribable events in display order
func eventTypeOptions() []eventTypeOption {
	labels := map[notification.EventType]string{
		notification.EventOverrideApplied:     "Subtitles Forced",
		notification.EventOverrideRestored:    "Subtitles Restored",
		notification.EventRestoreFailed:       "Restore Failed",
		notification.EventMonitorStarted:      "Monitor Started",
		notification.EventMonitorStopped:      "Monitor Stopped",
		notification.EventMonitorError:        "Monitor Error",
		notification.EventConnectionLost:      "Plex Connection Lost",
		notification.EventConnectionRecovered: "Plex Connection Recovered",
	}

	var options []eventTypeOption
	for _, et := range notification.AllEventTypes() {
		options = append(options, eventTypeOption{Type: string(et), Label: labels[et]})
	}
	return options
}

// SettingsNotificationsPage renders the notifications settings page
func (h *Handlers) SettingsNotificationsPage(w http.ResponseWriter, r *http.Request) {
	providers, err := h.db.ListNotificationProviders()
	if err != nil {
		h.flashErr(w, "Failed to load notification providers")
		providers = []*database.NotificationProvider{}
	}

	logs, err := h.db.ListNotificationLogs(50)
	if err != nil {
		logs = []*database.NotificationLog{}
	}

	sent, failed, _ := h.db.GetNotificationStats()

	// Build provider data with subscriptions
	type providerData struct {
		*database.NotificationProvider
		Subscriptions map[string]bool
	}

	providersList := make([]providerData, 0, len(providers))
	for _, p := range providers {
		subs, _ := h.db.GetNotificationSubscriptions(p.ID)
		subMap := make(map[string]bool)
		for _, s := range subs {
			subMap[s.EventType] = s.Enabled
		}
		providersList = append(providersList, providerData{
			NotificationProvider: p,
			Subscriptions:        subMap,
		})
	}

	h.render(w, r, "settings.html", map[string]any{
		"Tab":        "notifications",
		"Providers":  providersList,
		"EventTypes": eventTypeOptions(),
		"Logs":       logs,
		"Stats": map[string]int{
			"Sent":   sent,
			"Failed": failed,
		},
	})
}

// NotificationProviderNew renders the new provider form
func (h *Handlers) NotificationProviderNew(w http.ResponseWriter, r *http.Request) {
	providerType := r.URL.Query().Get("type")
	if providerType == "" {
		providerType = "discord"
	}

	h.render(w, r, "settings.html", map[string]any{
		"Tab":          "notifications",
		"EditProvider": true,
		"Provider": &database.NotificationProvider{
			Type:    providerType,
			Enabled: true,
			Config:  make(map[string]string),
		},
		"EventTypes": eventTypeOptions(),
		"IsNew":      true,
	})
}

// NotificationProviderCreate creates a new notification provider
func (h *Handlers) NotificationProviderCreate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.flashErr(w, "Invalid form data")
		h.redirect(w, r, "/settings/notifications")
		return
	}

	providerType := r.FormValue("type")
	provider := &database.NotificationProvider{
		Name:    r.FormValue("name"),
		Type:    providerType,
		Enabled: r.FormValue("enabled") == "on",
		Config:  parseProviderConfig(r, providerType),
	}

	if provider.Name == "" {
		h.flashErr(w, "Name is required")
		h.redirect(w, r, "/settings/notifications/new")
		return
	}

	if err := validateProviderConfig(provider); err != nil {
		h.flashErr(w, err.Error())
		h.redirect(w, r, "/settings/notifications/new?type="+providerType)
		return
	}

	if err := h.db.CreateNotificationProvider(provider); err != nil {
		h.flashErr(w, "Failed to create provider: "+err.Error())
		h.redirect(w, r, "/settings/notifications/new")
		return
	}

	// New providers start subscribed to the override events
	for _, et := range []notification.EventType{
		notification.EventOverrideApplied,
		notification.EventOverrideRestored,
		notification.EventRestoreFailed,
	} {
		if err := h.db.SetNotificationSubscription(provider.ID, string(et), true); err != nil {
			log.Error().Err(err).Msg("Failed to seed notification subscription")
		}
	}

	h.reloadProviders()

	h.flash(w, "Notification provider created")
	h.redirect(w, r, "/settings/notifications")
}

// NotificationProviderEdit renders the edit provider form
func (h *Handlers) NotificationProviderEdit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.flashErr(w, "Invalid provider ID")
		h.redirect(w, r, "/settings/notifications")
		return
	}

	provider, err := h.db.GetNotificationProvider(id)
	if err != nil {
		h.flashErr(w, "Provider not found")
		h.redirect(w, r, "/settings/notifications")
		return
	}

	subs, _ := h.db.GetNotificationSubscriptions(id)
	subMap := make(map[string]bool)
	for _, s := range subs {
		subMap[s.EventType] = s.Enabled
	}

	h.render(w, r, "settings.html", map[string]any{
		"Tab":           "notifications",
		"EditProvider":  true,
		"Provider":      provider,
		"Subscriptions": subMap,
		"EventTypes":    eventTypeOptions(),
		"IsNew":         false,
	})
}

// NotificationProviderUpdate updates a notification provider
func (h *Handlers) NotificationProviderUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.flashErr(w, "Invalid provider ID")
		h.redirect(w, r, "/settings/notifications")
		return
	}

	if err := r.ParseForm(); err != nil {
		h.flashErr(w, "Invalid form data")
		h.redirect(w, r, "/settings/notifications")
		return
	}

	provider, err := h.db.GetNotificationProvider(id)
	if err != nil {
		h.flashErr(w, "Provider not found")
		h.redirect(w, r, "/settings/notifications")
		return
	}

	provider.Name = r.FormValue("name")
	provider.Enabled = r.FormValue("enabled") == "on"
	provider.Config = parseProviderConfig(r, provider.Type)

	if err := validateProviderConfig(provider); err != nil {
		h.flashErr(w, err.Error())
		h.redirect(w, r, "/settings/notifications/"+strconv.FormatInt(id, 10))
		return
	}

	if err := h.db.UpdateNotificationProvider(provider); err != nil {
		h.flashErr(w, "Failed to update provider: "+err.Error())
		h.redirect(w, r, "/settings/notifications/"+strconv.FormatInt(id, 10))
		return
	}

	// Update subscriptions
	var subscriptionErr error
	for _, et := range notification.AllEventTypes() {
		enabled := r.FormValue("event_"+string(et)) == "on"
		if err := h.db.SetNotificationSubscription(id, string(et), enabled); err != nil {
			subscriptionErr = err
		}
	}
	if subscriptionErr != nil {
		log.Error().Err(subscriptionErr).Msg("Failed to save some notification subscriptions")
	}

	h.reloadProviders()

	h.flash(w, "Notification provider updated")
	h.redirect(w, r, "/settings/notifications")
}

// NotificationProviderDelete deletes a notification provider
func (h *Handlers) NotificationProviderDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.jsonError(w, "Invalid provider ID", http.StatusBadRequest)
		return
	}

	if err := h.db.DeleteNotificationProvider(id); err != nil {
		h.jsonError(w, "Failed to delete provider", http.StatusInternalServerError)
		return
	}

	h.reloadProviders()

	w.Header().Set("HX-Redirect", "/settings/notifications")
	h.jsonSuccess(w, "Provider deleted")
}

// NotificationProviderTest sends a test notification
func (h *Handlers) NotificationProviderTest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.jsonError(w, "Invalid provider ID", http.StatusBadRequest)
		return
	}

	row, err := h.db.GetNotificationProvider(id)
	if err != nil {
		h.jsonError(w, "Provider not found", http.StatusNotFound)
		return
	}

	// Build a throwaway instance so disabled providers can be tested too
	provider, err := notification.BuildProvider(row)
	if err != nil {
		h.jsonError(w, "Invalid provider configuration: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := provider.Test(r.Context()); err != nil {
		h.jsonError(w, "Test failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.jsonSuccess(w, "Test notification sent")
}

// NotificationLogsClear clears old notification logs
func (h *Handlers) NotificationLogsClear(w http.ResponseWriter, r *http.Request) {
	_, err := h.db.DeleteAllNotificationLogs()
	if err != nil {
		h.flashErr(w, "Failed to clear logs")
	} else {
		h.flash(w, "Notification logs cleared")
	}
	h.redirect(w, r, "/settings/notifications")
}

// validateProviderConfig checks the type-specific fields of a provider
func validateProviderConfig(provider *database.NotificationProvider) error {
	switch provider.Type {
	case "discord":
		return ValidateWebhookURL(provider.Config["webhook_url"], "webhook URL")
	case "webhook":
		if err := ValidateWebhookURL(provider.Config["url"], "URL"); err != nil {
			return err
		}
		if err := notification.ValidateWebhookBody(provider.Config["body"]); err != nil {
			return fmt.Errorf("invalid body template: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown provider type %q", provider.Type)
	}
}

// parseProviderConfig extracts the type-specific provider config from a form
func parseProviderConfig(r *http.Request, providerType string) map[string]string {
	config := make(map[string]string)
	switch providerType {
	case "discord":
		config["webhook_url"] = r.FormValue("webhook_url")
		config["username"] = r.FormValue("username")
		config["avatar_url"] = r.FormValue("avatar_url")
	case "webhook":
		config["url"] = r.FormValue("url")
		config["method"] = r.FormValue("method")
		config["content_type"] = r.FormValue("content_type")
		config["body"] = r.FormValue("body")
		config["headers"] = r.FormValue("headers")
	}
	return config
}

// reloadProviders rebuilds the notification manager's registry after a change
func (h *Handlers) reloadProviders() {
	if h.notificationMgr == nil {
		return
	}
	if err := h.notificationMgr.ReloadProviders(); err != nil {
		log.Error().Err(err).Msg("Failed to reload notification providers")
	}
}
