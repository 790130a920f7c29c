package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/saltyorg/subrewind/internal/config"
	"github.com/saltyorg/subrewind/internal/httpclient"
)

// DiscordProvider sends notifications via Discord webhooks
type DiscordProvider struct {
	name       string
	webhookURL string
	username   string
	avatarURL  string
	client     *http.Client
}

// NewDiscordProvider creates a Discord provider from stored config. Required
// key: webhook_url. Optional: username, avatar_url.
func NewDiscordProvider(name string, cfg map[string]string) (*DiscordProvider, error) {
	webhookURL := cfg["webhook_url"]
	if webhookURL == "" {
		return nil, fmt.Errorf("discord provider %q: webhook_url not configured", name)
	}

	return &DiscordProvider{
		name:       name,
		webhookURL: webhookURL,
		username:   cfg["username"],
		avatarURL:  cfg["avatar_url"],
		client:     httpclient.NewTraceClient("discord", config.GetTimeouts().HTTPClient),
	}, nil
}

// Name returns the provider name
func (d *DiscordProvider) Name() string {
	return d.name
}

// Send sends a notification to Discord
func (d *DiscordProvider) Send(ctx context.Context, event Event) error {
	return d.sendWebhook(ctx, d.buildPayload(event))
}

// Test sends a test notification
func (d *DiscordProvider) Test(ctx context.Context) error {
	event := Event{
		Type:      "test",
		Title:     "Test Notification",
		Message:   "This is a test notification from Subrewind. If you see this, Discord notifications are working!",
		Timestamp: time.Now(),
	}

	return d.sendWebhook(ctx, d.buildPayload(event))
}

func (d *DiscordProvider) buildPayload(event Event) discordWebhookPayload {
	payload := discordWebhookPayload{
		Username:  d.username,
		AvatarURL: d.avatarURL,
		Embeds:    []discordEmbed{d.buildEmbed(event)},
	}

	if payload.Username == "" {
		payload.Username = "Subrewind"
	}

	return payload
}

// buildEmbed creates a Discord embed from an event
func (d *DiscordProvider) buildEmbed(event Event) discordEmbed {
	embed := discordEmbed{
		Title:       event.Title,
		Description: event.Message,
		Color:       colorForEvent(event.Type),
		Timestamp:   event.Timestamp.Format(time.RFC3339),
		Footer: &discordEmbedFooter{
			Text: "Subrewind",
		},
	}

	// Add fields if present
	if len(event.Fields) > 0 {
		for name, value := range event.Fields {
			embed.Fields = append(embed.Fields, discordEmbedField{
				Name:   name,
				Value:  value,
				Inline: true,
			})
		}
	}

	return embed
}

// colorForEvent returns an embed color based on event type
func colorForEvent(eventType EventType) int {
	switch eventType {
	case EventOverrideApplied:
		return 0x0099FF // Blue
	case EventOverrideRestored, EventMonitorStarted, EventConnectionRecovered:
		return 0x00FF00 // Green
	case EventRestoreFailed, EventMonitorError, EventConnectionLost:
		return 0xFF0000 // Red
	case EventMonitorStopped:
		return 0xFFFF00 // Yellow
	default:
		return 0x808080 // Gray
	}
}

// sendWebhook sends a webhook payload to Discord
func (d *DiscordProvider) sendWebhook(ctx context.Context, payload discordWebhookPayload) error {
	return sendJSONRequest(ctx, d.client, "POST", d.webhookURL, payload)
}

// Discord webhook payload structures
type discordWebhookPayload struct {
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Content   string         `json:"content,omitempty"`
	Embeds    []discordEmbed `json:"embeds,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	URL         string              `json:"url,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

type discordEmbedFooter struct {
	Text    string `json:"text,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}
