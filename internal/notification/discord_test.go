package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewDiscordProvider_RequiresWebhookURL(t *testing.T) {
	if _, err := NewDiscordProvider("discord", map[string]string{}); err == nil {
		t.Fatal("expected error when webhook_url is missing")
	}
}

func TestBuildPayload_DefaultUsername(t *testing.T) {
	p, err := NewDiscordProvider("discord", map[string]string{
		"webhook_url": "https://discord.com/api/webhooks/1/token",
	})
	if err != nil {
		t.Fatalf("NewDiscordProvider failed: %v", err)
	}

	payload := p.buildPayload(Event{Type: EventMonitorStarted, Title: "Monitor started"})
	if payload.Username != "Subrewind" {
		t.Errorf("Username = %q, want Subrewind fallback", payload.Username)
	}
	if len(payload.Embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(payload.Embeds))
	}
}

func TestBuildEmbed_CarriesEventData(t *testing.T) {
	p, err := NewDiscordProvider("discord", map[string]string{
		"webhook_url": "https://discord.com/api/webhooks/1/token",
		"username":    "SubBot",
	})
	if err != nil {
		t.Fatalf("NewDiscordProvider failed: %v", err)
	}

	event := Event{
		Type:      EventOverrideApplied,
		Title:     "Subtitles enabled",
		Message:   "Rewind detected on The Matrix",
		Timestamp: time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
		Fields:    map[string]string{"user": "alice"},
	}

	embed := p.buildEmbed(event)
	if embed.Title != event.Title {
		t.Errorf("Title = %q, want %q", embed.Title, event.Title)
	}
	if embed.Description != event.Message {
		t.Errorf("Description = %q, want %q", embed.Description, event.Message)
	}
	if embed.Timestamp != "2026-03-14T15:09:26Z" {
		t.Errorf("Timestamp = %q, want RFC3339", embed.Timestamp)
	}
	if len(embed.Fields) != 1 || embed.Fields[0].Name != "user" || embed.Fields[0].Value != "alice" {
		t.Errorf("Fields = %+v, want single user field", embed.Fields)
	}
}

func TestColorForEvent(t *testing.T) {
	if got := colorForEvent(EventOverrideApplied); got != 0x0099FF {
		t.Errorf("applied color = %#x, want blue", got)
	}
	if got := colorForEvent(EventOverrideRestored); got != 0x00FF00 {
		t.Errorf("restored color = %#x, want green", got)
	}
	if got := colorForEvent(EventRestoreFailed); got != 0xFF0000 {
		t.Errorf("failed color = %#x, want red", got)
	}
	if got := colorForEvent(EventType("bogus")); got != 0x808080 {
		t.Errorf("unknown color = %#x, want gray", got)
	}
}

func TestDiscordProvider_SendPostsEmbed(t *testing.T) {
	var gotPayload discordWebhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	p, err := NewDiscordProvider("discord", map[string]string{
		"webhook_url": server.URL,
		"username":    "SubBot",
	})
	if err != nil {
		t.Fatalf("NewDiscordProvider failed: %v", err)
	}

	err = p.Send(context.Background(), Event{
		Type:      EventConnectionLost,
		Title:     "Plex connection lost",
		Message:   "The monitor could not reach the Plex server",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotPayload.Username != "SubBot" {
		t.Errorf("Username = %q, want SubBot", gotPayload.Username)
	}
	if len(gotPayload.Embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(gotPayload.Embeds))
	}
	if gotPayload.Embeds[0].Color != 0xFF0000 {
		t.Errorf("Color = %#x, want red for connection loss", gotPayload.Embeds[0].Color)
	}
}
