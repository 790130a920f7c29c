package handlers

import (
	"strings"
	"testing"
)

func TestValidateServerURL_Accepts(t *testing.T) {
	valid := []string{
		"http://192.168.1.50:32400",
		"https://plex.example.com",
		"https://plex.example.com:32400/prefix",
	}

	for _, raw := range valid {
		if err := ValidateServerURL(raw, "Plex URL"); err != nil {
			t.Errorf("ValidateServerURL(%q) = %v, want nil", raw, err)
		}
	}
}

func TestValidateServerURL_Rejects(t *testing.T) {
	cases := []struct {
		raw    string
		reason string
	}{
		{"", "empty"},
		{"192.168.1.50:32400", "missing scheme"},
		{"ftp://plex.example.com", "wrong scheme"},
		{"http://", "no host"},
		{"http://plex.example.com/web/index.html#!/settings", "fragment"},
		{"http://plex.example.com/?X-Plex-Token=abc", "query string"},
	}

	for _, c := range cases {
		if err := ValidateServerURL(c.raw, "Plex URL"); err == nil {
			t.Errorf("ValidateServerURL(%q) = nil, want error (%s)", c.raw, c.reason)
		}
	}
}

func TestValidateServerURL_ErrorNamesField(t *testing.T) {
	err := ValidateServerURL("", "Plex URL")
	if err == nil {
		t.Fatal("expected error for empty URL")
	}
	if !strings.HasPrefix(err.Error(), "Plex URL: ") {
		t.Errorf("error = %q, want it prefixed with the field name", err.Error())
	}
}

func TestValidateWebhookURL_AllowsQueryString(t *testing.T) {
	raw := "https://hooks.example.com/notify?token=abc123"
	if err := ValidateWebhookURL(raw, "webhook URL"); err != nil {
		t.Errorf("ValidateWebhookURL(%q) = %v, want nil", raw, err)
	}
}

func TestValidateWebhookURL_Rejects(t *testing.T) {
	cases := []string{
		"",
		"hooks.example.com/notify",
		"gopher://hooks.example.com",
		"https://",
	}

	for _, raw := range cases {
		if err := ValidateWebhookURL(raw, "webhook URL"); err == nil {
			t.Errorf("ValidateWebhookURL(%q) = nil, want error", raw)
		}
	}
}
