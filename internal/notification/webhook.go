package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/saltyorg/subrewind/internal/config"
	"github.com/saltyorg/subrewind/internal/httpclient"
)

// WebhookProvider sends notifications via generic HTTP webhooks
type WebhookProvider struct {
	name        string
	url         string
	method      string
	contentType string
	headers     map[string]string
	tmpl        *template.Template
	client      *http.Client
}

// NewWebhookProvider creates a webhook provider from stored config. Required
// key: url. Optional: method (default POST), content_type (default
// application/json), headers (key:value lines), body (Go text/template;
// empty falls back to the default JSON body).
func NewWebhookProvider(name string, cfg map[string]string) (*WebhookProvider, error) {
	url := cfg["url"]
	if url == "" {
		return nil, fmt.Errorf("webhook provider %q: url not configured", name)
	}

	method := strings.ToUpper(cfg["method"])
	if method == "" {
		method = "POST"
	}

	contentType := cfg["content_type"]
	if contentType == "" {
		contentType = "application/json"
	}

	body := cfg["body"]
	if body == "" {
		body = DefaultWebhookBody()
	}
	tmpl, err := template.New(name).Parse(body)
	if err != nil {
		return nil, fmt.Errorf("webhook provider %q: invalid body template: %w", name, err)
	}

	return &WebhookProvider{
		name:        name,
		url:         url,
		method:      method,
		contentType: contentType,
		headers:     ParseWebhookHeaders(cfg["headers"]),
		tmpl:        tmpl,
		client:      httpclient.NewTraceClient("webhook", config.GetTimeouts().HTTPClient),
	}, nil
}

// Name returns the provider name
func (w *WebhookProvider) Name() string {
	return w.name
}

// webhookTemplateData holds the data available for template rendering
type webhookTemplateData struct {
	Type       string
	Title      string
	Message    string
	Timestamp  string
	Fields     map[string]string
	FieldsJSON string
}

// Send sends a notification via the webhook
func (w *WebhookProvider) Send(ctx context.Context, event Event) error {
	body, err := w.renderBody(event)
	if err != nil {
		return fmt.Errorf("failed to render body template: %w", err)
	}

	return w.sendRequest(ctx, body)
}

// Test sends a test notification
func (w *WebhookProvider) Test(ctx context.Context) error {
	return w.Send(ctx, Event{
		Type:      "test",
		Title:     "Test Notification",
		Message:   "This is a test notification from Subrewind. If you see this, webhook notifications are working!",
		Timestamp: time.Now(),
		Fields: map[string]string{
			"source": "subrewind",
			"test":   "true",
		},
	})
}

// renderBody renders the body template with event data
func (w *WebhookProvider) renderBody(event Event) (string, error) {
	fieldsJSON, _ := json.Marshal(event.Fields)
	if event.Fields == nil {
		fieldsJSON = []byte("{}")
	}

	data := webhookTemplateData{
		Type:       string(event.Type),
		Title:      event.Title,
		Message:    event.Message,
		Timestamp:  event.Timestamp.Format(time.RFC3339),
		Fields:     event.Fields,
		FieldsJSON: string(fieldsJSON),
	}

	var buf bytes.Buffer
	if err := w.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// sendRequest sends the HTTP request to the webhook URL
func (w *WebhookProvider) sendRequest(ctx context.Context, body string) error {
	req, err := http.NewRequestWithContext(ctx, w.method, w.url, bytes.NewReader([]byte(body)))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", w.contentType)

	for key, value := range w.headers {
		req.Header.Set(key, value)
	}

	return doRequest(w.client, req)
}

// DefaultWebhookBody returns the default webhook body template
func DefaultWebhookBody() string {
	return `{
  "event": "{{.Type}}",
  "title": "{{.Title}}",
  "message": "{{.Message}}",
  "timestamp": "{{.Timestamp}}",
  "fields": {{.FieldsJSON}}
}`
}

// ValidateWebhookBody validates a webhook body template
func ValidateWebhookBody(body string) error {
	if body == "" {
		return nil // Empty body uses default, which is valid
	}

	_, err := template.New("validate").Parse(body)
	if err != nil {
		return fmt.Errorf("invalid template syntax: %w", err)
	}

	return nil
}

// ParseWebhookHeaders parses headers from form data format (key1:value1\nkey2:value2)
func ParseWebhookHeaders(headersStr string) map[string]string {
	headers := make(map[string]string)
	if headersStr == "" {
		return headers
	}

	lines := strings.SplitSeq(headersStr, "\n")
	for line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			if key != "" {
				headers[key] = value
			}
		}
	}

	return headers
}
