package handlers

import (
	"fmt"
	"net/url"
)

// FieldValidationError represents a validation error for a form field
type FieldValidationError struct {
	Field   string
	Message string
}

func (e FieldValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateServerURL performs validation on a media server base URL.
// It checks for:
// - URL is not empty
// - Scheme is http or https
// - A host is present
// - No query string or fragment (a paste error for a base URL)
func ValidateServerURL(raw, fieldName string) error {
	if raw == "" {
		return FieldValidationError{Field: fieldName, Message: "URL cannot be empty"}
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return FieldValidationError{Field: fieldName, Message: "not a valid URL"}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return FieldValidationError{Field: fieldName, Message: "URL must start with http:// or https://"}
	}

	if parsed.Host == "" {
		return FieldValidationError{Field: fieldName, Message: "URL has no host"}
	}

	// A base URL carries no query or fragment; their presence usually means
	// a browser address or API call was pasted instead of the server address
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return FieldValidationError{Field: fieldName, Message: "URL must not contain a query string or fragment"}
	}

	return nil
}

// ValidateWebhookURL validates a notification webhook endpoint. Unlike server
// base URLs, webhook URLs may carry a query string since some services pass
// tokens there.
func ValidateWebhookURL(raw, fieldName string) error {
	if raw == "" {
		return FieldValidationError{Field: fieldName, Message: "URL cannot be empty"}
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return FieldValidationError{Field: fieldName, Message: "not a valid URL"}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return FieldValidationError{Field: fieldName, Message: "URL must start with http:// or https://"}
	}

	if parsed.Host == "" {
		return FieldValidationError{Field: fieldName, Message: "URL has no host"}
	}

	return nil
}
