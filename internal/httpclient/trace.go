package httpclient

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxLoggedBody caps how much of a response body is captured for trace
// logging. Session payloads from Plex can run to hundreds of KB.
const maxLoggedBody = 8 * 1024

type traceTransport struct {
	base http.RoundTripper
	name string
}

// NewTraceTransport returns a RoundTripper that logs requests at trace level.
func NewTraceTransport(name string, base http.RoundTripper) http.RoundTripper {
	return &traceTransport{
		base: base,
		name: name,
	}
}

// NewTraceClient returns an HTTP client that logs requests at trace level.
func NewTraceClient(name string, timeout time.Duration) *http.Client {
	return Wrap(&http.Client{Timeout: timeout}, name)
}

// Wrap applies trace logging to an existing HTTP client.
func Wrap(client *http.Client, name string) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	client.Transport = NewTraceTransport(name, client.Transport)
	return client
}

func (t *traceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	// Body capture is only worth the copy when trace is actually enabled.
	tracing := zerolog.GlobalLevel() <= zerolog.TraceLevel

	urlStr := redactURL(req.URL)
	start := time.Now()

	if tracing {
		log.Trace().
			Str("client", t.name).
			Str("method", req.Method).
			Str("url", urlStr).
			Msg("HTTP request")
	}

	resp, err := base.RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		if tracing {
			log.Trace().
				Str("client", t.name).
				Str("method", req.Method).
				Str("url", urlStr).
				Dur("duration", duration).
				Err(err).
				Msg("HTTP request failed")
		}
		return nil, err
	}

	if !tracing {
		return resp, nil
	}

	bodyBytes, truncated, readErr := readAndRestoreBody(resp)
	logEvent := log.Trace().
		Str("client", t.name).
		Str("method", req.Method).
		Str("url", urlStr).
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Int("body_length", len(bodyBytes)).
		Bool("body_truncated", truncated)

	if readErr != nil {
		logEvent.Err(readErr)
	}

	if len(bodyBytes) > 0 && !truncated {
		if json.Valid(bodyBytes) {
			logEvent.RawJSON("body", bodyBytes)
		} else {
			logEvent.Str("body", string(bodyBytes))
		}
	}

	logEvent.Msg("HTTP response")

	return resp, nil
}

// readAndRestoreBody drains up to maxLoggedBody bytes for logging and stitches
// the response body back together so the caller still reads the full payload.
func readAndRestoreBody(resp *http.Response) ([]byte, bool, error) {
	if resp == nil || resp.Body == nil {
		return nil, false, nil
	}

	head := make([]byte, maxLoggedBody)
	n, err := io.ReadFull(resp.Body, head)
	head = head[:n]

	switch err {
	case nil:
		// More body remains beyond the captured head.
		resp.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(head), resp.Body), resp.Body}
		return head, true, nil
	case io.EOF, io.ErrUnexpectedEOF:
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(head))
		return head, false, nil
	default:
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(head))
		return head, false, err
	}
}

func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	copyURL := *u
	if copyURL.RawQuery == "" {
		return copyURL.String()
	}

	q := copyURL.Query()
	for key := range q {
		if isSensitiveQueryKey(key) {
			q.Set(key, "redacted")
		}
	}

	copyURL.RawQuery = q.Encode()
	return copyURL.String()
}

func isSensitiveQueryKey(key string) bool {
	switch strings.ToLower(key) {
	case "apikey", "api_key", "api-key", "token", "access_token", "x-plex-token", "authorization", "auth":
		return true
	default:
		return false
	}
}
