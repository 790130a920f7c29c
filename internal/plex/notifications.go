package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// PlaySessionNotification is a playback progress event pushed over the
// server's notifications WebSocket.
type PlaySessionNotification struct {
	SessionKey string `json:"sessionKey"`
	ClientID   string `json:"clientIdentifier"`
	Key        string `json:"key"`
	RatingKey  string `json:"ratingKey"`
	ViewOffset int64  `json:"viewOffset"`
	State      string `json:"state"` // playing, paused, buffering, stopped
}

// WatchNotifications holds a WebSocket connection to the server's
// notification feed and invokes onPlaying for every playback state event.
// It blocks until the context is cancelled, reconnecting with exponential
// backoff after connection failures.
func (c *Client) WatchNotifications(ctx context.Context, onPlaying func(PlaySessionNotification)) error {
	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 5 * time.Minute
	)

	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.watchOnce(ctx, onPlaying)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			log.Warn().
				Err(err).
				Dur("backoff", backoff).
				Msg("Plex WebSocket disconnected, reconnecting")

			// Wait before reconnecting with backoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			// Exponential backoff with cap
			backoff = min(backoff*2, maxBackoff)
		} else {
			// Reset backoff on successful connection that ended gracefully
			backoff = initialBackoff
		}
	}
}

// watchOnce establishes a single WebSocket connection and handles messages.
// Note: Plex doesn't handle standard WebSocket ping frames well, so none are
// sent. The server's own notification traffic keeps the connection alive.
func (c *Client) watchOnce(ctx context.Context, onPlaying func(PlaySessionNotification)) error {
	wsURL, err := c.notificationURL()
	if err != nil {
		return fmt.Errorf("failed to build WebSocket URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("WebSocket dial failed: %w", err)
	}
	defer conn.Close()

	log.Info().Msg("Connected to Plex notification WebSocket")

	// Create a channel for read errors
	readErrCh := make(chan error, 1)

	// Start reading messages in a goroutine
	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				readErrCh <- err
				return
			}

			var notification plexWebSocketNotification
			if err := json.Unmarshal(message, &notification); err != nil {
				log.Debug().
					Err(err).
					Msg("Failed to parse WebSocket message")
				continue
			}

			if notification.NotificationContainer.Type != "playing" {
				continue
			}

			for _, n := range notification.NotificationContainer.PlaySessionStateNotification {
				onPlaying(n)
			}
		}
	}()

	// Wait for context cancellation or read error
	select {
	case <-ctx.Done():
		// Send close message
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return ctx.Err()
	case err := <-readErrCh:
		return err
	}
}

// notificationURL constructs the WebSocket URL from the server base URL.
func (c *Client) notificationURL() (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	// Convert HTTP(S) to WS(S)
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}

	parsed.Path = "/:/websockets/notifications"

	// Add token as query parameter
	q := parsed.Query()
	q.Set("X-Plex-Token", c.token)
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

// Plex WebSocket notification structures
type plexWebSocketNotification struct {
	NotificationContainer plexNotificationContainer `json:"NotificationContainer"`
}

type plexNotificationContainer struct {
	Type                         string                    `json:"type"`
	Size                         int                       `json:"size"`
	PlaySessionStateNotification []PlaySessionNotification `json:"PlaySessionStateNotification,omitempty"`
}
