package config

import "time"

// TimeoutConfig holds timeout settings for calls against the Plex server.
// These can be configured via CLI flags to tune performance for different environments.
type TimeoutConfig struct {
	// HTTPClient is the timeout for HTTP client requests to the Plex server
	// and to notification webhooks. Default: 15s
	HTTPClient time.Duration

	// WebSocketPing is the interval between WebSocket keepalive pings on the
	// Plex notification listener. Default: 30s
	WebSocketPing time.Duration

	// StreamCommand is the timeout for a single subtitle stream selection
	// command. Kept shorter than the poll interval budget so a stuck command
	// cannot stall the monitor for a full cycle. Default: 10s
	StreamCommand time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPClient:    15 * time.Second,
		WebSocketPing: 30 * time.Second,
		StreamCommand: 10 * time.Second,
	}
}

// global instance that can be set at startup
var globalTimeouts = DefaultTimeoutConfig()

// SetGlobalTimeouts sets the global timeout configuration
func SetGlobalTimeouts(cfg *TimeoutConfig) {
	globalTimeouts = cfg
}

// GetTimeouts returns the global timeout configuration
func GetTimeouts() *TimeoutConfig {
	return globalTimeouts
}
