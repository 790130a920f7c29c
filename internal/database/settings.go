package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/saltyorg/subrewind/internal/logging"
)

// GetSetting retrieves a setting value by key
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a setting value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetAllSettings retrieves all settings
func (db *DB) GetAllSettings() (map[string]string, error) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value
	}

	return settings, rows.Err()
}

// DeleteSetting removes a setting
func (db *DB) DeleteSetting(key string) error {
	_, err := db.Exec("DELETE FROM settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// Default settings
var DefaultSettings = map[string]any{
	"log.level":        "info",
	"log.max_size_mb":  logging.DefaultMaxSizeMB,
	"log.max_backups":  logging.DefaultMaxBackups,
	"log.max_age_days": logging.DefaultMaxAgeDays,
	"log.compress":     logging.DefaultCompress,

	"plex.url":   "",
	"plex.token": "",

	"monitor.enabled":                     true,
	"monitor.use_notifications":           true, // WebSocket listener wakes the poll loop
	"monitor.rewind_threshold_seconds":    5,
	"monitor.max_rewind_seconds":          300, // larger jumps are restarts, not rewinds; 0 = no cap
	"monitor.active_poll_seconds":         2,
	"monitor.idle_poll_seconds":           20,
	"monitor.grace_missed_polls":          3,
	"monitor.forward_confirm_cycles":      2,
	"monitor.jitter_tolerance_seconds":    1.5,
	"monitor.min_sample_interval_ms":      800,
	"monitor.command_retry_limit":         3,
	"monitor.preferred_subtitle_language": "",

	"history.retention_days": 30, // 0 = keep override history forever
	"maintenance.schedule":   "30 3 * * *",
	"notifications.log_days": 14,
}

// InitializeDefaults sets default values for settings that don't exist.
// Strings are stored raw; everything else is JSON-encoded so the typed
// loader getters parse them back.
func (db *DB) InitializeDefaults() error {
	for key, value := range DefaultSettings {
		existing, err := db.GetSetting(key)
		if err != nil {
			return err
		}
		if existing != "" {
			continue
		}

		var stored string
		switch v := value.(type) {
		case string:
			if v == "" {
				continue
			}
			stored = v
		default:
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to marshal default %s: %w", key, err)
			}
			stored = string(data)
		}

		if err := db.SetSetting(key, stored); err != nil {
			return err
		}
	}
	return nil
}
