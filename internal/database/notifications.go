package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// NotificationProvider represents a notification provider configuration
type NotificationProvider struct {
	ID        int64
	Name      string
	Type      string // discord, webhook
	Enabled   bool
	Config    map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NotificationSubscription represents a provider's subscription to an event type
type NotificationSubscription struct {
	ID         int64
	ProviderID int64
	EventType  string
	Enabled    bool
}

// NotificationLog represents a notification log entry
type NotificationLog struct {
	ID        int64
	EventType string
	Provider  string
	Title     string
	Message   string
	Status    string
	Error     string
	CreatedAt time.Time
}

// CreateNotificationProvider creates a new notification provider
func (db *DB) CreateNotificationProvider(p *NotificationProvider) error {
	configJSON, err := json.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal provider config: %w", err)
	}

	result, err := db.Exec(`
		INSERT INTO notification_providers (name, type, enabled, config)
		VALUES (?, ?, ?, ?)
	`, p.Name, p.Type, p.Enabled, string(configJSON))
	if err != nil {
		return fmt.Errorf("failed to create notification provider: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// GetNotificationProvider retrieves a notification provider by ID
func (db *DB) GetNotificationProvider(id int64) (*NotificationProvider, error) {
	p := &NotificationProvider{}
	var configJSON string

	err := db.QueryRow(`
		SELECT id, name, type, enabled, config, created_at, updated_at
		FROM notification_providers
		WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Type, &p.Enabled, &configJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification provider: %w", err)
	}

	if err := json.Unmarshal([]byte(configJSON), &p.Config); err != nil {
		p.Config = make(map[string]string)
	}

	return p, nil
}

// UpdateNotificationProvider updates a notification provider
func (db *DB) UpdateNotificationProvider(p *NotificationProvider) error {
	configJSON, err := json.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal provider config: %w", err)
	}

	_, err = db.Exec(`
		UPDATE notification_providers
		SET name = ?, type = ?, enabled = ?, config = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, p.Name, p.Type, p.Enabled, string(configJSON), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update notification provider: %w", err)
	}
	return nil
}

// DeleteNotificationProvider deletes a notification provider
func (db *DB) DeleteNotificationProvider(id int64) error {
	_, err := db.Exec("DELETE FROM notification_providers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete notification provider: %w", err)
	}
	return nil
}

// ListNotificationProviders returns all notification providers
func (db *DB) ListNotificationProviders() ([]*NotificationProvider, error) {
	return db.listProviders(`
		SELECT id, name, type, enabled, config, created_at, updated_at
		FROM notification_providers
		ORDER BY name
	`)
}

// ListEnabledNotificationProviders returns enabled notification providers
func (db *DB) ListEnabledNotificationProviders() ([]*NotificationProvider, error) {
	return db.listProviders(`
		SELECT id, name, type, enabled, config, created_at, updated_at
		FROM notification_providers
		WHERE enabled = true
		ORDER BY name
	`)
}

func (db *DB) listProviders(query string) ([]*NotificationProvider, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification providers: %w", err)
	}
	defer rows.Close()

	var providers []*NotificationProvider
	for rows.Next() {
		p := &NotificationProvider{}
		var configJSON string

		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.Enabled, &configJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification provider: %w", err)
		}

		if err := json.Unmarshal([]byte(configJSON), &p.Config); err != nil {
			p.Config = make(map[string]string)
		}

		providers = append(providers, p)
	}

	return providers, rows.Err()
}

// SetNotificationSubscription sets a subscription for a provider and event type
func (db *DB) SetNotificationSubscription(providerID int64, eventType string, enabled bool) error {
	_, err := db.Exec(`
		INSERT INTO notification_subscriptions (provider_id, event_type, enabled)
		VALUES (?, ?, ?)
		ON CONFLICT(provider_id, event_type) DO UPDATE SET enabled = ?
	`, providerID, eventType, enabled, enabled)
	if err != nil {
		return fmt.Errorf("failed to set notification subscription: %w", err)
	}
	return nil
}

// GetNotificationSubscriptions returns all subscriptions for a provider
func (db *DB) GetNotificationSubscriptions(providerID int64) ([]*NotificationSubscription, error) {
	rows, err := db.Query(`
		SELECT id, provider_id, event_type, enabled
		FROM notification_subscriptions
		WHERE provider_id = ?
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*NotificationSubscription
	for rows.Next() {
		s := &NotificationSubscription{}
		if err := rows.Scan(&s.ID, &s.ProviderID, &s.EventType, &s.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan notification subscription: %w", err)
		}
		subs = append(subs, s)
	}

	return subs, rows.Err()
}

// ProviderHasSubscription checks if a provider is subscribed to an event
func (db *DB) ProviderHasSubscription(providerID int64, eventType string) (bool, error) {
	var enabled bool
	err := db.QueryRow(`
		SELECT enabled FROM notification_subscriptions
		WHERE provider_id = ? AND event_type = ?
	`, providerID, eventType).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check notification subscription: %w", err)
	}
	return enabled, nil
}

// LogNotification logs a notification delivery attempt
func (db *DB) LogNotification(entry *NotificationLog) error {
	_, err := db.Exec(`
		INSERT INTO notification_log (event_type, provider, title, message, status, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.EventType, entry.Provider, entry.Title, entry.Message, entry.Status, entry.Error)
	if err != nil {
		return fmt.Errorf("failed to log notification: %w", err)
	}
	return nil
}

// ListNotificationLogs returns recent notification logs
func (db *DB) ListNotificationLogs(limit int) ([]*NotificationLog, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := db.Query(`
		SELECT id, event_type, provider, COALESCE(title, ''), message, status, COALESCE(error, ''), created_at
		FROM notification_log
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	defer rows.Close()

	var logs []*NotificationLog
	for rows.Next() {
		l := &NotificationLog{}
		if err := rows.Scan(&l.ID, &l.EventType, &l.Provider, &l.Title, &l.Message, &l.Status, &l.Error, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification log: %w", err)
		}
		logs = append(logs, l)
	}

	return logs, rows.Err()
}

// CountNotificationLogs returns the total number of notification log rows
func (db *DB) CountNotificationLogs() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM notification_log").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count notification logs: %w", err)
	}
	return count, nil
}

// ClearNotificationLogs clears notification logs older than the cutoff
func (db *DB) ClearNotificationLogs(olderThan time.Duration) (int64, error) {
	result, err := db.Exec(
		"DELETE FROM notification_log WHERE created_at < datetime('now', '-' || ? || ' seconds')",
		int64(olderThan/time.Second))
	if err != nil {
		return 0, fmt.Errorf("failed to clear notification logs: %w", err)
	}
	return result.RowsAffected()
}

// DeleteAllNotificationLogs empties the notification delivery log
func (db *DB) DeleteAllNotificationLogs() (int64, error) {
	result, err := db.Exec("DELETE FROM notification_log")
	if err != nil {
		return 0, fmt.Errorf("failed to clear notification logs: %w", err)
	}
	return result.RowsAffected()
}

// GetNotificationStats returns delivery counts for the last 24 hours
func (db *DB) GetNotificationStats() (sent int, failed int, err error) {
	err = db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM notification_log
		WHERE created_at > datetime('now', '-24 hours')
	`).Scan(&sent, &failed)
	return
}
