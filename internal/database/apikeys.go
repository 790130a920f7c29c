package database

import (
	"database/sql"
	"fmt"
	"time"
)

// APIKey represents a named key for the read-only JSON API. The key itself is
// never stored, only its SHA-256 hash and a short display prefix.
type APIKey struct {
	ID         int64
	Name       string
	Prefix     string
	KeyHash    string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// CreateAPIKey inserts a new API key.
func (db *DB) CreateAPIKey(name, keyHash, prefix string) (*APIKey, error) {
	now := time.Now()
	result, err := db.Exec(`
		INSERT INTO api_keys (name, key_hash, prefix, created_at) VALUES (?, ?, ?, ?)
	`, name, keyHash, prefix, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create api key: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get api key id: %w", err)
	}

	return &APIKey{ID: id, Name: name, Prefix: prefix, KeyHash: keyHash, CreatedAt: now}, nil
}

// GetAPIKeyByHash retrieves an API key record by its hashed key value.
// Returns nil when no such key exists.
func (db *DB) GetAPIKeyByHash(keyHash string) (*APIKey, error) {
	record := &APIKey{}
	var lastUsed sql.NullTime

	err := db.QueryRow(`
		SELECT id, name, key_hash, prefix, created_at, last_used_at
		FROM api_keys WHERE key_hash = ?
	`, keyHash).Scan(&record.ID, &record.Name, &record.KeyHash, &record.Prefix, &record.CreatedAt, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}

	record.LastUsedAt = nullTimeToPtr(lastUsed)
	return record, nil
}

// ListAPIKeys returns all API keys, newest first.
func (db *DB) ListAPIKeys() ([]*APIKey, error) {
	rows, err := db.Query(`
		SELECT id, name, key_hash, prefix, created_at, last_used_at
		FROM api_keys ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		record := &APIKey{}
		var lastUsed sql.NullTime

		if err := rows.Scan(&record.ID, &record.Name, &record.KeyHash, &record.Prefix, &record.CreatedAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		record.LastUsedAt = nullTimeToPtr(lastUsed)
		keys = append(keys, record)
	}

	return keys, rows.Err()
}

// DeleteAPIKey removes an API key by ID.
func (db *DB) DeleteAPIKey(id int64) error {
	_, err := db.Exec("DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	return nil
}

// TouchAPIKey records that a key was just used.
func (db *DB) TouchAPIKey(id int64) error {
	_, err := db.Exec("UPDATE api_keys SET last_used_at = ? WHERE id = ?", time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}
