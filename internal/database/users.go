package database

import (
	"database/sql"
	"fmt"
	"time"
)

// UserRecord represents a user account stored in the database.
type UserRecord struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionRecord represents a web UI session stored in the database.
type SessionRecord struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CreateUser inserts a new user record.
func (db *DB) CreateUser(username, passwordHash string) (*UserRecord, error) {
	now := time.Now()
	result, err := db.Exec(`
		INSERT INTO users (username, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, username, passwordHash, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user id: %w", err)
	}

	return &UserRecord{
		ID:           id,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetUserByUsername retrieves a user by username. Returns nil when no such
// user exists.
func (db *DB) GetUserByUsername(username string) (*UserRecord, error) {
	user := &UserRecord{}
	err := db.QueryRow(`
		SELECT id, username, password_hash, created_at, updated_at
		FROM users WHERE username = ?
	`, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by ID. Returns nil when no such user exists.
func (db *DB) GetUserByID(id int64) (*UserRecord, error) {
	user := &UserRecord{}
	err := db.QueryRow(`
		SELECT id, username, password_hash, created_at, updated_at
		FROM users WHERE id = ?
	`, id).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateUserPassword updates the user's password hash.
func (db *DB) UpdateUserPassword(userID int64, passwordHash string) error {
	_, err := db.Exec(`
		UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?
	`, passwordHash, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// UpdateUsername updates the user's username.
func (db *DB) UpdateUsername(userID int64, newUsername string) error {
	_, err := db.Exec(`
		UPDATE users SET username = ?, updated_at = ? WHERE id = ?
	`, newUsername, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	return nil
}

// CreateSession inserts a new session record.
func (db *DB) CreateSession(id string, userID int64, expiresAt time.Time) (*SessionRecord, error) {
	now := time.Now()
	_, err := db.Exec(`
		INSERT INTO sessions (id, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
	`, id, userID, expiresAt, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &SessionRecord{
		ID:        id,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// GetSession retrieves a session by ID. Returns nil when no such session
// exists.
func (db *DB) GetSession(id string) (*SessionRecord, error) {
	session := &SessionRecord{}
	err := db.QueryRow(`
		SELECT id, user_id, expires_at, created_at
		FROM sessions WHERE id = ?
	`, id).Scan(&session.ID, &session.UserID, &session.ExpiresAt, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// DeleteSession removes a session by ID.
func (db *DB) DeleteSession(id string) error {
	_, err := db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ExtendSession updates a session's expiration time.
func (db *DB) ExtendSession(id string, expiresAt time.Time) error {
	_, err := db.Exec("UPDATE sessions SET expires_at = ? WHERE id = ?", expiresAt, id)
	if err != nil {
		return fmt.Errorf("failed to extend session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions past their expiry.
func (db *DB) DeleteExpiredSessions() (int64, error) {
	result, err := db.Exec("DELETE FROM sessions WHERE expires_at < ?", time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}
