package database

import (
	"fmt"
	"time"
)

// Override event actions
const (
	OverrideActionApplied       = "applied"
	OverrideActionRestored      = "restored"
	OverrideActionRestoreFailed = "restore_failed"
)

// OverrideEvent is one row of the subtitle override audit trail
type OverrideEvent struct {
	ID             int64
	SessionKey     string
	UserTitle      string
	PlayerTitle    string
	MediaTitle     string
	RatingKey      string
	Action         string
	SavedStreamID  int64
	ForcedStreamID int64
	PositionMs     int64
	Detail         string
	CreatedAt      time.Time
}

// InsertOverrideEvent appends an event to the audit trail
func (db *DB) InsertOverrideEvent(e *OverrideEvent) error {
	result, err := db.Exec(`
		INSERT INTO override_events
			(session_key, user_title, player_title, media_title, rating_key,
			 action, saved_stream_id, forced_stream_id, position_ms, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.SessionKey, e.UserTitle, e.PlayerTitle, e.MediaTitle, e.RatingKey,
		e.Action, e.SavedStreamID, e.ForcedStreamID, e.PositionMs, e.Detail)
	if err != nil {
		return fmt.Errorf("failed to insert override event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get override event id: %w", err)
	}
	e.ID = id
	return nil
}

// ListOverrideEvents returns a page of the audit trail, newest first
func (db *DB) ListOverrideEvents(limit, offset int) ([]*OverrideEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT id, session_key, user_title, player_title, media_title, rating_key,
		       action, saved_stream_id, forced_stream_id, position_ms, detail, created_at
		FROM override_events
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list override events: %w", err)
	}
	defer rows.Close()

	var events []*OverrideEvent
	for rows.Next() {
		e := &OverrideEvent{}
		if err := rows.Scan(&e.ID, &e.SessionKey, &e.UserTitle, &e.PlayerTitle,
			&e.MediaTitle, &e.RatingKey, &e.Action, &e.SavedStreamID,
			&e.ForcedStreamID, &e.PositionMs, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan override event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// ListOverrideEventsFiltered returns a page of the audit trail restricted to
// one action. An empty action means no filter.
func (db *DB) ListOverrideEventsFiltered(action string, limit, offset int) ([]*OverrideEvent, error) {
	if action == "" {
		return db.ListOverrideEvents(limit, offset)
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT id, session_key, user_title, player_title, media_title, rating_key,
		       action, saved_stream_id, forced_stream_id, position_ms, detail, created_at
		FROM override_events
		WHERE action = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list override events: %w", err)
	}
	defer rows.Close()

	var events []*OverrideEvent
	for rows.Next() {
		e := &OverrideEvent{}
		if err := rows.Scan(&e.ID, &e.SessionKey, &e.UserTitle, &e.PlayerTitle,
			&e.MediaTitle, &e.RatingKey, &e.Action, &e.SavedStreamID,
			&e.ForcedStreamID, &e.PositionMs, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan override event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// CountOverrideEvents returns the total number of audit rows
func (db *DB) CountOverrideEvents() (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM override_events").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count override events: %w", err)
	}
	return count, nil
}

// CountOverrideEventsFiltered counts audit rows for one action. An empty
// action counts everything.
func (db *DB) CountOverrideEventsFiltered(action string) (int, error) {
	if action == "" {
		return db.CountOverrideEvents()
	}

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM override_events WHERE action = ?", action).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count override events: %w", err)
	}
	return count, nil
}

// GetOverrideStatsByAction returns total audit rows grouped by action
func (db *DB) GetOverrideStatsByAction() (map[string]int, error) {
	rows, err := db.Query("SELECT action, COUNT(*) FROM override_events GROUP BY action")
	if err != nil {
		return nil, fmt.Errorf("failed to get override stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("failed to scan override stats: %w", err)
		}
		stats[action] = count
	}

	return stats, rows.Err()
}

// CountOverrideEventsLast24h returns per-action counts for the last 24 hours
func (db *DB) CountOverrideEventsLast24h() (applied int, restored int, failed int, err error) {
	err = db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN action = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action = ? THEN 1 ELSE 0 END), 0)
		FROM override_events
		WHERE created_at > datetime('now', '-24 hours')
	`, OverrideActionApplied, OverrideActionRestored, OverrideActionRestoreFailed).
		Scan(&applied, &restored, &failed)
	if err != nil {
		err = fmt.Errorf("failed to count override events: %w", err)
	}
	return
}

// PruneOverrideEvents deletes audit rows older than the retention window.
// The cutoff is computed inside SQLite so it compares cleanly against the
// CURRENT_TIMESTAMP values the rows were stamped with.
func (db *DB) PruneOverrideEvents(olderThan time.Duration) (int64, error) {
	result, err := db.Exec(
		"DELETE FROM override_events WHERE created_at < datetime('now', '-' || ? || ' seconds')",
		int64(olderThan/time.Second))
	if err != nil {
		return 0, fmt.Errorf("failed to prune override events: %w", err)
	}
	return result.RowsAffected()
}

// DeleteAllOverrideEvents empties the audit trail
func (db *DB) DeleteAllOverrideEvents() (int64, error) {
	result, err := db.Exec("DELETE FROM override_events")
	if err != nil {
		return 0, fmt.Errorf("failed to clear override events: %w", err)
	}
	return result.RowsAffected()
}
