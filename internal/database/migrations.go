package database

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Migrate runs all database migrations
func (db *DB) Migrate() error {
	log.Info().Msg("Running database migrations")

	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	log.Debug().Int("current_version", currentVersion).Msg("Current schema version")

	// Run migrations
	for _, migration := range migrations {
		if migration.Version > currentVersion {
			log.Info().Int("version", migration.Version).Str("name", migration.Name).Msg("Applying migration")

			if err := db.Transaction(func(tx *sql.Tx) error {
				// Execute migration SQL - split by semicolons and execute each statement
				// This ensures each statement is properly executed and errors are caught
				statements := splitSQLStatements(migration.SQL)
				for i, stmt := range statements {
					if _, err := tx.Exec(stmt); err != nil {
						return fmt.Errorf("migration %d statement %d failed: %w", migration.Version, i+1, err)
					}
				}

				// Record migration
				if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
					return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
				}

				return nil
			}); err != nil {
				return err
			}
		}
	}

	log.Info().Msg("Database migrations complete")
	return nil
}

type migration struct {
	Version int
	Name    string
	SQL     string
}

// splitSQLStatements splits a SQL string into individual statements.
// It handles comments and only returns non-empty statements.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	lines := strings.SplitSeq(sql, "\n")
	for line := range lines {
		trimmed := strings.TrimSpace(line)
		// Skip empty lines and comments
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		// Check if line ends with semicolon (statement complete)
		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSpace(current.String())
			if stmt != "" && stmt != ";" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	// Handle any remaining content without trailing semicolon
	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}

	return statements
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
			-- User authentication (single user)
			CREATE TABLE users (
				id INTEGER PRIMARY KEY,
				username TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- Sessions for web UI
			CREATE TABLE sessions (
				id TEXT PRIMARY KEY,
				user_id INTEGER REFERENCES users(id) ON DELETE CASCADE,
				expires_at TIMESTAMP NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- API keys for the read-only JSON API. Only the SHA-256 of the
			-- key is stored; the prefix keeps keys recognizable in the UI.
			CREATE TABLE api_keys (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				key_hash TEXT NOT NULL UNIQUE,
				prefix TEXT NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				last_used_at TIMESTAMP
			);

			-- Global settings
			CREATE TABLE settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- Audit trail of subtitle override commands. Playback state itself
			-- is never persisted; only the commands this tool issued.
			CREATE TABLE override_events (
				id INTEGER PRIMARY KEY,
				session_key TEXT NOT NULL,
				user_title TEXT NOT NULL DEFAULT '',
				player_title TEXT NOT NULL DEFAULT '',
				media_title TEXT NOT NULL DEFAULT '',
				rating_key TEXT NOT NULL DEFAULT '',
				action TEXT NOT NULL,
				saved_stream_id INTEGER NOT NULL DEFAULT 0,
				forced_stream_id INTEGER NOT NULL DEFAULT 0,
				position_ms INTEGER NOT NULL DEFAULT 0,
				detail TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_override_events_created ON override_events(created_at);
			CREATE INDEX idx_override_events_session ON override_events(session_key);

			-- Notification providers (discord, webhook)
			CREATE TABLE notification_providers (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				type TEXT NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT 1,
				config TEXT NOT NULL DEFAULT '{}',
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);

			-- Per-provider event subscriptions
			CREATE TABLE notification_subscriptions (
				id INTEGER PRIMARY KEY,
				provider_id INTEGER NOT NULL REFERENCES notification_providers(id) ON DELETE CASCADE,
				event_type TEXT NOT NULL,
				enabled BOOLEAN NOT NULL DEFAULT 1,
				UNIQUE(provider_id, event_type)
			);

			-- Notification delivery log
			CREATE TABLE notification_log (
				id INTEGER PRIMARY KEY,
				event_type TEXT NOT NULL,
				provider TEXT NOT NULL,
				title TEXT,
				message TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL,
				error TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX idx_notification_log_created ON notification_log(created_at);
		`,
	},
}
