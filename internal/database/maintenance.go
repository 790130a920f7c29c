package database

import "fmt"

// Optimize runs SQLite's PRAGMA optimize to refresh planner stats.
func (db *DB) Optimize() error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("database not initialized")
	}

	if _, err := db.Exec("PRAGMA optimize"); err != nil {
		return fmt.Errorf("failed to optimize database: %w", err)
	}

	return nil
}

// Vacuum rebuilds the database file to reclaim unused space.
func (db *DB) Vacuum() error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("database not initialized")
	}

	if _, err := db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}

	return nil
}
