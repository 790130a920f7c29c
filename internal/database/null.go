package database

import (
	"database/sql"
	"time"
)

// nullTimeToPtr converts a sql.NullTime to a pointer (nil if not valid)
func nullTimeToPtr(n sql.NullTime) *time.Time {
	if n.Valid {
		return &n.Time
	}
	return nil
}
