// Package maintenance runs the scheduled housekeeping job: pruning the
// override audit trail and notification logs per the retention settings,
// deleting expired web sessions, and refreshing SQLite planner stats.
package maintenance

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/config"
	"github.com/saltyorg/subrewind/internal/database"
)

// DefaultSchedule is used when maintenance.schedule is unset or invalid.
const DefaultSchedule = "30 3 * * *"

// Manager owns the cron scheduler for the housekeeping job.
type Manager struct {
	db          *database.DB
	cron        *cron.Cron
	cronEntryID cron.EntryID
	mu          sync.Mutex
	running     bool
}

// NewManager creates a maintenance manager.
func NewManager(db *database.DB) *Manager {
	return &Manager{
		db:   db,
		cron: cron.New(),
	}
}

// Start begins the scheduler using the stored schedule.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	m.cron.Start()
	m.running = true

	schedule := m.schedule()
	if err := m.setSchedule(schedule); err != nil {
		// The stored expression is validated on save, so this is unexpected
		log.Warn().Err(err).Str("schedule", schedule).Msg("Falling back to the default maintenance schedule")
		if err := m.setSchedule(DefaultSchedule); err != nil {
			return err
		}
	}

	log.Info().Str("schedule", schedule).Msg("Maintenance scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	<-m.cron.Stop().Done()
	m.running = false
	log.Info().Msg("Maintenance scheduler stopped")
}

// Reschedule re-reads maintenance.schedule, replacing the cron entry.
// Called after the settings page saves a new expression.
func (m *Manager) Reschedule() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	return m.setSchedule(m.schedule())
}

// NextRun reports when the job fires next; zero when unscheduled.
func (m *Manager) NextRun() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cronEntryID == 0 {
		return time.Time{}
	}
	return m.cron.Entry(m.cronEntryID).Next
}

func (m *Manager) schedule() string {
	return config.NewLoader(m.db).String("maintenance.schedule", DefaultSchedule)
}

// setSchedule swaps the cron entry. Caller holds the lock.
func (m *Manager) setSchedule(schedule string) error {
	if m.cronEntryID != 0 {
		m.cron.Remove(m.cronEntryID)
		m.cronEntryID = 0
	}

	id, err := m.cron.AddFunc(schedule, m.RunNow)
	if err != nil {
		return err
	}
	m.cronEntryID = id
	return nil
}

// RunNow executes one housekeeping pass immediately. It is the cron callback
// and can also be invoked directly.
func (m *Manager) RunNow() {
	start := time.Now()
	loader := config.NewLoader(m.db)

	// Retention of 0 means keep forever
	if days := loader.Int("history.retention_days", 30); days > 0 {
		if pruned, err := m.db.PruneOverrideEvents(time.Duration(days) * 24 * time.Hour); err != nil {
			log.Error().Err(err).Msg("Failed to prune override events")
		} else if pruned > 0 {
			log.Info().Int64("pruned", pruned).Int("retention_days", days).Msg("Pruned override events")
		}
	}

	if days := loader.Int("notifications.log_days", 14); days > 0 {
		if cleared, err := m.db.ClearNotificationLogs(time.Duration(days) * 24 * time.Hour); err != nil {
			log.Error().Err(err).Msg("Failed to clear notification logs")
		} else if cleared > 0 {
			log.Info().Int64("cleared", cleared).Int("log_days", days).Msg("Cleared notification logs")
		}
	}

	if deleted, err := m.db.DeleteExpiredSessions(); err != nil {
		log.Error().Err(err).Msg("Failed to delete expired sessions")
	} else if deleted > 0 {
		log.Debug().Int64("deleted", deleted).Msg("Deleted expired web sessions")
	}

	if err := m.db.Optimize(); err != nil {
		log.Error().Err(err).Msg("Failed to optimize database")
	}

	log.Debug().Dur("took", time.Since(start)).Msg("Maintenance pass complete")
}
