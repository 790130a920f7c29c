package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/database"
)

// EventType represents the type of event that can trigger a notification
type EventType string

const (
	EventMonitorStarted      EventType = "monitor_started"
	EventMonitorStopped      EventType = "monitor_stopped"
	EventMonitorError        EventType = "monitor_error"
	EventOverrideApplied     EventType = "override_applied"
	EventOverrideRestored    EventType = "override_restored"
	EventRestoreFailed       EventType = "restore_failed"
	EventConnectionLost      EventType = "connection_lost"
	EventConnectionRecovered EventType = "connection_recovered"
)

// AllEventTypes lists every subscribable event, in display order.
func AllEventTypes() []EventType {
	return []EventType{
		EventOverrideApplied,
		EventOverrideRestored,
		EventRestoreFailed,
		EventMonitorStarted,
		EventMonitorStopped,
		EventMonitorError,
		EventConnectionLost,
		EventConnectionRecovered,
	}
}

// Event represents a notification event
type Event struct {
	Type      EventType
	Title     string
	Message   string
	Fields    map[string]string
	Timestamp time.Time
}

// Provider is the interface for notification providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Send sends a notification
	Send(ctx context.Context, event Event) error

	// Test sends a test notification
	Test(ctx context.Context) error
}

// registeredProvider pairs a provider with its database row so dispatch can
// consult per-provider event subscriptions.
type registeredProvider struct {
	id       int64
	provider Provider
}

// Manager handles notification dispatch
type Manager struct {
	db        *database.DB
	providers map[int64]*registeredProvider
	mu        sync.RWMutex
	events    chan Event
	stopChan  chan struct{}
	wg        sync.WaitGroup

	// Running state
	running bool
}

// NewManager creates a new notification manager
func NewManager(db *database.DB) *Manager {
	return &Manager{
		db:        db,
		providers: make(map[int64]*registeredProvider),
		events:    make(chan Event, 100),
		stopChan:  make(chan struct{}),
	}
}

// BuildProvider constructs a provider from its stored configuration.
func BuildProvider(row *database.NotificationProvider) (Provider, error) {
	switch row.Type {
	case "discord":
		return NewDiscordProvider(row.Name, row.Config)
	case "webhook":
		return NewWebhookProvider(row.Name, row.Config)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", row.Type)
	}
}

// ReloadProviders rebuilds the provider registry from the database. The
// dispatcher starts when providers exist and stops when none remain.
func (m *Manager) ReloadProviders() error {
	rows, err := m.db.ListEnabledNotificationProviders()
	if err != nil {
		return fmt.Errorf("failed to load notification providers: %w", err)
	}

	registry := make(map[int64]*registeredProvider, len(rows))
	for _, row := range rows {
		provider, err := BuildProvider(row)
		if err != nil {
			log.Warn().Err(err).Str("provider", row.Name).Msg("Skipping notification provider")
			continue
		}
		registry[row.ID] = &registeredProvider{id: row.ID, provider: provider}
	}

	m.mu.Lock()
	m.providers = registry
	count := len(registry)
	running := m.running
	m.mu.Unlock()

	if count > 0 && !running {
		m.Start()
	} else if count == 0 && running {
		m.Stop()
	}

	log.Info().Int("providers", count).Msg("Notification providers loaded")
	return nil
}

// GetProvider returns a provider by its database ID
func (m *Manager) GetProvider(id int64) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rp, ok := m.providers[id]
	if !ok {
		return nil, false
	}
	return rp.provider, true
}

// ProviderCount returns the number of registered providers
func (m *Manager) ProviderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.providers)
}

// Start starts the notification dispatcher.
// Returns true if the manager was started (providers exist), false otherwise.
func (m *Manager) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return true
	}

	// Only start if we have providers
	if len(m.providers) == 0 {
		return false
	}

	m.running = true
	m.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Notification dispatcher panicked")
			}
		}()
		m.dispatcher()
	})
	log.Info().Msg("Notification manager started")
	return true
}

// Stop stops the notification dispatcher
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopChan)
	m.wg.Wait()

	// Recreate stopChan for potential restart
	m.stopChan = make(chan struct{})

	log.Info().Msg("Notification manager stopped")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Notify queues an event for notification
func (m *Manager) Notify(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case m.events <- event:
	default:
		log.Warn().Str("type", string(event.Type)).Msg("Notification queue full, dropping event")
	}
}

// NotifySimple is a convenience method to send a simple notification
func (m *Manager) NotifySimple(eventType EventType, title, message string) {
	m.Notify(Event{
		Type:    eventType,
		Title:   title,
		Message: message,
	})
}

// dispatcher processes events and sends notifications
func (m *Manager) dispatcher() {
	for {
		select {
		case <-m.stopChan:
			return
		case event := <-m.events:
			m.dispatch(event)
		}
	}
}

// dispatch sends an event to every provider subscribed to its type
func (m *Manager) dispatch(event Event) {
	m.mu.RLock()
	providers := make([]*registeredProvider, 0, len(m.providers))
	for _, rp := range m.providers {
		providers = append(providers, rp)
	}
	m.mu.RUnlock()

	if len(providers) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, rp := range providers {
		subscribed, err := m.db.ProviderHasSubscription(rp.id, string(event.Type))
		if err != nil {
			log.Error().
				Err(err).
				Str("provider", rp.provider.Name()).
				Msg("Failed to check notification subscription")
			continue
		}
		if !subscribed {
			continue
		}

		if err := rp.provider.Send(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("provider", rp.provider.Name()).
				Str("event", string(event.Type)).
				Msg("Failed to send notification")

			m.logNotification(event, rp.provider.Name(), err)
		} else {
			log.Debug().
				Str("provider", rp.provider.Name()).
				Str("event", string(event.Type)).
				Msg("Notification sent")

			m.logNotification(event, rp.provider.Name(), nil)
		}
	}
}

// logNotification logs a notification attempt to the database
func (m *Manager) logNotification(event Event, provider string, sendErr error) {
	status := "sent"
	errMsg := ""
	if sendErr != nil {
		status = "failed"
		errMsg = sendErr.Error()
	}

	err := m.db.LogNotification(&database.NotificationLog{
		Provider:  provider,
		EventType: string(event.Type),
		Title:     event.Title,
		Message:   event.Message,
		Status:    status,
		Error:     errMsg,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to log notification")
	}
}

// TestProvider sends a test notification to a specific provider
func (m *Manager) TestProvider(id int64) error {
	m.mu.RLock()
	rp, ok := m.providers[id]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("provider %d not found or disabled", id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return rp.provider.Test(ctx)
}
