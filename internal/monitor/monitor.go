package monitor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/config"
	"github.com/saltyorg/subrewind/internal/database"
	"github.com/saltyorg/subrewind/internal/media"
	"github.com/saltyorg/subrewind/internal/notification"
	"github.com/saltyorg/subrewind/internal/plex"
	"github.com/saltyorg/subrewind/internal/web/sse"
)

// SessionSource is the slice of the Plex client the monitor needs: one call
// to read the current sessions and one to change a session's streams.
type SessionSource interface {
	GetSessions(ctx context.Context) ([]plex.Session, error)
	SetStreams(ctx context.Context, partID, audioStreamID, subtitleStreamID int) error
}

// NotificationWatcher is implemented by clients that can push playback
// notifications over a websocket. Polling works without it; with it, the
// monitor wakes early when playback state changes.
type NotificationWatcher interface {
	WatchNotifications(ctx context.Context, onPlaying func(plex.PlaySessionNotification)) error
}

// MonitoringState is the duty-cycle state of the poll loop.
type MonitoringState int

const (
	// MonitoringIdle means no playback sessions exist. Polls run at the
	// slower idle cadence.
	MonitoringIdle MonitoringState = iota

	// MonitoringActive means at least one session is being tracked.
	MonitoringActive
)

func (s MonitoringState) String() string {
	if s == MonitoringActive {
		return "active"
	}
	return "idle"
}

// SessionStatus describes one tracked session for the web layer.
type SessionStatus struct {
	SessionKey     string    `json:"session_key"`
	MediaTitle     string    `json:"media_title"`
	UserTitle      string    `json:"user_title"`
	PlayerTitle    string    `json:"player_title"`
	State          string    `json:"state"`
	PositionMs     int64     `json:"position_ms"`
	Position       string    `json:"position"`
	DurationMs     int64     `json:"duration_ms"`
	Duration       string    `json:"duration"`
	SubtitleCount  int       `json:"subtitle_count"`
	Transition     string    `json:"transition"`
	DetectorState  string    `json:"detector_state"`
	OverrideActive bool      `json:"override_active"`
	MissedPolls    int       `json:"missed_polls"`
	LastSeen       time.Time `json:"last_seen"`
}

// Status is a point-in-time snapshot of the monitor for the web layer and
// SSE clients.
type Status struct {
	Running         bool            `json:"running"`
	State           string          `json:"state"`
	ConnectionLost  bool            `json:"connection_lost"`
	SessionCount    int             `json:"session_count"`
	ActiveOverrides int             `json:"active_overrides"`
	LastPoll        time.Time       `json:"last_poll"`
	Sessions        []SessionStatus `json:"sessions"`
}

// sessionEntry is one row of the monitor's session table. The poll loop
// goroutine is its only reader and writer.
type sessionEntry struct {
	session        plex.Session
	detector       *Detector
	missedPolls    int
	lastSeen       time.Time
	lastTransition Transition

	// pending is a stream command that has not completed cleanly yet. A new
	// intent from the detector replaces it, so an apply superseded by a
	// restore nets out to the restore.
	pending        IntentKind
	pendingRetries int
}

// Monitor polls Plex for playback sessions, feeds positions through the
// tracker and per-session detectors, and executes the resulting subtitle
// commands. All session state is owned by the single poll goroutine.
type Monitor struct {
	db        *database.DB
	notifier  *notification.Manager
	sseBroker *sse.Broker

	mu      sync.Mutex
	client  SessionSource
	opts    Options
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
	pokeCh  chan struct{}

	// Poll-loop state. Only the loop goroutine touches these while running;
	// Start resets them before the goroutine launches.
	tracker        *Tracker
	control        *Controller
	sessions       map[string]*sessionEntry
	fetchFailures  int
	connectionLost bool

	// status mirrors the loop state for concurrent readers.
	statusMu sync.RWMutex
	status   Status
}

// New creates a monitor around the given client and options. db may be nil
// (no audit trail); the notifier and SSE broker are wired via setters.
func New(client SessionSource, opts Options, db *database.DB) *Monitor {
	return &Monitor{
		db:     db,
		client: client,
		opts:   opts,
		pokeCh: make(chan struct{}, 1),
	}
}

// SetNotifier wires the notification manager for monitor events.
func (m *Monitor) SetNotifier(notifier *notification.Manager) {
	m.notifier = notifier
}

// SetSSEBroker wires the SSE broker for dashboard events.
func (m *Monitor) SetSSEBroker(broker *sse.Broker) {
	m.sseBroker = broker
}

// Start validates options and launches the poll loop. Starting a running
// monitor is a no-op.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	if m.client == nil {
		return fmt.Errorf("no Plex client configured")
	}
	if err := m.opts.Validate(); err != nil {
		return fmt.Errorf("invalid monitor options: %w", err)
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.running = true

	m.tracker = NewTracker(m.opts)
	m.control = NewController(m.client, m.opts.PreferredLanguage)
	m.sessions = make(map[string]*sessionEntry)
	m.fetchFailures = 0
	m.connectionLost = false

	ctx := m.ctx
	m.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("Monitor loop panicked")
			}
		}()
		m.run(ctx)
	})

	if watcher, ok := m.client.(NotificationWatcher); ok && m.opts.UseNotifications {
		m.wg.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("Notification listener panicked")
				}
			}()
			// Returns when ctx is cancelled. Every playback notification
			// wakes the loop; the poke channel collapses bursts.
			if err := watcher.WatchNotifications(ctx, func(plex.PlaySessionNotification) {
				m.Poke()
			}); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Notification listener stopped")
			}
		})
	}

	log.Info().
		Dur("active_interval", m.opts.ActiveInterval).
		Dur("idle_interval", m.opts.IdleInterval).
		Dur("rewind_threshold", m.opts.RewindThreshold).
		Msg("Session monitor started")

	m.notify(notification.EventMonitorStarted, "Monitor started", "Watching Plex sessions for rewinds")

	return nil
}

// Stop cancels the poll loop and waits for it to exit. Overrides that are
// still active on player sessions are left in place; their sessions are
// re-observed when the monitor starts again.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()

	m.statusMu.Lock()
	m.status.Running = false
	m.status.State = MonitoringIdle.String()
	m.statusMu.Unlock()

	log.Info().Msg("Session monitor stopped")
	m.notify(notification.EventMonitorStopped, "Monitor stopped", "")
}

// IsRunning reports whether the poll loop is active.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Poke wakes the poll loop before its timer fires. The websocket listener
// calls this on playback notifications so rewinds are caught at notification
// speed instead of poll speed. Waking only shortens the current wait; cycles
// never overlap.
func (m *Monitor) Poke() {
	select {
	case m.pokeCh <- struct{}{}:
	default:
	}
}

// Status returns the most recent monitor snapshot.
func (m *Monitor) Status() Status {
	running := m.IsRunning()

	m.statusMu.RLock()
	status := m.status
	m.statusMu.RUnlock()

	status.Running = running
	return status
}

// Reload rebuilds the client and options from settings and restarts the
// loop. In-memory session state is discarded; sessions are picked up fresh
// on the first cycle after the restart.
func (m *Monitor) Reload() error {
	if m.db == nil {
		return fmt.Errorf("no settings store attached")
	}

	loader := config.NewLoader(m.db)

	opts := OptionsFromSettings(loader)
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid monitor options: %w", err)
	}

	serverURL := loader.String("plex.url", "")
	token := loader.String("plex.token", "")
	if serverURL == "" || token == "" {
		return fmt.Errorf("plex connection not configured")
	}

	enabled := loader.BoolDefaultTrue("monitor.enabled")

	m.Stop()

	m.mu.Lock()
	m.client = plex.NewClient(serverURL, token)
	m.opts = opts
	m.mu.Unlock()

	if !enabled {
		log.Info().Msg("Session monitor disabled in settings")
		return nil
	}

	return m.Start()
}

// run is the poll loop and the sole mutator of the session table. The first
// cycle runs immediately so playback in progress at startup is tracked
// without waiting out an idle interval.
func (m *Monitor) run(ctx context.Context) {
	state := m.cycle(ctx)

	for {
		interval := m.opts.IdleInterval
		if state == MonitoringActive {
			interval = m.opts.ActiveInterval
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-m.pokeCh:
			timer.Stop()
		}

		if ctx.Err() != nil {
			return
		}
		state = m.cycle(ctx)
	}
}

// cycle runs one poll and returns the duty-cycle state that decides the next
// sleep interval.
func (m *Monitor) cycle(ctx context.Context) MonitoringState {
	now := time.Now()

	snapshot, err := m.client.GetSessions(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		// Shutdown race, not a server failure.
	case err != nil:
		m.handleFetchFailure(ctx, err)
	default:
		m.handleSnapshot(ctx, now, snapshot)
	}

	state := MonitoringIdle
	if len(m.sessions) > 0 {
		state = MonitoringActive
	}

	m.publishStatus(state, now)
	return state
}

// handleFetchFailure treats a failed snapshot as "no change this cycle" for
// detector state, but missed-poll counts still accrue so an unreachable
// server eventually clears the table instead of pinning stale sessions.
func (m *Monitor) handleFetchFailure(ctx context.Context, err error) {
	m.fetchFailures++

	log.Warn().
		Err(err).
		Int("consecutive_failures", m.fetchFailures).
		Msg("Failed to fetch sessions")

	if !m.connectionLost {
		if errors.Is(err, plex.ErrInvalidToken) {
			// Auth errors will not heal on retry; report immediately.
			m.connectionLost = true
			m.notify(notification.EventConnectionLost, "Plex connection lost", "The configured token was rejected")
		} else if m.fetchFailures >= m.opts.GraceMissedPolls {
			m.connectionLost = true
			m.notify(notification.EventConnectionLost, "Plex connection lost",
				fmt.Sprintf("%d consecutive fetch failures", m.fetchFailures))
		}
	}

	for key, entry := range m.sessions {
		entry.missedPolls++
		if entry.missedPolls >= m.opts.GraceMissedPolls {
			m.dispose(ctx, key, entry, "server unreachable")
		}
	}
}

// handleSnapshot reconciles the session table against a fresh snapshot.
func (m *Monitor) handleSnapshot(ctx context.Context, now time.Time, snapshot []plex.Session) {
	if m.fetchFailures > 0 {
		m.fetchFailures = 0
		if m.connectionLost {
			m.connectionLost = false
			log.Info().Msg("Plex connection recovered")
			m.notify(notification.EventConnectionRecovered, "Plex connection recovered", "")
		}
	}

	present := make(map[string]struct{}, len(snapshot))
	for i := range snapshot {
		s := &snapshot[i]
		if s.SessionKey == "" {
			continue
		}
		present[s.SessionKey] = struct{}{}
		m.observeSession(ctx, now, s)
	}

	// Sessions missing from the snapshot accrue missed polls. The grace
	// window rides out sessions that flicker during transcoder restarts.
	for key, entry := range m.sessions {
		if _, ok := present[key]; ok {
			continue
		}
		entry.missedPolls++
		if entry.missedPolls >= m.opts.GraceMissedPolls {
			m.dispose(ctx, key, entry, "session ended")
		}
	}
}

// observeSession advances one session: record the position sample, classify
// the movement, advance the detector and execute whatever command intent is
// pending.
func (m *Monitor) observeSession(ctx context.Context, now time.Time, s *plex.Session) {
	entry, exists := m.sessions[s.SessionKey]
	if !exists {
		entry = &sessionEntry{detector: NewDetector(m.opts.ForwardConfirmCycles)}
		m.sessions[s.SessionKey] = entry

		log.Debug().
			Str("session", s.SessionKey).
			Str("media", s.MediaTitle).
			Str("user", s.UserTitle).
			Str("player", s.PlayerTitle).
			Msg("Tracking new session")

		m.broadcast(sse.EventSessionStarted, map[string]any{
			"session_key": s.SessionKey,
			"media_title": s.MediaTitle,
			"user_title":  s.UserTitle,
		})
	}

	entry.session = *s
	entry.missedPolls = 0
	entry.lastSeen = now

	classification := m.tracker.Observe(s.SessionKey, now, s.ViewOffset, s.Paused())
	entry.lastTransition = classification

	log.Trace().
		Str("session", s.SessionKey).
		Int64("position_ms", s.ViewOffset).
		Str("transition", classification.String()).
		Str("detector", entry.detector.State().String()).
		Msg("Observed session")

	if classification == TransitionRewind {
		log.Info().
			Str("session", s.SessionKey).
			Str("media", s.MediaTitle).
			Str("user", s.UserTitle).
			Str("position", media.FormatMillis(s.ViewOffset)).
			Msg("Rewind detected")
	}

	if intent := entry.detector.Advance(classification); intent != IntentNone {
		entry.pending = intent
		entry.pendingRetries = 0
	}

	if entry.pending != IntentNone {
		m.executeIntent(ctx, entry)
	}
}

// executeIntent runs a session's pending stream command. Transient failures
// are retried on later cycles up to the retry limit; a vanished session is
// disposed of immediately.
func (m *Monitor) executeIntent(ctx context.Context, entry *sessionEntry) {
	key := entry.session.SessionKey

	var err error
	switch entry.pending {
	case IntentApplyOverride:
		err = m.control.Apply(ctx, &entry.session)
		if err == nil {
			entry.pending = IntentNone
			m.recordApplied(entry)
			return
		}
	case IntentRestoreOverride:
		saved, active := m.control.Active(key)
		err = m.control.Restore(ctx, key)
		if err == nil {
			entry.pending = IntentNone
			if active {
				m.recordRestored(entry, saved)
			}
			return
		}
	default:
		entry.pending = IntentNone
		return
	}

	if errors.Is(err, plex.ErrSessionGone) {
		log.Debug().Str("session", key).Msg("Session gone while issuing stream command")
		m.dispose(ctx, key, entry, "session gone")
		return
	}

	entry.pendingRetries++
	if entry.pendingRetries >= m.opts.CommandRetryLimit {
		log.Warn().
			Err(err).
			Str("session", key).
			Str("intent", entry.pending.String()).
			Int("attempts", entry.pendingRetries).
			Msg("Giving up on stream command")

		if entry.pending == IntentRestoreOverride {
			m.recordRestoreFailed(entry, err)
		}
		// The controller still holds the override record, so a later rewind
		// or session end can pick the restore back up.
		entry.pending = IntentNone
		return
	}

	log.Warn().
		Err(err).
		Str("session", key).
		Str("intent", entry.pending.String()).
		Int("attempt", entry.pendingRetries).
		Msg("Stream command failed, will retry next cycle")
}

// dispose removes a session from the table. An active override gets one
// best-effort restore first; the session is removed regardless of the
// outcome so the table cannot leak entries.
func (m *Monitor) dispose(ctx context.Context, key string, entry *sessionEntry, reason string) {
	if saved, active := m.control.Active(key); active {
		if err := m.control.Restore(ctx, key); err != nil {
			log.Warn().
				Err(err).
				Str("session", key).
				Str("media", entry.session.MediaTitle).
				Msg("Best-effort restore for ended session failed")
			m.control.Drop(key)
			m.recordRestoreFailed(entry, err)
		} else {
			m.recordRestored(entry, saved)
		}
	}

	m.tracker.Forget(key)
	delete(m.sessions, key)

	log.Debug().
		Str("session", key).
		Str("media", entry.session.MediaTitle).
		Str("reason", reason).
		Msg("Stopped tracking session")

	m.broadcast(sse.EventSessionEnded, map[string]any{
		"session_key": key,
		"media_title": entry.session.MediaTitle,
		"reason":      reason,
	})
}

func (m *Monitor) recordApplied(entry *sessionEntry) {
	key := entry.session.SessionKey

	state, ok := m.control.Active(key)
	if !ok {
		return
	}

	detail := ""
	if state.ForcedStreamID == 0 {
		detail = "no subtitle streams available"
	}

	m.audit(&database.OverrideEvent{
		SessionKey:     key,
		UserTitle:      entry.session.UserTitle,
		PlayerTitle:    entry.session.PlayerTitle,
		MediaTitle:     entry.session.MediaTitle,
		RatingKey:      entry.session.RatingKey,
		Action:         database.OverrideActionApplied,
		SavedStreamID:  int64(state.SavedStreamID),
		ForcedStreamID: int64(state.ForcedStreamID),
		PositionMs:     entry.session.ViewOffset,
		Detail:         detail,
	})

	m.broadcast(sse.EventOverrideApplied, map[string]any{
		"session_key":      key,
		"media_title":      entry.session.MediaTitle,
		"user_title":       entry.session.UserTitle,
		"forced_stream_id": state.ForcedStreamID,
	})

	if state.ForcedStreamID != 0 {
		m.notifyFields(notification.EventOverrideApplied, "Subtitles forced on",
			fmt.Sprintf("%s rewound during playback", entry.session.UserTitle),
			map[string]string{
				"Media":    entry.session.MediaTitle,
				"Player":   entry.session.PlayerTitle,
				"Position": media.FormatMillis(entry.session.ViewOffset),
			})
	}
}

func (m *Monitor) recordRestored(entry *sessionEntry, saved OverrideState) {
	key := entry.session.SessionKey

	m.audit(&database.OverrideEvent{
		SessionKey:     key,
		UserTitle:      entry.session.UserTitle,
		PlayerTitle:    entry.session.PlayerTitle,
		MediaTitle:     entry.session.MediaTitle,
		RatingKey:      entry.session.RatingKey,
		Action:         database.OverrideActionRestored,
		SavedStreamID:  int64(saved.SavedStreamID),
		ForcedStreamID: int64(saved.ForcedStreamID),
		PositionMs:     entry.session.ViewOffset,
	})

	m.broadcast(sse.EventOverrideRestored, map[string]any{
		"session_key":     key,
		"media_title":     entry.session.MediaTitle,
		"user_title":      entry.session.UserTitle,
		"saved_stream_id": saved.SavedStreamID,
	})

	if saved.ForcedStreamID != 0 && saved.SavedStreamID != saved.ForcedStreamID {
		m.notifyFields(notification.EventOverrideRestored, "Subtitles restored",
			fmt.Sprintf("Playback settled for %s", entry.session.UserTitle),
			map[string]string{
				"Media":  entry.session.MediaTitle,
				"Player": entry.session.PlayerTitle,
			})
	}
}

func (m *Monitor) recordRestoreFailed(entry *sessionEntry, cause error) {
	key := entry.session.SessionKey

	m.audit(&database.OverrideEvent{
		SessionKey:  key,
		UserTitle:   entry.session.UserTitle,
		PlayerTitle: entry.session.PlayerTitle,
		MediaTitle:  entry.session.MediaTitle,
		RatingKey:   entry.session.RatingKey,
		Action:      database.OverrideActionRestoreFailed,
		PositionMs:  entry.session.ViewOffset,
		Detail:      cause.Error(),
	})

	m.broadcast(sse.EventRestoreFailed, map[string]any{
		"session_key": key,
		"media_title": entry.session.MediaTitle,
		"error":       cause.Error(),
	})

	m.notifyFields(notification.EventRestoreFailed, "Subtitle restore failed",
		cause.Error(),
		map[string]string{
			"Media":  entry.session.MediaTitle,
			"User":   entry.session.UserTitle,
			"Player": entry.session.PlayerTitle,
		})
}

// publishStatus snapshots the session table for concurrent readers and
// broadcasts it to SSE clients.
func (m *Monitor) publishStatus(state MonitoringState, lastPoll time.Time) {
	status := Status{
		Running:         true,
		State:           state.String(),
		ConnectionLost:  m.connectionLost,
		SessionCount:    len(m.sessions),
		ActiveOverrides: m.control.ActiveCount(),
		LastPoll:        lastPoll,
		Sessions:        make([]SessionStatus, 0, len(m.sessions)),
	}

	for key, entry := range m.sessions {
		_, overrideActive := m.control.Active(key)
		status.Sessions = append(status.Sessions, SessionStatus{
			SessionKey:     key,
			MediaTitle:     entry.session.MediaTitle,
			UserTitle:      entry.session.UserTitle,
			PlayerTitle:    entry.session.PlayerTitle,
			State:          entry.session.State,
			PositionMs:     entry.session.ViewOffset,
			Position:       media.FormatMillis(entry.session.ViewOffset),
			DurationMs:     entry.session.Duration,
			Duration:       media.FormatMillis(entry.session.Duration),
			SubtitleCount:  len(entry.session.Subtitles),
			Transition:     entry.lastTransition.String(),
			DetectorState:  entry.detector.State().String(),
			OverrideActive: overrideActive,
			MissedPolls:    entry.missedPolls,
			LastSeen:       entry.lastSeen,
		})
	}

	slices.SortFunc(status.Sessions, func(a, b SessionStatus) int {
		return strings.Compare(a.SessionKey, b.SessionKey)
	})

	m.statusMu.Lock()
	m.status = status
	m.statusMu.Unlock()

	m.broadcast(sse.EventMonitorStatus, status)
}

// audit writes an override event row. Failures are logged, never fatal; the
// audit trail is advisory.
func (m *Monitor) audit(event *database.OverrideEvent) {
	if m.db == nil {
		return
	}
	if err := m.db.InsertOverrideEvent(event); err != nil {
		log.Error().Err(err).Msg("Failed to record override event")
	}
}

func (m *Monitor) broadcast(eventType sse.EventType, data any) {
	if m.sseBroker != nil {
		m.sseBroker.Broadcast(sse.Event{Type: eventType, Data: data})
	}
}

func (m *Monitor) notify(eventType notification.EventType, title, message string) {
	if m.notifier != nil {
		m.notifier.NotifySimple(eventType, title, message)
	}
}

func (m *Monitor) notifyFields(eventType notification.EventType, title, message string, fields map[string]string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(notification.Event{
		Type:      eventType,
		Title:     title,
		Message:   message,
		Fields:    fields,
		Timestamp: time.Now(),
	})
}
