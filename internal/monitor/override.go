package monitor

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/plex"
)

// StreamSetter is the slice of the Plex client the override controller uses.
type StreamSetter interface {
	SetStreams(ctx context.Context, partID, audioStreamID, subtitleStreamID int) error
}

// OverrideState records one session's forced-subtitle override so the
// original selection can be restored exactly.
type OverrideState struct {
	// SavedStreamID is the subtitle stream selected before the override.
	// Zero means subtitles were off.
	SavedStreamID int

	// ForcedStreamID is the stream the override selected. Zero means the
	// session had no subtitle streams and the override was a tracked no-op.
	ForcedStreamID int

	// PartID the commands are issued against.
	PartID int

	AppliedAt time.Time
}

// Controller issues subtitle stream commands and remembers each session's
// pre-override selection. Owned by the poll loop; not safe for concurrent
// use.
type Controller struct {
	client    StreamSetter
	preferred string
	overrides map[string]*OverrideState
}

// NewController creates a controller with no active overrides. preferredLang
// biases which subtitle stream gets forced on.
func NewController(client StreamSetter, preferredLang string) *Controller {
	return &Controller{
		client:    client,
		preferred: preferredLang,
		overrides: make(map[string]*OverrideState),
	}
}

// Apply saves the session's current subtitle selection and forces a subtitle
// stream on. The saved selection is recorded before any command is sent, so
// a failed send never loses the original. Calling Apply again while the
// override is active re-asserts the forced stream without touching the save.
func (c *Controller) Apply(ctx context.Context, session *plex.Session) error {
	if state, exists := c.overrides[session.SessionKey]; exists {
		if state.ForcedStreamID == 0 || session.SubtitleStreamID == state.ForcedStreamID {
			return nil
		}
		return c.client.SetStreams(ctx, state.PartID, 0, state.ForcedStreamID)
	}

	// Store before send.
	state := &OverrideState{
		SavedStreamID: session.SubtitleStreamID,
		PartID:        session.PartID,
		AppliedAt:     time.Now(),
	}
	c.overrides[session.SessionKey] = state

	target := pickSubtitleStream(session, c.preferred)
	if target == nil {
		// No subtitle streams to force. Still tracked so the state machine
		// walks its normal restore path.
		log.Debug().
			Str("session", session.SessionKey).
			Str("media", session.MediaTitle).
			Msg("Rewind detected but media has no subtitle streams")
		return nil
	}

	state.ForcedStreamID = target.ID

	if session.SubtitleStreamID == target.ID {
		// The stream we would force is already showing.
		log.Debug().
			Str("session", session.SessionKey).
			Int("stream_id", target.ID).
			Msg("Subtitles already active, override is a no-op")
		return nil
	}

	if err := c.client.SetStreams(ctx, session.PartID, 0, target.ID); err != nil {
		return err
	}

	log.Info().
		Str("session", session.SessionKey).
		Str("media", session.MediaTitle).
		Str("user", session.UserTitle).
		Int("saved_stream_id", state.SavedStreamID).
		Int("forced_stream_id", target.ID).
		Str("subtitle", target.DisplayTitle).
		Msg("Forced subtitles on after rewind")

	return nil
}

// Restore puts the saved selection back and clears the override. It is
// idempotent: restoring a session with no active override is a no-op, and a
// failed command keeps the saved state so the caller can retry.
func (c *Controller) Restore(ctx context.Context, sessionKey string) error {
	state, exists := c.overrides[sessionKey]
	if !exists {
		return nil
	}

	if state.ForcedStreamID == 0 || state.SavedStreamID == state.ForcedStreamID {
		// The override never changed the selection; nothing to send.
		delete(c.overrides, sessionKey)
		return nil
	}

	if err := c.client.SetStreams(ctx, state.PartID, 0, state.SavedStreamID); err != nil {
		return err
	}

	delete(c.overrides, sessionKey)

	log.Info().
		Str("session", sessionKey).
		Int("restored_stream_id", state.SavedStreamID).
		Msg("Restored original subtitle selection")

	return nil
}

// Active returns the override record for a session when one is held.
func (c *Controller) Active(sessionKey string) (OverrideState, bool) {
	state, exists := c.overrides[sessionKey]
	if !exists {
		return OverrideState{}, false
	}
	return *state, true
}

// ActiveCount reports how many sessions currently hold an override.
func (c *Controller) ActiveCount() int {
	return len(c.overrides)
}

// Drop abandons a session's override record without issuing a command. Used
// when a session is disposed after its best-effort restore already failed.
func (c *Controller) Drop(sessionKey string) {
	delete(c.overrides, sessionKey)
}

// pickSubtitleStream chooses the stream an override forces on: a preferred
// language match first, then the stream flagged default, then the first one
// listed. Returns nil when the part has no subtitle streams.
func pickSubtitleStream(session *plex.Session, preferredLang string) *plex.SubtitleStream {
	if len(session.Subtitles) == 0 {
		return nil
	}

	if preferredLang != "" {
		for i := range session.Subtitles {
			s := &session.Subtitles[i]
			if strings.EqualFold(s.LanguageCode, preferredLang) || strings.EqualFold(s.LanguageTag, preferredLang) {
				return s
			}
		}
	}

	for i := range session.Subtitles {
		if session.Subtitles[i].Default {
			return &session.Subtitles[i]
		}
	}

	return &session.Subtitles[0]
}
