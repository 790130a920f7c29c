package plex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/subrewind/internal/config"
	"github.com/saltyorg/subrewind/internal/httpclient"
)

// Client talks to a single Plex server over its HTTP API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a client for the given server URL and token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  httpclient.NewTraceClient("plex", config.GetTimeouts().HTTPClient),
	}
}

// Session is one active playback session reported by the server.
type Session struct {
	SessionKey  string
	RatingKey   string
	MediaTitle  string
	MediaType   string
	UserTitle   string
	PlayerTitle string
	MachineID   string
	State       string // playing, paused, buffering
	ViewOffset  int64  // milliseconds
	Duration    int64  // milliseconds

	// PartID identifies the media part stream selections apply to. Zero when
	// the session carries no part information (photo slideshows and the like).
	PartID int

	AudioStreamID    int // selected audio stream, zero when none reported
	SubtitleStreamID int // selected subtitle stream, zero when subtitles are off
	Subtitles        []SubtitleStream
}

// Paused reports whether the player is paused.
func (s *Session) Paused() bool {
	return s.State == "paused"
}

// SubtitleStream describes one subtitle track available on the playing part.
type SubtitleStream struct {
	ID              int
	LanguageCode    string
	LanguageTag     string
	Codec           string
	Title           string
	DisplayTitle    string
	Forced          bool
	HearingImpaired bool
	Selected        bool
	Default         bool
	Index           int
}

// Identity is the subset of /identity the setup flow cares about.
type Identity struct {
	MachineIdentifier string `json:"machineIdentifier"`
	Version           string `json:"version"`
}

// TestConnection verifies the server is reachable and the token is accepted.
func (c *Client) TestConnection(ctx context.Context) (*Identity, error) {
	identityURL := c.baseURL + "/identity"

	req, err := http.NewRequestWithContext(ctx, "GET", identityURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transient("identity check", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidToken
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plex: %s returned status %d", identityURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transient("identity check", err)
	}

	var identityResp plexIdentityResponse
	if err := json.Unmarshal(body, &identityResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &identityResp.MediaContainer, nil
}

// GetSessions returns the active playback sessions.
func (c *Client) GetSessions(ctx context.Context) ([]Session, error) {
	sessionsURL := c.baseURL + "/status/sessions"

	req, err := http.NewRequestWithContext(ctx, "GET", sessionsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transient("fetch sessions", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidToken
	}

	if resp.StatusCode != http.StatusOK {
		return nil, transient("fetch sessions", fmt.Errorf("server returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transient("fetch sessions", err)
	}

	var sessionsResp plexSessionsResponse
	if err := json.Unmarshal(body, &sessionsResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	sessions := make([]Session, 0, len(sessionsResp.MediaContainer.Metadata))
	for i := range sessionsResp.MediaContainer.Metadata {
		sessions = append(sessions, convertSession(&sessionsResp.MediaContainer.Metadata[i]))
	}

	return sessions, nil
}

// SetStreams updates the stream selection for a media part.
// audioStreamID: the stream to select, or 0 to leave unchanged.
// subtitleStreamID: the stream to select, 0 to disable subtitles, -1 to leave unchanged.
func (c *Client) SetStreams(ctx context.Context, partID, audioStreamID, subtitleStreamID int) error {
	setURL := fmt.Sprintf("%s/library/parts/%d", c.baseURL, partID)

	params := url.Values{}

	if audioStreamID > 0 {
		params.Set("audioStreamID", fmt.Sprintf("%d", audioStreamID))
	}

	// subtitleStreamID: 0 = disable, >0 = set specific stream, -1 = don't change
	if subtitleStreamID >= 0 {
		params.Set("subtitleStreamID", fmt.Sprintf("%d", subtitleStreamID))
	}

	if len(params) == 0 {
		return nil // Nothing to change
	}

	req, err := http.NewRequestWithContext(ctx, "PUT", setURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Plex-Token", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return transient("set streams", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidToken
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("part %d: %w", partID, ErrSessionGone)
	case resp.StatusCode >= 500:
		return transient("set streams", fmt.Errorf("server returned status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("plex: set streams returned status %d: %s", resp.StatusCode, string(body))
	}

	log.Debug().
		Int("part_id", partID).
		Int("audio_stream_id", audioStreamID).
		Int("subtitle_stream_id", subtitleStreamID).
		Msg("Set stream selection")

	return nil
}

func convertSession(item *plexSessionItem) Session {
	session := Session{
		SessionKey: item.SessionKey,
		RatingKey:  item.RatingKey,
		MediaType:  item.Type,
		UserTitle:  item.User.Title,
		MachineID:  item.Player.MachineIdentifier,
		State:      item.Player.State,
		ViewOffset: item.ViewOffset,
		Duration:   item.Duration,
	}

	// Format title: "Show Name - Episode Name" for episodes with grandparentTitle
	if item.Type == "episode" && item.GrandparentTitle != "" {
		session.MediaTitle = item.GrandparentTitle + " - " + item.Title
	} else {
		session.MediaTitle = item.Title
	}

	if item.Player.Title != "" {
		session.PlayerTitle = item.Player.Title
	} else {
		session.PlayerTitle = item.Player.Product
	}

	part := playingPart(item)
	if part == nil {
		return session
	}

	session.PartID = part.ID
	for _, stream := range part.Stream {
		switch stream.StreamType {
		case 2: // Audio
			if stream.Selected {
				session.AudioStreamID = stream.ID
			}
		case 3: // Subtitle
			session.Subtitles = append(session.Subtitles, SubtitleStream{
				ID:              stream.ID,
				LanguageCode:    stream.LanguageCode,
				LanguageTag:     stream.LanguageTag,
				Codec:           stream.Codec,
				Title:           stream.Title,
				DisplayTitle:    stream.DisplayTitle,
				Forced:          stream.Forced,
				HearingImpaired: stream.HearingImpaired,
				Selected:        stream.Selected,
				Default:         stream.Default,
				Index:           stream.Index,
			})
			if stream.Selected {
				session.SubtitleStreamID = stream.ID
			}
		}
	}

	return session
}

// playingPart picks the media part the session is actually streaming.
// Multi-version media lists every part, so prefer the one marked selected or
// carrying a selected stream and fall back to the first.
func playingPart(item *plexSessionItem) *plexSessionPart {
	var first *plexSessionPart
	for mi := range item.Media {
		for pi := range item.Media[mi].Part {
			part := &item.Media[mi].Part[pi]
			if part.ID == 0 {
				continue
			}
			if first == nil {
				first = part
			}
			if part.Selected {
				return part
			}
			for _, stream := range part.Stream {
				if stream.Selected {
					return part
				}
			}
		}
	}
	return first
}

// Plex JSON structures for the sessions API
type plexSessionsResponse struct {
	MediaContainer plexSessionsContainer `json:"MediaContainer"`
}

type plexSessionsContainer struct {
	Size     int               `json:"size"`
	Metadata []plexSessionItem `json:"Metadata"`
}

type plexSessionItem struct {
	SessionKey       string             `json:"sessionKey"`
	RatingKey        string             `json:"ratingKey"`
	Title            string             `json:"title"`
	GrandparentTitle string             `json:"grandparentTitle"` // Show name for episodes
	Type             string             `json:"type"`
	Duration         int64              `json:"duration"`
	ViewOffset       int64              `json:"viewOffset"`
	User             plexSessionUser    `json:"User"`
	Player           plexSessionPlayer  `json:"Player"`
	Media            []plexSessionMedia `json:"Media"`
}

type plexSessionUser struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type plexSessionPlayer struct {
	Title             string `json:"title"`
	Product           string `json:"product"`
	State             string `json:"state"` // playing, paused, buffering
	MachineIdentifier string `json:"machineIdentifier"`
}

type plexSessionMedia struct {
	ID   int               `json:"id"`
	Part []plexSessionPart `json:"Part"`
}

type plexSessionPart struct {
	ID       int                 `json:"id"`
	Selected bool                `json:"selected"`
	Stream   []plexSessionStream `json:"Stream"`
}

type plexSessionStream struct {
	ID              int    `json:"id"`
	StreamType      int    `json:"streamType"` // 1=video, 2=audio, 3=subtitle
	Default         bool   `json:"default"`
	Selected        bool   `json:"selected"`
	LanguageCode    string `json:"languageCode,omitempty"`
	LanguageTag     string `json:"languageTag,omitempty"`
	Codec           string `json:"codec,omitempty"`
	Title           string `json:"title,omitempty"`
	DisplayTitle    string `json:"displayTitle,omitempty"`
	Forced          bool   `json:"forced,omitempty"`
	HearingImpaired bool   `json:"hearingImpaired,omitempty"`
	Index           int    `json:"index"`
}

type plexIdentityResponse struct {
	MediaContainer Identity `json:"MediaContainer"`
}
