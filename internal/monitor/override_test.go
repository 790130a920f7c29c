package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/saltyorg/subrewind/internal/plex"
)

type setCall struct {
	partID   int
	audio    int
	subtitle int
}

// fakeSetter records stream commands and fails them while err is set.
type fakeSetter struct {
	calls []setCall
	err   error
}

func (f *fakeSetter) SetStreams(_ context.Context, partID, audioStreamID, subtitleStreamID int) error {
	f.calls = append(f.calls, setCall{partID, audioStreamID, subtitleStreamID})
	return f.err
}

func overrideSession(selected int, subs ...plex.SubtitleStream) plex.Session {
	return plex.Session{
		SessionKey:       "77",
		RatingKey:        "9001",
		MediaTitle:       "Heat",
		UserTitle:        "alice",
		PlayerTitle:      "Living Room TV",
		State:            "playing",
		ViewOffset:       1_200_000,
		Duration:         10_200_000,
		PartID:           500,
		SubtitleStreamID: selected,
		Subtitles:        subs,
	}
}

func TestApplySavesAndForces(t *testing.T) {
	setter := &fakeSetter{}
	c := NewController(setter, "")
	session := overrideSession(0,
		plex.SubtitleStream{ID: 301, LanguageCode: "eng"},
		plex.SubtitleStream{ID: 302, LanguageCode: "ger", Default: true},
	)

	if err := c.Apply(context.Background(), &session); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if len(setter.calls) != 1 {
		t.Fatalf("got %d commands, want 1", len(setter.calls))
	}
	if got, want := setter.calls[0], (setCall{500, 0, 302}); got != want {
		t.Errorf("command = %+v, want %+v", got, want)
	}

	state, active := c.Active("77")
	if !active {
		t.Fatal("Active() = false, want true")
	}
	if state.SavedStreamID != 0 || state.ForcedStreamID != 302 {
		t.Errorf("state = saved %d forced %d, want saved 0 forced 302", state.SavedStreamID, state.ForcedStreamID)
	}
}

func TestApplyPrefersLanguage(t *testing.T) {
	tests := []struct {
		name      string
		preferred string
		subs      []plex.SubtitleStream
		want      int
	}{
		{
			name:      "language code match beats default flag",
			preferred: "ger",
			subs: []plex.SubtitleStream{
				{ID: 301, LanguageCode: "eng", Default: true},
				{ID: 302, LanguageCode: "ger"},
			},
			want: 302,
		},
		{
			name:      "language tag match",
			preferred: "pt-BR",
			subs: []plex.SubtitleStream{
				{ID: 301, LanguageCode: "eng"},
				{ID: 303, LanguageCode: "por", LanguageTag: "pt-BR"},
			},
			want: 303,
		},
		{
			name:      "no preference picks default flag",
			preferred: "",
			subs: []plex.SubtitleStream{
				{ID: 301, LanguageCode: "eng"},
				{ID: 302, LanguageCode: "ger", Default: true},
			},
			want: 302,
		},
		{
			name:      "no default falls back to first",
			preferred: "",
			subs: []plex.SubtitleStream{
				{ID: 301, LanguageCode: "eng"},
				{ID: 302, LanguageCode: "ger"},
			},
			want: 301,
		},
		{
			name:      "unmatched preference falls back to default flag",
			preferred: "jpn",
			subs: []plex.SubtitleStream{
				{ID: 301, LanguageCode: "eng"},
				{ID: 302, LanguageCode: "ger", Default: true},
			},
			want: 302,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setter := &fakeSetter{}
			c := NewController(setter, tt.preferred)
			session := overrideSession(0, tt.subs...)

			if err := c.Apply(context.Background(), &session); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if len(setter.calls) != 1 {
				t.Fatalf("got %d commands, want 1", len(setter.calls))
			}
			if setter.calls[0].subtitle != tt.want {
				t.Errorf("forced stream = %d, want %d", setter.calls[0].subtitle, tt.want)
			}
		})
	}
}

func TestApplyAlreadyShowingTarget(t *testing.T) {
	setter := &fakeSetter{}
	c := NewController(setter, "")
	session := overrideSession(302,
		plex.SubtitleStream{ID: 302, LanguageCode: "eng", Default: true, Selected: true},
	)

	if err := c.Apply(context.Background(), &session); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(setter.calls) != 0 {
		t.Fatalf("got %d commands, want 0", len(setter.calls))
	}

	// Still tracked so the restore path runs, and the restore itself sends
	// nothing because nothing changed.
	if _, active := c.Active("77"); !active {
		t.Fatal("Active() = false, want true")
	}
	if err := c.Restore(context.Background(), "77"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(setter.calls) != 0 {
		t.Errorf("restore issued %d commands, want 0", len(setter.calls))
	}
	if _, active := c.Active("77"); active {
		t.Error("Active() = true after restore, want false")
	}
}

func TestApplyNoSubtitleStreams(t *testing.T) {
	setter := &fakeSetter{}
	c := NewController(setter, "")
	session := overrideSession(0)

	if err := c.Apply(context.Background(), &session); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(setter.calls) != 0 {
		t.Fatalf("got %d commands, want 0", len(setter.calls))
	}

	state, active := c.Active("77")
	if !active {
		t.Fatal("Active() = false, want true")
	}
	if state.ForcedStreamID != 0 {
		t.Errorf("ForcedStreamID = %d, want 0", state.ForcedStreamID)
	}

	if err := c.Restore(context.Background(), "77"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(setter.calls) != 0 {
		t.Errorf("restore issued %d commands, want 0", len(setter.calls))
	}
}

func TestApplyKeepsSaveAcrossReentry(t *testing.T) {
	setter := &fakeSetter{}
	c := NewController(setter, "")
	session := overrideSession(301,
		plex.SubtitleStream{ID: 301, LanguageCode: "eng", Selected: true},
		plex.SubtitleStream{ID: 302, LanguageCode: "ger", Default: true},
	)

	if err := c.Apply(context.Background(), &session); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(setter.calls) != 1 {
		t.Fatalf("got %d commands, want 1", len(setter.calls))
	}

	// The next poll reports the forced stream showing; re-applying must not
	// send anything or re-save.
	session.SubtitleStreamID = 302
	if err := c.Apply(context.Background(), &session); err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if len(setter.calls) != 1 {
		t.Fatalf("got %d commands after re-entry, want 1", len(setter.calls))
	}

	// The user flips subtitles off mid-override; re-applying re-asserts the
	// forced stream but the original save survives.
	session.SubtitleStreamID = 0
	if err := c.Apply(context.Background(), &session); err != nil {
		t.Fatalf("third Apply() error = %v", err)
	}
	if len(setter.calls) != 2 {
		t.Fatalf("got %d commands after re-assert, want 2", len(setter.calls))
	}
	if setter.calls[1].subtitle != 302 {
		t.Errorf("re-assert forced stream %d, want 302", setter.calls[1].subtitle)
	}

	state, _ := c.Active("77")
	if state.SavedStreamID != 301 {
		t.Errorf("SavedStreamID = %d, want 301 after re-entries", state.SavedStreamID)
	}
}

func TestApplyStoresBeforeSend(t *testing.T) {
	setter := &fakeSetter{err: errors.New("connection reset")}
	c := NewController(setter, "")
	session := overrideSession(301,
		plex.SubtitleStream{ID: 301, LanguageCode: "eng", Selected: true},
		plex.SubtitleStream{ID: 302, LanguageCode: "ger", Default: true},
	)

	if err := c.Apply(context.Background(), &session); err == nil {
		t.Fatal("Apply() error = nil, want error")
	}

	// The saved selection survives the failed send.
	state, active := c.Active("77")
	if !active {
		t.Fatal("Active() = false after failed apply, want true")
	}
	if state.SavedStreamID != 301 {
		t.Errorf("SavedStreamID = %d, want 301", state.SavedStreamID)
	}

	setter.err = nil
	if err := c.Apply(context.Background(), &session); err != nil {
		t.Fatalf("retried Apply() error = %v", err)
	}
	if got := setter.calls[len(setter.calls)-1].subtitle; got != 302 {
		t.Errorf("retried command forced stream %d, want 302", got)
	}
}

func TestRestoreReturnsOriginalSelection(t *testing.T) {
	setter := &fakeSetter{}
	c := NewController(setter, "")
	session := overrideSession(301,
		plex.SubtitleStream{ID: 301, LanguageCode: "eng", Selected: true},
		plex.SubtitleStream{ID: 302, LanguageCode: "ger", Default: true},
	)

	if err := c.Apply(context.Background(), &session); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := c.Restore(context.Background(), "77"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if len(setter.calls) != 2 {
		t.Fatalf("got %d commands, want 2", len(setter.calls))
	}
	if got, want := setter.calls[1], (setCall{500, 0, 301}); got != want {
		t.Errorf("restore command = %+v, want %+v", got, want)
	}

	// Restoring again is a no-op.
	if err := c.Restore(context.Background(), "77"); err != nil {
		t.Fatalf("second Restore() error = %v", err)
	}
	if len(setter.calls) != 2 {
		t.Errorf("got %d commands after double restore, want 2", len(setter.calls))
	}
}

func TestRestoreDisablesWhenSubtitlesWereOff(t *testing.T) {
	setter := &fakeSetter{}
	c := NewController(setter, "")
	session := overrideSession(0,
		plex.SubtitleStream{ID: 302, LanguageCode: "eng", Default: true},
	)

	if err := c.Apply(context.Background(), &session); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := c.Restore(context.Background(), "77"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	// Subtitles were off before the rewind, so the restore turns them off.
	if got, want := setter.calls[1], (setCall{500, 0, 0}); got != want {
		t.Errorf("restore command = %+v, want %+v", got, want)
	}
}

func TestRestoreKeepsStateOnFailure(t *testing.T) {
	setter := &fakeSetter{}
	c := NewController(setter, "")
	session := overrideSession(301,
		plex.SubtitleStream{ID: 301, LanguageCode: "eng", Selected: true},
		plex.SubtitleStream{ID: 302, LanguageCode: "ger", Default: true},
	)

	if err := c.Apply(context.Background(), &session); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	setter.err = errors.New("timeout")
	if err := c.Restore(context.Background(), "77"); err == nil {
		t.Fatal("Restore() error = nil, want error")
	}
	if _, active := c.Active("77"); !active {
		t.Fatal("Active() = false after failed restore, want true")
	}

	setter.err = nil
	if err := c.Restore(context.Background(), "77"); err != nil {
		t.Fatalf("retried Restore() error = %v", err)
	}
	if _, active := c.Active("77"); active {
		t.Error("Active() = true after successful retry, want false")
	}
}

func TestRestoreUnknownSessionIsNoOp(t *testing.T) {
	setter := &fakeSetter{}
	c := NewController(setter, "")

	if err := c.Restore(context.Background(), "nope"); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(setter.calls) != 0 {
		t.Errorf("got %d commands, want 0", len(setter.calls))
	}
}

func TestDropAbandonsOverride(t *testing.T) {
	setter := &fakeSetter{}
	c := NewController(setter, "")
	session := overrideSession(0,
		plex.SubtitleStream{ID: 302, LanguageCode: "eng", Default: true},
	)

	if err := c.Apply(context.Background(), &session); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if c.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", c.ActiveCount())
	}

	c.Drop("77")
	if c.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", c.ActiveCount())
	}

	if err := c.Restore(context.Background(), "77"); err != nil {
		t.Fatalf("Restore() after Drop error = %v", err)
	}
	if len(setter.calls) != 1 {
		t.Errorf("got %d commands, want 1 (the apply only)", len(setter.calls))
	}
}
