package monitor

import (
	"fmt"
	"time"

	"github.com/saltyorg/subrewind/internal/config"
)

// Options is the fixed tuning record a monitor run operates with. A fresh
// record is built from settings on every start and reload.
type Options struct {
	// RewindThreshold is the smallest backward position jump treated as a
	// deliberate rewind.
	RewindThreshold time.Duration

	// MaxRewind caps how far back a jump may go and still count as a rewind.
	// Jumping back further than this (restarting an episode) is not a
	// "catch that line" rewind. Zero disables the cap.
	MaxRewind time.Duration

	// ActiveInterval is the poll cadence while sessions exist.
	ActiveInterval time.Duration

	// IdleInterval is the poll cadence while no sessions exist.
	IdleInterval time.Duration

	// GraceMissedPolls is how many consecutive polls a session may be absent
	// before it is dropped from the table.
	GraceMissedPolls int

	// ForwardConfirmCycles is how many consecutive forward classifications
	// are required before an active override is restored.
	ForwardConfirmCycles int

	// JitterTolerance absorbs position noise from player ticks and buffering
	// in both directions.
	JitterTolerance time.Duration

	// MinSampleInterval guards against duplicate polls; no transition is
	// classified across a shorter gap.
	MinSampleInterval time.Duration

	// CommandRetryLimit bounds how many cycles a failed stream command is
	// retried before the intent is abandoned.
	CommandRetryLimit int

	// PreferredLanguage biases which subtitle stream an override selects
	// (ISO 639 code such as "eng"). Empty means no preference.
	PreferredLanguage string

	// UseNotifications runs the Plex websocket listener so playback
	// notifications wake the poll loop between cycles.
	UseNotifications bool
}

// DefaultOptions returns the tuning used when no settings are stored.
func DefaultOptions() Options {
	return Options{
		RewindThreshold:      5 * time.Second,
		MaxRewind:            300 * time.Second,
		ActiveInterval:       2 * time.Second,
		IdleInterval:         20 * time.Second,
		GraceMissedPolls:     3,
		ForwardConfirmCycles: 2,
		JitterTolerance:      1500 * time.Millisecond,
		MinSampleInterval:    800 * time.Millisecond,
		CommandRetryLimit:    3,
		UseNotifications:     true,
	}
}

// OptionsFromSettings builds Options from stored settings, falling back to
// defaults for missing or invalid keys.
func OptionsFromSettings(loader *config.Loader) Options {
	def := DefaultOptions()
	return Options{
		RewindThreshold:      loader.DurationSeconds("monitor.rewind_threshold_seconds", int(def.RewindThreshold/time.Second)),
		MaxRewind:            loader.DurationSeconds("monitor.max_rewind_seconds", int(def.MaxRewind/time.Second)),
		ActiveInterval:       loader.DurationSeconds("monitor.active_poll_seconds", int(def.ActiveInterval/time.Second)),
		IdleInterval:         loader.DurationSeconds("monitor.idle_poll_seconds", int(def.IdleInterval/time.Second)),
		GraceMissedPolls:     loader.Int("monitor.grace_missed_polls", def.GraceMissedPolls),
		ForwardConfirmCycles: loader.Int("monitor.forward_confirm_cycles", def.ForwardConfirmCycles),
		JitterTolerance:      time.Duration(loader.Float64("monitor.jitter_tolerance_seconds", def.JitterTolerance.Seconds()) * float64(time.Second)),
		MinSampleInterval:    time.Duration(loader.Int("monitor.min_sample_interval_ms", int(def.MinSampleInterval/time.Millisecond))) * time.Millisecond,
		CommandRetryLimit:    loader.Int("monitor.command_retry_limit", def.CommandRetryLimit),
		PreferredLanguage:    loader.String("monitor.preferred_subtitle_language", ""),
		UseNotifications:     loader.BoolDefaultTrue("monitor.use_notifications"),
	}
}

// Validate rejects option combinations the monitor cannot run with.
func (o Options) Validate() error {
	if o.RewindThreshold <= 0 {
		return fmt.Errorf("rewind threshold must be positive, got %s", o.RewindThreshold)
	}
	if o.MaxRewind < 0 {
		return fmt.Errorf("max rewind must be zero or positive, got %s", o.MaxRewind)
	}
	if o.MaxRewind > 0 && o.MaxRewind <= o.RewindThreshold {
		return fmt.Errorf("max rewind %s must exceed rewind threshold %s", o.MaxRewind, o.RewindThreshold)
	}
	if o.ActiveInterval <= 0 {
		return fmt.Errorf("active poll interval must be positive, got %s", o.ActiveInterval)
	}
	if o.IdleInterval < o.ActiveInterval {
		return fmt.Errorf("idle poll interval %s must not be shorter than active interval %s", o.IdleInterval, o.ActiveInterval)
	}
	if o.GraceMissedPolls < 1 {
		return fmt.Errorf("missed poll grace must be at least 1, got %d", o.GraceMissedPolls)
	}
	if o.ForwardConfirmCycles < 1 {
		return fmt.Errorf("forward confirmation cycles must be at least 1, got %d", o.ForwardConfirmCycles)
	}
	if o.JitterTolerance < 0 {
		return fmt.Errorf("jitter tolerance must be zero or positive, got %s", o.JitterTolerance)
	}
	if o.JitterTolerance >= o.RewindThreshold {
		return fmt.Errorf("jitter tolerance %s must stay below rewind threshold %s", o.JitterTolerance, o.RewindThreshold)
	}
	if o.MinSampleInterval < 0 {
		return fmt.Errorf("minimum sample interval must be zero or positive, got %s", o.MinSampleInterval)
	}
	if o.CommandRetryLimit < 1 {
		return fmt.Errorf("command retry limit must be at least 1, got %d", o.CommandRetryLimit)
	}
	return nil
}
