package monitor

import (
	"testing"
	"time"

	"github.com/saltyorg/subrewind/internal/config"
)

type settingsMap map[string]string

func (s settingsMap) GetSetting(key string) (string, error) {
	return s[key], nil
}

func TestDefaultOptionsValid(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"defaults", func(o *Options) {}, false},
		{"zero threshold", func(o *Options) { o.RewindThreshold = 0 }, true},
		{"negative max rewind", func(o *Options) { o.MaxRewind = -time.Second }, true},
		{"max rewind below threshold", func(o *Options) { o.MaxRewind = 3 * time.Second }, true},
		{"max rewind disabled", func(o *Options) { o.MaxRewind = 0 }, false},
		{"zero active interval", func(o *Options) { o.ActiveInterval = 0 }, true},
		{"idle shorter than active", func(o *Options) { o.IdleInterval = time.Second }, true},
		{"idle equal to active", func(o *Options) { o.IdleInterval = o.ActiveInterval }, false},
		{"zero grace", func(o *Options) { o.GraceMissedPolls = 0 }, true},
		{"zero confirm cycles", func(o *Options) { o.ForwardConfirmCycles = 0 }, true},
		{"negative jitter", func(o *Options) { o.JitterTolerance = -time.Second }, true},
		{"jitter at threshold", func(o *Options) { o.JitterTolerance = o.RewindThreshold }, true},
		{"zero jitter", func(o *Options) { o.JitterTolerance = 0 }, false},
		{"negative sample interval", func(o *Options) { o.MinSampleInterval = -time.Second }, true},
		{"zero sample interval", func(o *Options) { o.MinSampleInterval = 0 }, false},
		{"zero retry limit", func(o *Options) { o.CommandRetryLimit = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)

			err := opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOptionsFromSettings(t *testing.T) {
	loader := config.NewLoader(settingsMap{
		"monitor.rewind_threshold_seconds":    "8",
		"monitor.idle_poll_seconds":           "30",
		"monitor.forward_confirm_cycles":      "4",
		"monitor.jitter_tolerance_seconds":    "2.5",
		"monitor.min_sample_interval_ms":      "250",
		"monitor.preferred_subtitle_language": "eng",
	})

	opts := OptionsFromSettings(loader)

	if opts.RewindThreshold != 8*time.Second {
		t.Errorf("RewindThreshold = %s, want 8s", opts.RewindThreshold)
	}
	if opts.IdleInterval != 30*time.Second {
		t.Errorf("IdleInterval = %s, want 30s", opts.IdleInterval)
	}
	if opts.ForwardConfirmCycles != 4 {
		t.Errorf("ForwardConfirmCycles = %d, want 4", opts.ForwardConfirmCycles)
	}
	if opts.JitterTolerance != 2500*time.Millisecond {
		t.Errorf("JitterTolerance = %s, want 2.5s", opts.JitterTolerance)
	}
	if opts.MinSampleInterval != 250*time.Millisecond {
		t.Errorf("MinSampleInterval = %s, want 250ms", opts.MinSampleInterval)
	}
	if opts.PreferredLanguage != "eng" {
		t.Errorf("PreferredLanguage = %q, want %q", opts.PreferredLanguage, "eng")
	}

	// Unset keys keep their defaults.
	def := DefaultOptions()
	if opts.ActiveInterval != def.ActiveInterval {
		t.Errorf("ActiveInterval = %s, want default %s", opts.ActiveInterval, def.ActiveInterval)
	}
	if opts.MaxRewind != def.MaxRewind {
		t.Errorf("MaxRewind = %s, want default %s", opts.MaxRewind, def.MaxRewind)
	}
	if opts.CommandRetryLimit != def.CommandRetryLimit {
		t.Errorf("CommandRetryLimit = %d, want default %d", opts.CommandRetryLimit, def.CommandRetryLimit)
	}
}

func TestOptionsFromSettingsInvalidValues(t *testing.T) {
	loader := config.NewLoader(settingsMap{
		"monitor.rewind_threshold_seconds": "not-a-number",
		"monitor.grace_missed_polls":       "",
	})

	opts := OptionsFromSettings(loader)
	def := DefaultOptions()

	if opts.RewindThreshold != def.RewindThreshold {
		t.Errorf("RewindThreshold = %s, want default %s", opts.RewindThreshold, def.RewindThreshold)
	}
	if opts.GraceMissedPolls != def.GraceMissedPolls {
		t.Errorf("GraceMissedPolls = %d, want default %d", opts.GraceMissedPolls, def.GraceMissedPolls)
	}
}
