package config

import (
	"errors"
	"testing"
	"time"
)

// mapSettings is a SettingsGetter backed by a plain map.
type mapSettings map[string]string

func (m mapSettings) GetSetting(key string) (string, error) {
	return m[key], nil
}

// failingSettings always errors, standing in for a broken database.
type failingSettings struct{}

func (failingSettings) GetSetting(key string) (string, error) {
	return "", errors.New("database unavailable")
}

func TestLoader_Int(t *testing.T) {
	loader := NewLoader(mapSettings{
		"poll":   "15",
		"broken": "abc",
	})

	if got := loader.Int("poll", 5); got != 15 {
		t.Errorf("Int(poll) = %d, want 15", got)
	}
	if got := loader.Int("broken", 5); got != 5 {
		t.Errorf("Int(broken) = %d, want default 5", got)
	}
	if got := loader.Int("missing", 5); got != 5 {
		t.Errorf("Int(missing) = %d, want default 5", got)
	}
}

func TestLoader_Bool(t *testing.T) {
	loader := NewLoader(mapSettings{
		"on":    "true",
		"off":   "false",
		"weird": "yes",
	})

	if !loader.Bool("on", false) {
		t.Error("Bool(on) = false, want true")
	}
	if loader.Bool("off", true) {
		t.Error("Bool(off) = true, want false")
	}
	if loader.Bool("weird", true) {
		t.Error("Bool(weird) = true, want false for unrecognized value")
	}
	if !loader.Bool("missing", true) {
		t.Error("Bool(missing) = false, want default true")
	}
}

func TestLoader_BoolDefaultTrue(t *testing.T) {
	loader := NewLoader(mapSettings{
		"off": "false",
		"on":  "true",
	})

	if loader.BoolDefaultTrue("off") {
		t.Error("BoolDefaultTrue(off) = true, want false")
	}
	if !loader.BoolDefaultTrue("on") {
		t.Error("BoolDefaultTrue(on) = false, want true")
	}
	if !loader.BoolDefaultTrue("missing") {
		t.Error("BoolDefaultTrue(missing) = false, want true")
	}
}

func TestLoader_String(t *testing.T) {
	loader := NewLoader(mapSettings{
		"lang":  "eng",
		"empty": "",
	})

	if got := loader.String("lang", "und"); got != "eng" {
		t.Errorf("String(lang) = %q, want eng", got)
	}
	if got := loader.String("empty", "und"); got != "und" {
		t.Errorf("String(empty) = %q, want default und", got)
	}
	if got := loader.String("missing", "und"); got != "und" {
		t.Errorf("String(missing) = %q, want default und", got)
	}
}

func TestLoader_Durations(t *testing.T) {
	loader := NewLoader(mapSettings{
		"window":  "1h30m",
		"seconds": "45",
		"minutes": "10",
		"broken":  "soon",
	})

	if got := loader.Duration("window", time.Minute); got != 90*time.Minute {
		t.Errorf("Duration(window) = %v, want 1h30m", got)
	}
	if got := loader.Duration("broken", time.Minute); got != time.Minute {
		t.Errorf("Duration(broken) = %v, want default 1m", got)
	}
	if got := loader.DurationSeconds("seconds", 5); got != 45*time.Second {
		t.Errorf("DurationSeconds(seconds) = %v, want 45s", got)
	}
	if got := loader.DurationSeconds("missing", 5); got != 5*time.Second {
		t.Errorf("DurationSeconds(missing) = %v, want 5s", got)
	}
	if got := loader.DurationMinutes("minutes", 2); got != 10*time.Minute {
		t.Errorf("DurationMinutes(minutes) = %v, want 10m", got)
	}
}

func TestLoader_ErrorsFallBackToDefaults(t *testing.T) {
	loader := NewLoader(failingSettings{})

	if got := loader.Int("any", 7); got != 7 {
		t.Errorf("Int = %d, want default 7", got)
	}
	if got := loader.String("any", "fallback"); got != "fallback" {
		t.Errorf("String = %q, want fallback", got)
	}
	if !loader.BoolDefaultTrue("any") {
		t.Error("BoolDefaultTrue = false, want true")
	}
}
