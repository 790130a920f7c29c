package confwatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/saltyorg/subrewind/internal/database"
)

func writeSettingsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "subrewind.conf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write settings file: %v", err)
	}
	return path
}

func TestParseFile_ReadsKnownKeys(t *testing.T) {
	path := writeSettingsFile(t, `
# poll tuning
monitor.active_poll_seconds = 5
log.level=debug

monitor.preferred_subtitle_language = eng
`)

	values, err := parseFile(path)
	if err != nil {
		t.Fatalf("parseFile returned error: %v", err)
	}

	if len(values) != 3 {
		t.Fatalf("expected 3 values, got %d: %v", len(values), values)
	}
	if values["monitor.active_poll_seconds"] != "5" {
		t.Errorf("active_poll_seconds = %q, want %q", values["monitor.active_poll_seconds"], "5")
	}
	if values["log.level"] != "debug" {
		t.Errorf("log.level = %q, want %q", values["log.level"], "debug")
	}
	if values["monitor.preferred_subtitle_language"] != "eng" {
		t.Errorf("preferred_subtitle_language = %q, want %q", values["monitor.preferred_subtitle_language"], "eng")
	}
}

func TestParseFile_SkipsMalformedAndUnknownLines(t *testing.T) {
	path := writeSettingsFile(t, `
this line has no equals sign
nosuch.key = value
log.level = info
`)

	values, err := parseFile(path)
	if err != nil {
		t.Fatalf("parseFile returned error: %v", err)
	}

	if len(values) != 1 {
		t.Fatalf("expected only the known key to survive, got %v", values)
	}
	if values["log.level"] != "info" {
		t.Errorf("log.level = %q, want %q", values["log.level"], "info")
	}
}

func TestParseFile_ValueMayContainEquals(t *testing.T) {
	path := writeSettingsFile(t, "plex.token = abc=def==\n")

	values, err := parseFile(path)
	if err != nil {
		t.Fatalf("parseFile returned error: %v", err)
	}

	if values["plex.token"] != "abc=def==" {
		t.Errorf("plex.token = %q, want %q", values["plex.token"], "abc=def==")
	}
}

func TestParseFile_MissingFile(t *testing.T) {
	if _, err := parseFile(filepath.Join(t.TempDir(), "absent.conf")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestStart_AppliesExistingFile(t *testing.T) {
	db := openTestDB(t)
	if err := db.SetSetting("monitor.rewind_threshold_seconds", "5"); err != nil {
		t.Fatalf("failed to seed setting: %v", err)
	}

	path := writeSettingsFile(t, `
monitor.rewind_threshold_seconds = 8
history.retention_days = 60
`)

	w, err := New(db, path)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer w.Stop()

	if val, _ := db.GetSetting("monitor.rewind_threshold_seconds"); val != "8" {
		t.Errorf("rewind_threshold = %q, want %q", val, "8")
	}
	if val, _ := db.GetSetting("history.retention_days"); val != "60" {
		t.Errorf("retention_days = %q, want %q", val, "60")
	}
}

func TestStart_ToleratesMissingFile(t *testing.T) {
	db := openTestDB(t)
	path := filepath.Join(t.TempDir(), "subrewind.conf")

	w, err := New(db, path)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start with missing file returned error: %v", err)
	}
	w.Stop()
}

func TestApply_LeavesEqualValuesAlone(t *testing.T) {
	db := openTestDB(t)
	if err := db.SetSetting("monitor.idle_poll_seconds", "20"); err != nil {
		t.Fatalf("failed to seed setting: %v", err)
	}

	path := writeSettingsFile(t, "monitor.idle_poll_seconds = 20\n")

	w, err := New(db, path)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer w.Stop()

	if val, _ := db.GetSetting("monitor.idle_poll_seconds"); val != "20" {
		t.Errorf("idle_poll_seconds = %q, want %q", val, "20")
	}
}
