package database

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestInsertOverrideEvent_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	event := &OverrideEvent{
		SessionKey:     "42",
		UserTitle:      "alice",
		PlayerTitle:    "Living Room TV",
		MediaTitle:     "Some Movie",
		RatingKey:      "1234",
		Action:         OverrideActionApplied,
		SavedStreamID:  0,
		ForcedStreamID: 77,
		PositionMs:     615000,
		Detail:         "forced English (SRT)",
	}

	if err := db.InsertOverrideEvent(event); err != nil {
		t.Fatalf("InsertOverrideEvent returned error: %v", err)
	}
	if event.ID == 0 {
		t.Fatal("expected insert to assign an id")
	}

	events, err := db.ListOverrideEvents(10, 0)
	if err != nil {
		t.Fatalf("ListOverrideEvents returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	saved := events[0]
	if saved.SessionKey != event.SessionKey {
		t.Errorf("session_key = %q, want %q", saved.SessionKey, event.SessionKey)
	}
	if saved.Action != OverrideActionApplied {
		t.Errorf("action = %q, want %q", saved.Action, OverrideActionApplied)
	}
	if saved.ForcedStreamID != 77 {
		t.Errorf("forced_stream_id = %d, want 77", saved.ForcedStreamID)
	}
	if saved.PositionMs != 615000 {
		t.Errorf("position_ms = %d, want 615000", saved.PositionMs)
	}
	if saved.CreatedAt.IsZero() {
		t.Error("expected created_at to be populated")
	}
}

func TestListOverrideEventsFiltered_ByAction(t *testing.T) {
	db := openTestDB(t)

	for _, action := range []string{
		OverrideActionApplied, OverrideActionRestored,
		OverrideActionApplied, OverrideActionRestoreFailed,
	} {
		if err := db.InsertOverrideEvent(&OverrideEvent{SessionKey: "1", Action: action}); err != nil {
			t.Fatalf("failed to insert event: %v", err)
		}
	}

	applied, err := db.ListOverrideEventsFiltered(OverrideActionApplied, 10, 0)
	if err != nil {
		t.Fatalf("ListOverrideEventsFiltered returned error: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("expected 2 applied events, got %d", len(applied))
	}
	for _, e := range applied {
		if e.Action != OverrideActionApplied {
			t.Errorf("filtered list contains action %q", e.Action)
		}
	}

	count, err := db.CountOverrideEventsFiltered(OverrideActionRestored)
	if err != nil {
		t.Fatalf("CountOverrideEventsFiltered returned error: %v", err)
	}
	if count != 1 {
		t.Errorf("restored count = %d, want 1", count)
	}

	total, err := db.CountOverrideEvents()
	if err != nil {
		t.Fatalf("CountOverrideEvents returned error: %v", err)
	}
	if total != 4 {
		t.Errorf("total count = %d, want 4", total)
	}

	stats, err := db.GetOverrideStatsByAction()
	if err != nil {
		t.Fatalf("GetOverrideStatsByAction returned error: %v", err)
	}
	if stats[OverrideActionApplied] != 2 || stats[OverrideActionRestored] != 1 || stats[OverrideActionRestoreFailed] != 1 {
		t.Errorf("stats = %v, want 2/1/1", stats)
	}
}

func TestListOverrideEvents_NewestFirst(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 3; i++ {
		if err := db.InsertOverrideEvent(&OverrideEvent{SessionKey: "1", Action: OverrideActionApplied}); err != nil {
			t.Fatalf("failed to insert event: %v", err)
		}
	}

	events, err := db.ListOverrideEvents(10, 0)
	if err != nil {
		t.Fatalf("ListOverrideEvents returned error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i-1].ID < events[i].ID {
			t.Fatalf("events out of order: id %d before id %d", events[i-1].ID, events[i].ID)
		}
	}
}

func TestPruneOverrideEvents_KeepsRecentRows(t *testing.T) {
	db := openTestDB(t)

	old := &OverrideEvent{SessionKey: "1", Action: OverrideActionApplied}
	if err := db.InsertOverrideEvent(old); err != nil {
		t.Fatalf("failed to insert event: %v", err)
	}
	recent := &OverrideEvent{SessionKey: "2", Action: OverrideActionRestored}
	if err := db.InsertOverrideEvent(recent); err != nil {
		t.Fatalf("failed to insert event: %v", err)
	}

	// Backdate the first row past the retention window
	if _, err := db.Exec("UPDATE override_events SET created_at = datetime('now', '-72 hours') WHERE id = ?", old.ID); err != nil {
		t.Fatalf("failed to backdate event: %v", err)
	}

	pruned, err := db.PruneOverrideEvents(24 * time.Hour)
	if err != nil {
		t.Fatalf("PruneOverrideEvents returned error: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}

	events, err := db.ListOverrideEvents(10, 0)
	if err != nil {
		t.Fatalf("ListOverrideEvents returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 surviving event, got %d", len(events))
	}
	if events[0].ID != recent.ID {
		t.Errorf("surviving event id = %d, want %d", events[0].ID, recent.ID)
	}
}

func TestCountOverrideEventsLast24h_SplitsByAction(t *testing.T) {
	db := openTestDB(t)

	for _, action := range []string{
		OverrideActionApplied, OverrideActionApplied,
		OverrideActionRestored, OverrideActionRestoreFailed,
	} {
		if err := db.InsertOverrideEvent(&OverrideEvent{SessionKey: "1", Action: action}); err != nil {
			t.Fatalf("failed to insert event: %v", err)
		}
	}

	// Events older than the window are not counted
	stale := &OverrideEvent{SessionKey: "2", Action: OverrideActionApplied}
	if err := db.InsertOverrideEvent(stale); err != nil {
		t.Fatalf("failed to insert event: %v", err)
	}
	if _, err := db.Exec("UPDATE override_events SET created_at = datetime('now', '-25 hours') WHERE id = ?", stale.ID); err != nil {
		t.Fatalf("failed to backdate event: %v", err)
	}

	applied, restored, failed, err := db.CountOverrideEventsLast24h()
	if err != nil {
		t.Fatalf("CountOverrideEventsLast24h returned error: %v", err)
	}
	if applied != 2 || restored != 1 || failed != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", applied, restored, failed)
	}
}

func TestDeleteAllOverrideEvents(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 4; i++ {
		if err := db.InsertOverrideEvent(&OverrideEvent{SessionKey: "1", Action: OverrideActionApplied}); err != nil {
			t.Fatalf("failed to insert event: %v", err)
		}
	}

	deleted, err := db.DeleteAllOverrideEvents()
	if err != nil {
		t.Fatalf("DeleteAllOverrideEvents returned error: %v", err)
	}
	if deleted != 4 {
		t.Fatalf("deleted = %d, want 4", deleted)
	}

	total, err := db.CountOverrideEvents()
	if err != nil {
		t.Fatalf("CountOverrideEvents returned error: %v", err)
	}
	if total != 0 {
		t.Errorf("total after clear = %d, want 0", total)
	}
}
