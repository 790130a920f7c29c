package auth

import (
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"github.com/saltyorg/subrewind/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func TestGenerateAPIKey_Format(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}

	if !strings.HasPrefix(key, "srw_") {
		t.Errorf("key %q missing srw_ prefix", key)
	}

	random := strings.TrimPrefix(key, "srw_")
	if len(random) != APIKeyLength*2 {
		t.Errorf("random portion is %d chars, want %d", len(random), APIKeyLength*2)
	}
	if _, err := hex.DecodeString(random); err != nil {
		t.Errorf("random portion is not hex: %v", err)
	}

	other, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	if key == other {
		t.Error("two generated keys are identical")
	}
}

func TestHashAPIKey(t *testing.T) {
	h1 := HashAPIKey("srw_abc")
	h2 := HashAPIKey("srw_abc")
	if h1 != h2 {
		t.Errorf("hash not deterministic: %q vs %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(h1))
	}
	if HashAPIKey("srw_abd") == h1 {
		t.Error("different keys produced the same hash")
	}
}

func TestAPIKeyService_CreateAndValidate(t *testing.T) {
	db := openTestDB(t)
	svc := NewAPIKeyService(db)

	record, rawKey, err := svc.Create("ci pipeline")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if record.Name != "ci pipeline" {
		t.Errorf("Name = %q, want %q", record.Name, "ci pipeline")
	}
	if record.Prefix != rawKey[:12] {
		t.Errorf("Prefix = %q, want first 12 chars of the key", record.Prefix)
	}

	ok, err := svc.Validate(rawKey)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !ok {
		t.Error("freshly created key did not validate")
	}

	ok, err = svc.Validate("srw_0000000000000000000000000000000000000000000000a1")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if ok {
		t.Error("unknown key validated")
	}

	ok, err = svc.Validate("")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if ok {
		t.Error("empty key validated")
	}
}

func TestAPIKeyService_CreateRequiresName(t *testing.T) {
	db := openTestDB(t)
	svc := NewAPIKeyService(db)

	if _, _, err := svc.Create("   "); err == nil {
		t.Fatal("expected error for blank name")
	}
}

func TestAPIKeyService_Delete(t *testing.T) {
	db := openTestDB(t)
	svc := NewAPIKeyService(db)

	record, rawKey, err := svc.Create("short lived")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.Delete(record.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	ok, err := svc.Validate(rawKey)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if ok {
		t.Error("deleted key still validates")
	}

	keys, err := svc.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys after delete, got %d", len(keys))
	}
}
