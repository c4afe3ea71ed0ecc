package persistence

import (
	"path/filepath"
	"testing"
)

// setupTestDB points the singleton at a fresh temp database for one test.
func setupTestDB(t *testing.T) {
	t.Helper()

	if err := Reset(); err != nil {
		t.Fatalf("Failed to reset database singleton: %v", err)
	}

	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := Initialize(dbPath); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	t.Cleanup(func() {
		if err := Reset(); err != nil {
			t.Errorf("Failed to reset database singleton: %v", err)
		}
	})
}

func TestInitializeAndReset(t *testing.T) {
	setupTestDB(t)

	if !IsInitialized() {
		t.Fatal("Expected database to be initialized")
	}

	db := GetDB()
	if db == nil {
		t.Fatal("Expected non-nil database handle")
	}

	// Schema version should be recorded on first initialization.
	version, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatalf("Failed to get schema version: %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", CurrentSchemaVersion, version)
	}

	if err := Reset(); err != nil {
		t.Fatalf("Failed to reset: %v", err)
	}
	if IsInitialized() {
		t.Error("Expected database to be uninitialized after reset")
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	setupTestDB(t)

	// A second Initialize on the same singleton is a no-op, not an error.
	if err := Initialize(filepath.Join(t.TempDir(), "other.db")); err != nil {
		t.Fatalf("Second initialize returned error: %v", err)
	}
	if !IsInitialized() {
		t.Error("Expected database to remain initialized")
	}
}
