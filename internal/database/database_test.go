package database

import (
	"path/filepath"
	"testing"

	"navconsole/internal/migrations"
)

// TestOpenAppliesMigrations verifies that opening a fresh database leaves the
// request store schema in place.
func TestOpenAppliesMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "navconsole.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	columns := []string{"request_id", "kind", "name", "attributes", "steps", "status", "message", "created_at", "updated_at"}
	for _, column := range columns {
		var count int
		err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('pending_requests') WHERE name = ?`, column).Scan(&count)
		if err != nil {
			t.Errorf("Failed to verify column %s: %v", column, err)
			continue
		}
		if count == 0 {
			t.Errorf("Migration incomplete: column pending_requests.%s does not exist", column)
		}
	}

	version, err := migrations.Version(db)
	if err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != 1 {
		t.Errorf("schema version = %d, want 1", version)
	}
}

func TestOpenIsRepeatable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "navconsole.db")

	for i := 0; i < 2; i++ {
		db, err := Open(dbPath)
		if err != nil {
			t.Fatalf("open #%d failed: %v", i+1, err)
		}
		if err := db.Close(); err != nil {
			t.Fatalf("close #%d failed: %v", i+1, err)
		}
	}
}
