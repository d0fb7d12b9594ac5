package store

import (
	"path/filepath"
	"testing"
)

// testDB creates a temporary database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func mustLibrary(t *testing.T, db *DB, name, path string) *Library {
	t.Helper()
	lib, err := db.CreateLibrary(name, path, true, false)
	if err != nil {
		t.Fatalf("CreateLibrary failed: %v", err)
	}
	return lib
}

func TestOpen_RunsMigrationsIdempotently(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second open failed: %v", err)
	}
	defer db2.Close()

	if err := db2.CheckIntegrity(); err != nil {
		t.Fatalf("integrity check failed: %v", err)
	}
}
