// Package testutil provides shared test fixtures.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/medina-app/medina/internal/state"
)

// OpenTestDB opens a fresh migrated database under t.TempDir.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := state.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("state.OpenDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := state.Migrate(db); err != nil {
		t.Fatalf("state.Migrate: %v", err)
	}
	return db
}
