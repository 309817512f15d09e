package repo

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/attendly/go-timeclock-backend/internal/config"
)

// newTestDB opens a throwaway SQLite database with the full schema applied.
// Repo tests exercise the store contract through this backend; the contract
// is identical for the PostgreSQL backend.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func TestOpenSQLiteMissingParentDir(t *testing.T) {
	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "missing", "x.db")); err == nil {
		t.Fatalf("expected error for missing parent directory")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	cfg.Store.Backend = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "open.db")
	if _, err := Open(cfg); err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}

	cfg.Store.Backend = "cosmos"
	if _, err := Open(cfg); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestAutoMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("second AutoMigrate: %v", err)
	}
}
