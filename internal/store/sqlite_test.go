// ABOUTME: Tests for SQLite handle management and the admin store
// ABOUTME: Covers file creation, directory creation, and clean close semantics

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func newTestAdmin(t *testing.T) *AdminStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "platform.db")
	admin, err := NewAdminStore(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("NewAdminStore failed: %v", err)
	}
	return admin
}

func TestNewAdminStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "platform.db")

	admin, err := NewAdminStore(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("NewAdminStore failed: %v", err)
	}
	defer admin.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewAdminStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "data", "nested", "platform.db")

	admin, err := NewAdminStore(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("NewAdminStore failed: %v", err)
	}
	defer admin.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewAdminStore_Reopen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "platform.db")
	ctx := context.Background()

	admin, err := NewAdminStore(ctx, dbPath)
	if err != nil {
		t.Fatalf("NewAdminStore failed: %v", err)
	}
	if err := admin.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopening reruns the full migration sequence against the existing
	// file; every unit must be a no-op the second time.
	reopened, err := NewAdminStore(ctx, dbPath)
	if err != nil {
		t.Fatalf("reopening admin store failed: %v", err)
	}
	defer reopened.Close()
}

func TestOpenHandle_FailureClosesConnection(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "bad.db")

	// Write garbage so the file is not a database at all.
	if err := os.WriteFile(dbPath, []byte("not a sqlite database"), 0644); err != nil {
		t.Fatalf("writing garbage file: %v", err)
	}

	if _, err := openHandle(context.Background(), dbPath, Migrations()); err == nil {
		t.Fatal("expected error opening corrupt store")
	}
}
