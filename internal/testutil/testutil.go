// Package testutil provides shared test helpers for setting up archives and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/perthro/internal/index"
	"github.com/starford/perthro/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "perthro-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestArchive creates a temporary archive directory with a storage.Provider.
func TestArchive(t *testing.T) (string, storage.Provider) {
	t.Helper()
	archiveDir := t.TempDir()
	store, err := storage.NewFS(archiveDir)
	if err != nil {
		t.Fatal(err)
	}
	return archiveDir, store
}

// WriteFile writes content at rel under root, creating parent directories.
// It bypasses storage so tests can plant files the service would reject.
func WriteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
