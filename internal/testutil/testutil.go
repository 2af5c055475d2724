// Package testutil provides shared test helpers for setting up vaults and indexes.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/notedex/internal/index"
	"github.com/starford/notedex/internal/storage"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestRegistry creates a registry that is closed when the test ends.
func TestRegistry(t *testing.T) *index.Registry {
	t.Helper()
	reg := index.NewRegistry(index.WithLogger(Logger()))
	t.Cleanup(func() { reg.Close() })
	return reg
}

// TestIndexPath returns a fresh index file location inside a temp dir.
func TestIndexPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "index.db")
}

// TestDB opens an initialized index in a temporary file.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	path := TestIndexPath(t)
	db, err := TestRegistry(t).Acquire(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return db
}

// TestVault creates a temporary vault directory with its storage provider.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// WriteNote writes content to the vault-relative path rel, creating folders.
func WriteNote(t *testing.T, vaultDir, rel, content string) {
	t.Helper()
	abs := filepath.Join(vaultDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}
