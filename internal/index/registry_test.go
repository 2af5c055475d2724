package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/starford/notedex/internal/apperr"
)

func TestRegistry_SamePathSamePool(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(WithLogger(quietLogger()))
	defer reg.Close()
	ctx := context.Background()

	a, err := reg.Acquire(ctx, filepath.Join(dir, "vault.db"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b, err := reg.Acquire(ctx, filepath.Join(dir, ".", "vault.db"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if a != b {
		t.Error("expected the same pool for equivalent paths")
	}
	c, err := reg.Acquire(ctx, filepath.Join(dir, "other.db"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if c == a {
		t.Error("distinct paths must not share a pool")
	}
	if reg.Len() != 2 {
		t.Errorf("Len = %d, want 2", reg.Len())
	}
}

func TestRegistry_ConcurrentAcquire(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(WithLogger(quietLogger()))
	defer reg.Close()
	path := filepath.Join(dir, "shared.db")

	const n = 16
	pools := make([]*DB, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			db, err := reg.Acquire(context.Background(), path)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			pools[i] = db
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		if pools[i] != pools[0] {
			t.Fatalf("goroutine %d got a different pool", i)
		}
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
}

func TestRegistry_ConnectionErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.db")
	junk := make([]byte, 4096)
	for i := range junk {
		junk[i] = byte('x')
	}
	if err := os.WriteFile(garbage, junk, 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(WithLogger(quietLogger()))
	defer reg.Close()

	cases := map[string]string{
		"empty":          "",
		"missing parent": filepath.Join(dir, "no", "such", "dir", "x.db"),
		"not a database": garbage,
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Acquire(context.Background(), path)
			if !errors.Is(err, apperr.ErrConnection) {
				t.Fatalf("expected ErrConnection, got %v", err)
			}
		})
	}
	if reg.Len() != 0 {
		t.Errorf("failed opens must not be registered, Len = %d", reg.Len())
	}
}

func TestRegistry_UnknownDriver(t *testing.T) {
	reg := NewRegistry(WithDriver("postgres"), WithLogger(quietLogger()))
	defer reg.Close()
	_, err := reg.Acquire(context.Background(), filepath.Join(t.TempDir(), "x.db"))
	if !errors.Is(err, apperr.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestRegistry_Close(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(WithLogger(quietLogger()))
	if _, err := reg.Acquire(context.Background(), filepath.Join(dir, "a.db")); err != nil {
		t.Fatal(err)
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len after close = %d", reg.Len())
	}
	_, err := reg.Acquire(context.Background(), filepath.Join(dir, "a.db"))
	if !errors.Is(err, apperr.ErrConnection) {
		t.Fatalf("Acquire after close: %v", err)
	}
}

func TestDSN(t *testing.T) {
	got, err := dsn(DriverModernc, "/tmp/a?b.db", defaultBusyTimeout)
	if err != nil {
		t.Fatal(err)
	}
	want := "file:/tmp/a%3fb.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	if got != want {
		t.Errorf("modernc dsn = %q", got)
	}
	got, err = dsn(DriverMattn, "/tmp/a.db", defaultBusyTimeout)
	if err != nil {
		t.Fatal(err)
	}
	want = "file:/tmp/a.db?mode=rwc&_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL&_txlock=immediate"
	if got != want {
		t.Errorf("mattn dsn = %q", got)
	}
}
