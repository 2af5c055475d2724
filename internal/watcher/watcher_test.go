package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/notedex/internal/testutil"
)

// recorder drains a notifier into a slice.
type recorder struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
}

func record(n *Notifier) *recorder {
	r := &recorder{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for ev := range n.Events() {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *recorder) has(match func(Event) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if match(ev) {
			return true
		}
	}
	return false
}

func (r *recorder) hasEvent(typ EventType, path string) bool {
	return r.has(func(ev Event) bool { return ev.Type == typ && ev.Path == path })
}

func startNotifier(t *testing.T) (string, *Notifier, *recorder) {
	t.Helper()
	vaultDir, store := testutil.TestVault(t)
	n, err := New(context.Background(), store, testutil.Logger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { n.Close() })
	return vaultDir, n, record(n)
}

func TestNotifier_CreateAndModify(t *testing.T) {
	vaultDir, _, rec := startNotifier(t)

	_ = os.WriteFile(filepath.Join(vaultDir, "new.md"), []byte("# New"), 0o644)
	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.hasEvent(Create, "new.md")
	}, "expected create:new.md")

	_ = os.WriteFile(filepath.Join(vaultDir, "new.md"), []byte("# New\nmore"), 0o644)
	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.hasEvent(Modify, "new.md")
	}, "expected modify:new.md")
}

func TestNotifier_IgnoresHiddenAndOtherFiles(t *testing.T) {
	vaultDir, _, rec := startNotifier(t)

	_ = os.WriteFile(filepath.Join(vaultDir, ".hidden.md"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(vaultDir, "image.png"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(vaultDir, "marker.md"), []byte("x"), 0o644)

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.hasEvent(Create, "marker.md")
	}, "expected create:marker.md")
	if rec.has(func(ev Event) bool { return ev.Path == ".hidden.md" || ev.Path == "image.png" }) {
		t.Error("hidden or non-note files must not produce events")
	}
}

func TestNotifier_NewDirWatched(t *testing.T) {
	vaultDir, _, rec := startNotifier(t)

	subDir := filepath.Join(vaultDir, "subdir")
	_ = os.MkdirAll(subDir, 0o755)
	time.Sleep(200 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(subDir, "deep.md"), []byte("# Deep"), 0o644)

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.hasEvent(Create, "subdir/deep.md")
	}, "file in new subdir not reported")
}

func TestNotifier_Delete(t *testing.T) {
	vaultDir, store := testutil.TestVault(t)
	testutil.WriteNote(t, vaultDir, "del.md", "# Delete Me")

	n, err := New(context.Background(), store, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()
	rec := record(n)

	_ = os.Remove(filepath.Join(vaultDir, "del.md"))
	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.hasEvent(Delete, "del.md")
	}, "expected delete:del.md")
}

func TestNotifier_RenameCarriesOldPath(t *testing.T) {
	vaultDir, store := testutil.TestVault(t)
	testutil.WriteNote(t, vaultDir, "old.md", "# Rename")

	n, err := New(context.Background(), store, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()
	rec := record(n)

	_ = os.Rename(filepath.Join(vaultDir, "old.md"), filepath.Join(vaultDir, "renamed.md"))

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.hasEvent(Delete, "old.md") &&
			rec.has(func(ev Event) bool {
				return ev.Type == Create && ev.Path == "renamed.md" && ev.OldPath == "old.md"
			})
	}, "rename should emit delete:old.md then create:renamed.md with old path")
}

func TestNotifier_CloseStopsStream(t *testing.T) {
	_, store := testutil.TestVault(t)
	n, err := New(context.Background(), store, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	rec := record(n)

	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after Close")
	}
	// Second close is a no-op.
	_ = n.Close()
}

func TestNotifier_ContextCancel(t *testing.T) {
	_, store := testutil.TestVault(t)
	ctx, cancel := context.WithCancel(context.Background())
	n, err := New(ctx, store, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	rec := record(n)
	cancel()
	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after cancel")
	}
	_ = n.Close()
}
