package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/notedex/internal/apperr"
	"github.com/starford/notedex/internal/index"
	"github.com/starford/notedex/internal/testutil"
	"github.com/starford/notedex/internal/watcher"
)

type changeLog struct {
	mu      sync.Mutex
	changes []string
}

func (c *changeLog) record(kind, path string) {
	c.mu.Lock()
	c.changes = append(c.changes, kind+":"+path)
	c.mu.Unlock()
}

func (c *changeLog) has(want string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.changes {
		if e == want {
			return true
		}
	}
	return false
}

func indexed(db *index.DB, path string) bool {
	_, err := db.Get(context.Background(), path)
	return err == nil
}

func TestDocument(t *testing.T) {
	data := []byte("---\ntags: [a]\nstarred: true\n---\n# Title\nlink to [[Other]]\n")
	doc, err := Document(`dir\note.md`, data)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Path != "dir/note.md" || doc.Title != "Title" || !doc.Starred {
		t.Errorf("doc = %+v", doc)
	}
	if len(doc.Tags) != 1 || doc.Tags[0] != "a" {
		t.Errorf("tags = %v", doc.Tags)
	}
	if len(doc.Links) != 1 || doc.Links[0].Target != "Other.md" || doc.Links[0].Line != 6 {
		t.Errorf("links = %+v", doc.Links)
	}
	if doc.Checksum == "" || doc.WordCount != 5 {
		t.Errorf("checksum=%q words=%d", doc.Checksum, doc.WordCount)
	}
}

func TestSync_IndexesAndRemoves(t *testing.T) {
	vaultDir, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	ctx := context.Background()
	log := &changeLog{}
	ix := New(db, store, WithLogger(testutil.Logger()), WithCallback(log.record))

	testutil.WriteNote(t, vaultDir, "a.md", "# A\nsee [[b]]")
	testutil.WriteNote(t, vaultDir, "sub/b.md", "# B")
	testutil.WriteNote(t, vaultDir, ".trash/c.md", "# hidden")

	stats, err := ix.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Scanned != 2 || stats.Indexed != 2 || stats.Removed != 0 {
		t.Errorf("first stats = %+v", stats)
	}
	if !indexed(db, "a.md") || !indexed(db, "sub/b.md") {
		t.Fatal("notes not indexed")
	}
	if !log.has("created:a.md") {
		t.Errorf("changes = %v", log.changes)
	}

	stats, err = ix.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Unchanged != 2 || stats.Indexed != 0 {
		t.Errorf("second stats = %+v", stats)
	}

	testutil.WriteNote(t, vaultDir, "a.md", "# A edited")
	_ = os.Remove(filepath.Join(vaultDir, "sub", "b.md"))
	stats, err = ix.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Indexed != 1 || stats.Removed != 1 {
		t.Errorf("third stats = %+v", stats)
	}
	if indexed(db, "sub/b.md") {
		t.Error("stale note still indexed")
	}
	n, err := db.Get(ctx, "a.md")
	if err != nil || n.Title != "A edited" {
		t.Errorf("a.md = %+v, %v", n, err)
	}
	if !log.has("updated:a.md") || !log.has("deleted:sub/b.md") {
		t.Errorf("changes = %v", log.changes)
	}
}

func TestSync_NestedNumericFrontmatterKeys(t *testing.T) {
	vaultDir, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	ctx := context.Background()
	ix := New(db, store, WithLogger(testutil.Logger()))

	testutil.WriteNote(t, vaultDir, "scores.md", "---\nscores:\n  1: a\n  2: b\n---\nbody text about ranking\n")

	stats, err := ix.Sync(ctx)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Indexed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	n, err := db.Get(ctx, "scores.md")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	scores, ok := n.Frontmatter["scores"].(map[string]any)
	if !ok || scores["1"] != "a" || scores["2"] != "b" {
		t.Errorf("frontmatter = %v", n.Frontmatter)
	}
	results, err := db.Search(ctx, "ranking", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Path != "scores.md" {
		t.Errorf("results = %+v", results)
	}
}

func TestApply(t *testing.T) {
	vaultDir, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	ctx := context.Background()
	ix := New(db, store, WithLogger(testutil.Logger()))

	testutil.WriteNote(t, vaultDir, "old.md", "# Moving")
	if err := ix.Apply(ctx, watcher.Event{Type: watcher.Create, Path: "old.md"}); err != nil {
		t.Fatal(err)
	}
	_ = os.Rename(filepath.Join(vaultDir, "old.md"), filepath.Join(vaultDir, "new.md"))
	if err := ix.Apply(ctx, watcher.Event{Type: watcher.Create, Path: "new.md", OldPath: "old.md"}); err != nil {
		t.Fatal(err)
	}
	if indexed(db, "old.md") || !indexed(db, "new.md") {
		t.Error("rename not applied")
	}

	if err := ix.Apply(ctx, watcher.Event{Type: watcher.Delete, Path: "new.md"}); err != nil {
		t.Fatal(err)
	}
	if indexed(db, "new.md") {
		t.Error("delete not applied")
	}

	if err := ix.Apply(ctx, watcher.Event{Type: watcher.Delete, Path: "some-folder"}); err != nil {
		t.Errorf("folder delete: %v", err)
	}

	err := ix.Apply(ctx, watcher.Event{Type: watcher.Modify, Path: "missing.md"})
	if err == nil {
		t.Error("expected read error for missing file")
	}
}

func TestApply_PreservesCreated(t *testing.T) {
	vaultDir, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	ctx := context.Background()
	ix := New(db, store, WithLogger(testutil.Logger()))

	testutil.WriteNote(t, vaultDir, "keep.md", "v1")
	if err := ix.Apply(ctx, watcher.Event{Type: watcher.Create, Path: "keep.md"}); err != nil {
		t.Fatal(err)
	}
	first, _ := db.Get(ctx, "keep.md")
	time.Sleep(10 * time.Millisecond)
	testutil.WriteNote(t, vaultDir, "keep.md", "v2")
	if err := ix.Apply(ctx, watcher.Event{Type: watcher.Modify, Path: "keep.md"}); err != nil {
		t.Fatal(err)
	}
	second, _ := db.Get(ctx, "keep.md")
	if !second.Created.Equal(first.Created) {
		t.Errorf("created changed: %v -> %v", first.Created, second.Created)
	}
	if !second.Updated.After(first.Updated) {
		t.Errorf("updated not advanced: %v -> %v", first.Updated, second.Updated)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	ix := New(db, store, WithLogger(testutil.Logger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Run(ctx, make(chan watcher.Event)) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

// watchEnv wires a notifier to an indexer over a temp vault and index.
func watchEnv(t *testing.T) (string, *index.DB, *changeLog) {
	t.Helper()
	vaultDir, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	log := &changeLog{}

	ctx, cancel := context.WithCancel(context.Background())
	n, err := watcher.New(ctx, store, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	ix := New(db, store,
		WithLogger(testutil.Logger()),
		WithCallback(log.record),
		WithReconcileDelay(100*time.Millisecond))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ix.Run(ctx, n.Events())
	}()
	t.Cleanup(func() {
		cancel()
		n.Close()
		<-done
	})
	return vaultDir, db, log
}

func TestRun_NewFileIndexed(t *testing.T) {
	vaultDir, db, log := watchEnv(t)

	testutil.WriteNote(t, vaultDir, "new.md", "# New")

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexed(db, "new.md")
	}, "new file not indexed by watcher")
	testutil.Eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return log.has("created:new.md")
	}, "expected created:new.md callback")
}

func TestRun_NewDirWatched(t *testing.T) {
	vaultDir, db, _ := watchEnv(t)

	_ = os.MkdirAll(filepath.Join(vaultDir, "subdir"), 0o755)
	time.Sleep(200 * time.Millisecond)
	testutil.WriteNote(t, vaultDir, "subdir/deep.md", "# Deep")

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexed(db, "subdir/deep.md")
	}, "file in new subdir not indexed by watcher")
}

func TestRun_DeleteRemovesFromIndex(t *testing.T) {
	vaultDir, db, _ := watchEnv(t)

	testutil.WriteNote(t, vaultDir, "del.md", "# Delete Me")
	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexed(db, "del.md")
	}, "precondition: file should be indexed")

	_ = os.Remove(filepath.Join(vaultDir, "del.md"))
	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.Get(context.Background(), "del.md")
		return errors.Is(err, apperr.ErrNotFound)
	}, "deleted file still in index")
}

func TestRun_RenameReconciles(t *testing.T) {
	vaultDir, db, _ := watchEnv(t)

	testutil.WriteNote(t, vaultDir, "folder/old.md", "# Rename")
	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return indexed(db, "folder/old.md")
	}, "precondition: file should be indexed")

	_ = os.Rename(filepath.Join(vaultDir, "folder"), filepath.Join(vaultDir, "moved"))

	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !indexed(db, "folder/old.md") && indexed(db, "moved/old.md")
	}, "rename reconciliation failed: old path should be removed and new path indexed")
}
