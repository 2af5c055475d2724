// Package watcher turns fsnotify activity under a vault into a stream of
// normalized note change events.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notedex/internal/storage"
)

// EventType is the kind of change.
type EventType string

const (
	Create EventType = "create"
	Modify EventType = "modify"
	Delete EventType = "delete"
)

// renameWindow is how long a rename waits for the matching create.
const renameWindow = 500 * time.Millisecond

// Event is one change under the vault. Paths are vault-relative with "/"
// separators. OldPath is set on the create that completes a rename.
type Event struct {
	Type    EventType `json:"type"`
	Path    string    `json:"path"`
	OldPath string    `json:"old_path,omitempty"`
}

// Notifier watches a vault recursively until closed.
type Notifier struct {
	store  *storage.FS
	w      *fsnotify.Watcher
	logger *slog.Logger
	events chan Event

	dirs map[string]struct{} // absolute paths of watched folders

	renamed   string
	renamedAt time.Time

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New starts watching the vault served by store. Cancelling ctx or calling
// Close stops the watch and closes the Events channel.
func New(ctx context.Context, store *storage.FS, logger *slog.Logger) (*Notifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	n := &Notifier{
		store:  store,
		w:      w,
		logger: logger,
		events: make(chan Event, 64),
		dirs:   make(map[string]struct{}),
		done:   make(chan struct{}),
	}
	if err := n.addDirsRecursive(store.Root(), nil); err != nil {
		w.Close()
		return nil, err
	}

	ctx, n.cancel = context.WithCancel(ctx)
	go n.loop(ctx)
	logger.Info("watcher: started", slog.String("root", store.Root()))
	return n, nil
}

// Events returns the change stream. It is closed when the notifier stops.
func (n *Notifier) Events() <-chan Event {
	return n.events
}

// Close stops the OS watch and waits for the event goroutine to exit.
func (n *Notifier) Close() error {
	n.closeOnce.Do(n.cancel)
	<-n.done
	return nil
}

func (n *Notifier) loop(ctx context.Context) {
	defer close(n.done)
	defer close(n.events)
	defer n.w.Close()

	for {
		select {
		case <-ctx.Done():
			n.logger.Info("watcher: stopped")
			return

		case ev, ok := <-n.w.Events:
			if !ok {
				return
			}
			if !n.handle(ctx, ev) {
				return
			}

		case err, ok := <-n.w.Errors:
			if !ok {
				return
			}
			n.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// handle translates one fsnotify event. It returns false once ctx is done.
func (n *Notifier) handle(ctx context.Context, ev fsnotify.Event) bool {
	abs := ev.Name
	rel, err := n.store.Rel(abs)
	if err != nil || rel == "." || hidden(rel) {
		return true
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
			var found []string
			if addErr := n.addDirsRecursive(abs, &found); addErr != nil {
				n.logger.Warn("watcher: add new dir failed",
					slog.String("path", rel),
					slog.String("error", addErr.Error()))
			} else {
				n.logger.Debug("watcher: watching new dir", slog.String("path", rel))
			}
			// Notes already inside a new folder never get their own event.
			for _, p := range found {
				if !n.emit(ctx, Event{Type: Create, Path: p}) {
					return false
				}
			}
			return true
		}
	}

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if _, ok := n.dirs[abs]; ok {
			n.forgetDir(abs)
			return n.emit(ctx, Event{Type: Delete, Path: rel})
		}
	}

	if !storage.IsNote(rel) {
		return true
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		out := Event{Type: Create, Path: rel}
		if n.renamed != "" && time.Since(n.renamedAt) < renameWindow {
			out.OldPath = n.renamed
		}
		n.renamed = ""
		return n.emit(ctx, out)

	case ev.Op&fsnotify.Write != 0:
		return n.emit(ctx, Event{Type: Modify, Path: rel})

	case ev.Op&fsnotify.Remove != 0:
		return n.emit(ctx, Event{Type: Delete, Path: rel})

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports a rename on the old path; the new path arrives
		// as a separate Create.
		n.renamed, n.renamedAt = rel, time.Now()
		return n.emit(ctx, Event{Type: Delete, Path: rel})
	}
	return true
}

func (n *Notifier) emit(ctx context.Context, ev Event) bool {
	n.logger.Debug("watcher: event", slog.String("type", string(ev.Type)), slog.String("path", ev.Path))
	select {
	case n.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// addDirsRecursive watches root and its visible subfolders. Notes found on
// the way are appended to found when it is non-nil.
func (n *Notifier) addDirsRecursive(root string, found *[]string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Entries can vanish between the event and the walk.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if p != root && storage.Hidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if err := n.w.Add(p); err != nil {
				return err
			}
			n.dirs[p] = struct{}{}
			return nil
		}
		if found != nil && storage.IsNote(d.Name()) {
			if rel, relErr := n.store.Rel(p); relErr == nil {
				*found = append(*found, rel)
			}
		}
		return nil
	})
}

func (n *Notifier) forgetDir(abs string) {
	prefix := abs + string(filepath.Separator)
	for d := range n.dirs {
		if d == abs || strings.HasPrefix(d, prefix) {
			delete(n.dirs, d)
			_ = n.w.Remove(d)
		}
	}
}

// hidden reports whether any segment of a vault-relative path is hidden.
func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if storage.Hidden(seg) {
			return true
		}
	}
	return false
}
