// Package indexer keeps an index in step with the vault on disk: a full
// checksum-driven sync plus incremental application of watcher events.
package indexer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/notedex/internal/index"
	"github.com/starford/notedex/internal/metrics"
	"github.com/starford/notedex/internal/storage"
	"github.com/starford/notedex/internal/watcher"
)

// Change kinds reported to the callback.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

const (
	defaultReconcileDelay = 200 * time.Millisecond
	defaultWorkers        = 4
)

// Callback is called after every successful index mutation. Sync may call
// it from several goroutines at once.
type Callback func(kind, path string)

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) { ix.logger = l }
}

// WithCallback sets the change callback.
func WithCallback(cb Callback) Option {
	return func(ix *Indexer) { ix.onChange = cb }
}

// WithReconcileDelay sets how long Run waits after a delete before
// re-syncing the vault.
func WithReconcileDelay(d time.Duration) Option {
	return func(ix *Indexer) {
		if d > 0 {
			ix.reconcileDelay = d
		}
	}
}

// WithWorkers bounds the files read and parsed concurrently by Sync.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// Indexer applies vault state to one index.
type Indexer struct {
	db    index.NoteIndex
	store storage.Provider

	logger         *slog.Logger
	onChange       Callback
	reconcileDelay time.Duration
	workers        int
}

// New creates an Indexer for db over store.
func New(db index.NoteIndex, store storage.Provider, opts ...Option) *Indexer {
	ix := &Indexer{
		db:             db,
		store:          store,
		logger:         slog.Default(),
		reconcileDelay: defaultReconcileDelay,
		workers:        defaultWorkers,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// SyncStats summarizes one Sync pass.
type SyncStats struct {
	Scanned   int `json:"scanned"`
	Indexed   int `json:"indexed"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
}

// Sync walks the vault and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
//
// Per-file failures are logged and counted; they are retried on the next pass.
func (ix *Indexer) Sync(ctx context.Context) (SyncStats, error) {
	var stats SyncStats
	metas, err := ix.store.List("")
	if err != nil {
		return stats, err
	}
	checksums, err := ix.db.Checksums(ctx)
	if err != nil {
		return stats, err
	}
	stats.Scanned = len(metas)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		old, known := checksums[m.Path]
		if known && old == m.Checksum {
			stats.Unchanged++
			continue
		}
		kind := KindUpdated
		if !known {
			kind = KindCreated
		}
		g.Go(func() error {
			err := ix.indexPath(gctx, m.Path, kind, "sync")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				stats.Failed++
				return nil
			}
			stats.Indexed++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := ix.remove(ctx, p, "sync"); err != nil {
			stats.Failed++
			continue
		}
		stats.Removed++
	}

	ix.logger.Info("indexer: sync complete",
		slog.Int("scanned", stats.Scanned),
		slog.Int("indexed", stats.Indexed),
		slog.Int("removed", stats.Removed),
		slog.Int("failed", stats.Failed))
	return stats, nil
}

// Apply handles one watcher event.
func (ix *Indexer) Apply(ctx context.Context, ev watcher.Event) error {
	switch ev.Type {
	case watcher.Create:
		if ev.OldPath != "" {
			if err := ix.remove(ctx, ev.OldPath, "watch"); err != nil {
				return err
			}
		}
		return ix.indexPath(ctx, ev.Path, KindCreated, "watch")
	case watcher.Modify:
		return ix.indexPath(ctx, ev.Path, KindUpdated, "watch")
	case watcher.Delete:
		if !storage.IsNote(ev.Path) {
			// Folder removal: its notes are dropped by the next reconcile.
			return nil
		}
		return ix.remove(ctx, ev.Path, "watch")
	default:
		return errors.New("indexer: unknown event type " + string(ev.Type))
	}
}

// Run applies events until ctx is cancelled or the channel closes. Deletes
// schedule a debounced Sync, which catches folder renames and moves whose
// second half never produced an event.
func (ix *Indexer) Run(ctx context.Context, events <-chan watcher.Event) error {
	var (
		reconcileTimer *time.Timer
		reconcileCh    <-chan time.Time
	)
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(ix.reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(ix.reconcileDelay)
		}
	}
	defer func() {
		if reconcileTimer != nil {
			reconcileTimer.Stop()
		}
	}()

	ix.logger.Info("indexer: running")
	for {
		select {
		case <-ctx.Done():
			ix.logger.Info("indexer: stopped")
			return nil

		case <-reconcileCh:
			if _, err := ix.Sync(ctx); err != nil && ctx.Err() == nil {
				ix.logger.Warn("indexer: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := ix.Apply(ctx, ev); err != nil {
				ix.logger.Warn("indexer: apply failed",
					slog.String("type", string(ev.Type)),
					slog.String("path", ev.Path),
					slog.String("error", err.Error()))
			}
			if ev.Type == watcher.Delete {
				scheduleReconcile()
			}
		}
	}
}

func (ix *Indexer) indexPath(ctx context.Context, rel, kind, source string) error {
	data, err := ix.store.Read(rel)
	if err != nil {
		ix.logger.Warn("indexer: read failed", slog.String("path", rel), slog.String("error", err.Error()))
		metrics.IndexerErrors.WithLabelValues(source).Inc()
		return err
	}
	doc, err := Document(rel, data)
	if err == nil {
		err = ix.db.Upsert(ctx, doc)
	}
	if err != nil {
		ix.logger.Warn("indexer: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		metrics.IndexerErrors.WithLabelValues(source).Inc()
		return err
	}
	ix.logger.Debug("indexer: indexed", slog.String("path", rel), slog.String("op", kind))
	metrics.FilesIndexed.WithLabelValues(source, kind).Inc()
	ix.notify(kind, doc.Path)
	return nil
}

func (ix *Indexer) remove(ctx context.Context, rel, source string) error {
	rel = index.NormalizePath(rel)
	if err := ix.db.Remove(ctx, rel); err != nil {
		ix.logger.Warn("indexer: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		metrics.IndexerErrors.WithLabelValues(source).Inc()
		return err
	}
	ix.logger.Debug("indexer: removed", slog.String("path", rel))
	metrics.FilesIndexed.WithLabelValues(source, KindDeleted).Inc()
	ix.notify(KindDeleted, rel)
	return nil
}

func (ix *Indexer) notify(kind, path string) {
	if ix.onChange != nil {
		ix.onChange(kind, path)
	}
}
