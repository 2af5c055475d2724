// Package noteservice exposes the index commands keyed by index path.
package noteservice

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/notedex/internal/index"
	"github.com/starford/notedex/internal/indexer"
	"github.com/starford/notedex/internal/metrics"
	"github.com/starford/notedex/internal/storage"
)

// NoteDetail is a stored note with its link graph neighbourhood.
type NoteDetail struct {
	*index.Note
	Links     []index.Link `json:"links"`
	Backlinks []index.Link `json:"backlinks"`
}

// Service runs index commands against pools from a registry.
type Service struct {
	reg    *index.Registry
	logger *slog.Logger
}

// NewService creates a new note service.
func NewService(reg *index.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reg: reg, logger: logger}
}

func (s *Service) acquire(ctx context.Context, indexPath string) (*index.DB, error) {
	db, err := s.reg.Acquire(ctx, indexPath)
	metrics.OpenIndexes.Set(float64(s.reg.Len()))
	return db, err
}

// InitIndex opens the index at indexPath, creating it if needed, and
// ensures its schema. It is safe to call repeatedly.
func (s *Service) InitIndex(ctx context.Context, indexPath string) (err error) {
	defer func(start time.Time) { metrics.Observe("init", start, err) }(time.Now())

	db, err := s.acquire(ctx, indexPath)
	if err != nil {
		return err
	}
	if err = db.EnsureSchema(ctx); err != nil {
		return err
	}
	s.logger.Info("noteservice: index ready", slog.String("index", db.Path()))
	return nil
}

// Status reports row counts and shadow alignment of an initialized index.
func (s *Service) Status(ctx context.Context, indexPath string) (index.SchemaStatus, error) {
	db, err := s.acquire(ctx, indexPath)
	if err != nil {
		return index.SchemaStatus{}, err
	}
	return db.CheckSchema(ctx)
}

// IndexNote upserts a pre-parsed document.
func (s *Service) IndexNote(ctx context.Context, indexPath string, doc index.Document) (err error) {
	defer func(start time.Time) { metrics.Observe("upsert", start, err) }(time.Now())

	db, err := s.acquire(ctx, indexPath)
	if err != nil {
		return err
	}
	return db.Upsert(ctx, doc)
}

// IndexFile parses raw note bytes stored at the vault-relative path rel
// and upserts the result.
func (s *Service) IndexFile(ctx context.Context, indexPath, rel string, data []byte) (*index.Document, error) {
	doc, err := indexer.Document(rel, data)
	if err != nil {
		return nil, err
	}
	if err := s.IndexNote(ctx, indexPath, doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// RemoveFromIndex deletes a note and everything derived from it.
func (s *Service) RemoveFromIndex(ctx context.Context, indexPath, path string) (err error) {
	defer func(start time.Time) { metrics.Observe("remove", start, err) }(time.Now())

	db, err := s.acquire(ctx, indexPath)
	if err != nil {
		return err
	}
	return db.Remove(ctx, path)
}

// ListNotes returns note summaries matching f, most recently updated first.
func (s *Service) ListNotes(ctx context.Context, indexPath string, f index.Filter) (_ []index.Summary, err error) {
	defer func(start time.Time) { metrics.Observe("list", start, err) }(time.Now())

	db, err := s.acquire(ctx, indexPath)
	if err != nil {
		return nil, err
	}
	return db.List(ctx, f)
}

// SearchNotes runs a ranked full-text query.
func (s *Service) SearchNotes(ctx context.Context, indexPath, query string, limit int) (_ []index.SearchResult, err error) {
	defer func(start time.Time) { metrics.Observe("search", start, err) }(time.Now())

	db, err := s.acquire(ctx, indexPath)
	if err != nil {
		return nil, err
	}
	results, err := db.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	metrics.SearchResults.Observe(float64(len(results)))
	return results, nil
}

// Backlinks returns every link pointing at target.
func (s *Service) Backlinks(ctx context.Context, indexPath, target string) (_ []index.Link, err error) {
	defer func(start time.Time) { metrics.Observe("backlinks", start, err) }(time.Now())

	db, err := s.acquire(ctx, indexPath)
	if err != nil {
		return nil, err
	}
	return db.Backlinks(ctx, target)
}

// GetNote returns the stored note at path with its outgoing and incoming links.
func (s *Service) GetNote(ctx context.Context, indexPath, path string) (_ *NoteDetail, err error) {
	defer func(start time.Time) { metrics.Observe("get", start, err) }(time.Now())

	db, err := s.acquire(ctx, indexPath)
	if err != nil {
		return nil, err
	}
	n, err := db.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	out, err := db.OutgoingLinks(ctx, n.Path)
	if err != nil {
		return nil, err
	}
	in, err := db.Backlinks(ctx, n.Path)
	if err != nil {
		return nil, err
	}
	return &NoteDetail{Note: n, Links: out, Backlinks: in}, nil
}

// Sync reconciles the index at indexPath with the vault at vaultRoot.
func (s *Service) Sync(ctx context.Context, indexPath, vaultRoot string, opts ...indexer.Option) (indexer.SyncStats, error) {
	store, err := storage.NewFS(vaultRoot)
	if err != nil {
		return indexer.SyncStats{}, err
	}
	db, err := s.acquire(ctx, indexPath)
	if err != nil {
		return indexer.SyncStats{}, err
	}
	opts = append([]indexer.Option{indexer.WithLogger(s.logger)}, opts...)
	return indexer.New(db, store, opts...).Sync(ctx)
}

// Tree returns the note hierarchy of the vault at root.
func (s *Service) Tree(root string) (*storage.Node, error) {
	store, err := storage.NewFS(root)
	if err != nil {
		return nil, err
	}
	return store.Tree()
}
