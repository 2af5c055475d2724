package index

import "context"

// NoteIndex is the set of operations callers run against one index.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type NoteIndex interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, d Document) error
	Remove(ctx context.Context, path string) error
	Get(ctx context.Context, path string) (*Note, error)
	List(ctx context.Context, f Filter) ([]Summary, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Backlinks(ctx context.Context, target string) ([]Link, error)
	OutgoingLinks(ctx context.Context, source string) ([]Link, error)
	Checksums(ctx context.Context) (map[string]string, error)
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
