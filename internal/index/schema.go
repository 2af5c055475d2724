// Package index is the note index engine: a SQLite store per vault holding
// notes, an FTS5 shadow table aligned to them by rowid, and the link graph.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/notedex/internal/apperr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	seq         INTEGER PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	path        TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL DEFAULT '',
	frontmatter TEXT NOT NULL DEFAULT '{}',
	tags        TEXT NOT NULL DEFAULT '[]',
	aliases     TEXT NOT NULL DEFAULT '[]',
	word_count  INTEGER NOT NULL DEFAULT 0,
	checksum    TEXT NOT NULL DEFAULT '',
	created     TEXT NOT NULL,
	updated     TEXT NOT NULL,
	is_starred  INTEGER NOT NULL DEFAULT 0,
	is_template INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_notes_updated ON notes(updated);

CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
	title,
	content,
	tags,
	aliases,
	tokenize = 'unicode61 remove_diacritics 2'
);

CREATE TABLE IF NOT EXISTS note_links (
	id               TEXT PRIMARY KEY,
	source_note_path TEXT NOT NULL,
	target_note_path TEXT,
	target_path      TEXT NOT NULL,
	link_type        TEXT NOT NULL,
	position_line    INTEGER
);

CREATE INDEX IF NOT EXISTS idx_links_source ON note_links(source_note_path);
CREATE INDEX IF NOT EXISTS idx_links_target ON note_links(target_note_path);
`

// schemaObjects lists every structure EnsureSchema creates.
var schemaObjects = []string{
	"notes",
	"idx_notes_updated",
	"notes_fts",
	"note_links",
	"idx_links_source",
	"idx_links_target",
}

// DB is a pooled connection to one index.
type DB struct {
	conn   *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// Path returns the index identifier this pool was opened for.
func (db *DB) Path() string {
	return db.path
}

// EnsureSchema creates the tables and indexes if they do not exist.
// It is safe to call any number of times.
func (db *DB) EnsureSchema(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.ErrSchema, "index: begin schema tx", db.path, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return apperr.Wrap(apperr.ErrSchema, "index: apply schema", db.path, err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.ErrSchema, "index: commit schema", db.path, err)
	}
	return nil
}

// SchemaStatus reports row counts of the index structures.
type SchemaStatus struct {
	Notes   int `json:"notes"`
	Shadow  int `json:"shadow"`
	Orphans int `json:"orphans"`
	Links   int `json:"links"`
}

// Aligned reports whether every note has exactly one shadow row.
func (s SchemaStatus) Aligned() bool {
	return s.Notes == s.Shadow && s.Orphans == 0
}

// CheckSchema verifies that every structure exists exactly once and that the
// shadow table is row-aligned with the notes table.
func (db *DB) CheckSchema(ctx context.Context) (SchemaStatus, error) {
	var st SchemaStatus
	for _, name := range schemaObjects {
		var n int
		err := db.conn.QueryRowContext(ctx,
			`SELECT count(*) FROM sqlite_master WHERE name = ?`, name).Scan(&n)
		if err != nil {
			return st, apperr.Wrap(apperr.ErrSchema, "index: check schema", db.path, err)
		}
		if n != 1 {
			return st, apperr.Wrap(apperr.ErrSchema, "index: check schema", db.path,
				fmt.Errorf("%s: found %d definitions", name, n))
		}
	}

	err := db.conn.QueryRowContext(ctx, `
		SELECT (SELECT count(*) FROM notes),
		       (SELECT count(*) FROM notes_fts),
		       (SELECT count(*) FROM notes_fts f LEFT JOIN notes n ON n.seq = f.rowid WHERE n.seq IS NULL),
		       (SELECT count(*) FROM note_links)
	`).Scan(&st.Notes, &st.Shadow, &st.Orphans, &st.Links)
	if err != nil {
		return st, apperr.Wrap(apperr.ErrSchema, "index: check schema", db.path, err)
	}
	return st, nil
}
