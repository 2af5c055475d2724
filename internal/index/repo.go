package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/notedex/internal/apperr"
)

const upsertNoteSQL = `
INSERT INTO notes (id, path, title, content, frontmatter, tags, aliases,
                   word_count, checksum, created, updated, is_starred, is_template)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	title       = excluded.title,
	content     = excluded.content,
	frontmatter = excluded.frontmatter,
	tags        = excluded.tags,
	aliases     = excluded.aliases,
	word_count  = excluded.word_count,
	checksum    = excluded.checksum,
	updated     = excluded.updated,
	is_starred  = excluded.is_starred,
	is_template = excluded.is_template
RETURNING seq, created
`

// Upsert inserts or updates the note at d.Path together with its shadow row
// and outgoing links, in one transaction. The created timestamp of an
// existing note is kept; updated is set to now.
func (db *DB) Upsert(ctx context.Context, d Document) error {
	d.Path = NormalizePath(d.Path)
	if err := d.Validate(); err != nil {
		return apperr.Wrap(apperr.ErrWrite, "index: upsert", d.Path, errors.Join(apperr.ErrInvalid, err))
	}
	now := formatTime(db.now())

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.ErrWrite, "index: begin tx", d.Path, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var (
		seq     int64
		created string
	)
	err = tx.QueryRowContext(ctx, upsertNoteSQL,
		NoteID(d.Path), d.Path, d.Title, d.Content, d.Frontmatter, d.Tags, d.Aliases,
		d.WordCount, d.Checksum, now, now, d.Starred, d.Template,
	).Scan(&seq, &created)
	if err != nil {
		return apperr.Wrap(apperr.ErrWrite, "index: upsert note", d.Path, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes_fts WHERE rowid = ?`, seq); err != nil {
		return apperr.Wrap(apperr.ErrWrite, "index: clear shadow", d.Path, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO notes_fts (rowid, title, content, tags, aliases) VALUES (?, ?, ?, ?, ?)`,
		seq, d.Title, d.Content, d.Tags.Text(), d.Aliases.Text())
	if err != nil {
		return apperr.Wrap(apperr.ErrWrite, "index: write shadow", d.Path, err)
	}

	if err := replaceLinks(ctx, tx, d.Path, d.Links); err != nil {
		return apperr.Wrap(apperr.ErrWrite, "index: write links", d.Path, err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.ErrWrite, "index: commit", d.Path, err)
	}
	db.logger.Debug("index: upserted",
		slog.String("path", d.Path),
		slog.String("created", created),
		slog.Int("links", len(d.Links)))
	return nil
}

// Remove deletes the note at path, its shadow row and its outgoing links.
// Removing a path that is not indexed is not an error.
func (db *DB) Remove(ctx context.Context, path string) error {
	path = NormalizePath(path)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.ErrWrite, "index: begin tx", path, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var seq int64
	err = tx.QueryRowContext(ctx, `SELECT seq FROM notes WHERE path = ?`, path).Scan(&seq)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return apperr.Wrap(apperr.ErrWrite, "index: remove", path, err)
	default:
		if _, err := tx.ExecContext(ctx, `DELETE FROM notes_fts WHERE rowid = ?`, seq); err != nil {
			return apperr.Wrap(apperr.ErrWrite, "index: remove shadow", path, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE seq = ?`, seq); err != nil {
			return apperr.Wrap(apperr.ErrWrite, "index: remove note", path, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM note_links WHERE source_note_path = ?`, path); err != nil {
		return apperr.Wrap(apperr.ErrWrite, "index: remove links", path, err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.ErrWrite, "index: commit", path, err)
	}
	db.logger.Debug("index: removed", slog.String("path", path))
	return nil
}

// Get returns the stored note at path or an apperr.ErrNotFound error.
func (db *DB) Get(ctx context.Context, path string) (*Note, error) {
	path = NormalizePath(path)
	var (
		n                Note
		created, updated string
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, path, title, content, frontmatter, tags, aliases, word_count,
		       checksum, created, updated, is_starred, is_template
		FROM notes WHERE path = ?
	`, path).Scan(&n.ID, &n.Path, &n.Title, &n.Content, &n.Frontmatter, &n.Tags, &n.Aliases,
		&n.WordCount, &n.Checksum, &created, &updated, &n.Starred, &n.Template)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperr.Error{Kind: apperr.ErrNotFound, Op: "index: get", Path: path}
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrQuery, "index: get", path, err)
	}
	if n.Created, err = parseTime(created); err != nil {
		return nil, apperr.Wrap(apperr.ErrQuery, "index: get", path, fmt.Errorf("created: %w", err))
	}
	if n.Updated, err = parseTime(updated); err != nil {
		return nil, apperr.Wrap(apperr.ErrQuery, "index: get", path, fmt.Errorf("updated: %w", err))
	}
	return &n, nil
}

// Checksums returns the stored checksum of every indexed note, keyed by path.
func (db *DB) Checksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrQuery, "index: checksums", db.path, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, apperr.Wrap(apperr.ErrQuery, "index: checksums", db.path, err)
		}
		out[p] = cs
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrQuery, "index: checksums", db.path, err)
	}
	return out, nil
}
