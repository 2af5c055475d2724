package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/starford/notedex/internal/apperr"
)

const linkColumns = `id, source_note_path, target_note_path, target_path, link_type, position_line`

// replaceLinks drops every outgoing link of source and inserts links.
func replaceLinks(ctx context.Context, tx *sql.Tx, source string, links []Link) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM note_links WHERE source_note_path = ?`, source); err != nil {
		return fmt.Errorf("delete links: %w", err)
	}
	if len(links) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO note_links (`+linkColumns+`) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare link insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range links {
		typ := l.Type
		if typ == "" {
			typ = LinkWiki
		}
		target := sql.NullString{String: NormalizePath(l.Target), Valid: l.Target != ""}
		line := sql.NullInt64{Int64: int64(l.Line), Valid: l.Line > 0}
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), source, target, l.Raw, typ, line); err != nil {
			return fmt.Errorf("insert link %q: %w", l.Raw, err)
		}
	}
	return nil
}

// Backlinks returns every link whose resolved target is target.
func (db *DB) Backlinks(ctx context.Context, target string) ([]Link, error) {
	target = NormalizePath(target)
	links, err := db.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM note_links WHERE target_note_path = ? ORDER BY source_note_path, position_line`,
		target)
	return links, apperr.Wrap(apperr.ErrQuery, "index: backlinks", target, err)
}

// OutgoingLinks returns the links recorded for source, in line order.
func (db *DB) OutgoingLinks(ctx context.Context, source string) ([]Link, error) {
	source = NormalizePath(source)
	links, err := db.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM note_links WHERE source_note_path = ? ORDER BY position_line, target_path`,
		source)
	return links, apperr.Wrap(apperr.ErrQuery, "index: outgoing links", source, err)
}

func (db *DB) queryLinks(ctx context.Context, query string, arg string) ([]Link, error) {
	rows, err := db.conn.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Link{}
	for rows.Next() {
		var (
			l      Link
			target sql.NullString
			line   sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &l.Source, &target, &l.Raw, &l.Type, &line); err != nil {
			return nil, err
		}
		l.Target = target.String
		l.Line = int(line.Int64)
		out = append(out, l)
	}
	return out, rows.Err()
}
