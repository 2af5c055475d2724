package index

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/starford/notedex/internal/apperr"
)

// DefaultSearchLimit caps Search results when no positive limit is given.
const DefaultSearchLimit = 50

// Filter restricts List. Nil fields do not filter.
type Filter struct {
	Starred  *bool  `json:"starred,omitempty"`
	Template *bool  `json:"template,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

// Bool returns a pointer to v, for building a Filter.
func Bool(v bool) *bool {
	return &v
}

func (f Filter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Starred != nil {
		clauses = append(clauses, "n.is_starred = ?")
		args = append(args, *f.Starred)
	}
	if f.Template != nil {
		clauses = append(clauses, "n.is_template = ?")
		args = append(args, *f.Template)
	}
	if f.Tag != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(n.tags) WHERE json_each.value = ?)")
		args = append(args, f.Tag)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// List returns the summaries of every note matching f, most recently
// updated first. Link counts are computed per call.
func (db *DB) List(ctx context.Context, f Filter) ([]Summary, error) {
	where, args := f.where()
	rows, err := db.conn.QueryContext(ctx, `
		SELECT n.id, n.path, n.title, n.created, n.updated, n.tags, n.aliases,
		       n.word_count, n.is_starred, n.is_template,
		       (SELECT count(*) FROM note_links l WHERE l.source_note_path = n.path),
		       (SELECT count(*) FROM note_links l WHERE l.target_note_path = n.path)
		FROM notes n
		`+where+`
		ORDER BY n.updated DESC, n.path
	`, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrQuery, "index: list", db.path, err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var (
			s                Summary
			created, updated string
		)
		if err := rows.Scan(&s.ID, &s.Path, &s.Title, &created, &updated, &s.Tags, &s.Aliases,
			&s.WordCount, &s.Starred, &s.Template, &s.LinkCount, &s.BacklinkCount); err != nil {
			return nil, apperr.Wrap(apperr.ErrQuery, "index: list", db.path, err)
		}
		if s.Created, err = parseTime(created); err != nil {
			return nil, apperr.Wrap(apperr.ErrQuery, "index: list", s.Path, err)
		}
		if s.Updated, err = parseTime(updated); err != nil {
			return nil, apperr.Wrap(apperr.ErrQuery, "index: list", s.Path, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrQuery, "index: list", db.path, err)
	}
	return out, nil
}

// MatchExpression turns free text into an FTS5 query. Each whitespace
// separated token is cut into the runs of letters, digits and marks the
// unicode61 tokenizer indexes, every run becomes a quoted prefix term and
// all terms are OR-ed, so "col:kube" searches "col"* OR "kube"*.
func MatchExpression(query string) string {
	var terms []string
	for _, tok := range strings.Fields(query) {
		for _, run := range strings.FieldsFunc(tok, isSeparator) {
			terms = append(terms, `"`+run+`"*`)
		}
	}
	return strings.Join(terms, " OR ")
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.IsMark(r)
}

// Search returns up to limit notes matching any prefix of the query tokens,
// best BM25 score first, each with a highlighted excerpt of its content.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	match := MatchExpression(query)
	if match == "" {
		return []SearchResult{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	// bm25() is smaller for better matches; Score is its negation.
	rows, err := db.conn.QueryContext(ctx, `
		SELECT n.id, n.path, n.title,
		       bm25(notes_fts) AS relevance,
		       snippet(notes_fts, 1, '<mark>', '</mark>', '...', 32)
		FROM notes_fts
		JOIN notes n ON n.seq = notes_fts.rowid
		WHERE notes_fts MATCH ?
		ORDER BY relevance
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrQuery, "index: search", db.path, fmt.Errorf("%q: %w", query, err))
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var (
			r    SearchResult
			bm25 float64
		)
		if err := rows.Scan(&r.ID, &r.Path, &r.Title, &bm25, &r.Snippet); err != nil {
			return nil, apperr.Wrap(apperr.ErrQuery, "index: search", db.path, err)
		}
		r.Score = -bm25
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrQuery, "index: search", db.path, err)
	}
	return out, nil
}
