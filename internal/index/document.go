package index

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// idPrefix is prepended to every escaped note path to form its id.
const idPrefix = "note_"

// timeLayout is fixed-width so that text ordering in SQLite equals time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var idEscaper = strings.NewReplacer("~", "~~", "/", "~s")

// NormalizePath converts backslash separators to forward slashes.
func NormalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// NoteID derives the stable note id for a path. Distinct normalized paths
// always produce distinct ids.
func NoteID(path string) string {
	return idPrefix + idEscaper.Replace(NormalizePath(path))
}

// StringList is an ordered list of strings stored as a JSON array.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	raw, err := textOf(src)
	if err != nil {
		return fmt.Errorf("index: scan string list: %w", err)
	}
	if raw == "" {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fmt.Errorf("index: decode string list: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*l = out
	return nil
}

// Text joins the list with spaces, the form indexed for full-text search.
func (l StringList) Text() string {
	return strings.Join(l, " ")
}

// Frontmatter is the parsed frontmatter of a note, stored as a JSON object.
type Frontmatter map[string]any

// Value implements driver.Valuer.
func (f Frontmatter) Value() (driver.Value, error) {
	if len(f) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]any(f))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (f *Frontmatter) Scan(src any) error {
	raw, err := textOf(src)
	if err != nil {
		return fmt.Errorf("index: scan frontmatter: %w", err)
	}
	out := Frontmatter{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return fmt.Errorf("index: decode frontmatter: %w", err)
		}
	}
	*f = out
	return nil
}

func textOf(src any) (string, error) {
	switch v := src.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unsupported type %T", src)
	}
}

// Document is the input to Upsert. Id and timestamps are derived by the engine.
type Document struct {
	Path        string
	Title       string
	Content     string
	Frontmatter Frontmatter
	Tags        StringList
	Aliases     StringList
	WordCount   int
	Checksum    string
	Starred     bool
	Template    bool
	// Links replaces every outgoing link of Path.
	Links []Link
}

// Validate checks the fields the engine cannot derive.
func (d Document) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Path, validation.Required),
		validation.Field(&d.WordCount, validation.Min(0)),
	)
}

// Note is a stored document row.
type Note struct {
	ID          string      `json:"id"`
	Path        string      `json:"path"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	Frontmatter Frontmatter `json:"frontmatter"`
	Tags        StringList  `json:"tags"`
	Aliases     StringList  `json:"aliases"`
	WordCount   int         `json:"word_count"`
	Checksum    string      `json:"checksum"`
	Created     time.Time   `json:"created"`
	Updated     time.Time   `json:"updated"`
	Starred     bool        `json:"is_starred"`
	Template    bool        `json:"is_template"`
}

// Summary is the listing projection of a note.
type Summary struct {
	ID            string     `json:"id"`
	Path          string     `json:"path"`
	Title         string     `json:"title"`
	Created       time.Time  `json:"created"`
	Updated       time.Time  `json:"updated"`
	Tags          StringList `json:"tags"`
	Aliases       StringList `json:"aliases"`
	LinkCount     int        `json:"link_count"`
	BacklinkCount int        `json:"backlink_count"`
	WordCount     int        `json:"word_count"`
	Starred       bool       `json:"is_starred"`
	Template      bool       `json:"is_template"`
}

// SearchResult is one ranked full-text hit.
type SearchResult struct {
	ID      string  `json:"id"`
	Path    string  `json:"path"`
	Title   string  `json:"title"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// Link types.
const (
	LinkWiki   = "wiki"
	LinkInline = "inline"
)

// Link is a directed reference from Source to a possibly missing target note.
type Link struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	// Target is the resolved target path; empty when unresolved.
	Target string `json:"target,omitempty"`
	Raw    string `json:"raw"`
	Type   string `json:"type"`
	Line   int    `json:"line"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
