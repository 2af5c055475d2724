package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notedex/internal/index"
	"github.com/starford/notedex/internal/noteservice"
	"github.com/starford/notedex/internal/storage"
)

// IndexNoteRequest is the request body for indexing a note. When Markdown is
// set the note is parsed from it and the structured fields are ignored.
type IndexNoteRequest struct {
	Path        string            `json:"path" example:"notes/hello.md" validate:"required"`
	Markdown    string            `json:"markdown,omitempty" example:"# Hello\nWorld"`
	Title       string            `json:"title,omitempty" example:"Hello"`
	Content     string            `json:"content,omitempty" example:"World"`
	Frontmatter index.Frontmatter `json:"frontmatter,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Aliases     []string          `json:"aliases,omitempty"`
	WordCount   int               `json:"word_count,omitempty"`
	Checksum    string            `json:"checksum,omitempty"`
	Starred     bool              `json:"is_starred,omitempty"`
	Template    bool              `json:"is_template,omitempty"`
	Links       []LinkRequest     `json:"links,omitempty"`
}

// LinkRequest is one outgoing link of an IndexNoteRequest.
type LinkRequest struct {
	Raw    string `json:"raw" example:"World"`
	Target string `json:"target,omitempty" example:"notes/world.md"`
	Type   string `json:"type,omitempty" example:"wiki"`
	Line   int    `json:"line,omitempty" example:"3"`
}

// Validate validates the request.
func (r IndexNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.WordCount, validation.Min(0)),
		validation.Field(&r.Links),
	)
}

// Validate validates the link.
func (l LinkRequest) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Raw, validation.Required),
		validation.Field(&l.Type, validation.In(index.LinkWiki, index.LinkInline)),
		validation.Field(&l.Line, validation.Min(0)),
	)
}

// Document converts the structured form of the request.
func (r IndexNoteRequest) Document() index.Document {
	links := make([]index.Link, 0, len(r.Links))
	for _, l := range r.Links {
		links = append(links, index.Link{Raw: l.Raw, Target: l.Target, Type: l.Type, Line: l.Line})
	}
	return index.Document{
		Path:        r.Path,
		Title:       r.Title,
		Content:     r.Content,
		Frontmatter: r.Frontmatter,
		Tags:        r.Tags,
		Aliases:     r.Aliases,
		WordCount:   r.WordCount,
		Checksum:    r.Checksum,
		Starred:     r.Starred,
		Template:    r.Template,
		Links:       links,
	}
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []index.Summary `json:"notes" validate:"required"`
	Total int             `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// BacklinksResponse wraps the links pointing at a note.
type BacklinksResponse struct {
	Backlinks []index.Link `json:"backlinks" validate:"required"`
}

// InitResponse reports the state of a freshly initialized index.
type InitResponse struct {
	Index  string             `json:"index" example:"./notedex.db"`
	Status index.SchemaStatus `json:"status"`
}

// TreeNode is the vault tree response type.
type TreeNode = storage.Node
