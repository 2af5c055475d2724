package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notedex/internal/index"
	"github.com/starford/notedex/internal/noteservice"
)

// Handler holds API route handlers bound to one index and vault.
type Handler struct {
	svc       *noteservice.Service
	indexPath string
	vaultRoot string
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service, indexPath, vaultRoot string) *Handler {
	return &Handler{svc: svc, indexPath: indexPath, vaultRoot: vaultRoot}
}

// notePath extracts the note path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// parseBool reads an optional boolean query parameter.
func parseBool(q url.Values, key string) (*bool, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// InitIndex handles POST /api/index/init.
//
//	@Summary		Create the index schema if missing
//	@Tags			index
//	@Produce		json
//	@Success		200	{object}	InitResponse
//	@Security		BearerAuth
//	@Router			/index/init [post]
func (h *Handler) InitIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.InitIndex(r.Context(), h.indexPath); err != nil {
		writeError(w, "init index", err)
		return
	}
	st, err := h.svc.Status(r.Context(), h.indexPath)
	if err != nil {
		writeError(w, "index status", err)
		return
	}
	writeJSON(w, http.StatusOK, InitResponse{Index: h.indexPath, Status: st})
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes, most recently updated first
//	@Tags			notes
//	@Produce		json
//	@Param			starred		query		bool	false	"Only starred (true) or unstarred (false) notes"
//	@Param			template	query		bool	false	"Only templates (true) or non-templates (false)"
//	@Param			tag			query		string	false	"Filter by tag"
//	@Success		200			{object}	NoteListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	starred, err := parseBool(q, "starred")
	if err != nil {
		badRequest(w, "invalid 'starred' parameter")
		return
	}
	template, err := parseBool(q, "template")
	if err != nil {
		badRequest(w, "invalid 'template' parameter")
		return
	}

	items, err := h.svc.ListNotes(r.Context(), h.indexPath, index.Filter{
		Starred:  starred,
		Template: template,
		Tag:      q.Get("tag"),
	})
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: len(items)})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single indexed note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		badRequest(w, "path is required")
		return
	}
	note, err := h.svc.GetNote(r.Context(), h.indexPath, path)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// IndexNote handles POST /api/notes.
//
//	@Summary		Insert or update a note in the index
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		IndexNoteRequest	true	"Note to index"
//	@Success		200		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) IndexNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req IndexNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}

	var err error
	if req.Markdown != "" {
		_, err = h.svc.IndexFile(r.Context(), h.indexPath, req.Path, []byte(req.Markdown))
	} else {
		err = h.svc.IndexNote(r.Context(), h.indexPath, req.Document())
	}
	if err != nil {
		writeError(w, "index note", err)
		return
	}

	note, err := h.svc.GetNote(r.Context(), h.indexPath, req.Path)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// RemoveNote handles DELETE /api/notes/*.
//
//	@Summary		Remove a note from the index
//	@Tags			notes
//	@Param			path	path	string	true	"Note path"
//	@Success		204		"Note removed"
//	@Security		BearerAuth
//	@Router			/notes/{path} [delete]
func (h *Handler) RemoveNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		badRequest(w, "path is required")
		return
	}
	if err := h.svc.RemoveFromIndex(r.Context(), h.indexPath, path); err != nil {
		writeError(w, "remove note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Ranked full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results (default 50)"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	results, err := h.svc.SearchNotes(r.Context(), h.indexPath, q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		List links pointing at a note
//	@Tags			graph
//	@Produce		json
//	@Param			path	path		string	true	"Target note path"
//	@Success		200		{object}	BacklinksResponse
//	@Security		BearerAuth
//	@Router			/backlinks/{path} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		badRequest(w, "path is required")
		return
	}
	links, err := h.svc.Backlinks(r.Context(), h.indexPath, path)
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Backlinks: links})
}

// Tree handles GET /api/tree.
//
//	@Summary		Folder hierarchy of the vault
//	@Tags			vault
//	@Produce		json
//	@Success		200	{object}	TreeNode
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, _ *http.Request) {
	tree, err := h.svc.Tree(h.vaultRoot)
	if err != nil {
		writeError(w, "tree", err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}
