package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/index/init", h.InitIndex)

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.IndexNote)
	r.Get("/notes/*", h.GetNote)
	r.Delete("/notes/*", h.RemoveNote)

	// Search.
	r.Get("/search", h.Search)

	// Graph and vault.
	r.Get("/backlinks/*", h.Backlinks)
	r.Get("/tree", h.Tree)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
