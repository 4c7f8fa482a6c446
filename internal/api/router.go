package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/perthro/internal/docservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// archiveRoot is used to resolve the asset directories.
func NewRouter(svc *docservice.Service, authEnabled bool, token string, sseHandler http.Handler, archiveRoot string) chi.Router {
	h := NewHandler(svc)
	ah := NewAssetHandler(archiveRoot)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Documents.
	r.Get("/documents", h.ListDocuments)
	r.Get("/documents/*", h.GetDocument)
	r.Put("/documents/*", h.PutDocument)
	r.Delete("/documents/*", h.DeleteDocument)

	// Versions and changes.
	r.Get("/versions", h.ArchiveVersions)
	r.Get("/versions/*", h.ListVersions)
	r.Get("/diff/*", h.Diff)
	r.Get("/changes", h.Changes)

	// Search.
	r.Get("/search", h.Search)

	// Media referenced by render nodes.
	r.Get("/assets/{kind}/{filename}", ah.ServeFile)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
