package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/perthro/internal/docservice"
	"github.com/starford/perthro/internal/index"
)

const maxDocumentBytes = 32 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *docservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *docservice.Service) *Handler {
	return &Handler{svc: svc}
}

// docPath extracts the document path from the URL (everything after the
// route prefix). Supports encoded slashes from OpenAPI clients
// (e.g. documentation%2Ffazz).
func docPath(r *http.Request) string {
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

// ListDocuments handles GET /api/documents.
//
//	@Summary		List documents with optional pagination and filtering
//	@Tags			documents
//	@Produce		json
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			language	query		string	false	"Filter by interface language"
//	@Param			version		query		string	false	"Only documents whose history names this version"
//	@Param			sort		query		string	false	"Sort field"	Enums(path, title, updated_at)
//	@Success		200			{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListDocuments(r.Context(), index.ListQuery{
		Limit:    limit,
		Offset:   offset,
		Language: q.Get("language"),
		Version:  q.Get("version"),
		Sort:     q.Get("sort"),
	})
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: items, Total: total})
}

// GetDocument handles GET /api/documents/*.
//
//	@Summary		Get a document reconstructed at a version
//	@Tags			documents
//	@Produce		json
//	@Param			path		path		string	true	"Documentation URL or archive path"
//	@Param			version		query		string	false	"Version display name (default current)"
//	@Param			language	query		string	false	"Interface language for API changes"
//	@Param			compare		query		string	false	"Version whose API changes annotate the result"
//	@Success		200			{object}	DocumentView
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		422			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	q := r.URL.Query()
	view, err := h.svc.GetDocument(r.Context(), path, docservice.Query{
		Version:        q.Get("version"),
		Language:       q.Get("language"),
		CompareVersion: q.Get("compare"),
	})
	if err != nil {
		writeError(w, "get document", err, slog.String("path", path))
		return
	}
	w.Header().Set("ETag", strconv.Quote(view.Checksum))
	writeJSON(w, http.StatusOK, view)
}

// PutDocument handles PUT /api/documents/*.
//
//	@Summary		Publish a render node with optimistic concurrency
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			path		path		string	true	"Documentation URL or archive path"
//	@Param			If-Match	header		string	false	"Checksum of the stored file"
//	@Success		200			{object}	DocumentView
//	@Success		201			{object}	DocumentView
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Failure		422			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [put]
func (h *Handler) PutDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	path := docPath(r)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	view, created, err := h.svc.PutDocument(r.Context(), path, body, ifMatch)
	if err != nil {
		writeError(w, "put document", err, slog.String("path", path))
		return
	}
	w.Header().Set("ETag", strconv.Quote(view.Checksum))
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, view)
}

// DeleteDocument handles DELETE /api/documents/*.
//
//	@Summary		Delete a document
//	@Tags			documents
//	@Param			path	path	string	true	"Documentation URL or archive path"
//	@Success		204		"Document deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if err := h.svc.DeleteDocument(r.Context(), path); err != nil {
		writeError(w, "delete document", err, slog.String("path", path))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ArchiveVersions handles GET /api/versions.
//
//	@Summary		List every version named in the archive
//	@Tags			versions
//	@Produce		json
//	@Success		200	{object}	ArchiveVersionsResponse
//	@Security		BearerAuth
//	@Router			/versions [get]
func (h *Handler) ArchiveVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.svc.ArchiveVersions(r.Context())
	if err != nil {
		writeError(w, "archive versions", err)
		return
	}
	writeJSON(w, http.StatusOK, ArchiveVersionsResponse{Versions: versions})
}

// ListVersions handles GET /api/versions/*.
//
//	@Summary		List a document's versions, current first
//	@Tags			versions
//	@Produce		json
//	@Param			path	path		string	true	"Documentation URL or archive path"
//	@Success		200		{object}	VersionList
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/versions/{path} [get]
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	list, err := h.svc.ListVersions(r.Context(), path)
	if err != nil {
		writeError(w, "list versions", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Diff handles GET /api/diff/*.
//
//	@Summary		Line diff between two versions of a document
//	@Tags			versions
//	@Produce		json
//	@Param			path	path		string	true	"Documentation URL or archive path"
//	@Param			from	query		string	false	"Base version (default current)"
//	@Param			to		query		string	false	"Target version (default current)"
//	@Success		200		{object}	DiffView
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/diff/{path} [get]
func (h *Handler) Diff(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	q := r.URL.Query()
	d, err := h.svc.Diff(r.Context(), path, q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, "diff", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Changes handles GET /api/changes.
//
//	@Summary		Navigator API change markers for a version
//	@Tags			changes
//	@Produce		json
//	@Param			version		query		string	true	"Version display name"
//	@Param			language	query		string	false	"Interface language (default all)"
//	@Success		200			{object}	ChangesResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/changes [get]
func (h *Handler) Changes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	version := q.Get("version")
	got, err := h.svc.NavigationChanges(r.Context(), version, q.Get("language"))
	if err != nil {
		writeError(w, "changes", err)
		return
	}
	writeJSON(w, http.StatusOK, ChangesResponse{Version: version, Changes: got})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across document titles and abstracts
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: toSearchResults(results)})
}
