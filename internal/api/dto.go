package api

import (
	"github.com/starford/perthro/internal/changes"
	"github.com/starford/perthro/internal/docservice"
	"github.com/starford/perthro/internal/index"
)

// DocumentView is a document served at one version (aliased from the domain layer).
type DocumentView = docservice.DocumentView

// DocumentListItem is a lightweight item in a list response (aliased from the domain layer).
type DocumentListItem = docservice.DocumentListItem

// VersionList is one document's version history (aliased from the domain layer).
type VersionList = docservice.VersionList

// DiffView is a line diff between two versions (aliased from the domain layer).
type DiffView = docservice.DiffView

// DocumentListResponse wraps paginated document listings.
type DocumentListResponse struct {
	Documents []DocumentListItem `json:"documents" validate:"required"`
	Total     int                `json:"total" example:"42" validate:"required"`
}

// ArchiveVersionsResponse lists every version named in the archive.
type ArchiveVersionsResponse struct {
	Versions []string `json:"versions" validate:"required"`
}

// ChangesResponse holds navigator change markers keyed by language, then URL.
type ChangesResponse struct {
	Version string                               `json:"version" example:"v2" validate:"required"`
	Changes map[string]changes.NavigationChanges `json:"changes" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"data/documentation/fazz.json" validate:"required"`
	URL     string `json:"url" example:"/documentation/fazz" validate:"required"`
	Title   string `json:"title" example:"Fazz" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search hits.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

func toSearchResults(rows []index.SearchResult) []SearchResult {
	out := make([]SearchResult, len(rows))
	for i, r := range rows {
		out[i] = SearchResult{Path: r.Path, URL: r.URL, Title: r.Title, Snippet: r.Snippet}
	}
	return out
}
