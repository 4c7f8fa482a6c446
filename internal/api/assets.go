package api

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Asset directories at the archive root.
var assetKinds = map[string]struct{}{
	"images":    {},
	"videos":    {},
	"downloads": {},
}

// AssetHandler serves the media files a render node references.
type AssetHandler struct {
	archiveRoot string
}

// NewAssetHandler creates a handler rooted at the archive directory.
func NewAssetHandler(archiveRoot string) *AssetHandler {
	return &AssetHandler{archiveRoot: archiveRoot}
}

// safeName validates that kind is a known asset directory and filename is a
// plain name (no path separators, no traversal), and returns the absolute
// path of the asset.
func (h *AssetHandler) safeName(kind, name string) (string, error) {
	if _, ok := assetKinds[kind]; !ok {
		return "", fmt.Errorf("unknown asset kind: %s", kind)
	}
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	dir := filepath.Join(h.archiveRoot, kind)
	abs := filepath.Join(dir, cleaned)
	if !strings.HasPrefix(abs, dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes %s directory", kind)
	}
	return abs, nil
}

// ServeFile handles GET /assets/{kind}/{filename}.
func (h *AssetHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.safeName(chi.URLParam(r, "kind"), chi.URLParam(r, "filename"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	info, statErr := os.Stat(abs)
	if statErr != nil || info.IsDir() {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, abs)
}
