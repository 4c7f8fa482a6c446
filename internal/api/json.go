package api

import (
	"errors"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/starford/perthro/internal/apperr"
	"github.com/starford/perthro/internal/versioning"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	// Patch locates the failing history entry for corrupt-history errors.
	Patch *patchDetail `json:"patch,omitempty"`
}

type patchDetail struct {
	Version string `json:"version"`
	Entry   int    `json:"entry"`
	Op      int    `json:"op"`
	Kind    string `json:"kind,omitempty"`
	Path    string `json:"path,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps service errors to status codes. Unknown errors are logged
// and reported as 500 without detail.
func writeError(w http.ResponseWriter, op string, err error, attrs ...slog.Attr) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrCorruptHistory):
		body := errorBody("version history cannot be replayed")
		var pe *versioning.PatchError
		if errors.As(err, &pe) {
			body.Patch = &patchDetail{
				Version: pe.Version,
				Entry:   pe.Index,
				Op:      pe.Op,
				Kind:    pe.Kind,
				Path:    pe.Path,
			}
		}
		writeJSON(w, http.StatusUnprocessableEntity, body)
	default:
		args := []any{slog.String("error", err.Error())}
		for _, a := range attrs {
			args = append(args, a)
		}
		slog.Error(op+" failed", args...)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
