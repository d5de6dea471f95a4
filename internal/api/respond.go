package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/folio/internal/generate"
	"github.com/dgallion1/folio/internal/pipeline"
	"github.com/dgallion1/folio/internal/session"
	"github.com/dgallion1/folio/internal/store"
	"github.com/dgallion1/folio/internal/story"
)

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrStoryEnded):
		code = http.StatusConflict
	case errors.Is(err, session.ErrUnknownChoice), errors.Is(err, story.ErrInvalidFragment):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrQueueFull), errors.Is(err, pipeline.ErrStopped):
		code = http.StatusServiceUnavailable
	case errors.Is(err, generate.ErrGenerationFailed), errors.Is(err, generate.ErrMalformedResponse):
		code = http.StatusBadGateway
	}
	jsonError(w, err.Error(), code)
}

// decodeJSON reads a JSON request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
