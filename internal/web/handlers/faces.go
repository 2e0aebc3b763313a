package handlers

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-registry/internal/assets"
	"github.com/kozaktomas/face-registry/internal/registry"
)

// FacesHandler serves stored face images read-only.
type FacesHandler struct {
	registry *registry.Registry
}

// NewFacesHandler creates a new faces handler.
func NewFacesHandler(reg *registry.Registry) *FacesHandler {
	return &FacesHandler{registry: reg}
}

// Get serves the image bytes behind an asset reference. Only assets owned by
// a profile are served.
func (h *FacesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ref := assets.Ref(chi.URLParam(r, "ref"))

	path, err := h.registry.FacePath(ref)
	if err != nil {
		respondError(w, http.StatusNotFound, "face not found")
		return
	}
	if _, err := os.Stat(path); err != nil {
		respondError(w, http.StatusNotFound, "face not found")
		return
	}

	http.ServeFile(w, r, path)
}
