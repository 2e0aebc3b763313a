package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-registry/internal/assets"
	"github.com/kozaktomas/face-registry/internal/registry"
)

// ProfilesHandler handles profile CRUD endpoints.
type ProfilesHandler struct {
	registry *registry.Registry
}

// NewProfilesHandler creates a new profiles handler.
func NewProfilesHandler(reg *registry.Registry) *ProfilesHandler {
	return &ProfilesHandler{registry: reg}
}

// List returns all profiles in insertion order.
func (h *ProfilesHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles := h.registry.List()
	out := make([]profileResponse, len(profiles))
	for i, p := range profiles {
		out[i] = toProfileResponse(p)
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns a single profile by id.
func (h *ProfilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	profile, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondRegistryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toProfileResponse(profile))
}

// Create creates a profile from a multipart form: text fields "name",
// "contact", "place" and one or more files under "faces".
func (h *ProfilesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	images, err := readUploads(r.MultipartForm.File["faces"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read uploaded files")
		return
	}

	profile, err := h.registry.Create(r.Context(), registry.CreateInput{
		Name:    r.FormValue("name"),
		Contact: r.FormValue("contact"),
		Place:   r.FormValue("place"),
		Images:  images,
	})
	if err != nil {
		respondRegistryError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toProfileResponse(profile))
}

// Update applies a partial update from a multipart form: optional text fields
// "name", "contact", "place", asset references to drop under "removeFaces"
// and new images under "newFaces". Omitted or empty text fields keep their
// current value.
func (h *ProfilesHandler) Update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	images, err := readUploads(r.MultipartForm.File["newFaces"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read uploaded files")
		return
	}

	var removeFaces []assets.Ref
	for _, v := range r.MultipartForm.Value["removeFaces"] {
		if v != "" {
			removeFaces = append(removeFaces, assets.Ref(v))
		}
	}

	profile, err := h.registry.Update(r.Context(), chi.URLParam(r, "id"), registry.UpdateInput{
		Name:        r.FormValue("name"),
		Contact:     r.FormValue("contact"),
		Place:       r.FormValue("place"),
		RemoveFaces: removeFaces,
		NewImages:   images,
	})
	if err != nil {
		respondRegistryError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toProfileResponse(profile))
}

// Delete removes a profile and its face assets.
func (h *ProfilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.registry.Delete(id); err != nil {
		respondRegistryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}
