package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"

	"github.com/kozaktomas/face-registry/internal/descriptor"
	"github.com/kozaktomas/face-registry/internal/matcher"
	"github.com/kozaktomas/face-registry/internal/registry"
	"github.com/kozaktomas/face-registry/internal/store"
)

// maxUploadSize limits a single multipart request body (32 MB).
const maxUploadSize = 32 << 20

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondRegistryError maps domain errors to HTTP statuses. Unrecognized
// errors become a generic 500 with the detail kept in the log.
func respondRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		respondError(w, http.StatusNotFound, "profile not found")
	case errors.Is(err, registry.ErrValidation):
		respondError(w, http.StatusBadRequest, "name and contact are required")
	case errors.Is(err, registry.ErrNoImage):
		respondError(w, http.StatusBadRequest, "at least one face image is required")
	case errors.Is(err, descriptor.ErrUnreadableImage):
		respondError(w, http.StatusBadRequest, "unreadable image")
	case errors.Is(err, matcher.ErrInvalidThreshold):
		respondError(w, http.StatusBadRequest, "threshold must be between 0 and 1")
	default:
		log.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// readUploads reads every multipart file under the given field into memory.
func readUploads(files []*multipart.FileHeader) ([]registry.ImageUpload, error) {
	uploads := make([]registry.ImageUpload, 0, len(files))
	for _, header := range files {
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, registry.ImageUpload{
			Filename: header.Filename,
			Data:     data,
		})
	}
	return uploads, nil
}

// profileResponse is the wire shape of a profile. Raw descriptors stay
// internal; callers only see how many there are.
type profileResponse struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Contact         string   `json:"contact"`
	Place           string   `json:"place,omitempty"`
	Faces           []string `json:"faces"`
	DescriptorCount int      `json:"descriptor_count"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

func toProfileResponse(p store.Profile) profileResponse {
	faces := make([]string, len(p.Faces))
	for i, ref := range p.Faces {
		faces[i] = string(ref)
	}
	return profileResponse{
		ID:              p.ID,
		Name:            p.Name,
		Contact:         p.Contact,
		Place:           p.Place,
		Faces:           faces,
		DescriptorCount: len(p.Descriptors),
		CreatedAt:       p.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		UpdatedAt:       p.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
