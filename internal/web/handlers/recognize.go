package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/kozaktomas/face-registry/internal/registry"
)

// RecognizeHandler handles face recognition queries.
type RecognizeHandler struct {
	registry *registry.Registry
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(reg *registry.Registry) *RecognizeHandler {
	return &RecognizeHandler{registry: reg}
}

// recognizeResponse is the wire shape of a recognition result.
type recognizeResponse struct {
	Matched    bool             `json:"matched"`
	Confidence float64          `json:"confidence,omitempty"`
	Profile    *profileResponse `json:"profile,omitempty"`
}

// Recognize matches a query image against the catalog. Multipart form: one
// file under "image", optional "threshold" field overriding the configured
// default. The query image is never stored.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read uploaded image")
		return
	}

	var threshold float64
	if v := r.FormValue("threshold"); v != "" {
		threshold, err = strconv.ParseFloat(v, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "threshold must be a number")
			return
		}
	}

	result, err := h.registry.Recognize(r.Context(), imageData, threshold)
	if err != nil {
		respondRegistryError(w, err)
		return
	}

	resp := recognizeResponse{
		Matched:    result.Matched,
		Confidence: result.Confidence,
	}
	if result.Profile != nil {
		p := toProfileResponse(*result.Profile)
		resp.Profile = &p
	}
	respondJSON(w, http.StatusOK, resp)
}
