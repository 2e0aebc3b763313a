package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-registry/internal/assets"
	"github.com/kozaktomas/face-registry/internal/descriptor"
	"github.com/kozaktomas/face-registry/internal/matcher"
	"github.com/kozaktomas/face-registry/internal/registry"
	"github.com/kozaktomas/face-registry/internal/store"
)

// byteExtractor derives a deterministic descriptor from the raw image bytes,
// so handler tests run without decoding or a remote embedding server.
type byteExtractor struct{}

func (byteExtractor) Extract(_ context.Context, data []byte) (descriptor.Descriptor, error) {
	if len(data) == 0 {
		return nil, descriptor.ErrUnreadableImage
	}
	h := fnv.New32a()
	h.Write(data)
	seed := h.Sum32()

	d := make(descriptor.Descriptor, descriptor.Dim)
	for i := range d {
		seed = seed*1664525 + 1013904223
		d[i] = float32(seed%1000)/1000 + 0.001
	}
	return d, nil
}

// newTestRegistry creates a registry backed by a temp directory
func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "profiles.json"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	am, err := assets.NewManager(filepath.Join(dir, "faces"))
	if err != nil {
		t.Fatalf("failed to create asset manager: %v", err)
	}

	return registry.New(st, am, byteExtractor{}, matcher.NewLinear(), 0.6)
}

// multipartRequest builds a multipart form request with text fields and files
func multipartRequest(t *testing.T, method, path string, fields map[string][]string, files map[string][][]byte) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for name, values := range fields {
		for _, v := range values {
			if err := writer.WriteField(name, v); err != nil {
				t.Fatalf("failed to write form field: %v", err)
			}
		}
	}
	for name, contents := range files {
		for i, data := range contents {
			part, err := writer.CreateFormFile(name, "upload-"+string(rune('a'+i))+".jpg")
			if err != nil {
				t.Fatalf("failed to create form file: %v", err)
			}
			if _, err := part.Write(data); err != nil {
				t.Fatalf("failed to write form file: %v", err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

// createProfile creates a profile through the handler and returns its response
func createProfile(t *testing.T, h *ProfilesHandler, name, contact string, images ...[]byte) profileResponse {
	t.Helper()

	req := multipartRequest(t, http.MethodPost, "/api/v1/profiles",
		map[string][]string{"name": {name}, "contact": {contact}},
		map[string][][]byte{"faces": images},
	)
	recorder := httptest.NewRecorder()
	h.Create(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)
	var created profileResponse
	parseJSONResponse(t, recorder, &created)
	return created
}
