package descriptor

import (
	"context"
	"errors"
)

// Dim is the pipeline-wide descriptor length. Every extractor must produce
// vectors of exactly this length so descriptors from different sources stay
// comparable.
const Dim = 128

// Descriptor is a fixed-length feature vector representing a face.
type Descriptor []float32

// ErrUnreadableImage is returned when the input bytes cannot be decoded as an
// image in any supported format.
var ErrUnreadableImage = errors.New("unreadable image")

// Extractor computes a face descriptor from raw image bytes.
// Implementations must be pure (no state shared between calls) and return
// vectors of length Dim. A real implementation must also be deterministic for
// a fixed input.
type Extractor interface {
	Extract(ctx context.Context, imageData []byte) (Descriptor, error)
}

// DetectMIMEType detects the MIME type of image data from its magic bytes.
func DetectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	// BMP: 42 4D
	if data[0] == 0x42 && data[1] == 0x4D {
		return "image/bmp"
	}
	return "application/octet-stream"
}

// IsSupportedImage reports whether the data looks like a raster image format
// the pipeline accepts.
func IsSupportedImage(data []byte) bool {
	switch DetectMIMEType(data) {
	case "image/jpeg", "image/png", "image/gif", "image/webp", "image/bmp":
		return true
	}
	return false
}
