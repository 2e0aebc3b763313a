package descriptor

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Grid dimensions chosen so gridWidth*gridHeight == Dim.
const (
	gridWidth  = 16
	gridHeight = 8
)

// Grid is a local, deterministic extractor. It scales the image down to a
// fixed luminance grid and uses the normalized grid as the descriptor. It is
// not a face embedding model; it exists so the pipeline can run (and be
// tested) without an external embedding server, while still satisfying the
// extractor contract: fixed length, deterministic, pure.
type Grid struct{}

// NewGrid creates a new grid extractor.
func NewGrid() *Grid {
	return &Grid{}
}

// Extract decodes the image, resamples it to a 16x8 luminance grid and
// returns the L2-normalized grid values as a 128-dim descriptor.
func (g *Grid) Extract(_ context.Context, imageData []byte) (Descriptor, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, ErrUnreadableImage
	}

	scaled := image.NewRGBA(image.Rect(0, 0, gridWidth, gridHeight))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)

	desc := make(Descriptor, Dim)
	var norm float64
	for y := 0; y < gridHeight; y++ {
		for x := 0; x < gridWidth; x++ {
			r, gr, b, _ := scaled.At(x, y).RGBA()
			// Rec. 601 luma, components are 16-bit.
			luma := 0.299*float64(r) + 0.587*float64(gr) + 0.114*float64(b)
			v := luma / 65535.0
			desc[y*gridWidth+x] = float32(v)
			norm += v * v
		}
	}

	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range desc {
			desc[i] *= scale
		}
	}

	return desc, nil
}
