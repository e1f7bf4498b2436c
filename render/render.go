// Package render turns stacked band grids into display images.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/sattiles/cbers/tiler"
)

// Stretch maps one band's values onto 0..255 with a linear stretch
// between Min and Max. Values at or below Min render black, at or
// above Max render full brightness.
type Stretch struct {
	Min, Max float64
}

func (s Stretch) scale(v float64) uint8 {
	if s.Max <= s.Min {
		if v > s.Min {
			return 255
		}
		return 0
	}
	n := (v - s.Min) / (s.Max - s.Min) * 255
	n = math.Round(n)
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return uint8(n)
}

// Image renders a tile as an 8-bit image: grayscale for a single band,
// RGB for exactly three. stretches must align with img.Bands.
func Image(img *tiler.TileImage, stretches []Stretch) (*image.NRGBA, error) {
	if len(stretches) != len(img.Bands) {
		return nil, fmt.Errorf("got %d stretch ranges for %d bands", len(stretches), len(img.Bands))
	}

	out := image.NewNRGBA(image.Rect(0, 0, img.Size, img.Size))
	switch len(img.Bands) {
	case 1:
		for y := 0; y < img.Size; y++ {
			for x := 0; x < img.Size; x++ {
				v := stretches[0].scale(img.At(0, x, y))
				out.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
			}
		}
	case 3:
		for y := 0; y < img.Size; y++ {
			for x := 0; x < img.Size; x++ {
				out.SetNRGBA(x, y, color.NRGBA{
					R: stretches[0].scale(img.At(0, x, y)),
					G: stretches[1].scale(img.At(1, x, y)),
					B: stretches[2].scale(img.At(2, x, y)),
					A: 255,
				})
			}
		}
	default:
		return nil, fmt.Errorf("cannot render %d bands, want 1 or 3", len(img.Bands))
	}
	return out, nil
}

// PNG renders a tile and encodes it as a PNG.
func PNG(img *tiler.TileImage, stretches []Stretch) ([]byte, error) {
	rendered, err := Image(img, stretches)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, rendered); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StretchesFor builds the per band stretch list for a tile from scene
// metadata ranges, falling back to the full uint8 range for bands the
// metadata does not cover.
func StretchesFor(img *tiler.TileImage, ranges map[string]tiler.BandRange) []Stretch {
	stretches := make([]Stretch, len(img.Bands))
	for i, band := range img.Bands {
		if r, ok := ranges[band]; ok {
			stretches[i] = Stretch{Min: r.Min, Max: r.Max}
		} else {
			stretches[i] = Stretch{Min: 0, Max: 255}
		}
	}
	return stretches
}
