package render

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/sattiles/cbers/tiler"
)

func constantTile(bands []string, size int, values []float64) *tiler.TileImage {
	grids := make([][]float64, len(bands))
	for i := range bands {
		grid := make([]float64, size*size)
		for j := range grid {
			grid[j] = values[i]
		}
		grids[i] = grid
	}
	return &tiler.TileImage{Bands: bands, Size: size, Grids: grids}
}

func TestStretchScale(t *testing.T) {
	s := Stretch{Min: 50, Max: 150}
	testCases := []struct {
		in   float64
		want uint8
	}{
		{0, 0},
		{50, 0},
		{100, 128},
		{150, 255},
		{999, 255},
	}
	for _, tc := range testCases {
		if got := s.scale(tc.in); got != tc.want {
			t.Errorf("scale(%f) = %d, want %d", tc.in, got, tc.want)
		}
	}

	// Degenerate range: threshold rather than divide by zero.
	flat := Stretch{Min: 42, Max: 42}
	if flat.scale(42) != 0 || flat.scale(43) != 255 {
		t.Error("degenerate stretch should threshold at Min")
	}
}

func TestImageRGB(t *testing.T) {
	tile := constantTile([]string{"7", "6", "5"}, 8, []float64{70, 60, 50})
	img, err := Image(tile, []Stretch{{0, 100}, {0, 100}, {0, 100}})
	if err != nil {
		t.Fatalf("Image: %v", err)
	}

	c := img.NRGBAAt(4, 4)
	if c.R != 179 || c.G != 153 || c.B != 128 || c.A != 255 {
		t.Errorf("pixel = %+v, want {179 153 128 255}", c)
	}
}

func TestImageGray(t *testing.T) {
	tile := constantTile([]string{"5"}, 8, []float64{50})
	img, err := Image(tile, []Stretch{{0, 100}})
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	c := img.NRGBAAt(0, 0)
	if c.R != c.G || c.G != c.B {
		t.Errorf("grayscale pixel has unequal channels: %+v", c)
	}
}

func TestImageBandCountErrors(t *testing.T) {
	two := constantTile([]string{"5", "6"}, 4, []float64{1, 2})
	if _, err := Image(two, []Stretch{{0, 1}, {0, 1}}); err == nil {
		t.Error("two bands should not render")
	}

	three := constantTile([]string{"5", "6", "7"}, 4, []float64{1, 2, 3})
	if _, err := Image(three, []Stretch{{0, 1}}); err == nil {
		t.Error("mismatched stretch count should fail")
	}
}

func TestPNG(t *testing.T) {
	tile := constantTile([]string{"5", "6", "7"}, 16, []float64{50, 60, 70})
	data, err := PNG(tile, StretchesFor(tile, map[string]tiler.BandRange{
		"5": {Min: 0, Max: 100},
		"6": {Min: 0, Max: 100},
		"7": {Min: 0, Max: 100},
	}))
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}

	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if decoded.Bounds().Dx() != 16 || decoded.Bounds().Dy() != 16 {
		t.Errorf("decoded size = %v, want 16x16", decoded.Bounds())
	}
}

func TestStretchesForFallback(t *testing.T) {
	tile := constantTile([]string{"5", "9", "7"}, 4, []float64{1, 2, 3})
	stretches := StretchesFor(tile, map[string]tiler.BandRange{
		"5": {Min: 10, Max: 20},
		"7": {Min: 30, Max: 40},
	})
	if stretches[0] != (Stretch{10, 20}) || stretches[2] != (Stretch{30, 40}) {
		t.Errorf("known bands got %v", stretches)
	}
	if stretches[1] != (Stretch{0, 255}) {
		t.Errorf("unknown band fallback = %v, want {0 255}", stretches[1])
	}
}
