package geotiff

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/sattiles/cbers/proj"
)

// ReadWarped reads the raster region covered by dst, a web mercator
// (EPSG:3857) bounding box, reprojected and resampled onto a fixed
// size×size pixel grid. native must be the projection matching the
// raster's EPSG code.
//
// Each output pixel center is mapped mercator → WGS84 → native CRS and
// sampled nearest neighbor through the tile cache. Pixels falling off
// the raster are filled with the nodata value (zero when the raster
// declares none); everything else propagates read errors unchanged.
func (g *GeoTIFF) ReadWarped(native proj.Projection, dst orb.Bound, size int) ([]float64, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid output size %d", size)
	}
	if native.EPSG() != g.epsg {
		return nil, fmt.Errorf("projection EPSG %d does not match raster EPSG %d", native.EPSG(), g.epsg)
	}

	fill := 0.0
	if g.hasNoData {
		fill = g.noData
	}

	spanX := dst.Max[0] - dst.Min[0]
	spanY := dst.Max[1] - dst.Min[1]
	if spanX <= 0 || spanY <= 0 {
		return nil, fmt.Errorf("degenerate destination bounds %v", dst)
	}

	grid := make([]float64, size*size)
	for py := 0; py < size; py++ {
		// Output rows run north to south.
		my := dst.Max[1] - (float64(py)+0.5)*spanY/float64(size)
		for px := 0; px < size; px++ {
			mx := dst.Min[0] + (float64(px)+0.5)*spanX/float64(size)

			lon, lat := proj.WebMercator.ToWGS84(mx, my)
			nx, ny := native.FromWGS84(lon, lat)
			ix, iy := g.pixelAt(nx, ny)

			v, err := g.sampleAt(ix, iy)
			switch {
			case err == nil:
				grid[py*size+px] = v
			case errors.Is(err, errPixelOutside):
				grid[py*size+px] = fill
			default:
				return nil, err
			}
		}
	}
	return grid, nil
}

// ReadDecimated samples the raster on a regular grid no larger than
// maxDim×maxDim and returns the collected values, nodata excluded.
// It is meant for statistics over preview sized assets, not for
// display.
func (g *GeoTIFF) ReadDecimated(maxDim int) ([]float64, error) {
	if maxDim <= 0 {
		return nil, fmt.Errorf("invalid decimation size %d", maxDim)
	}

	strideX := (g.Width() + maxDim - 1) / maxDim
	strideY := (g.Height() + maxDim - 1) / maxDim
	if strideX < 1 {
		strideX = 1
	}
	if strideY < 1 {
		strideY = 1
	}

	samples := make([]float64, 0, (g.Width()/strideX+1)*(g.Height()/strideY+1))
	for y := 0; y < g.Height(); y += strideY {
		for x := 0; x < g.Width(); x += strideX {
			v, err := g.sampleAt(x, y)
			if err != nil {
				return nil, err
			}
			if g.hasNoData && v == g.noData {
				continue
			}
			samples = append(samples, v)
		}
	}
	return samples, nil
}
