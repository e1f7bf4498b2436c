package proj

import (
	"math"

	"github.com/paulmach/orb"
)

// DefaultDensify is the number of interior points sampled along each
// edge when reprojecting a bounding box. Sampling the edges, not just
// the corners, bounds the error introduced by projection curvature.
const DefaultDensify = 21

// TransformBounds reprojects a bounding box from src to dst,
// densifying each edge with the given number of interior points.
// densify values below zero fall back to DefaultDensify; zero means
// corners only, which is exact for affine-like transforms.
func TransformBounds(src, dst Projection, b orb.Bound, densify int) orb.Bound {
	if densify < 0 {
		densify = DefaultDensify
	}
	if src.EPSG() == dst.EPSG() {
		return b
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)

	extend := func(x, y float64) {
		lon, lat := src.ToWGS84(x, y)
		px, py := dst.FromWGS84(lon, lat)
		minX = math.Min(minX, px)
		minY = math.Min(minY, py)
		maxX = math.Max(maxX, px)
		maxY = math.Max(maxY, py)
	}

	steps := densify + 1
	dx := (b.Max[0] - b.Min[0]) / float64(steps)
	dy := (b.Max[1] - b.Min[1]) / float64(steps)

	for i := 0; i <= steps; i++ {
		// Bottom and top edges.
		extend(b.Min[0]+float64(i)*dx, b.Min[1])
		extend(b.Min[0]+float64(i)*dx, b.Max[1])
		// Left and right edges.
		extend(b.Min[0], b.Min[1]+float64(i)*dy)
		extend(b.Max[0], b.Min[1]+float64(i)*dy)
	}

	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}

// MercatorBound projects a geographic bounding box onto the web
// mercator plane. Corners suffice: mercator is monotonic in both axes.
func MercatorBound(geo orb.Bound) orb.Bound {
	minX, minY := WebMercator.FromWGS84(geo.Min[0], geo.Min[1])
	maxX, maxY := WebMercator.FromWGS84(geo.Max[0], geo.Max[1])
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}
