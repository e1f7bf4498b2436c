package proj

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func closeTo(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

func TestForEPSG(t *testing.T) {
	testCases := []struct {
		code    int
		want    int
		wantErr bool
	}{
		{code: 4326, want: 4326},
		{code: 3857, want: 3857},
		{code: 900913, want: 3857},
		{code: 32622, want: 32622},
		{code: 32722, want: 32722},
		{code: 2056, wantErr: true},
		{code: 0, wantErr: true},
	}
	for _, tc := range testCases {
		p, err := ForEPSG(tc.code)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ForEPSG(%d) expected an error", tc.code)
			}
			continue
		}
		if err != nil {
			t.Errorf("ForEPSG(%d): %v", tc.code, err)
			continue
		}
		if p.EPSG() != tc.want {
			t.Errorf("ForEPSG(%d).EPSG() = %d, want %d", tc.code, p.EPSG(), tc.want)
		}
	}
}

func TestWebMercator(t *testing.T) {
	x, y := WebMercator.FromWGS84(180, 0)
	if !closeTo(x, 20037508.342789244, 1e-3) || !closeTo(y, 0, 1e-9) {
		t.Errorf("FromWGS84(180, 0) = (%f, %f)", x, y)
	}

	// Round trip over a grid of coordinates.
	for lon := -170.0; lon <= 170.0; lon += 55.0 {
		for lat := -80.0; lat <= 80.0; lat += 35.0 {
			x, y := WebMercator.FromWGS84(lon, lat)
			gotLon, gotLat := WebMercator.ToWGS84(x, y)
			if !closeTo(gotLon, lon, 1e-9) || !closeTo(gotLat, lat, 1e-9) {
				t.Errorf("round trip (%f, %f) -> (%f, %f)", lon, lat, gotLon, gotLat)
			}
		}
	}
}

func TestUTMKnownPoint(t *testing.T) {
	// CN Tower, UTM zone 17N. Reference easting/northing from the
	// usual published conversion.
	u := UTM{Zone: 17}
	e, n := u.FromWGS84(-79.387139, 43.642567)
	if !closeTo(e, 630084, 1.0) {
		t.Errorf("easting = %f, want ~630084", e)
	}
	if !closeTo(n, 4833439, 1.0) {
		t.Errorf("northing = %f, want ~4833439", n)
	}
}

func TestUTMCentralMeridian(t *testing.T) {
	// On the central meridian at the equator the projection collapses
	// to the false origin.
	u := UTM{Zone: 22, South: true}
	e, n := u.FromWGS84(-51.0, 0.0)
	if !closeTo(e, 500000, 1e-3) {
		t.Errorf("easting = %f, want 500000", e)
	}
	if !closeTo(n, 10000000, 1e-3) {
		t.Errorf("northing = %f, want 10000000", n)
	}
}

func TestUTMRoundTrip(t *testing.T) {
	// A CBERS-ish footprint in southern Brazil, zone 22S.
	u := UTM{Zone: 22, South: true}
	for lon := -54.0; lon <= -53.0; lon += 0.25 {
		for lat := -25.0; lat <= -24.0; lat += 0.25 {
			x, y := u.FromWGS84(lon, lat)
			gotLon, gotLat := u.ToWGS84(x, y)
			if !closeTo(gotLon, lon, 1e-7) || !closeTo(gotLat, lat, 1e-7) {
				t.Errorf("round trip (%f, %f) -> (%.9f, %.9f)", lon, lat, gotLon, gotLat)
			}
		}
	}
}

func TestTransformBounds(t *testing.T) {
	b := orb.Bound{Min: orb.Point{-54, -25}, Max: orb.Point{-53, -24}}

	t.Run("identity", func(t *testing.T) {
		got := TransformBounds(WGS84, WGS84, b, DefaultDensify)
		if got != b {
			t.Errorf("identity transform changed bounds: %v", got)
		}
	})

	t.Run("utm to wgs84 contains original box", func(t *testing.T) {
		u := UTM{Zone: 22, South: true}
		native := TransformBounds(WGS84, u, b, DefaultDensify)
		back := TransformBounds(u, WGS84, native, DefaultDensify)
		// The densified reprojection can only grow the box, never
		// clip it.
		if back.Min[0] > b.Min[0]+1e-6 || back.Min[1] > b.Min[1]+1e-6 ||
			back.Max[0] < b.Max[0]-1e-6 || back.Max[1] < b.Max[1]-1e-6 {
			t.Errorf("round tripped bounds %v do not cover %v", back, b)
		}
	})

	t.Run("wgs84 to mercator", func(t *testing.T) {
		got := TransformBounds(WGS84, WebMercator, b, 0)
		wantMinX, wantMinY := WebMercator.FromWGS84(-54, -25)
		if !closeTo(got.Min[0], wantMinX, 1e-6) || !closeTo(got.Min[1], wantMinY, 1e-6) {
			t.Errorf("mercator min = %v", got.Min)
		}
	})
}

func TestMercatorBound(t *testing.T) {
	geo := orb.Bound{Min: orb.Point{-54, -25}, Max: orb.Point{-53, -24}}
	m := MercatorBound(geo)
	if m.Min[0] >= m.Max[0] || m.Min[1] >= m.Max[1] {
		t.Fatalf("degenerate mercator bound %v", m)
	}
	via := TransformBounds(WGS84, WebMercator, geo, 0)
	if !closeTo(m.Min[0], via.Min[0], 1e-6) || !closeTo(m.Max[1], via.Max[1], 1e-6) {
		t.Errorf("MercatorBound %v differs from TransformBounds %v", m, via)
	}
}
