// Package proj provides the coordinate transforms needed to move
// raster bounds between the coordinate systems CBERS assets use:
// geographic WGS84 (EPSG:4326), web mercator (EPSG:3857) and the UTM
// zones (EPSG:326xx north, EPSG:327xx south) the full resolution bands
// are delivered in.
package proj

import (
	"fmt"
	"math"
)

// Projection converts between a projected coordinate system and
// geographic WGS84 longitude/latitude.
type Projection interface {
	EPSG() int
	ToWGS84(x, y float64) (lon, lat float64)
	FromWGS84(lon, lat float64) (x, y float64)
}

// WGS84 is the identity projection for EPSG:4326.
var WGS84 Projection = lonLat{}

// WebMercator is the EPSG:3857 spherical mercator projection.
var WebMercator Projection = webMercator{}

// ForEPSG returns the projection for a supported EPSG code.
func ForEPSG(code int) (Projection, error) {
	switch {
	case code == 4326:
		return WGS84, nil
	case code == 3857 || code == 900913:
		return WebMercator, nil
	case code >= 32601 && code <= 32660:
		return UTM{Zone: code - 32600, South: false}, nil
	case code >= 32701 && code <= 32760:
		return UTM{Zone: code - 32700, South: true}, nil
	}
	return nil, fmt.Errorf("unsupported EPSG code %d", code)
}

type lonLat struct{}

func (lonLat) EPSG() int                                     { return 4326 }
func (lonLat) ToWGS84(x, y float64) (float64, float64)       { return x, y }
func (lonLat) FromWGS84(lon, lat float64) (float64, float64) { return lon, lat }

const (
	earthRadius = 6378137.0
	// originShift is half the earth's equatorial circumference, the
	// extent of the web mercator plane in every direction.
	originShift = math.Pi * earthRadius
)

type webMercator struct{}

func (webMercator) EPSG() int { return 3857 }

func (webMercator) ToWGS84(x, y float64) (float64, float64) {
	lon := (x / originShift) * 180.0
	lat := (y / originShift) * 180.0
	lat = 180.0 / math.Pi * (2.0*math.Atan(math.Exp(lat*math.Pi/180.0)) - math.Pi/2.0)
	return lon, lat
}

func (webMercator) FromWGS84(lon, lat float64) (float64, float64) {
	x := lon * originShift / 180.0
	y := math.Log(math.Tan((90.0+lat)*math.Pi/360.0)) / (math.Pi / 180.0)
	y = y * originShift / 180.0
	return x, y
}
