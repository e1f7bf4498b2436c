package geotiff

import (
	"errors"
	"fmt"
)

// GeoKey ids from the GeoTIFF spec that matter for CRS detection.
const (
	gtModelTypeGeoKey     = 1024
	geographicTypeGeoKey  = 2048
	projectedCSTypeGeoKey = 3072
)

// GTModelType values.
const (
	modelTypeProjected  = 1
	modelTypeGeographic = 2
)

// parseGeoKeys walks the GeoKeyDirectory and returns the raster's EPSG
// code. The directory is an array of SHORTs: a four value header
// followed by {KeyID, TIFFTagLocation, Count, ValueOffset} entries;
// when TIFFTagLocation is zero the value is stored inline in
// ValueOffset.
func parseGeoKeys(tags Tags) (int, error) {
	dir, ok := tags[GeoKeyDirectory]
	if !ok {
		return 0, errors.New("missing tag: GeoKeyDirectory")
	}
	if dir.fType != SHORT || len(dir.shortData) < 4 {
		return 0, errors.New("invalid GeoKeyDirectory tag")
	}

	keys := dir.shortData
	numKeys := int(keys[3])
	if len(keys) < 4+numKeys*4 {
		return 0, errors.New("truncated GeoKeyDirectory")
	}

	var modelType, geographicCode, projectedCode uint16
	for i := 0; i < numKeys; i++ {
		entry := keys[4+i*4 : 4+i*4+4]
		keyID, location, value := entry[0], entry[1], entry[3]
		if location != 0 {
			// Value lives in another tag (doubles or ascii); none of
			// the CRS keys we care about are stored that way.
			continue
		}
		switch keyID {
		case gtModelTypeGeoKey:
			modelType = value
		case geographicTypeGeoKey:
			geographicCode = value
		case projectedCSTypeGeoKey:
			projectedCode = value
		}
	}

	switch {
	case projectedCode != 0 && projectedCode != 32767:
		return int(projectedCode), nil
	case geographicCode != 0 && geographicCode != 32767:
		return int(geographicCode), nil
	case modelType == modelTypeGeographic:
		// Geographic model without an explicit code; WGS84 is the only
		// sane default for satellite products.
		return 4326, nil
	}
	return 0, fmt.Errorf("no usable CRS geokey (model type %d)", modelType)
}
