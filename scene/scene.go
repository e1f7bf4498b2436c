// Package scene parses CBERS scene identifiers and derives the object
// storage layout of a scene's assets.
//
// A scene identifier looks like CBERS_4_MUX_20171121_057_094_L2 and
// encodes the mission, instrument, acquisition date, orbit path/row
// and processing level. All assets of a scene live under a single
// storage key derived from those fields; individual spectral bands are
// stored as separate single band GeoTIFF files next to a low
// resolution preview.
package scene

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var idPattern = regexp.MustCompile(
	`^CBERS_(\d)_([A-Z0-9]+)_(\d{4})(\d{2})(\d{2})_(\d{3})_(\d{3})_(L[0-9A-Z]+)$`)

// ParseError reports a scene identifier that does not follow the CBERS
// naming convention.
type ParseError struct {
	ID string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid CBERS scene id %q", e.ID)
}

// Scene holds the fields parsed out of a CBERS scene identifier plus
// the derived storage key. A Scene is immutable once parsed.
type Scene struct {
	ID              string
	Mission         string
	Instrument      string
	AcquisitionDate string // YYYY-MM-DD
	Path            int
	Row             int
	ProcessingLevel string

	// Key is the storage key prefix shared by every asset of the
	// scene, e.g. CBERS4/MUX/057/094/CBERS_4_MUX_20171121_057_094_L2.
	Key string
}

// Parse validates and decomposes a CBERS scene identifier. It performs
// no I/O; the same input always yields the same Scene.
func Parse(id string) (*Scene, error) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return nil, &ParseError{ID: id}
	}

	// The date must exist on the calendar, not just match the shape.
	if _, err := time.Parse("20060102", m[3]+m[4]+m[5]); err != nil {
		return nil, &ParseError{ID: id}
	}

	path, _ := strconv.Atoi(m[6])
	row, _ := strconv.Atoi(m[7])

	s := &Scene{
		ID:              id,
		Mission:         m[1],
		Instrument:      m[2],
		AcquisitionDate: m[3] + "-" + m[4] + "-" + m[5],
		Path:            path,
		Row:             row,
		ProcessingLevel: m[8],
	}
	s.Key = strings.Join([]string{"CBERS" + s.Mission, s.Instrument, m[6], m[7], id}, "/")
	return s, nil
}

// BandKey returns the storage key of one spectral band of the scene.
func (s *Scene) BandKey(band string) string {
	return fmt.Sprintf("%s/%s_BAND%s.tif", s.Key, s.ID, band)
}

// PreviewKey returns the storage key of the scene preview asset.
func (s *Scene) PreviewKey(name string) string {
	return s.Key + "/" + name
}
