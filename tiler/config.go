package tiler

import "time"

// Config tunes the tiler. The zero value is usable: withDefaults fills
// in the CBERS conventions.
type Config struct {
	// ReferenceBand is the band whose raster defines the scene
	// footprint.
	ReferenceBand string

	// PreviewName is the file name of the low resolution preview asset
	// inside a scene's storage prefix.
	PreviewName string

	// DefaultBands is the RGB composite used when a tile request names
	// no bands.
	DefaultBands []string

	// MetadataBands is the band list statistics are computed for.
	MetadataBands []string

	// MetadataWorkers bounds concurrent band statistic reads per call.
	MetadataWorkers int

	// TileWorkers bounds concurrent band warp reads per call.
	TileWorkers int

	// TileSize is the output tile edge length in pixels.
	TileSize int

	// Densify is the number of interior points sampled per edge when
	// reprojecting scene bounds.
	Densify int

	// StatsMaxDim caps the decimated sampling grid used for
	// percentile statistics.
	StatsMaxDim int

	// CacheMaxSize / CacheItemsToPrune / CacheTTL size the three
	// result caches (bounds, metadata, tiles).
	CacheMaxSize      int64
	CacheItemsToPrune uint32
	CacheTTL          time.Duration

	// RasterCacheMaxSize / RasterCacheItemsToPrune size the decoded
	// source tile cache of each opened raster.
	RasterCacheMaxSize      int64
	RasterCacheItemsToPrune uint32
}

func (c *Config) withDefaults() {
	if c.ReferenceBand == "" {
		c.ReferenceBand = "5"
	}
	if c.PreviewName == "" {
		c.PreviewName = "preview.jp2"
	}
	if len(c.DefaultBands) == 0 {
		c.DefaultBands = []string{"5", "6", "7"}
	}
	if len(c.MetadataBands) == 0 {
		c.MetadataBands = []string{"5", "6", "7", "8"}
	}
	if c.MetadataWorkers <= 0 {
		c.MetadataWorkers = 2
	}
	if c.TileWorkers <= 0 {
		c.TileWorkers = 3
	}
	if c.TileSize <= 0 {
		c.TileSize = 256
	}
	if c.Densify <= 0 {
		c.Densify = 21
	}
	if c.StatsMaxDim <= 0 {
		c.StatsMaxDim = 256
	}
	if c.CacheMaxSize <= 0 {
		c.CacheMaxSize = 512
	}
	if c.CacheItemsToPrune == 0 {
		c.CacheItemsToPrune = 32
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = time.Hour
	}
	if c.RasterCacheMaxSize <= 0 {
		c.RasterCacheMaxSize = 256
	}
	if c.RasterCacheItemsToPrune == 0 {
		c.RasterCacheItemsToPrune = 16
	}
}

// DefaultPercentiles are the histogram cut points used when a metadata
// request names none.
const (
	DefaultPMin = 2.0
	DefaultPMax = 98.0
)
