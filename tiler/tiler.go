// Package tiler turns CBERS scenes into web mercator map tiles and
// per scene display metadata.
//
// The three operations share one shape: a cheap metadata read (open a
// reference raster, derive geographic bounds), an optional geometric
// check, then a bounded fan-out of expensive per band reads. Results
// are memoized in bounded LRU caches; concurrent requests for the same
// key share a single computation via singleflight.
package tiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/karlseguin/ccache/v3"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sattiles/cbers/geotiff"
	"github.com/sattiles/cbers/proj"
	"github.com/sattiles/cbers/scene"
)

// Opener resolves a storage key to a raster byte source. Implementations
// wrap object storage buckets, HTTP endpoints or local directories.
type Opener interface {
	Open(ctx context.Context, key string) (geotiff.Source, error)
}

// BandRange is a pair of linear stretch endpoints for one band.
type BandRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Metadata is a scene's geographic bounds plus per band stretch ranges.
type Metadata struct {
	SceneID string               `json:"sceneid"`
	Bounds  [4]float64           `json:"bounds"` // west, south, east, north
	Ranges  map[string]BandRange `json:"rgbMinMax"`
}

// TileImage is a stacked multi band pixel grid for one mercator tile.
// Grids[i] is the Size×Size row-major grid of Bands[i]; band order is
// exactly the order the caller requested.
type TileImage struct {
	Bands []string
	Size  int
	Grids [][]float64
}

// At returns the value of band b at pixel (x, y).
func (t *TileImage) At(b, x, y int) float64 {
	return t.Grids[b][y*t.Size+x]
}

// Tiler serves bounds, metadata and tiles for CBERS scenes.
type Tiler struct {
	cfg    Config
	opener Opener

	bounds *ccache.Cache[orb.Bound]
	meta   *ccache.Cache[*Metadata]
	tiles  *ccache.Cache[*TileImage]

	// flight collapses concurrent identical requests across all three
	// caches; keys are prefixed per operation.
	flight singleflight.Group
}

// New returns a Tiler reading scene assets through opener.
func New(opener Opener, cfg Config) *Tiler {
	cfg.withDefaults()
	return &Tiler{
		cfg:    cfg,
		opener: opener,
		bounds: ccache.New(ccache.Configure[orb.Bound]().
			MaxSize(cfg.CacheMaxSize).ItemsToPrune(cfg.CacheItemsToPrune)),
		meta: ccache.New(ccache.Configure[*Metadata]().
			MaxSize(cfg.CacheMaxSize).ItemsToPrune(cfg.CacheItemsToPrune)),
		tiles: ccache.New(ccache.Configure[*TileImage]().
			MaxSize(cfg.CacheMaxSize).ItemsToPrune(cfg.CacheItemsToPrune)),
	}
}

// Bounds returns the scene's bounding box in geographic (EPSG:4326)
// coordinates as (west, south, east, north).
//
// The box comes from the scene's reference band: its native CRS bounds
// are reprojected with a densified transform. The result is memoized;
// repeated calls for the same scene within the cache lifetime return
// the same value without touching storage.
func (t *Tiler) Bounds(ctx context.Context, sceneID string) ([4]float64, error) {
	s, err := scene.Parse(sceneID)
	if err != nil {
		return [4]float64{}, err
	}

	b, err := t.sceneBounds(ctx, s)
	if err != nil {
		return [4]float64{}, err
	}
	return [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}, nil
}

// sceneBounds resolves (and memoizes) the geographic footprint of a
// scene from its reference band.
func (t *Tiler) sceneBounds(ctx context.Context, s *scene.Scene) (orb.Bound, error) {
	key := "bounds|" + s.ID
	if item := t.bounds.Get(key); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	v, err, _ := t.flight.Do(key, func() (interface{}, error) {
		b, err := t.assetBounds(ctx, s.BandKey(t.cfg.ReferenceBand))
		if err != nil {
			return orb.Bound{}, err
		}
		t.bounds.Set(key, b, t.cfg.CacheTTL)
		return b, nil
	})
	if err != nil {
		return orb.Bound{}, err
	}
	return v.(orb.Bound), nil
}

// assetBounds opens one raster and returns its footprint in geographic
// coordinates, densifying the reprojection along each edge.
func (t *Tiler) assetBounds(ctx context.Context, key string) (orb.Bound, error) {
	g, err := t.openRaster(ctx, key)
	if err != nil {
		return orb.Bound{}, err
	}
	native, err := proj.ForEPSG(g.EPSG())
	if err != nil {
		return orb.Bound{}, fmt.Errorf("asset %s: %w", key, err)
	}
	return proj.TransformBounds(native, proj.WGS84, g.Bounds(), t.cfg.Densify), nil
}

// Metadata returns the scene's bounds plus percentile stretch ranges
// for the configured band list.
//
// Bounds come from the low resolution preview asset rather than the
// full resolution reference band, which keeps the call cheap. Band
// statistics are computed concurrently with at most
// Config.MetadataWorkers readers; the first failing band aborts the
// whole call. Duplicate entries in the band list are last-write-wins.
func (t *Tiler) Metadata(ctx context.Context, sceneID string, pmin, pmax float64) (*Metadata, error) {
	s, err := scene.Parse(sceneID)
	if err != nil {
		return nil, err
	}
	if pmin < 0 || pmax > 100 || pmin > pmax {
		return nil, fmt.Errorf("invalid percentile pair (%g, %g)", pmin, pmax)
	}

	key := fmt.Sprintf("meta|%s|%g|%g", s.ID, pmin, pmax)
	if item := t.meta.Get(key); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	v, err, _ := t.flight.Do(key, func() (interface{}, error) {
		m, err := t.computeMetadata(ctx, s, pmin, pmax)
		if err != nil {
			return nil, err
		}
		t.meta.Set(key, m, t.cfg.CacheTTL)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Metadata), nil
}

func (t *Tiler) computeMetadata(ctx context.Context, s *scene.Scene, pmin, pmax float64) (*Metadata, error) {
	bounds, err := t.assetBounds(ctx, s.PreviewKey(t.cfg.PreviewName))
	if err != nil {
		return nil, err
	}

	bands := t.cfg.MetadataBands
	ranges := make([]BandRange, len(bands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.MetadataWorkers)
	for i, band := range bands {
		i, band := i, band
		g.Go(func() error {
			raster, err := t.openRaster(gctx, s.BandKey(band))
			if err != nil {
				return err
			}
			samples, err := raster.ReadDecimated(t.cfg.StatsMaxDim)
			if err != nil {
				return fmt.Errorf("band %s: %w", band, err)
			}
			lo, hi, err := geotiff.Percentiles(samples, pmin, pmax)
			if err != nil {
				return fmt.Errorf("band %s: %w", band, err)
			}
			ranges[i] = BandRange{Min: lo, Max: hi}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m := &Metadata{
		SceneID: s.ID,
		Bounds:  [4]float64{bounds.Min[0], bounds.Min[1], bounds.Max[0], bounds.Max[1]},
		Ranges:  make(map[string]BandRange, len(bands)),
	}
	// Submission order, so a duplicated band id keeps the later result.
	for i, band := range bands {
		m.Ranges[band] = ranges[i]
	}
	return m, nil
}

// Tile produces the stacked pixel grids for one mercator tile of a
// scene. bands is the list of band ids to read, in output order; nil
// falls back to Config.DefaultBands. tilesize ≤ 0 falls back to
// Config.TileSize.
//
// The requested tile must intersect the scene footprint; a disjoint
// tile fails with ErrTileOutsideBounds so callers can distinguish "no
// tile here" from genuine failures. Bands are read concurrently with
// at most Config.TileWorkers readers; results are stacked in request
// order regardless of completion order.
func (t *Tiler) Tile(ctx context.Context, sceneID string, x, y uint32, z uint32, bands []string, tilesize int) (*TileImage, error) {
	s, err := scene.Parse(sceneID)
	if err != nil {
		return nil, err
	}
	if len(bands) == 0 {
		bands = t.cfg.DefaultBands
	}
	for _, b := range bands {
		if b == "" {
			return nil, fmt.Errorf("empty band id in band list %v", bands)
		}
	}
	if tilesize <= 0 {
		tilesize = t.cfg.TileSize
	}

	sceneBounds, err := t.sceneBounds(ctx, s)
	if err != nil {
		return nil, err
	}

	tile := maptile.New(x, y, maptile.Zoom(z))
	tileBounds := tile.Bound()
	if !tileBounds.Intersects(sceneBounds) {
		return nil, &OutsideBoundsError{SceneID: s.ID, X: x, Y: y, Z: z}
	}

	key := fmt.Sprintf("tile|%s|%d|%d|%d|%s|%d", s.ID, x, y, z, strings.Join(bands, ","), tilesize)
	if item := t.tiles.Get(key); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	v, err, _ := t.flight.Do(key, func() (interface{}, error) {
		img, err := t.computeTile(ctx, s, tileBounds, bands, tilesize)
		if err != nil {
			return nil, err
		}
		t.tiles.Set(key, img, t.cfg.CacheTTL)
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TileImage), nil
}

func (t *Tiler) computeTile(ctx context.Context, s *scene.Scene, tileBounds orb.Bound, bands []string, tilesize int) (*TileImage, error) {
	// The warp destination grid lives on the mercator plane.
	dst := proj.MercatorBound(tileBounds)

	grids := make([][]float64, len(bands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.TileWorkers)
	for i, band := range bands {
		i, band := i, band
		g.Go(func() error {
			raster, err := t.openRaster(gctx, s.BandKey(band))
			if err != nil {
				return err
			}
			native, err := proj.ForEPSG(raster.EPSG())
			if err != nil {
				return fmt.Errorf("band %s: %w", band, err)
			}
			grid, err := raster.ReadWarped(native, dst, tilesize)
			if err != nil {
				return fmt.Errorf("band %s: %w", band, err)
			}
			grids[i] = grid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &TileImage{Bands: bands, Size: tilesize, Grids: grids}, nil
}

// openRaster opens one scene asset through the configured Opener.
func (t *Tiler) openRaster(ctx context.Context, key string) (*geotiff.GeoTIFF, error) {
	src, err := t.opener.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset %s: %w", key, err)
	}
	g, err := geotiff.Open(src, t.cfg.RasterCacheMaxSize, t.cfg.RasterCacheItemsToPrune)
	if err != nil {
		return nil, fmt.Errorf("failed to parse asset %s: %w", key, err)
	}
	return g, nil
}
