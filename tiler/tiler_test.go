package tiler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/sattiles/cbers/internal/tifftest"
)

const testSceneID = "CBERS_4_MUX_20171121_057_094_L2"

// sceneRaster is the synthetic footprint shared by every asset of the
// test scene: a 1°×1° box in southern Brazil, constant pixel value.
func sceneRaster(value uint8) []byte {
	return tifftest.Build(tifftest.Opts{
		Width: 256, Height: 256,
		TileW: 128, TileH: 128,
		EPSG:    4326,
		OriginX: -54.0, OriginY: -24.0,
		ScaleX: 1.0 / 256.0, ScaleY: 1.0 / 256.0,
		Pixel: func(x, y int) uint8 { return value },
	})
}

// newTestBucket populates a bucket with the four band assets (constant
// values 50, 60, 70, 80) and the preview of the test scene.
func newTestBucket(t *testing.T) *blob.Bucket {
	t.Helper()
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })

	prefix := "CBERS4/MUX/057/094/" + testSceneID + "/"
	for _, band := range []string{"5", "6", "7", "8"} {
		value := uint8(50 + 10*(band[0]-'5'))
		key := fmt.Sprintf("%s%s_BAND%s.tif", prefix, testSceneID, band)
		if err := bucket.WriteAll(ctx, key, sceneRaster(value), nil); err != nil {
			t.Fatalf("WriteAll %s: %v", key, err)
		}
	}
	if err := bucket.WriteAll(ctx, prefix+"preview.jp2", sceneRaster(1), nil); err != nil {
		t.Fatalf("WriteAll preview: %v", err)
	}
	return bucket
}

func newTestTiler(t *testing.T) (*Tiler, *blob.Bucket) {
	t.Helper()
	bucket := newTestBucket(t)
	return New(&BlobOpener{Bucket: bucket}, Config{}), bucket
}

func wantSceneBounds(t *testing.T, got [4]float64) {
	t.Helper()
	want := [4]float64{-54, -25, -53, -24}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Fatalf("bounds = %v, want %v", got, want)
		}
	}
}

func TestBounds(t *testing.T) {
	tl, _ := newTestTiler(t)

	got, err := tl.Bounds(context.Background(), testSceneID)
	if err != nil {
		t.Fatalf("Bounds: %v", err)
	}
	wantSceneBounds(t, got)
}

func TestBoundsMemoized(t *testing.T) {
	ctx := context.Background()
	tl, bucket := newTestTiler(t)

	first, err := tl.Bounds(ctx, testSceneID)
	if err != nil {
		t.Fatalf("Bounds: %v", err)
	}

	// Remove the reference band; a second call must be served from cache.
	refKey := fmt.Sprintf("CBERS4/MUX/057/094/%s/%s_BAND5.tif", testSceneID, testSceneID)
	if err := bucket.Delete(ctx, refKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	second, err := tl.Bounds(ctx, testSceneID)
	if err != nil {
		t.Fatalf("Bounds after delete: %v", err)
	}
	if first != second {
		t.Errorf("memoized bounds differ: %v vs %v", first, second)
	}
}

func TestBoundsInvalidScene(t *testing.T) {
	tl, _ := newTestTiler(t)
	if _, err := tl.Bounds(context.Background(), "LANDSAT_8_whatever"); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestBoundsMissingAsset(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	tl := New(&BlobOpener{Bucket: bucket}, Config{})
	if _, err := tl.Bounds(context.Background(), testSceneID); err == nil {
		t.Fatal("expected an error for a missing reference band")
	}
}

func TestTileOutsideBounds(t *testing.T) {
	tl, _ := newTestTiler(t)

	_, err := tl.Tile(context.Background(), testSceneID, 0, 0, 10, nil, 0)
	if !errors.Is(err, ErrTileOutsideBounds) {
		t.Fatalf("got %v, want ErrTileOutsideBounds", err)
	}

	var obe *OutsideBoundsError
	if !errors.As(err, &obe) {
		t.Fatal("error does not expose OutsideBoundsError")
	}
	if obe.SceneID != testSceneID || obe.Z != 10 {
		t.Errorf("unexpected error detail: %+v", obe)
	}
}

func TestTile(t *testing.T) {
	tl, _ := newTestTiler(t)

	// z=10 tile (359, 583) sits fully inside the scene footprint.
	img, err := tl.Tile(context.Background(), testSceneID, 359, 583, 10, nil, 0)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}

	if img.Size != 256 {
		t.Errorf("tile size = %d, want 256", img.Size)
	}
	if len(img.Grids) != 3 {
		t.Fatalf("got %d grids, want 3", len(img.Grids))
	}

	// Default composite is bands 5, 6, 7 → constant 50, 60, 70.
	for i, want := range []float64{50, 60, 70} {
		if got := img.At(i, 128, 128); got != want {
			t.Errorf("band %s center pixel = %f, want %f", img.Bands[i], got, want)
		}
		if len(img.Grids[i]) != img.Size*img.Size {
			t.Errorf("band %s grid length = %d", img.Bands[i], len(img.Grids[i]))
		}
	}
}

func TestTileBandOrder(t *testing.T) {
	tl, _ := newTestTiler(t)
	ctx := context.Background()

	img, err := tl.Tile(ctx, testSceneID, 359, 583, 10, []string{"7", "6", "5"}, 64)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}
	for i, want := range []float64{70, 60, 50} {
		if got := img.At(i, 32, 32); got != want {
			t.Errorf("grid %d holds %f, want %f (order must follow the request)", i, got, want)
		}
	}

	// Same bands, opposite order: separate cache entry, swapped stack.
	img2, err := tl.Tile(ctx, testSceneID, 359, 583, 10, []string{"5", "6", "7"}, 64)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}
	if img2.At(0, 32, 32) != 50 || img2.At(2, 32, 32) != 70 {
		t.Error("band order not preserved for reversed request")
	}
}

func TestTileMemoized(t *testing.T) {
	ctx := context.Background()
	tl, bucket := newTestTiler(t)

	first, err := tl.Tile(ctx, testSceneID, 359, 583, 10, []string{"5"}, 64)
	if err != nil {
		t.Fatalf("Tile: %v", err)
	}

	// Drop every asset; an identical request must still be answerable.
	iter := bucket.List(nil)
	for {
		obj, err := iter.Next(ctx)
		if err != nil {
			break
		}
		bucket.Delete(ctx, obj.Key)
	}

	second, err := tl.Tile(ctx, testSceneID, 359, 583, 10, []string{"5"}, 64)
	if err != nil {
		t.Fatalf("Tile after delete: %v", err)
	}
	if first != second {
		t.Error("expected the cached *TileImage to be returned")
	}
}

func TestTileEmptyBandID(t *testing.T) {
	tl, _ := newTestTiler(t)
	_, err := tl.Tile(context.Background(), testSceneID, 359, 583, 10, []string{"5", ""}, 64)
	if err == nil {
		t.Fatal("expected an error for an empty band id")
	}
}

func TestTileMissingBand(t *testing.T) {
	tl, _ := newTestTiler(t)
	_, err := tl.Tile(context.Background(), testSceneID, 359, 583, 10, []string{"9"}, 64)
	if err == nil {
		t.Fatal("expected an error for a band with no asset")
	}
}

func TestMetadata(t *testing.T) {
	tl, _ := newTestTiler(t)

	m, err := tl.Metadata(context.Background(), testSceneID, DefaultPMin, DefaultPMax)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}

	if m.SceneID != testSceneID {
		t.Errorf("sceneid = %q", m.SceneID)
	}
	wantSceneBounds(t, m.Bounds)

	if len(m.Ranges) != 4 {
		t.Fatalf("got %d band ranges, want 4", len(m.Ranges))
	}
	for band, want := range map[string]float64{"5": 50, "6": 60, "7": 70, "8": 80} {
		r, ok := m.Ranges[band]
		if !ok {
			t.Errorf("band %s missing from ranges", band)
			continue
		}
		// Constant rasters collapse every percentile to the constant.
		if r.Min != want || r.Max != want {
			t.Errorf("band %s range = %+v, want {%f %f}", band, r, want, want)
		}
	}
}

func TestMetadataInvalidPercentiles(t *testing.T) {
	tl, _ := newTestTiler(t)
	ctx := context.Background()

	for _, tc := range []struct{ pmin, pmax float64 }{
		{-1, 98},
		{2, 101},
		{98, 2},
	} {
		if _, err := tl.Metadata(ctx, testSceneID, tc.pmin, tc.pmax); err == nil {
			t.Errorf("Metadata(%g, %g) expected an error", tc.pmin, tc.pmax)
		}
	}
}

func TestMetadataMissingPreview(t *testing.T) {
	ctx := context.Background()
	tl, bucket := newTestTiler(t)

	key := fmt.Sprintf("CBERS4/MUX/057/094/%s/preview.jp2", testSceneID)
	if err := bucket.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := tl.Metadata(ctx, testSceneID, DefaultPMin, DefaultPMax); err == nil {
		t.Fatal("expected an error for a missing preview asset")
	}
}

func TestUTMSceneBounds(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	// Same geographic area but georeferenced in UTM zone 22S metres.
	raster := tifftest.Build(tifftest.Opts{
		Width: 256, Height: 256,
		TileW: 128, TileH: 128,
		EPSG:    32722,
		OriginX: 190000, OriginY: 7340000,
		ScaleX: 400, ScaleY: 400,
		Pixel: func(x, y int) uint8 { return 9 },
	})
	key := fmt.Sprintf("CBERS4/MUX/057/094/%s/%s_BAND5.tif", testSceneID, testSceneID)
	if err := bucket.WriteAll(ctx, key, raster, nil); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	tl := New(&BlobOpener{Bucket: bucket}, Config{})
	got, err := tl.Bounds(ctx, testSceneID)
	if err != nil {
		t.Fatalf("Bounds: %v", err)
	}

	// Footprint must land in southern Brazil, west of the zone meridian.
	if got[0] < -58 || got[2] > -53 || got[1] < -25.5 || got[3] > -23 {
		t.Errorf("unexpected geographic bounds %v", got)
	}
	if got[0] >= got[2] || got[1] >= got[3] {
		t.Errorf("degenerate bounds %v", got)
	}
}
