// Package geotiff reads tiled (Cloud Optimized) GeoTIFF rasters from
// local files, HTTP range-capable servers or object storage buckets.
//
// The reader parses the first IFD only: for a COG that is the full
// resolution image, and single band satellite products such as CBERS
// store one band per file. Decoded source tiles are kept in a bounded
// LRU cache and fetched at most once per in-flight request via
// singleflight, so warp reads that revisit the same source tile do not
// hit storage again.
package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/karlseguin/ccache/v3"
	"github.com/paulmach/orb"
	"golang.org/x/sync/singleflight"
)

// Source is the byte level access a raster needs: sequential reads for
// the header walk and stateless positioned reads for tile data.
type Source interface {
	io.ReadSeeker
	io.ReaderAt
}

// tileCacheTTL bounds how long a decoded source tile stays cached.
const tileCacheTTL = 10 * time.Minute

// GeoTIFF is a parsed single band tiled GeoTIFF.
type GeoTIFF struct {
	source    Source
	byteOrder binary.ByteOrder
	tags      Tags
	isBigTIFF bool

	imageWidth  uint32
	imageLength uint32
	tileWidth   uint32
	tileLength  uint32

	tileOffsets    []uint64
	tileByteCounts []uint64

	bitsPerSample uint16
	sampleFormat  uint16
	compression   uint16
	predictor     uint16

	// Native CRS georeferencing: the model space coordinate of the
	// raster's upper left corner and the size of one pixel. scaleY is
	// negative for north-up images.
	originX float64
	originY float64
	scaleX  float64
	scaleY  float64

	epsg int

	noData    float64
	hasNoData bool

	// tileCache holds decoded, typed pixel slices ([]uint8, []uint16,
	// []int32 or []float32) keyed by tile index. Caching the decoded
	// form rather than raw bytes keeps warp reads off the decompressor.
	tileCache *ccache.Cache[any]

	// inflight collapses concurrent fetches of the same source tile
	// into one storage read.
	inflight singleflight.Group

	tilesAcross int
}

// Open parses a GeoTIFF from src. cacheSize and itemsToPrune size the
// decoded tile cache.
func Open(src Source, cacheSize int64, itemsToPrune uint32) (*GeoTIFF, error) {
	gTags, header, err := readTags(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read tiff tags: %w", err)
	}

	g := &GeoTIFF{
		source:    src,
		tags:      gTags,
		byteOrder: header.byteOrder,
		isBigTIFF: header.isBigTIFF,
		tileCache: ccache.New(ccache.Configure[any]().MaxSize(cacheSize).ItemsToPrune(itemsToPrune)),
	}

	if width, ok := g.getUint(ImageWidth); ok {
		g.imageWidth = uint32(width)
	} else {
		return nil, errors.New("missing or invalid tag: ImageWidth")
	}
	if length, ok := g.getUint(ImageLength); ok {
		g.imageLength = uint32(length)
	} else {
		return nil, errors.New("missing or invalid tag: ImageLength")
	}

	if tWidth, ok := g.getUint(TileWidth); ok {
		g.tileWidth = uint32(tWidth)
	} else {
		return nil, errors.New("missing or invalid tag: TileWidth (only tiled rasters are supported)")
	}
	if tLength, ok := g.getUint(TileLength); ok {
		g.tileLength = uint32(tLength)
	} else {
		return nil, errors.New("missing or invalid tag: TileLength")
	}
	g.tilesAcross = int(g.imageWidth+g.tileWidth-1) / int(g.tileWidth)

	if spp, ok := g.getUint(SamplesPerPixel); ok && spp != 1 {
		return nil, fmt.Errorf("unsupported SamplesPerPixel %d: only single band rasters are supported", spp)
	}

	if bps, ok := g.getUint(BitsPerSample); ok {
		g.bitsPerSample = uint16(bps)
	} else {
		g.bitsPerSample = 8
	}
	if sf, ok := g.getUint(SampleFormat); ok {
		g.sampleFormat = uint16(sf)
	} else {
		g.sampleFormat = SampleFormatUint
	}
	switch {
	case g.sampleFormat == SampleFormatUint && (g.bitsPerSample == 8 || g.bitsPerSample == 16):
	case g.sampleFormat == SampleFormatInt && g.bitsPerSample == 32:
	case g.sampleFormat == SampleFormatFloat && g.bitsPerSample == 32:
	default:
		return nil, fmt.Errorf("unsupported sample layout (SampleFormat: %d, BitsPerSample: %d)",
			g.sampleFormat, g.bitsPerSample)
	}

	if comp, ok := g.getUint(Compression); ok {
		g.compression = uint16(comp)
	} else {
		g.compression = Uncompressed
	}
	if pred, ok := g.getUint(Predictor); ok {
		g.predictor = uint16(pred)
	} else {
		g.predictor = PredictorNone
	}

	if offsets, ok := g.get64bitSlice(TileOffsets); ok {
		g.tileOffsets = offsets
	} else {
		return nil, errors.New("missing or invalid tag: TileOffsets")
	}
	if counts, ok := g.get64bitSlice(TileByteCounts); ok {
		g.tileByteCounts = counts
	} else {
		return nil, errors.New("missing or invalid tag: TileByteCounts")
	}

	if err := g.readGeoreferencing(); err != nil {
		return nil, err
	}

	g.epsg, err = parseGeoKeys(gTags)
	if err != nil {
		return nil, err
	}

	if nd, ok := gTags[GDALNoData]; ok && nd.asciiData != "" {
		if v, err := strconv.ParseFloat(trimSpaces(nd.asciiData), 64); err == nil {
			g.noData = v
			g.hasNoData = true
		}
	}

	return g, nil
}

// readGeoreferencing derives the model space origin and pixel scale
// from ModelPixelScale and ModelTiepoint.
func (g *GeoTIFF) readGeoreferencing() error {
	pixelScale, ok := g.tags[ModelPixelScale]
	if !ok {
		return errors.New("missing tag: ModelPixelScale")
	}
	scaleValues, ok := pixelScale.doubleDataValue()
	if !ok || len(scaleValues) < 2 {
		return errors.New("invalid ModelPixelScale tag")
	}
	g.scaleX = scaleValues[0]
	g.scaleY = scaleValues[1]
	// North-up convention: pixel rows advance toward smaller Y.
	if g.scaleY > 0 {
		g.scaleY = -g.scaleY
	}

	tiePoint, ok := g.tags[ModelTiepoint]
	if !ok {
		return errors.New("missing tag: ModelTiepoint")
	}
	tieValues, ok := tiePoint.doubleDataValue()
	if !ok || len(tieValues) < 6 {
		return errors.New("invalid ModelTiepoint tag")
	}
	tieI, tieJ := tieValues[0], tieValues[1]
	tieX, tieY := tieValues[3], tieValues[4]

	g.originX = tieX - tieI*g.scaleX
	g.originY = tieY - tieJ*g.scaleY
	return nil
}

// Width returns the raster width in pixels.
func (g *GeoTIFF) Width() int { return int(g.imageWidth) }

// Height returns the raster height in pixels.
func (g *GeoTIFF) Height() int { return int(g.imageLength) }

// EPSG returns the raster's native coordinate reference system code.
func (g *GeoTIFF) EPSG() int { return g.epsg }

// NoData returns the declared nodata value, if any.
func (g *GeoTIFF) NoData() (float64, bool) { return g.noData, g.hasNoData }

// Bounds returns the raster's bounding box in its native CRS.
func (g *GeoTIFF) Bounds() orb.Bound {
	maxY := g.originY
	minY := g.originY + float64(g.imageLength)*g.scaleY
	minX := g.originX
	maxX := g.originX + float64(g.imageWidth)*g.scaleX
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}

// pixelAt converts a native CRS coordinate into pixel indices. The
// returned indices may lie outside the raster; callers decide how to
// treat that.
func (g *GeoTIFF) pixelAt(x, y float64) (int, int) {
	px := int(math.Floor((x - g.originX) / g.scaleX))
	py := int(math.Floor((y - g.originY) / g.scaleY))
	return px, py
}

// errPixelOutside marks samples that fall off the raster; warp reads
// fill those with nodata instead of failing.
var errPixelOutside = errors.New("pixel lies outside image")

// sampleAt returns the pixel value at raster indices (x, y). The
// decoded tile holding the pixel is fetched through the cache.
func (g *GeoTIFF) sampleAt(x, y int) (float64, error) {
	if x < 0 || x >= int(g.imageWidth) || y < 0 || y >= int(g.imageLength) {
		return 0, errPixelOutside
	}

	tileX := x / int(g.tileWidth)
	tileY := y / int(g.tileLength)
	tileNum := g.tilesAcross*tileY + tileX

	tile, err := g.getTileData(tileNum)
	if err != nil {
		return 0, fmt.Errorf("failed to get data for tile %d: %w", tileNum, err)
	}

	idx := (y%int(g.tileLength))*int(g.tileWidth) + x%int(g.tileWidth)

	switch data := tile.(type) {
	case []uint8:
		if idx >= len(data) {
			return 0, fmt.Errorf("pixel index %d out of tile bounds (%d)", idx, len(data))
		}
		return float64(data[idx]), nil
	case []uint16:
		if idx >= len(data) {
			return 0, fmt.Errorf("pixel index %d out of tile bounds (%d)", idx, len(data))
		}
		return float64(data[idx]), nil
	case []int32:
		if idx >= len(data) {
			return 0, fmt.Errorf("pixel index %d out of tile bounds (%d)", idx, len(data))
		}
		return float64(data[idx]), nil
	case []float32:
		if idx >= len(data) {
			return 0, fmt.Errorf("pixel index %d out of tile bounds (%d)", idx, len(data))
		}
		return float64(data[idx]), nil
	default:
		return 0, fmt.Errorf("unexpected data type in cache: %T", tile)
	}
}

// getTileData returns the decoded pixel slice for a source tile,
// reading and decoding it at most once per cache lifetime.
func (g *GeoTIFF) getTileData(tileNum int) (any, error) {
	key := strconv.Itoa(tileNum)
	if item := g.tileCache.Get(key); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	v, err, _ := g.inflight.Do(key, func() (interface{}, error) {
		raw, err := g.fetchAndDecompressTile(tileNum)
		if err != nil {
			return nil, err
		}

		decoded, err := g.decodeTile(raw)
		if err != nil {
			return nil, err
		}

		g.tileCache.Set(key, decoded, tileCacheTTL)
		return decoded, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// decodeTile turns decompressed tile bytes into a typed pixel slice,
// undoing the horizontal predictor where one was applied.
func (g *GeoTIFF) decodeTile(raw []byte) (any, error) {
	switch {
	case g.sampleFormat == SampleFormatUint && g.bitsPerSample == 8:
		data := make([]uint8, len(raw))
		copy(data, raw)
		if g.predictor == PredictorHorizontal {
			undoHorizontalPredictor(data, g.tileWidth, g.tileLength)
		}
		return data, nil

	case g.sampleFormat == SampleFormatUint && g.bitsPerSample == 16:
		data := make([]uint16, len(raw)/2)
		if err := binary.Read(bytes.NewReader(raw), g.byteOrder, &data); err != nil {
			return nil, err
		}
		if g.predictor == PredictorHorizontal {
			undoHorizontalPredictor(data, g.tileWidth, g.tileLength)
		}
		return data, nil

	case g.sampleFormat == SampleFormatInt && g.bitsPerSample == 32:
		data := make([]int32, len(raw)/4)
		if err := binary.Read(bytes.NewReader(raw), g.byteOrder, &data); err != nil {
			return nil, err
		}
		if g.predictor == PredictorHorizontal {
			undoHorizontalPredictor(data, g.tileWidth, g.tileLength)
		}
		return data, nil

	case g.sampleFormat == SampleFormatFloat && g.bitsPerSample == 32:
		data := make([]float32, len(raw)/4)
		if err := binary.Read(bytes.NewReader(raw), g.byteOrder, &data); err != nil {
			return nil, err
		}
		return data, nil
	}
	return nil, fmt.Errorf("unsupported sample layout (SampleFormat: %d, BitsPerSample: %d)",
		g.sampleFormat, g.bitsPerSample)
}

// fetchAndDecompressTile reads one tile's bytes from the source and
// decompresses them.
func (g *GeoTIFF) fetchAndDecompressTile(tileNum int) ([]byte, error) {
	if uint64(tileNum) >= uint64(len(g.tileOffsets)) {
		return nil, fmt.Errorf("tile index %d out of bounds", tileNum)
	}

	offset := g.tileOffsets[tileNum]
	byteCount := g.tileByteCounts[tileNum]
	tileBytes := make([]byte, byteCount)

	if _, err := g.source.ReadAt(tileBytes, int64(offset)); err != nil {
		return nil, fmt.Errorf("failed to read tile %d from source: %w", tileNum, err)
	}

	switch g.compression {
	case Uncompressed:
		return tileBytes, nil
	case DEFLATE, deflateOld:
		z, err := zlib.NewReader(bytes.NewReader(tileBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to create zlib reader for tile: %w", err)
		}
		defer z.Close()
		decompressed, err := io.ReadAll(z)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress tile data: %w", err)
		}
		return decompressed, nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %d", g.compression)
	}
}

func (g *GeoTIFF) getUint(tag Tag) (uint64, bool) {
	t, ok := g.tags[tag]
	if !ok {
		return 0, false
	}
	if t.fType == SHORT && len(t.shortData) > 0 {
		return uint64(t.shortData[0]), true
	}
	if t.fType == LONG && len(t.longData) > 0 {
		return uint64(t.longData[0]), true
	}
	return 0, false
}

func (g *GeoTIFF) get64bitSlice(tag Tag) ([]uint64, bool) {
	t, ok := g.tags[tag]
	if !ok {
		return nil, false
	}
	if t.fType == LONG8 || t.fType == IFD8 {
		return t.uint64Data, true
	}
	if t.fType == LONG {
		res := make([]uint64, len(t.longData))
		for i, v := range t.longData {
			res[i] = uint64(v)
		}
		return res, true
	}
	return nil, false
}

// undoHorizontalPredictor reverses horizontal differencing in place,
// row by row.
func undoHorizontalPredictor[T uint8 | uint16 | int32](data []T, tileWidth, tileHeight uint32) {
	if tileWidth == 0 || tileHeight == 0 {
		return
	}
	for y := 0; y < int(tileHeight); y++ {
		rowStart := y * int(tileWidth)
		if rowStart+int(tileWidth) > len(data) {
			break
		}
		for x := 1; x < int(tileWidth); x++ {
			data[rowStart+x] += data[rowStart+x-1]
		}
	}
}

func trimSpaces(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}
