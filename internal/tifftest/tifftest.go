// Package tifftest builds small tiled GeoTIFFs in memory for tests, so
// the repository carries no binary fixtures.
package tifftest

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
)

// Opts describes the synthetic single band raster to build.
type Opts struct {
	Width, Height int
	TileW, TileH  int
	EPSG          int
	OriginX       float64 // upper left corner, native CRS
	OriginY       float64
	ScaleX        float64
	ScaleY        float64 // positive magnitude, stored north-up
	Deflate       bool
	NoData        string // GDALNoData ascii value, "" to omit
	Pixel         func(x, y int) uint8
}

// TIFF tag and type codes, spelled out so this package stays free of
// non-test dependencies.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagSamplesPerPixel = 277
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
	tagPixelScale      = 33550
	tagTiepoint        = 33922
	tagGeoKeyDirectory = 34735
	tagGDALNoData      = 42113

	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// Build writes a classic little-endian tiled GeoTIFF.
func Build(o Opts) []byte {
	tilesAcross := (o.Width + o.TileW - 1) / o.TileW
	tilesDown := (o.Height + o.TileH - 1) / o.TileH
	numTiles := tilesAcross * tilesDown

	tileBlobs := make([][]byte, numTiles)
	for ty := 0; ty < tilesDown; ty++ {
		for tx := 0; tx < tilesAcross; tx++ {
			raw := make([]byte, o.TileW*o.TileH)
			for y := 0; y < o.TileH; y++ {
				for x := 0; x < o.TileW; x++ {
					ix, iy := tx*o.TileW+x, ty*o.TileH+y
					if ix < o.Width && iy < o.Height {
						raw[y*o.TileW+x] = o.Pixel(ix, iy)
					}
				}
			}
			if o.Deflate {
				var zbuf bytes.Buffer
				zw := zlib.NewWriter(&zbuf)
				zw.Write(raw)
				zw.Close()
				raw = zbuf.Bytes()
			}
			tileBlobs[ty*tilesAcross+tx] = raw
		}
	}

	type entry struct {
		tag, ftype uint16
		count      uint32
		value      uint32
	}

	// Geographic rasters carry a GeographicType key, projected ones a
	// ProjectedCSType key.
	modelType, codeKey := uint16(1), uint16(3072)
	if o.EPSG == 4326 {
		modelType, codeKey = 2, 2048
	}
	geoKeys := []uint16{
		1, 1, 0, 3,
		1024, 0, 1, modelType,
		1025, 0, 1, 1,
		codeKey, 0, 1, uint16(o.EPSG),
	}

	compression := uint32(1)
	if o.Deflate {
		compression = 8
	}

	numEntries := 14
	if o.NoData != "" {
		numEntries++
	}

	le := binary.LittleEndian
	ifdStart := uint32(8)
	ifdSize := uint32(2 + numEntries*12 + 4)
	dataStart := ifdStart + ifdSize

	var data bytes.Buffer
	place := func(b []byte) uint32 {
		off := dataStart + uint32(data.Len())
		data.Write(b)
		return off
	}
	// valueFor stores payloads of up to 4 bytes inline in the value
	// field, as the classic TIFF layout requires; larger payloads go to
	// the data area and the field holds their offset.
	valueFor := func(payload []byte) uint32 {
		if len(payload) <= 4 {
			var inline [4]byte
			copy(inline[:], payload)
			return le.Uint32(inline[:])
		}
		return place(payload)
	}

	var scratch bytes.Buffer
	binary.Write(&scratch, le, []float64{o.ScaleX, o.ScaleY, 0})
	pixelScaleVal := valueFor(scratch.Bytes())

	scratch.Reset()
	binary.Write(&scratch, le, []float64{0, 0, 0, o.OriginX, o.OriginY, 0})
	tiepointVal := valueFor(scratch.Bytes())

	scratch.Reset()
	binary.Write(&scratch, le, geoKeys)
	geoKeysVal := valueFor(scratch.Bytes())

	var noDataVal uint32
	if o.NoData != "" {
		noDataVal = valueFor(append([]byte(o.NoData), 0))
	}

	// Tile data goes in first so the offset array can be written as
	// plain values, no patching.
	tileOffsets := make([]uint32, numTiles)
	for i, blob := range tileBlobs {
		tileOffsets[i] = place(blob)
	}
	scratch.Reset()
	binary.Write(&scratch, le, tileOffsets)
	tileOffsetsVal := valueFor(scratch.Bytes())

	scratch.Reset()
	for _, blob := range tileBlobs {
		binary.Write(&scratch, le, uint32(len(blob)))
	}
	tileCountsVal := valueFor(scratch.Bytes())

	entries := []entry{
		{tag: tagImageWidth, ftype: typeShort, count: 1, value: uint32(o.Width)},
		{tag: tagImageLength, ftype: typeShort, count: 1, value: uint32(o.Height)},
		{tag: tagBitsPerSample, ftype: typeShort, count: 1, value: 8},
		{tag: tagCompression, ftype: typeShort, count: 1, value: compression},
		{tag: tagPhotometric, ftype: typeShort, count: 1, value: 1},
		{tag: tagSamplesPerPixel, ftype: typeShort, count: 1, value: 1},
		{tag: tagTileWidth, ftype: typeShort, count: 1, value: uint32(o.TileW)},
		{tag: tagTileLength, ftype: typeShort, count: 1, value: uint32(o.TileH)},
		{tag: tagTileOffsets, ftype: typeLong, count: uint32(numTiles), value: tileOffsetsVal},
		{tag: tagTileByteCounts, ftype: typeLong, count: uint32(numTiles), value: tileCountsVal},
		{tag: tagSampleFormat, ftype: typeShort, count: 1, value: 1},
		{tag: tagPixelScale, ftype: typeDouble, count: 3, value: pixelScaleVal},
		{tag: tagTiepoint, ftype: typeDouble, count: 6, value: tiepointVal},
		{tag: tagGeoKeyDirectory, ftype: typeShort, count: uint32(len(geoKeys)), value: geoKeysVal},
	}
	if o.NoData != "" {
		entries = append(entries, entry{
			tag: tagGDALNoData, ftype: typeASCII, count: uint32(len(o.NoData) + 1), value: noDataVal,
		})
	}

	var out bytes.Buffer
	out.Write([]byte("II"))
	binary.Write(&out, le, uint16(42))
	binary.Write(&out, le, ifdStart)

	binary.Write(&out, le, uint16(len(entries)))
	for _, e := range entries {
		binary.Write(&out, le, e.tag)
		binary.Write(&out, le, e.ftype)
		binary.Write(&out, le, e.count)
		binary.Write(&out, le, e.value)
	}
	binary.Write(&out, le, uint32(0)) // no next IFD

	out.Write(data.Bytes())
	return out.Bytes()
}
