package geotiff

// TIFF header magic values.
const (
	littleEndian uint16 = 0x4949 // "II"
	bigEndian    uint16 = 0x4D4D // "MM"

	tiffIdentifier    uint16 = 42
	bigTiffIdentifier uint16 = 43
	bigTiffBytesize   uint16 = 8
)

// fieldType is the TIFF data type of an IFD entry.
type fieldType uint16

const (
	BYTE      fieldType = 1
	ASCII     fieldType = 2
	SHORT     fieldType = 3
	LONG      fieldType = 4
	RATIONAL  fieldType = 5
	SBYTE     fieldType = 6
	UNDEFINED fieldType = 7
	SSHORT    fieldType = 8
	SLONG     fieldType = 9
	SRATIONAL fieldType = 10
	FLOAT     fieldType = 11
	DOUBLE    fieldType = 12
	LONG8     fieldType = 16
	SLONG8    fieldType = 17
	IFD8      fieldType = 18
)

// Field type sizes in bytes.
const (
	zeroByte  uint32 = 0
	oneByte   uint32 = 1
	twoByte   uint32 = 2
	fourByte  uint32 = 4
	eightByte uint32 = 8
)

// Baseline and GeoTIFF tags used by the reader.
const (
	ImageWidth                Tag = 256
	ImageLength               Tag = 257
	BitsPerSample             Tag = 258
	Compression               Tag = 259
	PhotometricInterpretation Tag = 262
	SamplesPerPixel           Tag = 277
	Predictor                 Tag = 317
	TileWidth                 Tag = 322
	TileLength                Tag = 323
	TileOffsets               Tag = 324
	TileByteCounts            Tag = 325
	SampleFormat              Tag = 339
	ModelPixelScale           Tag = 33550
	ModelTiepoint             Tag = 33922
	GeoKeyDirectory           Tag = 34735
	GeoDoubleParams           Tag = 34736
	GeoASCIIParams            Tag = 34737
	GDALNoData                Tag = 42113
)

// Compression schemes.
const (
	Uncompressed uint16 = 1
	DEFLATE      uint16 = 8
	// deflateOld is the pre-TIFF-6 code some writers still emit.
	deflateOld uint16 = 32946
)

// Predictor values.
const (
	PredictorNone       uint16 = 1
	PredictorHorizontal uint16 = 2
)

// SampleFormat values.
const (
	SampleFormatUint  uint16 = 1
	SampleFormatInt   uint16 = 2
	SampleFormatFloat uint16 = 3
)

var tagToLabel = map[Tag]string{
	ImageWidth:                "ImageWidth",
	ImageLength:               "ImageLength",
	BitsPerSample:             "BitsPerSample",
	Compression:               "Compression",
	PhotometricInterpretation: "PhotometricInterpretation",
	SamplesPerPixel:           "SamplesPerPixel",
	Predictor:                 "Predictor",
	TileWidth:                 "TileWidth",
	TileLength:                "TileLength",
	TileOffsets:               "TileOffsets",
	TileByteCounts:            "TileByteCounts",
	SampleFormat:              "SampleFormat",
	ModelPixelScale:           "ModelPixelScale",
	ModelTiepoint:             "ModelTiepoint",
	GeoKeyDirectory:           "GeoKeyDirectory",
	GeoDoubleParams:           "GeoDoubleParams",
	GeoASCIIParams:            "GeoASCIIParams",
	GDALNoData:                "GDALNoData",
}
