package geotiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// head carries what the fixed TIFF header tells us before any IFD is
// read.
type head struct {
	byteOrder binary.ByteOrder
	isBigTIFF bool
	ifdOffset uint64
}

// iFDEntry is one directory entry: a tag, its type, how many values it
// holds and where they live (inline or at an offset).
type iFDEntry struct {
	Tag         Tag
	FType       fieldType
	Count       uint64
	ValueOffset uint64
	ValueBytes  []byte
}

// tagData holds the decoded values of one tag in its native type.
type tagData struct {
	fType      fieldType
	length     uint32
	byteData   []uint8
	asciiData  string
	shortData  []uint16
	longData   []uint32
	floatData  []float32
	doubleData []float64
	uint64Data []uint64
}

// Tags maps tag ids to their decoded values.
type Tags map[Tag]tagData

// Tag is a TIFF tag identifier.
type Tag uint16

func (t Tag) String() string {
	if v, ok := tagToLabel[t]; ok {
		return v
	}
	return fmt.Sprintf("%d", t)
}

// fieldTypeLen is the byte length of every field type, indexed by the
// numeric type code.
var fieldTypeLen = [...]uint32{
	zeroByte, oneByte, oneByte, twoByte, // 0-3
	fourByte, eightByte, oneByte, oneByte, // 4-7
	twoByte, fourByte, eightByte, fourByte, // 8-11
	eightByte, // 12 (DOUBLE)
	0, 0, 0, // 13-15 (reserved)
	eightByte, eightByte, eightByte, // 16-18 (LONG8, SLONG8, IFD8)
}

func (f fieldType) bytes() uint32 {
	if f == 0 || int(f) >= len(fieldTypeLen) {
		return fieldTypeLen[0]
	}
	return fieldTypeLen[int(f)]
}

// readHeader determines byte order, TIFF vs BigTIFF, and the offset of
// the first IFD.
func readHeader(r io.Reader) (head, error) {
	var h head

	var order uint16
	if err := binary.Read(r, binary.BigEndian, &order); err != nil {
		return h, err
	}
	switch order {
	case littleEndian:
		h.byteOrder = binary.LittleEndian
	case bigEndian:
		h.byteOrder = binary.BigEndian
	default:
		return h, errors.New("invalid byte order")
	}

	var identifier uint16
	if err := binary.Read(r, h.byteOrder, &identifier); err != nil {
		return h, err
	}

	switch identifier {
	case tiffIdentifier:
		var offset32 uint32
		if err := binary.Read(r, h.byteOrder, &offset32); err != nil {
			return h, err
		}
		h.ifdOffset = uint64(offset32)
	case bigTiffIdentifier:
		h.isBigTIFF = true

		var bytesize, reserved uint16
		if err := binary.Read(r, h.byteOrder, &bytesize); err != nil {
			return h, err
		}
		if bytesize != bigTiffBytesize {
			return h, errors.New("invalid BigTIFF bytesize")
		}
		if err := binary.Read(r, h.byteOrder, &reserved); err != nil {
			return h, err
		}
		if err := binary.Read(r, h.byteOrder, &h.ifdOffset); err != nil {
			return h, err
		}
	default:
		return h, fmt.Errorf("invalid tiff identifier: %d", identifier)
	}
	return h, nil
}

// readTags parses the first IFD into a tag map. For a COG the first
// IFD is the full resolution image; subsequent IFDs are overviews and
// are deliberately not followed.
func readTags(r Source) (Tags, head, error) {
	tags := make(Tags)
	h, err := readHeader(r)
	if err != nil {
		return nil, h, err
	}

	if h.ifdOffset == 0 {
		return nil, h, errors.New("file contains no IFDs")
	}
	if _, err := r.Seek(int64(h.ifdOffset), io.SeekStart); err != nil {
		return nil, h, err
	}

	var numEntries uint64
	if h.isBigTIFF {
		if err := binary.Read(r, h.byteOrder, &numEntries); err != nil {
			return nil, h, err
		}
	} else {
		var numEntries16 uint16
		if err := binary.Read(r, h.byteOrder, &numEntries16); err != nil {
			return nil, h, err
		}
		numEntries = uint64(numEntries16)
	}

	entryLen := 12
	if h.isBigTIFF {
		entryLen = 20
	}
	ifdBlock := make([]byte, entryLen*int(numEntries))
	if _, err := io.ReadFull(r, ifdBlock); err != nil {
		return nil, h, fmt.Errorf("failed to read IFD block: %w", err)
	}
	ifdReader := bytes.NewReader(ifdBlock)

	for i := uint64(0); i < numEntries; i++ {
		var entry iFDEntry
		var tag, ftype uint16
		binary.Read(ifdReader, h.byteOrder, &tag)
		binary.Read(ifdReader, h.byteOrder, &ftype)
		entry.Tag = Tag(tag)
		entry.FType = fieldType(ftype)
		if entry.FType.bytes() == 0 {
			slog.Debug("skipping tag with unrecognized field type",
				"tag", entry.Tag.String(), "field_type", ftype)
			ifdReader.Seek(int64(entryLen-4), io.SeekCurrent)
			continue
		}

		offsetBytes := make([]byte, 8)
		if h.isBigTIFF {
			binary.Read(ifdReader, h.byteOrder, &entry.Count)
			ifdReader.Read(offsetBytes)
			entry.ValueOffset = h.byteOrder.Uint64(offsetBytes)
		} else {
			var count32, offset32 uint32
			binary.Read(ifdReader, h.byteOrder, &count32)
			binary.Read(ifdReader, h.byteOrder, &offset32)
			entry.Count = uint64(count32)
			entry.ValueOffset = uint64(offset32)
			// Small values are stored inline in the 4 offset bytes.
			h.byteOrder.PutUint32(offsetBytes, offset32)
		}

		inlineSize := uint64(4)
		if h.isBigTIFF {
			inlineSize = 8
		}
		if totalBytes := uint64(entry.FType.bytes()) * entry.Count; totalBytes <= inlineSize {
			entry.ValueBytes = offsetBytes[:totalBytes]
		}

		value, err := entry.value(r, h.byteOrder)
		if err != nil {
			return nil, h, fmt.Errorf("failed to decode tag %s: %w", entry.Tag, err)
		}
		tags[entry.Tag] = *value
	}

	return tags, h, nil
}

// value decodes an entry's data, following the offset when the value
// does not fit inline.
func (ifd *iFDEntry) value(r Source, byteOrder binary.ByteOrder) (*tagData, error) {
	t := tagData{fType: ifd.FType, length: uint32(ifd.Count)}
	var reader io.Reader
	if len(ifd.ValueBytes) > 0 {
		reader = bytes.NewReader(ifd.ValueBytes)
	} else {
		reader = io.NewSectionReader(r, int64(ifd.ValueOffset), int64(ifd.FType.bytes())*int64(ifd.Count))
	}
	switch ifd.FType {
	case BYTE, UNDEFINED:
		t.byteData = make([]uint8, ifd.Count)
		if err := binary.Read(reader, byteOrder, &t.byteData); err != nil {
			return nil, err
		}
	case ASCII:
		p := make([]uint8, ifd.Count)
		if err := binary.Read(reader, byteOrder, p); err != nil {
			return nil, err
		}
		t.asciiData = string(bytes.Trim(p, "\x00"))
	case SHORT:
		t.shortData = make([]uint16, ifd.Count)
		if err := binary.Read(reader, byteOrder, &t.shortData); err != nil {
			return nil, err
		}
	case LONG:
		t.longData = make([]uint32, ifd.Count)
		if err := binary.Read(reader, byteOrder, &t.longData); err != nil {
			return nil, err
		}
	case FLOAT:
		t.floatData = make([]float32, ifd.Count)
		if err := binary.Read(reader, byteOrder, &t.floatData); err != nil {
			return nil, err
		}
	case DOUBLE:
		t.doubleData = make([]float64, ifd.Count)
		if err := binary.Read(reader, byteOrder, &t.doubleData); err != nil {
			return nil, err
		}
	case LONG8, IFD8:
		t.uint64Data = make([]uint64, ifd.Count)
		if err := binary.Read(reader, byteOrder, &t.uint64Data); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported type for value reading: %d", ifd.FType)
	}
	return &t, nil
}

func (td tagData) doubleDataValue() ([]float64, bool) {
	if td.fType == DOUBLE {
		return td.doubleData, true
	}
	return nil, false
}
