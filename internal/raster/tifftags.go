package raster

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/banshee-data/gridfiles/internal/griderr"
)

// Tag is a TIFF tag id.
type Tag uint16

const (
	TagImageWidth       Tag = 256
	TagImageLength      Tag = 257
	TagBitsPerSample    Tag = 258
	TagCompression      Tag = 259
	TagPhotometric      Tag = 262
	TagFillOrder        Tag = 266
	TagDocumentName     Tag = 269
	TagImageDescription Tag = 270
	TagMake             Tag = 271
	TagSamplesPerPixel  Tag = 277
	TagPlanarConfig     Tag = 284
	TagSoftware         Tag = 305
	TagDateTime         Tag = 306
	TagArtist           Tag = 315
	TagPredictor        Tag = 317
	TagTileWidth        Tag = 322
	TagTileLength       Tag = 323
	TagTileOffsets      Tag = 324
	TagTileByteCounts   Tag = 325
	TagExtraSamples     Tag = 338
	TagSampleFormat     Tag = 339
	TagCopyright        Tag = 33432
	TagModelPixelScale  Tag = 33550
	TagModelTiepoint    Tag = 33922
	TagGeoKeyDirectory  Tag = 34735
	TagGDALMetadata     Tag = 42112
	TagGDALNoData       Tag = 42113
)

// Compression schemes.
const (
	CompressionNone         = 1
	CompressionDeflate      = 8
	CompressionAdobeDeflate = 32946
)

// Predictor schemes.
const (
	PredictorNone          = 1
	PredictorFloatingPoint = 3
)

const (
	photometricMinIsBlack  = 1
	planarContig           = 1
	planarSeparate         = 2
	sampleFormatIEEEFP     = 3
	fillOrderMSB2LSB       = 1
	extraSampleUnspecified = 0
)

type fieldType uint16

const (
	typeByte      fieldType = 1
	typeASCII     fieldType = 2
	typeShort     fieldType = 3
	typeLong      fieldType = 4
	typeRational  fieldType = 5
	typeSByte     fieldType = 6
	typeUndefined fieldType = 7
	typeSShort    fieldType = 8
	typeSLong     fieldType = 9
	typeSRational fieldType = 10
	typeFloat     fieldType = 11
	typeDouble    fieldType = 12
)

// size returns the byte width of one value, or 0 if unrecognized.
func (f fieldType) size() uint32 {
	switch f {
	case typeByte, typeASCII, typeSByte, typeUndefined:
		return 1
	case typeShort, typeSShort:
		return 2
	case typeLong, typeSLong, typeFloat:
		return 4
	case typeRational, typeSRational, typeDouble:
		return 8
	}
	return 0
}

// entry is one IFD entry with its value bytes already encoded.
type entry struct {
	tag   Tag
	typ   fieldType
	count uint32
	data  []byte
}

var le = binary.LittleEndian

func shortEntry(tag Tag, vals ...uint16) entry {
	data := make([]byte, 2*len(vals))
	for i, v := range vals {
		le.PutUint16(data[2*i:], v)
	}
	return entry{tag: tag, typ: typeShort, count: uint32(len(vals)), data: data}
}

func longEntry(tag Tag, vals ...uint32) entry {
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		le.PutUint32(data[4*i:], v)
	}
	return entry{tag: tag, typ: typeLong, count: uint32(len(vals)), data: data}
}

func doubleEntry(tag Tag, vals ...float64) entry {
	data := make([]byte, 8*len(vals))
	for i, v := range vals {
		le.PutUint64(data[8*i:], math.Float64bits(v))
	}
	return entry{tag: tag, typ: typeDouble, count: uint32(len(vals)), data: data}
}

func asciiEntry(tag Tag, s string) entry {
	data := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint32(len(data)), data: data}
}

// field is a parsed IFD entry.
type field struct {
	typ   fieldType
	count uint32
	data  []byte
}

func (f field) uints(order binary.ByteOrder) ([]uint32, error) {
	out := make([]uint32, f.count)
	for i := range out {
		switch f.typ {
		case typeByte, typeUndefined:
			out[i] = uint32(f.data[i])
		case typeShort:
			out[i] = uint32(order.Uint16(f.data[2*i:]))
		case typeLong:
			out[i] = order.Uint32(f.data[4*i:])
		default:
			return nil, fmt.Errorf("%w: field type %d is not an unsigned integer", griderr.ErrFormat, f.typ)
		}
	}
	return out, nil
}

func (f field) uint(order binary.ByteOrder) (uint32, error) {
	vals, err := f.uints(order)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("%w: empty field", griderr.ErrFormat)
	}
	return vals[0], nil
}

func (f field) shorts(order binary.ByteOrder) ([]uint16, error) {
	vals, err := f.uints(order)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, len(vals))
	for i, v := range vals {
		out[i] = uint16(v)
	}
	return out, nil
}

func (f field) doubles(order binary.ByteOrder) ([]float64, error) {
	if f.typ != typeDouble {
		return nil, fmt.Errorf("%w: field type %d is not DOUBLE", griderr.ErrFormat, f.typ)
	}
	out := make([]float64, f.count)
	for i := range out {
		out[i] = math.Float64frombits(order.Uint64(f.data[8*i:]))
	}
	return out, nil
}

func (f field) ascii() string {
	s := f.data
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return string(s)
}
