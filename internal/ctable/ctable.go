// Package ctable reads and writes CTABLE V2 horizontal shift grids.
//
// Layout (little-endian):
//
//	0    16  format tag "CTABLE V2.0     "
//	16   80  description, NUL padded
//	96   8   lower-left longitude, radians
//	104  8   lower-left latitude, radians
//	112  8   longitude step, radians
//	120  8   latitude step, radians
//	128  4   column count
//	132  4   row count
//	136  24  reserved, zero
//	160      rows*cols (east, north) float32 pairs, north row first
//
// East values are positive west, the opposite of the offsets produced by
// the collocation engine.
package ctable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/gridfiles/internal/fsutil"
	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/units"
)

const (
	// Tag identifies the format.
	Tag = "CTABLE V2.0     "
	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 160
	// DescriptionSize is the width of the description field.
	DescriptionSize = 80
)

// File is a CTABLE V2 grid. East and North hold offsets in radians with
// east positive and the north row first, like the bands produced by
// lsc.Predictor.
type File struct {
	Description string
	Geometry    grid.Geometry
	East        *grid.Band
	North       *grid.Band
}

// Encode serializes f.
func Encode(f *File) ([]byte, error) {
	if err := f.Geometry.Validate(); err != nil {
		return nil, err
	}
	rows, cols := f.Geometry.Rows, f.Geometry.Cols
	for _, b := range []*grid.Band{f.East, f.North} {
		if b == nil || b.Rows != rows || b.Cols != cols {
			return nil, fmt.Errorf("%w: east/north bands must match the %dx%d geometry", griderr.ErrConfiguration, rows, cols)
		}
	}
	if rows > math.MaxInt32 || cols > math.MaxInt32 {
		return nil, fmt.Errorf("%w: grid too large", griderr.ErrConfiguration)
	}

	var buf bytes.Buffer
	buf.Grow(HeaderSize + 8*rows*cols)
	buf.WriteString(Tag)

	desc := make([]byte, DescriptionSize)
	copy(desc, f.Description)
	buf.Write(desc)

	le := binary.LittleEndian
	var head [64]byte
	le.PutUint64(head[0:], math.Float64bits(units.DegToRad(f.Geometry.LowerLeftLon)))
	le.PutUint64(head[8:], math.Float64bits(units.DegToRad(f.Geometry.LowerLeftLat)))
	le.PutUint64(head[16:], math.Float64bits(units.DegToRad(f.Geometry.DeltaLon)))
	le.PutUint64(head[24:], math.Float64bits(units.DegToRad(f.Geometry.DeltaLat)))
	le.PutUint32(head[32:], uint32(int32(cols)))
	le.PutUint32(head[36:], uint32(int32(rows)))
	// head[40:64] reserved.
	buf.Write(head[:])

	nan := float32(math.NaN())
	var rec [8]byte
	for i := range f.East.Cells {
		east, north := nan, nan
		if c := f.East.Cells[i]; c.Valid && !grid.IsNoData(c.Value) {
			east = -c.Value
		}
		if c := f.North.Cells[i]; c.Valid && !grid.IsNoData(c.Value) {
			north = c.Value
		}
		le.PutUint32(rec[0:], math.Float32bits(east))
		le.PutUint32(rec[4:], math.Float32bits(north))
		buf.Write(rec[:])
	}
	return buf.Bytes(), nil
}

// Decode parses a CTABLE V2 file. Files shorter than the header are
// malformed; a body shorter than rows*cols records is malformed too.
func Decode(data []byte) (*File, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: ctable file is %d bytes, header needs %d", griderr.ErrFormat, len(data), HeaderSize)
	}
	if tag := string(data[:len(Tag)]); tag != Tag {
		return nil, fmt.Errorf("%w: unexpected ctable tag %q", griderr.ErrFormat, tag)
	}
	desc := strings.TrimRight(string(data[16:16+DescriptionSize]), "\x00 ")

	le := binary.LittleEndian
	head := data[96:HeaderSize]
	lon := units.RadToDeg(math.Float64frombits(le.Uint64(head[0:])))
	lat := units.RadToDeg(math.Float64frombits(le.Uint64(head[8:])))
	dLon := units.RadToDeg(math.Float64frombits(le.Uint64(head[16:])))
	dLat := units.RadToDeg(math.Float64frombits(le.Uint64(head[24:])))
	cols := int(int32(le.Uint32(head[32:])))
	rows := int(int32(le.Uint32(head[36:])))

	geom, err := grid.NewGeometry(lat, lon, dLat, dLon, rows, cols)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ctable header: %v", griderr.ErrFormat, err)
	}
	body := data[HeaderSize:]
	// rows and cols fit in int32, so their product cannot overflow int64.
	if cells := int64(rows) * int64(cols); cells > int64(len(body)/8) {
		return nil, fmt.Errorf("%w: ctable body is %d bytes, want %d records", griderr.ErrFormat, len(body), cells)
	}

	east := grid.NewBand(rows, cols)
	north := grid.NewBand(rows, cols)
	for i := 0; i < rows*cols; i++ {
		e := math.Float32frombits(le.Uint32(body[8*i:]))
		n := math.Float32frombits(le.Uint32(body[8*i+4:]))
		if !grid.IsNoData(e) {
			east.Cells[i] = grid.Value(-e)
		}
		if !grid.IsNoData(n) {
			north.Cells[i] = grid.Value(n)
		}
	}
	return &File{Description: desc, Geometry: geom, East: east, North: north}, nil
}

// Read loads the ctable file at path.
func Read(fsys fsutil.FileSystem, path string) (*File, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", griderr.ErrIO, path, err)
	}
	f, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Write stores f at path.
func Write(fsys fsutil.FileSystem, path string, f *File) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	if err := fsys.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: write %s: %v", griderr.ErrIO, path, err)
	}
	return nil
}

// Grid returns the file as a two-band grid (east, north), for sampling.
func (f *File) Grid() *grid.Grid {
	return &grid.Grid{Geometry: f.Geometry, Bands: []*grid.Band{f.East, f.North}}
}
