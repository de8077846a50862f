package grid

import (
	"fmt"
	"math"

	"github.com/banshee-data/gridfiles/internal/griderr"
)

// NoData is the legacy sentinel for a cell that could not be computed.
// It only appears at serialization boundaries; inside the module a missing
// value is a Cell with Valid == false.
const NoData float32 = -88.8888

// Cell is an optional single-precision value.
type Cell struct {
	Value float32
	Valid bool
}

// Value returns a valid cell holding v.
func Value(v float32) Cell { return Cell{Value: v, Valid: true} }

// Missing is the invalid cell.
var Missing = Cell{}

// Band is a rows x cols raster of optional values in north-to-south row
// order: Cells[0] is the north-west node.
type Band struct {
	Rows  int
	Cols  int
	Cells []Cell
}

// NewBand allocates a band with every cell missing.
func NewBand(rows, cols int) *Band {
	return &Band{Rows: rows, Cols: cols, Cells: make([]Cell, rows*cols)}
}

// At returns the cell at band row/col.
func (b *Band) At(row, col int) Cell {
	return b.Cells[row*b.Cols+col]
}

// Set stores c at band row/col.
func (b *Band) Set(row, col int, c Cell) {
	b.Cells[row*b.Cols+col] = c
}

// Len is the number of cells.
func (b *Band) Len() int { return len(b.Cells) }

// ValidCount is the number of valid cells.
func (b *Band) ValidCount() int {
	n := 0
	for _, c := range b.Cells {
		if c.Valid {
			n++
		}
	}
	return n
}

// Float32s flattens the band, writing fill for every missing cell.
func (b *Band) Float32s(fill float32) []float32 {
	out := make([]float32, len(b.Cells))
	for i, c := range b.Cells {
		if c.Valid {
			out[i] = c.Value
		} else {
			out[i] = fill
		}
	}
	return out
}

// FromFloat32s builds a band from flat values. NaN and the NoData sentinel
// become missing cells.
func FromFloat32s(rows, cols int, values []float32) (*Band, error) {
	if len(values) != rows*cols {
		return nil, fmt.Errorf("%w: band of %dx%d needs %d values, got %d",
			griderr.ErrFormat, rows, cols, rows*cols, len(values))
	}
	b := NewBand(rows, cols)
	for i, v := range values {
		if IsNoData(v) {
			continue
		}
		b.Cells[i] = Value(v)
	}
	return b, nil
}

// IsNoData reports whether v encodes a missing value.
func IsNoData(v float32) bool {
	return v == NoData || math.IsNaN(float64(v))
}

// Negated returns a copy with every valid value sign-flipped.
func (b *Band) Negated() *Band {
	return b.Map(func(v float32) float32 { return -v })
}

// Map returns a copy with f applied to every valid value.
func (b *Band) Map(f func(float32) float32) *Band {
	out := NewBand(b.Rows, b.Cols)
	for i, c := range b.Cells {
		if c.Valid {
			out.Cells[i] = Value(f(c.Value))
		}
	}
	return out
}

// Stats returns the minimum and maximum valid value. ok is false when the
// band holds no valid cell.
func (b *Band) Stats() (lo, hi float32, ok bool) {
	for _, c := range b.Cells {
		if !c.Valid {
			continue
		}
		if !ok {
			lo, hi, ok = c.Value, c.Value, true
			continue
		}
		if c.Value < lo {
			lo = c.Value
		}
		if c.Value > hi {
			hi = c.Value
		}
	}
	return lo, hi, ok
}

// Grid is a geometry with its bands.
type Grid struct {
	Geometry Geometry
	Bands    []*Band
}

// Validate checks that every band matches the geometry.
func (g *Grid) Validate() error {
	if err := g.Geometry.Validate(); err != nil {
		return err
	}
	if len(g.Bands) == 0 {
		return fmt.Errorf("%w: grid has no bands", griderr.ErrConfiguration)
	}
	for i, b := range g.Bands {
		if b == nil || b.Rows != g.Geometry.Rows || b.Cols != g.Geometry.Cols || len(b.Cells) != b.Rows*b.Cols {
			return fmt.Errorf("%w: band %d does not match %dx%d geometry",
				griderr.ErrConfiguration, i, g.Geometry.Rows, g.Geometry.Cols)
		}
	}
	return nil
}
