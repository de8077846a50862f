// Package raster maps grid bands onto fixed-size square tiles, samples
// them bilinearly and stores them in tiled GeoTIFF files.
package raster

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
)

// Padding selects the fill of tile cells outside the grid extent.
type Padding int

const (
	// PadZero leaves border padding at 0, the legacy behaviour.
	PadZero Padding = iota
	// PadNaN fills border padding with NaN so readers see it as no-data.
	PadNaN
)

// ParsePadding accepts "zero" or "nan"; the empty string means PadZero.
func ParsePadding(s string) (Padding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zero":
		return PadZero, nil
	case "nan":
		return PadNaN, nil
	}
	return 0, fmt.Errorf("%w: unknown tile padding %q", griderr.ErrConfiguration, s)
}

func (p Padding) String() string {
	if p == PadNaN {
		return "nan"
	}
	return "zero"
}

func (p Padding) fill() float32 {
	if p == PadNaN {
		return float32(math.NaN())
	}
	return 0
}

// Tiler partitions bands into Size x Size tiles.
type Tiler struct {
	Size    int
	Padding Padding
}

// MaxTileSize bounds the tile edge accepted by writers and readers.
const MaxTileSize = 4096

// validTileSize reports whether size is a positive multiple of 16 no larger
// than MaxTileSize.
func validTileSize(size int) bool {
	return size > 0 && size%16 == 0 && size <= MaxTileSize
}

// NewTiler validates the tile edge: it must be a positive multiple of 16
// and at most MaxTileSize.
func NewTiler(size int, padding Padding) (*Tiler, error) {
	if !validTileSize(size) {
		return nil, fmt.Errorf("%w: tile size must be a positive multiple of 16 up to %d, got %d", griderr.ErrConfiguration, MaxTileSize, size)
	}
	return &Tiler{Size: size, Padding: padding}, nil
}

// Dims returns the number of tile rows and tile columns covering a
// rows x cols raster.
func (t *Tiler) Dims(rows, cols int) (tilesDown, tilesAcross int) {
	return ceilDiv(rows, t.Size), ceilDiv(cols, t.Size)
}

// TileLen is the number of cells in one tile.
func (t *Tiler) TileLen() int { return t.Size * t.Size }

// Split cuts b into tiles in row-major tile order. Every tile has
// TileLen cells; missing and sentinel values become NaN.
func (t *Tiler) Split(b *grid.Band) [][]float32 {
	down, across := t.Dims(b.Rows, b.Cols)
	tiles := make([][]float32, down*across)
	fill := t.Padding.fill()
	nan := float32(math.NaN())

	for i := range tiles {
		tile := make([]float32, t.TileLen())
		if t.Padding == PadNaN {
			for k := range tile {
				tile[k] = fill
			}
		}
		tiles[i] = tile
	}

	for row := 0; row < b.Rows; row++ {
		tileRow, inRow := row/t.Size, row%t.Size
		for col := 0; col < b.Cols; col++ {
			tileCol, inCol := col/t.Size, col%t.Size
			c := b.At(row, col)
			v := c.Value
			if !c.Valid || grid.IsNoData(v) {
				v = nan
			}
			tiles[tileRow*across+tileCol][inRow*t.Size+inCol] = v
		}
	}
	return tiles
}

// Merge reassembles a rows x cols band from tiles in row-major tile order,
// ignoring the padding region. NaN cells become missing.
func (t *Tiler) Merge(rows, cols int, tiles [][]float32) (*grid.Band, error) {
	down, across := t.Dims(rows, cols)
	if len(tiles) != down*across {
		return nil, fmt.Errorf("%w: expected %d tiles, got %d", griderr.ErrFormat, down*across, len(tiles))
	}
	for i, tile := range tiles {
		if len(tile) != t.TileLen() {
			return nil, fmt.Errorf("%w: tile %d has %d cells, want %d", griderr.ErrFormat, i, len(tile), t.TileLen())
		}
	}

	b := grid.NewBand(rows, cols)
	for row := 0; row < rows; row++ {
		tileRow, inRow := row/t.Size, row%t.Size
		for col := 0; col < cols; col++ {
			tileCol, inCol := col/t.Size, col%t.Size
			v := tiles[tileRow*across+tileCol][inRow*t.Size+inCol]
			if !grid.IsNoData(v) {
				b.Set(row, col, grid.Value(v))
			}
		}
	}
	return b, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
