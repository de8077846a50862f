package raster

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
)

func rampBand(rows, cols int) *grid.Band {
	b := grid.NewBand(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			b.Set(r, c, grid.Value(float32(r*1000+c)))
		}
	}
	return b
}

func TestNewTiler_Validation(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, -16, 8, 24, 100, MaxTileSize + 16} {
		_, err := NewTiler(size, PadZero)
		assert.True(t, errors.Is(err, griderr.ErrConfiguration), "size %d", size)
	}
	for _, size := range []int{16, 32, 256, MaxTileSize} {
		_, err := NewTiler(size, PadZero)
		assert.NoError(t, err, "size %d", size)
	}
}

func TestParsePadding(t *testing.T) {
	t.Parallel()

	p, err := ParsePadding("")
	require.NoError(t, err)
	assert.Equal(t, PadZero, p)
	p, err = ParsePadding("NaN")
	require.NoError(t, err)
	assert.Equal(t, PadNaN, p)
	assert.Equal(t, "nan", p.String())
	_, err = ParsePadding("mirror")
	assert.Error(t, err)
}

func TestTiler_SplitLayout(t *testing.T) {
	t.Parallel()

	tiler, err := NewTiler(16, PadZero)
	require.NoError(t, err)

	b := rampBand(20, 40)
	b.Set(0, 1, grid.Missing)
	b.Set(0, 2, grid.Value(grid.NoData))

	tiles := tiler.Split(b)
	down, across := tiler.Dims(20, 40)
	assert.Equal(t, 2, down)
	assert.Equal(t, 3, across)
	require.Len(t, tiles, 6)
	for _, tile := range tiles {
		assert.Len(t, tile, 256)
	}

	// Row-major tile order: tile 4 covers rows 16..31, cols 16..31.
	assert.Equal(t, float32(17*1000+18), tiles[4][1*16+2])
	assert.True(t, math.IsNaN(float64(tiles[0][1])), "missing cell")
	assert.True(t, math.IsNaN(float64(tiles[0][2])), "sentinel cell")

	// Padding past row 19 and column 39 keeps the zero fill.
	assert.Equal(t, float32(0), tiles[5][5*16+0])
	assert.Equal(t, float32(0), tiles[2][0*16+10])
}

func TestTiler_NaNPadding(t *testing.T) {
	t.Parallel()

	tiler, err := NewTiler(16, PadNaN)
	require.NoError(t, err)

	tiles := tiler.Split(rampBand(17, 17))
	require.Len(t, tiles, 4)
	assert.True(t, math.IsNaN(float64(tiles[3][15*16+15])))
	assert.Equal(t, float32(16*1000+16), tiles[3][0])
}

func TestTiler_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		rows, cols int
	}{
		{"exact multiple", 32, 48},
		{"partial border", 21, 35},
		{"single cell", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tiler, err := NewTiler(16, PadZero)
			require.NoError(t, err)

			b := rampBand(tt.rows, tt.cols)
			b.Set(0, 0, grid.Missing)

			got, err := tiler.Merge(tt.rows, tt.cols, tiler.Split(b))
			require.NoError(t, err)
			assert.Equal(t, b.Cells, got.Cells)
		})
	}
}

func TestTiler_MergeRejectsWrongTileCount(t *testing.T) {
	t.Parallel()

	tiler, err := NewTiler(16, PadZero)
	require.NoError(t, err)

	_, err = tiler.Merge(20, 20, make([][]float32, 3))
	assert.True(t, errors.Is(err, griderr.ErrFormat))

	_, err = tiler.Merge(16, 16, [][]float32{make([]float32, 10)})
	assert.True(t, errors.Is(err, griderr.ErrFormat))
}
