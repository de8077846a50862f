package preview

import (
	"bytes"
	"errors"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/lsc"
)

func testBand(t *testing.T) (grid.Geometry, *grid.Band) {
	t.Helper()
	geom, err := grid.NewGeometry(58, 5, 0.5, 0.5, 3, 4)
	require.NoError(t, err)
	b := grid.NewBand(3, 4)
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			b.Set(r, c, grid.Value(float32(r*4+c)))
		}
	}
	b.Set(1, 1, grid.Missing)
	return geom, b
}

func TestBandGrid(t *testing.T) {
	geom, b := testBand(t)
	g := bandGrid{geom: geom, band: b, scale: 2}

	c, r := g.Dims()
	assert.Equal(t, 4, c)
	assert.Equal(t, 3, r)
	// geometry row 0 is the last band row
	assert.Equal(t, float64(8+3)*2, g.Z(3, 0))
	assert.Equal(t, 0.0, g.Z(0, 2))
	assert.True(t, math.IsNaN(g.Z(1, 1)))
	assert.Equal(t, 6.5, g.X(3))
	assert.Equal(t, 59.0, g.Y(2))
}

func TestHeatmap(t *testing.T) {
	geom, b := testBand(t)
	data, err := Heatmap(geom, b, HeatmapOptions{Title: "north offset", Unit: "mm"})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 100)
}

func TestHeatmap_Errors(t *testing.T) {
	geom, b := testBand(t)

	small, err := grid.NewGeometry(58, 5, 0.5, 0.5, 1, 4)
	require.NoError(t, err)
	_, err = Heatmap(small, grid.NewBand(1, 4), HeatmapOptions{})
	assert.True(t, errors.Is(err, griderr.ErrConfiguration))

	_, err = Heatmap(geom, grid.NewBand(2, 2), HeatmapOptions{})
	assert.True(t, errors.Is(err, griderr.ErrConfiguration))

	_, err = Heatmap(geom, grid.NewBand(3, 4), HeatmapOptions{})
	assert.True(t, errors.Is(err, griderr.ErrDomain))

	// A flat band still renders.
	flat := b.Map(func(float32) float32 { return 1 })
	_, err = Heatmap(geom, flat, HeatmapOptions{})
	assert.NoError(t, err)
}

func TestResiduals(t *testing.T) {
	res := []lsc.Residual{
		{Name: "P1", DLon: 1e-7, DLat: -2e-7},
		{Name: "P2", DLon: -3e-7, DLat: 0},
	}
	html, err := Residuals("NKG residuals", res, 60)
	require.NoError(t, err)
	s := string(html)
	assert.Contains(t, s, "NKG residuals")
	assert.Contains(t, s, "P1")
	assert.Contains(t, s, "north")

	_, err = Residuals("empty", nil, 0)
	assert.True(t, errors.Is(err, griderr.ErrDomain))
}
