// Package preview renders quick-look images of computed grids and
// estimation residuals.
package preview

import (
	"bytes"
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
)

// paletteSize is the number of colours in the heatmap ramp.
const paletteSize = 255

// bandGrid adapts a band to plotter.GridXYZ. Column c and row r follow the
// geometry, so r = 0 is the southernmost row.
type bandGrid struct {
	geom  grid.Geometry
	band  *grid.Band
	scale float64
}

func (g bandGrid) Dims() (c, r int) { return g.geom.Cols, g.geom.Rows }

func (g bandGrid) Z(c, r int) float64 {
	cell := g.band.At(g.geom.BandRow(r), c)
	if !cell.Valid {
		return math.NaN()
	}
	return float64(cell.Value) * g.scale
}

func (g bandGrid) X(c int) float64 { return g.geom.LonAt(c) }
func (g bandGrid) Y(r int) float64 { return g.geom.LatAt(r) }

// HeatmapOptions controls a band rendering.
type HeatmapOptions struct {
	Title string
	Unit  string
	// Scale multiplies every value before plotting, e.g. radians to
	// arc seconds.
	Scale  float64
	Width  vg.Length
	Height vg.Length
}

// Heatmap renders a band laid out on geom as a PNG with a diverging
// blue-red ramp. Missing cells are left blank.
func Heatmap(geom grid.Geometry, band *grid.Band, o HeatmapOptions) ([]byte, error) {
	if geom.Rows < 2 || geom.Cols < 2 {
		return nil, fmt.Errorf("%w: heatmap needs at least 2x2 nodes, got %dx%d",
			griderr.ErrConfiguration, geom.Rows, geom.Cols)
	}
	if band.Rows != geom.Rows || band.Cols != geom.Cols {
		return nil, fmt.Errorf("%w: band is %dx%d, geometry is %dx%d",
			griderr.ErrConfiguration, band.Rows, band.Cols, geom.Rows, geom.Cols)
	}
	if o.Scale == 0 {
		o.Scale = 1
	}
	if o.Width == 0 {
		o.Width = 8 * vg.Inch
	}
	if o.Height == 0 {
		o.Height = 8 * vg.Inch
	}

	lo, hi, ok := band.Stats()
	if !ok {
		return nil, fmt.Errorf("%w: band has no valid cells", griderr.ErrDomain)
	}
	zmin, zmax := float64(lo)*o.Scale, float64(hi)*o.Scale
	if zmin > zmax {
		zmin, zmax = zmax, zmin
	}
	if zmax-zmin < 1e-12 {
		zmax = zmin + 1
	}

	cmap := moreland.SmoothBlueRed()
	cmap.SetMax(zmax)
	cmap.SetMin(zmin)

	hm := plotter.NewHeatMap(bandGrid{geom: geom, band: band, scale: o.Scale}, cmap.Palette(paletteSize))
	hm.Min, hm.Max = zmin, zmax

	p := plot.New()
	p.Title.Text = o.Title
	if o.Unit != "" {
		p.Title.Text = fmt.Sprintf("%s (%s)", o.Title, o.Unit)
	}
	p.X.Label.Text = "Longitude (deg)"
	p.Y.Label.Text = "Latitude (deg)"
	p.Add(hm)

	wt, err := p.WriterTo(o.Width, o.Height, "png")
	if err != nil {
		return nil, fmt.Errorf("heatmap writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render heatmap: %w", err)
	}
	return buf.Bytes(), nil
}
