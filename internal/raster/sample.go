package raster

import (
	"math"

	"github.com/banshee-data/gridfiles/internal/grid"
)

// SampleBilinear interpolates every band of g at (lat, lon). The point must
// lie strictly inside the grid extent; otherwise ok is false. A band whose
// contributing corners include a missing cell yields NaN.
func SampleBilinear(g *grid.Grid, lat, lon float64) (values []float64, ok bool) {
	geom := g.Geometry
	if geom.Rows < 2 || geom.Cols < 2 || !geom.Inside(lat, lon) {
		return nil, false
	}

	fy := (lat - geom.LowerLeftLat) / geom.DeltaLat
	fx := (lon - geom.LowerLeftLon) / geom.DeltaLon
	r0 := int(math.Floor(fy))
	c0 := int(math.Floor(fx))
	// Guard the last row/column against rounding at the open upper bound.
	if r0 > geom.Rows-2 {
		r0 = geom.Rows - 2
	}
	if c0 > geom.Cols-2 {
		c0 = geom.Cols - 2
	}
	fracLat := fy - float64(r0)
	fracLon := fx - float64(c0)

	// Geometry rows count from the south; bands store the north row first.
	same := geom.BandRow(r0)
	next := geom.BandRow(r0 + 1)

	corners := [4]struct {
		row, col int
		w        float64
	}{
		{same, c0, (1 - fracLon) * (1 - fracLat)},
		{same, c0 + 1, fracLon * (1 - fracLat)},
		{next, c0, (1 - fracLon) * fracLat},
		{next, c0 + 1, fracLon * fracLat},
	}

	values = make([]float64, len(g.Bands))
	for i, b := range g.Bands {
		sum := 0.0
		for _, c := range corners {
			if c.w == 0 {
				continue
			}
			cell := b.At(c.row, c.col)
			if !cell.Valid {
				sum = math.NaN()
				break
			}
			sum += c.w * float64(cell.Value)
		}
		values[i] = sum
	}
	return values, true
}
