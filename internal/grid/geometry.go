// Package grid describes regular latitude/longitude grids and the bands of
// optional values computed on them.
package grid

import (
	"fmt"
	"math"

	"github.com/banshee-data/gridfiles/internal/griderr"
)

// Geometry is an immutable regular grid. Angles are in decimal degrees.
// Node (r, j) sits at LowerLeftLat + r*DeltaLat, LowerLeftLon + j*DeltaLon,
// so row 0 of the geometry is the southernmost row.
type Geometry struct {
	LowerLeftLat float64 `json:"lower_left_lat" yaml:"lower_left_lat"`
	LowerLeftLon float64 `json:"lower_left_lon" yaml:"lower_left_lon"`
	DeltaLat     float64 `json:"delta_lat" yaml:"delta_lat"`
	DeltaLon     float64 `json:"delta_lon" yaml:"delta_lon"`
	Rows         int     `json:"rows" yaml:"rows"`
	Cols         int     `json:"cols" yaml:"cols"`
}

// NewGeometry returns a validated geometry.
func NewGeometry(lowerLeftLat, lowerLeftLon, deltaLat, deltaLon float64, rows, cols int) (Geometry, error) {
	g := Geometry{
		LowerLeftLat: lowerLeftLat,
		LowerLeftLon: lowerLeftLon,
		DeltaLat:     deltaLat,
		DeltaLon:     deltaLon,
		Rows:         rows,
		Cols:         cols,
	}
	if err := g.Validate(); err != nil {
		return Geometry{}, err
	}
	return g, nil
}

// Validate checks that deltas are positive and counts are not negative.
func (g Geometry) Validate() error {
	if !(g.DeltaLat > 0) || math.IsInf(g.DeltaLat, 0) {
		return fmt.Errorf("%w: delta_lat must be > 0, got %v", griderr.ErrConfiguration, g.DeltaLat)
	}
	if !(g.DeltaLon > 0) || math.IsInf(g.DeltaLon, 0) {
		return fmt.Errorf("%w: delta_lon must be > 0, got %v", griderr.ErrConfiguration, g.DeltaLon)
	}
	if g.Rows < 0 || g.Cols < 0 {
		return fmt.Errorf("%w: rows and cols must be >= 0, got %dx%d", griderr.ErrConfiguration, g.Rows, g.Cols)
	}
	if math.IsNaN(g.LowerLeftLat) || math.IsNaN(g.LowerLeftLon) {
		return fmt.Errorf("%w: lower-left corner is NaN", griderr.ErrConfiguration)
	}
	return nil
}

// Len is the number of nodes.
func (g Geometry) Len() int { return g.Rows * g.Cols }

// UpperLat is the latitude of the northernmost row.
func (g Geometry) UpperLat() float64 {
	return g.LowerLeftLat + float64(g.Rows-1)*g.DeltaLat
}

// UpperRightLon is the longitude of the easternmost column.
func (g Geometry) UpperRightLon() float64 {
	return g.LowerLeftLon + float64(g.Cols-1)*g.DeltaLon
}

// LatAt is the latitude of geometry row r (0 = south).
func (g Geometry) LatAt(r int) float64 {
	return g.LowerLeftLat + float64(r)*g.DeltaLat
}

// LonAt is the longitude of column j (0 = west).
func (g Geometry) LonAt(j int) float64 {
	return g.LowerLeftLon + float64(j)*g.DeltaLon
}

// BandRow maps a geometry row (south = 0) to a band row (north = 0).
// The mapping is its own inverse.
func (g Geometry) BandRow(r int) int {
	return g.Rows - 1 - r
}

// Inside reports whether (lat, lon) lies strictly inside the grid extent.
func (g Geometry) Inside(lat, lon float64) bool {
	return lat > g.LowerLeftLat && lat < g.UpperLat() &&
		lon > g.LowerLeftLon && lon < g.UpperRightLon()
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d nodes from (%.6f, %.6f) step (%.6f, %.6f)",
		g.Rows, g.Cols, g.LowerLeftLat, g.LowerLeftLon, g.DeltaLat, g.DeltaLon)
}
