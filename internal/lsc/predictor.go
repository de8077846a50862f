package lsc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/monitoring"
)

// ro converts degrees to radians.
const ro = math.Pi / 180

// Predictor evaluates a horizontal Solution at arbitrary locations.
type Predictor struct {
	sol    *Solution
	cosLat float64
	// alpha is (CovNN + D)^-1 * Signal, fixed for the solution.
	alpha *mat.VecDense
}

// NewPredictor prepares sol for prediction. The covariance matrices are
// rebuilt from the solution's own model and snapshot.
func NewPredictor(sol *Solution) (*Predictor, error) {
	if sol == nil || sol.points == nil || sol.Signal == nil {
		return nil, fmt.Errorf("%w: predictor needs an estimated solution", griderr.ErrConfiguration)
	}
	w, err := sol.Model.Weight(sol.points)
	if err != nil {
		return nil, err
	}
	alpha := mat.NewVecDense(sol.Signal.Len(), nil)
	alpha.MulVec(w, sol.Signal)
	return &Predictor{sol: sol, cosLat: sol.CosMeanLat(), alpha: alpha}, nil
}

// Predict returns the latitude and longitude offsets in degrees at
// (lat, lon). ok is false when the signal has no support at the location.
func (p *Predictor) Predict(lat, lon float64) (dLat, dLon float64, ok bool, err error) {
	var hx, hy float64
	if p.sol.Estimated || !p.sol.Params.IsIdentity() {
		hx, hy = p.sol.Params.Apply(lon*p.cosLat, lat)
	}

	mn, err := p.sol.Model.BuildMN(p.sol.points, lat, lon)
	if err != nil {
		return 0, 0, false, err
	}
	var signal mat.VecDense
	signal.MulVec(mn.T(), p.alpha)
	sx, sy := signal.AtVec(0), signal.AtVec(1)
	if sx == 0 && sy == 0 {
		return 0, 0, false, nil
	}

	lonPredicted := hx/p.cosLat + sx/p.cosLat
	latPredicted := hy + sy
	return latPredicted - lat, lonPredicted - lon, true, nil
}

// Populate predicts every node of g and returns the east and north offset
// bands in radians, east positive, north row first.
func (p *Predictor) Populate(g grid.Geometry) (east, north *grid.Band, err error) {
	if err := g.Validate(); err != nil {
		return nil, nil, err
	}
	east = grid.NewBand(g.Rows, g.Cols)
	north = grid.NewBand(g.Rows, g.Cols)
	progress := monitoring.NewProgress("hgrid", g.Len(), 10)

	out := 0
	for r := g.Rows - 1; r >= 0; r-- {
		lat := g.LatAt(r)
		for j := 0; j < g.Cols; j++ {
			dLat, dLon, ok, err := p.Predict(lat, g.LonAt(j))
			if err != nil {
				return nil, nil, err
			}
			if ok {
				east.Cells[out] = grid.Value(float32(ro * dLon))
				north.Cells[out] = grid.Value(float32(ro * dLat))
			}
			out++
		}
		progress.Add(g.Cols)
	}
	return east, north, nil
}
