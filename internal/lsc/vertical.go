package lsc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/gridfiles/internal/controlpoint"
	"github.com/banshee-data/gridfiles/internal/grid"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/monitoring"
)

// VerticalSolution models height differences (target minus source) as a
// weighted-mean trend plus a collocation signal.
type VerticalSolution struct {
	Model  Model
	Trend  float64
	Signal *mat.VecDense
	S0     float64

	points *controlpoint.Snapshot
	alpha  *mat.VecDense
}

// EstimateVertical fits the vertical model to the complete points of s.
func EstimateVertical(m Model, points *controlpoint.Snapshot) (*VerticalSolution, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if points == nil || points.Len() == 0 {
		return nil, fmt.Errorf("%w: no control points to estimate from", griderr.ErrNumerical)
	}
	if !points.Complete() {
		return nil, fmt.Errorf("%w: vertical estimation needs complete points", griderr.ErrConfiguration)
	}
	w, err := m.scalarWeight(points)
	if err != nil {
		return nil, err
	}

	n := points.Len()
	dh := mat.NewVecDense(n, nil)
	ones := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		cp := points.At(i)
		dh.SetVec(i, cp.Target.Height-cp.Source.Height)
		ones.SetVec(i, 1)
	}

	var wOnes mat.VecDense
	wOnes.MulVec(w, ones)
	den := mat.Dot(ones, &wOnes)
	if den == 0 || math.IsNaN(den) {
		return nil, fmt.Errorf("%w: vertical weight sum is zero", griderr.ErrNumerical)
	}
	trend := mat.Dot(dh, &wOnes) / den

	signal := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		signal.SetVec(i, dh.AtVec(i)-trend)
	}
	alpha := mat.NewVecDense(n, nil)
	alpha.MulVec(w, signal)

	var wv mat.VecDense
	wv.MulVec(w, signal)
	r := n - 1
	if r < 1 {
		r = 1
	}
	s0 := math.Sqrt(math.Max(0, mat.Dot(signal, &wv)) / float64(r))

	monitoring.Logf("[Estimator] vertical trend %.4f m over %d points, s0=%.4g", trend, n, s0)
	return &VerticalSolution{
		Model:  m,
		Trend:  trend,
		Signal: signal,
		S0:     s0,
		points: points,
		alpha:  alpha,
	}, nil
}

// Predict returns the height offset in metres at (lat, lon). ok is false
// when the signal has no support at the location.
func (v *VerticalSolution) Predict(lat, lon float64) (float64, bool) {
	sum := 0.0
	for i := 0; i < v.points.Len(); i++ {
		pos, _ := v.points.Anchor(i)
		sum += v.Model.Covariance(controlpoint.DistanceTo(pos, lat, lon)) * v.alpha.AtVec(i)
	}
	if sum == 0 {
		return 0, false
	}
	return v.Trend + sum, true
}

// Populate predicts every node of g into one band in metres, north row
// first.
func (v *VerticalSolution) Populate(g grid.Geometry) (*grid.Band, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	band := grid.NewBand(g.Rows, g.Cols)
	progress := monitoring.NewProgress("vgrid", g.Len(), 10)

	out := 0
	for r := g.Rows - 1; r >= 0; r-- {
		lat := g.LatAt(r)
		for j := 0; j < g.Cols; j++ {
			if h, ok := v.Predict(lat, g.LonAt(j)); ok {
				band.Cells[out] = grid.Value(float32(h))
			}
			out++
		}
		progress.Add(g.Cols)
	}
	return band, nil
}
