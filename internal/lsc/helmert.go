package lsc

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/gridfiles/internal/controlpoint"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/monitoring"
)

const (
	// DefaultMaxIterations bounds the Gauss-Newton loop.
	DefaultMaxIterations = 10
	// DefaultTolerance is the per-component increment below which the
	// estimation has converged.
	DefaultTolerance = 1e-8
)

// Params is a 2-D similarity transform p = t + R*[x, y] with
// R = [[A, B], [-B, A]] and t = [Tx, Ty]. x is longitude scaled by the
// cosine of the mean latitude, y is latitude, both in degrees.
type Params struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	Ty float64 `json:"ty"`
}

// Identity is the transform that maps every point onto itself.
func Identity() Params { return Params{A: 1} }

// IsIdentity reports whether p equals Identity exactly.
func (p Params) IsIdentity() bool {
	return p.A == 1 && p.B == 0 && p.Tx == 0 && p.Ty == 0
}

// Apply transforms (x, y).
func (p Params) Apply(x, y float64) (float64, float64) {
	return p.Tx + p.A*x + p.B*y, p.Ty - p.B*x + p.A*y
}

// Scale is the uniform scale factor of the transform.
func (p Params) Scale() float64 { return math.Hypot(p.A, p.B) }

// Rotation is the rotation angle of the transform in radians.
func (p Params) Rotation() float64 { return math.Atan2(p.B, p.A) }

func (p Params) add(d *mat.VecDense) Params {
	return Params{
		A:  p.A + d.AtVec(0),
		B:  p.B + d.AtVec(1),
		Tx: p.Tx + d.AtVec(2),
		Ty: p.Ty + d.AtVec(3),
	}
}

// Residual is the fitted signal at one control point, in degrees.
type Residual struct {
	Name string  `json:"name"`
	DLon float64 `json:"dlon"`
	DLat float64 `json:"dlat"`
}

// Metres converts the residual to east/north metres at latitude lat.
func (r Residual) Metres(lat float64) (east, north float64) {
	const ro = math.Pi / 180
	north = r.DLat * ro * controlpoint.EarthRadius
	east = r.DLon * ro * controlpoint.EarthRadius * math.Cos(lat*ro)
	return east, north
}

// Solution is the outcome of a converged or capped estimation run. It is
// immutable once returned.
type Solution struct {
	Model      Model
	Params     Params
	Estimated  bool
	Iterations int
	Converged  bool
	MeanLat    float64
	// Signal holds the residual of the final fit, two rows per point.
	Signal    *mat.VecDense
	S0        float64
	Residuals []Residual

	points *controlpoint.Snapshot
}

// Points returns the snapshot the solution was estimated from.
func (s *Solution) Points() *controlpoint.Snapshot { return s.points }

// CosMeanLat is the longitude scale factor used by the design matrix.
func (s *Solution) CosMeanLat() float64 {
	return math.Cos(s.MeanLat * math.Pi / 180)
}

// Summary renders the estimation result and collocation parameters as
// text.
func (s *Solution) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Helmert: a=%.12g b=%.12g tx=%.12g ty=%.12g\n", s.Params.A, s.Params.B, s.Params.Tx, s.Params.Ty)
	fmt.Fprintf(&b, "Scale: %.12g Rotation: %.6g rad\n", s.Params.Scale(), s.Params.Rotation())
	fmt.Fprintf(&b, "Iterations: %d Converged: %t s0: %.6g\n", s.Iterations, s.Converged, s.S0)
	fmt.Fprintf(&b, "LSC: k=%g c=%g sn=%g points=%d mean_lat=%.6f", s.Model.K, s.Model.C, s.Model.Sn, len(s.Residuals), s.MeanLat)
	return b.String()
}

// Estimator fits a Helmert transform and collocation signal to a control
// point snapshot.
type Estimator struct {
	Model         Model
	MaxIterations int
	Tolerance     float64
}

// NewEstimator returns an estimator with the default iteration cap and
// tolerance.
func NewEstimator(m Model) *Estimator {
	return &Estimator{Model: m, MaxIterations: DefaultMaxIterations, Tolerance: DefaultTolerance}
}

// Estimate runs the iterative weighted least-squares fit. On failure no
// parameters are returned.
func (e *Estimator) Estimate(points *controlpoint.Snapshot) (*Solution, error) {
	if err := e.Model.Validate(); err != nil {
		return nil, err
	}
	if points == nil || points.Len() == 0 {
		return nil, fmt.Errorf("%w: no control points to estimate from", griderr.ErrNumerical)
	}
	maxIter := e.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	tol := e.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	meanLat := points.MeanSourceLat()
	cosLat := math.Cos(meanLat * math.Pi / 180)

	a := designMatrix(points, cosLat)
	w, err := e.Model.Weight(points)
	if err != nil {
		return nil, err
	}

	var atw mat.Dense
	atw.Mul(a.T(), w)
	var normal mat.Dense
	normal.Mul(&atw, a)

	params := Identity()
	delta := mat.NewVecDense(4, nil)
	iterations := 0
	converged := false
	for iterations < maxIter {
		l := observations(points, params, cosLat)

		var rhs mat.VecDense
		rhs.MulVec(&atw, l)

		delta = mat.NewVecDense(4, nil)
		if !isZero(&rhs) {
			var inv mat.Dense
			if err := inv.Inverse(&normal); err != nil {
				return nil, fmt.Errorf("%w: normal matrix is singular: %v", griderr.ErrNumerical, err)
			}
			delta.MulVec(&inv, &rhs)
		}
		if hasNaN(delta) {
			return nil, fmt.Errorf("%w: increment is not finite", griderr.ErrNumerical)
		}

		params = params.add(delta)
		iterations++

		if allBelow(delta, tol) {
			converged = true
			break
		}
	}
	if !converged {
		monitoring.Logf("[Estimator] stopped after %d iterations without convergence", iterations)
	}

	// Signal: residual of the final observations against the last increment.
	l := observations(points, params, cosLat)
	var ad mat.VecDense
	ad.MulVec(a, delta)
	signal := mat.NewVecDense(l.Len(), nil)
	signal.SubVec(l, &ad)

	sol := &Solution{
		Model:      e.Model,
		Params:     params,
		Estimated:  true,
		Iterations: iterations,
		Converged:  converged,
		MeanLat:    meanLat,
		Signal:     signal,
		S0:         unitWeightSD(signal, w, points.Len()),
		Residuals:  residuals(points, signal, cosLat),
		points:     points,
	}
	monitoring.Logf("[Estimator] %d points, %d iterations, converged=%t, s0=%.4g",
		points.Len(), iterations, converged, sol.S0)
	return sol, nil
}

// designMatrix builds A (2N x 4). Incomplete points keep zero rows.
func designMatrix(points *controlpoint.Snapshot, cosLat float64) *mat.Dense {
	n := points.Len()
	a := mat.NewDense(2*n, 4, nil)
	for i := 0; i < n; i++ {
		cp := points.At(i)
		if !cp.Complete() {
			continue
		}
		x := cp.Source.Lon * cosLat
		y := cp.Source.Lat
		a.SetRow(2*i, []float64{x, y, 1, 0})
		a.SetRow(2*i+1, []float64{y, -x, 0, 1})
	}
	return a
}

// observations builds L (2N) for the current parameters. Incomplete points
// contribute zero rows.
func observations(points *controlpoint.Snapshot, p Params, cosLat float64) *mat.VecDense {
	n := points.Len()
	l := mat.NewVecDense(2*n, nil)
	for i := 0; i < n; i++ {
		cp := points.At(i)
		if !cp.Complete() {
			continue
		}
		px, py := p.Apply(cp.Source.Lon*cosLat, cp.Source.Lat)
		l.SetVec(2*i, cp.Target.Lon*cosLat-px)
		l.SetVec(2*i+1, cp.Target.Lat-py)
	}
	return l
}

func residuals(points *controlpoint.Snapshot, signal *mat.VecDense, cosLat float64) []Residual {
	out := make([]Residual, points.Len())
	for i := range out {
		out[i] = Residual{
			Name: points.At(i).Name,
			DLon: signal.AtVec(2*i) / cosLat,
			DLat: signal.AtVec(2*i + 1),
		}
	}
	return out
}

// unitWeightSD is sqrt(v'Wv / r) with redundancy r = 2N - 4, floored at 1.
func unitWeightSD(v *mat.VecDense, w *mat.Dense, n int) float64 {
	var wv mat.VecDense
	wv.MulVec(w, v)
	vtwv := mat.Dot(v, &wv)
	r := 2*n - 4
	if r < 1 {
		r = 1
	}
	if vtwv < 0 {
		return 0
	}
	return math.Sqrt(vtwv / float64(r))
}

func isZero(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if v.AtVec(i) != 0 {
			return false
		}
	}
	return true
}

func allBelow(v *mat.VecDense, tol float64) bool {
	for i := 0; i < v.Len(); i++ {
		if math.Abs(v.AtVec(i)) >= tol {
			return false
		}
	}
	return true
}

func hasNaN(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if x := v.AtVec(i); math.IsNaN(x) || math.IsInf(x, 0) {
			return true
		}
	}
	return false
}
