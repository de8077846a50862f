// Package lsc implements least-squares collocation: a four-parameter
// Helmert trend estimated jointly with a spatially correlated signal, and
// the prediction of that model on regular grids.
package lsc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/gridfiles/internal/controlpoint"
	"github.com/banshee-data/gridfiles/internal/griderr"
)

// Model is the exponential covariance function
//
//	cov(d) = K * exp(-(pi/2) * d / C)
//
// with d and C in metres, plus white observation noise of standard
// deviation Sn.
type Model struct {
	K  float64 `json:"k"`
	C  float64 `json:"c"`
	Sn float64 `json:"sn"`
}

// Validate rejects parameters the covariance function cannot use. A zero
// length scale is both a configuration and a domain error.
func (m Model) Validate() error {
	if m.C == 0 {
		return fmt.Errorf("%w: %w: covariance length scale c is zero", griderr.ErrConfiguration, griderr.ErrDomain)
	}
	if math.IsNaN(m.K) || math.IsNaN(m.C) || math.IsNaN(m.Sn) {
		return fmt.Errorf("%w: covariance parameters must not be NaN", griderr.ErrConfiguration)
	}
	if m.K < 0 || m.C < 0 || m.Sn < 0 {
		return fmt.Errorf("%w: covariance parameters must be >= 0 (k=%v c=%v sn=%v)",
			griderr.ErrConfiguration, m.K, m.C, m.Sn)
	}
	return nil
}

// Covariance evaluates the covariance function at distance d.
func (m Model) Covariance(d float64) float64 {
	return m.K * math.Exp(-(math.Pi/2)*(d/m.C))
}

// BuildNN returns the 2N x 2N covariance matrix between the points of s.
// Each 2x2 block carries the same scalar on both diagonal entries and zero
// cross terms.
func (m Model) BuildNN(s *controlpoint.Snapshot) (*mat.SymDense, error) {
	scalar, err := m.buildScalar(s)
	if err != nil {
		return nil, err
	}
	n := s.Len()
	nn := mat.NewSymDense(2*n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := scalar.At(i, j)
			nn.SetSym(2*i, 2*j, v)
			nn.SetSym(2*i+1, 2*j+1, v)
		}
	}
	return nn, nil
}

// buildScalar returns the N x N matrix of point-to-point covariances.
func (m Model) buildScalar(s *controlpoint.Snapshot) (*mat.SymDense, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	n := s.Len()
	if n == 0 {
		return nil, fmt.Errorf("%w: no control points", griderr.ErrNumerical)
	}
	anchors := make([]controlpoint.Position, n)
	for i := range anchors {
		anchors[i], _ = s.Anchor(i)
	}
	scalar := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		scalar.SetSym(i, i, m.K)
		for j := i + 1; j < n; j++ {
			scalar.SetSym(i, j, m.Covariance(controlpoint.Distance(anchors[i], anchors[j])))
		}
	}
	return scalar, nil
}

// BuildMN returns the 2N x 2 covariance matrix between the points of s and
// a single query location.
func (m Model) BuildMN(s *controlpoint.Snapshot, lat, lon float64) (*mat.Dense, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	n := s.Len()
	if n == 0 {
		return nil, fmt.Errorf("%w: no control points", griderr.ErrNumerical)
	}
	mn := mat.NewDense(2*n, 2, nil)
	for i := 0; i < n; i++ {
		pos, _ := s.Anchor(i)
		v := m.Covariance(controlpoint.DistanceTo(pos, lat, lon))
		mn.Set(2*i, 0, v)
		mn.Set(2*i+1, 1, v)
	}
	return mn, nil
}

// Noise returns the size x size diagonal matrix of Sn^2.
func (m Model) Noise(size int) *mat.DiagDense {
	d := make([]float64, size)
	for i := range d {
		d[i] = m.Sn * m.Sn
	}
	return mat.NewDiagDense(size, d)
}

// Weight returns (CovNN + D)^-1 for the points of s.
func (m Model) Weight(s *controlpoint.Snapshot) (*mat.Dense, error) {
	nn, err := m.BuildNN(s)
	if err != nil {
		return nil, err
	}
	return invertWithNoise(nn, m.Noise(nn.SymmetricDim()))
}

// scalarWeight returns (C + D)^-1 for the one-component covariance used by
// the vertical model.
func (m Model) scalarWeight(s *controlpoint.Snapshot) (*mat.Dense, error) {
	scalar, err := m.buildScalar(s)
	if err != nil {
		return nil, err
	}
	return invertWithNoise(scalar, m.Noise(scalar.SymmetricDim()))
}

// invertWithNoise inverts cov + noise, using a Cholesky factorisation when
// the sum is positive definite and falling back to LU otherwise.
func invertWithNoise(cov *mat.SymDense, noise *mat.DiagDense) (*mat.Dense, error) {
	n := cov.SymmetricDim()
	sum := mat.NewSymDense(n, nil)
	sum.AddSym(cov, noise)

	var chol mat.Cholesky
	if chol.Factorize(sum) {
		var inv mat.SymDense
		if err := chol.InverseTo(&inv); err == nil {
			return mat.DenseCopyOf(&inv), nil
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(sum); err != nil {
		return nil, fmt.Errorf("%w: covariance matrix is singular: %v", griderr.ErrNumerical, err)
	}
	return &inv, nil
}
