// Package pca implements the linear preprocessing stage of DRR: optional
// centering and scaling followed by a rotation onto the principal axes.
package pca

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmptyData          = errors.New("pca: empty data")
	ErrDimensionMismatch  = errors.New("pca: dimension mismatch")
	ErrDecompositionFails = errors.New("pca: SVD factorization failed")
)

// Options selects which preprocessing steps run.
type Options struct {
	// Enabled turns the principal component rotation on. When false the
	// preprocessor is the identity and Center/Scale are ignored.
	Enabled bool
	Center  bool
	Scale   bool
}

// Result holds a fitted linear preprocessor.
type Result struct {
	// Center is subtracted from every row before rotation (zeros when
	// centering is off).
	Center []float64
	// Scale divides every centered row (ones when scaling is off).
	Scale []float64
	// Rotation has orthonormal columns, p x k with k = min(n, p) when the
	// rotation is enabled and p x p otherwise.
	Rotation *mat.Dense
	// Projected is the training data in the rotated basis, n x k.
	Projected *mat.Dense
	// SingularValues of the prepared training matrix, nil when disabled.
	SingularValues []float64
}

// Fit computes the preprocessor for x (rows are observations).
func Fit(x mat.Matrix, opts Options) (*Result, error) {
	n, p := x.Dims()
	if n == 0 || p == 0 {
		return nil, ErrEmptyData
	}

	if !opts.Enabled {
		return identity(x, p), nil
	}

	center := make([]float64, p)
	scale := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, x)
		if opts.Center {
			center[j] = stat.Mean(col, nil)
		}
		scale[j] = 1
		if opts.Scale {
			scale[j] = columnScale(col, center[j])
		}
	}

	prepared := mat.NewDense(n, p, nil)
	prepared.Apply(func(i, j int, v float64) float64 {
		return (v - center[j]) / scale[j]
	}, x)

	var svd mat.SVD
	if ok := svd.Factorize(prepared, mat.SVDThin); !ok {
		return nil, ErrDecompositionFails
	}

	var rotation mat.Dense
	svd.VTo(&rotation)
	orientColumns(&rotation)

	var projected mat.Dense
	projected.Mul(prepared, &rotation)

	return &Result{
		Center:         center,
		Scale:          scale,
		Rotation:       &rotation,
		Projected:      &projected,
		SingularValues: svd.Values(nil),
	}, nil
}

func identity(x mat.Matrix, p int) *Result {
	center := make([]float64, p)
	scale := make([]float64, p)
	for j := range scale {
		scale[j] = 1
	}
	rotation := mat.NewDense(p, p, nil)
	for j := 0; j < p; j++ {
		rotation.Set(j, j, 1)
	}
	return &Result{
		Center:    center,
		Scale:     scale,
		Rotation:  rotation,
		Projected: mat.DenseCopyOf(x),
	}
}

// columnScale is the sample standard deviation around center. With
// center = 0 this is the root mean square over n-1, matching the usual
// uncentered scaling convention.
func columnScale(col []float64, center float64) float64 {
	n := len(col)
	if n < 2 {
		return 1
	}
	var ss float64
	if center != 0 {
		ss = stat.Variance(col, nil) * float64(n-1)
	} else {
		for _, v := range col {
			ss += v * v
		}
	}
	s := math.Sqrt(ss / float64(n-1))
	if s == 0 || math.IsNaN(s) {
		return 1
	}
	return s
}

// orientColumns flips the sign of each column so that its entry with the
// largest magnitude is positive. SVD signs are otherwise arbitrary.
func orientColumns(m *mat.Dense) {
	r, c := m.Dims()
	for j := 0; j < c; j++ {
		best, sign := 0.0, 1.0
		for i := 0; i < r; i++ {
			if v := m.At(i, j); math.Abs(v) > best {
				best = math.Abs(v)
				sign = math.Copysign(1, v)
			}
		}
		if sign < 0 {
			for i := 0; i < r; i++ {
				m.Set(i, j, -m.At(i, j))
			}
		}
	}
}

// Dims returns the input dimensionality p and the rotated dimensionality k.
func (r *Result) Dims() (p, k int) {
	return r.Rotation.Dims()
}

// Transform maps raw rows into the rotated basis: (x - center) / scale * R.
func (r *Result) Transform(x mat.Matrix) (*mat.Dense, error) {
	p, _ := r.Dims()
	n, c := x.Dims()
	if c != p {
		return nil, fmt.Errorf("%w: expected %d columns, got %d", ErrDimensionMismatch, p, c)
	}
	prepared := mat.NewDense(n, p, nil)
	prepared.Apply(func(i, j int, v float64) float64 {
		return (v - r.Center[j]) / r.Scale[j]
	}, x)

	var out mat.Dense
	out.Mul(prepared, r.Rotation)
	return &out, nil
}

// Restore maps rotated rows back to the raw space: z * R^T * scale + center.
// z must have exactly k columns.
func (r *Result) Restore(z mat.Matrix) (*mat.Dense, error) {
	_, k := r.Dims()
	_, c := z.Dims()
	if c != k {
		return nil, fmt.Errorf("%w: expected %d columns, got %d", ErrDimensionMismatch, k, c)
	}
	var out mat.Dense
	out.Mul(z, r.Rotation.T())
	out.Apply(func(i, j int, v float64) float64 {
		return v*r.Scale[j] + r.Center[j]
	}, &out)
	return &out, nil
}

// ExplainedVariance returns the fraction of total variance carried by each
// rotated axis, or nil when the rotation is disabled.
func (r *Result) ExplainedVariance() []float64 {
	if r.SingularValues == nil {
		return nil
	}
	var total float64
	for _, s := range r.SingularValues {
		total += s * s
	}
	out := make([]float64, len(r.SingularValues))
	if total == 0 {
		return out
	}
	for i, s := range r.SingularValues {
		out[i] = s * s / total
	}
	return out
}
