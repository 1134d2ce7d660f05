// Package kernel provides the positive semi-definite kernel families used by
// kernel ridge regression. Family and parameter names follow the common
// kernlab naming (rbfdot, laplacedot, polydot, vanilladot).
package kernel

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrUnknownKernel    = errors.New("kernel: unknown kernel family")
	ErrUnknownParameter = errors.New("kernel: unknown kernel parameter")
	ErrInvalidParameter = errors.New("kernel: invalid kernel parameter")
)

const (
	RBF        = "rbfdot"
	Laplace    = "laplacedot"
	Polynomial = "polydot"
	Linear     = "vanilladot"
)

// Kernel evaluates k(a, b) for two equal-length vectors.
type Kernel interface {
	Eval(a, b []float64) float64
	Name() string
	Params() map[string]float64
}

// Gaussian is k(a, b) = exp(-sigma * ||a - b||^2).
type Gaussian struct {
	Sigma float64
}

func (k Gaussian) Eval(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return math.Exp(-k.Sigma * d * d)
}

func (k Gaussian) Name() string { return RBF }

func (k Gaussian) Params() map[string]float64 { return map[string]float64{"sigma": k.Sigma} }

// Laplacian is k(a, b) = exp(-sigma * ||a - b||).
type Laplacian struct {
	Sigma float64
}

func (k Laplacian) Eval(a, b []float64) float64 {
	return math.Exp(-k.Sigma * floats.Distance(a, b, 2))
}

func (k Laplacian) Name() string { return Laplace }

func (k Laplacian) Params() map[string]float64 { return map[string]float64{"sigma": k.Sigma} }

// Poly is k(a, b) = (scale * <a, b> + offset)^degree.
type Poly struct {
	Degree float64
	Scale  float64
	Offset float64
}

func (k Poly) Eval(a, b []float64) float64 {
	return math.Pow(k.Scale*floats.Dot(a, b)+k.Offset, k.Degree)
}

func (k Poly) Name() string { return Polynomial }

func (k Poly) Params() map[string]float64 {
	return map[string]float64{"degree": k.Degree, "scale": k.Scale, "offset": k.Offset}
}

// Dot is the linear kernel k(a, b) = <a, b>.
type Dot struct{}

func (Dot) Eval(a, b []float64) float64 { return floats.Dot(a, b) }

func (Dot) Name() string { return Linear }

func (Dot) Params() map[string]float64 { return map[string]float64{} }

type family struct {
	defaults map[string]float64
	build    func(p map[string]float64) (Kernel, error)
}

var families = map[string]family{
	RBF: {
		defaults: map[string]float64{"sigma": 1},
		build: func(p map[string]float64) (Kernel, error) {
			if p["sigma"] < 0 {
				return nil, fmt.Errorf("%w: sigma must be non-negative, got %v", ErrInvalidParameter, p["sigma"])
			}
			return Gaussian{Sigma: p["sigma"]}, nil
		},
	},
	Laplace: {
		defaults: map[string]float64{"sigma": 1},
		build: func(p map[string]float64) (Kernel, error) {
			if p["sigma"] < 0 {
				return nil, fmt.Errorf("%w: sigma must be non-negative, got %v", ErrInvalidParameter, p["sigma"])
			}
			return Laplacian{Sigma: p["sigma"]}, nil
		},
	},
	Polynomial: {
		defaults: map[string]float64{"degree": 1, "scale": 1, "offset": 1},
		build: func(p map[string]float64) (Kernel, error) {
			if p["degree"] < 1 || p["degree"] != math.Trunc(p["degree"]) {
				return nil, fmt.Errorf("%w: degree must be a positive integer, got %v", ErrInvalidParameter, p["degree"])
			}
			return Poly{Degree: p["degree"], Scale: p["scale"], Offset: p["offset"]}, nil
		},
	},
	Linear: {
		defaults: map[string]float64{},
		build: func(map[string]float64) (Kernel, error) {
			return Dot{}, nil
		},
	},
}

// New builds the named kernel. Parameters not given take the family default;
// parameters the family does not know are rejected.
func New(name string, params map[string]float64) (Kernel, error) {
	fam, ok := families[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
	}
	merged := make(map[string]float64, len(fam.defaults))
	for k, v := range fam.defaults {
		merged[k] = v
	}
	for k, v := range params {
		if _, known := fam.defaults[k]; !known {
			return nil, fmt.Errorf("%w: %q for %s", ErrUnknownParameter, k, name)
		}
		merged[k] = v
	}
	return fam.build(merged)
}

// ParamNames lists the parameters the named family accepts, sorted.
func ParamNames(name string) ([]string, error) {
	fam, ok := families[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
	}
	names := make([]string, 0, len(fam.defaults))
	for k := range fam.defaults {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}

// Matrix returns the Gram matrix K[i][j] = k(a_i, b_j) for the rows of a and b.
func Matrix(k Kernel, a, b mat.Matrix) *mat.Dense {
	ra, ca := a.Dims()
	rb, _ := b.Dims()
	out := mat.NewDense(ra, rb, nil)

	rowA := make([]float64, ca)
	rowsB := make([][]float64, rb)
	for j := 0; j < rb; j++ {
		rowsB[j] = mat.Row(nil, j, b)
	}
	for i := 0; i < ra; i++ {
		mat.Row(rowA, i, a)
		for j := 0; j < rb; j++ {
			out.Set(i, j, k.Eval(rowA, rowsB[j]))
		}
	}
	return out
}

// Symmetric returns the Gram matrix of a with itself, evaluating each pair once.
func Symmetric(k Kernel, a mat.Matrix) *mat.SymDense {
	n, _ := a.Dims()
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = mat.Row(nil, i, a)
	}
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, k.Eval(rows[i], rows[j]))
		}
	}
	return out
}
