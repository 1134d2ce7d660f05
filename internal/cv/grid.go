package cv

import (
	"errors"
	"fmt"

	"github.com/knirvcorp/drr/internal/krr"
)

var ErrInvalidGrid = errors.New("cv: invalid parameter grid")

// KernelParam is one kernel hyperparameter with its candidate values.
type KernelParam struct {
	Name   string    `yaml:"name" json:"name"`
	Values []float64 `yaml:"values" json:"values"`
}

// Grid is the ordered cross product of all candidate hyperparameters.
type Grid []krr.Params

// NewGrid expands the candidates into a grid. The first kernel parameter
// varies fastest, followed by the remaining kernel parameters and then
// lambda; every point uses the same block count.
func NewGrid(kernelName string, params []KernelParam, lambdas []float64, blocks int) (Grid, error) {
	if kernelName == "" {
		return nil, fmt.Errorf("%w: kernel name is empty", ErrInvalidGrid)
	}
	if len(lambdas) == 0 {
		return nil, fmt.Errorf("%w: no lambda values", ErrInvalidGrid)
	}
	seen := make(map[string]bool, len(params))
	size := len(lambdas)
	for _, p := range params {
		if len(p.Values) == 0 {
			return nil, fmt.Errorf("%w: no values for kernel parameter %q", ErrInvalidGrid, p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%w: duplicate kernel parameter %q", ErrInvalidGrid, p.Name)
		}
		seen[p.Name] = true
		size *= len(p.Values)
	}

	grid := make(Grid, 0, size)
	idx := make([]int, len(params))
	for _, lambda := range lambdas {
		for i := range idx {
			idx[i] = 0
		}
		for {
			kp := make(map[string]float64, len(params))
			for i, p := range params {
				kp[p.Name] = p.Values[idx[i]]
			}
			grid = append(grid, krr.Params{
				Kernel:       kernelName,
				KernelParams: kp,
				Lambda:       lambda,
				Blocks:       blocks,
			})
			if !advance(idx, params) {
				break
			}
		}
	}
	return grid, nil
}

// advance increments idx like an odometer with the first digit fastest and
// reports false once every combination has been produced.
func advance(idx []int, params []KernelParam) bool {
	for i := range idx {
		idx[i]++
		if idx[i] < len(params[i].Values) {
			return true
		}
		idx[i] = 0
	}
	return false
}
