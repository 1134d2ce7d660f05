package drr

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/knirvcorp/drr/internal/krr"
	"github.com/knirvcorp/drr/internal/monitoring"
	"github.com/knirvcorp/drr/internal/pca"
)

// Axis is the regression of one retained axis on all lower axes. Axis 1 is
// never regressed and is represented by a placeholder with a nil Regressor.
type Axis struct {
	// Index is 1-based.
	Index     int
	Regressor krr.Regressor
	Params    krr.Params
	// CVError is the validation mean squared error of Params.
	CVError float64
}

// Placeholder reports whether the axis carries no regression.
func (a Axis) Placeholder() bool { return a.Regressor == nil }

// Model is a fitted DRR transform. It is immutable and safe for concurrent
// use by Apply and Inverse.
type Model struct {
	id      uuid.UUID
	pre     *pca.Result
	axes    []Axis
	fitted  *mat.Dense
	metrics *monitoring.Metrics
}

func (m *Model) ID() uuid.UUID { return m.id }

// NDim is the number of retained axes d.
func (m *Model) NDim() int { return len(m.axes) }

// InputDim is the number of columns of the training data p.
func (m *Model) InputDim() int {
	p, _ := m.pre.Dims()
	return p
}

// Fitted returns a copy of the DRR coordinates of the training data (n x d).
func (m *Model) Fitted() *mat.Dense { return mat.DenseCopyOf(m.fitted) }

func (m *Model) Center() []float64 { return append([]float64(nil), m.pre.Center...) }

func (m *Model) Scale() []float64 { return append([]float64(nil), m.pre.Scale...) }

// Rotation returns a copy of the preprocessor rotation (p x k).
func (m *Model) Rotation() *mat.Dense { return mat.DenseCopyOf(m.pre.Rotation) }

// ExplainedVariance of the principal axes, nil when the rotation is disabled.
func (m *Model) ExplainedVariance() []float64 { return m.pre.ExplainedVariance() }

// Axes returns the ordered axis models; element 0 is the placeholder.
func (m *Model) Axes() []Axis { return append([]Axis(nil), m.axes...) }

// Selected returns the chosen hyperparameters of axes 2..d, keyed by axis.
func (m *Model) Selected() map[int]krr.Params {
	out := make(map[int]krr.Params, len(m.axes)-1)
	for _, a := range m.axes {
		if !a.Placeholder() {
			out[a.Index] = a.Params
		}
	}
	return out
}

// Apply maps raw rows (p columns) to DRR coordinates (d columns).
func (m *Model) Apply(x mat.Matrix) (*mat.Dense, error) {
	dat, err := m.pre.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
	}
	n, _ := dat.Dims()
	d := m.NDim()
	out := mat.NewDense(n, d, nil)

	for i := d; i >= 2; i-- {
		pred, err := m.axes[i-1].Regressor.Predict(dat.Slice(0, n, 0, i-1))
		if err != nil {
			return nil, fmt.Errorf("axis %d: %w", i, err)
		}
		for r := 0; r < n; r++ {
			out.Set(r, i-1, dat.At(r, i-1)-pred.AtVec(r))
		}
	}
	out.SetCol(0, mat.Col(nil, 0, dat))

	if m.metrics != nil {
		m.metrics.AppliesTotal.Inc()
	}
	return out, nil
}

// Inverse maps DRR coordinates back to the raw space. y may hold the first
// 1..d coordinates; missing trailing residuals are taken as zero and every
// axis 2..d is still reconstructed from its regression, so a truncated
// input lands on the learned surface.
func (m *Model) Inverse(y mat.Matrix) (*mat.Dense, error) {
	n, c := y.Dims()
	d := m.NDim()
	if n == 0 || c < 1 || c > d {
		return nil, fmt.Errorf("%w: expected 1 to %d columns, got %dx%d", ErrDimensionMismatch, d, n, c)
	}
	_, k := m.pre.Dims()

	out := mat.NewDense(n, k, nil)
	out.Slice(0, n, 0, c).(*mat.Dense).Copy(y)

	for i := 2; i <= d; i++ {
		pred, err := m.axes[i-1].Regressor.Predict(out.Slice(0, n, 0, i-1))
		if err != nil {
			return nil, fmt.Errorf("axis %d: %w", i, err)
		}
		for r := 0; r < n; r++ {
			out.Set(r, i-1, out.At(r, i-1)+pred.AtVec(r))
		}
	}

	res, err := m.pre.Restore(out)
	if err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.InversesTotal.Inc()
	}
	return res, nil
}

// Reconstruct applies the model to x, keeps the first k coordinates and maps
// them back to the raw space.
func (m *Model) Reconstruct(x mat.Matrix, k int) (*mat.Dense, error) {
	y, err := m.Apply(x)
	if err != nil {
		return nil, err
	}
	if k < 1 || k > m.NDim() {
		return nil, fmt.Errorf("%w: k must be in [1, %d], got %d", ErrDimensionMismatch, m.NDim(), k)
	}
	n, _ := y.Dims()
	return m.Inverse(y.Slice(0, n, 0, k))
}

// ReconstructionError is the mean squared error of Reconstruct(x, k)
// against x.
func (m *Model) ReconstructionError(x mat.Matrix, k int) (float64, error) {
	rec, err := m.Reconstruct(x, k)
	if err != nil {
		return 0, err
	}
	var diff mat.Dense
	diff.Sub(x, rec)
	r, c := diff.Dims()
	f := mat.Norm(&diff, 2)
	return f * f / float64(r*c), nil
}
