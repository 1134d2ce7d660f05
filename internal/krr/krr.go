// Package krr implements kernel ridge regression with the block (divide and
// conquer) approximation: the training rows are split into blocks, an exact
// ridge solution is computed per block and predictions are averaged.
package krr

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/knirvcorp/drr/internal/kernel"
)

var (
	ErrInvalidBlocks     = errors.New("krr: block count must be at least 1")
	ErrInvalidLambda     = errors.New("krr: lambda must be non-negative")
	ErrDimensionMismatch = errors.New("krr: dimension mismatch")
	ErrEmptyData         = errors.New("krr: empty training data")
	ErrSolve             = errors.New("krr: linear solve failed")
)

// Params is one point of the hyperparameter grid.
type Params struct {
	Kernel       string             `json:"kernel"`
	KernelParams map[string]float64 `json:"kernel_params,omitempty"`
	Lambda       float64            `json:"lambda"`
	Blocks       int                `json:"blocks"`
}

func (p Params) String() string {
	names := make([]string, 0, len(p.KernelParams))
	for k := range p.KernelParams {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names)+3)
	parts = append(parts, "kernel="+p.Kernel)
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s=%g", k, p.KernelParams[k]))
	}
	parts = append(parts, fmt.Sprintf("lambda=%g", p.Lambda), fmt.Sprintf("blocks=%d", p.Blocks))
	return strings.Join(parts, " ")
}

// Regressor predicts one target value per feature row.
type Regressor interface {
	Predict(x mat.Matrix) (*mat.VecDense, error)
}

// Learner fits a Regressor on features x (n x c) and targets y (n).
type Learner interface {
	Learn(x mat.Matrix, y mat.Vector, p Params) (Regressor, error)
}

// FastLearner is the default Learner. Seed fixes the assignment of rows to
// blocks, so equal inputs always produce equal models.
type FastLearner struct {
	Seed int64
}

type block struct {
	x     *mat.Dense
	alpha *mat.VecDense
}

// Model is a fitted block kernel ridge regression.
type Model struct {
	params Params
	kernel kernel.Kernel
	blocks []block
}

func (l FastLearner) Learn(x mat.Matrix, y mat.Vector, p Params) (Regressor, error) {
	m, err := l.learn(x, y, p)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (l FastLearner) learn(x mat.Matrix, y mat.Vector, p Params) (*Model, error) {
	n, c := x.Dims()
	if n == 0 || c == 0 {
		return nil, ErrEmptyData
	}
	if y.Len() != n {
		return nil, fmt.Errorf("%w: %d feature rows, %d targets", ErrDimensionMismatch, n, y.Len())
	}
	if p.Blocks < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBlocks, p.Blocks)
	}
	if p.Lambda < 0 || math.IsNaN(p.Lambda) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidLambda, p.Lambda)
	}
	k, err := kernel.New(p.Kernel, p.KernelParams)
	if err != nil {
		return nil, err
	}

	nblocks := p.Blocks
	if nblocks > n {
		nblocks = n
	}

	// Row perm[i] goes to block i mod nblocks.
	perm := rand.New(rand.NewSource(l.Seed)).Perm(n)
	members := make([][]int, nblocks)
	for i, row := range perm {
		members[i%nblocks] = append(members[i%nblocks], row)
	}

	m := &Model{params: p, kernel: k, blocks: make([]block, nblocks)}
	for b, rows := range members {
		xb := mat.NewDense(len(rows), c, nil)
		yb := mat.NewVecDense(len(rows), nil)
		for i, row := range rows {
			for j := 0; j < c; j++ {
				xb.Set(i, j, x.At(row, j))
			}
			yb.SetVec(i, y.AtVec(row))
		}

		gram := kernel.Symmetric(k, xb)
		for i := 0; i < len(rows); i++ {
			gram.SetSym(i, i, gram.At(i, i)+p.Lambda)
		}

		alpha, err := solve(gram, yb)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", b+1, err)
		}
		m.blocks[b] = block{x: xb, alpha: alpha}
	}
	return m, nil
}

// solve returns a solution of a * alpha = y, trying Cholesky first, then LU,
// then the minimum-norm least squares solution for singular systems.
func solve(a *mat.SymDense, y *mat.VecDense) (*mat.VecDense, error) {
	var alpha mat.VecDense

	var chol mat.Cholesky
	if chol.Factorize(a) {
		if err := chol.SolveVecTo(&alpha, y); acceptable(err) && finite(&alpha) {
			return &alpha, nil
		}
	}

	alpha.Reset()
	if err := alpha.SolveVec(a, y); acceptable(err) && finite(&alpha) {
		return &alpha, nil
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, ErrSolve
	}
	alpha.Reset()
	rank := svd.Rank(1e-12)
	if rank == 0 {
		n := y.Len()
		return mat.NewVecDense(n, nil), nil
	}
	svd.SolveVecTo(&alpha, y, rank)
	if !finite(&alpha) {
		return nil, ErrSolve
	}
	return &alpha, nil
}

// acceptable reports whether err still leaves a usable solution. Condition
// errors flag ill-conditioning but the result is computed.
func acceptable(err error) bool {
	if err == nil {
		return true
	}
	var cond mat.Condition
	return errors.As(err, &cond) && !math.IsInf(float64(cond), 1)
}

func finite(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if f := v.AtVec(i); math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Predict averages the block predictions K(x, X_b) * alpha_b.
func (m *Model) Predict(x mat.Matrix) (*mat.VecDense, error) {
	n, c := x.Dims()
	if want := m.Dim(); c != want {
		return nil, fmt.Errorf("%w: expected %d feature columns, got %d", ErrDimensionMismatch, want, c)
	}
	out := mat.NewVecDense(n, nil)
	if n == 0 {
		return out, nil
	}
	var part mat.VecDense
	for _, b := range m.blocks {
		gram := kernel.Matrix(m.kernel, x, b.x)
		part.MulVec(gram, b.alpha)
		out.AddVec(out, &part)
	}
	out.ScaleVec(1/float64(len(m.blocks)), out)
	return out, nil
}

// Params returns the hyperparameters the model was fitted with.
func (m *Model) Params() Params { return m.params }

// Dim returns the number of feature columns the model expects.
func (m *Model) Dim() int {
	_, c := m.blocks[0].x.Dims()
	return c
}

// Blocks returns the number of blocks actually used (at most the row count).
func (m *Model) Blocks() int { return len(m.blocks) }

type blockJSON struct {
	Rows  int       `json:"rows"`
	Cols  int       `json:"cols"`
	X     []float64 `json:"x"`
	Alpha []float64 `json:"alpha"`
}

type modelJSON struct {
	Params Params      `json:"params"`
	Blocks []blockJSON `json:"blocks"`
}

func (m *Model) MarshalJSON() ([]byte, error) {
	out := modelJSON{Params: m.params, Blocks: make([]blockJSON, len(m.blocks))}
	for i, b := range m.blocks {
		r, c := b.x.Dims()
		out.Blocks[i] = blockJSON{
			Rows:  r,
			Cols:  c,
			X:     mat.DenseCopyOf(b.x).RawMatrix().Data,
			Alpha: mat.VecDenseCopyOf(b.alpha).RawVector().Data,
		}
	}
	return json.Marshal(out)
}

func (m *Model) UnmarshalJSON(data []byte) error {
	var in modelJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if len(in.Blocks) == 0 {
		return fmt.Errorf("%w: model has no blocks", ErrEmptyData)
	}
	k, err := kernel.New(in.Params.Kernel, in.Params.KernelParams)
	if err != nil {
		return err
	}
	blocks := make([]block, len(in.Blocks))
	for i, b := range in.Blocks {
		if b.Rows*b.Cols != len(b.X) || b.Rows != len(b.Alpha) || b.Rows == 0 {
			return fmt.Errorf("%w: malformed block %d", ErrDimensionMismatch, i+1)
		}
		blocks[i] = block{
			x:     mat.NewDense(b.Rows, b.Cols, b.X),
			alpha: mat.NewVecDense(b.Rows, b.Alpha),
		}
	}
	m.params = in.Params
	m.kernel = k
	m.blocks = blocks
	return nil
}
