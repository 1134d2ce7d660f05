// Package cv selects kernel ridge regression hyperparameters by
// cross-validation over a Grid.
package cv

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/knirvcorp/drr/internal/krr"
	"github.com/knirvcorp/drr/internal/tracing"
)

var (
	ErrInvalidFolds    = errors.New("cv: fold count must be greater than 1")
	ErrInvalidHoldout  = errors.New("cv: invalid holdout configuration")
	ErrTooFewRows      = errors.New("cv: not enough rows to validate")
	ErrNoValidCriteria = errors.New("cv: no grid point produced a finite validation error")
)

// Result describes the outcome of a search.
type Result struct {
	Best      krr.Params
	BestIndex int
	// Errors holds the validation mean squared error of every grid point in
	// grid order.
	Errors []float64
	// Evaluations counts learn/predict rounds performed.
	Evaluations int
}

// Selector picks the grid point with the smallest validation error. Ties
// go to the point that comes first in the grid.
type Selector interface {
	Select(ctx context.Context, learner krr.Learner, x mat.Matrix, y mat.Vector, grid Grid) (Result, error)
}

// KFold is k-fold cross-validation with rows assigned to folds by a seeded
// shuffle.
type KFold struct {
	Folds int
	Seed  int64
}

func (k KFold) Select(ctx context.Context, learner krr.Learner, x mat.Matrix, y mat.Vector, grid Grid) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "cv.Select",
		attribute.String("cv.mode", "kfold"),
		attribute.Int("cv.folds", k.Folds),
		attribute.Int("cv.grid_size", len(grid)))
	defer span.End()

	n, _ := x.Dims()
	if k.Folds < 2 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidFolds, k.Folds)
	}
	if n < k.Folds {
		return Result{}, fmt.Errorf("%w: %d rows for %d folds", ErrTooFewRows, n, k.Folds)
	}

	perm := rand.New(rand.NewSource(k.Seed)).Perm(n)
	type split struct {
		trainX *mat.Dense
		trainY *mat.VecDense
		testX  *mat.Dense
		testY  *mat.VecDense
	}
	splits := make([]split, k.Folds)
	for f := 0; f < k.Folds; f++ {
		var train, test []int
		for i, row := range perm {
			if i%k.Folds == f {
				test = append(test, row)
			} else {
				train = append(train, row)
			}
		}
		splits[f] = split{
			trainX: rows(x, train), trainY: entries(y, train),
			testX: rows(x, test), testY: entries(y, test),
		}
	}

	res := Result{Errors: make([]float64, len(grid))}
	for g, params := range grid {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		var total float64
		for f, s := range splits {
			loss, err := evaluate(learner, s.trainX, s.trainY, s.testX, s.testY, params)
			if err != nil {
				return Result{}, fmt.Errorf("fold %d, %s: %w", f+1, params, err)
			}
			total += loss
			res.Evaluations++
		}
		res.Errors[g] = total / float64(k.Folds)
	}
	return pick(res, grid)
}

// Holdout scores every grid point once on held-out rows. When TestX and
// TestY are set the model is trained on all rows and scored on that test
// set; otherwise Fraction of the rows (0.2 when zero) is held out.
type Holdout struct {
	Fraction float64
	Seed     int64
	TestX    mat.Matrix
	TestY    mat.Vector
}

func (h Holdout) Select(ctx context.Context, learner krr.Learner, x mat.Matrix, y mat.Vector, grid Grid) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "cv.Select",
		attribute.String("cv.mode", "holdout"),
		attribute.Bool("cv.external_test", h.TestX != nil),
		attribute.Int("cv.grid_size", len(grid)))
	defer span.End()

	trainX, trainY, testX, testY, err := h.split(x, y)
	if err != nil {
		return Result{}, err
	}

	res := Result{Errors: make([]float64, len(grid))}
	for g, params := range grid {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		loss, err := evaluate(learner, trainX, trainY, testX, testY, params)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", params, err)
		}
		res.Errors[g] = loss
		res.Evaluations++
	}
	return pick(res, grid)
}

func (h Holdout) split(x mat.Matrix, y mat.Vector) (mat.Matrix, mat.Vector, mat.Matrix, mat.Vector, error) {
	n, c := x.Dims()
	if (h.TestX == nil) != (h.TestY == nil) {
		return nil, nil, nil, nil, fmt.Errorf("%w: test features and targets must be given together", ErrInvalidHoldout)
	}
	if h.TestX != nil {
		tn, tc := h.TestX.Dims()
		if tc != c || tn != h.TestY.Len() || tn == 0 {
			return nil, nil, nil, nil, fmt.Errorf("%w: test set is %dx%d with %d targets, want %d columns",
				ErrInvalidHoldout, tn, tc, h.TestY.Len(), c)
		}
		return x, y, h.TestX, h.TestY, nil
	}

	frac := h.Fraction
	if frac == 0 {
		frac = 0.2
	}
	if frac <= 0 || frac >= 1 {
		return nil, nil, nil, nil, fmt.Errorf("%w: fraction must be in (0, 1), got %v", ErrInvalidHoldout, h.Fraction)
	}
	if n < 2 {
		return nil, nil, nil, nil, fmt.Errorf("%w: %d rows", ErrTooFewRows, n)
	}
	nTest := int(math.Round(frac * float64(n)))
	if nTest < 1 {
		nTest = 1
	}
	if nTest > n-1 {
		nTest = n - 1
	}
	perm := rand.New(rand.NewSource(h.Seed)).Perm(n)
	test, train := perm[:nTest], perm[nTest:]
	return rows(x, train), entries(y, train), rows(x, test), entries(y, test), nil
}

func evaluate(learner krr.Learner, trainX mat.Matrix, trainY mat.Vector, testX mat.Matrix, testY mat.Vector, p krr.Params) (float64, error) {
	model, err := learner.Learn(trainX, trainY, p)
	if err != nil {
		return 0, err
	}
	pred, err := model.Predict(testX)
	if err != nil {
		return 0, err
	}
	if pred.Len() != testY.Len() {
		return 0, fmt.Errorf("prediction has %d values for %d rows", pred.Len(), testY.Len())
	}
	want := make([]float64, testY.Len())
	got := make([]float64, pred.Len())
	for i := range want {
		want[i] = testY.AtVec(i)
		got[i] = pred.AtVec(i)
	}
	d := floats.Distance(want, got, 2)
	return d * d / float64(len(want)), nil
}

// pick selects the first grid point with the strictly smallest finite error.
func pick(res Result, grid Grid) (Result, error) {
	if len(grid) == 0 {
		return Result{}, fmt.Errorf("%w: empty grid", ErrInvalidGrid)
	}
	res.BestIndex = -1
	best := math.Inf(1)
	for i, e := range res.Errors {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			continue
		}
		if e < best {
			best = e
			res.BestIndex = i
		}
	}
	if res.BestIndex < 0 {
		return Result{}, ErrNoValidCriteria
	}
	res.Best = grid[res.BestIndex]
	return res, nil
}

func rows(x mat.Matrix, idx []int) *mat.Dense {
	_, c := x.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, r := range idx {
		for j := 0; j < c; j++ {
			out.Set(i, j, x.At(r, j))
		}
	}
	return out
}

func entries(y mat.Vector, idx []int) *mat.VecDense {
	out := mat.NewVecDense(len(idx), nil)
	for i, r := range idx {
		out.SetVec(i, y.AtVec(r))
	}
	return out
}
