// Package drr implements Dimensionality Reduction via Regression: a
// principal component rotation followed by one kernel ridge regression per
// retained axis, predicting that axis from all lower axes. The residuals of
// those regressions form the reduced coordinates, and the same regressions
// run in reverse reconstruct the original space.
package drr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/knirvcorp/drr/internal/cv"
	"github.com/knirvcorp/drr/internal/kernel"
	"github.com/knirvcorp/drr/internal/krr"
	"github.com/knirvcorp/drr/internal/logging"
	"github.com/knirvcorp/drr/internal/pca"
	"github.com/knirvcorp/drr/internal/tracing"
)

// plan is a validated fit configuration.
type plan struct {
	opts     Options
	n, p     int
	ndim     int
	grid     cv.Grid
	learner  krr.Learner
	selector func(testAlpha *mat.Dense, axis int) cv.Selector
	logger   *logging.Logger
}

// Fit builds a DRR model of x (rows are observations). All configuration
// checks run before any work; on failure no model is returned.
func Fit(ctx context.Context, x *mat.Dense, opts Options) (*Model, error) {
	start := time.Now()
	id := uuid.New()

	ctx, span := tracing.StartSpan(ctx, "drr.Fit", attribute.String("drr.model_id", id.String()))
	defer span.End()

	m, err := fit(ctx, id, x, opts)
	if opts.Metrics != nil {
		if err != nil {
			opts.Metrics.FitErrors.Inc()
		} else {
			opts.Metrics.FitsTotal.Inc()
			opts.Metrics.FitDuration.Observe(time.Since(start).Seconds())
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return m, nil
}

func fit(ctx context.Context, id uuid.UUID, x *mat.Dense, opts Options) (*Model, error) {
	pl, err := newPlan(x, opts)
	if err != nil {
		return nil, err
	}
	logger := pl.logger.WithModelID(id.String())

	if pl.ndim < pl.p {
		logger.Warn("ndim is smaller than the data dimensionality, the inverse will be incomplete",
			zap.Int("ndim", pl.ndim), zap.Int("columns", pl.p))
	}
	if opts.FastCVTest != nil && !opts.FastCV {
		logger.Warn("fast cv test set given without fast cv, ignoring it")
	}

	pre, err := pca.Fit(x, pca.Options{Enabled: opts.PCA, Center: opts.PCACenter, Scale: opts.PCAScale})
	if err != nil {
		return nil, fmt.Errorf("failed to fit linear preprocessor: %w", err)
	}

	n, d := pl.n, pl.ndim
	alpha := pre.Projected.Slice(0, n, 0, d).(*mat.Dense)

	var testAlpha *mat.Dense
	if opts.FastCV && opts.FastCVTest != nil {
		t, err := pre.Transform(opts.FastCVTest)
		if err != nil {
			return nil, fmt.Errorf("failed to project fast cv test set: %w", err)
		}
		tn, _ := t.Dims()
		testAlpha = t.Slice(0, tn, 0, d).(*mat.Dense)
	}

	axes := make([]Axis, d)
	axes[0] = Axis{Index: 1}
	residuals := make([][]float64, d)

	build := func(ctx context.Context, i int) error {
		axisLogger := logger.WithAxis(i, d)
		axis, res, err := pl.buildAxis(ctx, alpha, testAlpha, i)
		if err != nil {
			axisLogger.WithError(err).Debug("axis construction failed")
			return fmt.Errorf("axis %d: %w", i, err)
		}
		axes[i-1] = axis
		residuals[i-1] = res
		axisLogger.Debug("axis built",
			zap.Stringer("params", axis.Params),
			zap.Float64("cv_error", axis.CVError))
		return nil
	}

	if pl.opts.Workers < 2 {
		for i := d; i >= 2; i-- {
			logger.WithAxis(i, d).Info("constructing axis")
			if err := build(ctx, i); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(pl.opts.Workers)
		for i := d; i >= 2; i-- {
			i := i
			logger.WithAxis(i, d).Info("constructing axis")
			g.Go(func() error { return build(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	fitted := mat.NewDense(n, d, nil)
	fitted.SetCol(0, mat.Col(nil, 0, alpha))
	for i := 2; i <= d; i++ {
		fitted.SetCol(i-1, residuals[i-1])
	}

	logger.Info("fit complete", zap.Int("rows", n), zap.Int("ndim", d))
	return &Model{
		id:      id,
		pre:     pre,
		axes:    axes,
		fitted:  fitted,
		metrics: opts.Metrics,
	}, nil
}

// buildAxis searches hyperparameters for axis i (1-based), fits the winning
// regression of alpha[:, i] on alpha[:, 1..i-1] and returns the residual.
func (pl *plan) buildAxis(ctx context.Context, alpha, testAlpha *mat.Dense, i int) (Axis, []float64, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "drr.BuildAxis",
		attribute.Int("drr.axis", i),
		attribute.Int("drr.ndim", pl.ndim))
	defer span.End()

	n := pl.n
	features := alpha.Slice(0, n, 0, i-1)
	target := alpha.ColView(i - 1)

	res, err := pl.selector(testAlpha, i).Select(ctx, pl.learner, features, target, pl.grid)
	if err != nil {
		span.RecordError(err)
		return Axis{}, nil, fmt.Errorf("hyperparameter search failed: %w", err)
	}

	model, err := pl.learner.Learn(features, target, res.Best)
	if err != nil {
		span.RecordError(err)
		return Axis{}, nil, fmt.Errorf("failed to fit regression: %w", err)
	}
	pred, err := model.Predict(features)
	if err != nil {
		span.RecordError(err)
		return Axis{}, nil, fmt.Errorf("failed to predict training data: %w", err)
	}
	if pred.Len() != n {
		return Axis{}, nil, fmt.Errorf("%w: regressor returned %d predictions for %d rows", ErrDimensionMismatch, pred.Len(), n)
	}

	residual := make([]float64, n)
	for r := 0; r < n; r++ {
		residual[r] = target.AtVec(r) - pred.AtVec(r)
	}

	if m := pl.opts.Metrics; m != nil {
		m.GridSize.Set(float64(len(pl.grid)))
		m.GridEvaluations.Add(float64(res.Evaluations))
		m.SelectedLambda.Set(res.Best.Lambda)
		m.AxisBuildDuration.Observe(time.Since(start).Seconds())
	}

	return Axis{
		Index:     i,
		Regressor: model,
		Params:    res.Best,
		CVError:   res.Errors[res.BestIndex],
	}, residual, nil
}

func newPlan(x *mat.Dense, opts Options) (*plan, error) {
	if x == nil || x.IsEmpty() {
		return nil, ErrEmptyData
	}
	n, p := x.Dims()
	if err := checkFinite(x); err != nil {
		return nil, err
	}

	ndim := opts.NDim
	if ndim == 0 {
		ndim = p
	}
	if limit := min(n, p); ndim < 1 || ndim > limit {
		return nil, fmt.Errorf("%w: ndim %d with %d rows and %d columns", ErrInvalidDimension, ndim, n, p)
	}

	if opts.Selector == nil && !opts.FastCV {
		if opts.CVFolds <= 1 {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidFolds, opts.CVFolds)
		}
		if opts.CVFolds > n {
			return nil, fmt.Errorf("%w: %d folds for %d rows", ErrInvalidFolds, opts.CVFolds, n)
		}
	}
	if opts.Blocks < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBlocks, opts.Blocks)
	}
	if opts.HoldoutFraction < 0 || opts.HoldoutFraction >= 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidHoldout, opts.HoldoutFraction)
	}
	if opts.FastCV && opts.FastCVTest != nil {
		if opts.FastCVTest.IsEmpty() {
			return nil, fmt.Errorf("%w: fast cv test set", ErrEmptyData)
		}
		if _, tc := opts.FastCVTest.Dims(); tc != p {
			return nil, fmt.Errorf("%w: fast cv test set has %d columns, want %d", ErrInvalidData, tc, p)
		}
		if err := checkFinite(opts.FastCVTest); err != nil {
			return nil, err
		}
	}

	for _, l := range opts.Lambda {
		if l < 0 || math.IsNaN(l) || math.IsInf(l, 0) {
			return nil, fmt.Errorf("%w: lambda %v", ErrInvalidGrid, l)
		}
	}
	grid, err := cv.NewGrid(opts.Kernel, opts.KernelParams, opts.Lambda, opts.Blocks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGrid, err)
	}

	learner := opts.Learner
	if learner == nil {
		if _, err := kernel.ParamNames(opts.Kernel); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCapabilityUnavailable, err)
		}
		for _, gp := range grid {
			if _, err := kernel.New(gp.Kernel, gp.KernelParams); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidGrid, err)
			}
		}
		learner = krr.FastLearner{Seed: opts.Seed}
	}

	logger := logging.From(opts.Logger)
	if !opts.Verbose {
		logger = logger.Quiet()
	}

	pl := &plan{
		opts:    opts,
		n:       n,
		p:       p,
		ndim:    ndim,
		grid:    grid,
		learner: learner,
		logger:  logger,
	}
	pl.selector = func(testAlpha *mat.Dense, axis int) cv.Selector {
		if opts.Selector != nil {
			return opts.Selector
		}
		if !opts.FastCV {
			return cv.KFold{Folds: opts.CVFolds, Seed: opts.Seed}
		}
		h := cv.Holdout{Fraction: opts.HoldoutFraction, Seed: opts.Seed}
		if testAlpha != nil {
			tn, _ := testAlpha.Dims()
			h.TestX = testAlpha.Slice(0, tn, 0, axis-1)
			h.TestY = testAlpha.ColView(axis - 1)
		}
		return h
	}
	return pl, nil
}

func checkFinite(x *mat.Dense) error {
	r, c := x.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := x.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: row %d, column %d", ErrInvalidData, i+1, j+1)
			}
		}
	}
	return nil
}

// IsConfigError reports whether err was caused by an invalid configuration.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
