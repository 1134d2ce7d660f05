package drr

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/knirvcorp/drr/internal/cv"
	"github.com/knirvcorp/drr/internal/kernel"
	"github.com/knirvcorp/drr/internal/krr"
	"github.com/knirvcorp/drr/internal/monitoring"
)

// Options configures a fit. Start from DefaultOptions; the zero value is
// not a usable configuration.
type Options struct {
	// NDim is the number of retained axes. Zero means all input columns.
	NDim int

	// Lambda lists the candidate ridge penalties.
	Lambda []float64
	// Kernel is the kernel family, e.g. "rbfdot".
	Kernel string
	// KernelParams lists candidate values per kernel hyperparameter, in
	// grid order.
	KernelParams []cv.KernelParam

	PCA       bool
	PCACenter bool
	PCAScale  bool

	// FastCV selects holdout validation instead of k-fold.
	FastCV bool
	// CVFolds is the fold count for k-fold validation.
	CVFolds int
	// FastCVTest is an optional raw-space test set (columns = input
	// columns) used by holdout validation.
	FastCVTest *mat.Dense
	// HoldoutFraction is the share of rows held out when FastCV is set and
	// no test set is given. Zero means 0.2.
	HoldoutFraction float64

	// Blocks is the block count of the fast KRR approximation.
	Blocks int

	// Seed drives fold assignment, holdout split and block partition.
	Seed int64
	// Workers bounds how many axes are built concurrently. Values below 2
	// build sequentially.
	Workers int

	// Verbose emits per-axis progress at info level. Warnings are logged
	// either way.
	Verbose bool

	// Learner overrides the built-in fast KRR learner.
	Learner krr.Learner
	// Selector overrides the search derived from FastCV and CVFolds.
	Selector cv.Selector

	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// DefaultOptions returns the standard DRR configuration.
func DefaultOptions() Options {
	return Options{
		Lambda: []float64{0, 1e-3, 1e-2, 1e-1, 1, 1e1, 1e2},
		Kernel: kernel.RBF,
		KernelParams: []cv.KernelParam{
			{Name: "sigma", Values: []float64{1e-3, 1e-2, 1e-1, 1, 1e1, 1e2, 1e3, 1e4}},
		},
		PCA:       true,
		PCACenter: true,
		PCAScale:  false,
		CVFolds:   5,
		Blocks:    4,
		Seed:      1,
		Workers:   1,
		Verbose:   true,
	}
}

// Option mutates Options.
type Option func(*Options)

func WithNDim(n int) Option { return func(o *Options) { o.NDim = n } }

func WithLambda(values ...float64) Option { return func(o *Options) { o.Lambda = values } }

// WithKernel sets the kernel family and its candidate parameter values.
func WithKernel(name string, params ...cv.KernelParam) Option {
	return func(o *Options) {
		o.Kernel = name
		o.KernelParams = params
	}
}

func WithPCA(enabled, center, scale bool) Option {
	return func(o *Options) {
		o.PCA = enabled
		o.PCACenter = center
		o.PCAScale = scale
	}
}

func WithCVFolds(folds int) Option {
	return func(o *Options) {
		o.FastCV = false
		o.CVFolds = folds
	}
}

// WithFastCV switches to holdout validation, scored on test when it is not
// nil.
func WithFastCV(test *mat.Dense) Option {
	return func(o *Options) {
		o.FastCV = true
		o.FastCVTest = test
	}
}

func WithHoldoutFraction(f float64) Option { return func(o *Options) { o.HoldoutFraction = f } }

func WithBlocks(n int) Option { return func(o *Options) { o.Blocks = n } }

func WithSeed(seed int64) Option { return func(o *Options) { o.Seed = seed } }

func WithWorkers(n int) Option { return func(o *Options) { o.Workers = n } }

func WithVerbose(v bool) Option { return func(o *Options) { o.Verbose = v } }

func WithLearner(l krr.Learner) Option { return func(o *Options) { o.Learner = l } }

func WithSelector(s cv.Selector) Option { return func(o *Options) { o.Selector = s } }

func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }

func WithMetrics(m *monitoring.Metrics) Option { return func(o *Options) { o.Metrics = m } }
