// Package drr is the public API for Dimensionality Reduction via
// Regression: fitting a model, mapping data to and from the reduced
// coordinates and persisting fitted models.
package drr

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/knirvcorp/drr/internal/cv"
	idrr "github.com/knirvcorp/drr/internal/drr"
	"github.com/knirvcorp/drr/internal/krr"
	"github.com/knirvcorp/drr/internal/security"
	"github.com/knirvcorp/drr/internal/storage"
)

type (
	Model       = idrr.Model
	Axis        = idrr.Axis
	Options     = idrr.Options
	Option      = idrr.Option
	KernelParam = cv.KernelParam
	Params      = krr.Params
	Learner     = krr.Learner
	Regressor   = krr.Regressor
	Selector    = cv.Selector
	Store       = storage.Store
)

var (
	DefaultOptions = idrr.DefaultOptions

	WithNDim            = idrr.WithNDim
	WithLambda          = idrr.WithLambda
	WithKernel          = idrr.WithKernel
	WithPCA             = idrr.WithPCA
	WithCVFolds         = idrr.WithCVFolds
	WithFastCV          = idrr.WithFastCV
	WithHoldoutFraction = idrr.WithHoldoutFraction
	WithBlocks          = idrr.WithBlocks
	WithSeed            = idrr.WithSeed
	WithWorkers         = idrr.WithWorkers
	WithVerbose         = idrr.WithVerbose
	WithLearner         = idrr.WithLearner
	WithSelector        = idrr.WithSelector
	WithLogger          = idrr.WithLogger
	WithMetrics         = idrr.WithMetrics

	IsConfigError = idrr.IsConfigError

	NewFileStore   = storage.NewFileStore
	NewMemoryStore = storage.NewMemoryStore
	NewSealer      = security.NewSealer
)

var (
	ErrInvalidDimension      = idrr.ErrInvalidDimension
	ErrInvalidFolds          = idrr.ErrInvalidFolds
	ErrInvalidBlocks         = idrr.ErrInvalidBlocks
	ErrInvalidGrid           = idrr.ErrInvalidGrid
	ErrInvalidHoldout        = idrr.ErrInvalidHoldout
	ErrCapabilityUnavailable = idrr.ErrCapabilityUnavailable
	ErrEmptyData             = idrr.ErrEmptyData
	ErrInvalidData           = idrr.ErrInvalidData
	ErrDimensionMismatch     = idrr.ErrDimensionMismatch
	ErrNotPersistable        = idrr.ErrNotPersistable
	ErrNotFound              = storage.ErrNotFound
)

// Fit fits a model of x starting from DefaultOptions.
func Fit(ctx context.Context, x *mat.Dense, opts ...Option) (*Model, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	o := idrr.DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return idrr.Fit(ctx, x, o)
}

// FitOptions fits a model of x with fully specified options.
func FitOptions(ctx context.Context, x *mat.Dense, opts Options) (*Model, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}
	return idrr.Fit(ctx, x, opts)
}

// ModelKey is the store key of a model.
func ModelKey(id uuid.UUID) string {
	return "drr/model/" + id.String()
}

// Save stores a JSON snapshot of m under ModelKey(m.ID()).
func Save(ctx context.Context, store Store, m *Model) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode model: %w", err)
	}
	key := ModelKey(m.ID())
	if err := store.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("failed to save model %s: %w", m.ID(), err)
	}
	return key, nil
}

// Load reads the model with the given id from store.
func Load(ctx context.Context, store Store, id uuid.UUID) (*Model, error) {
	data, err := store.Get(ctx, ModelKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", id, err)
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode model %s: %w", id, err)
	}
	return &m, nil
}

// Delete removes the model with the given id from store.
func Delete(ctx context.Context, store Store, id uuid.UUID) error {
	return store.Delete(ctx, ModelKey(id))
}
