package drr

import "errors"

// Configuration errors. They are all *ConfigError values and are reported
// before any decomposition or regression work starts.
var (
	ErrInvalidDimension      = &ConfigError{"ndim must be between 1 and min(rows, columns)"}
	ErrInvalidFolds          = &ConfigError{"cv folds must be an integer greater than 1"}
	ErrInvalidBlocks         = &ConfigError{"fast KRR block count must be a positive integer"}
	ErrInvalidGrid           = &ConfigError{"invalid hyperparameter grid"}
	ErrInvalidHoldout        = &ConfigError{"holdout fraction must be in [0, 1)"}
	ErrCapabilityUnavailable = &ConfigError{"regression capability unavailable"}
	ErrEmptyData             = &ConfigError{"empty data"}
	ErrInvalidData           = &ConfigError{"data contains NaN or Inf values"}
)

var (
	ErrDimensionMismatch = errors.New("drr: dimension mismatch")
	ErrNotPersistable    = errors.New("drr: axis regressor cannot be serialized")
)

type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string {
	return "drr: " + e.msg
}
