package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	FitsTotal         prometheus.Counter
	FitErrors         prometheus.Counter
	FitDuration       prometheus.Histogram
	AxisBuildDuration prometheus.Histogram
	GridEvaluations   prometheus.Counter
	GridSize          prometheus.Gauge
	SelectedLambda    prometheus.Gauge
	AppliesTotal      prometheus.Counter
	InversesTotal     prometheus.Counter
}

// NewMetrics registers the DRR collectors with reg. A nil reg registers
// with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "drr_fits_total",
			Help: "Total number of completed DRR fits",
		}),
		FitErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "drr_fit_errors_total",
			Help: "Total number of DRR fits that failed",
		}),
		FitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "drr_fit_duration_seconds",
			Help:    "Time taken to fit a DRR model",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		AxisBuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "drr_axis_build_duration_seconds",
			Help:    "Time taken to search and fit the regression of one axis",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		GridEvaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "drr_grid_evaluations_total",
			Help: "Total number of hyperparameter grid points evaluated",
		}),
		GridSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "drr_grid_size",
			Help: "Number of hyperparameter combinations in the last search grid",
		}),
		SelectedLambda: factory.NewGauge(prometheus.GaugeOpts{
			Name: "drr_selected_lambda",
			Help: "Ridge penalty chosen by the most recent axis search",
		}),
		AppliesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "drr_applies_total",
			Help: "Total number of forward transforms",
		}),
		InversesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "drr_inverses_total",
			Help: "Total number of inverse transforms",
		}),
	}
}
