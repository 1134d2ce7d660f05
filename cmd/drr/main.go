package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/knirvcorp/drr/internal/config"
	"github.com/knirvcorp/drr/internal/logging"
	"github.com/knirvcorp/drr/internal/monitoring"
	"github.com/knirvcorp/drr/internal/security"
	"github.com/knirvcorp/drr/internal/storage"
	"github.com/knirvcorp/drr/internal/tracing"
)

const version = "v0.3.0"

// app holds what every subcommand needs, built once per invocation.
type app struct {
	cfg      config.Config
	logger   *logging.Logger
	store    storage.Store
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	tracer   *sdktrace.TracerProvider
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "drr",
		Short:         "Dimensionality Reduction via Regression",
		Long:          "Fit DRR models on CSV data, store them and map data to and from the reduced coordinates.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.String("store", "", "Model directory (overrides the configured store)")
	flags.String("secret", "", "Seal stored models with this secret (default $DRR_SECRET)")
	flags.String("log-level", "", "Log level (overrides the configuration)")
	flags.String("metrics-file", "", "Write Prometheus metrics to this file on exit")
	flags.String("jaeger", "", "Jaeger collector endpoint for traces")

	rootCmd.AddCommand(newFitCmd(a), newApplyCmd(a), newInverseCmd(a), newInfoCmd(a))
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	a.cfg = cfg

	a.logger, err = logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	ctx := cmd.Context()
	dir, _ := cmd.Flags().GetString("store")
	store, err := cfg.OpenStore(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		secret = os.Getenv("DRR_SECRET")
	}
	if secret != "" {
		store, err = security.NewSealer(store, secret)
		if err != nil {
			return err
		}
	}
	a.store = store

	a.registry = prometheus.NewRegistry()
	a.metrics = monitoring.NewMetrics(a.registry)

	endpoint, _ := cmd.Flags().GetString("jaeger")
	if endpoint == "" {
		endpoint = cfg.Tracing.Endpoint
	}
	if endpoint != "" {
		a.tracer, err = tracing.InitTracer(cfg.Tracing.ServiceName, endpoint)
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) teardown(cmd *cobra.Command) error {
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("failed to flush traces", zap.Error(err))
		}
	}
	if path, _ := cmd.Flags().GetString("metrics-file"); path != "" {
		if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	_ = a.logger.Sync()
	return nil
}
