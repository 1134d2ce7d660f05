package main

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/knirvcorp/drr/pkg/drr"
)

func newFitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit a model and store it",
		Long:  "Fit a DRR model on a CSV file, store it and print its ID.",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, _ := cmd.Flags().GetString("input")
			testPath, _ := cmd.Flags().GetString("test")
			fittedPath, _ := cmd.Flags().GetString("fitted")

			x, err := readMatrix(input)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", input, err)
			}

			opts := a.cfg.Options()
			opts.Logger = a.logger.Logger
			opts.Metrics = a.metrics
			if cmd.Flags().Changed("ndim") {
				opts.NDim, _ = cmd.Flags().GetInt("ndim")
			}
			if cmd.Flags().Changed("workers") {
				opts.Workers, _ = cmd.Flags().GetInt("workers")
			}
			if testPath != "" {
				test, err := readMatrix(testPath)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", testPath, err)
				}
				opts.FastCV = true
				opts.FastCVTest = test
			}

			model, err := drr.FitOptions(cmd.Context(), x, opts)
			if err != nil {
				return err
			}
			key, err := drr.Save(cmd.Context(), a.store, model)
			if err != nil {
				return err
			}
			a.logger.WithModelID(model.ID().String()).Info("model stored", zap.String("key", key))

			if fittedPath != "" {
				if err := writeMatrix(fittedPath, cmd.OutOrStdout(), model.Fitted()); err != nil {
					return fmt.Errorf("failed to write %s: %w", fittedPath, err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), model.ID())
			return nil
		},
	}
	cmd.Flags().String("input", "", "Training data CSV (- for stdin)")
	cmd.Flags().String("test", "", "Test set CSV for fast cross-validation")
	cmd.Flags().String("fitted", "", "Write the fitted coordinates to this CSV")
	cmd.Flags().Int("ndim", 0, "Number of retained axes (overrides the configuration)")
	cmd.Flags().Int("workers", 1, "Axes built concurrently (overrides the configuration)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// transformCmd builds apply and inverse, which differ only in the model
// method they call.
func transformCmd(a *app, use, short string, run func(*drr.Model, mat.Matrix) (*mat.Dense, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, _ := cmd.Flags().GetString("input")
			output, _ := cmd.Flags().GetString("output")

			model, err := a.loadModel(cmd)
			if err != nil {
				return err
			}
			in, err := readMatrix(input)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", input, err)
			}
			out, err := run(model.WithMetrics(a.metrics), in)
			if err != nil {
				return err
			}
			if err := writeMatrix(output, cmd.OutOrStdout(), out); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			return nil
		},
	}
	cmd.Flags().String("model", "", "Model ID")
	cmd.Flags().String("input", "-", "Input CSV (- for stdin)")
	cmd.Flags().String("output", "-", "Output CSV (- for stdout)")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func newApplyCmd(a *app) *cobra.Command {
	return transformCmd(a, "apply", "Map raw data to DRR coordinates", (*drr.Model).Apply)
}

func newInverseCmd(a *app) *cobra.Command {
	return transformCmd(a, "inverse", "Map DRR coordinates back to the raw space", (*drr.Model).Inverse)
}

func newInfoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Describe a stored model",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := a.loadModel(cmd)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "id:      %s\n", model.ID())
			fmt.Fprintf(w, "input:   %d columns\n", model.InputDim())
			fmt.Fprintf(w, "ndim:    %d\n", model.NDim())
			if ev := model.ExplainedVariance(); ev != nil {
				fmt.Fprintf(w, "pca:     %.4g\n", ev)
			}
			selected := model.Selected()
			axes := make([]int, 0, len(selected))
			for i := range selected {
				axes = append(axes, i)
			}
			sort.Ints(axes)
			for _, i := range axes {
				fmt.Fprintf(w, "axis %d:  %s\n", i, selected[i])
			}
			return nil
		},
	}
	cmd.Flags().String("model", "", "Model ID")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func (a *app) loadModel(cmd *cobra.Command) (*drr.Model, error) {
	raw, _ := cmd.Flags().GetString("model")
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid model id %q: %w", raw, err)
	}
	return drr.Load(cmd.Context(), a.store, id)
}
