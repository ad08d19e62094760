package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/bikeshare/dataset"
	"github.com/YuminosukeSato/bikeshare/inference"
	"github.com/YuminosukeSato/bikeshare/metrics"
	"github.com/YuminosukeSato/bikeshare/pipeline"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/report"
)

type trainOutput struct {
	RunID       string         `json:"run_id"`
	Artifact    string         `json:"artifact"`
	MetricsPath string         `json:"metrics_path"`
	Plot        string         `json:"plot,omitempty"`
	TrainRows   int            `json:"train_rows"`
	TestRows    int            `json:"test_rows"`
	Metrics     metrics.Record `json:"metrics"`
}

func newTrainCommand(a *app) *cobra.Command {
	var plot bool
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train, evaluate and publish a model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := pipeline.TrainAndExport(cmd.Context(), a.cfg, pipeline.WithImportancePlot(plot))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), trainOutput{
				RunID:       res.Bundle.Metadata.RunID,
				Artifact:    res.ArtifactPath,
				MetricsPath: res.MetricsPath,
				Plot:        res.PlotPath,
				TrainRows:   res.TrainRows,
				TestRows:    res.TestRows,
				Metrics:     res.Metrics,
			})
		},
	}
	cmd.Flags().BoolVar(&plot, "plot", false, "also save the feature importance chart")
	return cmd
}

type predictOutput struct {
	Prediction float64 `json:"prediction"`
	Model      string  `json:"model"`
	RunID      string  `json:"run_id"`
}

func newPredictCommand(a *app) *cobra.Command {
	var fields []string
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the rented bike count of one hourly record",
		Example: "  bikeshare predict -c config.yaml --row hour=0 --row temp=5 --row seasons=Winter ...\n" +
			"  bikeshare predict -c config.yaml --row hour=0,temp=5,seasons=Winter,...",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := parseRow(fields)
			if err != nil {
				return err
			}
			inf, err := inference.NewFromConfig(a.cfg)
			if err != nil {
				return err
			}
			pred, err := inf.PredictOne(row)
			if err != nil {
				return err
			}
			md := inf.Metadata()
			return writeJSON(cmd.OutOrStdout(), predictOutput{Prediction: pred, Model: md.ModelName(), RunID: md.RunID})
		},
	}
	cmd.Flags().StringSliceVar(&fields, "row", nil, "feature value as key=value; repeat or comma-separate")
	return cmd
}

// parseRow turns key=value pairs into a row. Values that parse as numbers
// become float64; everything else stays text.
func parseRow(fields []string) (dataset.Row, error) {
	if len(fields) == 0 {
		return nil, errors.NewConfigError("row", "at least one key=value is required", nil)
	}
	row := make(dataset.Row, len(fields))
	for _, f := range fields {
		key, value, ok := strings.Cut(f, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.NewConfigError("row", "expected key=value", f)
		}
		if _, dup := row[key]; dup {
			return nil, errors.NewConfigError("row", "duplicate key", key)
		}
		value = strings.TrimSpace(value)
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			row[key] = v
		} else {
			row[key] = value
		}
	}
	return row, nil
}

func newImportanceCommand(a *app) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "importance",
		Short: "List the served model's feature importances, highest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inf, err := inference.NewFromConfig(a.cfg)
			if err != nil {
				return err
			}
			ranked, err := report.Rank(inf.FeatureNames(), inf.FeatureImportance(), top)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ranked)
		},
	}
	cmd.Flags().IntVar(&top, "top", 0, "show only the N most important features (0 shows all)")
	return cmd
}
