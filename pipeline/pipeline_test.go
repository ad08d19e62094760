package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/bikeshare/artifact"
	"github.com/YuminosukeSato/bikeshare/config"
	"github.com/YuminosukeSato/bikeshare/inference"
	"github.com/YuminosukeSato/bikeshare/internal/synthetic"
	"github.com/YuminosukeSato/bikeshare/metrics"
	"github.com/YuminosukeSato/bikeshare/pipeline"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/pkg/log"
	"github.com/YuminosukeSato/bikeshare/report"
	"github.com/YuminosukeSato/bikeshare/sklearn/ensemble"
)

func clock() time.Time { return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC) }

// setup writes n synthetic hourly rows and returns a config pointing at them
// with its output in a fresh directory.
func setup(t *testing.T, n int) *config.Config {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "SeoulBikeData_cleaned_cols.csv")
	require.NoError(t, synthetic.WriteCSV(data, synthetic.Rows(n, 2024)))

	cfg := config.Default()
	cfg.Data.Path = data
	cfg.Output.OutputPath = filepath.Join(dir, "artifacts")
	return cfg
}

func small(cfg *config.Config) *config.Config {
	cfg.Model.NEstimators = 20
	cfg.Model.MaxDepth = 4
	return cfg
}

func TestTrainAndExportFullYear(t *testing.T) {
	if testing.Short() {
		t.Skip("trains 300 trees on a year of data")
	}
	cfg := setup(t, 8760)
	logger, buf := log.NewTestLogger(log.LevelInfo)

	res, err := pipeline.TrainAndExport(context.Background(), cfg,
		pipeline.WithLogger(logger), pipeline.WithClock(clock))
	require.NoError(t, err)

	assert.Equal(t, 7008, res.TrainRows)
	assert.Equal(t, 1752, res.TestRows)

	assert.Equal(t, filepath.Join(cfg.Output.OutputPath, artifact.FileName("GradientBoosting", clock(), res.Bundle.Metadata.RunID)), res.ArtifactPath)
	assert.Equal(t, filepath.Join(cfg.Output.OutputPath, "GradientBoosting_metrics.json"), res.MetricsPath)

	rec, err := metrics.LoadRecord(res.MetricsPath)
	require.NoError(t, err)
	assert.Equal(t, res.Metrics, rec)
	for _, key := range []string{metrics.KeyMAE, metrics.KeyMSE, metrics.KeyRMSE, metrics.KeyR2, metrics.KeyExplainedVariance, metrics.KeyNTest} {
		assert.Contains(t, rec, key)
	}
	assert.GreaterOrEqual(t, rec[metrics.KeyMAE], 0.0)
	assert.GreaterOrEqual(t, rec[metrics.KeyRMSE], 0.0)
	assert.LessOrEqual(t, rec[metrics.KeyR2], 1.0)
	assert.Greater(t, rec[metrics.KeyR2], 0.8, "the synthetic demand is learnable")
	assert.Equal(t, 1752.0, rec[metrics.KeyNTest])

	inf, err := inference.New(res.ArtifactPath)
	require.NoError(t, err)
	pred, err := inf.PredictOne(synthetic.WinterMidnight())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pred, 0.0)
	assert.Len(t, inf.FeatureImportance(), res.Bundle.Transformer.NOutputs())

	for _, stage := range []string{"load", "split", "transform", "fit", "evaluate", "publish"} {
		assert.True(t, logger.ContainsField("ml.phase", stage), "stage %s logged", stage)
	}
	assert.Contains(t, buf.String(), "Training run complete")
}

func TestTrainAndExportEveryKind(t *testing.T) {
	for _, kind := range []string{config.KindGradientBoosting, config.KindDecisionTree, config.KindRandomForest} {
		t.Run(kind, func(t *testing.T) {
			cfg := small(setup(t, 24*60))
			cfg.Model.Kind = kind

			res, err := pipeline.TrainAndExport(context.Background(), cfg,
				pipeline.WithClock(clock), pipeline.WithImportancePlot(true))
			require.NoError(t, err)

			for _, path := range []string{res.ArtifactPath, res.MetricsPath, res.PlotPath} {
				_, err := os.Stat(path)
				assert.NoError(t, err, path)
			}
			assert.Equal(t, res.Bundle.Metadata.ModelName(), filepath.Base(res.ArtifactPath)[:len(res.Bundle.Metadata.ModelName())])
		})
	}
}

func TestTrainAndExportIsDeterministic(t *testing.T) {
	cfg := small(setup(t, 24*60))

	first, err := pipeline.TrainAndExport(context.Background(), cfg, pipeline.WithClock(clock))
	require.NoError(t, err)
	second, err := pipeline.TrainAndExport(context.Background(), cfg,
		pipeline.WithClock(func() time.Time { return clock().Add(time.Minute) }))
	require.NoError(t, err)

	assert.Equal(t, first.Metrics, second.Metrics)
	assert.NotEqual(t, first.ArtifactPath, second.ArtifactPath)
	assert.NotEqual(t, first.Bundle.Metadata.RunID, second.Bundle.Metadata.RunID)
}

func TestBackToBackRunsBothPublish(t *testing.T) {
	cfg := small(setup(t, 24*40))

	first, err := pipeline.TrainAndExport(context.Background(), cfg)
	require.NoError(t, err)
	second, err := pipeline.TrainAndExport(context.Background(), cfg)
	require.NoError(t, err)

	assert.NotEqual(t, first.ArtifactPath, second.ArtifactPath)
	assert.FileExists(t, first.ArtifactPath)
	assert.FileExists(t, second.ArtifactPath)

	latest, err := artifact.NewStore(cfg.Output.OutputPath).Latest("GradientBoosting")
	require.NoError(t, err)
	assert.Contains(t, []string{first.ArtifactPath, second.ArtifactPath}, latest)
}

func TestFailedRunPublishesNothing(t *testing.T) {
	t.Run("cancelled", func(t *testing.T) {
		cfg := small(setup(t, 240))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := pipeline.TrainAndExport(ctx, cfg)
		require.ErrorIs(t, err, context.Canceled)
		assertEmpty(t, cfg.Output.OutputPath)
	})

	t.Run("missing data file", func(t *testing.T) {
		cfg := small(setup(t, 240))
		cfg.Data.Path = filepath.Join(t.TempDir(), "nope.csv")

		_, err := pipeline.TrainAndExport(context.Background(), cfg)
		require.ErrorIs(t, err, os.ErrNotExist)
		assertEmpty(t, cfg.Output.OutputPath)
	})

	t.Run("missing column", func(t *testing.T) {
		cfg := small(setup(t, 240))
		cfg.Data.X = append(cfg.Data.X, "dew_point")

		_, err := pipeline.TrainAndExport(context.Background(), cfg)
		var schemaErr *errors.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "dew_point", schemaErr.Column)
		assertEmpty(t, cfg.Output.OutputPath)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := small(setup(t, 240))
		cfg.Model.Subsample = 0

		_, err := pipeline.TrainAndExport(context.Background(), cfg)
		var cfgErr *errors.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "model.subsample", cfgErr.Field)
	})

	t.Run("metrics cannot be written", func(t *testing.T) {
		cfg := small(setup(t, 24*40))
		blocker := metrics.RecordPath(cfg.Output.OutputPath, "GradientBoosting")
		require.NoError(t, os.MkdirAll(blocker, 0o755))

		_, err := pipeline.TrainAndExport(context.Background(), cfg, pipeline.WithClock(clock))
		require.Error(t, err)

		entries, err := os.ReadDir(cfg.Output.OutputPath)
		require.NoError(t, err)
		require.Len(t, entries, 1, "only the blocking directory remains")
		assert.Equal(t, filepath.Base(blocker), entries[0].Name())
	})
}

func TestPlotFailureRemovesArtifact(t *testing.T) {
	cfg := small(setup(t, 24*40))
	blocker := report.PlotPath(cfg.Output.OutputPath, "GradientBoosting")
	require.NoError(t, os.MkdirAll(blocker, 0o755))

	_, err := pipeline.TrainAndExport(context.Background(), cfg,
		pipeline.WithClock(clock), pipeline.WithImportancePlot(true))
	require.Error(t, err)

	entries, err := os.ReadDir(cfg.Output.OutputPath)
	require.NoError(t, err)
	require.Len(t, entries, 1, "neither the artifact nor the metrics file is published")
	assert.Equal(t, filepath.Base(blocker), entries[0].Name())

	_, err = artifact.NewStore(cfg.Output.OutputPath).Latest("")
	var notFound *errors.ArtifactNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestMetricsFailureRemovesNewPlot(t *testing.T) {
	cfg := small(setup(t, 24*40))
	blocker := metrics.RecordPath(cfg.Output.OutputPath, "GradientBoosting")
	require.NoError(t, os.MkdirAll(blocker, 0o755))

	_, err := pipeline.TrainAndExport(context.Background(), cfg,
		pipeline.WithClock(clock), pipeline.WithImportancePlot(true))
	require.Error(t, err)

	entries, err := os.ReadDir(cfg.Output.OutputPath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(blocker), entries[0].Name())
}

func TestFitFailureIsModelError(t *testing.T) {
	dir := t.TempDir()
	rows := synthetic.Rows(24*10, 6)
	for _, row := range rows {
		// The mean of these targets overflows to +Inf.
		row[synthetic.Target] = 1e308
	}
	data := filepath.Join(dir, "overflow.csv")
	require.NoError(t, synthetic.WriteCSV(data, rows))

	cfg := small(config.Default())
	cfg.Data.Path = data
	cfg.Output.OutputPath = filepath.Join(dir, "artifacts")

	_, err := pipeline.TrainAndExport(context.Background(), cfg)
	var modelErr *errors.ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, ensemble.GradientBoosting.ModelName(), modelErr.Kind)
	var unstable *errors.NumericalInstabilityError
	assert.ErrorAs(t, err, &unstable)
	assertEmpty(t, cfg.Output.OutputPath)
}

func assertEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestModelParams(t *testing.T) {
	cfg := config.Default()
	p := pipeline.ModelParams(cfg)
	assert.Equal(t, 300, p.NEstimators)
	assert.Equal(t, 7, p.MaxDepth)
	assert.Equal(t, 0.8, p.Subsample)
	assert.Equal(t, 0.1, p.LearningRate)
	assert.Equal(t, int64(42), p.RandomState)
	require.NoError(t, p.Validate())
}
