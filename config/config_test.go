package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

const validYAML = `data:
  path: "./data/raw/SeoulBikeData_cleaned_cols.csv"
  X: [hour, temp, humidity, wind_speed, visibility, solar_rad, rainfall, snowfall, seasons, holiday, day, month]
  y: rented_bike_count
  test_size: 0.2
  random_state: 42
model:
  n_estimators: 300
  max_depth: 7
  subsample: 0.8
  learning_rate: 0.1
output:
  output_path: "./artifacts/"
  model_filename: "GradientBoosting_2024-09-27_15-36-43.gob"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func requireConfigError(t *testing.T, err error, field string) {
	t.Helper()
	var cfgErr *errors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, field, cfgErr.Field)
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", validYAML))
	require.NoError(t, err)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"data.path", cfg.Data.Path, "./data/raw/SeoulBikeData_cleaned_cols.csv"},
		{"data.X length", len(cfg.Data.X), 12},
		{"data.X first", cfg.Data.X[0], "hour"},
		{"data.X last", cfg.Data.X[11], "month"},
		{"data.y", cfg.Data.Y, "rented_bike_count"},
		{"data.test_size", cfg.Data.TestSize, 0.2},
		{"data.random_state", cfg.Data.RandomState, int64(42)},
		{"model.kind default", cfg.Model.Kind, KindGradientBoosting},
		{"model.n_estimators", cfg.Model.NEstimators, 300},
		{"model.max_depth", cfg.Model.MaxDepth, 7},
		{"model.subsample", cfg.Model.Subsample, 0.8},
		{"model.learning_rate", cfg.Model.LearningRate, 0.1},
		{"preprocessing default scaling", cfg.Preprocessing.NumericScaling, "none"},
		{"preprocessing default unknown", cfg.Preprocessing.HandleUnknown, "error"},
		{"logging default level", cfg.Logging.Level, "info"},
		{"artifact path", cfg.Output.ArtifactPath(), filepath.Join("./artifacts/", "GradientBoosting_2024-09-27_15-36-43.gob")},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}
}

func TestLoadJSONWithLegacySectionNames(t *testing.T) {
	content := `{
  "data": {"path": "d.csv", "X": ["hour", "seasons"], "y": "rented_bike_count", "test_size": 0.25, "random_state": 7},
  "gradient_boosting": {"n_estimators": 10, "max_depth": 3, "subsample": 1.0, "learning_rate": 0.3},
  "output": {"output_path": "out", "xgb_path": "xgb_model/", "xgb_model": "XGBoost_2024-09-27_15-36-43.gob"}
}`
	cfg, err := Load(writeConfig(t, "config.json", content))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Model.NEstimators)
	assert.Equal(t, 3, cfg.Model.MaxDepth)
	assert.Equal(t, "XGBoost_2024-09-27_15-36-43.gob", cfg.Output.ModelFilename)
	assert.Equal(t, filepath.Join("out", "XGBoost_2024-09-27_15-36-43.gob"), cfg.Output.ArtifactPath(),
		"xgb_path is accepted but does not change where artifacts are read")
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("BIKESHARE_MODEL__N_ESTIMATORS", "25")
	t.Setenv("BIKESHARE_DATA__TEST_SIZE", "0.5")
	t.Setenv("BIKESHARE_DATA__X", "hour,temp")

	cfg, err := Load(writeConfig(t, "config.yaml", validYAML))
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Model.NEstimators)
	assert.Equal(t, 0.5, cfg.Data.TestSize)
	assert.Equal(t, []string{"hour", "temp"}, cfg.Data.X)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	content := validYAML + "  checkpoint_dir: \"ckpt/\"\n"
	_, err := Load(writeConfig(t, "config.yaml", content))
	requireConfigError(t, err, "output.checkpoint_dir")
}

func TestLoadIgnoresLegacyOutputDirectory(t *testing.T) {
	content := validYAML + "  xgb_path: \"xgb_model/\"\n"
	cfg, err := Load(writeConfig(t, "config.yaml", content))
	require.NoError(t, err)
	assert.Equal(t, "./artifacts/", cfg.Output.OutputPath)
	assert.Equal(t, filepath.Join("artifacts", "GradientBoosting_2024-09-27_15-36-43.gob"), cfg.Output.ArtifactPath())
}

func TestLoadRejectsMissingRequiredKey(t *testing.T) {
	content := `data:
  path: d.csv
  X: [hour]
  y: rented_bike_count
  test_size: 0.2
model:
  n_estimators: 1
  max_depth: 1
  subsample: 1
  learning_rate: 0.1
output:
  output_path: out
`
	_, err := Load(writeConfig(t, "config.yaml", content))
	requireConfigError(t, err, "data.random_state")
}

func TestLoadRejectsUnsupportedFormat(t *testing.T) {
	_, err := Load(writeConfig(t, "config.toml", "a = 1"))
	requireConfigError(t, err, "path")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty features", func(c *Config) { c.Data.X = nil }, "data.X"},
		{"duplicate feature", func(c *Config) { c.Data.X = []string{"hour", "hour"} }, "data.X"},
		{"target is feature", func(c *Config) { c.Data.Y = "hour" }, "data.y"},
		{"test size zero", func(c *Config) { c.Data.TestSize = 0 }, "data.test_size"},
		{"test size one", func(c *Config) { c.Data.TestSize = 1 }, "data.test_size"},
		{"unknown kind", func(c *Config) { c.Model.Kind = "xgboost" }, "model.kind"},
		{"zero estimators", func(c *Config) { c.Model.NEstimators = 0 }, "model.n_estimators"},
		{"zero depth", func(c *Config) { c.Model.MaxDepth = 0 }, "model.max_depth"},
		{"subsample above one", func(c *Config) { c.Model.Subsample = 1.5 }, "model.subsample"},
		{"negative learning rate", func(c *Config) { c.Model.LearningRate = -0.1 }, "model.learning_rate"},
		{"bad scaling", func(c *Config) { c.Preprocessing.NumericScaling = "minmax" }, "preprocessing.numeric_scaling"},
		{"bad unknown policy", func(c *Config) { c.Preprocessing.HandleUnknown = "drop" }, "preprocessing.handle_unknown"},
		{"missing output", func(c *Config) { c.Output.OutputPath = "" }, "output.output_path"},
		{"filename with directory", func(c *Config) { c.Output.ModelFilename = filepath.Join("a", "b.gob") }, "output.model_filename"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			requireConfigError(t, cfg.Validate(), tt.field)
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 12, len(cfg.Data.X))
	assert.Equal(t, int64(42), cfg.Data.RandomState)
	assert.Equal(t, 300, cfg.Model.NEstimators)
}

func TestAccessorsReturnCopies(t *testing.T) {
	cfg := Default()
	features := cfg.Data.Features()
	features[0] = "mutated"
	assert.Equal(t, "hour", cfg.Data.X[0])

	clone := cfg.Clone()
	clone.Data.X[0] = "mutated"
	clone.Model.NEstimators = 1
	assert.Equal(t, "hour", cfg.Data.X[0])
	assert.Equal(t, 300, cfg.Model.NEstimators)
}
