// Package config loads and validates the training and serving configuration.
//
// A configuration file is YAML or JSON; any key may be overridden from the
// environment with the BIKESHARE_ prefix and "__" as the nesting separator,
// e.g. BIKESHARE_MODEL__N_ESTIMATORS=500 or BIKESHARE_DATA__X=hour,temp.
package config

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "BIKESHARE_"

// Model kinds accepted in model.kind.
const (
	KindGradientBoosting = "gradient_boosting"
	KindDecisionTree     = "decision_tree"
	KindRandomForest     = "random_forest"
)

// Config is the full pipeline configuration.
type Config struct {
	Data          DataConfig          `json:"data"`
	Model         ModelConfig         `json:"model"`
	Preprocessing PreprocessingConfig `json:"preprocessing"`
	Output        OutputConfig        `json:"output"`
	Logging       LoggingConfig       `json:"logging"`
}

// DataConfig locates the dataset and names its columns.
type DataConfig struct {
	Path        string   `json:"path"`
	X           []string `json:"X"`
	Y           string   `json:"y"`
	TestSize    float64  `json:"test_size"`
	RandomState int64    `json:"random_state"`
}

// ModelConfig holds the regressor hyperparameters.
type ModelConfig struct {
	Kind         string  `json:"kind"`
	NEstimators  int     `json:"n_estimators"`
	MaxDepth     int     `json:"max_depth"`
	Subsample    float64 `json:"subsample"`
	LearningRate float64 `json:"learning_rate"`
}

// PreprocessingConfig tunes the feature transformer.
type PreprocessingConfig struct {
	// NumericScaling is "none" (passthrough) or "standard".
	NumericScaling string `json:"numeric_scaling"`
	// HandleUnknown is "error" or "ignore" for categories unseen at fit time.
	HandleUnknown string `json:"handle_unknown"`
}

// OutputConfig says where artifacts and metrics go.
type OutputConfig struct {
	OutputPath string `json:"output_path"`
	// ModelFilename selects the artifact to serve. Empty means the newest one.
	ModelFilename string `json:"model_filename"`
}

// LoggingConfig configures pkg/log.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// knownKeys lists every accepted flattened key. Lists appear as a single key.
var knownKeys = map[string]bool{
	"data.path":                     true,
	"data.X":                        true,
	"data.y":                        true,
	"data.test_size":                true,
	"data.random_state":             true,
	"model.kind":                    true,
	"model.n_estimators":            true,
	"model.max_depth":               true,
	"model.subsample":               true,
	"model.learning_rate":           true,
	"preprocessing.numeric_scaling": true,
	"preprocessing.handle_unknown":  true,
	"output.output_path":            true,
	"output.model_filename":         true,
	"logging.level":                 true,
	"logging.format":                true,
}

// requiredKeys must be present after merging file and environment.
var requiredKeys = []string{
	"data.path",
	"data.X",
	"data.y",
	"data.test_size",
	"data.random_state",
	"model.n_estimators",
	"model.max_depth",
	"model.subsample",
	"model.learning_rate",
	"output.output_path",
}

// Load reads the configuration file at path, applies environment overrides and
// validates the result.
//
// The format follows the extension (.yaml, .yml or .json). The legacy
// gradient_boosting section and output.xgb_model key are accepted as model
// and output.model_filename, and output.xgb_path is ignored. Any other
// unknown key is a ConfigError.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	var parser koanf.Parser
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, errors.NewConfigError("path", "unsupported config format", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "load environment overrides")
	}

	if err := normaliseAliases(k); err != nil {
		return nil, err
	}
	if err := checkKeys(k); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, errors.NewConfigError("", "cannot decode configuration: "+err.Error(), nil)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps BIKESHARE_MODEL__N_ESTIMATORS to model.n_estimators.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	s = strings.ReplaceAll(s, "__", ".")
	if s == "data.x" {
		return "data.X"
	}
	return s
}

// normaliseAliases folds the legacy section and key names into the canonical ones.
func normaliseAliases(k *koanf.Koanf) error {
	if k.Exists("gradient_boosting") {
		if k.Exists("model") {
			return errors.NewConfigError("gradient_boosting", "cannot be combined with model", nil)
		}
		legacy := k.Cut("gradient_boosting")
		k.Delete("gradient_boosting")
		if err := k.MergeAt(legacy, "model"); err != nil {
			return errors.Wrap(err, "merge gradient_boosting section")
		}
	}
	// Legacy per-model subdirectory. Artifacts are read from output_path
	// directly, so it has no effect.
	k.Delete("output.xgb_path")
	if k.Exists("output.xgb_model") {
		if k.Exists("output.model_filename") {
			return errors.NewConfigError("output.xgb_model", "cannot be combined with output.model_filename", nil)
		}
		name := k.String("output.xgb_model")
		k.Delete("output.xgb_model")
		if err := k.Set("output.model_filename", name); err != nil {
			return errors.Wrap(err, "set output.model_filename")
		}
	}
	return nil
}

func checkKeys(k *koanf.Koanf) error {
	var unknown []string
	for _, key := range k.Keys() {
		if !knownKeys[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return errors.NewConfigError(unknown[0], "unknown configuration key", nil)
	}
	for _, key := range requiredKeys {
		if !k.Exists(key) {
			return errors.NewConfigError(key, "is required", nil)
		}
	}
	return nil
}

// SetDefaults fills the optional settings.
func (c *Config) SetDefaults() {
	if c.Model.Kind == "" {
		c.Model.Kind = KindGradientBoosting
	}
	if c.Preprocessing.NumericScaling == "" {
		c.Preprocessing.NumericScaling = "none"
	}
	if c.Preprocessing.HandleUnknown == "" {
		c.Preprocessing.HandleUnknown = "error"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks every value. The first violation is returned as a ConfigError.
func (c *Config) Validate() error {
	if err := c.Data.Validate(); err != nil {
		return err
	}
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if err := c.Preprocessing.Validate(); err != nil {
		return err
	}
	if c.Output.OutputPath == "" {
		return errors.NewConfigError("output.output_path", "is required", nil)
	}
	if strings.ContainsRune(c.Output.ModelFilename, filepath.Separator) {
		return errors.NewConfigError("output.model_filename", "must be a file name, not a path", c.Output.ModelFilename)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.NewConfigError("logging.level", "must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return errors.NewConfigError("logging.format", "must be json or console", c.Logging.Format)
	}
	return nil
}

// Validate checks the data section.
func (d DataConfig) Validate() error {
	if d.Path == "" {
		return errors.NewConfigError("data.path", "is required", nil)
	}
	if len(d.X) == 0 {
		return errors.NewConfigError("data.X", "must list at least one feature column", nil)
	}
	seen := make(map[string]bool, len(d.X))
	for _, col := range d.X {
		if col == "" {
			return errors.NewConfigError("data.X", "column names must not be empty", nil)
		}
		if seen[col] {
			return errors.NewConfigError("data.X", "duplicate feature column", col)
		}
		seen[col] = true
	}
	if d.Y == "" {
		return errors.NewConfigError("data.y", "is required", nil)
	}
	if seen[d.Y] {
		return errors.NewConfigError("data.y", "target must not also be a feature", d.Y)
	}
	if !(d.TestSize > 0 && d.TestSize < 1) {
		return errors.NewConfigError("data.test_size", "must be in (0, 1)", d.TestSize)
	}
	return nil
}

// Validate checks the model section.
func (m ModelConfig) Validate() error {
	switch m.Kind {
	case KindGradientBoosting, KindDecisionTree, KindRandomForest:
	default:
		return errors.NewConfigError("model.kind", "must be gradient_boosting, decision_tree or random_forest", m.Kind)
	}
	if m.NEstimators < 1 {
		return errors.NewConfigError("model.n_estimators", "must be >= 1", m.NEstimators)
	}
	if m.MaxDepth < 1 {
		return errors.NewConfigError("model.max_depth", "must be >= 1", m.MaxDepth)
	}
	if !(m.Subsample > 0 && m.Subsample <= 1) {
		return errors.NewConfigError("model.subsample", "must be in (0, 1]", m.Subsample)
	}
	if !(m.LearningRate > 0) {
		return errors.NewConfigError("model.learning_rate", "must be > 0", m.LearningRate)
	}
	return nil
}

// Validate checks the preprocessing section.
func (p PreprocessingConfig) Validate() error {
	switch p.NumericScaling {
	case "none", "standard":
	default:
		return errors.NewConfigError("preprocessing.numeric_scaling", "must be none or standard", p.NumericScaling)
	}
	switch p.HandleUnknown {
	case "error", "ignore":
	default:
		return errors.NewConfigError("preprocessing.handle_unknown", "must be error or ignore", p.HandleUnknown)
	}
	return nil
}

// Features returns a copy of the configured feature columns.
func (d DataConfig) Features() []string {
	out := make([]string, len(d.X))
	copy(out, d.X)
	return out
}

// ArtifactPath returns output_path/model_filename, or "" when no file is pinned.
func (o OutputConfig) ArtifactPath() string {
	if o.ModelFilename == "" {
		return ""
	}
	return filepath.Join(o.OutputPath, o.ModelFilename)
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Data.X = c.Data.Features()
	return &out
}

// Default returns the configuration the bikeshare project ships with.
func Default() *Config {
	cfg := &Config{
		Data: DataConfig{
			Path: "./data/raw/SeoulBikeData_cleaned_cols.csv",
			X: []string{
				"hour", "temp",
				"humidity", "wind_speed",
				"visibility", "solar_rad",
				"rainfall", "snowfall", "seasons",
				"holiday", "day", "month",
			},
			Y:           "rented_bike_count",
			TestSize:    0.2,
			RandomState: 42,
		},
		Model: ModelConfig{
			Kind:         KindGradientBoosting,
			NEstimators:  300,
			MaxDepth:     7,
			Subsample:    0.8,
			LearningRate: 0.1,
		},
		Output: OutputConfig{
			OutputPath: "./artifacts/",
		},
	}
	cfg.SetDefaults()
	return cfg
}
