// Package ensemble provides the regressors the pipeline trains: gradient
// boosted trees, a random forest and a single decision tree, all grown with
// the histogram builder in package tree and all persisted through Spec.
package ensemble

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/sklearn/tree"
)

// Kind selects a regressor variant.
type Kind string

const (
	GradientBoosting Kind = "gradient_boosting"
	DecisionTree     Kind = "decision_tree"
	RandomForest     Kind = "random_forest"
)

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case GradientBoosting, DecisionTree, RandomForest:
		return k, nil
	}
	return "", errors.NewConfigError("model.kind", "unknown model kind", s)
}

// ModelName returns the name used in artifact and metrics file names.
func (k Kind) ModelName() string {
	switch k {
	case GradientBoosting:
		return "GradientBoosting"
	case DecisionTree:
		return "DecisionTree"
	case RandomForest:
		return "RandomForest"
	default:
		return string(k)
	}
}

// KindFromModelName is the inverse of Kind.ModelName.
func KindFromModelName(name string) (Kind, bool) {
	for _, k := range []Kind{GradientBoosting, DecisionTree, RandomForest} {
		if k.ModelName() == name {
			return k, true
		}
	}
	return "", false
}

// Params are the hyperparameters shared by every variant. Fields a variant
// does not use are ignored: a decision tree ignores NEstimators, Subsample and
// LearningRate, a random forest ignores LearningRate.
type Params struct {
	NEstimators  int
	MaxDepth     int
	Subsample    float64
	LearningRate float64
	RandomState  int64
	MaxBin       int
}

// DefaultParams returns the hyperparameters the project trains with.
func DefaultParams() Params {
	return Params{
		NEstimators:  300,
		MaxDepth:     7,
		Subsample:    0.8,
		LearningRate: 0.1,
		RandomState:  42,
		MaxBin:       tree.MaxBins,
	}
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (p Params) MarshalZerologObject(e *zerolog.Event) {
	e.Int("n_estimators", p.NEstimators).
		Int("max_depth", p.MaxDepth).
		Float64("subsample", p.Subsample).
		Float64("learning_rate", p.LearningRate).
		Int64("random_state", p.RandomState).
		Int("max_bin", p.MaxBin)
}

// Validate reports the first invalid hyperparameter as a ConfigError.
func (p Params) Validate() error {
	if p.NEstimators < 1 {
		return errors.NewConfigError("model.n_estimators", "must be >= 1", p.NEstimators)
	}
	if p.MaxDepth < 1 {
		return errors.NewConfigError("model.max_depth", "must be >= 1", p.MaxDepth)
	}
	if !(p.Subsample > 0 && p.Subsample <= 1) {
		return errors.NewConfigError("model.subsample", "must be in (0, 1]", p.Subsample)
	}
	if !(p.LearningRate > 0) || math.IsInf(p.LearningRate, 0) {
		return errors.NewConfigError("model.learning_rate", "must be > 0", p.LearningRate)
	}
	if p.MaxBin < 2 || p.MaxBin > tree.MaxBins {
		return errors.NewConfigError("model.max_bin", "must be in [2, 256]", p.MaxBin)
	}
	return nil
}

// sampleSize is round(subsample*n), at least 1.
func sampleSize(subsample float64, n int) int {
	return max(1, int(math.Round(subsample*float64(n))))
}
