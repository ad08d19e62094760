package ensemble

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/bikeshare/core/model"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/pkg/log"
	"github.com/YuminosukeSato/bikeshare/sklearn/tree"
)

// Gradient boosting tree settings. They match the XGBoost defaults for
// squared error.
const (
	boostingLambda         = 1.0
	boostingMinChildWeight = 1.0
)

// GradientBoostingRegressor fits an additive model of shrunken regression
// trees to squared-error residuals.
type GradientBoostingRegressor struct {
	state  *model.StateManager
	params Params

	baseScore   float64
	trees       []*tree.Tree
	importances []float64
}

// NewGradientBoostingRegressor creates an unfitted booster. params are assumed
// valid; use New to validate them.
func NewGradientBoostingRegressor(params Params) *GradientBoostingRegressor {
	return &GradientBoostingRegressor{
		state:  model.NewStateManager(GradientBoosting.ModelName()),
		params: params,
	}
}

// Kind returns GradientBoosting.
func (gb *GradientBoostingRegressor) Kind() Kind { return GradientBoosting }

// Params returns the hyperparameters.
func (gb *GradientBoostingRegressor) Params() Params { return gb.params }

// Fit runs NEstimators boosting rounds starting from the target mean. Each
// round fits a tree to the residuals of a row subsample drawn without
// replacement and adds it scaled by LearningRate.
func (gb *GradientBoostingRegressor) Fit(X mat.Matrix, y *mat.VecDense) (err error) {
	defer errors.Recover(&err, "GradientBoostingRegressor.Fit")
	if err := gb.state.RequireUnfitted(); err != nil {
		return err
	}
	if err := gb.params.Validate(); err != nil {
		return err
	}
	n, c, err := tree.CheckXY("GradientBoostingRegressor.Fit", X, y)
	if err != nil {
		return err
	}

	logger := log.GetLoggerWithName("ensemble").With(log.ModelNameKey, GradientBoosting.ModelName())
	start := time.Now()

	binner := tree.NewBinner(gb.params.MaxBin)
	if err := binner.Fit(X); err != nil {
		return err
	}
	binned, err := binner.Transform(X)
	if err != nil {
		return err
	}
	rows := featureRows(X)

	target := make([]float64, n)
	for i := range target {
		target[i] = y.AtVec(i)
	}
	base := stat.Mean(target, nil)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = base
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	for i := range hess {
		hess[i] = 1
	}

	builder := tree.NewBuilder(binned, tree.Params{
		MaxDepth:       gb.params.MaxDepth,
		MinChildWeight: boostingMinChildWeight,
		Lambda:         boostingLambda,
	})
	rng := rand.New(rand.NewSource(gb.params.RandomState))
	nSub := sampleSize(gb.params.Subsample, n)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}

	trees := make([]*tree.Tree, 0, gb.params.NEstimators)
	for round := 0; round < gb.params.NEstimators; round++ {
		for i := range grad {
			grad[i] = pred[i] - target[i]
		}
		sample := all
		if nSub < n {
			sample = rng.Perm(n)[:nSub]
			sort.Ints(sample)
		}

		t := builder.Build(grad, hess, sample)
		for k := range t.Nodes {
			if t.Nodes[k].IsLeaf() {
				t.Nodes[k].Value *= gb.params.LearningRate
			}
		}
		for i, row := range rows {
			pred[i] += t.Predict(row)
		}
		if err := errors.CheckNumericalStability("GradientBoostingRegressor.Fit", pred, round); err != nil {
			return err
		}
		trees = append(trees, t)

		if logger.Enabled(context.Background(), log.LevelDebug) && (round+1)%50 == 0 {
			logger.Debug("Boosting progress", log.IterationKey, round+1, log.LossKey, halfMSE(pred, target))
		}
	}

	gb.baseScore = base
	gb.trees = trees
	gb.importances = tree.NormalizedImportances(trees, c)
	logger.Debug("Boosting finished",
		log.SamplesKey, n,
		log.FeaturesKey, c,
		log.LossKey, halfMSE(pred, target),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return gb.state.MarkFitted(c, n)
}

func halfMSE(pred, target []float64) float64 {
	var s float64
	for i := range pred {
		d := pred[i] - target[i]
		s += d * d
	}
	return s / float64(2*len(pred))
}

// Predict returns base score plus the sum of the tree outputs for each row.
func (gb *GradientBoostingRegressor) Predict(X mat.Matrix) (*mat.VecDense, error) {
	if err := gb.state.RequireFitted("Predict"); err != nil {
		return nil, err
	}
	nFeatures, _ := gb.state.Dimensions()
	return tree.PredictRows("GradientBoostingRegressor.Predict", X, nFeatures, func(row []float64) float64 {
		out := gb.baseScore
		for _, t := range gb.trees {
			out += t.Predict(row)
		}
		return out
	})
}

// FeatureImportances returns total split gain per feature normalised to sum 1.
func (gb *GradientBoostingRegressor) FeatureImportances() ([]float64, error) {
	if err := gb.state.RequireFitted("FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), gb.importances...), nil
}

// NFeatures returns the number of columns seen during Fit.
func (gb *GradientBoostingRegressor) NFeatures() int {
	n, _ := gb.state.Dimensions()
	return n
}

// Spec returns the fitted state.
func (gb *GradientBoostingRegressor) Spec() (Spec, error) {
	spec, err := fittedSpec(gb.state, GradientBoosting, gb.params)
	if err != nil {
		return Spec{}, err
	}
	spec.BaseScore = gb.baseScore
	spec.Trees = copyTrees(gb.trees)
	return spec, nil
}
