package ensemble

import (
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/bikeshare/core/model"
	"github.com/YuminosukeSato/bikeshare/core/parallel"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/pkg/log"
	"github.com/YuminosukeSato/bikeshare/sklearn/tree"
)

// RandomForestRegressor averages variance-reduction trees grown on bootstrap
// samples.
type RandomForestRegressor struct {
	state  *model.StateManager
	params Params

	// Workers caps the number of trees grown concurrently. Zero means one per
	// CPU core. The fitted model does not depend on it.
	Workers int

	trees       []*tree.Tree
	importances []float64
}

// NewRandomForestRegressor creates an unfitted forest. params are assumed
// valid; use New to validate them.
func NewRandomForestRegressor(params Params) *RandomForestRegressor {
	return &RandomForestRegressor{
		state:  model.NewStateManager(RandomForest.ModelName()),
		params: params,
	}
}

// Kind returns RandomForest.
func (rf *RandomForestRegressor) Kind() Kind { return RandomForest }

// Params returns the hyperparameters.
func (rf *RandomForestRegressor) Params() Params { return rf.params }

// Fit grows NEstimators trees. Tree i draws round(Subsample*n) rows with
// replacement from a generator seeded with RandomState+i, so the forest is the
// same however the trees are scheduled.
func (rf *RandomForestRegressor) Fit(X mat.Matrix, y *mat.VecDense) (err error) {
	defer errors.Recover(&err, "RandomForestRegressor.Fit")
	if err := rf.state.RequireUnfitted(); err != nil {
		return err
	}
	if err := rf.params.Validate(); err != nil {
		return err
	}
	n, c, err := tree.CheckXY("RandomForestRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	start := time.Now()

	binner := tree.NewBinner(rf.params.MaxBin)
	if err := binner.Fit(X); err != nil {
		return err
	}
	binned, err := binner.Transform(X)
	if err != nil {
		return err
	}

	grad := make([]float64, n)
	hess := make([]float64, n)
	for i := 0; i < n; i++ {
		grad[i] = -y.AtVec(i)
		hess[i] = 1
	}
	nSub := sampleSize(rf.params.Subsample, n)
	treeParams := tree.Params{MaxDepth: rf.params.MaxDepth, MinChildWeight: 1}

	trees := make([]*tree.Tree, rf.params.NEstimators)
	err = parallel.ForEach(len(trees), rf.Workers, func(i int) (err error) {
		defer errors.Recover(&err, "RandomForestRegressor.Fit")
		rng := rand.New(rand.NewSource(rf.params.RandomState + int64(i)))
		sample := make([]int, nSub)
		for k := range sample {
			sample[k] = rng.Intn(n)
		}
		trees[i] = tree.NewBuilder(binned, treeParams).Build(grad, hess, sample)
		return nil
	})
	if err != nil {
		return err
	}

	rf.trees = trees
	rf.importances = tree.NormalizedImportances(trees, c)
	log.GetLoggerWithName("ensemble").Debug("Forest grown",
		log.ModelNameKey, RandomForest.ModelName(),
		log.SamplesKey, n,
		log.FeaturesKey, c,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return rf.state.MarkFitted(c, n)
}

// Predict returns the mean tree output for each row.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (*mat.VecDense, error) {
	if err := rf.state.RequireFitted("Predict"); err != nil {
		return nil, err
	}
	nFeatures, _ := rf.state.Dimensions()
	scale := 1 / float64(len(rf.trees))
	return tree.PredictRows("RandomForestRegressor.Predict", X, nFeatures, func(row []float64) float64 {
		var sum float64
		for _, t := range rf.trees {
			sum += t.Predict(row)
		}
		return sum * scale
	})
}

// FeatureImportances returns total split gain per feature normalised to sum 1.
func (rf *RandomForestRegressor) FeatureImportances() ([]float64, error) {
	if err := rf.state.RequireFitted("FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), rf.importances...), nil
}

// NFeatures returns the number of columns seen during Fit.
func (rf *RandomForestRegressor) NFeatures() int {
	n, _ := rf.state.Dimensions()
	return n
}

// Spec returns the fitted state.
func (rf *RandomForestRegressor) Spec() (Spec, error) {
	spec, err := fittedSpec(rf.state, RandomForest, rf.params)
	if err != nil {
		return Spec{}, err
	}
	spec.Trees = copyTrees(rf.trees)
	return spec, nil
}
