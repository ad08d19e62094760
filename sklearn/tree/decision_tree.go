package tree

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/bikeshare/core/model"
	"github.com/YuminosukeSato/bikeshare/core/parallel"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

// predictParallelThreshold is the row count above which prediction fans out.
const predictParallelThreshold = 512

// DecisionTreeRegressor fits a single variance-reduction regression tree on
// histogram bins. Leaves predict the mean target of their rows.
type DecisionTreeRegressor struct {
	state *model.StateManager

	MaxDepth       int
	MinSamplesLeaf int
	MaxBin         int

	tree        *Tree
	importances []float64
}

// DecisionTreeRegressorOption configures a DecisionTreeRegressor.
type DecisionTreeRegressorOption func(*DecisionTreeRegressor)

// WithMaxDepth sets the maximum depth.
func WithMaxDepth(depth int) DecisionTreeRegressorOption {
	return func(dt *DecisionTreeRegressor) {
		dt.MaxDepth = depth
	}
}

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) DecisionTreeRegressorOption {
	return func(dt *DecisionTreeRegressor) {
		dt.MinSamplesLeaf = n
	}
}

// WithMaxBin sets the number of histogram bins per feature.
func WithMaxBin(n int) DecisionTreeRegressorOption {
	return func(dt *DecisionTreeRegressor) {
		dt.MaxBin = n
	}
}

// NewDecisionTreeRegressor creates an unfitted regressor. Defaults: MaxDepth 7,
// MinSamplesLeaf 1, MaxBin 256.
func NewDecisionTreeRegressor(opts ...DecisionTreeRegressorOption) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{
		state:          model.NewStateManager("DecisionTreeRegressor"),
		MaxDepth:       7,
		MinSamplesLeaf: 1,
		MaxBin:         MaxBins,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// Fit grows the tree on X and y.
func (dt *DecisionTreeRegressor) Fit(X mat.Matrix, y *mat.VecDense) (err error) {
	defer errors.Recover(&err, "DecisionTreeRegressor.Fit")
	if err := dt.state.RequireUnfitted(); err != nil {
		return err
	}
	if dt.MaxDepth < 1 {
		return errors.NewConfigError("model.max_depth", "must be >= 1", dt.MaxDepth)
	}
	if dt.MinSamplesLeaf < 1 {
		return errors.NewConfigError("min_samples_leaf", "must be >= 1", dt.MinSamplesLeaf)
	}
	r, c, err := CheckXY("DecisionTreeRegressor.Fit", X, y)
	if err != nil {
		return err
	}

	binner := NewBinner(dt.MaxBin)
	if err := binner.Fit(X); err != nil {
		return err
	}
	binned, err := binner.Transform(X)
	if err != nil {
		return err
	}

	grad := make([]float64, r)
	hess := make([]float64, r)
	rows := make([]int, r)
	for i := 0; i < r; i++ {
		grad[i] = -y.AtVec(i)
		hess[i] = 1
		rows[i] = i
	}

	builder := NewBuilder(binned, Params{
		MaxDepth:       dt.MaxDepth,
		MinChildWeight: float64(dt.MinSamplesLeaf),
	})
	t := builder.Build(grad, hess, rows)

	dt.tree = t
	dt.importances = NormalizedImportances([]*Tree{t}, c)
	return dt.state.MarkFitted(c, r)
}

// Predict returns one prediction per row of X.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (*mat.VecDense, error) {
	if err := dt.state.RequireFitted("Predict"); err != nil {
		return nil, err
	}
	nFeatures, _ := dt.state.Dimensions()
	return PredictRows("DecisionTreeRegressor.Predict", X, nFeatures, func(row []float64) float64 {
		return dt.tree.Predict(row)
	})
}

// FeatureImportances returns the normalised total split gain per feature.
func (dt *DecisionTreeRegressor) FeatureImportances() ([]float64, error) {
	if err := dt.state.RequireFitted("FeatureImportances"); err != nil {
		return nil, err
	}
	return append([]float64(nil), dt.importances...), nil
}

// NFeatures returns the number of columns seen during Fit.
func (dt *DecisionTreeRegressor) NFeatures() int {
	n, _ := dt.state.Dimensions()
	return n
}

// NSamples returns the number of rows seen during Fit.
func (dt *DecisionTreeRegressor) NSamples() int {
	_, n := dt.state.Dimensions()
	return n
}

// Tree returns the fitted tree, or nil before Fit.
func (dt *DecisionTreeRegressor) Tree() *Tree {
	return dt.tree
}

// RestoreDecisionTreeRegressor rebuilds a fitted regressor from a stored tree.
func RestoreDecisionTreeRegressor(t *Tree, nFeatures, nSamples, maxDepth int) (*DecisionTreeRegressor, error) {
	if err := t.Validate(nFeatures); err != nil {
		return nil, err
	}
	dt := NewDecisionTreeRegressor(WithMaxDepth(maxDepth))
	dt.tree = t
	dt.importances = NormalizedImportances([]*Tree{t}, nFeatures)
	dt.state = model.RestoreState("DecisionTreeRegressor", model.ModelState{Fitted: true, NFeatures: nFeatures, NSamples: nSamples})
	return dt, nil
}

// NormalizedImportances sums split gains per feature over trees and scales
// them to sum to 1. It returns all zeros when no tree split.
func NormalizedImportances(trees []*Tree, nFeatures int) []float64 {
	gains := make([]float64, nFeatures)
	for _, t := range trees {
		t.AccumulateGain(gains)
	}
	var total float64
	for _, g := range gains {
		total += g
	}
	if total > 0 {
		for j := range gains {
			gains[j] /= total
		}
	}
	return gains
}

// PredictRows evaluates fn on every row of X in parallel and collects the
// results in row order.
func PredictRows(op string, X mat.Matrix, nFeatures int, fn func(row []float64) float64) (_ *mat.VecDense, err error) {
	defer errors.Recover(&err, op)
	r, c := X.Dims()
	if c != nFeatures {
		return nil, errors.NewDimensionError(op, nFeatures, c, 1)
	}
	if r == 0 {
		return nil, errors.NewValueError(op, "empty data")
	}

	out := make([]float64, r)
	parallel.ParallelizeWithThreshold(r, predictParallelThreshold, func(start, end int) {
		row := make([]float64, c)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			out[i] = fn(row)
		}
	})
	return mat.NewVecDense(r, out), nil
}

// CheckXY validates a training matrix and target: non-empty, matching row
// counts and a finite target.
func CheckXY(op string, X mat.Matrix, y *mat.VecDense) (rows, cols int, err error) {
	rows, cols = X.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, errors.NewValueError(op, "empty data")
	}
	if y == nil {
		return 0, 0, errors.NewValueError(op, "target is required")
	}
	if y.Len() != rows {
		return 0, 0, errors.NewDimensionError(op, rows, y.Len(), 0)
	}
	target := make([]float64, rows)
	for i := range target {
		target[i] = y.AtVec(i)
	}
	if err := errors.CheckNumericalStability(op, target, 0); err != nil {
		return 0, 0, err
	}
	return rows, cols, nil
}
