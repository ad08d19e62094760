package ensemble

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/sklearn/tree"
)

// DecisionTreeRegressor adapts tree.DecisionTreeRegressor to Regressor.
type DecisionTreeRegressor struct {
	params Params
	dt     *tree.DecisionTreeRegressor
}

// NewDecisionTreeRegressor creates an unfitted single tree using MaxDepth and
// MaxBin from params.
func NewDecisionTreeRegressor(params Params) *DecisionTreeRegressor {
	return &DecisionTreeRegressor{
		params: params,
		dt: tree.NewDecisionTreeRegressor(
			tree.WithMaxDepth(params.MaxDepth),
			tree.WithMaxBin(params.MaxBin),
		),
	}
}

func (d *DecisionTreeRegressor) Kind() Kind     { return DecisionTree }
func (d *DecisionTreeRegressor) Params() Params { return d.params }
func (d *DecisionTreeRegressor) NFeatures() int { return d.dt.NFeatures() }
func (d *DecisionTreeRegressor) Fit(X mat.Matrix, y *mat.VecDense) error {
	return d.dt.Fit(X, y)
}
func (d *DecisionTreeRegressor) Predict(X mat.Matrix) (*mat.VecDense, error) {
	return d.dt.Predict(X)
}
func (d *DecisionTreeRegressor) FeatureImportances() ([]float64, error) {
	return d.dt.FeatureImportances()
}

// Spec returns the fitted state.
func (d *DecisionTreeRegressor) Spec() (Spec, error) {
	if d.dt.Tree() == nil {
		return Spec{}, errors.NewNotFittedError("DecisionTreeRegressor", "Spec")
	}
	return Spec{
		Kind:      DecisionTree,
		Params:    d.params,
		Trees:     copyTrees([]*tree.Tree{d.dt.Tree()}),
		NFeatures: d.dt.NFeatures(),
		NSamples:  d.dt.NSamples(),
	}, nil
}
