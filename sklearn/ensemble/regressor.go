package ensemble

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/bikeshare/core/model"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/sklearn/tree"
)

// Regressor is the capability set of every trainable model variant.
type Regressor interface {
	model.Regressor

	// Kind returns the variant.
	Kind() Kind
	// Spec returns the serialisable state of a fitted model.
	Spec() (Spec, error)
}

// Spec is the serialisable form of a fitted Regressor. Tree leaf values already
// include any shrinkage, so a prediction is BaseScore plus the sum (gradient
// boosting) or mean (random forest) of the tree outputs.
type Spec struct {
	Kind      Kind
	Params    Params
	BaseScore float64
	Trees     []tree.Tree
	NFeatures int
	NSamples  int
}

// New creates an unfitted regressor of the given kind.
//
// Example:
//
//	params := ensemble.DefaultParams()
//	params.NEstimators = 100
//	m, err := ensemble.New(ensemble.RandomForest, params)
//	if err != nil {
//	    return err
//	}
//	if err := m.Fit(X, y); err != nil {
//	    return err
//	}
//	importances, _ := m.FeatureImportances()
func New(kind Kind, params Params) (Regressor, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	switch kind {
	case DecisionTree:
		return NewDecisionTreeRegressor(params), nil
	case RandomForest:
		return NewRandomForestRegressor(params), nil
	default:
		return NewGradientBoostingRegressor(params), nil
	}
}

// FromSpec rebuilds a fitted regressor. A spec that could not have been
// produced by Spec yields a ValueError.
func FromSpec(spec Spec) (Regressor, error) {
	if _, err := ParseKind(string(spec.Kind)); err != nil {
		return nil, err
	}
	if err := spec.Params.Validate(); err != nil {
		return nil, err
	}
	if spec.NFeatures < 1 {
		return nil, errors.NewValueError("ensemble.FromSpec", fmt.Sprintf("invalid feature count %d", spec.NFeatures))
	}
	if len(spec.Trees) == 0 {
		return nil, errors.NewValueError("ensemble.FromSpec", "model has no trees")
	}
	if err := errors.CheckScalar("ensemble.FromSpec", spec.BaseScore, 0); err != nil {
		return nil, err
	}
	trees := make([]*tree.Tree, len(spec.Trees))
	for i := range spec.Trees {
		t := &tree.Tree{Nodes: append([]tree.Node(nil), spec.Trees[i].Nodes...)}
		if err := t.Validate(spec.NFeatures); err != nil {
			return nil, errors.Wrapf(err, "tree %d", i)
		}
		trees[i] = t
	}
	state := model.ModelState{Fitted: true, NFeatures: spec.NFeatures, NSamples: spec.NSamples}

	switch spec.Kind {
	case DecisionTree:
		if len(trees) != 1 {
			return nil, errors.NewValueError("ensemble.FromSpec", fmt.Sprintf("decision tree spec has %d trees", len(trees)))
		}
		dt, err := tree.RestoreDecisionTreeRegressor(trees[0], spec.NFeatures, spec.NSamples, spec.Params.MaxDepth)
		if err != nil {
			return nil, err
		}
		return &DecisionTreeRegressor{params: spec.Params, dt: dt}, nil
	case RandomForest:
		rf := NewRandomForestRegressor(spec.Params)
		rf.trees = trees
		rf.importances = tree.NormalizedImportances(trees, spec.NFeatures)
		rf.state = model.RestoreState(rf.state.Name(), state)
		return rf, nil
	default:
		gb := NewGradientBoostingRegressor(spec.Params)
		gb.baseScore = spec.BaseScore
		gb.trees = trees
		gb.importances = tree.NormalizedImportances(trees, spec.NFeatures)
		gb.state = model.RestoreState(gb.state.Name(), state)
		return gb, nil
	}
}

func copyTrees(trees []*tree.Tree) []tree.Tree {
	out := make([]tree.Tree, len(trees))
	for i, t := range trees {
		out[i] = tree.Tree{Nodes: append([]tree.Node(nil), t.Nodes...)}
	}
	return out
}

// fittedSpec fills the fields common to every variant.
func fittedSpec(state *model.StateManager, kind Kind, params Params) (Spec, error) {
	if err := state.RequireFitted("Spec"); err != nil {
		return Spec{}, err
	}
	nFeatures, nSamples := state.Dimensions()
	return Spec{Kind: kind, Params: params, NFeatures: nFeatures, NSamples: nSamples}, nil
}

// featureRows copies X into one slice per row.
func featureRows(X mat.Matrix) [][]float64 {
	r, c := X.Dims()
	data := make([]float64, r*c)
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		rows[i] = data[i*c : (i+1)*c : (i+1)*c]
		mat.Row(rows[i], i, X)
	}
	return rows
}
