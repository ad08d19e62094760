package model

import "gonum.org/v1/gonum/mat"

// Fitter is an estimator that learns from a feature matrix and a target vector.
type Fitter interface {
	Fit(X mat.Matrix, y *mat.VecDense) error
}

// Predictor produces one prediction per row of X.
type Predictor interface {
	Predict(X mat.Matrix) (*mat.VecDense, error)
}

// FeatureImporter exposes per-feature importance scores aligned with the
// columns the estimator was fitted on.
type FeatureImporter interface {
	FeatureImportances() ([]float64, error)
}

// Regressor combines the interfaces every regression estimator implements.
type Regressor interface {
	Fitter
	Predictor
	FeatureImporter

	// NFeatures returns the column count seen during Fit, or 0 before Fit.
	NFeatures() int
}
