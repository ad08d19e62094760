package preprocessing

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/bikeshare/core/model"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

// StandardScaler standardises features to zero mean and unit variance using
// the population standard deviation. A feature with zero variance gets scale 1.
type StandardScaler struct {
	state *model.StateManager

	// Mean holds the per-feature mean.
	Mean []float64
	// Scale holds the per-feature standard deviation.
	Scale []float64
}

// NewStandardScaler creates an unfitted StandardScaler.
//
// Example:
//
//	scaler := preprocessing.NewStandardScaler()
//	err := scaler.Fit(X)
//	XScaled, err := scaler.Transform(X)
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{state: model.NewStateManager("StandardScaler")}
}

// Fit computes the mean and standard deviation of every column of X.
func (s *StandardScaler) Fit(X mat.Matrix) (err error) {
	defer errors.Recover(&err, "StandardScaler.Fit")
	if err := s.state.RequireUnfitted(); err != nil {
		return err
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewValueError("StandardScaler.Fit", "empty data")
	}

	mean := make([]float64, c)
	scale := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		m, std := stat.PopMeanStdDev(col, nil)
		if err := errors.CheckScalar("StandardScaler.Fit", m, j); err != nil {
			return err
		}
		mean[j] = m
		if std < 1e-8 {
			std = 1.0
		}
		scale[j] = std
	}

	s.Mean = mean
	s.Scale = scale
	return s.state.MarkFitted(c, r)
}

// Transform returns (X - Mean) / Scale.
func (s *StandardScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.state.RequireFitted("Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if c != len(s.Mean) {
		return nil, errors.NewDimensionError("StandardScaler.Transform", len(s.Mean), c, 1)
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return result, nil
}

// InverseTransform maps standardised values back to the original scale.
func (s *StandardScaler) InverseTransform(X mat.Matrix) (*mat.Dense, error) {
	if err := s.state.RequireFitted("InverseTransform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if c != len(s.Mean) {
		return nil, errors.NewDimensionError("StandardScaler.InverseTransform", len(s.Mean), c, 1)
	}

	result := mat.NewDense(r, c, nil)
	result.Apply(func(i, j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	}, X)
	return result, nil
}

// IsFitted reports whether Fit has succeeded.
func (s *StandardScaler) IsFitted() bool {
	return s.state.IsFitted()
}

func restoreStandardScaler(mean, scale []float64, nSamples int) *StandardScaler {
	return &StandardScaler{
		state: model.RestoreState("StandardScaler", model.ModelState{Fitted: true, NFeatures: len(mean), NSamples: nSamples}),
		Mean:  append([]float64(nil), mean...),
		Scale: append([]float64(nil), scale...),
	}
}
