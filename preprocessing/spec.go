package preprocessing

import (
	"fmt"

	"github.com/YuminosukeSato/bikeshare/core/model"
	"github.com/YuminosukeSato/bikeshare/dataset"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/pkg/log"
)

// ColumnTransformerSpec is the serialisable state of a fitted ColumnTransformer.
type ColumnTransformerSpec struct {
	Columns        []string
	Kinds          []dataset.Kind
	NumericScaling Scaling
	HandleUnknown  UnknownPolicy
	// Mean and Scale are set when NumericScaling is ScalingStandard.
	Mean  []float64
	Scale []float64
	// Categories holds the sorted categories of each categorical column, in
	// configured order.
	Categories [][]string
	NSamples   int
}

// Spec returns the fitted state for persistence.
func (ct *ColumnTransformer) Spec() (ColumnTransformerSpec, error) {
	if err := ct.state.RequireFitted("Spec"); err != nil {
		return ColumnTransformerSpec{}, err
	}
	_, nSamples := ct.state.Dimensions()
	spec := ColumnTransformerSpec{
		Columns:        append([]string(nil), ct.columns...),
		Kinds:          append([]dataset.Kind(nil), ct.kinds...),
		NumericScaling: ct.scaling,
		HandleUnknown:  ct.handleUnknown,
		NSamples:       nSamples,
	}
	if ct.scaler != nil {
		spec.Mean = append([]float64(nil), ct.scaler.Mean...)
		spec.Scale = append([]float64(nil), ct.scaler.Scale...)
	}
	if ct.encoder != nil {
		spec.Categories = ct.encoder.Categories()
	}
	return spec, nil
}

// ColumnTransformerFromSpec rebuilds a fitted ColumnTransformer. It returns a
// ValueError when the spec is internally inconsistent.
func ColumnTransformerFromSpec(spec ColumnTransformerSpec) (*ColumnTransformer, error) {
	const op = "ColumnTransformerFromSpec"
	if err := validateSettings(spec.Columns, spec.NumericScaling, spec.HandleUnknown); err != nil {
		return nil, errors.NewValueError(op, err.Error())
	}
	if len(spec.Kinds) != len(spec.Columns) {
		return nil, errors.NewValueError(op, fmt.Sprintf("%d kinds for %d columns", len(spec.Kinds), len(spec.Columns)))
	}

	var numeric, categorical []string
	for j, k := range spec.Kinds {
		switch k {
		case dataset.Numeric:
			numeric = append(numeric, spec.Columns[j])
		case dataset.Categorical:
			categorical = append(categorical, spec.Columns[j])
		default:
			return nil, errors.NewValueError(op, fmt.Sprintf("column %s has unknown kind %d", spec.Columns[j], k))
		}
	}

	ct := &ColumnTransformer{
		logger:        log.GetLoggerWithName("preprocessing"),
		columns:       append([]string(nil), spec.Columns...),
		scaling:       spec.NumericScaling,
		handleUnknown: spec.HandleUnknown,
		kinds:         append([]dataset.Kind(nil), spec.Kinds...),
		numeric:       numeric,
		categorical:   categorical,
	}

	if spec.NumericScaling == ScalingStandard && len(numeric) > 0 {
		if len(spec.Mean) != len(numeric) || len(spec.Scale) != len(numeric) {
			return nil, errors.NewValueError(op, "scaling parameters do not match numeric columns")
		}
		for _, s := range spec.Scale {
			if !(s > 0) {
				return nil, errors.NewValueError(op, "scale must be positive")
			}
		}
		ct.scaler = restoreStandardScaler(spec.Mean, spec.Scale, spec.NSamples)
	}

	if len(spec.Categories) != len(categorical) {
		return nil, errors.NewValueError(op, fmt.Sprintf("%d category lists for %d categorical columns", len(spec.Categories), len(categorical)))
	}
	if len(categorical) > 0 {
		for j, cats := range spec.Categories {
			if len(cats) == 0 {
				return nil, errors.NewValueError(op, "column "+categorical[j]+" has no categories")
			}
		}
		ct.encoder = restoreOneHotEncoder(categorical, spec.Categories, spec.HandleUnknown, spec.NSamples)
	}

	ct.state = model.RestoreState("ColumnTransformer", model.ModelState{
		Fitted:    true,
		NFeatures: ct.NOutputs(),
		NSamples:  spec.NSamples,
	})
	return ct, nil
}

func restoreOneHotEncoder(names []string, categories [][]string, policy UnknownPolicy, nSamples int) *OneHotEncoder {
	e := NewOneHotEncoder(WithFeatureNames(names), WithEncoderUnknown(policy))
	cats := make([][]string, len(categories))
	for j, c := range categories {
		cats[j] = append([]string(nil), c...)
	}
	e.setCategories(cats)
	e.state = model.RestoreState("OneHotEncoder", model.ModelState{Fitted: true, NFeatures: len(names), NSamples: nSamples})
	return e
}
