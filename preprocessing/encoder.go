package preprocessing

import (
	"fmt"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/bikeshare/core/model"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

// UnknownPolicy decides what Transform does with a category not seen during Fit.
type UnknownPolicy string

const (
	// UnknownError fails Transform with a SchemaError naming the column.
	UnknownError UnknownPolicy = "error"
	// UnknownIgnore encodes the value as an all-zero indicator block.
	UnknownIgnore UnknownPolicy = "ignore"
)

// OneHotEncoder turns categorical string columns into 0/1 indicator columns,
// one per category, with categories in sorted order.
type OneHotEncoder struct {
	state *model.StateManager

	featureNames  []string
	handleUnknown UnknownPolicy

	categories    [][]string
	categoryToIdx []map[string]int
	nOutputs      int
}

// EncoderOption configures a OneHotEncoder.
type EncoderOption func(*OneHotEncoder)

// WithFeatureNames names the input columns for error messages and output names.
func WithFeatureNames(names []string) EncoderOption {
	return func(e *OneHotEncoder) {
		e.featureNames = append([]string(nil), names...)
	}
}

// WithEncoderUnknown sets the unknown-category policy. The default is UnknownError.
func WithEncoderUnknown(policy UnknownPolicy) EncoderOption {
	return func(e *OneHotEncoder) {
		e.handleUnknown = policy
	}
}

// NewOneHotEncoder creates an unfitted encoder.
//
//	encoder := preprocessing.NewOneHotEncoder(preprocessing.WithFeatureNames([]string{"seasons"}))
//	err := encoder.Fit([][]string{{"Winter"}, {"Summer"}})
//	encoded, err := encoder.Transform([][]string{{"Summer"}})
func NewOneHotEncoder(opts ...EncoderOption) *OneHotEncoder {
	e := &OneHotEncoder{
		state:         model.NewStateManager("OneHotEncoder"),
		handleUnknown: UnknownError,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fit learns the sorted category list of each column of data (n_samples × n_features).
func (e *OneHotEncoder) Fit(data [][]string) (err error) {
	defer errors.Recover(&err, "OneHotEncoder.Fit")
	if err := e.state.RequireUnfitted(); err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.NewValueError("OneHotEncoder.Fit", "empty data")
	}
	nFeatures := len(data[0])
	if nFeatures == 0 {
		return errors.NewValueError("OneHotEncoder.Fit", "no features")
	}
	for _, row := range data {
		if len(row) != nFeatures {
			return errors.NewDimensionError("OneHotEncoder.Fit", nFeatures, len(row), 1)
		}
	}
	if e.featureNames != nil && len(e.featureNames) != nFeatures {
		return errors.NewDimensionError("OneHotEncoder.Fit", len(e.featureNames), nFeatures, 1)
	}

	categories := make([][]string, nFeatures)
	for j := 0; j < nFeatures; j++ {
		seen := make(map[string]bool)
		for i := range data {
			seen[data[i][j]] = true
		}
		cats := make([]string, 0, len(seen))
		for c := range seen {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		categories[j] = cats
	}

	e.setCategories(categories)
	return e.state.MarkFitted(nFeatures, len(data))
}

func (e *OneHotEncoder) setCategories(categories [][]string) {
	e.categories = categories
	e.categoryToIdx = make([]map[string]int, len(categories))
	e.nOutputs = 0
	for j, cats := range categories {
		idx := make(map[string]int, len(cats))
		for k, c := range cats {
			idx[c] = k
		}
		e.categoryToIdx[j] = idx
		e.nOutputs += len(cats)
	}
}

// Transform encodes data with the categories learned during Fit.
func (e *OneHotEncoder) Transform(data [][]string) (_ *mat.Dense, err error) {
	defer errors.Recover(&err, "OneHotEncoder.Transform")
	if err := e.state.RequireFitted("Transform"); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.NewValueError("OneHotEncoder.Transform", "empty data")
	}

	nFeatures := len(e.categories)
	result := mat.NewDense(len(data), e.nOutputs, nil)
	for i, row := range data {
		if len(row) != nFeatures {
			return nil, errors.NewDimensionError("OneHotEncoder.Transform", nFeatures, len(row), 1)
		}
		offset := 0
		for j, category := range row {
			if idx, ok := e.categoryToIdx[j][category]; ok {
				result.Set(i, offset+idx, 1.0)
			} else if e.handleUnknown != UnknownIgnore {
				return nil, errors.NewSchemaError("OneHotEncoder.Transform", e.featureName(j),
					fmt.Sprintf("unknown category %s in row %d", strconv.Quote(category), i))
			}
			offset += len(e.categories[j])
		}
	}
	return result, nil
}

func (e *OneHotEncoder) featureName(j int) string {
	if j < len(e.featureNames) {
		return e.featureNames[j]
	}
	return fmt.Sprintf("x%d", j)
}

// FeatureNamesOut returns "<feature>_<category>" for every output column, or
// nil before Fit.
func (e *OneHotEncoder) FeatureNamesOut() []string {
	if !e.state.IsFitted() {
		return nil
	}
	names := make([]string, 0, e.nOutputs)
	for j, cats := range e.categories {
		for _, c := range cats {
			names = append(names, e.featureName(j)+"_"+c)
		}
	}
	return names
}

// Categories returns a copy of the learned categories per input column.
func (e *OneHotEncoder) Categories() [][]string {
	out := make([][]string, len(e.categories))
	for j, cats := range e.categories {
		out[j] = append([]string(nil), cats...)
	}
	return out
}

// NOutputs returns the number of indicator columns.
func (e *OneHotEncoder) NOutputs() int {
	return e.nOutputs
}

// IsFitted reports whether Fit has succeeded.
func (e *OneHotEncoder) IsFitted() bool {
	return e.state.IsFitted()
}
