// Package preprocessing turns dataset columns into the numeric feature matrix
// the regressors are trained on.
//
// A ColumnTransformer learns, from the training split only, which configured
// columns are numeric and which are categorical, the optional scaling of the
// numeric ones and the sorted categories of the categorical ones. It then
// produces the same matrix layout for any later dataset, in the training
// process or in a separately started serving process:
//
//	[numeric columns in configured order | one-hot block per categorical column]
package preprocessing

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/bikeshare/core/model"
	"github.com/YuminosukeSato/bikeshare/dataset"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/pkg/log"
)

// Scaling selects how numeric columns are transformed.
type Scaling string

const (
	// ScalingNone passes numeric columns through unchanged.
	ScalingNone Scaling = "none"
	// ScalingStandard standardises numeric columns with a StandardScaler.
	ScalingStandard Scaling = "standard"
)

// ColumnTransformer maps the configured input columns to a dense feature matrix.
// It is immutable after Fit and safe for concurrent Transform calls.
type ColumnTransformer struct {
	state  *model.StateManager
	logger log.Logger

	columns       []string
	scaling       Scaling
	handleUnknown UnknownPolicy

	kinds       []dataset.Kind
	numeric     []string
	categorical []string
	scaler      *StandardScaler
	encoder     *OneHotEncoder
}

// Option configures a ColumnTransformer.
type Option func(*ColumnTransformer)

// WithNumericScaling sets the numeric column treatment. The default is ScalingNone.
func WithNumericScaling(s Scaling) Option {
	return func(ct *ColumnTransformer) {
		ct.scaling = s
	}
}

// WithHandleUnknown sets the unknown-category policy. The default is UnknownError.
func WithHandleUnknown(p UnknownPolicy) Option {
	return func(ct *ColumnTransformer) {
		ct.handleUnknown = p
	}
}

// WithLogger overrides the logger.
func WithLogger(l log.Logger) Option {
	return func(ct *ColumnTransformer) {
		ct.logger = l
	}
}

// NewColumnTransformer creates an unfitted transformer over columns, in order.
func NewColumnTransformer(columns []string, opts ...Option) (*ColumnTransformer, error) {
	ct := &ColumnTransformer{
		state:         model.NewStateManager("ColumnTransformer"),
		logger:        log.GetLoggerWithName("preprocessing"),
		columns:       append([]string(nil), columns...),
		scaling:       ScalingNone,
		handleUnknown: UnknownError,
	}
	for _, opt := range opts {
		opt(ct)
	}
	if err := validateSettings(ct.columns, ct.scaling, ct.handleUnknown); err != nil {
		return nil, err
	}
	return ct, nil
}

func validateSettings(columns []string, scaling Scaling, policy UnknownPolicy) error {
	if len(columns) == 0 {
		return errors.NewConfigError("data.X", "must list at least one feature column", nil)
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if seen[c] {
			return errors.NewConfigError("data.X", "duplicate feature column", c)
		}
		seen[c] = true
	}
	switch scaling {
	case ScalingNone, ScalingStandard:
	default:
		return errors.NewConfigError("preprocessing.numeric_scaling", "must be none or standard", string(scaling))
	}
	switch policy {
	case UnknownError, UnknownIgnore:
	default:
		return errors.NewConfigError("preprocessing.handle_unknown", "must be error or ignore", string(policy))
	}
	return nil
}

// Fit learns column kinds, scaling parameters and categories from ds.
// A second Fit fails with AlreadyFitError.
func (ct *ColumnTransformer) Fit(ds *dataset.Dataset) (err error) {
	defer errors.Recover(&err, "ColumnTransformer.Fit")
	if err := ct.state.RequireUnfitted(); err != nil {
		return err
	}
	if ds.Len() == 0 {
		return errors.NewValueError("ColumnTransformer.Fit", "empty data")
	}

	kinds := make([]dataset.Kind, len(ct.columns))
	var numericCols, categoricalCols []dataset.Column
	for j, name := range ct.columns {
		col, ok := ds.Column(name)
		if !ok {
			return errors.NewSchemaError("ColumnTransformer.Fit", name, "missing from dataset")
		}
		kinds[j] = col.Kind
		if col.Kind == dataset.Numeric {
			numericCols = append(numericCols, col)
		} else {
			categoricalCols = append(categoricalCols, col)
		}
	}

	var scaler *StandardScaler
	if len(numericCols) > 0 && ct.scaling == ScalingStandard {
		scaler = NewStandardScaler()
		if err := scaler.Fit(numericMatrix(numericCols, ds.Len())); err != nil {
			return err
		}
	}

	var encoder *OneHotEncoder
	categoricalNames := columnNames(categoricalCols)
	if len(categoricalCols) > 0 {
		encoder = NewOneHotEncoder(WithFeatureNames(categoricalNames), WithEncoderUnknown(ct.handleUnknown))
		if err := encoder.Fit(categoricalRows(categoricalCols, ds.Len())); err != nil {
			return err
		}
	}

	ct.kinds = kinds
	ct.numeric = columnNames(numericCols)
	ct.categorical = categoricalNames
	ct.scaler = scaler
	ct.encoder = encoder
	if err := ct.state.MarkFitted(ct.NOutputs(), ds.Len()); err != nil {
		return err
	}

	ct.logger.Debug("Column transformer fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, ds.Len(),
		log.FeaturesKey, ct.NOutputs(),
		"numeric_columns", len(ct.numeric),
		"categorical_columns", len(ct.categorical),
	)
	return nil
}

// Transform maps ds to the fitted layout. It fails with NotFittedError before
// Fit and with SchemaError for a missing column, a value that does not match
// the fitted column kind or, under UnknownError, an unseen category.
func (ct *ColumnTransformer) Transform(ds *dataset.Dataset) (_ *mat.Dense, err error) {
	defer errors.Recover(&err, "ColumnTransformer.Transform")
	if err := ct.state.RequireFitted("Transform"); err != nil {
		return nil, err
	}
	n := ds.Len()
	if n == 0 {
		return nil, errors.NewValueError("ColumnTransformer.Transform", "empty data")
	}

	out := mat.NewDense(n, ct.NOutputs(), nil)

	if len(ct.numeric) > 0 {
		num := mat.NewDense(n, len(ct.numeric), nil)
		for j, name := range ct.numeric {
			col, ok := ds.Column(name)
			if !ok {
				return nil, errors.NewSchemaError("ColumnTransformer.Transform", name, "missing from input")
			}
			values, err := col.Floats("ColumnTransformer.Transform")
			if err != nil {
				return nil, err
			}
			num.SetCol(j, values)
		}
		var block mat.Matrix = num
		if ct.scaler != nil {
			scaled, err := ct.scaler.Transform(num)
			if err != nil {
				return nil, err
			}
			block = scaled
		}
		out.Slice(0, n, 0, len(ct.numeric)).(*mat.Dense).Copy(block)
	}

	if len(ct.categorical) > 0 {
		cols := make([]dataset.Column, len(ct.categorical))
		for j, name := range ct.categorical {
			col, ok := ds.Column(name)
			if !ok {
				return nil, errors.NewSchemaError("ColumnTransformer.Transform", name, "missing from input")
			}
			cols[j] = col
		}
		encoded, err := ct.encoder.Transform(categoricalRows(cols, n))
		if err != nil {
			return nil, err
		}
		out.Slice(0, n, len(ct.numeric), ct.NOutputs()).(*mat.Dense).Copy(encoded)
	}
	return out, nil
}

// FitTransform fits on ds and transforms it.
func (ct *ColumnTransformer) FitTransform(ds *dataset.Dataset) (*mat.Dense, error) {
	if err := ct.Fit(ds); err != nil {
		return nil, err
	}
	return ct.Transform(ds)
}

// FeatureNamesOut returns the output column names: numeric column names first,
// then "<column>_<category>" for every indicator. It is nil before Fit.
func (ct *ColumnTransformer) FeatureNamesOut() []string {
	if !ct.state.IsFitted() {
		return nil
	}
	names := append([]string(nil), ct.numeric...)
	if ct.encoder != nil {
		names = append(names, ct.encoder.FeatureNamesOut()...)
	}
	return names
}

// NOutputs returns the number of output columns, or 0 before Fit.
func (ct *ColumnTransformer) NOutputs() int {
	n := len(ct.numeric)
	if ct.encoder != nil {
		n += ct.encoder.NOutputs()
	}
	return n
}

// Columns returns the configured input columns.
func (ct *ColumnTransformer) Columns() []string {
	return append([]string(nil), ct.columns...)
}

// Kind returns the fitted kind of an input column.
func (ct *ColumnTransformer) Kind(column string) (dataset.Kind, bool) {
	for j, c := range ct.columns {
		if c == column && j < len(ct.kinds) {
			return ct.kinds[j], true
		}
	}
	return 0, false
}

// IsFitted reports whether Fit has succeeded.
func (ct *ColumnTransformer) IsFitted() bool {
	return ct.state.IsFitted()
}

func numericMatrix(cols []dataset.Column, n int) *mat.Dense {
	m := mat.NewDense(n, len(cols), nil)
	for j, c := range cols {
		m.SetCol(j, c.Numeric)
	}
	return m
}

func categoricalRows(cols []dataset.Column, n int) [][]string {
	labels := make([][]string, len(cols))
	for j, c := range cols {
		labels[j] = c.Strings()
	}
	rows := make([][]string, n)
	for i := range rows {
		row := make([]string, len(cols))
		for j := range cols {
			row[j] = labels[j][i]
		}
		rows[i] = row
	}
	return rows
}

func columnNames(cols []dataset.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
