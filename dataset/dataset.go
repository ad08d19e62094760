// Package dataset holds tabular training and inference data projected onto the
// configured feature columns, and splits it into train and test partitions.
package dataset

import (
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

// Kind is the value kind of a column.
type Kind int

const (
	// Numeric columns hold float64 values.
	Numeric Kind = iota
	// Categorical columns hold string labels.
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// Row is a single record keyed by column name. Values are numbers or strings.
type Row map[string]any

// Column is one feature column. Exactly one of Numeric or Categorical is set,
// according to Kind.
type Column struct {
	Name        string
	Kind        Kind
	Numeric     []float64
	Categorical []string
}

// Floats returns the column as numbers. Categorical cells are parsed and the
// first cell that is not a number yields a SchemaError.
func (c Column) Floats(op string) ([]float64, error) {
	if c.Kind == Numeric {
		out := make([]float64, len(c.Numeric))
		copy(out, c.Numeric)
		return out, nil
	}
	out := make([]float64, len(c.Categorical))
	for i, s := range c.Categorical {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.NewSchemaError(op, c.Name, "expected a number, got "+strconv.Quote(s))
		}
		out[i] = v
	}
	return out, nil
}

// Strings returns the column as labels. Numeric cells are formatted in their
// shortest exact representation.
func (c Column) Strings() []string {
	if c.Kind == Categorical {
		out := make([]string, len(c.Categorical))
		copy(out, c.Categorical)
		return out
	}
	out := make([]string, len(c.Numeric))
	for i, v := range c.Numeric {
		out[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return out
}

func (c Column) subset(indices []int) Column {
	out := Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == Numeric {
		out.Numeric = make([]float64, len(indices))
		for i, idx := range indices {
			out.Numeric[i] = c.Numeric[idx]
		}
		return out
	}
	out.Categorical = make([]string, len(indices))
	for i, idx := range indices {
		out.Categorical[i] = c.Categorical[idx]
	}
	return out
}

func (c Column) value(i int) any {
	if c.Kind == Numeric {
		return c.Numeric[i]
	}
	return c.Categorical[i]
}

// Dataset is an immutable, ordered table of feature columns plus an optional
// numeric target. Accessors return copies.
type Dataset struct {
	columns []Column
	index   map[string]int
	target  string
	y       []float64
	n       int
}

func newDataset(columns []Column, target string, y []float64, n int) *Dataset {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c.Name] = i
	}
	return &Dataset{columns: columns, index: index, target: target, y: y, n: n}
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return d.n
}

// Features returns the feature column names in configured order.
func (d *Dataset) Features() []string {
	names := make([]string, len(d.columns))
	for i, c := range d.columns {
		names[i] = c.Name
	}
	return names
}

// Column returns a copy of the named feature column.
func (d *Dataset) Column(name string) (Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return Column{}, false
	}
	c := d.columns[i]
	all := make([]int, d.n)
	for j := range all {
		all[j] = j
	}
	return c.subset(all), true
}

// TargetName returns the target column name, or "" for unlabeled data.
func (d *Dataset) TargetName() string {
	return d.target
}

// HasTarget reports whether the dataset carries a target column.
func (d *Dataset) HasTarget() bool {
	return d.y != nil
}

// Target returns a copy of the target values, or nil for unlabeled data.
func (d *Dataset) Target() []float64 {
	if d.y == nil {
		return nil
	}
	out := make([]float64, len(d.y))
	copy(out, d.y)
	return out
}

// TargetVec returns the target as a vector, or nil for unlabeled data.
func (d *Dataset) TargetVec() *mat.VecDense {
	if d.y == nil || d.n == 0 {
		return nil
	}
	return mat.NewVecDense(d.n, d.Target())
}

// Rows returns every record as a Row, including the target when present.
func (d *Dataset) Rows() []Row {
	rows := make([]Row, d.n)
	for i := range rows {
		row := make(Row, len(d.columns)+1)
		for _, c := range d.columns {
			row[c.Name] = c.value(i)
		}
		if d.y != nil {
			row[d.target] = d.y[i]
		}
		rows[i] = row
	}
	return rows
}

// Subset returns a new dataset holding the given rows in the given order.
func (d *Dataset) Subset(indices []int) (*Dataset, error) {
	for _, idx := range indices {
		if idx < 0 || idx >= d.n {
			return nil, errors.NewValueError("Subset", "row index "+strconv.Itoa(idx)+" out of range")
		}
	}
	columns := make([]Column, len(d.columns))
	for i, c := range d.columns {
		columns[i] = c.subset(indices)
	}
	var y []float64
	if d.y != nil {
		y = make([]float64, len(indices))
		for i, idx := range indices {
			y[i] = d.y[idx]
		}
	}
	return newDataset(columns, d.target, y, len(indices)), nil
}

// FromRows builds a dataset from in-memory records, projected onto features in
// the given order. Keys that are not features or the target are ignored. An
// empty target builds unlabeled data.
//
// A column is numeric when every value is a Go number, and categorical otherwise.
func FromRows(rows []Row, features []string, target string) (*Dataset, error) {
	if len(rows) == 0 {
		return nil, errors.NewValueError("FromRows", "no rows")
	}
	if err := checkColumns("FromRows", features, target); err != nil {
		return nil, err
	}

	columns := make([]Column, len(features))
	for j, name := range features {
		values := make([]any, len(rows))
		for i, row := range rows {
			v, ok := row[name]
			if !ok || v == nil {
				return nil, errors.NewSchemaError("FromRows", name, "missing from row "+strconv.Itoa(i))
			}
			values[i] = v
		}
		col, err := columnFromValues(name, values)
		if err != nil {
			return nil, err
		}
		columns[j] = col
	}

	var y []float64
	if target != "" {
		y = make([]float64, len(rows))
		for i, row := range rows {
			v, ok := row[target]
			if !ok || v == nil {
				return nil, errors.NewSchemaError("FromRows", target, "missing from row "+strconv.Itoa(i))
			}
			f, ok := toFloat(v)
			if !ok {
				return nil, errors.NewSchemaError("FromRows", target, "target must be numeric in row "+strconv.Itoa(i))
			}
			y[i] = f
		}
	}
	return newDataset(columns, target, y, len(rows)), nil
}

func checkColumns(op string, features []string, target string) error {
	if len(features) == 0 {
		return errors.NewValueError(op, "no feature columns")
	}
	seen := make(map[string]bool, len(features))
	for _, f := range features {
		if seen[f] {
			return errors.NewSchemaError(op, f, "listed twice")
		}
		seen[f] = true
	}
	if target != "" && seen[target] {
		return errors.NewSchemaError(op, target, "target is also a feature")
	}
	return nil
}

func columnFromValues(name string, values []any) (Column, error) {
	floats := make([]float64, len(values))
	numeric := true
	for i, v := range values {
		f, ok := toFloat(v)
		if !ok {
			numeric = false
			break
		}
		floats[i] = f
	}
	if numeric {
		return Column{Name: name, Kind: Numeric, Numeric: floats}, nil
	}

	labels := make([]string, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case string:
			labels[i] = x
		case bool:
			labels[i] = strconv.FormatBool(x)
		default:
			f, ok := toFloat(v)
			if !ok {
				return Column{}, errors.NewSchemaError("FromRows", name, "unsupported value type in row "+strconv.Itoa(i))
			}
			labels[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return Column{Name: name, Kind: Categorical, Categorical: labels}, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}
