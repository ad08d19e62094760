package tree

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

// MaxBins is the largest supported number of histogram bins per feature.
const MaxBins = 256

// Binner quantises each feature into at most MaxBin ordered bins. Bin k holds
// the values v with Thresholds[k-1] < v <= Thresholds[k]; the last bin is
// unbounded above.
type Binner struct {
	MaxBin     int
	Thresholds [][]float64
}

// NewBinner creates a Binner. maxBin is clamped to [2, MaxBins].
func NewBinner(maxBin int) *Binner {
	if maxBin < 2 {
		maxBin = 2
	}
	if maxBin > MaxBins {
		maxBin = MaxBins
	}
	return &Binner{MaxBin: maxBin}
}

// Fit learns bin thresholds from every column of X. Features with at most
// MaxBin distinct values get one bin per value, split at midpoints; other
// features get equal-frequency bins over their distinct values.
func (b *Binner) Fit(X mat.Matrix) error {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewValueError("Binner.Fit", "empty data")
	}
	b.Thresholds = make([][]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		b.Thresholds[j] = b.thresholds(col)
	}
	return nil
}

func (b *Binner) thresholds(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	unique := sorted[:1]
	for _, v := range sorted[1:] {
		if v != unique[len(unique)-1] {
			unique = append(unique, v)
		}
	}

	if len(unique) <= b.MaxBin {
		th := make([]float64, 0, len(unique)-1)
		for i := 1; i < len(unique); i++ {
			th = append(th, midpoint(unique[i-1], unique[i]))
		}
		return th
	}

	th := make([]float64, 0, b.MaxBin-1)
	for k := 1; k < b.MaxBin; k++ {
		i := k * len(unique) / b.MaxBin
		t := midpoint(unique[i-1], unique[i])
		if len(th) == 0 || t > th[len(th)-1] {
			th = append(th, t)
		}
	}
	return th
}

// midpoint returns a value strictly between lo and hi when one exists, so a
// threshold never coincides with an observed value.
func midpoint(lo, hi float64) float64 {
	m := lo + (hi-lo)/2
	if m >= hi {
		return lo
	}
	return m
}

// Bin returns the bin index of v for feature j.
func (b *Binner) Bin(j int, v float64) int {
	return sort.SearchFloat64s(b.Thresholds[j], v)
}

// NBins returns the number of bins of feature j.
func (b *Binner) NBins(j int) int {
	return len(b.Thresholds[j]) + 1
}

// Binned is a column-major bin-index view of a feature matrix.
type Binned struct {
	Binner *Binner
	// Cols[j][i] is the bin of row i for feature j.
	Cols  [][]uint8
	NRows int
}

// Transform bins every value of X.
func (b *Binner) Transform(X mat.Matrix) (*Binned, error) {
	r, c := X.Dims()
	if c != len(b.Thresholds) {
		return nil, errors.NewDimensionError("Binner.Transform", len(b.Thresholds), c, 1)
	}
	cols := make([][]uint8, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		bins := make([]uint8, r)
		for i, v := range col {
			bins[i] = uint8(b.Bin(j, v))
		}
		cols[j] = bins
	}
	return &Binned{Binner: b, Cols: cols, NRows: r}, nil
}

// NFeatures returns the number of binned features.
func (bd *Binned) NFeatures() int {
	return len(bd.Cols)
}
