// Package report renders training results for people: ranked feature
// importances and the importance bar chart saved next to the metrics.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/bikeshare/core/model"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

// DefaultTopN is the number of features drawn by SaveImportancePlot.
const DefaultTopN = 20

// Importance is one feature's importance score.
type Importance struct {
	Feature string  `json:"feature"`
	Score   float64 `json:"score"`
}

// Rank pairs names with scores and sorts them by descending score, breaking
// ties by name. top <= 0 keeps every feature.
func Rank(names []string, scores []float64, top int) ([]Importance, error) {
	if len(names) != len(scores) {
		return nil, errors.NewDimensionError("report.Rank", len(names), len(scores), 1)
	}
	ranked := make([]Importance, len(names))
	for i := range names {
		ranked[i] = Importance{Feature: names[i], Score: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Feature < ranked[j].Feature
	})
	if top > 0 && top < len(ranked) {
		ranked = ranked[:top]
	}
	return ranked, nil
}

// PlotPath returns <outputPath>/<modelName>_importance.png.
func PlotPath(outputPath, modelName string) string {
	return filepath.Join(outputPath, modelName+"_importance.png")
}

// ImportancePlot is a rendered importance chart that has not been written
// anywhere yet.
type ImportancePlot struct {
	format string
	writer io.WriterTo
}

// NewImportancePlot draws the DefaultTopN most important features as a
// horizontal bar chart, most important at the top, in the given image format
// (png, svg, pdf, ...). Nothing touches the filesystem until Save.
func NewImportancePlot(names []string, scores []float64, format string) (*ImportancePlot, error) {
	ranked, err := Rank(names, scores, DefaultTopN)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, errors.NewValueError("report.NewImportancePlot", "no features")
	}
	format = strings.TrimPrefix(strings.ToLower(format), ".")
	if format == "" {
		return nil, errors.NewValueError("report.NewImportancePlot", "image format is required")
	}

	// Bars are drawn bottom-up, so reverse the ranking.
	values := make(plotter.Values, len(ranked))
	labels := make([]string, len(ranked))
	for i, imp := range ranked {
		k := len(ranked) - 1 - i
		values[k] = imp.Score
		labels[k] = imp.Feature
	}

	p := plot.New()
	p.Title.Text = "Feature importance"
	p.X.Label.Text = "Normalised split gain"
	p.X.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return nil, errors.Wrap(err, "build bar chart")
	}
	bars.Horizontal = true
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = plotter.DefaultLineStyle.Color
	p.Add(bars, plotter.NewGrid())
	p.NominalY(labels...)

	height := vg.Points(float64(60 + 18*len(ranked)))
	writer, err := p.WriterTo(8*vg.Inch, height, format)
	if err != nil {
		return nil, errors.Wrapf(err, "render %s chart", format)
	}
	return &ImportancePlot{format: format, writer: writer}, nil
}

// Format returns the image format the chart was rendered in.
func (ip *ImportancePlot) Format() string { return ip.format }

// Save writes the chart to path, replacing any existing file atomically.
func (ip *ImportancePlot) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	return model.WriteFileAtomic(path, model.Replace, func(w io.Writer) error {
		_, err := ip.writer.WriteTo(w)
		return err
	})
}

// SaveImportancePlot renders the chart in the format named by the extension
// of path and writes it there.
func SaveImportancePlot(names []string, scores []float64, path string) error {
	format := filepath.Ext(path)
	if format == "" {
		return errors.NewValueError("report.SaveImportancePlot", fmt.Sprintf("cannot infer image format of %q", path))
	}
	ip, err := NewImportancePlot(names, scores, format)
	if err != nil {
		return err
	}
	return ip.Save(path)
}
