// Package inference serves predictions from one persisted artifact.
package inference

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/YuminosukeSato/bikeshare/artifact"
	"github.com/YuminosukeSato/bikeshare/config"
	"github.com/YuminosukeSato/bikeshare/dataset"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/pkg/log"
	"github.com/YuminosukeSato/bikeshare/sklearn/ensemble"
)

// Inferencer predicts rented bike counts with a loaded bundle. The bundle is
// read-only after construction, so Predict is safe for concurrent use.
type Inferencer struct {
	path        string
	bundle      *artifact.Bundle
	names       []string
	importances []float64

	logger  log.Logger
	reg     prometheus.Registerer
	metrics *collectors
}

// Option configures an Inferencer.
type Option func(*Inferencer)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(inf *Inferencer) {
		inf.logger = l
	}
}

// WithRegisterer enables Prometheus instrumentation on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(inf *Inferencer) {
		inf.reg = reg
	}
}

// New loads the artifact at path. It fails with ArtifactNotFoundError or
// ArtifactCorruptError rather than returning an Inferencer that cannot serve.
//
// Parameters:
//   - path: an artifact written by artifact.Store.Save
//   - opts: WithLogger, WithRegisterer
//
// Returns:
//   - *Inferencer: ready to serve; its bundle never changes afterwards
//   - error: ArtifactNotFoundError, ArtifactCorruptError, or a Prometheus
//     registration error
//
// Example:
//
//	inf, err := inference.New("artifacts/GradientBoosting_2024-06-01_12-00-00_3f2a9c1d.gob",
//	    inference.WithRegisterer(prometheus.DefaultRegisterer))
//	if err != nil {
//	    return err
//	}
//	count, err := inf.PredictOne(dataset.Row{
//	    "hour": 0, "temp": 5.0, "seasons": "Winter", "holiday": "No Holiday",
//	    "day": "Friday", "month": "January", // plus the remaining features
//	})
func New(path string, opts ...Option) (*Inferencer, error) {
	inf := &Inferencer{
		path:   path,
		logger: log.GetLoggerWithName("inference"),
	}
	for _, opt := range opts {
		opt(inf)
	}

	b, err := artifact.Load(path)
	if err != nil {
		inf.logger.Error("Artifact load failed", err, log.ArtifactKey, path)
		return nil, err
	}
	importances, err := b.Model.FeatureImportances()
	if err != nil {
		return nil, err
	}
	if inf.reg != nil {
		if inf.metrics, err = newCollectors(inf.reg); err != nil {
			return nil, err
		}
	}

	inf.bundle = b
	inf.names = b.Transformer.FeatureNamesOut()
	inf.importances = importances
	inf.logger = inf.logger.With(log.ModelNameKey, b.Metadata.ModelName(), log.RunIDKey, b.Metadata.RunID)
	inf.logger.Info("Artifact loaded",
		log.ArtifactKey, path,
		log.FeaturesKey, len(inf.names),
		log.FormatVersionKey, b.Metadata.FormatVersion,
	)
	return inf, nil
}

// NewFromConfig loads output.output_path/output.model_filename, or the newest
// artifact of model.kind when no file name is configured.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Inferencer, error) {
	path := cfg.Output.ArtifactPath()
	if path == "" {
		kind, err := ensemble.ParseKind(cfg.Model.Kind)
		if err != nil {
			return nil, err
		}
		path, err = artifact.NewStore(cfg.Output.OutputPath).Latest(kind.ModelName())
		if err != nil {
			return nil, err
		}
	}
	return New(path, opts...)
}

// Predict returns one prediction per row. Each row must carry every feature
// column the model was trained on; other keys are ignored. Model outputs below
// zero are returned as 0.
func (inf *Inferencer) Predict(rows []dataset.Row) (_ []float64, err error) {
	start := time.Now()
	model := inf.bundle.Metadata.ModelName()
	defer func() {
		if err != nil {
			inf.metrics.fail(model, err)
			inf.logger.Warn("Prediction failed", log.ErrorKey, err.Error(), log.PredsKey, len(rows))
			return
		}
		inf.metrics.observe(model, len(rows), time.Since(start).Seconds())
	}()
	defer errors.Recover(&err, "Inferencer.Predict")

	if len(rows) == 0 {
		return nil, errors.NewValueError("Inferencer.Predict", "no rows")
	}
	ds, err := dataset.FromRows(rows, inf.bundle.Metadata.Features, "")
	if err != nil {
		return nil, err
	}
	X, err := inf.bundle.Transformer.Transform(ds)
	if err != nil {
		return nil, err
	}
	pred, err := inf.bundle.Model.Predict(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, pred.Len())
	for i := range out {
		// A rental count cannot be negative.
		out[i] = math.Max(0, pred.AtVec(i))
	}
	inf.logger.Debug("Predicted", log.OperationKey, log.OperationPredict, log.PredsKey, len(out))
	return out, nil
}

// PredictOne predicts a single row.
func (inf *Inferencer) PredictOne(row dataset.Row) (float64, error) {
	out, err := inf.Predict([]dataset.Row{row})
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

// FeatureImportance returns the model's importance per transformed column,
// aligned with FeatureNames.
func (inf *Inferencer) FeatureImportance() []float64 {
	return append([]float64(nil), inf.importances...)
}

// FeatureNames returns the transformed column names.
func (inf *Inferencer) FeatureNames() []string {
	return append([]string(nil), inf.names...)
}

// Features returns the input columns every row must carry.
func (inf *Inferencer) Features() []string {
	return append([]string(nil), inf.bundle.Metadata.Features...)
}

// Metadata returns the metadata of the loaded bundle.
func (inf *Inferencer) Metadata() artifact.Metadata {
	md := inf.bundle.Metadata
	md.Features = append([]string(nil), md.Features...)
	return md
}

// Path returns the artifact path.
func (inf *Inferencer) Path() string { return inf.path }
