// Package pipeline runs the training workflow end to end: load the dataset,
// split it, fit the feature transformer and the regressor, evaluate on the
// held-out rows, and publish the artifact and the metrics record.
package pipeline

import (
	"context"
	"io/fs"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/bikeshare/artifact"
	"github.com/YuminosukeSato/bikeshare/config"
	"github.com/YuminosukeSato/bikeshare/dataset"
	"github.com/YuminosukeSato/bikeshare/metrics"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/pkg/log"
	"github.com/YuminosukeSato/bikeshare/preprocessing"
	"github.com/YuminosukeSato/bikeshare/report"
	"github.com/YuminosukeSato/bikeshare/sklearn/ensemble"
)

// Result is the outcome of a successful run.
type Result struct {
	Bundle       *artifact.Bundle
	Metrics      metrics.Record
	ArtifactPath string
	MetricsPath  string
	// PlotPath is empty unless the importance plot was requested.
	PlotPath  string
	TrainRows int
	TestRows  int
}

type options struct {
	logger log.Logger
	clock  func() time.Time
	plot   bool
}

// Option configures TrainAndExport.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock sets the time source that stamps the artifact name.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithImportancePlot also renders the feature importance chart into the
// output directory.
func WithImportancePlot(enabled bool) Option {
	return func(o *options) {
		o.plot = enabled
	}
}

// ModelParams maps the model section of cfg to regressor hyperparameters. The
// data split seed also seeds the model.
func ModelParams(cfg *config.Config) ensemble.Params {
	p := ensemble.DefaultParams()
	p.NEstimators = cfg.Model.NEstimators
	p.MaxDepth = cfg.Model.MaxDepth
	p.Subsample = cfg.Model.Subsample
	p.LearningRate = cfg.Model.LearningRate
	p.RandomState = cfg.Data.RandomState
	return p
}

// TrainAndExport runs every stage in order: load, split, transform, fit,
// evaluate, the optional importance plot, and publish. ctx is checked between
// stages. If any stage fails nothing is published: no artifact, no metrics
// file and no new chart.
//
// Parameters:
//   - ctx: cancels the run between stages
//   - cfg: a configuration; it is validated before any work starts
//   - opts: WithLogger, WithClock, WithImportancePlot
//
// Returns:
//   - *Result: the fitted bundle, the test-set metrics and the published paths
//   - error: ConfigError, SchemaError, ModelError or a wrapped I/O error,
//     annotated with the failing stage
//
// Example:
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    return err
//	}
//	res, err := pipeline.TrainAndExport(ctx, cfg, pipeline.WithImportancePlot(true))
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("%s r2=%.3f\n", res.ArtifactPath, res.Metrics[metrics.KeyR2])
func TrainAndExport(ctx context.Context, cfg *config.Config, opts ...Option) (*Result, error) {
	o := options{
		logger: log.GetLoggerWithName("pipeline"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		return nil, errors.NewConfigError("", "configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kind, err := ensemble.ParseKind(cfg.Model.Kind)
	if err != nil {
		return nil, err
	}
	params := ModelParams(cfg)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	r := &runner{ctx: ctx, logger: o.logger.With(log.ModelNameKey, kind.ModelName())}
	res := &Result{}

	var ds *dataset.Dataset
	err = r.stage("load", func() (err error) {
		ds, err = dataset.Load(cfg.Data.Path, cfg.Data.Features(), cfg.Data.Y)
		return err
	}, log.PathKey, cfg.Data.Path)
	if err != nil {
		return nil, err
	}

	var train, test *dataset.Dataset
	err = r.stage("split", func() (err error) {
		train, test, err = dataset.TrainTestSplit(ds, cfg.Data.TestSize, cfg.Data.RandomState)
		return err
	}, log.RandomSeedKey, cfg.Data.RandomState)
	if err != nil {
		return nil, err
	}
	res.TrainRows, res.TestRows = train.Len(), test.Len()

	ct, err := preprocessing.NewColumnTransformer(cfg.Data.Features(),
		preprocessing.WithNumericScaling(preprocessing.Scaling(cfg.Preprocessing.NumericScaling)),
		preprocessing.WithHandleUnknown(preprocessing.UnknownPolicy(cfg.Preprocessing.HandleUnknown)),
		preprocessing.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}
	var xTrain, xTest *mat.Dense
	err = r.stage("transform", func() (err error) {
		if xTrain, err = ct.FitTransform(train); err != nil {
			return err
		}
		xTest, err = ct.Transform(test)
		return err
	}, log.SamplesKey, train.Len())
	if err != nil {
		return nil, err
	}

	m, err := ensemble.New(kind, params)
	if err != nil {
		return nil, err
	}
	err = r.stage("fit", func() error {
		if err := m.Fit(xTrain, train.TargetVec()); err != nil {
			return errors.NewModelError("pipeline.fit", kind.ModelName(), err)
		}
		return nil
	}, log.SamplesKey, train.Len(), log.FeaturesKey, ct.NOutputs(), log.HyperParamsKey, params)
	if err != nil {
		return nil, err
	}

	err = r.stage("evaluate", func() (err error) {
		res.Metrics, err = metrics.Evaluate(m, xTest, test.TargetVec())
		return err
	}, log.SamplesKey, test.Len())
	if err != nil {
		return nil, err
	}
	r.logger.Info("Evaluation",
		log.MAEKey, res.Metrics[metrics.KeyMAE],
		log.RMSEKey, res.Metrics[metrics.KeyRMSE],
		log.R2ScoreKey, res.Metrics[metrics.KeyR2],
	)

	var chart *report.ImportancePlot
	if o.plot {
		err = r.stage("plot", func() error {
			importances, err := m.FeatureImportances()
			if err != nil {
				return err
			}
			chart, err = report.NewImportancePlot(ct.FeatureNamesOut(), importances, "png")
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	bundle, err := artifact.NewBundle(ct, m, cfg.Data.Y)
	if err != nil {
		return nil, err
	}
	res.Bundle = bundle
	r.logger = r.logger.With(log.RunIDKey, bundle.Metadata.RunID)

	err = r.stage("publish", func() error {
		return publish(cfg, bundle, chart, res, o)
	}, log.PathKey, cfg.Output.OutputPath)
	if err != nil {
		return nil, err
	}

	r.logger.Info("Training run complete",
		log.ArtifactKey, res.ArtifactPath,
		log.PathKey, res.MetricsPath,
	)
	return res, nil
}

// publish saves the artifact, then the importance chart when one was
// rendered, then the metrics record. If a later write fails the files this
// run created are removed again, so a failed run leaves no artifact behind.
func publish(cfg *config.Config, b *artifact.Bundle, chart *report.ImportancePlot, res *Result, o options) error {
	store := artifact.NewStore(cfg.Output.OutputPath, artifact.WithClock(o.clock), artifact.WithLogger(o.logger))
	path, err := store.Save(b)
	if err != nil {
		return err
	}
	created := []string{path}
	rollback := func() {
		for _, p := range created {
			if rmErr := os.Remove(p); rmErr != nil {
				o.logger.Warn("Could not remove unpublished file", log.PathKey, p, log.ErrorKey, rmErr.Error())
			}
		}
	}

	var plotPath string
	if chart != nil {
		plotPath = report.PlotPath(cfg.Output.OutputPath, b.Metadata.ModelName())
		_, statErr := os.Stat(plotPath)
		if err := chart.Save(plotPath); err != nil {
			rollback()
			return err
		}
		if errors.Is(statErr, fs.ErrNotExist) {
			created = append(created, plotPath)
		}
	}

	metricsPath := metrics.RecordPath(cfg.Output.OutputPath, b.Metadata.ModelName())
	if err := metrics.SaveRecord(res.Metrics, metricsPath); err != nil {
		rollback()
		return err
	}
	res.ArtifactPath = path
	res.MetricsPath = metricsPath
	res.PlotPath = plotPath
	return nil
}

type runner struct {
	ctx    context.Context
	logger log.Logger
}

// stage runs fn unless ctx is done, and logs its outcome and duration.
func (r *runner) stage(name string, fn func() error, fields ...any) error {
	if err := r.ctx.Err(); err != nil {
		r.logger.Warn("Training run cancelled", log.PhaseKey, name, log.ErrorKey, err.Error())
		return errors.Wrapf(err, "pipeline cancelled before %s", name)
	}
	start := time.Now()
	if err := fn(); err != nil {
		r.logger.Error("Stage failed", append([]any{err, log.PhaseKey, name}, fields...)...)
		return errors.Wrapf(err, "pipeline %s", name)
	}
	r.logger.Info("Stage finished", append([]any{log.PhaseKey, name, log.DurationMsKey, time.Since(start).Milliseconds()}, fields...)...)
	return nil
}
