// Package bikeshare predicts hourly bike rental demand from weather and
// calendar features.
//
// A training run reads a CSV of hourly records, holds out a seeded test
// fraction, encodes the features, fits a tree ensemble and publishes the
// fitted transformer and model together as one artifact next to a metrics
// JSON file. Serving loads that artifact once and maps raw records to
// predictions.
//
// # Quick Start
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := pipeline.TrainAndExport(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	inf, err := inference.New(res.ArtifactPath)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pred, err := inf.PredictOne(dataset.Row{"hour": 8, "seasons": "Summer", ...})
//
// # Packages
//
//   - config: YAML/JSON configuration with BIKESHARE_ environment overrides
//   - dataset: CSV loading, typed columns and the train/test split
//   - preprocessing: numeric pass-through or scaling plus one-hot encoding
//   - sklearn/tree: histogram regression trees
//   - sklearn/ensemble: gradient boosting, random forest and single-tree models
//   - metrics: regression metrics and the persisted metrics record
//   - artifact: the transformer+model bundle and its on-disk store
//   - inference: loading an artifact and predicting raw records
//   - pipeline: the train → evaluate → publish run
//   - report: feature importance ranking and chart
//   - core/model, core/parallel, pkg/errors, pkg/log: shared infrastructure
//
// The bikeshare command in cmd/bikeshare wraps training, prediction and
// importance listing.
package bikeshare
