package metrics

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/bikeshare/core/model"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

// Record keys.
const (
	KeyMAE               = "mae"
	KeyMSE               = "mse"
	KeyRMSE              = "rmse"
	KeyR2                = "r2"
	KeyExplainedVariance = "explained_variance"
	KeyNTest             = "n_test"
)

// Record maps metric names to values. It is written as a flat JSON object.
type Record map[string]float64

// Evaluate predicts X with p and scores the predictions against y.
func Evaluate(p model.Predictor, X mat.Matrix, y *mat.VecDense) (Record, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return nil, errors.Wrap(err, "evaluate")
	}
	return Score(y, pred)
}

// Score computes every Record metric for a pair of vectors.
func Score(yTrue, yPred *mat.VecDense) (Record, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	mae, err := MAE(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	r2, err := R2Score(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	ev, err := ExplainedVarianceScore(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	rec := Record{
		KeyMAE:               mae,
		KeyMSE:               mse,
		KeyRMSE:              math.Sqrt(mse),
		KeyR2:                r2,
		KeyExplainedVariance: ev,
		KeyNTest:             float64(yTrue.Len()),
	}
	for name, v := range rec {
		if err := errors.CheckScalar("metrics."+name, v, 0); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// RecordPath returns <outputPath>/<modelName>_metrics.json.
func RecordPath(outputPath, modelName string) string {
	return filepath.Join(outputPath, modelName+"_metrics.json")
}

// SaveRecord writes rec as JSON to path. The file is replaced atomically, so a
// reader sees either the previous record or the new one.
func SaveRecord(rec Record, path string) error {
	if len(rec) == 0 {
		return errors.NewValueError("SaveRecord", "empty record")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create metrics directory for %s", path)
	}
	return model.WriteFileAtomic(path, model.Replace, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	})
}

// LoadRecord reads a record written by SaveRecord.
func LoadRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read metrics %s", path)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, "decode metrics %s", path)
	}
	return rec, nil
}
