// Package metrics scores regression predictions and persists the scores as
// the metrics record consumed next to each trained model.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "nil vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

func values(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// MSE returns the mean squared error.
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		diff := yTrue.AtVec(i) - yPred.AtVec(i)
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE returns the square root of MSE.
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE returns the mean absolute error.
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}
	return sum / float64(n), nil
}

// R2Score returns the coefficient of determination 1 - RSS/TSS.
//
// For a constant yTrue the score is 1 when the predictions are exact and 0
// otherwise, and an UndefinedMetricWarning is raised.
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	mean := stat.Mean(values(yTrue), nil)

	var tss, rss float64
	for i := 0; i < n; i++ {
		t, p := yTrue.AtVec(i), yPred.AtVec(i)
		tss += (t - mean) * (t - mean)
		rss += (t - p) * (t - p)
	}
	if tss == 0 {
		return constantTargetScore("r2", rss), nil
	}
	return 1 - rss/tss, nil
}

// ExplainedVarianceScore returns 1 - Var(yTrue - yPred)/Var(yTrue), with the
// same constant-target convention as R2Score.
func ExplainedVarianceScore(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("ExplainedVarianceScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	truth := values(yTrue)
	residual := make([]float64, n)
	for i := range residual {
		residual[i] = truth[i] - yPred.AtVec(i)
	}
	varTrue := stat.PopVariance(truth, nil)
	varResidual := stat.PopVariance(residual, nil)
	if varTrue == 0 {
		return constantTargetScore("explained_variance", varResidual), nil
	}
	return 1 - varResidual/varTrue, nil
}

func constantTargetScore(metric string, residual float64) float64 {
	score := 0.0
	if residual == 0 {
		score = 1
	}
	errors.Warn(errors.NewUndefinedMetricWarning(metric, "constant target", score))
	return score
}
