package inference

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

// Error reasons used as the "reason" label of bikeshare_prediction_errors_total.
const (
	reasonSchema    = "schema"
	reasonDimension = "dimension"
	reasonValue     = "value"
	reasonOther     = "other"
)

// collectors instruments Predict. A nil *collectors records nothing.
type collectors struct {
	predictions *prometheus.CounterVec
	errors      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// newCollectors registers the inference metrics on reg. Collectors that are
// already registered, e.g. by another Inferencer on the same registry, are
// reused.
func newCollectors(reg prometheus.Registerer) (*collectors, error) {
	predictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bikeshare_predictions_total",
		Help: "Number of rows predicted.",
	}, []string{"model"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bikeshare_prediction_errors_total",
		Help: "Number of failed Predict calls by reason.",
	}, []string{"model", "reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bikeshare_predict_duration_seconds",
		Help:    "Latency of Predict calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	var err error
	if predictions, err = register(reg, predictions); err != nil {
		return nil, err
	}
	if errs, err = register(reg, errs); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &collectors{predictions: predictions, errors: errs, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "register inference metrics")
	}
	return c, nil
}

func (c *collectors) observe(model string, rows int, seconds float64) {
	if c == nil {
		return
	}
	c.predictions.WithLabelValues(model).Add(float64(rows))
	c.duration.WithLabelValues(model).Observe(seconds)
}

func (c *collectors) fail(model string, err error) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(model, reason(err)).Inc()
}

func reason(err error) string {
	var schemaErr *errors.SchemaError
	var dimErr *errors.DimensionError
	var valueErr *errors.ValueError
	switch {
	case errors.As(err, &schemaErr):
		return reasonSchema
	case errors.As(err, &dimErr):
		return reasonDimension
	case errors.As(err, &valueErr):
		return reasonValue
	default:
		return reasonOther
	}
}
