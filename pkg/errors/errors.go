// Package errors provides the error taxonomy and warning system shared by every
// bikeshare package.
//
// Every constructor attaches a stack trace through cockroachdb/errors, so callers
// can log the origin of a failure with "%+v" and still match the concrete type with
// As. Every structured error also implements zerolog.LogObjectMarshaler.
//
// The taxonomy mirrors the failure classes of the training and serving processes:
//
//   - ConfigError: invalid configuration, raised before any work starts
//   - SchemaError: missing or malformed columns at load or inference time
//   - NotFittedError / AlreadyFitError: estimator lifecycle violations
//   - ArtifactNotFoundError / ArtifactCorruptError: storage boundary failures
//
// None of these are transient; nothing in the module retries on them.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Global warning handling
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("bikeshare-warning: %v\n", w)
	}
	// set by pkg/log to avoid an import cycle
	zerologWarnFunc func(warning error)
)

// SetWarningHandler replaces the fallback handler used when no zerolog sink is set.
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc routes warnings to a structured logger.
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn emits a non-fatal warning.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// UndefinedMetricWarning is raised when a metric cannot be computed meaningfully and
// a fallback value is returned instead.
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (w *UndefinedMetricWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("metric", w.Metric).
		Str("condition", w.Condition).
		Float64("result", w.Result).
		Str("type", "UndefinedMetricWarning")
}

// NewUndefinedMetricWarning creates an UndefinedMetricWarning.
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	Structured error types
//
// ===========================================================================

// ConfigError reports an invalid or unrecognised configuration value.
type ConfigError struct {
	Field  string
	Reason string
	Value  interface{}
}

func (e *ConfigError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("bikeshare: invalid configuration '%s': %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("bikeshare: invalid configuration '%s': %s (got: %v)", e.Field, e.Reason, e.Value)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *ConfigError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ConfigError")
}

// NewConfigError creates a ConfigError with a stack trace.
func NewConfigError(field, reason string, value interface{}) error {
	return errors.WithStack(&ConfigError{Field: field, Reason: reason, Value: value})
}

// SchemaError reports a column that is missing or cannot be interpreted.
type SchemaError struct {
	Op     string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("bikeshare: %s: column '%s': %s", e.Op, e.Column, e.Reason)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *SchemaError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("column", e.Column).
		Str("reason", e.Reason).
		Str("type", "SchemaError")
}

// NewSchemaError creates a SchemaError with a stack trace.
func NewSchemaError(op, column, reason string) error {
	return errors.WithStack(&SchemaError{Op: op, Column: column, Reason: reason})
}

// NotFittedError is returned when Predict, Transform or FeatureImportances is
// called before Fit.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("bikeshare: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace.
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// AlreadyFitError is returned when Fit is called on an estimator that has already
// been fitted. Estimators are single-use; build a new one to retrain.
type AlreadyFitError struct {
	ModelName string
}

func (e *AlreadyFitError) Error() string {
	return fmt.Sprintf("bikeshare: %s: already fitted; create a new instance to retrain", e.ModelName)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *AlreadyFitError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("type", "AlreadyFitError")
}

// NewAlreadyFitError creates an AlreadyFitError with a stack trace.
func NewAlreadyFitError(modelName string) error {
	return errors.WithStack(&AlreadyFitError{ModelName: modelName})
}

// ArtifactNotFoundError is returned when an artifact path does not exist.
type ArtifactNotFoundError struct {
	Path string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("bikeshare: artifact not found: %s", e.Path)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *ArtifactNotFoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		Str("type", "ArtifactNotFoundError")
}

// NewArtifactNotFoundError creates an ArtifactNotFoundError with a stack trace.
func NewArtifactNotFoundError(path string) error {
	return errors.WithStack(&ArtifactNotFoundError{Path: path})
}

// ArtifactCorruptError is returned when stored data cannot be decoded into a
// matching transformer/model pair.
type ArtifactCorruptError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ArtifactCorruptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bikeshare: corrupt artifact %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("bikeshare: corrupt artifact %s: %s", e.Path, e.Reason)
}

func (e *ArtifactCorruptError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *ArtifactCorruptError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("path", e.Path).
		Str("reason", e.Reason).
		Str("type", "ArtifactCorruptError")
	if e.Err != nil {
		event.Str("cause", e.Err.Error())
	}
}

// NewArtifactCorruptError creates an ArtifactCorruptError with a stack trace.
func NewArtifactCorruptError(path, reason string, err error) error {
	return errors.WithStack(&ArtifactCorruptError{Path: path, Reason: reason, Err: err})
}

// DimensionError reports a shape mismatch between inputs.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("bikeshare: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace.
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValueError reports an argument whose value is unusable, such as empty data.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("bikeshare: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace.
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError reports that an estimator failed to fit, wrapping the cause so
// that the underlying typed error can still be matched with As.
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bikeshare: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("bikeshare: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (e *ModelError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("op", e.Op).
		Str("kind", e.Kind).
		Str("type", "ModelError")
	if e.Err != nil {
		event.Str("cause", e.Err.Error())
	}
}

// NewModelError creates a ModelError with a stack trace.
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// NumericalInstabilityError reports NaN or Inf values produced during training.
type NumericalInstabilityError struct {
	Operation string
	Values    []float64
	Iteration int
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("bikeshare: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// NewNumericalInstabilityError creates a NumericalInstabilityError with a stack trace.
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	return errors.WithStack(&NumericalInstabilityError{Operation: operation, Values: values, Iteration: iteration})
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap annotates err with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf annotates err with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates an error with a stack trace.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a formatted error with a stack trace.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}
