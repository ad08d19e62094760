package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxonomyMessagesAndTypes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
		check   func(error) bool
	}{
		{
			name:    "config",
			err:     NewConfigError("data.test_size", "must be in (0, 1)", 1.5),
			wantMsg: "bikeshare: invalid configuration 'data.test_size': must be in (0, 1) (got: 1.5)",
			check:   func(err error) bool { var e *ConfigError; return As(err, &e) },
		},
		{
			name:    "config without value",
			err:     NewConfigError("output.output_path", "is required", nil),
			wantMsg: "bikeshare: invalid configuration 'output.output_path': is required",
			check:   func(err error) bool { var e *ConfigError; return As(err, &e) },
		},
		{
			name:    "schema",
			err:     NewSchemaError("Inferencer.Predict", "seasons", "missing from input row 0"),
			wantMsg: "bikeshare: Inferencer.Predict: column 'seasons': missing from input row 0",
			check:   func(err error) bool { var e *SchemaError; return As(err, &e) },
		},
		{
			name:    "not fitted",
			err:     NewNotFittedError("GradientBoostingRegressor", "Predict"),
			wantMsg: "bikeshare: GradientBoostingRegressor: this model is not fitted yet. Call Fit() before using Predict()",
			check:   func(err error) bool { var e *NotFittedError; return As(err, &e) },
		},
		{
			name:    "already fit",
			err:     NewAlreadyFitError("ColumnTransformer"),
			wantMsg: "bikeshare: ColumnTransformer: already fitted; create a new instance to retrain",
			check:   func(err error) bool { var e *AlreadyFitError; return As(err, &e) },
		},
		{
			name:    "artifact not found",
			err:     NewArtifactNotFoundError("/tmp/none.gob"),
			wantMsg: "bikeshare: artifact not found: /tmp/none.gob",
			check:   func(err error) bool { var e *ArtifactNotFoundError; return As(err, &e) },
		},
		{
			name:    "artifact corrupt",
			err:     NewArtifactCorruptError("/tmp/x.gob", "bad magic", nil),
			wantMsg: "bikeshare: corrupt artifact /tmp/x.gob: bad magic",
			check:   func(err error) bool { var e *ArtifactCorruptError; return As(err, &e) },
		},
		{
			name:    "dimension",
			err:     NewDimensionError("Predict", 10, 9, 1),
			wantMsg: "bikeshare: Predict: dimension mismatch on axis 1 (features). Expected 10, got 9",
			check:   func(err error) bool { var e *DimensionError; return As(err, &e) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.True(t, tt.check(tt.err))

			formatted := fmt.Sprintf("%+v", tt.err)
			assert.Contains(t, formatted, "errors_test.go", "stack trace should point at the caller")
		})
	}
}

func TestArtifactCorruptErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("unexpected EOF")
	err := NewArtifactCorruptError("a.gob", "decode envelope", cause)

	assert.True(t, Is(err, cause))
	assert.Contains(t, err.Error(), "unexpected EOF")
}

func TestModelErrorWrapsCause(t *testing.T) {
	cause := NewNumericalInstabilityError("GradientBoostingRegressor.Fit", []float64{math.NaN()}, 3)
	err := NewModelError("pipeline.fit", "GradientBoosting", cause)

	var modelErr *ModelError
	require.True(t, As(err, &modelErr))
	assert.Equal(t, "GradientBoosting", modelErr.Kind)
	assert.True(t, strings.HasPrefix(err.Error(), "bikeshare: pipeline.fit: GradientBoosting: "))

	var unstable *NumericalInstabilityError
	assert.True(t, As(err, &unstable), "the cause stays reachable")
	assert.Equal(t, 3, unstable.Iteration)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Info().Object("error", modelErr).Msg("")
	assert.Contains(t, buf.String(), `"type":"ModelError"`)
	assert.Contains(t, buf.String(), `"kind":"GradientBoosting"`)
}

func TestMarshalZerologObject(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var schemaErr *SchemaError
	require.True(t, As(NewSchemaError("Load", "hour", "not found"), &schemaErr))
	logger.Error().Object("error", schemaErr).Msg("load failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	fields, ok := entry["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "hour", fields["column"])
	assert.Equal(t, "SchemaError", fields["type"])
}

func TestWarnRoutesToZerologFunc(t *testing.T) {
	var got []error
	SetZerologWarnFunc(func(w error) { got = append(got, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewUndefinedMetricWarning("r2", "constant target", 0))

	require.Len(t, got, 1)
	assert.Contains(t, got[0].Error(), "'r2' is ill-defined")
}

func TestWarnFallsBackToHandler(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(nil)

	Warn(NewUndefinedMetricWarning("r2", "constant target", 0))
	assert.Len(t, got, 1)
}

func TestRecover(t *testing.T) {
	t.Run("panic becomes PanicError", func(t *testing.T) {
		fn := func() (err error) {
			defer Recover(&err, "Stage")
			panic("index out of range")
		}
		err := fn()
		require.Error(t, err)

		var panicErr *PanicError
		require.ErrorAs(t, err, &panicErr)
		assert.Equal(t, "Stage", panicErr.Operation)
		assert.NotEmpty(t, panicErr.StackTrace)
		assert.True(t, strings.HasPrefix(panicErr.String(), "panic in Stage"))
	})

	t.Run("existing error is kept", func(t *testing.T) {
		original := fmt.Errorf("original")
		fn := func() (err error) {
			defer Recover(&err, "Stage")
			err = original
			panic("boom")
		}
		err := fn()
		assert.ErrorIs(t, err, original)
		assert.Contains(t, err.Error(), "panic in Stage")
	})

	t.Run("no panic", func(t *testing.T) {
		assert.NoError(t, SafeExecute("Stage", func() error { return nil }))
	})
}

func TestCheckNumericalStability(t *testing.T) {
	assert.NoError(t, CheckNumericalStability("loss", []float64{1, 2, 3}, 0))
	assert.NoError(t, CheckScalar("loss", 0.5, 3))

	err := CheckScalar("loss", math.NaN(), 7)
	var instErr *NumericalInstabilityError
	require.ErrorAs(t, err, &instErr)
	assert.Equal(t, 7, instErr.Iteration)
}
