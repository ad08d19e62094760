package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

func TestOneHotEncoderSortsCategories(t *testing.T) {
	encoder := NewOneHotEncoder(WithFeatureNames([]string{"seasons", "holiday"}))
	data := [][]string{
		{"Winter", "No Holiday"},
		{"Summer", "Holiday"},
		{"Autumn", "No Holiday"},
		{"Winter", "No Holiday"},
	}
	require.NoError(t, encoder.Fit(data))

	assert.Equal(t, [][]string{{"Autumn", "Summer", "Winter"}, {"Holiday", "No Holiday"}}, encoder.Categories())
	assert.Equal(t, 5, encoder.NOutputs())
	assert.Equal(t, []string{
		"seasons_Autumn", "seasons_Summer", "seasons_Winter",
		"holiday_Holiday", "holiday_No Holiday",
	}, encoder.FeatureNamesOut())

	encoded, err := encoder.Transform([][]string{{"Summer", "Holiday"}})
	require.NoError(t, err)
	assert.True(t, mat.Equal(mat.NewDense(1, 5, []float64{0, 1, 0, 1, 0}), encoded))
}

func TestOneHotEncoderUnknownCategory(t *testing.T) {
	train := [][]string{{"Winter"}, {"Summer"}}

	t.Run("error policy names the column", func(t *testing.T) {
		encoder := NewOneHotEncoder(WithFeatureNames([]string{"seasons"}))
		require.NoError(t, encoder.Fit(train))

		_, err := encoder.Transform([][]string{{"Monsoon"}})
		var schemaErr *errors.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.Equal(t, "seasons", schemaErr.Column)
		assert.Contains(t, schemaErr.Reason, `"Monsoon"`)
	})

	t.Run("ignore policy yields zeros", func(t *testing.T) {
		encoder := NewOneHotEncoder(WithEncoderUnknown(UnknownIgnore))
		require.NoError(t, encoder.Fit(train))

		encoded, err := encoder.Transform([][]string{{"Monsoon"}, {"Winter"}})
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0}, encoded.RawRowView(0))
		assert.Equal(t, []float64{0, 1}, encoded.RawRowView(1))
	})
}

func TestOneHotEncoderLifecycle(t *testing.T) {
	encoder := NewOneHotEncoder()

	_, err := encoder.Transform([][]string{{"a"}})
	var notFitted *errors.NotFittedError
	require.ErrorAs(t, err, &notFitted)
	assert.Nil(t, encoder.FeatureNamesOut())

	var valueErr *errors.ValueError
	require.ErrorAs(t, encoder.Fit(nil), &valueErr)

	require.NoError(t, encoder.Fit([][]string{{"a"}, {"b"}}))
	assert.Equal(t, []string{"x0_a", "x0_b"}, encoder.FeatureNamesOut())

	var alreadyFit *errors.AlreadyFitError
	assert.ErrorAs(t, encoder.Fit([][]string{{"c"}}), &alreadyFit)

	var dimErr *errors.DimensionError
	_, err = encoder.Transform([][]string{{"a", "b"}})
	assert.ErrorAs(t, err, &dimErr)
}

func TestOneHotEncoderRaggedInput(t *testing.T) {
	encoder := NewOneHotEncoder()
	err := encoder.Fit([][]string{{"a", "b"}, {"c"}})
	var dimErr *errors.DimensionError
	assert.ErrorAs(t, err, &dimErr)
	assert.False(t, encoder.IsFitted())
}
