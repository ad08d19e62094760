package artifact

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/bikeshare/core/model"
	"github.com/YuminosukeSato/bikeshare/dataset"
	"github.com/YuminosukeSato/bikeshare/internal/synthetic"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/pkg/log"
	"github.com/YuminosukeSato/bikeshare/preprocessing"
	"github.com/YuminosukeSato/bikeshare/sklearn/ensemble"
)

var fixedNow = time.Date(2024, time.May, 17, 9, 30, 5, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func fitBundle(t *testing.T, kind ensemble.Kind) *Bundle {
	t.Helper()
	train, err := dataset.FromRows(synthetic.Rows(300, 1), synthetic.Features, synthetic.Target)
	require.NoError(t, err)

	ct, err := preprocessing.NewColumnTransformer(synthetic.Features)
	require.NoError(t, err)
	X, err := ct.FitTransform(train)
	require.NoError(t, err)

	params := ensemble.DefaultParams()
	params.NEstimators = 10
	params.MaxDepth = 3
	m, err := ensemble.New(kind, params)
	require.NoError(t, err)
	require.NoError(t, m.Fit(X, train.TargetVec()))

	b, err := NewBundle(ct, m, synthetic.Target)
	require.NoError(t, err)
	return b
}

func predict(t *testing.T, b *Bundle, ds *dataset.Dataset) *mat.VecDense {
	t.Helper()
	X, err := b.Transformer.Transform(ds)
	require.NoError(t, err)
	pred, err := b.Model.Predict(X)
	require.NoError(t, err)
	return pred
}

func TestSaveLoadRoundTrip(t *testing.T) {
	unseen, err := dataset.FromRows(synthetic.Rows(72, 2), synthetic.Features, "")
	require.NoError(t, err)

	for _, kind := range []ensemble.Kind{ensemble.GradientBoosting, ensemble.DecisionTree, ensemble.RandomForest} {
		t.Run(string(kind), func(t *testing.T) {
			logger, buf := log.NewTestLogger(log.LevelDebug)
			store := NewStore(t.TempDir(), WithClock(fixedClock), WithLogger(logger))
			b := fitBundle(t, kind)

			path, err := store.Save(b)
			require.NoError(t, err)
			assert.Equal(t, FileName(kind.ModelName(), fixedNow, b.Metadata.RunID), filepath.Base(path))
			assert.True(t, strings.HasPrefix(filepath.Base(path), kind.ModelName()+"_2024-05-17_09-30-05_"))
			assert.Contains(t, buf.String(), "Artifact saved")

			loaded, err := store.Load(path)
			require.NoError(t, err)

			assert.True(t, mat.Equal(predict(t, b, unseen), predict(t, loaded, unseen)))
			assert.Equal(t, b.Transformer.FeatureNamesOut(), loaded.Transformer.FeatureNamesOut())

			assert.Equal(t, b.Metadata.RunID, loaded.Metadata.RunID)
			assert.NotEmpty(t, loaded.Metadata.RunID)
			assert.True(t, fixedNow.Equal(loaded.Metadata.CreatedAt))
			assert.Equal(t, kind, loaded.Metadata.Kind)
			assert.Equal(t, synthetic.Features, loaded.Metadata.Features)
			assert.Equal(t, synthetic.Target, loaded.Metadata.Target)
			assert.Equal(t, FormatVersion, loaded.Metadata.FormatVersion)
			assert.Equal(t, 3, loaded.Metadata.Params.MaxDepth)
		})
	}
}

func TestSaveNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, WithClock(fixedClock))

	b := fitBundle(t, ensemble.DecisionTree)
	first, err := store.Save(b)
	require.NoError(t, err)
	before, err := os.ReadFile(first)
	require.NoError(t, err)

	_, err = store.Save(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrExist)

	after, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestSaveDistinguishesRunsWithinOneSecond(t *testing.T) {
	cases := []struct {
		name string
		opts []Option
	}{
		{"wall clock", nil},
		{"same timestamp", []Option{WithClock(fixedClock)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			store := NewStore(dir, tc.opts...)

			first, err := store.Save(fitBundle(t, ensemble.DecisionTree))
			require.NoError(t, err)
			second, err := store.Save(fitBundle(t, ensemble.DecisionTree))
			require.NoError(t, err)
			assert.NotEqual(t, first, second)

			for _, path := range []string{first, second} {
				name, _, ok := ParseFileName(path)
				require.True(t, ok, path)
				assert.Equal(t, "DecisionTree", name)
			}

			latest, err := store.Latest("DecisionTree")
			require.NoError(t, err)
			assert.Contains(t, []string{first, second}, latest)
		})
	}
}

func TestSaveAssignsMissingRunID(t *testing.T) {
	b := fitBundle(t, ensemble.DecisionTree)
	b.Metadata.RunID = ""

	path, err := NewStore(t.TempDir(), WithClock(fixedClock)).Save(b)
	require.NoError(t, err)
	require.NotEmpty(t, b.Metadata.RunID)
	assert.Equal(t, FileName("DecisionTree", fixedNow, b.Metadata.RunID), filepath.Base(path))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "GradientBoosting_2024-01-01_00-00-00.gob"))
		var notFound *errors.ArtifactNotFoundError
		assert.ErrorAs(t, err, &notFound)
	})

	writeEnvelope := func(t *testing.T, env any) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "artifact.gob")
		require.NoError(t, model.WriteFileAtomic(path, model.NoClobber, func(w io.Writer) error {
			return model.SaveModelToWriter(env, w)
		}))
		return path
	}

	validEnvelope := func(t *testing.T) envelope {
		t.Helper()
		b := fitBundle(t, ensemble.GradientBoosting)
		ctSpec, err := b.Transformer.Spec()
		require.NoError(t, err)
		mSpec, err := b.Model.Spec()
		require.NoError(t, err)
		return envelope{Magic: Magic, FormatVersion: FormatVersion, Metadata: b.Metadata, Transformer: ctSpec, Model: mSpec}
	}

	cases := map[string]func(env *envelope){
		"wrong magic":       func(env *envelope) { env.Magic = "xgboost" },
		"future version":    func(env *envelope) { env.FormatVersion = FormatVersion + 1 },
		"unknown kind":      func(env *envelope) { env.Model.Kind = "linear"; env.Metadata.Kind = "linear" },
		"kind mismatch":     func(env *envelope) { env.Metadata.Kind = ensemble.RandomForest },
		"missing model":     func(env *envelope) { env.Model.Trees = nil },
		"missing transform": func(env *envelope) { env.Transformer = preprocessing.ColumnTransformerSpec{} },
		"width mismatch":    func(env *envelope) { env.Model.NFeatures++ },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			env := validEnvelope(t)
			mutate(&env)
			_, err := Load(writeEnvelope(t, env))
			var corrupt *errors.ArtifactCorruptError
			assert.ErrorAs(t, err, &corrupt)
		})
	}

	t.Run("valid envelope loads", func(t *testing.T) {
		_, err := Load(writeEnvelope(t, validEnvelope(t)))
		assert.NoError(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.gob")
		require.NoError(t, os.WriteFile(path, []byte("definitely not gob"), 0o644))
		_, err := Load(path)
		var corrupt *errors.ArtifactCorruptError
		require.ErrorAs(t, err, &corrupt)
		assert.Equal(t, path, corrupt.Path)
	})

	t.Run("truncated", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, fitBundle(t, ensemble.DecisionTree).Encode(&buf))
		_, err := Decode(bytes.NewReader(buf.Bytes()[:buf.Len()/2]), "truncated")
		var corrupt *errors.ArtifactCorruptError
		assert.ErrorAs(t, err, &corrupt)
	})
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	_, err := store.Latest("GradientBoosting")
	var notFound *errors.ArtifactNotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = NewStore(filepath.Join(dir, "does-not-exist")).Latest("")
	require.ErrorAs(t, err, &notFound)

	for _, name := range []string{
		"GradientBoosting_2024-01-02_10-00-00.gob",
		"GradientBoosting_2024-03-01_08-15-00.gob",
		"GradientBoosting_2023-12-31_23-59-59.gob",
		"RandomForest_2024-04-01_00-00-00.gob",
		"XGBoost_2025-01-01_00-00-00.gob",
		"GradientBoosting_latest.gob",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	got, err := store.Latest("GradientBoosting")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "GradientBoosting_2024-03-01_08-15-00.gob"), got)

	got, err = store.Latest("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "RandomForest_2024-04-01_00-00-00.gob"), got)

	_, err = store.Latest("DecisionTree")
	assert.ErrorAs(t, err, &notFound)

	// Same second: the more recently written file wins.
	older := filepath.Join(dir, "GradientBoosting_2024-03-01_08-15-00_ffffffff.gob")
	newer := filepath.Join(dir, "GradientBoosting_2024-03-01_08-15-00_00000000.gob")
	require.NoError(t, os.WriteFile(older, nil, 0o644))
	require.NoError(t, os.WriteFile(newer, nil, 0o644))
	base := time.Date(2024, time.March, 1, 8, 15, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(older, base, base))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "GradientBoosting_2024-03-01_08-15-00.gob"), base, base))
	require.NoError(t, os.Chtimes(newer, base.Add(time.Minute), base.Add(time.Minute)))

	got, err = store.Latest("GradientBoosting")
	require.NoError(t, err)
	assert.Equal(t, newer, got)
}

func TestParseFileName(t *testing.T) {
	for _, file := range []string{
		FileName("RandomForest", fixedNow, "3F2A9C1D-0b7e-4a52-9d3c-1e2f3a4b5c6d"),
		FileName("RandomForest", fixedNow, ""),
		"RandomForest_2024-05-17_09-30-05.gob",
	} {
		name, ts, ok := ParseFileName(file)
		require.True(t, ok, file)
		assert.Equal(t, "RandomForest", name, file)
		assert.True(t, fixedNow.Equal(ts), file)
	}
	assert.Equal(t, "RandomForest_2024-05-17_09-30-05_3f2a9c1d.gob",
		FileName("RandomForest", fixedNow, "3F2A9C1D-0b7e-4a52-9d3c-1e2f3a4b5c6d"))
	assert.Equal(t, "RandomForest_2024-05-17_09-30-05.gob", FileName("RandomForest", fixedNow, "run-1"))

	for _, bad := range []string{
		"", "RandomForest.gob", "RandomForest_2024-13-01_00-00-00.gob",
		"RandomForest2024-01-01_00-00-00.gob", "RandomForest_2024-01-01_00-00-00.json",
		"RandomForest_2024-01-01_00-00-00_nothex!!.gob", "RandomForest_2024-01-01_00-00-00__3f2a9c1d.gob",
	} {
		_, _, ok := ParseFileName(bad)
		assert.False(t, ok, bad)
	}
}

func TestBundleValidate(t *testing.T) {
	b := fitBundle(t, ensemble.GradientBoosting)
	require.NoError(t, b.Validate())

	other, err := preprocessing.NewColumnTransformer([]string{"hour", "seasons"})
	require.NoError(t, err)
	ds, err := dataset.FromRows(synthetic.Rows(24, 3), []string{"hour", "seasons"}, "")
	require.NoError(t, err)
	require.NoError(t, other.Fit(ds))

	mismatched := *b
	mismatched.Transformer = other
	var dimErr *errors.DimensionError
	assert.ErrorAs(t, mismatched.Validate(), &dimErr)

	unfitted, err := ensemble.New(ensemble.GradientBoosting, ensemble.DefaultParams())
	require.NoError(t, err)
	_, err = NewBundle(b.Transformer, unfitted, synthetic.Target)
	var notFitted *errors.NotFittedError
	assert.ErrorAs(t, err, &notFitted)

	_, err = NewBundle(nil, b.Model, synthetic.Target)
	var valueErr *errors.ValueError
	assert.ErrorAs(t, err, &valueErr)
}
