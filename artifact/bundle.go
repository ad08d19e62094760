// Package artifact persists a fitted feature transformer and regressor as one
// versioned, append-only file and reads it back for serving.
package artifact

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/bikeshare/core/model"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/preprocessing"
	"github.com/YuminosukeSato/bikeshare/sklearn/ensemble"
)

// Magic identifies an artifact file.
const Magic = "bikeshare-artifact"

// FormatVersion is the envelope version written by this package. Files with
// any other version are rejected.
const FormatVersion = 1

// Metadata describes the run that produced a bundle.
type Metadata struct {
	RunID         string
	CreatedAt     time.Time
	Kind          ensemble.Kind
	Params        ensemble.Params
	Features      []string
	Target        string
	FormatVersion int
}

// ModelName returns the artifact name prefix of the bundle's model kind.
func (m Metadata) ModelName() string {
	return m.Kind.ModelName()
}

// Bundle is a fitted transformer and the regressor trained on its output.
// The two are only valid together.
type Bundle struct {
	Transformer *preprocessing.ColumnTransformer
	Model       ensemble.Regressor
	Metadata    Metadata
}

// NewBundle pairs a fitted transformer with a fitted model and stamps a new
// run ID. CreatedAt is set when the bundle is saved.
func NewBundle(ct *preprocessing.ColumnTransformer, m ensemble.Regressor, target string) (*Bundle, error) {
	if ct == nil || m == nil {
		return nil, errors.NewValueError("artifact.NewBundle", "transformer and model are both required")
	}
	spec, err := m.Spec()
	if err != nil {
		return nil, err
	}
	b := &Bundle{
		Transformer: ct,
		Model:       m,
		Metadata: Metadata{
			RunID:         uuid.NewString(),
			Kind:          m.Kind(),
			Params:        spec.Params,
			Features:      ct.Columns(),
			Target:        target,
			FormatVersion: FormatVersion,
		},
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks that both halves are present and fitted and that the model
// consumes exactly the transformer's output columns.
func (b *Bundle) Validate() error {
	const op = "Bundle.Validate"
	if b.Transformer == nil {
		return errors.NewValueError(op, "missing transformer")
	}
	if b.Model == nil {
		return errors.NewValueError(op, "missing model")
	}
	if !b.Transformer.IsFitted() {
		return errors.NewNotFittedError("ColumnTransformer", "Bundle")
	}
	if b.Model.NFeatures() == 0 {
		return errors.NewNotFittedError(b.Model.Kind().ModelName(), "Bundle")
	}
	if got, want := b.Model.NFeatures(), b.Transformer.NOutputs(); got != want {
		return errors.NewDimensionError(op, want, got, 1)
	}
	if b.Metadata.Kind != b.Model.Kind() {
		return errors.NewValueError(op, fmt.Sprintf("metadata kind %q does not match model kind %q", b.Metadata.Kind, b.Model.Kind()))
	}
	if !slices.Equal(b.Metadata.Features, b.Transformer.Columns()) {
		return errors.NewValueError(op, "metadata features do not match transformer columns")
	}
	return nil
}

// envelope is the on-disk form of a Bundle.
type envelope struct {
	Magic         string
	FormatVersion int
	Metadata      Metadata
	Transformer   preprocessing.ColumnTransformerSpec
	Model         ensemble.Spec
}

// Encode writes b to w.
func (b *Bundle) Encode(w io.Writer) error {
	if err := b.Validate(); err != nil {
		return err
	}
	ctSpec, err := b.Transformer.Spec()
	if err != nil {
		return err
	}
	mSpec, err := b.Model.Spec()
	if err != nil {
		return err
	}
	meta := b.Metadata
	meta.FormatVersion = FormatVersion
	return model.SaveModelToWriter(envelope{
		Magic:         Magic,
		FormatVersion: FormatVersion,
		Metadata:      meta,
		Transformer:   ctSpec,
		Model:         mSpec,
	}, w)
}

// Decode reads a bundle written by Encode. Every failure is an
// ArtifactCorruptError naming source.
func Decode(r io.Reader, source string) (*Bundle, error) {
	var env envelope
	if err := model.LoadModelFromReader(&env, r); err != nil {
		return nil, errors.NewArtifactCorruptError(source, "cannot decode", err)
	}
	if env.Magic != Magic {
		return nil, errors.NewArtifactCorruptError(source, "not a bikeshare artifact", nil)
	}
	if env.FormatVersion != FormatVersion {
		return nil, errors.NewArtifactCorruptError(source, fmt.Sprintf("unsupported format version %d", env.FormatVersion), nil)
	}
	if env.Metadata.Kind != env.Model.Kind {
		return nil, errors.NewArtifactCorruptError(source,
			fmt.Sprintf("metadata kind %q does not match model kind %q", env.Metadata.Kind, env.Model.Kind), nil)
	}

	ct, err := preprocessing.ColumnTransformerFromSpec(env.Transformer)
	if err != nil {
		return nil, errors.NewArtifactCorruptError(source, "invalid transformer", err)
	}
	m, err := ensemble.FromSpec(env.Model)
	if err != nil {
		return nil, errors.NewArtifactCorruptError(source, "invalid model", err)
	}
	b := &Bundle{Transformer: ct, Model: m, Metadata: env.Metadata}
	if err := b.Validate(); err != nil {
		return nil, errors.NewArtifactCorruptError(source, "transformer and model do not match", err)
	}
	return b, nil
}
