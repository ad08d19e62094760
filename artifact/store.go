package artifact

import (
	"bufio"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/bikeshare/core/model"
	"github.com/YuminosukeSato/bikeshare/pkg/errors"
	"github.com/YuminosukeSato/bikeshare/pkg/log"
	"github.com/YuminosukeSato/bikeshare/sklearn/ensemble"
)

// TimestampLayout is the time format embedded in artifact file names.
const TimestampLayout = "2006-01-02_15-04-05"

// Ext is the artifact file extension.
const Ext = ".gob"

// runTagLen is the length of the run ID prefix appended to artifact names.
const runTagLen = 8

// FileName returns <modelName>_<timestamp>_<tag>.gob for t in UTC, where tag
// is the first eight hex digits of runID. Runs saved within the same second
// therefore get distinct names. An empty or non-hex runID yields the legacy
// <modelName>_<timestamp>.gob form.
func FileName(modelName string, t time.Time, runID string) string {
	name := modelName + "_" + t.UTC().Format(TimestampLayout)
	if tag := RunTag(runID); tag != "" {
		name += "_" + tag
	}
	return name + Ext
}

// RunTag returns the first eight hex digits of runID, ignoring hyphens, or ""
// when runID has fewer.
func RunTag(runID string) string {
	var b strings.Builder
	for _, r := range runID {
		if r == '-' {
			continue
		}
		if !isHex(r) {
			return ""
		}
		b.WriteRune(unicode.ToLower(r))
		if b.Len() == runTagLen {
			return b.String()
		}
	}
	return ""
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// ParseFileName splits an artifact file name into its model name and
// timestamp. Both <model>_<timestamp>_<tag>.gob and the legacy
// <model>_<timestamp>.gob are accepted.
func ParseFileName(name string) (modelName string, t time.Time, ok bool) {
	base, found := strings.CutSuffix(filepath.Base(name), Ext)
	if !found {
		return "", time.Time{}, false
	}
	if cut := len(base) - runTagLen - 1; cut > 0 && base[cut] == '_' && RunTag(base[cut+1:]) == base[cut+1:] {
		if modelName, t, ok = parseStamped(base[:cut]); ok {
			return modelName, t, true
		}
	}
	return parseStamped(base)
}

// parseStamped splits <model>_<timestamp>.
func parseStamped(base string) (string, time.Time, bool) {
	if len(base) < len(TimestampLayout)+2 {
		return "", time.Time{}, false
	}
	cut := len(base) - len(TimestampLayout)
	if base[cut-1] != '_' {
		return "", time.Time{}, false
	}
	t, err := time.Parse(TimestampLayout, base[cut:])
	if err != nil {
		return "", time.Time{}, false
	}
	return base[:cut-1], t, true
}

// Store saves bundles into, and finds them in, one directory.
type Store struct {
	dir    string
	clock  func() time.Time
	logger log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used to stamp saved bundles.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates a Store over dir. The directory is created on first Save.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		clock:  time.Now,
		logger: log.GetLoggerWithName("artifact"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Save writes b under a new name built from its model name, the current time
// and its run ID, and returns the path. A bundle without a run ID is given
// one. Existing files are never overwritten; if the name is taken Save fails
// and the directory is unchanged.
//
// Parameters:
//   - b: a fitted bundle; it must pass Validate
//
// Returns:
//   - string: the path of the new artifact, e.g.
//     artifacts/GradientBoosting_2024-06-01_12-00-00_3f2a9c1d.gob
//   - error: the Validate error, or a wrapped I/O error (fs.ErrExist when the
//     name is already taken)
//
// Example:
//
//	store := artifact.NewStore("artifacts")
//	bundle, err := artifact.NewBundle(ct, regressor, "rented_bike_count")
//	if err != nil {
//	    return err
//	}
//	path, err := store.Save(bundle)
//	if err != nil {
//	    return err
//	}
//	log.Printf("saved %s (run %s)", path, bundle.Metadata.RunID)
func (s *Store) Save(b *Bundle) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}
	if b.Metadata.RunID == "" {
		b.Metadata.RunID = uuid.NewString()
	}
	now := s.clock().UTC().Truncate(time.Second)
	b.Metadata.CreatedAt = now
	b.Metadata.FormatVersion = FormatVersion

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create artifact directory %s", s.dir)
	}
	path := filepath.Join(s.dir, FileName(b.Metadata.ModelName(), now, b.Metadata.RunID))
	err := model.WriteFileAtomic(path, model.NoClobber, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if err := b.Encode(bw); err != nil {
			return err
		}
		return bw.Flush()
	})
	if err != nil {
		s.logger.Error("Artifact save failed", err, log.ArtifactKey, path)
		return "", err
	}

	s.logger.Info("Artifact saved",
		log.ArtifactKey, path,
		log.ModelNameKey, b.Metadata.ModelName(),
		log.RunIDKey, b.Metadata.RunID,
		log.FeaturesKey, b.Model.NFeatures(),
		log.FormatVersionKey, FormatVersion,
	)
	return path, nil
}

// Load reads the bundle at path. See the package-level Load.
func (s *Store) Load(path string) (*Bundle, error) {
	b, err := Load(path)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Artifact loaded", log.ArtifactKey, path, log.RunIDKey, b.Metadata.RunID)
	return b, nil
}

// Load reads the bundle at path. A missing file is an ArtifactNotFoundError;
// a file that cannot be turned back into a matching transformer and model is
// an ArtifactCorruptError.
func Load(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewArtifactNotFoundError(path)
		}
		return nil, errors.Wrapf(err, "open artifact %s", path)
	}
	defer f.Close()
	return Decode(bufio.NewReader(f), path)
}

// Latest returns the path of the newest artifact for modelName, judged by the
// timestamp in the file name and, within one second, by modification time.
// An empty modelName matches every model kind.
func (s *Store) Latest(modelName string) (string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", errors.Wrapf(err, "list artifacts in %s", s.dir)
	}

	type candidate struct {
		name    string
		t       time.Time
		modTime time.Time
	}
	var found []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, t, ok := ParseFileName(e.Name())
		if !ok {
			continue
		}
		if modelName != "" && name != modelName {
			continue
		}
		if _, known := ensemble.KindFromModelName(name); !known {
			continue
		}
		c := candidate{name: e.Name(), t: t}
		if info, err := e.Info(); err == nil {
			c.modTime = info.ModTime()
		}
		found = append(found, c)
	}
	if len(found) == 0 {
		pattern := modelName
		if pattern == "" {
			pattern = "*"
		}
		return "", errors.NewArtifactNotFoundError(filepath.Join(s.dir, pattern+"_*"+Ext))
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].t.Equal(found[j].t) {
			return found[i].t.After(found[j].t)
		}
		if !found[i].modTime.Equal(found[j].modTime) {
			return found[i].modTime.After(found[j].modTime)
		}
		return found[i].name > found[j].name
	})
	return filepath.Join(s.dir, found[0].name), nil
}
