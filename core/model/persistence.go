package model

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/bikeshare/pkg/errors"
)

// SaveModelToWriter gob-encodes v into w.
func SaveModelToWriter(v interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader gob-decodes r into v, which must be a pointer.
func LoadModelFromReader(v interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(v); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}

// WriteMode selects how WriteFileAtomic publishes the finished file.
type WriteMode int

const (
	// Replace renames the temporary file over any existing file.
	Replace WriteMode = iota
	// NoClobber hard-links the temporary file to the destination and fails if
	// the destination already exists.
	NoClobber
)

// WriteFileAtomic writes a file so that readers observe either nothing or the
// complete content. write fills a temporary file in the destination directory;
// the file is synced and then published according to mode. On any failure the
// temporary file is removed and the destination is left untouched.
//
//	err := model.WriteFileAtomic(path, model.NoClobber, func(w io.Writer) error {
//		return model.SaveModelToWriter(envelope, w)
//	})
func WriteFileAtomic(path string, mode WriteMode, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "create temporary file in %s", dir)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
		}
		_ = os.Remove(tmpName)
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrapf(err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		tmp = nil
		return errors.Wrapf(err, "close %s", tmpName)
	}
	tmp = nil

	switch mode {
	case NoClobber:
		if err := os.Link(tmpName, path); err != nil {
			return errors.Wrapf(err, "publish %s", path)
		}
	default:
		if err := os.Rename(tmpName, path); err != nil {
			return errors.Wrapf(err, "publish %s", path)
		}
	}
	return nil
}
