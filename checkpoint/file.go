package checkpoint

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileStorage keeps the document in a JSON file on local disk. Writes go to a
// temporary file in the same directory that is renamed over the target, so a
// failed write never leaves a truncated document behind.
type FileStorage struct {
	path string
}

// NewFileStorage returns a FileStorage for the file at path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Location returns the file path.
func (f *FileStorage) Location() string { return f.path }

// Read returns the file content, or nil if the file does not exist.
func (f *FileStorage) Read(ctx context.Context) ([]byte, error) {
	b, err := ioutil.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read recovery file")
	}
	return b, nil
}

// Write atomically replaces the file content.
func (f *FileStorage) Write(ctx context.Context, doc []byte) error {
	tmp, err := ioutil.TempFile(filepath.Dir(f.path), filepath.Base(f.path)+".tmp-")
	if err != nil {
		return errors.Wrap(err, "create temporary recovery file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temporary recovery file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync temporary recovery file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temporary recovery file")
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return errors.Wrap(err, "chmod temporary recovery file")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrap(err, "replace recovery file")
	}
	return nil
}
