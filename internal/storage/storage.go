package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/nikhilbhutani/docgen/internal/apperr"
)

// Storage reads reference files by id. Ids are object paths relative to the
// configured bucket or directory.
type Storage interface {
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// DirStorage serves files from a local directory.
type DirStorage struct {
	fsys fs.FS
}

func NewDirStorage(dir string) *DirStorage {
	return &DirStorage{fsys: os.DirFS(dir)}
}

// NewFSStorage wraps any fs.FS, mostly for tests.
func NewFSStorage(fsys fs.FS) *DirStorage {
	return &DirStorage{fsys: fsys}
}

func (s *DirStorage) Download(_ context.Context, fileID string) (io.ReadCloser, error) {
	name, err := cleanID(fileID)
	if err != nil {
		return nil, err
	}
	f, err := s.fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.NotFoundf("file %s", fileID)
		}
		return nil, fmt.Errorf("open %s: %w", fileID, err)
	}
	return f, nil
}

// cleanID rejects ids that would escape the storage root.
func cleanID(fileID string) (string, error) {
	name := path.Clean(strings.TrimPrefix(fileID, "/"))
	if !fs.ValidPath(name) || name == "." {
		return "", apperr.Invalid("file_id", "invalid file id %q", fileID)
	}
	return name, nil
}
