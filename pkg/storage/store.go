package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Store is the filesystem surface the sync engine needs. The directory tree
// it exposes is the only record of what has been downloaded.
type Store interface {
	// Exists reports whether a file or directory exists at path
	Exists(path string) (bool, error)
	// MkdirAll creates path and any missing parents. Safe to call concurrently.
	MkdirAll(path string) error
	// WriteAtomic streams r into path through a temporary sibling file, so a
	// partial write never appears under the final name.
	WriteAtomic(path string, r io.Reader) (int64, error)
	// ReadFile returns the contents of path
	ReadFile(path string) ([]byte, error)
	// ReadDir lists the entries of a directory
	ReadDir(path string) ([]os.FileInfo, error)
}

// FSStore implements Store on top of an afero filesystem
type FSStore struct {
	fs afero.Fs
}

// NewFSStore wraps an afero filesystem
func NewFSStore(fs afero.Fs) *FSStore {
	return &FSStore{fs: fs}
}

// NewOSStore returns a store backed by the real filesystem
func NewOSStore() *FSStore {
	return NewFSStore(afero.NewOsFs())
}

// Exists checks for path without distinguishing files from directories
func (s *FSStore) Exists(path string) (bool, error) {
	ok, err := afero.Exists(s.fs, path)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return ok, nil
}

// MkdirAll creates a directory tree
func (s *FSStore) MkdirAll(path string) error {
	if err := s.fs.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// WriteAtomic writes to a temporary file first and renames it into place
func (s *FSStore) WriteAtomic(path string, r io.Reader) (int64, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+base+".*.part")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	closeErr := tmp.Close()

	if err != nil {
		s.fs.Remove(tmpName)
		return n, fmt.Errorf("failed to write %s: %w", path, err)
	}

	if closeErr != nil {
		s.fs.Remove(tmpName)
		return n, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := s.fs.Rename(tmpName, path); err != nil {
		s.fs.Remove(tmpName)
		return n, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return n, nil
}

// ReadFile returns the contents of path
func (s *FSStore) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(s.fs, path)
}

// ReadDir lists a directory sorted by name
func (s *FSStore) ReadDir(path string) ([]os.FileInfo, error) {
	entries, err := afero.ReadDir(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", path, err)
	}
	return entries, nil
}
