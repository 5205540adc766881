package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// LocalStorage stores blobs as plain files under a base directory. Used for
// local development and dry runs where no storage account is configured.
type LocalStorage struct {
	baseDir string
}

var _ StorageInterface = (*LocalStorage)(nil)

// NewLocalStorage creates the base directory if it does not exist.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", baseDir, err)
	}

	logrus.Debugf("Using local storage at %s", baseDir)
	return &LocalStorage{baseDir: baseDir}, nil
}

func (s *LocalStorage) path(filename string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(filename))
}

// Store writes data to a file, creating parent directories as needed.
func (s *LocalStorage) Store(filename string, data []byte) error {
	path := s.path(filename)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", filename, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

// Retrieve reads a file back.
func (s *LocalStorage) Retrieve(filename string) ([]byte, error) {
	data, err := os.ReadFile(s.path(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return data, nil
}

// List returns the names of all stored files under the given prefix,
// relative to the base directory and using forward slashes.
func (s *LocalStorage) List(prefix string) ([]string, error) {
	var names []string
	err := filepath.Walk(s.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return names, nil
}

// Delete removes a stored file.
func (s *LocalStorage) Delete(filename string) error {
	if err := os.Remove(s.path(filename)); err != nil {
		return fmt.Errorf("failed to delete %s: %w", filename, err)
	}
	return nil
}
