package receipt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Storage defines the interface for file storage operations
type Storage interface {
	// Save writes a file, replacing any file with the same name, and returns its locator
	Save(filename string, data []byte) (string, error)

	// Get retrieves a file by locator. A missing file is ErrNotFound.
	Get(locator string) ([]byte, error)

	// Delete removes a file
	Delete(locator string) error
}

// LocalStorage keeps uploads in one flat directory keyed by file name
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save saves a file to local storage. The locator is the upload directory joined
// with the base name, so the same name always maps to the same locator.
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file name %q", filename)
	}
	locator := filepath.Join(l.basePath, name)
	if err := os.WriteFile(locator, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return locator, nil
}

// Get retrieves a file from local storage
func (l *LocalStorage) Get(locator string) ([]byte, error) {
	data, err := os.ReadFile(locator)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("file %s: %w", locator, ErrNotFound)
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a file from local storage
func (l *LocalStorage) Delete(locator string) error {
	if err := os.Remove(locator); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}
