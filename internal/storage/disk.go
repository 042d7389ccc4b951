package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrKeyExists indicates a write would overwrite an existing object.
	// Overwrites are always rejected; collisions are avoided by key
	// construction, not by replacement.
	ErrKeyExists = errors.New("storage: object key already exists")
	// ErrInvalidKey indicates a key that is empty, absolute, or escapes the store.
	ErrInvalidKey = errors.New("storage: invalid object key")
	// ErrObjectNotFound indicates no object is stored under the key.
	ErrObjectNotFound = errors.New("storage: object not found")

	errMissingBasePath = errors.New("storage: base path is required")
)

// DiskStore persists private objects under a base directory that is never
// exposed over HTTP directly. Reads happen only through signed URLs.
type DiskStore struct {
	basePath string
}

// NewDiskStore creates the base directory if needed and returns the store.
func NewDiskStore(basePath string) (*DiskStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, errMissingBasePath
	}
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("storage: creating base directory: %w", err)
	}
	return &DiskStore{basePath: basePath}, nil
}

// Save writes the object under key. An existing key is rejected with
// ErrKeyExists and the stored object is left untouched.
func (s *DiskStore) Save(key string, data io.Reader) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return err
	}

	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleaned))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("storage: creating parent directory: %w", err)
	}

	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrKeyExists
		}
		return fmt.Errorf("storage: opening object file: %w", err)
	}

	if _, err := io.Copy(file, data); err != nil {
		file.Close()
		os.Remove(fullPath)
		return fmt.Errorf("storage: writing object: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(fullPath)
		return fmt.Errorf("storage: closing object file: %w", err)
	}

	return nil
}

// Open returns a reader for the stored object.
func (s *DiskStore) Open(key string) (io.ReadCloser, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(s.basePath, filepath.FromSlash(cleaned)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("storage: opening object: %w", err)
	}
	return file, nil
}

// Remove deletes the object stored under the key, if any.
func (s *DiskStore) Remove(key string) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.basePath, filepath.FromSlash(cleaned))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: removing object: %w", err)
	}
	return nil
}

// Exists reports whether an object is stored under the key.
func (s *DiskStore) Exists(key string) (bool, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filepath.Join(s.basePath, filepath.FromSlash(cleaned)))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: stat object: %w", err)
	}
	return true, nil
}

// cleanKey validates a slash-separated object key and rejects anything that
// could escape the base directory.
func cleanKey(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, "\\\x00") {
		return "", ErrInvalidKey
	}
	if strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
