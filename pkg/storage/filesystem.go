package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrArtifactNotFound is returned when a preview artifact does not exist.
var ErrArtifactNotFound = errors.New("artifact not found")

// LocalStorage persists preview artifacts on disk under a dedicated directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./previews"
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create preview directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Create opens a new artifact for writing. It fails if the name is already taken.
func (s *LocalStorage) Create(_ context.Context, name string) (io.WriteCloser, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create preview artifact: %w", err)
	}
	return file, nil
}

// Read returns the artifact contents.
func (s *LocalStorage) Read(_ context.Context, name string) ([]byte, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("read preview artifact: %w", err)
	}
	return data, nil
}

// Delete removes a stored artifact if present.
func (s *LocalStorage) Delete(_ context.Context, name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete preview artifact: %w", err)
	}
	return nil
}

// CleanupOlderThan removes artifacts older than the provided TTL and returns deleted names.
func (s *LocalStorage) CleanupOlderThan(_ context.Context, ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	err := filepath.WalkDir(s.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		deleted = append(deleted, d.Name())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup previews: %w", err)
	}
	return deleted, nil
}

// resolve keeps artifact names flat inside the base directory.
func (s *LocalStorage) resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrArtifactNotFound
	}
	return filepath.Join(s.baseDir, name), nil
}
