// Package metricstore provides the persistence backends for metrics
// snapshots: a JSON file (default) and SQLite.
package metricstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"lucius-ai/internal/domain"
)

// FileStore persists the snapshot as a single indented JSON file,
// written atomically (tmp file + rename).
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore, creating the parent directory.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("metricstore: create dir: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the snapshot from disk. Returns (nil, nil) when no
// snapshot has been written yet.
func (s *FileStore) Load(_ context.Context) (*domain.MetricsSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.WrapOp("read", err)
	}

	var snap domain.MetricsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("metricstore: parse %s: %w", s.path, err)
	}
	return &snap, nil
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(_ context.Context, snap domain.MetricsSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return domain.WrapOp("marshal", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return domain.WrapOp("write", err)
	}
	return os.Rename(tmp, s.path)
}
