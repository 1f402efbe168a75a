// ABOUTME: JSON file implementation of the Store interface
// ABOUTME: Persists the conversation snapshot as one pretty-printed document

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore keeps the snapshot in a single pretty-printed JSON document at a
// fixed path. Loading a file that does not exist yet yields an empty
// snapshot; any other read failure propagates.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a file store for the given path. The parent directory
// is created on the first Save, not here.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		logger: slog.Default().With("component", "store"),
	}
}

// Load reads and decodes the snapshot document.
func (s *FileStore) Load(ctx context.Context) (map[string]*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Record{}, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	records := map[string]*Record{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding state file %s: %w", s.path, err)
	}
	return records, nil
}

// Save writes the snapshot as an indented JSON document, creating the parent
// directory if needed.
func (s *FileStore) Save(ctx context.Context, records map[string]*Record) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}

	s.logger.Debug("state saved", "path", s.path, "records", len(records))
	return nil
}

// Close is a no-op; the file is not held open between operations.
func (s *FileStore) Close() error {
	return nil
}
