package waypoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const ext = ".json"

// FileStore keeps one pretty-printed JSON file per waypoint in a directory.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a store rooted at dir, creating the directory.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+ext)
}

// Save writes the document with two-space indentation.
func (s *FileStore) Save(_ context.Context, name string, doc json.RawMessage) error {
	if err := validate(name, doc); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Write to temp file first, then rename (atomic write)
	path := s.path(name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads one document.
func (s *FileStore) Load(_ context.Context, name string) (json.RawMessage, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s: %w", name, ErrInvalidDocument)
	}
	return data, nil
}

// All reads every regular .json file in the directory.
func (s *FileStore) All(_ context.Context) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	all := make(map[string]json.RawMessage)
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != ext {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("%s: %w", e.Name(), ErrInvalidDocument)
		}
		all[strings.TrimSuffix(e.Name(), ext)] = data
	}
	return all, nil
}
