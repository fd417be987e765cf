package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/alanyoungcy/buyalert/internal/domain"
)

// FileStore writes the alert threshold back into the TOML file it was loaded
// from. Other keys in the file are preserved.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore for the given TOML path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// SaveThreshold sets value_require in the file and replaces it atomically.
func (s *FileStore) SaveThreshold(ctx context.Context, value float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := map[string]any{}
	if _, err := toml.DecodeFile(s.path, &doc); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("config: read %s: %w", s.path, err)
	}
	doc["value_require"] = value

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".buyalert-*.toml")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(doc); err != nil {
		tmp.Close()
		return fmt.Errorf("config: encode %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("config: replace %s: %w", s.path, err)
	}
	return nil
}

var _ domain.ThresholdStore = (*FileStore)(nil)
