package flagstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore keeps flags in a single YAML document on local disk.
// Writes go to a temporary file that is renamed over the original.
type FileStore struct {
	path string

	mu    sync.Mutex
	flags map[string]string
}

// NewFileStore opens (or lazily creates) the YAML flag file at path.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("flag store path cannot be empty")
	}
	s := &FileStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.flags = map[string]string{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read flag file %s: %w", s.path, err)
	}

	flags := map[string]string{}
	if err := yaml.Unmarshal(data, &flags); err != nil {
		return fmt.Errorf("failed to parse flag file %s: %w", s.path, err)
	}
	s.flags = flags
	return nil
}

func (s *FileStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[key], nil
}

func (s *FileStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.flags[key]
	s.flags[key] = value
	if err := s.flush(); err != nil {
		if had {
			s.flags[key] = prev
		} else {
			delete(s.flags, key)
		}
		return err
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.flags[key]
	if !had {
		return nil
	}
	delete(s.flags, key)
	if err := s.flush(); err != nil {
		s.flags[key] = prev
		return err
	}
	return nil
}

// flush must be called with mu held.
func (s *FileStore) flush() error {
	data, err := yaml.Marshal(s.flags)
	if err != nil {
		return fmt.Errorf("failed to encode flags: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create flag directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".flags-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp flag file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write flags: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync flags: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp flag file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace flag file %s: %w", s.path, err)
	}
	return nil
}
