package token

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore persists the token to a single file with owner-only
// permissions. Writes go through a temp file and rename so a crash
// mid-write never leaves a truncated token behind.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the file at path. The parent
// directory is created on first Save if it does not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes the token to the backing file.
func (s *FileStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the token from the backing file. A missing file is not an
// error; it reads as an empty token.
func (s *FileStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Clear removes the backing file.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
