package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LocalFileStore writes exported artifacts to <root>/<run_id>/<name>.
type LocalFileStore struct {
	root string
}

// NewLocalFileStore creates the root directory if needed.
func NewLocalFileStore(root string) (*LocalFileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &LocalFileStore{root: root}, nil
}

// Write implements FileStore. The write is atomic: data lands in a temp file
// that is renamed into place.
func (s *LocalFileStore) Write(ctx context.Context, runID, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(s.root, filepath.Base(runID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create run export directory: %w", err)
	}
	target := filepath.Join(dir, filepath.Base(name))
	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}

// MemoryFileStore keeps artifacts in memory for tests and mock mode.
type MemoryFileStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryFileStore returns an empty in-memory file store.
func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{files: make(map[string][]byte)}
}

// Write implements FileStore.
func (s *MemoryFileStore) Write(ctx context.Context, runID, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.files[runID+"/"+name] = buf
	return nil
}

// Get returns a stored artifact.
func (s *MemoryFileStore) Get(runID, name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[runID+"/"+name]
	return data, ok
}
