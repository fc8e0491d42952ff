package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// KV is the simple keyed get/set/remove contract the core sees for durable
// storage.
type KV interface {
	Get(key string, out any) (bool, error)
	Set(key string, value any) error
	Remove(key string) error
}

// FileStore is a JSON-file-per-key KV implementation. All access is
// serialized; callers that mutate must re-read before each write
// (read-modify-write) since there is no finer-grained locking.
type FileStore struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, logger: logger.Named("FileStore")}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Get reads the value stored under key into out. A missing key is not an
// error; the bool reports presence.
func (s *FileStore) Get(key string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Set writes value under key atomically (write temp then rename).
func (s *FileStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Remove deletes the value under key. Removing a missing key is a no-op.
func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}
