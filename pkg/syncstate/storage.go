package syncstate

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound is returned by Storage.Load when no value is stored.
var ErrNotFound = errors.New("key not stored")

// Storage is the durable local mirror for synced state. Keys are
// namespaced by the implementation so unrelated application storage is
// never touched.
type Storage interface {
	// Load returns the stored bytes for key, or ErrNotFound.
	Load(key string) ([]byte, error)

	// Store persists the bytes for key, replacing any previous value.
	Store(key string, data []byte) error
}

// FileStorage keeps one JSON file per key under a namespace directory.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a FileStorage rooted at dir. The directory is
// created on demand.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

// path maps a key to a file path. Keys are escaped so arbitrary topic
// names ("mixer/fader:3") cannot traverse outside the namespace.
func (s *FileStorage) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

// Load returns the stored bytes for key.
func (s *FileStorage) Load(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Store persists the bytes for key.
func (s *FileStorage) Store(key string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(s.path(key), data, 0644)
}

// MemoryStorage is an in-memory Storage for tests and throwaway
// sessions.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string][]byte)}
}

// Load returns the stored bytes for key.
func (s *MemoryStorage) Load(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Store persists the bytes for key.
func (s *MemoryStorage) Store(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	s.values[key] = cp
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ Storage = (*FileStorage)(nil)
	_ Storage = (*MemoryStorage)(nil)
)
