package testsupport

import (
	"context"
	"errors"
	"sort"
	"sync"

	"avatarcast/internal/storage"
)

// MemoryStore is an in-memory storage.Store.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	puts    int

	// PutErr, when set, is returned by every Put.
	PutErr error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

// Put implements storage.Store.
func (s *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := storage.CleanKey(key)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return "", s.PutErr
	}
	s.puts++
	s.objects[key] = append([]byte(nil), data...)
	s.types[key] = contentType
	return s.URL(key), nil
}

// Exists implements storage.Store.
func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	key, err := storage.CleanKey(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

// URL implements storage.Store.
func (s *MemoryStore) URL(key string) string {
	return "mem://" + key
}

// Ping implements storage.Store.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements storage.Store.
func (s *MemoryStore) Close() error { return nil }

// Backend implements storage.Store.
func (s *MemoryStore) Backend() string { return "memory" }

// Object returns a stored object and its content type.
func (s *MemoryStore) Object(key string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, s.types[key], ok
}

// Keys lists stored keys in sorted order.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Puts reports how many successful writes happened.
func (s *MemoryStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// ErrStoreDown is a convenience error for failing stores.
var ErrStoreDown = errors.New("store unavailable")
