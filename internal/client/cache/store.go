// Package cache provides the client-side query cache and the event-driven
// invalidation mapping that keeps it honest.
package cache

import (
	"strings"
	"sync"
)

const keySeparator = "/"

// Store is a string-keyed cache of fetched server-state views. Keys are
// hierarchical paths; invalidation removes a key and everything under it so
// the next read misses and re-fetches.
type Store struct {
	mu      sync.RWMutex
	entries map[string]interface{}
}

// NewStore creates an empty cache store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]interface{}),
	}
}

// Key joins path segments into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, keySeparator)
}

// Set stores a value under the given key path.
func (s *Store) Set(value interface{}, parts ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[Key(parts...)] = value
}

// Get returns the cached value for the key path, if present.
func (s *Store) Get(parts ...string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[Key(parts...)]
	return v, ok
}

// InvalidatePrefix removes the entry at the key path and every entry nested
// under it. Returns the number of entries removed.
func (s *Store) InvalidatePrefix(parts ...string) int {
	prefix := Key(parts...)
	nested := prefix + keySeparator

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.entries {
		if key == prefix || strings.HasPrefix(key, nested) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
