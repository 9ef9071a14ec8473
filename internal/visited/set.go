// Package visited tracks the uris that have already been dispatched for fetching.
package visited

import "sync"

// Set is a concurrent set of uris.
type Set struct {
	mu    sync.Mutex
	items map[string]struct{}
}

// Add inserts the uri and reports whether it was absent. The check and the insertion are a single atomic operation, so
// among concurrent callers adding the same uri exactly one gets true.
func (s *Set) Add(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[uri]; ok {
		return false
	}

	s.items[uri] = struct{}{}

	return true
}

// Contains reports whether the uri is in the set.
func (s *Set) Contains(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.items[uri]

	return ok
}

// Len returns the number of uris in the set.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.items)
}

// New creates an empty set.
func New() *Set {
	return &Set{
		items: make(map[string]struct{}),
	}
}
