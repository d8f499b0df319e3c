package memory

import (
	"context"
	"sync"
)

// MarkerStore keeps processed keys in process memory. Test and local-dev
// use only: markers do not survive restarts.
type MarkerStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMarkerStore creates an empty marker store.
func NewMarkerStore() *MarkerStore {
	return &MarkerStore{seen: make(map[string]struct{})}
}

// MarkOnce claims the key, returning true only for the first caller.
func (s *MarkerStore) MarkOnce(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = struct{}{}
	return true, nil
}
