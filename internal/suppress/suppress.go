package suppress

import (
	"sync"
	"time"
)

// Store remembers which findings were already published so periodic runs
// do not repeat them before the TTL passes. Thread-safe.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	expires map[string]time.Time
	now     func() time.Time
}

// NewStore creates an empty store. A non-positive ttl disables suppression.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Allow reports whether the finding identified by key should be published,
// and if so records it until the TTL expires.
func (s *Store) Allow(key string) bool {
	if s == nil || s.ttl <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.expires[key]; ok && now.Before(exp) {
		return false
	}
	s.expires[key] = now.Add(s.ttl)
	return true
}

// Cleanup removes all expired entries.
func (s *Store) Cleanup() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, key)
		}
	}
}

// Len returns the number of remembered findings. Intended for testing.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}
