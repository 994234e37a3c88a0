package registry

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"
)

// memo is a bounded, concurrency-safe memo table. Concurrent lookups of the
// same key share one computation; failed computations are not stored.
type memo[V any] struct {
	entries *lru.Cache[string, V]
	group   singleflight.Group
}

func newMemo[V any](size int) *memo[V] {
	if size < 1 {
		size = 1
	}
	// lru.New only fails for non-positive sizes.
	entries, _ := lru.New[string, V](size)
	return &memo[V]{entries: entries}
}

// Do returns the stored value for key or computes and stores it with fn.
func (m *memo[V]) Do(key string, fn func() (V, error)) (V, error) {
	if v, ok := m.entries.Get(key); ok {
		return v, nil
	}
	res, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.entries.Get(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return v, err
		}
		m.entries.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Len reports the number of stored entries.
func (m *memo[V]) Len() int {
	return m.entries.Len()
}

// Cache memoizes tag lists per repository and manifest digests per tag for
// the lifetime of one run.
type Cache struct {
	tags    *memo[[]string]
	digests *memo[digest.Digest]
}

// NewCache returns a Cache holding up to size entries of each kind.
func NewCache(size int) *Cache {
	return &Cache{
		tags:    newMemo[[]string](size),
		digests: newMemo[digest.Digest](size),
	}
}
