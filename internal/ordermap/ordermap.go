// Package ordermap provides a small sorted-key map used for the
// bucket-index cells and the composite-key banks' inner sub-key maps.
package ordermap

import (
	"cmp"
	"sort"
)

// Map is a map with keys kept in sorted order. It is not safe for
// concurrent use; callers serialize access the same way the bank layer
// serializes everything else (§5 of the design: single-threaded core).
type Map[K cmp.Ordered, V any] struct {
	data map[K]V
	keys []K
}

// New returns an empty Map.
func New[K cmp.Ordered, V any]() *Map[K, V] {
	return &Map[K, V]{data: make(map[K]V)}
}

// Set inserts or overwrites the value for k.
func (m *Map[K, V]) Set(k K, v V) {
	if _, ok := m.data[k]; !ok {
		m.insertKey(k)
	}
	m.data[k] = v
}

// Get returns the value for k and whether it was present.
func (m *Map[K, V]) Get(k K) (V, bool) {
	v, ok := m.data[k]
	return v, ok
}

// Delete removes k, returning whether it was present.
func (m *Map[K, V]) Delete(k K) bool {
	if _, ok := m.data[k]; !ok {
		return false
	}
	delete(m.data, k)
	i := sort.Search(len(m.keys), func(i int) bool { return m.keys[i] >= k })
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	return true
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int { return len(m.data) }

// Keys returns the keys in ascending order. The returned slice must not be
// mutated by the caller.
func (m *Map[K, V]) Keys() []K { return m.keys }

// Range calls f for every entry in ascending key order, stopping early if f
// returns false.
func (m *Map[K, V]) Range(f func(k K, v V) bool) {
	for _, k := range m.keys {
		if !f(k, m.data[k]) {
			return
		}
	}
}

func (m *Map[K, V]) insertKey(k K) {
	i := sort.Search(len(m.keys), func(i int) bool { return m.keys[i] >= k })
	m.keys = append(m.keys, k)
	copy(m.keys[i+1:], m.keys[i:])
	m.keys[i] = k
}
