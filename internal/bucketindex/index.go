// Package bucketindex implements the bucket index described in §4.B: a
// resizable array of cells, each an ordered map, addressed by reducing a
// dense integer domain key modulo the array size. The array size is the
// largest prime in a precomputed table not exceeding the requested
// capacity (LinearHash.h's find_good_linear_hash_table_size), chosen
// because the original domain keys (node addresses, variable ordinals) are
// dense and collisions are rare; the per-cell ordered map absorbs whatever
// collisions do occur instead of chaining with a linked list.
package bucketindex

import "github.com/ifreecarve/mccibus/internal/ordermap"

// Index maps uint32 keys to values of type V, bucketed by key % size.
type Index[V any] struct {
	buckets []*ordermap.Map[uint32, V]
	size    uint32
}

// New creates an Index sized to the nearest prime not exceeding capacity.
func New[V any](capacity uint32) *Index[V] {
	size := nearestPrimeSize(capacity)
	idx := &Index[V]{size: size, buckets: make([]*ordermap.Map[uint32, V], size)}
	for i := range idx.buckets {
		idx.buckets[i] = ordermap.New[uint32, V]()
	}
	return idx
}

func (idx *Index[V]) cell(k uint32) *ordermap.Map[uint32, V] {
	return idx.buckets[k%idx.size]
}

// Insert adds or overwrites the value for k.
func (idx *Index[V]) Insert(k uint32, v V) {
	idx.cell(k).Set(k, v)
}

// Remove deletes k, if present.
func (idx *Index[V]) Remove(k uint32) {
	idx.cell(k).Delete(k)
}

// Contains reports whether k is present.
func (idx *Index[V]) Contains(k uint32) bool {
	_, ok := idx.cell(k).Get(k)
	return ok
}

// Get returns the value for k and whether it was present.
func (idx *Index[V]) Get(k uint32) (V, bool) {
	return idx.cell(k).Get(k)
}

// Clear removes every entry from every bucket.
func (idx *Index[V]) Clear() {
	for i := range idx.buckets {
		idx.buckets[i] = ordermap.New[uint32, V]()
	}
}

// Count returns the total number of entries across all buckets.
func (idx *Index[V]) Count() int {
	n := 0
	for _, b := range idx.buckets {
		n += b.Len()
	}
	return n
}

// MaxCollisions returns the largest bucket occupancy, for diagnostics.
func (idx *Index[V]) MaxCollisions() int {
	max := 0
	for _, b := range idx.buckets {
		if b.Len() > max {
			max = b.Len()
		}
	}
	return max
}

// Size returns the underlying array size (the chosen prime).
func (idx *Index[V]) Size() uint32 { return idx.size }
