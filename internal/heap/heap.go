// Package heap implements the timeout heap described in MCCIServer's
// request bank design (§4.A): a Fibonacci heap ordered by absolute
// deadline, giving amortized O(1) insert/decrease-key and O(log n)
// extract-min.
//
// Unlike the original C++ (FibbonacciHeap.h), which links nodes with raw
// owning pointers in a circular doubly linked list, this implementation
// holds nodes in a slice-backed arena and links them by index (Handle).
// A free list recycles slots on removal, which avoids the dangling-pointer
// and double-free hazards the original's node-pointer design is exposed
// to (see MCCIServer design notes on dual ownership).
package heap

import (
	"errors"
	"time"
)

// ErrEmpty is returned by Minimum/ExtractMin when the heap holds no nodes.
var ErrEmpty = errors.New("heap: empty")

// ErrInvalidHandle is returned when a Handle does not refer to a live node.
var ErrInvalidHandle = errors.New("heap: invalid handle")

// ErrInvariantViolation names the §7 invariant-violation kind for the heap.
// No Heap method currently returns it: AlterKey accepts smaller, equal and
// larger deadlines alike.
var ErrInvariantViolation = errors.New("heap: key must strictly decrease")

// Handle addresses a node in the heap's arena. Handles are arena indices
// starting at 0; invalidHandle (-1) never refers to a node.
type Handle int

const invalidHandle Handle = -1

// negInf is used internally to force a node to the minimum position ahead
// of Remove. cutToRoot makes the node the minimum whenever its new key is
// not after the current minimum's, so this also holds when another live
// node carries the zero time.Time as its deadline.
var negInf time.Time

type node[P any] struct {
	deadline time.Time
	payload  P

	degree int
	mark   bool
	inUse  bool

	parent, child Handle
	left, right   Handle // sibling ring (root ring, or child ring of parent)
}

// Heap is a min-heap of payloads keyed by deadline.
type Heap[P any] struct {
	nodes    []node[P]
	freeList []Handle
	min      Handle
	count    int
}

// New returns an empty heap.
func New[P any]() *Heap[P] {
	return &Heap[P]{min: invalidHandle}
}

// Len returns the number of live nodes.
func (h *Heap[P]) Len() int { return h.count }

// Payload returns the payload stored at handle. The handle must still be
// live; callers that hold on to handles across removal are responsible for
// not calling Payload on a freed one.
func (h *Heap[P]) Payload(handle Handle) P {
	return h.nodes[handle].payload
}

// Insert places a new singleton tree into the root ring and returns its
// handle. Amortized O(1).
func (h *Heap[P]) Insert(deadline time.Time, payload P) Handle {
	x := h.alloc(deadline, payload)
	if h.min == invalidHandle {
		h.nodes[x].left, h.nodes[x].right = x, x
		h.min = x
	} else {
		h.attachRoot(x)
		if deadline.Before(h.nodes[h.min].deadline) {
			h.min = x
		}
	}
	h.count++
	return x
}

// Minimum returns the payload and deadline of the node with the smallest
// deadline, without removing it.
func (h *Heap[P]) Minimum() (P, time.Time, error) {
	if h.min == invalidHandle {
		var zero P
		return zero, time.Time{}, ErrEmpty
	}
	n := &h.nodes[h.min]
	return n.payload, n.deadline, nil
}

// ExtractMin removes and returns the payload and deadline of the node with
// the smallest deadline. Amortized O(log n).
func (h *Heap[P]) ExtractMin() (P, time.Time, error) {
	return h.extractMin()
}

// AlterKey changes handle's deadline. A strictly smaller deadline is a
// decrease-key (cut + cascading cut, §4.A). A strictly larger deadline is
// implemented as remove-then-reinsert; the same arena slot is reused so
// the Handle returned to the caller remains valid. An equal deadline is a
// no-op, not an error.
func (h *Heap[P]) AlterKey(handle Handle, newDeadline time.Time) error {
	if !h.valid(handle) {
		return ErrInvalidHandle
	}
	cur := h.nodes[handle].deadline
	switch {
	case newDeadline.Equal(cur):
		return nil
	case newDeadline.Before(cur):
		h.cutToRoot(handle, newDeadline)
		return nil
	default:
		payload := h.nodes[handle].payload
		if err := h.removeHandle(handle); err != nil {
			return err
		}
		reinserted := h.Insert(newDeadline, payload)
		if reinserted != handle {
			// Guaranteed by alloc's LIFO free list as long as no other
			// insert happens between the free and this reinsert.
			panic("heap: arena slot reuse invariant violated")
		}
		return nil
	}
}

// Remove deletes handle from the heap entirely, equivalent to
// alter_key(handle, -inf) followed by extract_min (§4.A).
func (h *Heap[P]) Remove(handle Handle) error {
	if !h.valid(handle) {
		return ErrInvalidHandle
	}
	h.cutToRoot(handle, negInf)
	_, _, err := h.extractMin()
	return err
}

func (h *Heap[P]) valid(handle Handle) bool {
	return handle >= 0 && int(handle) < len(h.nodes) && h.nodes[handle].inUse
}

func (h *Heap[P]) removeHandle(handle Handle) error {
	h.cutToRoot(handle, negInf)
	_, _, err := h.extractMin()
	return err
}

// cutToRoot forces node x to become a root with the given key, cutting it
// from its parent (with cascading cut) if it has one, then updates the
// cached minimum if x is now smaller than or equal to it.
func (h *Heap[P]) cutToRoot(x Handle, newKey time.Time) {
	n := &h.nodes[x]
	n.deadline = newKey
	if p := n.parent; p != invalidHandle {
		h.cut(x, p)
		h.cascadingCut(p)
	}
	if h.min == invalidHandle || !h.nodes[h.min].deadline.Before(newKey) {
		h.min = x
	}
}

// cut detaches x from parent p's child ring and adds it to the root ring.
func (h *Heap[P]) cut(x, p Handle) {
	h.removeChild(p, x)
	h.nodes[p].degree--
	h.attachRoot(x)
	h.nodes[x].parent = invalidHandle
	h.nodes[x].mark = false
}

// cascadingCut walks parents upward: the first unmarked ancestor is marked
// and the walk stops; any already-marked ancestor is itself cut.
func (h *Heap[P]) cascadingCut(p Handle) {
	for {
		n := &h.nodes[p]
		gp := n.parent
		if gp == invalidHandle {
			return
		}
		if !n.mark {
			n.mark = true
			return
		}
		h.cut(p, gp)
		p = gp
	}
}

// extractMin removes the current minimum root, promoting its children to
// the root ring and consolidating until all root degrees are distinct.
func (h *Heap[P]) extractMin() (P, time.Time, error) {
	z := h.min
	if z == invalidHandle {
		var zero P
		return zero, time.Time{}, ErrEmpty
	}
	payload := h.nodes[z].payload
	deadline := h.nodes[z].deadline

	// Phase 1: promote children of z to roots.
	if c := h.nodes[z].child; c != invalidHandle {
		first := c
		for {
			next := h.nodes[c].right
			h.nodes[c].parent = invalidHandle
			h.nodes[c].mark = false
			h.attachRoot(c) // anchored off h.min == z, still linked
			if next == first {
				break
			}
			c = next
		}
		h.nodes[z].child = invalidHandle
	}

	next := h.nodes[z].right
	singleton := next == z
	h.removeFromRing(z)
	h.count--
	h.free(z)

	if singleton {
		h.min = invalidHandle
		return payload, deadline, nil
	}

	h.min = next
	h.consolidate()
	return payload, deadline, nil
}

// consolidate scans the root ring once, pairwise-linking trees of equal
// degree until every root has a distinct degree (Phase 2 of extract-min).
func (h *Heap[P]) consolidate() {
	degTable := make([]Handle, 8)
	for i := range degTable {
		degTable[i] = invalidHandle
	}

	var roots []Handle
	start := h.min
	cur := start
	for {
		roots = append(roots, cur)
		cur = h.nodes[cur].right
		if cur == start {
			break
		}
	}

	for _, w := range roots {
		x := w
		d := h.nodes[x].degree
		for d >= len(degTable) {
			degTable = append(degTable, invalidHandle)
		}
		for d < len(degTable) && degTable[d] != invalidHandle {
			y := degTable[d]
			if h.nodes[y].deadline.Before(h.nodes[x].deadline) {
				x, y = y, x
			}
			// y becomes a child of x; on equal deadlines the root being
			// scanned (x) stays parent of the one already in the table.
			h.addChild(x, y)
			degTable[d] = invalidHandle
			d++
			if d == len(degTable) {
				degTable = append(degTable, invalidHandle)
			}
		}
		degTable[d] = x
	}

	h.min = invalidHandle
	for _, x := range degTable {
		if x == invalidHandle {
			continue
		}
		h.nodes[x].left, h.nodes[x].right = x, x
		if h.min == invalidHandle {
			h.min = x
		} else {
			h.attachRoot(x)
			if h.nodes[x].deadline.Before(h.nodes[h.min].deadline) {
				h.min = x
			}
		}
	}
}

// addChild makes child a child of parent, incrementing parent's degree.
func (h *Heap[P]) addChild(parent, child Handle) {
	h.removeFromRing(child)
	h.nodes[child].parent = parent
	h.nodes[child].mark = false

	pn := &h.nodes[parent]
	if pn.child == invalidHandle {
		pn.child = child
		h.nodes[child].left, h.nodes[child].right = child, child
	} else {
		c := pn.child
		r := h.nodes[c].right
		h.nodes[c].right = child
		h.nodes[child].left = c
		h.nodes[child].right = r
		h.nodes[r].left = child
	}
	pn.degree++
}

// removeChild detaches x from p's child ring, fixing p.child if needed.
func (h *Heap[P]) removeChild(p, x Handle) {
	pn := &h.nodes[p]
	if pn.child == x {
		if h.nodes[x].right == x {
			pn.child = invalidHandle
		} else {
			pn.child = h.nodes[x].right
		}
	}
	h.removeFromRing(x)
}

// attachRoot splices x into the root ring next to the current minimum.
func (h *Heap[P]) attachRoot(x Handle) {
	if h.min == invalidHandle {
		h.nodes[x].left, h.nodes[x].right = x, x
		h.min = x
		return
	}
	m := h.min
	r := h.nodes[m].right
	h.nodes[m].right = x
	h.nodes[x].left = m
	h.nodes[x].right = r
	h.nodes[r].left = x
}

// removeFromRing splices x out of whatever ring it currently sits in. It
// does not touch any head pointer (h.min or a parent's child); callers fix
// those up themselves.
func (h *Heap[P]) removeFromRing(x Handle) {
	l := h.nodes[x].left
	r := h.nodes[x].right
	if l == x {
		return
	}
	h.nodes[l].right = r
	h.nodes[r].left = l
}

func (h *Heap[P]) alloc(deadline time.Time, payload P) Handle {
	var x Handle
	if n := len(h.freeList); n > 0 {
		x = h.freeList[n-1]
		h.freeList = h.freeList[:n-1]
	} else {
		x = Handle(len(h.nodes))
		h.nodes = append(h.nodes, node[P]{})
	}
	h.nodes[x] = node[P]{
		deadline: deadline,
		payload:  payload,
		parent:   invalidHandle,
		child:    invalidHandle,
		left:     x,
		right:    x,
		inUse:    true,
	}
	return x
}

func (h *Heap[P]) free(x Handle) {
	var zero P
	h.nodes[x] = node[P]{payload: zero, parent: invalidHandle, child: invalidHandle, left: x, right: x, inUse: false}
	h.freeList = append(h.freeList, x)
}
