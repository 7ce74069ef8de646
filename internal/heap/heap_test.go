package heap

import (
	"testing"
	"time"
)

func at(sec int) time.Time {
	return time.Unix(int64(sec), 0)
}

func TestInsertExtractOrdering(t *testing.T) {
	h := New[string]()
	h.Insert(at(5), "five")
	h.Insert(at(1), "one")
	h.Insert(at(3), "three")
	h.Insert(at(2), "two")
	h.Insert(at(4), "four")

	want := []string{"one", "two", "three", "four", "five"}
	for i, w := range want {
		got, _, err := h.ExtractMin()
		if err != nil {
			t.Fatalf("extract %d: %v", i, err)
		}
		if got != w {
			t.Fatalf("extract %d: got %q want %q", i, got, w)
		}
	}
	if h.Len() != 0 {
		t.Fatalf("expected empty heap, got len %d", h.Len())
	}
	if _, _, err := h.ExtractMin(); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestMinimumDoesNotRemove(t *testing.T) {
	h := New[int]()
	h.Insert(at(10), 10)
	h.Insert(at(5), 5)

	_, d, err := h.Minimum()
	if err != nil || !d.Equal(at(5)) {
		t.Fatalf("Minimum = %v, %v", d, err)
	}
	if h.Len() != 2 {
		t.Fatalf("Minimum must not remove: len=%d", h.Len())
	}
}

func TestAlterKeyDecrease(t *testing.T) {
	h := New[string]()
	a := h.Insert(at(100), "a")
	h.Insert(at(50), "b")
	h.Insert(at(75), "c")

	if err := h.AlterKey(a, at(1)); err != nil {
		t.Fatalf("AlterKey: %v", err)
	}
	got, _, err := h.ExtractMin()
	if err != nil || got != "a" {
		t.Fatalf("expected a first after decrease, got %q, %v", got, err)
	}
}

func TestAlterKeyIncreaseKeepsHandleStable(t *testing.T) {
	h := New[string]()
	a := h.Insert(at(1), "a")
	h.Insert(at(50), "b")

	if err := h.AlterKey(a, at(100)); err != nil {
		t.Fatalf("AlterKey increase: %v", err)
	}
	if h.Payload(a) != "a" {
		t.Fatalf("handle a should still resolve to payload a, got %q", h.Payload(a))
	}
	got, _, err := h.ExtractMin()
	if err != nil || got != "b" {
		t.Fatalf("expected b first after increase of a, got %q, %v", got, err)
	}
	got, _, err = h.ExtractMin()
	if err != nil || got != "a" {
		t.Fatalf("expected a second, got %q, %v", got, err)
	}
}

func TestAlterKeyNoopOnEqualDeadline(t *testing.T) {
	h := New[string]()
	a := h.Insert(at(5), "a")
	if err := h.AlterKey(a, at(5)); err != nil {
		t.Fatalf("equal-deadline AlterKey should be a no-op, got %v", err)
	}
	if h.Len() != 1 {
		t.Fatalf("len changed on no-op alter: %d", h.Len())
	}
}

func TestRemoveArbitraryNode(t *testing.T) {
	h := New[string]()
	h.Insert(at(1), "a")
	b := h.Insert(at(2), "b")
	h.Insert(at(3), "c")
	h.Insert(at(4), "d")
	h.Insert(at(5), "e")

	if err := h.Remove(b); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if h.Len() != 4 {
		t.Fatalf("expected 4 remaining, got %d", h.Len())
	}

	var order []string
	for h.Len() > 0 {
		v, _, err := h.ExtractMin()
		if err != nil {
			t.Fatalf("ExtractMin: %v", err)
		}
		order = append(order, v)
	}
	want := []string{"a", "c", "d", "e"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestLargeRandomSequencePreservesOrdering(t *testing.T) {
	h := New[int]()
	// deterministic pseudo-random deadlines via a simple LCG, no math/rand
	// dependency needed for a reproducible property check.
	seed := uint32(12345)
	next := func() uint32 {
		seed = seed*1664525 + 1013904223
		return seed
	}

	const n = 500
	deadlines := make([]int, n)
	handles := make([]Handle, n)
	for i := 0; i < n; i++ {
		d := int(next() % 100000)
		deadlines[i] = d
		handles[i] = h.Insert(at(d), i)
	}

	// decrease half the keys to new, smaller values.
	for i := 0; i < n; i += 2 {
		nd := deadlines[i] / 2
		if nd < deadlines[i] {
			if err := h.AlterKey(handles[i], at(nd)); err != nil {
				t.Fatalf("AlterKey: %v", err)
			}
			deadlines[i] = nd
		}
	}

	last := -1
	count := 0
	for h.Len() > 0 {
		_, d, err := h.ExtractMin()
		if err != nil {
			t.Fatalf("ExtractMin: %v", err)
		}
		sec := d.Unix()
		if int(sec) < last {
			t.Fatalf("heap order violated: %d after %d", sec, last)
		}
		last = int(sec)
		count++
	}
	if count != n {
		t.Fatalf("expected %d extractions, got %d", n, count)
	}
}
