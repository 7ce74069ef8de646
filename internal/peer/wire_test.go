package peer

import "testing"

func TestNamespacedRequestorIDStaysDistinctAcrossNodes(t *testing.T) {
	a := namespacedRequestorID(1, 42)
	b := namespacedRequestorID(2, 42)
	if a == b {
		t.Fatalf("same local requestor id from different nodes collided: %d", a)
	}
}

func TestSubjectNaming(t *testing.T) {
	if got, want := dataSubject(7), "mcci.peer.7.data"; got != want {
		t.Fatalf("dataSubject = %q, want %q", got, want)
	}
	if got, want := requestSubject(7), "mcci.peer.7.request"; got != want {
		t.Fatalf("requestSubject = %q, want %q", got, want)
	}
}
