package quota

import "testing"

func TestAdmitAndDecrement(t *testing.T) {
	l := New(3, 2)

	if !l.CanAdmitLocal(1) {
		t.Fatal("expected room for first local subscription")
	}
	l.IncrLocal(1)
	l.IncrLocal(1)
	l.IncrLocal(1)
	if l.CanAdmitLocal(1) {
		t.Fatal("expected cap reached at 3")
	}

	local, remote := l.Outstanding(1)
	if local != 3 || remote != 0 {
		t.Fatalf("Outstanding(1) = %d,%d want 3,0", local, remote)
	}

	if err := l.DecrLocal(1); err != nil {
		t.Fatalf("DecrLocal: %v", err)
	}
	if !l.CanAdmitLocal(1) {
		t.Fatal("expected room after decrement")
	}
}

func TestDecrementBelowZeroIsInvariantViolation(t *testing.T) {
	l := New(3, 2)
	err := l.DecrRemote(7)
	if err == nil {
		t.Fatal("expected InvariantViolation")
	}
	var iv *InvariantViolation
	if !isInvariantViolation(err, &iv) {
		t.Fatalf("expected *InvariantViolation, got %T", err)
	}
	if iv.ClientID != 7 || iv.Kind != "remote" {
		t.Fatalf("unexpected violation detail: %+v", iv)
	}
}

func isInvariantViolation(err error, target **InvariantViolation) bool {
	iv, ok := err.(*InvariantViolation)
	if ok {
		*target = iv
	}
	return ok
}

func TestFreeCounts(t *testing.T) {
	l := New(2, 1)
	l.IncrLocal(1)
	if got := l.FreeLocal(1); got != 1 {
		t.Fatalf("FreeLocal(1) = %d, want 1", got)
	}
	l.IncrRemote(1)
	if got := l.FreeRemote(1); got != 0 {
		t.Fatalf("FreeRemote(1) = %d, want 0", got)
	}
}
