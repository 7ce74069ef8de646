package bank

import (
	"testing"
	"time"

	"github.com/ifreecarve/mccibus/internal/quota"
)

func at(sec int) time.Time { return time.Unix(int64(sec), 0) }

func TestAddInsertedThenRefreshed(t *testing.T) {
	l := quota.New(10, 10)
	b := NewVar(16, l)

	res, err := b.Add(VarKey(7), 1, at(100), false)
	if err != nil || res != Inserted {
		t.Fatalf("first Add = %v, %v, want Inserted", res, err)
	}
	res, err = b.Add(VarKey(7), 1, at(50), false)
	if err != nil || res != Refreshed {
		t.Fatalf("second Add = %v, %v, want Refreshed", res, err)
	}

	d, err := b.MinimumDeadline()
	if err != nil || !d.Equal(at(50)) {
		t.Fatalf("MinimumDeadline = %v, %v, want 50", d, err)
	}
	if local, _ := b.Outstanding(1); local != 1 {
		t.Fatalf("ledger should still show 1 local subscription, got %d", local)
	}
}

func TestAddRejectedOnQuota(t *testing.T) {
	l := quota.New(2, 10)
	b := NewHostVar(16, l)

	if res, _ := b.Add(HostVarKey{Host: 1, Var: 1}, 9, at(100), false); res != Inserted {
		t.Fatal("expected first Inserted")
	}
	if res, _ := b.Add(HostVarKey{Host: 2, Var: 1}, 9, at(100), false); res != Inserted {
		t.Fatal("expected second Inserted")
	}
	res, err := b.Add(HostVarKey{Host: 3, Var: 1}, 9, at(100), false)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if res != Rejected {
		t.Fatalf("expected third Add Rejected, got %v", res)
	}
	if b.Contains(HostVarKey{Host: 3, Var: 1}, 9) {
		t.Fatal("rejected add must leave no trace")
	}
	local, _ := b.Outstanding(9)
	if local != 2 {
		t.Fatalf("ledger should still be 2 after rejected add, got %d", local)
	}
}

func TestRemoveByKeyRetiresAndReturnsClients(t *testing.T) {
	l := quota.New(10, 10)
	b := NewVarRev(16, l)

	b.Add(VarRevKey{Var: 9, Rev: 4}, 3, at(100), true)
	b.Add(VarRevKey{Var: 9, Rev: 4}, 1, at(100), true)

	clients := b.RemoveByKey(VarRevKey{Var: 9, Rev: 4})
	if len(clients) != 2 || clients[0] != 1 || clients[1] != 3 {
		t.Fatalf("RemoveByKey clients = %v, want [1 3] ascending", clients)
	}
	if b.Contains(VarRevKey{Var: 9, Rev: 4}, 1) {
		t.Fatal("subscription should be retired")
	}
	if _, remote := b.Outstanding(1); remote != 0 {
		t.Fatalf("ledger should be decremented after retirement")
	}
}

func TestPopExpiredDrainsOnlyPastDeadlines(t *testing.T) {
	l := quota.New(10, 10)
	b := NewHost(16, l)

	b.Add(HostKey(1), 1, at(50), false)
	b.Add(HostKey(2), 2, at(150), false)

	expired := b.PopExpired(at(100))
	if len(expired) != 1 || expired[0].ClientID != 1 {
		t.Fatalf("PopExpired = %+v, want exactly client 1", expired)
	}
	if !b.Contains(HostKey(2), 2) {
		t.Fatal("client 2's subscription should still be live")
	}
	if local, _ := b.Outstanding(1); local != 0 {
		t.Fatalf("client 1's ledger should be back to 0, got %d", local)
	}
}

func TestMinimumDeadlineEmptyBank(t *testing.T) {
	l := quota.New(10, 10)
	b := NewAll(l)
	if _, err := b.MinimumDeadline(); err != ErrEmpty {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestHostVarRevCompositeKeyIsolation(t *testing.T) {
	l := quota.New(10, 10)
	b := NewHostVarRev(16, l)

	b.Add(HostVarRevKey{Host: 1, Var: 1, Rev: 1}, 5, at(100), false)
	b.Add(HostVarRevKey{Host: 2, Var: 1, Rev: 1}, 6, at(100), false)
	b.Add(HostVarRevKey{Host: 1, Var: 1, Rev: 2}, 7, at(100), false)

	clients := b.RemoveByKey(HostVarRevKey{Host: 1, Var: 1, Rev: 1})
	if len(clients) != 1 || clients[0] != 5 {
		t.Fatalf("RemoveByKey = %v, want [5]", clients)
	}
	if !b.Contains(HostVarRevKey{Host: 2, Var: 1, Rev: 1}, 6) {
		t.Fatal("unrelated host key should survive")
	}
	if !b.Contains(HostVarRevKey{Host: 1, Var: 1, Rev: 2}, 7) {
		t.Fatal("unrelated revision key should survive")
	}
}
