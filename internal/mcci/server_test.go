package mcci

import (
	"testing"
	"time"

	"github.com/ifreecarve/mccibus/internal/bank"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestServer(maxLocal, maxRemote int32) (*Server, *fakeClock) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	s := NewServer(Settings{
		MyNodeAddress:      1,
		MaxLocalRequests:   maxLocal,
		MaxRemoteRequests:  maxRemote,
		BankSizeHost:       16,
		BankSizeVar:        16,
		BankSizeHostVar:    16,
		BankSizeVarRev:     16,
		BankSizeHostVarRev: 16,
	}, InMemorySchema{}, NewInMemoryRevisionSet(), NewInMemoryWorkingSet(), clock)
	return s, clock
}

func at(sec int) time.Time { return time.Unix(int64(sec), 0) }

// Scenario 1.
func TestProcessRequestThenProcessDataPatternDelivery(t *testing.T) {
	s, _ := newTestServer(10, 10)

	resp := s.ProcessRequest(1, RequestPacket{Deadline: at(100), NodeAddress: 5, VariableID: 0, Revision: 0, Quantity: 1})
	if !resp.Accepted {
		t.Fatalf("expected accepted, got %+v", resp)
	}

	clients := s.ProcessData(99, DataPacket{NodeAddress: 5, VariableID: 7, Revision: 3})
	if len(clients) != 1 || clients[0] != 1 {
		t.Fatalf("ProcessData clients = %v, want [1]", clients)
	}

	// host=5 is not this server's own node (1), so this is a remote
	// subscription.
	_, remote := s.ledger.Outstanding(1)
	if remote != 1 {
		t.Fatalf("ledger remote = %d, want 1 (pattern sub persists)", remote)
	}
}

// Scenario 3.
func TestProcessRequestRejectedOverQuota(t *testing.T) {
	s, _ := newTestServer(3, 10)

	accepted := 0
	var lastResp ResponsePacket
	for i := 0; i < 5; i++ {
		// NodeAddress=1 is this server's own node, so these are local
		// subscriptions charged against MaxLocalRequests.
		lastResp = s.ProcessRequest(1, RequestPacket{Deadline: at(100), NodeAddress: 1, VariableID: uint32(i + 1), Quantity: 1})
		if lastResp.Accepted {
			accepted++
		}
	}
	if accepted != 3 {
		t.Fatalf("expected 3 accepted under cap of 3, got %d", accepted)
	}
	if lastResp.Accepted {
		t.Fatal("5th request should be rejected")
	}
	if lastResp.RequestsRemainingLocal != 0 {
		t.Fatalf("RequestsRemainingLocal = %d, want 0", lastResp.RequestsRemainingLocal)
	}
}

// Scenario 4.
func TestEnforceTimeoutsSilentlyExpires(t *testing.T) {
	s, clock := newTestServer(10, 10)
	s.ProcessRequest(1, RequestPacket{Deadline: at(100), NodeAddress: 5, VariableID: 0, Quantity: 1})

	clock.now = at(150)
	s.EnforceTimeouts()

	if s.banks.Host.Contains(bank.HostKey(5), 1) {
		t.Fatal("expired subscription should be gone")
	}
	_, remote := s.ledger.Outstanding(1)
	if remote != 0 {
		t.Fatalf("ledger should be decremented by timeout, got %d", remote)
	}
}

func TestProcessRequestRejectsInvalidCombination(t *testing.T) {
	s, _ := newTestServer(10, 10)
	resp := s.ProcessRequest(1, RequestPacket{Deadline: at(100), NodeAddress: 0, VariableID: 0, Revision: 4, Quantity: 1})
	if resp.Accepted {
		t.Fatal("revision without variable id must be rejected")
	}
}

func TestUnsubscribeRemovesOnlyRequestingClient(t *testing.T) {
	s, _ := newTestServer(10, 10)
	s.ProcessRequest(1, RequestPacket{Deadline: at(100), NodeAddress: 5, Quantity: 1})
	s.ProcessRequest(2, RequestPacket{Deadline: at(100), NodeAddress: 5, Quantity: 1})

	s.ProcessRequest(1, RequestPacket{NodeAddress: 5, Quantity: -1})

	if s.banks.Host.Contains(bank.HostKey(5), 1) {
		t.Fatal("client 1 should be unsubscribed")
	}
	if !s.banks.Host.Contains(bank.HostKey(5), 2) {
		t.Fatal("client 2 should remain subscribed")
	}
}

func TestProcessProductionAssignsRevisionAndDispatches(t *testing.T) {
	s, _ := newTestServer(10, 10)
	s.ProcessRequest(1, RequestPacket{Deadline: at(100), VariableID: 9, Revision: 0, Quantity: 1})

	acc, clients := s.ProcessProduction(5, ProductionPacket{VariableID: 9, ResponseID: 42, Payload: []byte("x")})
	if acc.ResponseID != 42 || acc.Revision != 1 {
		t.Fatalf("acceptance = %+v, want ResponseID=42 Revision=1", acc)
	}
	if len(clients) != 1 || clients[0] != 1 {
		t.Fatalf("ProcessProduction clients = %v, want [1]", clients)
	}

	pkt, ok := s.working.Get(9)
	if !ok || pkt.Revision != 1 {
		t.Fatalf("working set not updated: %+v, %v", pkt, ok)
	}
}
