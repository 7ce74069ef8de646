package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ifreecarve/mccibus/internal/mcci"
)

func newTestListener() *Listener {
	s := mcci.NewServer(mcci.Settings{
		MyNodeAddress:      1,
		MaxLocalRequests:   10,
		MaxRemoteRequests:  10,
		BankSizeHost:       16,
		BankSizeVar:        16,
		BankSizeHostVar:    16,
		BankSizeVarRev:     16,
		BankSizeHostVarRev: 16,
	}, mcci.InMemorySchema{}, mcci.NewInMemoryRevisionSet(), mcci.NewInMemoryWorkingSet(), mcci.SystemClock{})

	l := NewListener(s, nil, zerolog.Nop(), 16)
	done := make(chan struct{})
	go l.Run(done)
	return l
}

func newTestClient(l *Listener, id uint32) *client {
	c := &client{id: id, listener: l, send: make(chan []byte, sendBuffer)}
	l.mu.Lock()
	l.clients[id] = c
	l.mu.Unlock()
	return c
}

func drainReply(t *testing.T, c *client) wireResponse {
	t.Helper()
	select {
	case body := <-c.send:
		var resp wireResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			t.Fatalf("reply did not decode: %v", err)
		}
		return resp
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
		return wireResponse{}
	}
}

func TestHandleRequestAccepts(t *testing.T) {
	l := newTestListener()
	c := newTestClient(l, 1)

	c.handleRequest(&wireRequest{VariableID: 7, Quantity: 1, TimeoutMs: 60_000})

	resp := drainReply(t, c)
	if !resp.Accepted {
		t.Fatalf("expected accepted, got %+v", resp)
	}
}

func TestHandleDataDeliversToSubscriber(t *testing.T) {
	l := newTestListener()
	subscriber := newTestClient(l, 1)

	subscriber.handleRequest(&wireRequest{VariableID: 7, Quantity: 1, TimeoutMs: 60_000})
	drainReply(t, subscriber)

	producer := newTestClient(l, 2)
	producer.handleData(&wireData{NodeAddress: 1, VariableID: 7, Revision: 3, Payload: json.RawMessage(`"hi"`)})

	select {
	case body := <-subscriber.send:
		var push wirePush
		if err := json.Unmarshal(body, &push); err != nil {
			t.Fatalf("push did not decode: %v", err)
		}
		if push.VariableID != 7 || push.Revision != 3 {
			t.Fatalf("push = %+v, want VariableID=7 Revision=3", push)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for push")
	}
}

// fakeForwarder records calls onto buffered channels: handleRequest and
// handleData invoke the forwarder from inside the listener's core
// goroutine, so a test observing the call must synchronise with it
// rather than read a bare slice from another goroutine.
type fakeForwarder struct {
	forwardedRequests chan mcci.RequestPacket
	publishedData     chan mcci.DataPacket
}

func newFakeForwarder() *fakeForwarder {
	return &fakeForwarder{
		forwardedRequests: make(chan mcci.RequestPacket, 8),
		publishedData:     make(chan mcci.DataPacket, 8),
	}
}

func (f *fakeForwarder) ForwardRequest(localRequestorID uint32, req mcci.RequestPacket) error {
	f.forwardedRequests <- req
	return nil
}

func (f *fakeForwarder) PublishData(pkt mcci.DataPacket) error {
	f.publishedData <- pkt
	return nil
}

func TestHandleRequestForwardsRemoteSubscriptions(t *testing.T) {
	l := newTestListener()
	fwd := newFakeForwarder()
	l.SetForwarder(fwd)
	c := newTestClient(l, 1)

	c.handleRequest(&wireRequest{NodeAddress: 2, VariableID: 7, Quantity: 1, TimeoutMs: 60_000})
	drainReply(t, c)

	select {
	case req := <-fwd.forwardedRequests:
		if req.NodeAddress != 2 {
			t.Fatalf("forwarded request node address = %d, want 2", req.NodeAddress)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forwarded request")
	}
}

func TestHandleRequestDoesNotForwardLocalSubscriptions(t *testing.T) {
	l := newTestListener()
	fwd := newFakeForwarder()
	l.SetForwarder(fwd)
	c := newTestClient(l, 1)

	c.handleRequest(&wireRequest{NodeAddress: 1, VariableID: 7, Quantity: 1, TimeoutMs: 60_000})
	drainReply(t, c)

	select {
	case req := <-fwd.forwardedRequests:
		t.Fatalf("expected no forwarded request for a local host, got %+v", req)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleDataPublishesToForwarder(t *testing.T) {
	l := newTestListener()
	fwd := newFakeForwarder()
	l.SetForwarder(fwd)
	producer := newTestClient(l, 1)

	producer.handleData(&wireData{NodeAddress: 1, VariableID: 7, Revision: 3, Payload: json.RawMessage(`"hi"`)})

	select {
	case pkt := <-fwd.publishedData:
		if pkt.VariableID != 7 || pkt.Revision != 3 {
			t.Fatalf("published data = %+v, want VariableID=7 Revision=3", pkt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published data")
	}
}

func TestHandleRequestRejectsInvalidCombination(t *testing.T) {
	l := newTestListener()
	c := newTestClient(l, 1)

	c.handleRequest(&wireRequest{VariableID: 0, Revision: 4, Quantity: 1})

	resp := drainReply(t, c)
	if resp.Accepted {
		t.Fatal("revision without variable id must be rejected")
	}
}

func TestHandleProductionAssignsRevisionAndPushes(t *testing.T) {
	l := newTestListener()
	subscriber := newTestClient(l, 1)
	subscriber.handleRequest(&wireRequest{VariableID: 9, Quantity: 1, TimeoutMs: 60_000})
	drainReply(t, subscriber)

	producer := newTestClient(l, 2)
	producer.handleProduction(&wireProduction{VariableID: 9, ResponseID: 42, Payload: json.RawMessage(`"x"`)})

	resp := drainReply(t, producer)
	if resp.ResponseID != 42 || resp.Revision != 1 {
		t.Fatalf("production reply = %+v, want ResponseID=42 Revision=1", resp)
	}

	select {
	case body := <-subscriber.send:
		var push wirePush
		if err := json.Unmarshal(body, &push); err != nil {
			t.Fatalf("push did not decode: %v", err)
		}
		if push.VariableID != 9 || push.Revision != 1 {
			t.Fatalf("push = %+v, want VariableID=9 Revision=1", push)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for push")
	}
}
