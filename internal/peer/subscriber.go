package peer

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ifreecarve/mccibus/internal/mcci"
	"github.com/ifreecarve/mccibus/internal/metrics"
)

// Subscriber feeds peer-forwarded requests and peer-produced data into a
// local mcci.Server exactly as a local ingest event would — the core
// engine does not distinguish the origin of an ingest call (§5).
type Subscriber struct {
	conn          *Conn
	server        *mcci.Server
	myNodeAddress uint32
	logger        zerolog.Logger

	// submit serialises every call into server onto the single goroutine
	// allowed to touch it; ordinarily the transport Listener's Submit.
	submit func(func())
	// deliver pushes newly dispatched client ids to this node's own
	// connected clients; ordinarily the transport Listener's Deliver.
	deliver func(clientIDs []uint32, nodeAddress, variableID, revision uint32, payload json.RawMessage)

	// acquireGoroutine/releaseGoroutine gate the NATS client's background
	// dispatch goroutine behind the admission layer's goroutine-count
	// semaphore (§3.4); nil disables the check.
	acquireGoroutine func() bool
	releaseGoroutine func()

	dataSub    *nats.Subscription
	requestSub *nats.Subscription
}

// NewSubscriber returns a Subscriber bound to server through submit/deliver.
// acquireGoroutine/releaseGoroutine, ordinarily an admission.Guard's
// AcquireGoroutine/ReleaseGoroutine, gate the subscription's dispatch
// goroutine; pass nil for both to disable the check.
func NewSubscriber(conn *Conn, server *mcci.Server, myNodeAddress uint32, logger zerolog.Logger, submit func(func()), deliver func([]uint32, uint32, uint32, uint32, json.RawMessage), acquireGoroutine func() bool, releaseGoroutine func()) *Subscriber {
	return &Subscriber{
		conn:             conn,
		server:           server,
		myNodeAddress:    myNodeAddress,
		logger:           logger,
		submit:           submit,
		deliver:          deliver,
		acquireGoroutine: acquireGoroutine,
		releaseGoroutine: releaseGoroutine,
	}
}

// Start subscribes to every peer's data subject and to this node's own
// request subject. It refuses to start if acquireGoroutine rejects the
// slot (§3.4).
func (s *Subscriber) Start() error {
	if s.acquireGoroutine != nil && !s.acquireGoroutine() {
		return fmt.Errorf("peer: goroutine limit exceeded, refusing to subscribe")
	}

	dataSub, err := s.conn.nc.Subscribe(dataWildcard, s.handleData)
	if err != nil {
		if s.releaseGoroutine != nil {
			s.releaseGoroutine()
		}
		return err
	}
	s.dataSub = dataSub

	requestSub, err := s.conn.nc.Subscribe(requestSubject(s.myNodeAddress), s.handleRequest)
	if err != nil {
		dataSub.Unsubscribe()
		if s.releaseGoroutine != nil {
			s.releaseGoroutine()
		}
		return err
	}
	s.requestSub = requestSub
	return nil
}

// Stop unsubscribes from both subjects and releases the goroutine slot
// acquired by Start.
func (s *Subscriber) Stop() {
	if s.dataSub != nil {
		s.dataSub.Unsubscribe()
	}
	if s.requestSub != nil {
		s.requestSub.Unsubscribe()
	}
	if s.releaseGoroutine != nil {
		s.releaseGoroutine()
	}
}

func (s *Subscriber) handleData(msg *nats.Msg) {
	var wire wireData
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		s.logger.Error().Err(err).Msg("peer: malformed data message")
		return
	}
	if wire.NodeAddress == s.myNodeAddress {
		// Our own PublishData echoing back; already processed locally.
		return
	}
	metrics.PeerMessagesTotal.WithLabelValues("in", "data").Inc()

	pkt := mcci.DataPacket{
		NodeAddress: wire.NodeAddress,
		VariableID:  wire.VariableID,
		Revision:    wire.Revision,
		Payload:     wire.Payload,
	}
	s.submit(func() {
		clients := s.server.ProcessData(0, pkt)
		s.deliver(clients, pkt.NodeAddress, pkt.VariableID, pkt.Revision, json.RawMessage(wire.Payload))
	})
}

func (s *Subscriber) handleRequest(msg *nats.Msg) {
	var wire wireRequest
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		s.logger.Error().Err(err).Msg("peer: malformed request message")
		return
	}
	metrics.PeerMessagesTotal.WithLabelValues("in", "request").Inc()

	req := mcci.RequestPacket{
		Deadline:    wire.Deadline,
		NodeAddress: wire.NodeAddress,
		VariableID:  wire.VariableID,
		Revision:    wire.Revision,
		Quantity:    wire.Quantity,
	}
	s.submit(func() {
		s.server.ProcessRequest(wire.RequestorID, req)
	})
}
