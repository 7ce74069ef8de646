package peer

import (
	"encoding/json"
	"fmt"

	"github.com/ifreecarve/mccibus/internal/mcci"
	"github.com/ifreecarve/mccibus/internal/metrics"
)

// Publisher forwards locally-received requests and locally-produced data
// to peer nodes over NATS (§3.2).
type Publisher struct {
	conn          *Conn
	myNodeAddress uint32
}

// NewPublisher returns a Publisher that forwards on behalf of
// myNodeAddress.
func NewPublisher(conn *Conn, myNodeAddress uint32) *Publisher {
	return &Publisher{conn: conn, myNodeAddress: myNodeAddress}
}

// ForwardRequest publishes a remote-host subscribe/unsubscribe request to
// the subject owned by req.NodeAddress, so that node's bus registers it
// as a local subscription.
func (p *Publisher) ForwardRequest(localRequestorID uint32, req mcci.RequestPacket) error {
	wire := wireRequest{
		RequestorID: namespacedRequestorID(p.myNodeAddress, localRequestorID),
		Deadline:    req.Deadline,
		NodeAddress: req.NodeAddress,
		VariableID:  req.VariableID,
		Revision:    req.Revision,
		Quantity:    req.Quantity,
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("peer: marshal forwarded request: %w", err)
	}
	if err := p.conn.nc.Publish(requestSubject(req.NodeAddress), body); err != nil {
		return fmt.Errorf("peer: publish forwarded request: %w", err)
	}
	metrics.PeerMessagesTotal.WithLabelValues("out", "request").Inc()
	return nil
}

// PublishData publishes data this node produced to its own data subject,
// so peers holding matching remote subscriptions receive it.
func (p *Publisher) PublishData(pkt mcci.DataPacket) error {
	wire := wireData{
		NodeAddress: pkt.NodeAddress,
		VariableID:  pkt.VariableID,
		Revision:    pkt.Revision,
		Payload:     pkt.Payload,
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("peer: marshal published data: %w", err)
	}
	if err := p.conn.nc.Publish(dataSubject(p.myNodeAddress), body); err != nil {
		return fmt.Errorf("peer: publish data: %w", err)
	}
	metrics.PeerMessagesTotal.WithLabelValues("out", "data").Inc()
	return nil
}
