package transport

import (
	"bufio"
	"encoding/json"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/ifreecarve/mccibus/internal/logging"
	"github.com/ifreecarve/mccibus/internal/mcci"
)

// client is one WebSocket connection, paired with a readPump/writePump.
type client struct {
	id       uint32
	conn     net.Conn
	listener *Listener
	send     chan []byte
}

// readPump decodes one JSON envelope per WebSocket text frame and hands
// it to the matching handler. Request-rate limiting lives in the admission
// layer (§3.4), consulted from handleRequest, not here.
func (c *client) readPump() {
	// CRITICAL: panic recovery must be the first defer (it runs LAST, in
	// LIFO order), so it catches panics from the cleanup defer below too.
	defer logging.RecoverPanic(c.listener.logger, "readPump", map[string]any{
		"client_id": c.id,
	})

	defer func() {
		c.conn.Close()
		c.listener.removeClient(c.id)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		msg, op, err := wsutil.ReadClientData(c.conn)
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch op {
		case ws.OpText:
			c.handleMessage(msg)
		case ws.OpClose:
			return
		}
	}
}

func (c *client) handleMessage(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.reply(wireResponse{Error: "malformed envelope"})
		return
	}

	switch env.Kind {
	case kindRequest:
		c.handleRequest(env.Request)
	case kindData:
		c.handleData(env.Data)
	case kindProduction:
		c.handleProduction(env.Production)
	default:
		c.reply(wireResponse{Error: "unknown envelope kind"})
	}
}

func (c *client) handleRequest(req *wireRequest) {
	if req == nil {
		c.reply(wireResponse{Kind: kindRequest, Error: "missing request body"})
		return
	}

	if g := c.listener.guard; g != nil {
		if accept, reason := g.ShouldAdmit(); !accept {
			c.reply(wireResponse{Kind: kindRequest, Accepted: false, Error: reason})
			return
		}
	}

	pkt := mcci.RequestPacket{
		Deadline:    time.Now().Add(time.Duration(req.TimeoutMs) * time.Millisecond),
		NodeAddress: req.NodeAddress,
		VariableID:  req.VariableID,
		Revision:    req.Revision,
		Quantity:    req.Quantity,
	}

	result := make(chan mcci.ResponsePacket, 1)
	c.listener.submit(func() {
		r := c.listener.server.ProcessRequest(c.id, pkt)
		result <- r
		if f := c.listener.forwarder; f != nil && r.Accepted && req.NodeAddress != 0 && req.NodeAddress != c.listener.server.MyNodeAddress() {
			if err := f.ForwardRequest(c.id, pkt); err != nil {
				c.listener.logger.Error().Err(err).Msg("failed to forward remote request to peer")
			}
		}
	})
	resp := <-result

	c.reply(wireResponse{
		Kind:                    kindRequest,
		Accepted:                resp.Accepted,
		RequestsRemainingLocal:  resp.RequestsRemainingLocal,
		RequestsRemainingRemote: resp.RequestsRemainingRemote,
	})
}

func (c *client) handleData(data *wireData) {
	if data == nil {
		return
	}
	pkt := mcci.DataPacket{
		NodeAddress: data.NodeAddress,
		VariableID:  data.VariableID,
		Revision:    data.Revision,
		Payload:     []byte(data.Payload),
	}
	c.listener.submit(func() {
		recipients := c.listener.server.ProcessData(c.id, pkt)
		c.listener.deliver(recipients, wirePush{
			Kind:        kindData,
			NodeAddress: pkt.NodeAddress,
			VariableID:  pkt.VariableID,
			Revision:    pkt.Revision,
			Payload:     data.Payload,
		})
		if f := c.listener.forwarder; f != nil {
			if err := f.PublishData(pkt); err != nil {
				c.listener.logger.Error().Err(err).Msg("failed to publish data to peers")
			}
		}
	})
}

func (c *client) handleProduction(prod *wireProduction) {
	if prod == nil {
		c.reply(wireResponse{Kind: kindProduction, Error: "missing production body"})
		return
	}
	pkt := mcci.ProductionPacket{
		VariableID: prod.VariableID,
		ResponseID: prod.ResponseID,
		Payload:    []byte(prod.Payload),
	}

	result := make(chan mcci.AcceptancePacket, 1)
	c.listener.submit(func() {
		acc, recipients := c.listener.server.ProcessProduction(c.id, pkt)
		c.listener.deliver(recipients, wirePush{
			Kind:        kindData,
			VariableID:  pkt.VariableID,
			Revision:    acc.Revision,
			Payload:     prod.Payload,
		})
		if f := c.listener.forwarder; f != nil {
			produced := mcci.DataPacket{
				NodeAddress: c.listener.server.MyNodeAddress(),
				VariableID:  pkt.VariableID,
				Revision:    acc.Revision,
				Payload:     pkt.Payload,
			}
			if err := f.PublishData(produced); err != nil {
				c.listener.logger.Error().Err(err).Msg("failed to publish produced data to peers")
			}
		}
		result <- acc
	})
	acc := <-result

	c.reply(wireResponse{
		Kind:       kindProduction,
		ResponseID: acc.ResponseID,
		Revision:   acc.Revision,
	})
}

func (c *client) reply(resp wireResponse) {
	body, err := json.Marshal(resp)
	if err != nil {
		return
	}
	select {
	case c.send <- body:
	default:
	}
}

// writePump batches queued messages and ping frames onto the connection.
func (c *client) writePump() {
	// CRITICAL: panic recovery must be the first defer (it runs LAST, in
	// LIFO order).
	defer logging.RecoverPanic(c.listener.logger, "writePump", map[string]any{
		"client_id": c.id,
	})

	writer := bufio.NewWriter(c.conn)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				wsutil.WriteServerMessage(c.conn, ws.OpClose, []byte{})
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(writer, ws.OpText, message); err != nil {
				return
			}

			n := len(c.send)
			for i := 0; i < n; i++ {
				message = <-c.send
				if err := wsutil.WriteServerMessage(writer, ws.OpText, message); err != nil {
					return
				}
			}
			if err := writer.Flush(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
