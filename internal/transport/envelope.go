// Package transport implements the WebSocket front door of §3.1. Every
// connection decodes a small JSON envelope and calls into an
// internal/mcci.Server's ingest API through a single serialising core
// goroutine, since the server's banks are not safe for concurrent access.
package transport

import "encoding/json"

type envelopeKind string

const (
	kindRequest    envelopeKind = "request"
	kindData       envelopeKind = "data"
	kindProduction envelopeKind = "production"
)

// envelope is the wire shape of every client-to-server message: exactly
// one of Request, Data, or Production is populated, chosen by Kind.
type envelope struct {
	Kind       envelopeKind    `json:"kind"`
	Request    *wireRequest    `json:"request,omitempty"`
	Data       *wireData       `json:"data,omitempty"`
	Production *wireProduction `json:"production,omitempty"`
}

// wireRequest is a process_request call (§6). A negative Quantity
// unsubscribes; TimeoutMs is relative to receipt, since the wire format
// has no notion of the server's clock.
type wireRequest struct {
	NodeAddress uint32 `json:"node_address"`
	VariableID  uint32 `json:"variable_id"`
	Revision    uint32 `json:"revision"`
	Quantity    int32  `json:"quantity"`
	TimeoutMs   int64  `json:"timeout_ms"`
}

type wireData struct {
	NodeAddress uint32          `json:"node_address"`
	VariableID  uint32          `json:"variable_id"`
	Revision    uint32          `json:"revision"`
	Payload     json.RawMessage `json:"payload"`
}

type wireProduction struct {
	VariableID uint32          `json:"variable_id"`
	ResponseID uint32          `json:"response_id"`
	Payload    json.RawMessage `json:"payload"`
}

// wireResponse answers a request envelope in place.
type wireResponse struct {
	Kind                    envelopeKind `json:"kind"`
	Accepted                bool         `json:"accepted,omitempty"`
	RequestsRemainingLocal  int          `json:"requests_remaining_local,omitempty"`
	RequestsRemainingRemote int          `json:"requests_remaining_remote,omitempty"`
	ResponseID              uint32       `json:"response_id,omitempty"`
	Revision                uint32       `json:"revision,omitempty"`
	Error                   string       `json:"error,omitempty"`
}

// wirePush is an unsolicited server-to-client message carrying a
// dispatched data packet.
type wirePush struct {
	Kind        envelopeKind    `json:"kind"`
	NodeAddress uint32          `json:"node_address"`
	VariableID  uint32          `json:"variable_id"`
	Revision    uint32          `json:"revision"`
	Payload     json.RawMessage `json:"payload"`
}
