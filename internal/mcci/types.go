// Package mcci implements the request bank and dispatch engine's external
// surface (§6): the data model, the ingest API, and the server façade that
// binds the six pattern banks, the quota ledger, and the external
// collaborators (schema, revision set, working set, clock) together.
package mcci

import "time"

// DataPacket is a value published by a producer, keyed by the triple the
// request banks index on (§3).
type DataPacket struct {
	NodeAddress uint32
	VariableID  uint32
	Revision    uint32
	Payload     []byte
}

// ProductionPacket asks the server to mint a new revision for a variable
// and publish it (§6 `process_production`).
type ProductionPacket struct {
	VariableID uint32
	ResponseID uint32
	Payload    []byte
}

// AcceptancePacket is the reply to a ProductionPacket once a revision has
// been assigned.
type AcceptancePacket struct {
	ResponseID uint32
	Revision   uint32
}

// RequestPacket is a client's subscribe/unsubscribe request. The sign of
// Quantity distinguishes subscribe (positive) from unsubscribe (negative);
// zero fields act as wildcards (§6).
type RequestPacket struct {
	Deadline    time.Time
	NodeAddress uint32
	VariableID  uint32
	Revision    uint32
	Quantity    int32
}

// ResponsePacket is the reply to a RequestPacket.
type ResponsePacket struct {
	Accepted                bool
	RequestsRemainingLocal  int
	RequestsRemainingRemote int
}
