package peer

import (
	"fmt"
	"time"
)

func dataSubject(nodeAddress uint32) string {
	return fmt.Sprintf("mcci.peer.%d.data", nodeAddress)
}

func requestSubject(nodeAddress uint32) string {
	return fmt.Sprintf("mcci.peer.%d.request", nodeAddress)
}

// dataWildcard matches data published by every node, so a Subscriber can
// learn about any peer's production with a single subscription.
const dataWildcard = "mcci.peer.*.data"

// wireRequest is the peer-to-peer envelope for a forwarded
// process_request call. RequestorID is namespaced by the forwarding
// node's address (high 16 bits) so client ids minted independently by
// each node's transport cannot collide in the receiving node's quota
// ledger (§4.F is keyed per client id, and client ids are otherwise only
// unique within one node's transport layer).
type wireRequest struct {
	RequestorID uint32    `json:"requestor_id"`
	Deadline    time.Time `json:"deadline"`
	NodeAddress uint32    `json:"node_address"`
	VariableID  uint32    `json:"variable_id"`
	Revision    uint32    `json:"revision"`
	Quantity    int32     `json:"quantity"`
}

type wireData struct {
	NodeAddress uint32 `json:"node_address"`
	VariableID  uint32 `json:"variable_id"`
	Revision    uint32 `json:"revision"`
	Payload     []byte `json:"payload"`
}

// namespacedRequestorID folds the forwarding node's own address into a
// local requestor id so it stays distinct across the whole cluster.
func namespacedRequestorID(myNodeAddress, localRequestorID uint32) uint32 {
	return (myNodeAddress << 16) | (localRequestorID & 0xFFFF)
}
