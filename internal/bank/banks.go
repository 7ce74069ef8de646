package bank

import (
	"github.com/ifreecarve/mccibus/internal/heap"
	"github.com/ifreecarve/mccibus/internal/quota"
)

// NewAll constructs the All pattern bank (§4.D): a single SubscriptionMap,
// matching every data packet regardless of host, variable, or revision.
func NewAll(ledger *quota.Ledger) *Bank[AllKey] {
	return &Bank[AllKey]{heap: heap.New[Subscription[AllKey]](), index: newAllPolicy(), ledger: ledger}
}

// NewHost constructs the Host pattern bank, keyed by host address.
func NewHost(capacity uint32, ledger *quota.Ledger) *Bank[HostKey] {
	return &Bank[HostKey]{heap: heap.New[Subscription[HostKey]](), index: newFlatPolicy[HostKey](capacity), ledger: ledger}
}

// NewVar constructs the Var pattern bank, keyed by variable id.
func NewVar(capacity uint32, ledger *quota.Ledger) *Bank[VarKey] {
	return &Bank[VarKey]{heap: heap.New[Subscription[VarKey]](), index: newFlatPolicy[VarKey](capacity), ledger: ledger}
}

// NewHostVar constructs the HostVar pattern bank: bucket index over
// var_id, inner ordered map keyed by host_addr.
func NewHostVar(capacity uint32, ledger *quota.Ledger) *Bank[HostVarKey] {
	return &Bank[HostVarKey]{heap: heap.New[Subscription[HostVarKey]](), index: newHostVarPolicy(capacity), ledger: ledger}
}

// NewVarRev constructs the VarRev pattern bank: bucket index over var_id,
// inner ordered map keyed by revision.
func NewVarRev(capacity uint32, ledger *quota.Ledger) *Bank[VarRevKey] {
	return &Bank[VarRevKey]{heap: heap.New[Subscription[VarRevKey]](), index: newVarRevPolicy(capacity), ledger: ledger}
}

// NewHostVarRev constructs the HostVarRev pattern bank: bucket index over
// var_id, inner ordered map keyed by the (host_addr, revision) pair.
func NewHostVarRev(capacity uint32, ledger *quota.Ledger) *Bank[HostVarRevKey] {
	return &Bank[HostVarRevKey]{heap: heap.New[Subscription[HostVarRevKey]](), index: newHostVarRevPolicy(capacity), ledger: ledger}
}
