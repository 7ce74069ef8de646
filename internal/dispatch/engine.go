// Package dispatch implements the dispatch engine of §4.E: on an
// incoming data packet it unions the client sets from every pattern bank
// whose semantic applies, dedupes, retires satisfied one-shot
// subscriptions, and on a timer tick drains every bank of expired
// entries.
package dispatch

import (
	"sort"
	"time"

	"github.com/ifreecarve/mccibus/internal/bank"
	"github.com/ifreecarve/mccibus/internal/metrics"
)

// DataPacket is the (host, var, rev) triple a data packet or production
// event carries; dispatch always has every field populated.
type DataPacket struct {
	NodeAddress uint32
	VariableID  uint32
	Revision    uint32
}

// Banks groups the six concrete pattern banks the engine dispatches
// against (§4.D).
type Banks struct {
	All        *bank.Bank[bank.AllKey]
	Host       *bank.Bank[bank.HostKey]
	Var        *bank.Bank[bank.VarKey]
	HostVar    *bank.Bank[bank.HostVarKey]
	VarRev     *bank.Bank[bank.VarRevKey]
	HostVarRev *bank.Bank[bank.HostVarRevKey]
}

// Engine runs the dispatch algorithm over a fixed set of Banks.
type Engine struct {
	banks         *Banks
	myNodeAddress uint32
}

// NewEngine returns an Engine bound to banks. myNodeAddress is stored but
// not consulted: Dispatch queries every bank whether or not the packet's
// host is this node.
func NewEngine(banks *Banks, myNodeAddress uint32) *Engine {
	return &Engine{banks: banks, myNodeAddress: myNodeAddress}
}

// Dispatch delivers pkt to every matching client exactly once (§4.E):
//  1. Union the All, Host[h], Var[v], HostVar[h,v] pattern subscriptions
//     (persistent; left in place) with the VarRev[v,r] and HostVarRev[h,v,r]
//     one-shot subscriptions (retired on match).
//  2. Dedupe by client id.
//
// Returns the client ids in ascending order, for deterministic delivery
// (Scenario 5).
func (e *Engine) Dispatch(pkt DataPacket) []uint32 {
	start := time.Now()
	defer func() {
		metrics.DispatchDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	seen := make(map[uint32]struct{})
	add := func(clients []uint32) {
		for _, c := range clients {
			seen[c] = struct{}{}
		}
	}

	add(e.banks.All.IterSubscribers(bank.AllKey{}))
	add(e.banks.Host.IterSubscribers(bank.HostKey(pkt.NodeAddress)))
	add(e.banks.Var.IterSubscribers(bank.VarKey(pkt.VariableID)))
	add(e.banks.HostVar.IterSubscribers(bank.HostVarKey{Host: pkt.NodeAddress, Var: pkt.VariableID}))

	// Revision-bearing (one-shot) subscriptions are retired on match, not
	// merely read, so they use RemoveByKey rather than IterSubscribers.
	add(e.banks.VarRev.RemoveByKey(bank.VarRevKey{Var: pkt.VariableID, Rev: pkt.Revision}))
	add(e.banks.HostVarRev.RemoveByKey(bank.HostVarRevKey{Host: pkt.NodeAddress, Var: pkt.VariableID, Rev: pkt.Revision}))

	out := make([]uint32, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	metrics.DispatchFanoutSize.Observe(float64(len(out)))
	return out
}

// Fulfilled retires any still-outstanding one-shot subscriptions for a
// specific (host, var, rev) without recomputing the pattern-bank fan-out
// (§6 `enforce_fulfillment`). Idempotent: banks already drained by a
// matching Dispatch simply return no clients.
func (e *Engine) Fulfilled(pkt DataPacket) []uint32 {
	var out []uint32
	out = append(out, e.banks.VarRev.RemoveByKey(bank.VarRevKey{Var: pkt.VariableID, Rev: pkt.Revision})...)
	out = append(out, e.banks.HostVarRev.RemoveByKey(bank.HostVarRevKey{Host: pkt.NodeAddress, Var: pkt.VariableID, Rev: pkt.Revision})...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Tick drains every bank of subscriptions whose deadline is at or before
// now. Expired entries are discarded silently (§9 open question resolved
// as silent expiration).
func (e *Engine) Tick(now time.Time) {
	metrics.TimeoutsExpiredTotal.WithLabelValues("all").Add(float64(len(e.banks.All.PopExpired(now))))
	metrics.TimeoutsExpiredTotal.WithLabelValues("host").Add(float64(len(e.banks.Host.PopExpired(now))))
	metrics.TimeoutsExpiredTotal.WithLabelValues("var").Add(float64(len(e.banks.Var.PopExpired(now))))
	metrics.TimeoutsExpiredTotal.WithLabelValues("host_var").Add(float64(len(e.banks.HostVar.PopExpired(now))))
	metrics.TimeoutsExpiredTotal.WithLabelValues("var_rev").Add(float64(len(e.banks.VarRev.PopExpired(now))))
	metrics.TimeoutsExpiredTotal.WithLabelValues("host_var_rev").Add(float64(len(e.banks.HostVarRev.PopExpired(now))))
}
