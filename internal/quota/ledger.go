// Package quota implements the per-client subscription counters described
// in §4.F: local and remote counts kept in a map keyed by client_id,
// mutated only by bank add/remove paths, clamped at zero with a fatal
// invariant violation on underflow.
package quota

import "fmt"

// InvariantViolation is the fatal error raised when a decrement would take
// a client's counter below zero (§7). Per §7 this indicates a programming
// bug, not a data condition; callers should let it propagate and abort.
type InvariantViolation struct {
	ClientID uint32
	Kind     string // "local" or "remote"
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("quota: %s counter for client %d would go negative", e.Kind, e.ClientID)
}

type counters struct {
	local  int32
	remote int32
}

// Ledger tracks outstanding local and remote subscription counts per
// client in a map, adding an entry the first time a client ID is seen.
// It is not a dense array sized to a client count, and it places no upper
// bound on client IDs.
type Ledger struct {
	maxLocal  int32
	maxRemote int32
	byClient  map[uint32]*counters
}

// New returns a Ledger enforcing maxLocal/maxRemote outstanding
// subscriptions per client.
func New(maxLocal, maxRemote int32) *Ledger {
	return &Ledger{maxLocal: maxLocal, maxRemote: maxRemote, byClient: make(map[uint32]*counters)}
}

func (l *Ledger) entry(id uint32) *counters {
	c, ok := l.byClient[id]
	if !ok {
		c = &counters{}
		l.byClient[id] = c
	}
	return c
}

// CanAdmitLocal reports whether client id has room for one more local
// subscription without exceeding the configured cap.
func (l *Ledger) CanAdmitLocal(id uint32) bool {
	return l.entry(id).local < l.maxLocal
}

// CanAdmitRemote reports whether client id has room for one more remote
// subscription.
func (l *Ledger) CanAdmitRemote(id uint32) bool {
	return l.entry(id).remote < l.maxRemote
}

// IncrLocal records one more outstanding local subscription for id.
func (l *Ledger) IncrLocal(id uint32) { l.entry(id).local++ }

// IncrRemote records one more outstanding remote subscription for id.
func (l *Ledger) IncrRemote(id uint32) { l.entry(id).remote++ }

// DecrLocal records the retirement of one local subscription for id.
func (l *Ledger) DecrLocal(id uint32) error {
	c := l.entry(id)
	if c.local <= 0 {
		return &InvariantViolation{ClientID: id, Kind: "local"}
	}
	c.local--
	return nil
}

// DecrRemote records the retirement of one remote subscription for id.
func (l *Ledger) DecrRemote(id uint32) error {
	c := l.entry(id)
	if c.remote <= 0 {
		return &InvariantViolation{ClientID: id, Kind: "remote"}
	}
	c.remote--
	return nil
}

// Outstanding returns the current local and remote counts for id.
func (l *Ledger) Outstanding(id uint32) (local, remote int) {
	c := l.entry(id)
	return int(c.local), int(c.remote)
}

// FreeLocal returns how many more local subscriptions id may hold.
func (l *Ledger) FreeLocal(id uint32) int {
	n := l.maxLocal - l.entry(id).local
	if n < 0 {
		return 0
	}
	return int(n)
}

// FreeRemote returns how many more remote subscriptions id may hold.
func (l *Ledger) FreeRemote(id uint32) int {
	n := l.maxRemote - l.entry(id).remote
	if n < 0 {
		return 0
	}
	return int(n)
}
