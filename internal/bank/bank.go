// Package bank implements the generic request bank of §4.C: a structure
// that couples a timeout heap with a content index so each subscription is
// simultaneously addressable by deadline and by the pattern-specific key
// set it was registered under, plus the six concrete pattern banks of
// §4.D built on top of it.
package bank

import (
	"errors"
	"sort"
	"time"

	"github.com/ifreecarve/mccibus/internal/heap"
	"github.com/ifreecarve/mccibus/internal/quota"
)

// AddResult reports what Add did with an incoming subscription.
type AddResult int

const (
	// Inserted means a brand new subscription was created.
	Inserted AddResult = iota
	// Refreshed means an existing subscription's deadline was updated.
	Refreshed
	// Rejected means the client's quota for this request class is full;
	// no state changed.
	Rejected
)

func (r AddResult) String() string {
	switch r {
	case Inserted:
		return "Inserted"
	case Refreshed:
		return "Refreshed"
	case Rejected:
		return "Rejected"
	default:
		return "unknown"
	}
}

// ErrEmpty is returned by MinimumDeadline when the bank holds no live
// subscriptions.
var ErrEmpty = errors.New("bank: empty")

// Subscription is the payload carried by the timeout heap and returned
// from PopExpired.
type Subscription[K comparable] struct {
	KeySet   K
	ClientID uint32
	Deadline time.Time
	Remote   bool
}

// Bank is the generic request bank described in §4.C. It is parametrised
// by the content-key type K; the content index strategy (policy[K]) is
// supplied by whichever concrete pattern bank in §4.D constructs it.
type Bank[K comparable] struct {
	heap   *heap.Heap[Subscription[K]]
	index  policy[K]
	ledger *quota.Ledger
}

// Add registers or refreshes a subscription. If no subscription exists for
// (keySet, clientID), a new one is created subject to the quota ledger's
// per-client cap (separate caps for local vs remote, per §4.F); if one
// already exists its deadline is updated in place via decrease/increase-key
// (§4.A `alter_key`).
func (b *Bank[K]) Add(keySet K, clientID uint32, deadline time.Time, remote bool) (AddResult, error) {
	m := b.index.ensure(keySet)
	if h, ok := m[clientID]; ok {
		if err := b.heap.AlterKey(h, deadline); err != nil {
			return Rejected, err
		}
		return Refreshed, nil
	}

	if remote {
		if !b.ledger.CanAdmitRemote(clientID) {
			if len(m) == 0 {
				b.index.delete(keySet)
			}
			return Rejected, nil
		}
	} else {
		if !b.ledger.CanAdmitLocal(clientID) {
			if len(m) == 0 {
				b.index.delete(keySet)
			}
			return Rejected, nil
		}
	}

	h := b.heap.Insert(deadline, Subscription[K]{KeySet: keySet, ClientID: clientID, Deadline: deadline, Remote: remote})
	m[clientID] = h
	if remote {
		b.ledger.IncrRemote(clientID)
	} else {
		b.ledger.IncrLocal(clientID)
	}
	return Inserted, nil
}

// MinimumDeadline returns the smallest deadline among live subscriptions.
func (b *Bank[K]) MinimumDeadline() (time.Time, error) {
	_, d, err := b.heap.Minimum()
	if err == heap.ErrEmpty {
		return time.Time{}, ErrEmpty
	}
	return d, err
}

// PopExpired removes and returns every subscription whose deadline is at
// or before now, decrementing the ledger and content index for each.
// Clients are not notified (§9 open question, resolved as silent
// expiration).
func (b *Bank[K]) PopExpired(now time.Time) []Subscription[K] {
	var out []Subscription[K]
	for {
		sub, d, err := b.heap.Minimum()
		if err != nil || d.After(now) {
			break
		}
		_, _, _ = b.heap.ExtractMin()
		b.retire(sub)
		out = append(out, sub)
	}
	return out
}

// RemoveByKey retires every subscription registered under keySet — used
// on delivery of a matching data packet (§4.C) — and returns the list of
// client IDs that were subscribed, in ascending order for deterministic
// dispatch (Scenario 5).
func (b *Bank[K]) RemoveByKey(keySet K) []uint32 {
	m, ok := b.index.lookup(keySet)
	if !ok || len(m) == 0 {
		return nil
	}
	clients := make([]uint32, 0, len(m))
	for clientID, h := range m {
		sub := b.heap.Payload(h)
		_ = b.heap.Remove(h)
		b.decrLedger(sub)
		clients = append(clients, clientID)
	}
	b.index.delete(keySet)
	sort.Slice(clients, func(i, j int) bool { return clients[i] < clients[j] })
	return clients
}

// RemoveClient retires a single client's subscription under keySet,
// leaving any other clients subscribed under the same key untouched. Used
// for explicit unsubscribe (§6 `process_request` with negative quantity),
// as distinct from RemoveByKey's dispatch-triggered retirement of every
// subscriber. Reports whether a subscription was found and removed.
func (b *Bank[K]) RemoveClient(keySet K, clientID uint32) bool {
	m, ok := b.index.lookup(keySet)
	if !ok {
		return false
	}
	h, ok := m[clientID]
	if !ok {
		return false
	}
	sub := b.heap.Payload(h)
	_ = b.heap.Remove(h)
	delete(m, clientID)
	if len(m) == 0 {
		b.index.delete(keySet)
	}
	b.decrLedger(sub)
	return true
}

// Contains reports whether clientID holds a live subscription under
// keySet.
func (b *Bank[K]) Contains(keySet K, clientID uint32) bool {
	m, ok := b.index.lookup(keySet)
	if !ok {
		return false
	}
	_, present := m[clientID]
	return present
}

// IterSubscribers returns the client IDs subscribed under keySet, in
// ascending order.
func (b *Bank[K]) IterSubscribers(keySet K) []uint32 {
	m, ok := b.index.lookup(keySet)
	if !ok {
		return nil
	}
	out := make([]uint32, 0, len(m))
	for clientID := range m {
		out = append(out, clientID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Outstanding returns clientID's current local/remote subscription
// counts, as tracked by the shared ledger.
func (b *Bank[K]) Outstanding(clientID uint32) (local, remote int) {
	return b.ledger.Outstanding(clientID)
}

func (b *Bank[K]) retire(sub Subscription[K]) {
	m, ok := b.index.lookup(sub.KeySet)
	if ok {
		delete(m, sub.ClientID)
		if len(m) == 0 {
			b.index.delete(sub.KeySet)
		}
	}
	b.decrLedger(sub)
}

func (b *Bank[K]) decrLedger(sub Subscription[K]) {
	var err error
	if sub.Remote {
		err = b.ledger.DecrRemote(sub.ClientID)
	} else {
		err = b.ledger.DecrLocal(sub.ClientID)
	}
	if err != nil {
		panic(err)
	}
}
