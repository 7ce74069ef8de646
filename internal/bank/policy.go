package bank

import (
	"github.com/ifreecarve/mccibus/internal/bucketindex"
	"github.com/ifreecarve/mccibus/internal/heap"
	"github.com/ifreecarve/mccibus/internal/ordermap"
)

// subsMap maps client_id to the heap handle carrying that client's
// subscription under one content key (§3 "SubscriptionMap").
type subsMap map[uint32]heap.Handle

// policy is the content-index strategy a concrete pattern bank supplies to
// the generic Bank (§9 "virtual pattern banks" reimagined as a policy
// object instead of inheritance). Each method operates on a single
// content key of the bank's own KeySet type.
type policy[K comparable] interface {
	// lookup returns the SubscriptionMap for k, if one exists.
	lookup(k K) (subsMap, bool)
	// ensure returns the SubscriptionMap for k, creating an empty one if
	// none exists yet.
	ensure(k K) subsMap
	// delete removes the SubscriptionMap for k entirely (§5: an empty
	// SubscriptionMap must not be retained).
	delete(k K)
}

// allPolicy backs the All bank: a single SubscriptionMap, no index.
type allPolicy struct {
	m subsMap
}

func newAllPolicy() *allPolicy { return &allPolicy{} }

func (p *allPolicy) lookup(AllKey) (subsMap, bool) {
	if p.m == nil {
		return nil, false
	}
	return p.m, true
}

func (p *allPolicy) ensure(AllKey) subsMap {
	if p.m == nil {
		p.m = make(subsMap)
	}
	return p.m
}

func (p *allPolicy) delete(AllKey) { p.m = nil }

// flatPolicy backs Host and Var: a bucket index keyed directly by the
// single domain integer.
type flatPolicy[K ~uint32] struct {
	idx *bucketindex.Index[subsMap]
}

func newFlatPolicy[K ~uint32](capacity uint32) *flatPolicy[K] {
	return &flatPolicy[K]{idx: bucketindex.New[subsMap](capacity)}
}

func (p *flatPolicy[K]) lookup(k K) (subsMap, bool) { return p.idx.Get(uint32(k)) }

func (p *flatPolicy[K]) ensure(k K) subsMap {
	if m, ok := p.idx.Get(uint32(k)); ok {
		return m
	}
	m := make(subsMap)
	p.idx.Insert(uint32(k), m)
	return m
}

func (p *flatPolicy[K]) delete(k K) { p.idx.Remove(uint32(k)) }

// hostVarPolicy backs HostVar: bucket index over var_id, inner ordered map
// keyed by host_addr (§4.D row "HostVar").
type hostVarPolicy struct {
	idx *bucketindex.Index[*ordermap.Map[uint32, subsMap]]
}

func newHostVarPolicy(capacity uint32) *hostVarPolicy {
	return &hostVarPolicy{idx: bucketindex.New[*ordermap.Map[uint32, subsMap]](capacity)}
}

func (p *hostVarPolicy) inner(varID uint32, create bool) *ordermap.Map[uint32, subsMap] {
	m, ok := p.idx.Get(varID)
	if !ok {
		if !create {
			return nil
		}
		m = ordermap.New[uint32, subsMap]()
		p.idx.Insert(varID, m)
	}
	return m
}

func (p *hostVarPolicy) lookup(k HostVarKey) (subsMap, bool) {
	inner := p.inner(k.Var, false)
	if inner == nil {
		return nil, false
	}
	return inner.Get(k.Host)
}

func (p *hostVarPolicy) ensure(k HostVarKey) subsMap {
	inner := p.inner(k.Var, true)
	if m, ok := inner.Get(k.Host); ok {
		return m
	}
	m := make(subsMap)
	inner.Set(k.Host, m)
	return m
}

func (p *hostVarPolicy) delete(k HostVarKey) {
	inner := p.inner(k.Var, false)
	if inner == nil {
		return
	}
	inner.Delete(k.Host)
	if inner.Len() == 0 {
		p.idx.Remove(k.Var)
	}
}

// varRevPolicy backs VarRev: bucket index over var_id, inner ordered map
// keyed by revision.
type varRevPolicy struct {
	idx *bucketindex.Index[*ordermap.Map[uint32, subsMap]]
}

func newVarRevPolicy(capacity uint32) *varRevPolicy {
	return &varRevPolicy{idx: bucketindex.New[*ordermap.Map[uint32, subsMap]](capacity)}
}

func (p *varRevPolicy) inner(varID uint32, create bool) *ordermap.Map[uint32, subsMap] {
	m, ok := p.idx.Get(varID)
	if !ok {
		if !create {
			return nil
		}
		m = ordermap.New[uint32, subsMap]()
		p.idx.Insert(varID, m)
	}
	return m
}

func (p *varRevPolicy) lookup(k VarRevKey) (subsMap, bool) {
	inner := p.inner(k.Var, false)
	if inner == nil {
		return nil, false
	}
	return inner.Get(k.Rev)
}

func (p *varRevPolicy) ensure(k VarRevKey) subsMap {
	inner := p.inner(k.Var, true)
	if m, ok := inner.Get(k.Rev); ok {
		return m
	}
	m := make(subsMap)
	inner.Set(k.Rev, m)
	return m
}

func (p *varRevPolicy) delete(k VarRevKey) {
	inner := p.inner(k.Var, false)
	if inner == nil {
		return
	}
	inner.Delete(k.Rev)
	if inner.Len() == 0 {
		p.idx.Remove(k.Var)
	}
}

// hostVarRevPolicy backs HostVarRev: bucket index over var_id, inner
// ordered map keyed by the packed (host_addr, revision) pair.
type hostVarRevPolicy struct {
	idx *bucketindex.Index[*ordermap.Map[uint64, subsMap]]
}

func newHostVarRevPolicy(capacity uint32) *hostVarRevPolicy {
	return &hostVarRevPolicy{idx: bucketindex.New[*ordermap.Map[uint64, subsMap]](capacity)}
}

func packHostRev(host, rev uint32) uint64 {
	return uint64(host)<<32 | uint64(rev)
}

func (p *hostVarRevPolicy) inner(varID uint32, create bool) *ordermap.Map[uint64, subsMap] {
	m, ok := p.idx.Get(varID)
	if !ok {
		if !create {
			return nil
		}
		m = ordermap.New[uint64, subsMap]()
		p.idx.Insert(varID, m)
	}
	return m
}

func (p *hostVarRevPolicy) lookup(k HostVarRevKey) (subsMap, bool) {
	inner := p.inner(k.Var, false)
	if inner == nil {
		return nil, false
	}
	return inner.Get(packHostRev(k.Host, k.Rev))
}

func (p *hostVarRevPolicy) ensure(k HostVarRevKey) subsMap {
	inner := p.inner(k.Var, true)
	packed := packHostRev(k.Host, k.Rev)
	if m, ok := inner.Get(packed); ok {
		return m
	}
	m := make(subsMap)
	inner.Set(packed, m)
	return m
}

func (p *hostVarRevPolicy) delete(k HostVarRevKey) {
	inner := p.inner(k.Var, false)
	if inner == nil {
		return
	}
	packed := packHostRev(k.Host, k.Rev)
	inner.Delete(packed)
	if inner.Len() == 0 {
		p.idx.Remove(k.Var)
	}
}
