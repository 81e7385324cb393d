// Package routetable implements the in-memory route table: one entry per
// destination, guarded by a single mutex, with cost-aware best-route
// selection and the install/replace/admission algorithm of spec §4.2.
//
// This generalizes the teacher's core/contact package's shape (a
// thread-safe, capacity-bounded store reached through a manager type with
// add/remove/search operations and change callbacks) from contact
// bookkeeping to route bookkeeping, and folds in the hello-application
// algorithm here (rather than in package routeproc) because it is this
// type's mutex that the "copy candidates, unlock, call CostFunction" rule
// of spec §5 protects — see DESIGN.md.
package routetable

import (
	"sync"
	"time"

	"github.com/kabili207/lorance/core/address"
	"github.com/kabili207/lorance/core/cost"
	"github.com/kabili207/lorance/core/wire"
)

// DefaultHopMax is the default ceiling on entry.Metric, within the spec's
// allowed 8..15 range.
const DefaultHopMax uint8 = 12

// DefaultMaxSize is the default RTMAXSIZE, within the spec's 10..16 range.
const DefaultMaxSize = 16

// Limits bounds table size and hop count, per spec §3/§6.
type Limits struct {
	MaxSize int
	HopMax  uint8
}

// DefaultLimits returns the default Limits.
func DefaultLimits() Limits {
	return Limits{MaxSize: DefaultMaxSize, HopMax: DefaultHopMax}
}

// RouteEntry is one destination's route, per spec §3.
type RouteEntry struct {
	Destination address.Address
	Via         address.Address
	Metric      uint8
	Role        address.Role
	GatewayLoad uint8
	Timeout     time.Time
	ReceivedSNR int8
}

// Outcome describes what ApplyAdvertised did with one (via, node) pair, for
// the caller to turn into events/stats/Trickle-and-health hooks.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeInstalled
	OutcomeRefreshed
	OutcomeReplaced
	OutcomeRejectedTableFull
	OutcomeRejectedCost
)

// ApplyResult reports the outcome of one ApplyAdvertised call plus whether
// it changed the table's topology (size or any via), which the caller uses
// to decide whether to reset Trickle (spec §4.5: "reset() ... on topology
// change — routing-table size or via-change").
type ApplyResult struct {
	Outcome        Outcome
	TopologyChange bool
}

// Table is the route table. The zero value is not usable; use New.
type Table struct {
	localAddr address.Address
	limits    Limits

	mu      sync.Mutex
	entries map[address.Address]*RouteEntry
}

// New creates an empty Table for the given local node address.
func New(localAddr address.Address, limits Limits) *Table {
	if limits.MaxSize <= 0 {
		limits.MaxSize = DefaultMaxSize
	}
	if limits.HopMax == 0 {
		limits.HopMax = DefaultHopMax
	}
	return &Table{
		localAddr: localAddr,
		limits:    limits,
		entries:   make(map[address.Address]*RouteEntry),
	}
}

// Size returns the number of route entries.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Find returns a copy of the entry for dst, if any.
func (t *Table) Find(dst address.Address) (RouteEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[dst]
	if !ok {
		return RouteEntry{}, false
	}
	return *e, true
}

// NextHop returns the next-hop address for dst, or address.None on miss.
// dst == address.Broadcast always resolves to address.Broadcast.
func (t *Table) NextHop(dst address.Address) address.Address {
	if dst == address.Broadcast {
		return address.Broadcast
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[dst]
	if !ok {
		return address.None
	}
	return e.Via
}

// SetReceivedSNR records the SNR measured on the most recent frame heard
// directly from dst. A no-op if dst has no entry yet (the implicit 1-hop
// install from that same HELLO always precedes this call in practice).
func (t *Table) SetReceivedSNR(dst address.Address, snr int8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[dst]; ok {
		e.ReceivedSNR = snr
	}
}

// Hops returns the hop metric for dst, or 0 on miss.
func (t *Table) Hops(dst address.Address) uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[dst]
	if !ok {
		return 0
	}
	return e.Metric
}

// candidate is the copied-out identifier set used to evaluate a route's
// cost after releasing the table's mutex, per spec §5.
type candidate struct {
	dst    address.Address
	via    address.Address
	metric uint8
}

// BestByRole returns the entry whose role includes every bit of roleMask
// that minimizes cost: hop count alone when costFn is nil, or costFn's
// evaluation over all candidates otherwise. Candidate identifiers are
// copied out and the lock released before costFn is invoked, so costFn may
// safely call back into the table (e.g. GatewayLoads) without deadlocking.
func (t *Table) BestByRole(roleMask address.Role, costFn *cost.Function) (RouteEntry, bool) {
	t.mu.Lock()
	candidates := make([]candidate, 0, len(t.entries))
	for dst, e := range t.entries {
		if !e.Role.Has(roleMask) {
			continue
		}
		candidates = append(candidates, candidate{dst: dst, via: e.Via, metric: e.Metric})
	}
	t.mu.Unlock()

	if len(candidates) == 0 {
		return RouteEntry{}, false
	}

	bestIdx := 0
	bestCost := t.candidateCost(candidates[0], costFn)
	for i := 1; i < len(candidates); i++ {
		c := t.candidateCost(candidates[i], costFn)
		if cost.Worse(bestCost, c) {
			bestIdx = i
			bestCost = c
		}
	}

	return t.Find(candidates[bestIdx].dst)
}

func (t *Table) candidateCost(c candidate, costFn *cost.Function) float64 {
	if costFn == nil {
		return float64(c.metric)
	}
	return costFn.Evaluate(c.metric, c.via, c.dst)
}

// SnapshotNetworkNodes returns an ordered copy of all entries rendered as
// NetworkNode records, suitable for serializing into an outgoing HELLO.
func (t *Table) SnapshotNetworkNodes() []wire.NetworkNode {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]wire.NetworkNode, 0, len(t.entries))
	for dst, e := range t.entries {
		out = append(out, wire.NetworkNode{
			Address:     dst,
			Metric:      e.Metric,
			Role:        e.Role,
			GatewayLoad: e.GatewayLoad,
		})
	}
	return out
}

// GatewayLoads implements cost.GatewaySource: the advertised load of every
// route whose role includes GATEWAY.
func (t *Table) GatewayLoads() map[address.Address]uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[address.Address]uint8)
	for dst, e := range t.entries {
		if e.Role.Has(address.RoleGateway) {
			out[dst] = e.GatewayLoad
		}
	}
	return out
}

// Remove deletes the entry for dst, if present, returning whether it
// existed.
func (t *Table) Remove(dst address.Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[dst]; !ok {
		return false
	}
	delete(t.entries, dst)
	return true
}

// RemoveNeighborAndDependents removes the direct route entry for neighbor
// and any entry whose Via == neighbor, per spec §4.6's FAULT side effect.
// Returns the set of removed destinations (neighbor first, if present).
func (t *Table) RemoveNeighborAndDependents(neighbor address.Address) []address.Address {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []address.Address
	if _, ok := t.entries[neighbor]; ok {
		removed = append(removed, neighbor)
		delete(t.entries, neighbor)
	}
	for dst, e := range t.entries {
		if e.Via == neighbor {
			removed = append(removed, dst)
			delete(t.entries, dst)
		}
	}
	return removed
}

// Sweep removes all entries whose Timeout has passed, returning the
// destinations removed. This is the "timeout sweep" removal path of spec
// §3's RouteEntry lifecycle.
func (t *Table) Sweep(now time.Time) []address.Address {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []address.Address
	for dst, e := range t.entries {
		if !e.Timeout.After(now) {
			removed = append(removed, dst)
			delete(t.entries, dst)
		}
	}
	return removed
}
