// Package stats tracks routing-core statistics using atomic counters, per
// spec §7: "All other errors are counted and exposed via a stats()
// accessor". Generalizes the teacher's device/router.RouterCounters /
// CountersSnapshot pattern from packet-routing counters to the ones named
// in spec §7 (RX, TX, forwarded, dropped-by-reason, faults, replacements,
// safety-HELLOs).
package stats

import "sync/atomic"

// Counters tracks routing-core statistics using atomic counters. All
// fields are safe for concurrent access.
type Counters struct {
	HellosRX      atomic.Uint32
	HellosTX      atomic.Uint32
	DataRX        atomic.Uint32
	DataTX         atomic.Uint32
	Forwarded     atomic.Uint32
	Delivered     atomic.Uint32

	DroppedMalformed    atomic.Uint32
	DroppedTableFull    atomic.Uint32
	DroppedNoRoute      atomic.Uint32
	DroppedTTLExpired   atomic.Uint32
	DroppedBackpressure atomic.Uint32
	DroppedDuplicate    atomic.Uint32

	RouteInstalls   atomic.Uint32
	RouteReplacements atomic.Uint32
	RouteRemovals   atomic.Uint32

	Faults      atomic.Uint32
	Recoveries  atomic.Uint32
	SafetyHellos atomic.Uint32
	TrickleSuppressions atomic.Uint32
}

// Snapshot is a plain-value, point-in-time copy of Counters for reading.
type Snapshot struct {
	HellosRX      uint32
	HellosTX      uint32
	DataRX        uint32
	DataTX        uint32
	Forwarded     uint32
	Delivered     uint32

	DroppedMalformed    uint32
	DroppedTableFull    uint32
	DroppedNoRoute      uint32
	DroppedTTLExpired   uint32
	DroppedBackpressure uint32
	DroppedDuplicate    uint32

	RouteInstalls     uint32
	RouteReplacements uint32
	RouteRemovals     uint32

	Faults              uint32
	Recoveries          uint32
	SafetyHellos        uint32
	TrickleSuppressions uint32
}

// Snapshot returns a consistent point-in-time copy of all counters.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		HellosRX:            c.HellosRX.Load(),
		HellosTX:            c.HellosTX.Load(),
		DataRX:              c.DataRX.Load(),
		DataTX:              c.DataTX.Load(),
		Forwarded:           c.Forwarded.Load(),
		Delivered:           c.Delivered.Load(),
		DroppedMalformed:    c.DroppedMalformed.Load(),
		DroppedTableFull:    c.DroppedTableFull.Load(),
		DroppedNoRoute:      c.DroppedNoRoute.Load(),
		DroppedTTLExpired:   c.DroppedTTLExpired.Load(),
		DroppedBackpressure: c.DroppedBackpressure.Load(),
		DroppedDuplicate:    c.DroppedDuplicate.Load(),
		RouteInstalls:       c.RouteInstalls.Load(),
		RouteReplacements:   c.RouteReplacements.Load(),
		RouteRemovals:       c.RouteRemovals.Load(),
		Faults:              c.Faults.Load(),
		Recoveries:          c.Recoveries.Load(),
		SafetyHellos:        c.SafetyHellos.Load(),
		TrickleSuppressions: c.TrickleSuppressions.Load(),
	}
}

// Reset zeroes all counters.
func (c *Counters) Reset() {
	c.HellosRX.Store(0)
	c.HellosTX.Store(0)
	c.DataRX.Store(0)
	c.DataTX.Store(0)
	c.Forwarded.Store(0)
	c.Delivered.Store(0)
	c.DroppedMalformed.Store(0)
	c.DroppedTableFull.Store(0)
	c.DroppedNoRoute.Store(0)
	c.DroppedTTLExpired.Store(0)
	c.DroppedBackpressure.Store(0)
	c.DroppedDuplicate.Store(0)
	c.RouteInstalls.Store(0)
	c.RouteReplacements.Store(0)
	c.RouteRemovals.Store(0)
	c.Faults.Store(0)
	c.Recoveries.Store(0)
	c.SafetyHellos.Store(0)
	c.TrickleSuppressions.Store(0)
}
