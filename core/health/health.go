// Package health implements per-neighbor liveness tracking: WARNING at one
// missed HELLO, FAULT at two, and RECOVERED on the next HELLO heard, per
// spec §4.6.
//
// This generalizes the teacher's device/connection.Manager (keep-alive /
// timeout tracking with an OnDisconnect callback) from a binary
// connected/disconnected state to the three-state HEALTHY/WARNING/FAULT
// machine, and from one timeout threshold to two (warning, then fault).
package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kabili207/lorance/core/address"
)

// Status is a neighbor's health state.
type Status int

const (
	StatusHealthy Status = iota
	StatusWarning
	StatusFault
)

func (s Status) String() string {
	switch s {
	case StatusWarning:
		return "warning"
	case StatusFault:
		return "fault"
	default:
		return "healthy"
	}
}

// Defaults per spec §4.6.
const (
	DefaultWarningSilence = 180 * time.Second
	DefaultFaultSilence   = 360 * time.Second
)

// Config configures a Monitor.
type Config struct {
	WarningSilence time.Duration
	FaultSilence   time.Duration
	Logger         *slog.Logger
}

// DefaultConfig returns the spec's default silence thresholds.
func DefaultConfig() Config {
	return Config{WarningSilence: DefaultWarningSilence, FaultSilence: DefaultFaultSilence}
}

type neighborState struct {
	lastHeard time.Time
	status    Status
}

// Monitor tracks per-neighbor last-heard timestamps and health transitions.
type Monitor struct {
	cfg Config
	log *slog.Logger

	mu        sync.Mutex
	neighbors map[address.Address]*neighborState

	onFault     func(neighbor address.Address, silence time.Duration)
	onRecovered func(neighbor address.Address)
}

// New creates a Monitor with the given configuration.
func New(cfg Config) *Monitor {
	if cfg.WarningSilence <= 0 {
		cfg.WarningSilence = DefaultWarningSilence
	}
	if cfg.FaultSilence <= 0 {
		cfg.FaultSilence = DefaultFaultSilence
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:       cfg,
		log:       logger.WithGroup("health"),
		neighbors: make(map[address.Address]*neighborState),
	}
}

// SetOnFault sets the callback invoked when a neighbor transitions to
// FAULT. The callback is expected to remove the neighbor's routes and
// reset Trickle (spec §4.6's ordered side effects); Monitor itself does not
// reach into RouteTable or Trickle, keeping those dependencies explicit at
// the wiring layer (cmd/lorasim, which calls
// routetable.Table.RemoveNeighborAndDependents and then
// hello.Scheduler.OnFault).
func (m *Monitor) SetOnFault(fn func(neighbor address.Address, silence time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFault = fn
}

// SetOnRecovered sets the callback invoked when a FAULT/WARNING neighbor is
// heard from again.
func (m *Monitor) SetOnRecovered(fn func(neighbor address.Address)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRecovered = fn
}

// Observe records a HELLO heard from neighbor at now. If the neighbor was
// previously WARNING or FAULT, it is restored to HEALTHY and the
// RECOVERED callback fires.
func (m *Monitor) Observe(neighbor address.Address, now time.Time) {
	m.mu.Lock()
	n, ok := m.neighbors[neighbor]
	if !ok {
		n = &neighborState{}
		m.neighbors[neighbor] = n
	}
	wasUnhealthy := n.status != StatusHealthy
	n.lastHeard = now
	n.status = StatusHealthy
	onRecovered := m.onRecovered
	m.mu.Unlock()

	if wasUnhealthy && onRecovered != nil {
		m.log.Debug("neighbor recovered", "neighbor", neighbor.String())
		onRecovered(neighbor)
	}
}

// Forget removes a neighbor from tracking entirely (e.g. its route was
// independently evicted for table-full reasons).
func (m *Monitor) Forget(neighbor address.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.neighbors, neighbor)
}

// Status returns a neighbor's current status. Unknown neighbors report
// StatusHealthy (no observation yet implies nothing to warn about).
func (m *Monitor) Status(neighbor address.Address) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.neighbors[neighbor]
	if !ok {
		return StatusHealthy
	}
	return n.status
}

// Tick evaluates every tracked neighbor's silence against the WARNING/FAULT
// thresholds, at >= 1Hz per spec §4.6. FAULT transitions fire the onFault
// callback (outside the lock) exactly once per crossing.
func (m *Monitor) Tick(now time.Time) {
	type faulted struct {
		addr    address.Address
		silence time.Duration
	}

	m.mu.Lock()
	var newFaults []faulted
	for addr, n := range m.neighbors {
		silence := now.Sub(n.lastHeard)
		switch {
		case silence >= m.cfg.FaultSilence:
			if n.status != StatusFault {
				n.status = StatusFault
				newFaults = append(newFaults, faulted{addr: addr, silence: silence})
			}
		case silence >= m.cfg.WarningSilence:
			if n.status == StatusHealthy {
				n.status = StatusWarning
			}
		}
	}
	onFault := m.onFault
	m.mu.Unlock()

	if onFault == nil {
		return
	}
	for _, f := range newFaults {
		m.log.Warn("neighbor fault", "neighbor", f.addr.String(), "silence", f.silence)
		onFault(f.addr, f.silence)
	}
}
