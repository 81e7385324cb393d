// Package routeproc implements RouteProcessor: applying an incoming HELLO
// to the route table, updating link metrics, and notifying the Trickle
// scheduler and health monitor, per spec §4.2.
package routeproc

import (
	"log/slog"
	"time"

	"github.com/kabili207/lorance/core/address"
	"github.com/kabili207/lorance/core/cost"
	"github.com/kabili207/lorance/core/events"
	"github.com/kabili207/lorance/core/linkmetrics"
	"github.com/kabili207/lorance/core/routetable"
	"github.com/kabili207/lorance/core/stats"
	"github.com/kabili207/lorance/core/trickle"
	"github.com/kabili207/lorance/core/wire"
)

// DefaultHoldTime is the route entry timeout used when Config.HoldTime is
// unset: three HELLO intervals at I_max, long enough to survive a run of
// suppressed Trickle transmissions without flapping entries.
const DefaultHoldTime = 3 * trickle.DefaultIMax

// Mode selects which of the three routing disciplines this node runs.
// costFn is only installed in ModeCost; ModeFlood and ModeHopCount are the
// degenerate cases obtained by leaving it uninstalled (spec §1).
type Mode int

const (
	ModeFlood Mode = iota
	ModeHopCount
	ModeCost
)

// ConsistencyNotifier is the Trickle-facing hook fired once per processed
// HELLO, regardless of sender, per spec §4.2's "HelloScheduler.onHelloReceived".
type ConsistencyNotifier interface {
	HeardConsistent()
}

// TopologyNotifier is the Trickle-facing hook fired at most once per
// processed HELLO when it changed the route table's size or any entry's
// via, per spec §4.5: "reset() ... on topology change". *trickle.Timer
// satisfies this directly.
type TopologyNotifier interface {
	Reset(now time.Time)
}

// LivenessObserver is the HealthMonitor-facing hook, fired once per
// processed HELLO's sender.
type LivenessObserver interface {
	Observe(neighbor address.Address, now time.Time)
}

// Config configures a Processor.
type Config struct {
	LocalAddress address.Address
	Mode         Mode
	HoldTime     time.Duration // route entry timeout duration after install/refresh/replace

	Table   *routetable.Table
	Links   *linkmetrics.Tracker
	CostFn  *cost.Function // only consulted when Mode == ModeCost
	Trickle  ConsistencyNotifier
	Topology TopologyNotifier
	Health   LivenessObserver
	Stats   *stats.Counters
	Sink    events.Sink
	Logger  *slog.Logger
}

// Processor applies HELLOs to the route table.
type Processor struct {
	cfg Config
	log *slog.Logger
}

// New creates a Processor.
func New(cfg Config) *Processor {
	if cfg.HoldTime <= 0 {
		cfg.HoldTime = DefaultHoldTime
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{cfg: cfg, log: logger.WithGroup("routeproc")}
}

// activeCostFn returns the CostFunction to use, nil outside ModeCost.
func (p *Processor) activeCostFn() *cost.Function {
	if p.cfg.Mode != ModeCost {
		return nil
	}
	return p.cfg.CostFn
}

// OnHello applies one already-decoded HELLO packet, per spec §4.2.
// snrOfThisFrame is the SNR measured on this specific radio frame.
func (p *Processor) OnHello(pkt *wire.RoutePacket, snrOfThisFrame int8, rssiOfThisFrame float64, now time.Time) {
	if p.cfg.Stats != nil {
		p.cfg.Stats.HellosRX.Add(1)
	}

	costFn := p.activeCostFn()

	// Step 1: synthesize the sender as an implicit 1-hop destination.
	senderNode := wire.NetworkNode{
		Address:     pkt.SenderAddress,
		Metric:      1,
		Role:        pkt.SenderRole,
		GatewayLoad: pkt.SenderGatewayLoad,
	}
	topologyChanged := p.applyNode(pkt.SenderAddress, senderNode, costFn, now)

	// Step 2: link metrics + SNR-on-receive for the sender. HELLOs carry no
	// per-link sequence field (spec §6), so only the RSSI/SNR EWMA advances
	// here; ETX sequence-gap tracking is driven by DATA frames instead (see
	// device/forwarder.HandleInbound), which do carry a usable Seq.
	p.cfg.Links.UpdateQuality(pkt.SenderAddress, rssiOfThisFrame, float64(snrOfThisFrame))
	p.cfg.Table.SetReceivedSNR(pkt.SenderAddress, snrOfThisFrame)

	// Step 3+4: every advertised node, hop count converted to
	// receiver-relative, each processed the same way as the sender.
	for _, n := range pkt.NodeList {
		n.Metric++
		if p.applyNode(pkt.SenderAddress, n, costFn, now) {
			topologyChanged = true
		}
	}

	if p.cfg.Trickle != nil {
		p.cfg.Trickle.HeardConsistent()
	}
	// A HELLO that changed the table's size or any via happens-before the
	// next HelloScheduler tick observing it (spec §5 ordering guarantee):
	// the reset is applied synchronously here, before OnHello returns.
	if topologyChanged && p.cfg.Topology != nil {
		p.cfg.Topology.Reset(now)
	}
	if p.cfg.Health != nil {
		p.cfg.Health.Observe(pkt.SenderAddress, now)
	}
}

// applyNode applies one (via, node) pair and reports whether it changed
// the table's topology (size or via), per spec §4.5.
func (p *Processor) applyNode(via address.Address, node wire.NetworkNode, costFn *cost.Function, now time.Time) bool {
	result := p.cfg.Table.ApplyAdvertised(via, node, costFn, now, p.cfg.HoldTime)

	switch result.Outcome {
	case routetable.OutcomeInstalled:
		if p.cfg.Stats != nil {
			p.cfg.Stats.RouteInstalls.Add(1)
		}
		p.emit(events.RouteInstalled{Destination: node.Address, Via: via, Metric: node.Metric})
	case routetable.OutcomeReplaced:
		if p.cfg.Stats != nil {
			p.cfg.Stats.RouteReplacements.Add(1)
		}
		p.emit(events.RouteReplaced{Destination: node.Address, NewVia: via, NewMetric: node.Metric})
	case routetable.OutcomeRejectedTableFull:
		if p.cfg.Stats != nil {
			p.cfg.Stats.DroppedTableFull.Add(1)
		}
	}
	return result.TopologyChange
}

func (p *Processor) emit(e events.Event) {
	if p.cfg.Sink != nil {
		p.cfg.Sink.Emit(e)
	}
}
