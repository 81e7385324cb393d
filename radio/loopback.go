package radio

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/kabili207/lorance/core/address"
)

// LinkProfile describes the simulated channel between two nodes on a Bus:
// the RSSI/SNR an observer measures when it hears the other side, and the
// fraction of frames lost in transit. A Bus is not required to be
// symmetric; register both directions if you want symmetric behavior.
type LinkProfile struct {
	RSSI    float64
	SNR     int8
	LossPct float64 // 0..1, fraction of frames silently dropped
}

// Bus is an in-memory, fully-owned (non-stubbed) shared radio medium used
// by tests, cmd/lorasim, and the scenario tests of spec §8. It is not a
// mock of RadioIO; it is an ordinary implementation of it, standing in for
// real LoRa hardware the way a project's own simulator/test harness would,
// per SPEC_FULL's "in-memory radio bus" supplement.
type Bus struct {
	mu    sync.Mutex
	nodes map[address.Address]*Loopback
	links map[linkKey]LinkProfile
	rng   *rand.Rand
}

type linkKey struct{ from, to address.Address }

// NewBus creates an empty shared bus. By default, any two registered nodes
// hear each other at a strong link (RSSI -70dBm, SNR 8dB, no loss); use
// SetLink to model weaker or lossy links for specific pairs.
func NewBus() *Bus {
	return &Bus{
		nodes: make(map[address.Address]*Loopback),
		links: make(map[linkKey]LinkProfile),
		rng:   rand.New(rand.NewSource(1)),
	}
}

// DefaultLink is the link profile used for a pair with no explicit
// SetLink entry.
var DefaultLink = LinkProfile{RSSI: -70, SNR: 8, LossPct: 0}

// SetLink configures the one-directional link profile an observer at `to`
// uses when it hears frames transmitted by `from`. Call twice (swapping
// from/to) for a symmetric link.
func (b *Bus) SetLink(from, to address.Address, p LinkProfile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.links[linkKey{from: from, to: to}] = p
}

// Unlink removes connectivity between from and to entirely: to no longer
// hears frames from from. Used to simulate a node losing power.
func (b *Bus) Unlink(from, to address.Address) {
	b.SetLink(from, to, LinkProfile{LossPct: 1.0})
}

func (b *Bus) linkFor(from, to address.Address) LinkProfile {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.links[linkKey{from: from, to: to}]; ok {
		return p
	}
	return DefaultLink
}

// Register creates and attaches a Loopback radio endpoint for addr to this
// bus. Frames that addr sends are delivered to every other registered node
// subject to that pair's link profile.
func (b *Bus) Register(addr address.Address) *Loopback {
	b.mu.Lock()
	defer b.mu.Unlock()

	l := &Loopback{
		bus:  b,
		addr: addr,
		rx:   make(chan ReceivedFrame, 64),
	}
	b.nodes[addr] = l
	return l
}

// Deregister detaches addr from the bus and closes its receive channel.
func (b *Bus) Deregister(addr address.Address) {
	b.mu.Lock()
	l, ok := b.nodes[addr]
	delete(b.nodes, addr)
	b.mu.Unlock()
	if ok {
		close(l.rx)
	}
}

func (b *Bus) broadcast(from address.Address, kind FrameKind, payload []byte) {
	b.mu.Lock()
	peers := make([]*Loopback, 0, len(b.nodes))
	for addr, l := range b.nodes {
		if addr == from {
			continue
		}
		peers = append(peers, l)
	}
	b.mu.Unlock()

	for _, l := range peers {
		profile := b.linkFor(from, l.addr)
		if profile.LossPct > 0 && b.roll() < profile.LossPct {
			continue
		}
		frame := ReceivedFrame{
			Frame: Frame{Kind: kind, Payload: append([]byte(nil), payload...)},
			From:  from,
			RSSI:  profile.RSSI,
			SNR:   profile.SNR,
		}
		select {
		case l.rx <- frame:
		default:
			// Receiver isn't draining fast enough; drop rather than block
			// the sender, matching a half-duplex radio's lack of
			// backpressure toward other nodes.
		}
	}
}

func (b *Bus) roll() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.Float64()
}

// Loopback is one node's RadioIO endpoint on a Bus.
type Loopback struct {
	bus  *Bus
	addr address.Address

	mu      sync.Mutex
	airtime time.Duration

	rx chan ReceivedFrame
}

var _ RadioIO = (*Loopback)(nil)

// Send broadcasts payload to every other node registered on the bus,
// subject to each pair's configured link profile. Never returns ErrBusy —
// the loopback bus models an unconstrained channel; duty-cycle and
// contention belong to a real driver.
func (l *Loopback) Send(ctx context.Context, kind FrameKind, payload []byte) error {
	l.mu.Lock()
	l.airtime += airtimeEstimate(len(payload))
	l.mu.Unlock()
	l.bus.broadcast(l.addr, kind, payload)
	return nil
}

// Receive returns the channel of frames this node has heard.
func (l *Loopback) Receive() <-chan ReceivedFrame { return l.rx }

// Airtime returns cumulative simulated on-air time for frames this node
// has sent.
func (l *Loopback) Airtime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.airtime
}

// LocalAddress returns this endpoint's node address.
func (l *Loopback) LocalAddress() address.Address { return l.addr }

// airtimeEstimate is a rough SF7-class time-on-air model (0.5 ms per byte),
// good enough for the loopback bus's bookkeeping; real time-on-air
// calculation belongs to the physical radio driver (spec §1 non-goal).
func airtimeEstimate(payloadLen int) time.Duration {
	return time.Duration(payloadLen) * time.Millisecond / 2
}
