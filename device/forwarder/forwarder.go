// Package forwarder implements Forwarder: outbound datagram origination and
// inbound DATA-frame relay/delivery, per spec §4.7. It generalizes the
// teacher's device/router.Router (path-based flood/direct forwarding with
// a priority send queue) from MeshCore's path-hash forwarding to the
// routing core's next-hop table lookup, TTL decrement, and per-mode
// duplicate suppression.
package forwarder

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kabili207/lorance/core/address"
	"github.com/kabili207/lorance/core/linkmetrics"
	"github.com/kabili207/lorance/core/routeproc"
	"github.com/kabili207/lorance/core/routetable"
	"github.com/kabili207/lorance/core/stats"
	"github.com/kabili207/lorance/core/wire"
	"github.com/kabili207/lorance/device/dedupe"
	"github.com/kabili207/lorance/radio"
)

// DefaultTTL is the default TTL stamped on locally originated DATA frames,
// within the spec's allowed 3..5 range.
const DefaultTTL uint8 = 4

// Sentinel errors for the taxonomy of spec §7.
var (
	ErrNoRoute = errors.New("no route to destination")
)

// Outcome describes what happened to an outbound Send call, one of the
// three application-visible outcomes named in spec §7.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeNoRoute
	OutcomeBackpressure
)

// Config configures a Forwarder.
type Config struct {
	LocalAddress address.Address
	Mode         routeproc.Mode
	DefaultTTL   uint8

	Table *routetable.Table
	Radio radio.RadioIO
	Stats *stats.Counters

	// Links, when set, is fed the direct transmitter's RSSI/SNR and
	// sequence-gap ETX from every received DATA frame (spec §4.3's
	// sequence-gap detection; DATA frames are the only wire format that
	// carries a usable per-link Seq, per core/routeproc's HELLO-side
	// comment). Optional: a Forwarder used without link-quality bookkeeping
	// (e.g. a gateway-only bridge) can leave this nil.
	Links *linkmetrics.Tracker

	// Dedupe is consulted for any broadcast-destination DATA frame
	// regardless of Mode, per SPEC_FULL's resolution of the §9 Open
	// Question on P3 broadcast dedup; it is never consulted for unicast
	// DATA under ModeHopCount/ModeCost.
	Dedupe *dedupe.Cache

	Logger *slog.Logger
}

// Forwarder implements outbound origination and inbound relay of DATA
// frames, per spec §4.7.
type Forwarder struct {
	cfg Config
	log *slog.Logger

	seq uint16 // local origination sequence counter
}

// New creates a Forwarder.
func New(cfg Config) *Forwarder {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{cfg: cfg, log: logger.WithGroup("forwarder")}
}

// Send originates a DATA frame carrying payload to dst, per spec §4.7's
// outbound path: resolve next hop, construct the frame with
// Config.DefaultTTL, and enqueue it to the radio at data priority.
// Returns ErrNoRoute (unwrapped; errors.Is also works) when dst has no route.
func (f *Forwarder) Send(ctx context.Context, dst address.Address, payload []byte) (Outcome, error) {
	via := f.cfg.Table.NextHop(dst)
	if via == address.None {
		if f.cfg.Stats != nil {
			f.cfg.Stats.DroppedNoRoute.Add(1)
		}
		return OutcomeNoRoute, ErrNoRoute
	}

	f.seq++
	pkt := &wire.DataPacket{
		Src:        f.cfg.LocalAddress,
		Dst:        dst,
		Seq:        f.seq,
		TTL:        f.cfg.DefaultTTL,
		AppPayload: payload,
	}
	buf, err := wire.EncodeData(pkt)
	if err != nil {
		return OutcomeNoRoute, err
	}

	if err := f.cfg.Radio.Send(ctx, radio.FrameData, buf); err != nil {
		if f.cfg.Stats != nil {
			f.cfg.Stats.DroppedBackpressure.Add(1)
		}
		return OutcomeBackpressure, err
	}

	if f.cfg.Stats != nil {
		f.cfg.Stats.DataTX.Add(1)
	}
	return OutcomeAccepted, nil
}

// DeliverFunc is invoked for a DATA frame addressed to this node (including
// broadcast), with the opaque application payload. The Forwarder never
// inspects the payload itself, per spec §9's "opaque byte blob" non-goal.
type DeliverFunc func(pkt *wire.DataPacket)

// HandleInbound processes one received DATA frame, per spec §4.7's inbound
// path: deliver locally, or decrement TTL and re-enqueue toward the next
// hop, dropping with the appropriate reason on TTL exhaustion or a missing
// route. deliver is called synchronously when the frame is addressed here.
// frame carries the link-layer sender and the RSSI/SNR the radio measured
// on this specific frame, used to feed Config.Links (scenario §8.5).
func (f *Forwarder) HandleInbound(ctx context.Context, frame radio.ReceivedFrame, deliver DeliverFunc) {
	pkt, err := wire.DecodeData(frame.Payload)
	if err != nil {
		if f.cfg.Stats != nil {
			f.cfg.Stats.DroppedMalformed.Add(1)
		}
		return
	}
	if f.cfg.Stats != nil {
		f.cfg.Stats.DataRX.Add(1)
	}
	if f.cfg.Links != nil {
		f.cfg.Links.Update(frame.From, frame.RSSI, float64(frame.SNR), pkt.Seq)
	}

	if pkt.Dst == f.cfg.LocalAddress {
		deliver(pkt)
		if f.cfg.Stats != nil {
			f.cfg.Stats.Delivered.Add(1)
		}
		return
	}

	if pkt.Dst == address.Broadcast {
		if f.cfg.Dedupe != nil && f.cfg.Dedupe.HasSeen(pkt.Src, pkt.Seq) {
			if f.cfg.Stats != nil {
				f.cfg.Stats.DroppedDuplicate.Add(1)
			}
			return
		}
		deliver(pkt)
		if f.cfg.Stats != nil {
			f.cfg.Stats.Delivered.Add(1)
		}
		if f.cfg.Mode == routeproc.ModeFlood {
			f.relayBroadcast(ctx, pkt)
		}
		return
	}

	f.relayUnicast(ctx, pkt)
}

// relayUnicast decrements TTL and forwards toward the next hop, per spec
// §4.7's unicast relay path (P2/P3; the duplicate cache is not consulted
// here, per spec §4.7's explicit statement).
func (f *Forwarder) relayUnicast(ctx context.Context, pkt *wire.DataPacket) {
	if pkt.TTL == 0 {
		if f.cfg.Stats != nil {
			f.cfg.Stats.DroppedTTLExpired.Add(1)
		}
		return
	}
	pkt.TTL--

	via := f.cfg.Table.NextHop(pkt.Dst)
	if via == address.None {
		if f.cfg.Stats != nil {
			f.cfg.Stats.DroppedNoRoute.Add(1)
		}
		return
	}

	buf, err := wire.EncodeData(pkt)
	if err != nil {
		return
	}
	if err := f.cfg.Radio.Send(ctx, radio.FrameData, buf); err != nil {
		if f.cfg.Stats != nil {
			f.cfg.Stats.DroppedBackpressure.Add(1)
		}
		return
	}
	if f.cfg.Stats != nil {
		f.cfg.Stats.Forwarded.Add(1)
	}
}

// relayBroadcast re-floods a broadcast DATA frame in ModeFlood (P1),
// decrementing TTL and dropping on exhaustion exactly like the unicast
// path, but without a next-hop lookup.
func (f *Forwarder) relayBroadcast(ctx context.Context, pkt *wire.DataPacket) {
	if pkt.TTL == 0 {
		if f.cfg.Stats != nil {
			f.cfg.Stats.DroppedTTLExpired.Add(1)
		}
		return
	}
	pkt.TTL--
	buf, err := wire.EncodeData(pkt)
	if err != nil {
		return
	}
	if err := f.cfg.Radio.Send(ctx, radio.FrameData, buf); err != nil {
		if f.cfg.Stats != nil {
			f.cfg.Stats.DroppedBackpressure.Add(1)
		}
		return
	}
	if f.cfg.Stats != nil {
		f.cfg.Stats.Forwarded.Add(1)
	}
}
