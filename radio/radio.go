// Package radio defines RadioIO, the external collaborator that the
// routing core is deliberately specified only at the interface with: the
// physical radio driver (frame encode/decode, CRC, time-on-air, duty-cycle
// enforcement) is out of scope (spec §1 non-goals). This package also
// provides a fully-owned, non-stubbed in-memory bus implementation
// (Loopback) used by tests and cmd/lorasim to exercise the rest of the
// system without real hardware.
package radio

import (
	"context"
	"time"

	"github.com/kabili207/lorance/core/address"
)

// FrameKind distinguishes a HELLO control frame from a DATA frame, so a
// RadioIO implementation can apply the right TX priority (spec §2: "accept
// frames with priority for TX").
type FrameKind int

const (
	FrameHello FrameKind = iota
	FrameData
)

func (k FrameKind) String() string {
	if k == FrameHello {
		return "hello"
	}
	return "data"
}

// Frame is one frame handed to or received from the radio.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// ReceivedFrame is a decoded inbound frame plus the link-quality
// measurements the radio driver reports alongside it, per spec §2: "Deliver
// decoded frames with RSSI/SNR upward".
type ReceivedFrame struct {
	Frame
	From address.Address
	RSSI float64 // dBm
	SNR  int8    // dB, firmware convention of 4x fixed-point is NOT applied here
}

// ErrBusy is returned by Send when the radio cannot accept a frame right
// now (duty-cycle enforcement, busy channel, queue full). Callers treat it
// as TxBackpressure (spec §7): HelloScheduler retries on the next tick,
// Forwarder surfaces Backpressure to the application.
type ErrBusy struct{ Reason string }

func (e *ErrBusy) Error() string { return "radio busy: " + e.Reason }

// RadioIO is the external collaborator this routing core is driven by and
// drives. Implementations deliver decoded frames upward via Receive and
// accept outbound frames via Send; Airtime reports cumulative on-air time
// for duty-cycle bookkeeping that lives entirely in the implementation, not
// in this core.
type RadioIO interface {
	// Send transmits payload, queued with priority implied by kind. It
	// returns *ErrBusy (never blocks indefinitely) when the implementation
	// cannot accept the frame right now.
	Send(ctx context.Context, kind FrameKind, payload []byte) error

	// Receive returns a channel of decoded inbound frames. The channel is
	// closed when the implementation is stopped.
	Receive() <-chan ReceivedFrame

	// Airtime reports cumulative on-air time transmitted by this node,
	// for duty-cycle accounting owned by the implementation.
	Airtime() time.Duration

	// LocalAddress returns this radio endpoint's node address.
	LocalAddress() address.Address
}
