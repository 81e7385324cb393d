// Package linkmetrics tracks per-neighbor link quality: EWMA-smoothed RSSI
// and SNR, and a sequence-gap-derived ETX computed from a sliding success
// window with no ack overhead.
//
// This mirrors the teacher's core/contact package's shape (a locked map of
// per-peer state reached through a thread-safe manager), generalized from
// contact bookkeeping to link-quality bookkeeping.
package linkmetrics

import (
	"sync"

	"github.com/kabili207/lorance/core/address"
)

// alpha is the EWMA smoothing factor for RSSI/SNR, per spec §4.3.
const alpha = 1.0 / 8.0

// DefaultWindow is the default ETX sliding-window size (W), within the
// spec's allowed 8..16 range.
const DefaultWindow = 8

// neighborState is the per-neighbor bookkeeping. It is created on first
// observation of a neighbor and destroyed when the neighbor's route is
// removed (Forget), per spec §3's LinkMetrics lifecycle.
type neighborState struct {
	smoothedRSSI float64
	smoothedSNR  float64
	hasSample    bool

	lastSeq    uint16
	hasSeq     bool
	ackWindow  []bool // circular buffer of length W
	windowNext int

	etx float64
}

// Snapshot is a plain-value copy of a neighbor's link metrics, safe to read
// without holding the Tracker's lock (spec §5: "other readers obtain a
// snapshot via an accessor that locks internally").
type Snapshot struct {
	RSSI      float64
	SNR       float64
	ETX       float64
	HasSample bool
}

// Tracker owns per-neighbor LinkMetrics state. The zero value is not usable;
// use New.
type Tracker struct {
	window int

	mu        sync.Mutex
	neighbors map[address.Address]*neighborState
}

// New creates a Tracker with the given ETX sliding-window size. A
// non-positive window falls back to DefaultWindow.
func New(window int) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		window:    window,
		neighbors: make(map[address.Address]*neighborState),
	}
}

// Update feeds one received frame's (rssi, snr, seq) into the neighbor's
// link metrics, per spec §4.3. RSSI/SNR EWMAs advance on every call; the
// ETX window only advances according to the sequence-gap rules below. seq
// must come from a monotonically-sequenced per-link source (DATA frames'
// wire.DataPacket.Seq); HELLOs carry no such field and must use
// UpdateQuality instead, so the two do not fight over one sequence space.
func (t *Tracker) Update(neighbor address.Address, rssi, snr float64, seq uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.touch(neighbor, rssi, snr)
	t.updateSeq(n, seq)
	n.etx = computeETX(n.ackWindow, t.window)
}

// UpdateQuality feeds one received frame's (rssi, snr) into the neighbor's
// RSSI/SNR EWMAs without touching the ETX sequence-gap window, for sources
// with no usable per-link sequence number (HELLO frames, per spec §6's wire
// format, carry none). ETX keeps tracking whatever Update last saw.
func (t *Tracker) UpdateQuality(neighbor address.Address, rssi, snr float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touch(neighbor, rssi, snr)
}

// touch applies the RSSI/SNR EWMA update and returns the neighbor's state,
// creating it on first observation.
func (t *Tracker) touch(neighbor address.Address, rssi, snr float64) *neighborState {
	n, ok := t.neighbors[neighbor]
	if !ok {
		n = &neighborState{
			ackWindow: make([]bool, t.window),
		}
		t.neighbors[neighbor] = n
	}

	if !n.hasSample {
		n.smoothedRSSI = rssi
		n.smoothedSNR = snr
		n.hasSample = true
	} else {
		n.smoothedRSSI = alpha*rssi + (1-alpha)*n.smoothedRSSI
		n.smoothedSNR = alpha*snr + (1-alpha)*n.smoothedSNR
	}
	return n
}

func (t *Tracker) updateSeq(n *neighborState, seq uint16) {
	if !n.hasSeq {
		n.lastSeq = seq
		n.hasSeq = true
		t.resetWindow(n)
		t.pushSuccess(n)
		return
	}

	expected := n.lastSeq + 1

	switch {
	case seq == n.lastSeq:
		// duplicate frame, ignore entirely
		return
	case seq == expected:
		t.pushSuccess(n)
		n.lastSeq = seq
	case seq > expected:
		gap := int(seq - expected)
		if gap > t.window {
			gap = t.window
		}
		for i := 0; i < gap; i++ {
			t.pushFailure(n)
		}
		t.pushSuccess(n)
		n.lastSeq = seq
	default: // seq < expected: source reset (reboot/wrap)
		t.resetWindow(n)
		n.lastSeq = seq
		t.pushSuccess(n)
	}
}

// resetWindow (re)initializes the ack window to all-successes, per spec
// §4.3: "initialize ackWindow with successes". This is what makes a short
// burst of gaps against an otherwise-healthy window land on the expected
// etx (the window doesn't start "empty", it starts as if every prior slot
// had succeeded).
func (t *Tracker) resetWindow(n *neighborState) {
	for i := range n.ackWindow {
		n.ackWindow[i] = true
	}
	n.windowNext = 0
}

func (t *Tracker) pushSuccess(n *neighborState) {
	n.ackWindow[n.windowNext] = true
	n.windowNext = (n.windowNext + 1) % t.window
}

func (t *Tracker) pushFailure(n *neighborState) {
	n.ackWindow[n.windowNext] = false
	n.windowNext = (n.windowNext + 1) % t.window
}

// computeETX returns W / max(successes, 1), clamped to [1.0, W].
func computeETX(window []bool, w int) float64 {
	successes := 0
	for _, ok := range window {
		if ok {
			successes++
		}
	}
	if successes < 1 {
		successes = 1
	}
	etx := float64(w) / float64(successes)
	if etx < 1.0 {
		etx = 1.0
	}
	if etx > float64(w) {
		etx = float64(w)
	}
	return etx
}

// Get returns a snapshot of a neighbor's metrics. HasSample is false for an
// unknown neighbor.
func (t *Tracker) Get(neighbor address.Address) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.neighbors[neighbor]
	if !ok {
		return Snapshot{ETX: 1.0}
	}
	return Snapshot{
		RSSI:      n.smoothedRSSI,
		SNR:       n.smoothedSNR,
		ETX:       etxOrDefault(n),
		HasSample: n.hasSample,
	}
}

func etxOrDefault(n *neighborState) float64 {
	if n.etx == 0 {
		return 1.0
	}
	return n.etx
}

// Forget destroys a neighbor's link metrics, called when its route entry is
// removed (timeout, fault, or eviction).
func (t *Tracker) Forget(neighbor address.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.neighbors, neighbor)
}
