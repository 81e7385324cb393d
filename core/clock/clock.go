package clock

import (
	"sync"
	"time"
)

// TelemetryClock stamps application telemetry records (spec §6's
// {seqNum, srcAddr, timestamp, ...} record) with strictly increasing uint32
// UNIX epoch values, even when a sensor node originates several readings
// within the same wall-clock second. Route timeouts, Trickle intervals, and
// health-monitor silence tracking use time.Time/MonotonicSource instead
// (see mono.go); this clock exists solely for the application-layer
// timestamp field a receiving gateway uses to order and dedupe readings
// from the same source.
type TelemetryClock struct {
	mu         sync.Mutex
	lastUnique uint32
	nowFn      func() uint32 // overridable for testing
}

// New creates a TelemetryClock that uses the system clock.
func New() *TelemetryClock {
	return &TelemetryClock{
		nowFn: func() uint32 {
			return uint32(time.Now().Unix())
		},
	}
}

// Now returns the current UNIX epoch time as uint32.
func (c *TelemetryClock) Now() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowFn()
}

// SetNow seeds the clock source with a fixed value, advancing monotonically
// from it thereafter. Useful when a node's wall clock is known to be wrong
// at boot and gets corrected from a GPS fix (telemetry.Record.GPSValid) or
// another out-of-band time source.
func (c *TelemetryClock) SetNow(t uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	offset := t
	base := time.Now()
	c.nowFn = func() uint32 {
		return offset + uint32(time.Since(base).Seconds())
	}
}

// NowUnique returns a strictly increasing timestamp: if the real clock
// hasn't advanced past the last returned value, the internal counter is
// bumped by 1. This guarantees two telemetry readings originated back to
// back within the same second still sort and dedupe correctly at the
// receiving gateway.
func (c *TelemetryClock) NowUnique() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.nowFn()
	if t <= c.lastUnique {
		c.lastUnique++
		return c.lastUnique
	}
	c.lastUnique = t
	return t
}
