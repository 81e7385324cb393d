// Package trickle implements an RFC 6206-style adaptive redundancy
// suppression timer: doubling intervals, a transmit point inside the
// second half of each interval, and consistency-based suppression.
//
// The timer shape (fixed tick resolution driving a mutable interval state,
// an injectable clock for deterministic tests) follows the teacher's
// device/advert.Scheduler, generalized from a fixed local/flood advert
// period to Trickle's adaptive interval.
package trickle

import (
	"math/rand"
	"sync"
	"time"
)

// Defaults per spec §4.5.
const (
	DefaultIMin      = 60 * time.Second
	DefaultIMax      = 600 * time.Second
	DefaultK         = 1
	DefaultSuppressCap = 4
)

// Config configures a Trickle timer.
type Config struct {
	IMin        time.Duration
	IMax        time.Duration
	K           int
	SuppressCap int

	// Rand supplies the uniform draw for the transmit point. Defaults to
	// a package-level math/rand source; tests inject a deterministic one.
	Rand *rand.Rand
}

// DefaultConfig returns the spec's default Trickle parameters.
func DefaultConfig() Config {
	return Config{
		IMin:        DefaultIMin,
		IMax:        DefaultIMax,
		K:           DefaultK,
		SuppressCap: DefaultSuppressCap,
	}
}

// Decision is returned by Tick.
type Decision struct {
	ShouldTransmit bool
	SleepFor       time.Duration // valid when !ShouldTransmit
	Suppressed     bool          // true when this tick reached the transmit point and suppressed
}

// Timer is a Trickle timer. All state is manipulated only from the owning
// HelloScheduler's goroutine/context (spec §5); heardConsistent uses a
// dedicated short critical section so it may safely be called from the
// receive-decode path without nesting the routing-table lock.
type Timer struct {
	cfg Config

	mu              sync.Mutex
	interval        time.Duration
	intervalStart   time.Time
	transmitPoint   time.Time
	consistencyCount int
	suppressCount   int
	lastTxTime      time.Time
	fired           bool // this interval's transmit point has been decided
}

// New creates a Trickle timer, started at I_min with a transmit point drawn
// uniformly from [intervalStart + I/2, intervalStart + I].
func New(cfg Config, now time.Time) *Timer {
	if cfg.IMin <= 0 {
		cfg.IMin = DefaultIMin
	}
	if cfg.IMax <= 0 {
		cfg.IMax = DefaultIMax
	}
	if cfg.IMax < cfg.IMin {
		cfg.IMax = cfg.IMin
	}
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	if cfg.SuppressCap <= 0 {
		cfg.SuppressCap = DefaultSuppressCap
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(now.UnixNano()))
	}

	t := &Timer{cfg: cfg}
	t.resetLocked(now)
	return t
}

// Interval returns the current Trickle interval I.
func (t *Timer) Interval() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// LastTxTime returns the timestamp of the last transmission recorded by
// Tick (zero value if none yet).
func (t *Timer) LastTxTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastTxTime
}

// Tick evaluates the timer at the current time, per spec §4.5's algorithm:
// before the transmit point, report how long to sleep; at the transmit
// point, transmit or suppress based on consistencyCount/SuppressCap; once
// the interval has elapsed, double I toward I_max and start a new interval.
// The transmit point is decided once per interval; later ticks in the same
// interval only wait for it to end.
func (t *Timer) Tick(now time.Time) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fired {
		end := t.intervalStart.Add(t.interval)
		if now.Before(end) {
			return Decision{ShouldTransmit: false, SleepFor: end.Sub(now)}
		}
		t.doubleIntervalLocked(now)
	}

	if now.Before(t.transmitPoint) {
		return Decision{ShouldTransmit: false, SleepFor: t.transmitPoint.Sub(now)}
	}

	shouldTx := true
	suppressed := false
	if t.consistencyCount >= t.cfg.K && t.suppressCount < t.cfg.SuppressCap {
		shouldTx = false
		suppressed = true
		t.suppressCount++
	} else if shouldTx {
		t.suppressCount = 0
		t.lastTxTime = now
	}
	t.fired = true

	if !now.Before(t.intervalStart.Add(t.interval)) {
		t.doubleIntervalLocked(now)
	}

	if shouldTx {
		return Decision{ShouldTransmit: true}
	}
	return Decision{ShouldTransmit: false, SleepFor: t.transmitPoint.Sub(now), Suppressed: suppressed}
}

// doubleIntervalLocked doubles I toward I_max, starts a fresh interval, and
// resets consistencyCount. Must be called with t.mu held.
func (t *Timer) doubleIntervalLocked(now time.Time) {
	next := t.interval * 2
	if next > t.cfg.IMax {
		next = t.cfg.IMax
	}
	t.interval = next
	t.intervalStart = now
	t.consistencyCount = 0
	t.fired = false
	t.transmitPoint = t.drawTransmitPointLocked(now)
}

// drawTransmitPointLocked draws a transmit point uniformly in
// [now + I/2, now + I].
func (t *Timer) drawTransmitPointLocked(now time.Time) time.Time {
	half := t.interval / 2
	span := t.interval - half
	var offset time.Duration
	if span > 0 {
		offset = time.Duration(t.cfg.Rand.Int63n(int64(span)))
	}
	return now.Add(half + offset)
}

// HeardConsistent increments the consistency counter, called by
// RouteProcessor whenever a HELLO arrives (spec §4.5). It is a short,
// independent critical section that never nests with the routing-table
// lock, safe to call from the receive-decode path.
func (t *Timer) HeardConsistent() {
	t.mu.Lock()
	t.consistencyCount++
	t.mu.Unlock()
}

// Reset restarts the timer at I_min with a fresh transmit point, per spec
// §4.5: called on topology change (table size or via-change) and on
// neighbor fault.
func (t *Timer) Reset(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked(now)
}

func (t *Timer) resetLocked(now time.Time) {
	t.interval = t.cfg.IMin
	t.intervalStart = now
	t.consistencyCount = 0
	t.suppressCount = 0
	t.fired = false
	t.transmitPoint = t.drawTransmitPointLocked(now)
}
