package clock

import (
	"sync/atomic"
	"testing"
)

// mockClock creates a TelemetryClock with a controllable time source.
func mockClock(initial uint32) (*TelemetryClock, *atomic.Uint32) {
	var t atomic.Uint32
	t.Store(initial)
	c := &TelemetryClock{
		nowFn: func() uint32 { return t.Load() },
	}
	return c, &t
}

func TestNow(t *testing.T) {
	c, now := mockClock(1000)
	if got := c.Now(); got != 1000 {
		t.Errorf("Now() = %d, want 1000", got)
	}
	now.Store(2000)
	if got := c.Now(); got != 2000 {
		t.Errorf("Now() = %d, want 2000", got)
	}
}

func TestNowUnique_Advancing(t *testing.T) {
	c, now := mockClock(100)

	// Each call with advancing clock returns the real time.
	if got := c.NowUnique(); got != 100 {
		t.Errorf("got %d, want 100", got)
	}
	now.Store(101)
	if got := c.NowUnique(); got != 101 {
		t.Errorf("got %d, want 101", got)
	}
	now.Store(105)
	if got := c.NowUnique(); got != 105 {
		t.Errorf("got %d, want 105", got)
	}
}

func TestNowUnique_SameSecond(t *testing.T) {
	c, _ := mockClock(100)

	// A sensor originating several readings within the same wall-clock
	// second must still see a strictly increasing timestamp.
	v1 := c.NowUnique()
	v2 := c.NowUnique()
	v3 := c.NowUnique()

	if v2 <= v1 {
		t.Errorf("v2 (%d) should be > v1 (%d)", v2, v1)
	}
	if v3 <= v2 {
		t.Errorf("v3 (%d) should be > v2 (%d)", v3, v2)
	}
}

func TestNowUnique_StrictlyIncreasing(t *testing.T) {
	c, now := mockClock(100)

	// Rapid calls followed by a time advance.
	v1 := c.NowUnique() // 100
	v2 := c.NowUnique() // 101 (bumped)
	v3 := c.NowUnique() // 102 (bumped)

	now.Store(200)
	v4 := c.NowUnique() // 200 (clock jumped ahead)

	vals := []uint32{v1, v2, v3, v4}
	for i := 1; i < len(vals); i++ {
		if vals[i] <= vals[i-1] {
			t.Errorf("not strictly increasing at index %d: %d <= %d", i, vals[i], vals[i-1])
		}
	}
}

func TestNowUnique_ClockGoesBackward(t *testing.T) {
	c, now := mockClock(200)

	v1 := c.NowUnique() // 200

	// Simulate clock going backward (e.g., NTP/GPS-fix adjustment).
	now.Store(150)
	v2 := c.NowUnique() // 201 (bumped, ignores backward clock)

	if v2 <= v1 {
		t.Errorf("v2 (%d) should be > v1 (%d) even when clock goes backward", v2, v1)
	}
}

func TestNowUnique_ZeroStart(t *testing.T) {
	c, _ := mockClock(0)

	// With clock at 0 (unset) and lastUnique at 0: t(0) <= lastUnique(0) is
	// true, so the counter bumps to 1.
	v1 := c.NowUnique()
	if v1 != 1 {
		t.Errorf("first call with clock=0: got %d, want 1", v1)
	}

	v2 := c.NowUnique()
	if v2 <= v1 {
		t.Errorf("v2 (%d) should be > v1 (%d)", v2, v1)
	}
}

func TestSetNow(t *testing.T) {
	c := New()
	c.SetNow(1700000000)

	got := c.Now()
	// Should be very close to what we set (within 1 second).
	if got < 1700000000 || got > 1700000001 {
		t.Errorf("Now() after SetNow = %d, want ~1700000000", got)
	}
}

func TestSetNow_UniqueStillWorks(t *testing.T) {
	c, _ := mockClock(500)

	// Get a value at 500.
	c.NowUnique() // 500

	// Seed the clock source from a GPS fix.
	c.SetNow(1000)

	v := c.NowUnique()
	if v < 1000 {
		t.Errorf("after SetNow(1000), NowUnique() = %d, want >= 1000", v)
	}
}

func TestNew_ReturnsReasonableTime(t *testing.T) {
	c := New()
	got := c.Now()
	// Should be a reasonable UNIX timestamp (after 2020).
	if got < 1577836800 {
		t.Errorf("Now() = %d, expected > 1577836800 (2020-01-01)", got)
	}
}
