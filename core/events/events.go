// Package events defines the structured event sink that replaces the
// firmware's free-form logging calls, per spec §9's redesign guidance. A
// Sink receives typed Event values; the default sink logs them through
// slog, and an embedding application can install its own Sink to observe
// RouteInstalled/RouteReplaced/.../Stats without scraping log lines.
package events

import (
	"context"
	"log/slog"

	"github.com/kabili207/lorance/core/address"
)

// Event is the common interface of every event variant.
type Event interface {
	// LogAttrs returns the slog attributes describing this event, used by
	// the default Sink.
	LogAttrs() []slog.Attr
}

// Sink receives routing-core events. Implementations must return quickly —
// they may be invoked from the receive-decode path.
type Sink interface {
	Emit(Event)
}

// SlogSink logs every event through a *slog.Logger at the given level.
type SlogSink struct {
	Logger *slog.Logger
	Level  slog.Level
}

// NewSlogSink creates a SlogSink, falling back to slog.Default() when
// logger is nil. level is used as given.
func NewSlogSink(logger *slog.Logger, level slog.Level) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{Logger: logger, Level: level}
}

// Emit logs the event.
func (s *SlogSink) Emit(e Event) {
	attrs := e.LogAttrs()
	args := make([]any, 0, len(attrs)*2)
	for _, a := range attrs {
		args = append(args, a)
	}
	s.Logger.LogAttrs(context.Background(), s.Level, eventName(e), attrs...)
}

func eventName(e Event) string {
	switch e.(type) {
	case RouteInstalled:
		return "route installed"
	case RouteReplaced:
		return "route replaced"
	case RouteRemoved:
		return "route removed"
	case FaultDetected:
		return "neighbor fault detected"
	case Recovered:
		return "neighbor recovered"
	case TrickleTx:
		return "trickle hello sent"
	case SafetyTx:
		return "safety hello sent"
	case Stats:
		return "stats snapshot"
	default:
		return "event"
	}
}

// RouteInstalled fires when a brand-new route entry is created.
type RouteInstalled struct {
	Destination address.Address
	Via         address.Address
	Metric      uint8
}

func (e RouteInstalled) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("destination", e.Destination.String()),
		slog.String("via", e.Via.String()),
		slog.Int("metric", int(e.Metric)),
	}
}

// RouteReplaced fires when an existing route's via/metric changes.
type RouteReplaced struct {
	Destination address.Address
	OldVia      address.Address
	NewVia      address.Address
	OldMetric   uint8
	NewMetric   uint8
}

func (e RouteReplaced) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("destination", e.Destination.String()),
		slog.String("old_via", e.OldVia.String()),
		slog.String("new_via", e.NewVia.String()),
		slog.Int("old_metric", int(e.OldMetric)),
		slog.Int("new_metric", int(e.NewMetric)),
	}
}

// RemovalReason explains why a route was removed.
type RemovalReason int

const (
	RemovalTimeout RemovalReason = iota
	RemovalFault
	RemovalTableFull
)

func (r RemovalReason) String() string {
	switch r {
	case RemovalTimeout:
		return "timeout"
	case RemovalFault:
		return "fault"
	case RemovalTableFull:
		return "table_full"
	default:
		return "unknown"
	}
}

// RouteRemoved fires when a route entry is destroyed.
type RouteRemoved struct {
	Destination address.Address
	Reason      RemovalReason
}

func (e RouteRemoved) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("destination", e.Destination.String()),
		slog.String("reason", e.Reason.String()),
	}
}

// FaultDetected fires when HealthMonitor transitions a neighbor to FAULT.
type FaultDetected struct {
	Neighbor address.Address
	Silence  int64 // seconds
}

func (e FaultDetected) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("neighbor", e.Neighbor.String()),
		slog.Int64("silence_seconds", e.Silence),
	}
}

// Recovered fires when a previously-FAULT/WARNING neighbor is heard again.
type Recovered struct {
	Neighbor address.Address
}

func (e Recovered) LogAttrs() []slog.Attr {
	return []slog.Attr{slog.String("neighbor", e.Neighbor.String())}
}

// TrickleTx fires on every HELLO transmitted at a regular Trickle point.
type TrickleTx struct {
	Interval int64 // current Trickle interval, seconds
}

func (e TrickleTx) LogAttrs() []slog.Attr {
	return []slog.Attr{slog.Int64("interval_seconds", e.Interval)}
}

// SafetyTx fires when HelloScheduler forces a HELLO past the safety floor.
type SafetyTx struct {
	SinceLastTx int64 // seconds
}

func (e SafetyTx) LogAttrs() []slog.Attr {
	return []slog.Attr{slog.Int64("since_last_tx_seconds", e.SinceLastTx)}
}

// Stats carries a point-in-time counters snapshot. The concrete type is
// defined in package stats; this variant only names the slot in the event
// taxonomy of spec §9 — callers emit it via sink.Emit(events.Stats{...}).
type Stats struct {
	Snapshot any
}

func (e Stats) LogAttrs() []slog.Attr {
	return []slog.Attr{slog.Any("snapshot", e.Snapshot)}
}
