// Package hello implements HelloScheduler: the periodic task that owns a
// Trickle timer, composes outbound HELLO frames from the route table, and
// enforces the 180s safety-HELLO floor, per spec §4.5.
//
// The goroutine-per-task shape (mutex-protected state, an injectable
// clock.MonotonicSource, a context-cancelled ticker loop) follows the
// teacher's device/advert.Scheduler, generalized from a pair of fixed
// local/flood advert timers to a single adaptive Trickle timer plus the
// safety floor the teacher's scheduler has no equivalent of.
package hello

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/kabili207/lorance/core/address"
	"github.com/kabili207/lorance/core/clock"
	"github.com/kabili207/lorance/core/events"
	"github.com/kabili207/lorance/core/routetable"
	"github.com/kabili207/lorance/core/stats"
	"github.com/kabili207/lorance/core/trickle"
	"github.com/kabili207/lorance/core/wire"
	"github.com/kabili207/lorance/radio"
)

// DefaultSafetyInterval is the maximum silence between HELLOs this
// scheduler allows regardless of Trickle suppression, per spec §4.5.
const DefaultSafetyInterval = 180 * time.Second

// tickInterval is the resolution of the scheduler's check loop, satisfying
// spec §5's ">= 1 Hz" requirement for the HELLO-scheduler context.
const tickInterval = time.Second

// Config configures a Scheduler.
type Config struct {
	LocalAddress   address.Address
	Role           address.Role
	GatewayLoad    uint8 // this node's own advertised load, 255 if unknown
	SafetyInterval time.Duration

	Table   *routetable.Table
	Trickle *trickle.Timer
	Radio   radio.RadioIO
	Stats   *stats.Counters
	Sink    events.Sink
	Logger  *slog.Logger

	// SignKey, when set, signs every outgoing HELLO via
	// core/wire.SignHello (the optional origin-authentication extension;
	// see core/wire/auth.go and DESIGN.md).
	SignKey ed25519.PrivateKey

	// Mono supplies the monotonic "now" driving the tick loop below.
	// Defaults to clock.SystemMono{}; tests inject a clock.FakeMono.
	Mono clock.MonotonicSource
}

// Scheduler drives HELLO transmission from Trickle, per spec §4.5/§4.6.
type Scheduler struct {
	cfg Config
	log *slog.Logger

	mu         sync.Mutex
	lastTxTime time.Time
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	if cfg.SafetyInterval <= 0 {
		cfg.SafetyInterval = DefaultSafetyInterval
	}
	if cfg.Mono == nil {
		cfg.Mono = clock.SystemMono{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cfg: cfg, log: logger.WithGroup("hello")}
}

// Start begins the periodic HELLO loop. It blocks until ctx is cancelled;
// typically called in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()
	defer close(s.done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(s.cfg.Mono.Now())
		}
	}
}

// Stop cancels the HELLO loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// tick evaluates Trickle and the safety floor once, sending a HELLO when
// either requires it.
func (s *Scheduler) tick(now time.Time) {
	decision := s.cfg.Trickle.Tick(now)

	s.mu.Lock()
	sinceLastTx := now.Sub(s.lastTxTime)
	forcedBySafety := !decision.ShouldTransmit && !s.lastTxTime.IsZero() && sinceLastTx >= s.cfg.SafetyInterval
	// The very first tick has no prior transmission; treat it as due so
	// the safety floor bites even before Trickle ever suppresses.
	if s.lastTxTime.IsZero() && !decision.ShouldTransmit && sinceLastTx >= s.cfg.SafetyInterval {
		forcedBySafety = true
	}
	s.mu.Unlock()

	switch {
	case decision.ShouldTransmit:
		s.send(now, false)
	case forcedBySafety:
		s.send(now, true)
	case decision.Suppressed:
		if s.cfg.Stats != nil {
			s.cfg.Stats.TrickleSuppressions.Add(1)
		}
	}
}

func (s *Scheduler) send(now time.Time, safety bool) {
	pkt := s.buildHello()
	payload, err := wire.EncodeHello(pkt)
	if err != nil {
		s.log.Error("failed to encode hello", "error", err)
		return
	}
	if s.cfg.SignKey != nil {
		payload = wire.SignHello(s.cfg.SignKey, s.cfg.LocalAddress, payload)
	}

	if err := s.cfg.Radio.Send(context.Background(), radio.FrameHello, payload); err != nil {
		// RadioBusy/TxBackpressure: retry on the next tick, per spec §7.
		s.log.Debug("hello send deferred", "error", err, "safety", safety)
		return
	}

	s.mu.Lock()
	sinceLastTx := now.Sub(s.lastTxTime)
	s.lastTxTime = now
	s.mu.Unlock()

	if s.cfg.Stats != nil {
		s.cfg.Stats.HellosTX.Add(1)
		if safety {
			s.cfg.Stats.SafetyHellos.Add(1)
		}
	}
	if s.cfg.Sink != nil {
		if safety {
			s.cfg.Sink.Emit(events.SafetyTx{SinceLastTx: int64(sinceLastTx.Seconds())})
		} else {
			s.cfg.Sink.Emit(events.TrickleTx{Interval: int64(s.cfg.Trickle.Interval().Seconds())})
		}
	}
}

func (s *Scheduler) buildHello() *wire.RoutePacket {
	nodes := s.cfg.Table.SnapshotNetworkNodes()
	if len(nodes) > wire.MaxHelloNodes {
		// Silently cap at the MTU-derived limit; a deployment running
		// close to RTMAXSIZE's upper bound (16) can exceed MaxHelloNodes
		// (13) — the overflow nodes simply wait for a later HELLO.
		nodes = nodes[:wire.MaxHelloNodes]
	}
	return &wire.RoutePacket{
		SenderAddress:     s.cfg.LocalAddress,
		SenderRole:        s.cfg.Role,
		SenderGatewayLoad: s.cfg.GatewayLoad,
		NodeList:          nodes,
	}
}

// OnFault is the HealthMonitor-facing hook: a neighbor fault resets
// Trickle, per spec §4.6's ordered side effects (route removal happens in
// the caller's fault callback, via routetable.Table.RemoveNeighborAndDependents,
// before this is invoked).
func (s *Scheduler) OnFault(now time.Time) {
	s.cfg.Trickle.Reset(now)
}
