package heartbeat

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sweeney/sat-heartbeat/internal/bus"
	"github.com/sweeney/sat-heartbeat/internal/report"
	"github.com/sweeney/sat-heartbeat/internal/reset"
	"github.com/sweeney/sat-heartbeat/internal/subsystem"
	"github.com/sweeney/sat-heartbeat/internal/timebase"
)

var (
	// ErrAlreadyInitialized is returned by a second call to Init.
	ErrAlreadyInitialized = errors.New("heartbeat: already initialized")

	// ErrUnknownSubsystem is returned by Init for an identity outside OBC/EPS/PAY.
	ErrUnknownSubsystem = errors.New("heartbeat: unknown subsystem")
)

// Config holds the engine's timing policy. All durations are timebase seconds.
type Config struct {
	// PingPeriods overrides the probe cadence per peer.
	PingPeriods map[subsystem.ID]uint32

	// DefaultPeriod applies to peers missing from PingPeriods.
	DefaultPeriod uint32

	ResetThreshold  uint32
	MaxPauseRetries int

	// ClearPingOnReset drops any pending probe for a peer that was just
	// reset, so the next ping goes out one full period after the pulse.
	ClearPingOnReset bool
}

// Deps are the collaborators the engine drives.
type Deps struct {
	Timebase timebase.Timebase
	Bus      bus.Provider
	Actuator reset.Actuator
	Reporter report.Reporter

	// RespWaiter bounds the wait for a ping response. Nil checks once.
	RespWaiter Waiter

	// PauseWaiter bounds the wait for a paused channel. Nil checks once.
	PauseWaiter Waiter
}

// Engine runs the heartbeat protocol for one subsystem.
type Engine struct {
	cfg  Config
	deps Deps

	initMu sync.Mutex
	self   subsystem.ID
	links  []*link
	ready  atomic.Bool
}

// New validates the collaborators and fills in policy defaults.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Timebase == nil {
		return nil, errors.New("heartbeat: timebase required")
	}
	if deps.Bus == nil {
		return nil, errors.New("heartbeat: bus required")
	}
	if deps.Actuator == nil {
		return nil, errors.New("heartbeat: reset actuator required")
	}
	if deps.Reporter == nil {
		deps.Reporter = discard{}
	}
	if deps.RespWaiter == nil {
		deps.RespWaiter = Immediate
	}
	if deps.PauseWaiter == nil {
		deps.PauseWaiter = Immediate
	}

	if cfg.DefaultPeriod == 0 {
		cfg.DefaultPeriod = DefaultPingPeriod
	}
	if cfg.ResetThreshold == 0 {
		cfg.ResetThreshold = DefaultResetThreshold
	}
	if cfg.MaxPauseRetries <= 0 {
		cfg.MaxPauseRetries = DefaultMaxPauseRetries
	}

	return &Engine{cfg: cfg, deps: deps}, nil
}

// Init binds the local identity, opens both peers' channels, and registers
// the tick and receive handlers. It may only succeed once.
func (e *Engine) Init(self subsystem.ID) error {
	if !self.Valid() {
		return fmt.Errorf("%w: 0x%02x", ErrUnknownSubsystem, uint8(self))
	}

	e.initMu.Lock()
	defer e.initMu.Unlock()

	if e.ready.Load() {
		return ErrAlreadyInitialized
	}

	now := e.deps.Timebase.Now()
	var links []*link
	for _, peer := range subsystem.Peers(self) {
		pingCh, err := e.deps.Bus.Channel(self, peer, bus.KindPing)
		if err != nil {
			return fmt.Errorf("open ping channel to %s: %w", peer, err)
		}
		respCh, err := e.deps.Bus.Channel(self, peer, bus.KindResp)
		if err != nil {
			return fmt.Errorf("open resp channel to %s: %w", peer, err)
		}

		period := e.cfg.DefaultPeriod
		if p, ok := e.cfg.PingPeriods[peer]; ok && p > 0 {
			period = p
		}

		l := &link{
			peer:    peer,
			rel:     subsystem.Relation{From: self, To: peer},
			pingCh:  pingCh,
			respCh:  respCh,
			period:  period,
			lastAck: now,
		}
		l.lastPing.Store(now)
		// Probe both peers on the first pass after boot.
		l.wantPing.Store(true)
		links = append(links, l)
	}

	// The tick handler is inert until ready is set, so a failure past this
	// point leaves nothing running.
	if err := e.deps.Timebase.OnTick(e.onTick); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}

	e.self = self
	e.links = links
	for _, l := range links {
		l.pingCh.OnReceive(e.receiver(l, bus.KindPing))
		l.respCh.OnReceive(e.receiver(l, bus.KindResp))
		l.pingCh.Resume()
		l.respCh.Resume()
	}
	e.ready.Store(true)

	e.deps.Reporter.Report(report.Info, fmt.Sprintf("heartbeat: initialized as %s", self))
	return nil
}

// Self returns the identity bound by Init.
func (e *Engine) Self() subsystem.ID {
	return e.self
}

// onTick raises a probe obligation for every link whose period has elapsed.
func (e *Engine) onTick(now uint32) {
	if !e.ready.Load() {
		return
	}
	for _, l := range e.links {
		if now-l.lastPing.Load() >= l.period {
			l.wantPing.Store(true)
		}
	}
}

// receiver builds the receive handler for one of a link's channels. It only
// validates the frame and bumps a counter.
func (e *Engine) receiver(l *link, kind bus.Kind) bus.ReceiveFunc {
	return func(p bus.Payload) {
		f, err := bus.Decode(p)
		if err != nil || f.From != l.peer || f.To != e.self || f.Kind != kind {
			l.dropped.Add(1)
			return
		}
		if kind == bus.KindPing {
			l.owedResp.Add(1)
		} else {
			l.pendingResp.Add(1)
		}
	}
}

// RunOnce services every link in peer order: pending responses first, then
// a pending probe with its bounded wait, then the staleness check. It
// returns what happened. Calls must not overlap.
func (e *Engine) RunOnce() []Event {
	if !e.ready.Load() {
		return nil
	}

	var events []Event
	for _, l := range e.links {
		events = e.serviceReplies(l, events)
		events = e.serviceProbe(l, events)
		events = e.checkStaleness(l, events)
	}
	return events
}

// Snapshot returns the state of every link. Call it from the goroutine that
// calls RunOnce.
func (e *Engine) Snapshot() []LinkStatus {
	if !e.ready.Load() {
		return nil
	}
	now := e.deps.Timebase.Now()
	out := make([]LinkStatus, 0, len(e.links))
	for _, l := range e.links {
		out = append(out, l.status(now))
	}
	return out
}

func (e *Engine) serviceReplies(l *link, events []Event) []Event {
	owed := l.owedResp.Load()
	if owed > 0 {
		l.reply = ReplyPingReceived
	}
	for i := uint32(0); i < owed; i++ {
		err := e.transmit(l.respCh, bus.Frame{From: e.self, To: l.peer, Kind: bus.KindResp})
		if err != nil {
			var failed bool
			events, failed = e.deferOrFail(l, &l.respRetries, bus.KindResp, err, events)
			if failed {
				// Drop what is owed; the peer retransmits its ping.
				for take(&l.owedResp) {
				}
				l.reply = ReplyIdle
			}
			return events
		}

		take(&l.owedResp)
		l.respRetries = 0
		l.reply = ReplyRespSent
		l.counters.RespSent++
		events = append(events, Event{Uptime: e.deps.Timebase.Now(), Peer: l.peer, Type: EventRespSent})
	}
	return events
}

func (e *Engine) serviceProbe(l *link, events []Event) []Event {
	// Late responses (after a timed-out wait) still prove the peer is alive.
	for take(&l.pendingResp) {
		events = e.acknowledge(l, l.probe, events)
	}

	if !l.wantPing.Load() {
		return events
	}

	err := e.transmit(l.pingCh, bus.Frame{From: e.self, To: l.peer, Kind: bus.KindPing})
	if err != nil {
		var failed bool
		events, failed = e.deferOrFail(l, &l.pingRetries, bus.KindPing, err, events)
		if failed {
			// Restart the probe window; staleness keeps counting from lastAck.
			l.lastPing.Store(e.deps.Timebase.Now())
			l.wantPing.Store(false)
		}
		return events
	}

	now := e.deps.Timebase.Now()
	prev := l.probe
	l.pingRetries = 0
	// Store lastPing before clearing wantPing so a concurrent tick sees the
	// new window and does not re-raise the obligation.
	l.lastPing.Store(now)
	l.wantPing.Store(false)
	l.probe = ProbePingSent
	l.counters.PingsSent++
	events = append(events, Event{Uptime: now, Peer: l.peer, Type: EventPingSent})

	if e.deps.RespWaiter.Until(func() bool { return take(&l.pendingResp) }) {
		return e.acknowledge(l, prev, events)
	}

	l.probe = ProbeTimedOut
	l.missed++
	l.counters.Timeouts++
	e.deps.Reporter.Report(report.Debug, fmt.Sprintf("heartbeat: no response from %s (%d missed)", l.peer, l.missed))
	return append(events, Event{Uptime: e.deps.Timebase.Now(), Peer: l.peer, Type: EventPingTimeout})
}

// acknowledge records one processed response from l's peer. from is the
// probe state the response resolves; RESP_RECEIVED holds until the next ping.
func (e *Engine) acknowledge(l *link, from ProbeState, events []Event) []Event {
	now := e.deps.Timebase.Now()
	switch from {
	case ProbeResetIssued:
		e.deps.Reporter.Report(report.Info, fmt.Sprintf("heartbeat: %s answering after reset", l.peer))
	case ProbeTimedOut:
		e.deps.Reporter.Report(report.Info, fmt.Sprintf("heartbeat: %s responding again after %d missed", l.peer, l.missed))
	}
	l.probe = ProbeRespReceived
	l.missed = 0
	l.counters.RespProcessed++
	l.lastAck = now
	l.lastPing.Store(now)
	return append(events, Event{Uptime: now, Peer: l.peer, Type: EventPeerLive})
}

// checkStaleness pulses the peer's reset line once per staleness episode.
// The episode ends when a response arrives (lastAck moves) or here, where
// the window is restarted so the peer gets a full threshold to reboot.
// RESET_ISSUED holds until the next ping or response.
func (e *Engine) checkStaleness(l *link, events []Event) []Event {
	// A response that landed after the wait still counts.
	for take(&l.pendingResp) {
		events = e.acknowledge(l, l.probe, events)
	}

	now := e.deps.Timebase.Now()
	staleness := now - l.lastAck
	if staleness < e.cfg.ResetThreshold {
		return events
	}

	l.probe = ProbeResetIssued
	e.deps.Reporter.Report(report.Warning, fmt.Sprintf("heartbeat: %s silent for %ds, resetting", l.peer, staleness))
	err := e.deps.Actuator.Pulse(l.rel)

	l.lastAck = now
	l.lastPing.Store(now)
	if e.cfg.ClearPingOnReset {
		l.wantPing.Store(false)
	}
	l.missed = 0

	if err != nil {
		l.counters.ResetFailures++
		e.deps.Reporter.Report(report.Error, fmt.Sprintf("heartbeat: reset %s failed: %v", l.rel, err))
		return append(events, Event{Uptime: now, Peer: l.peer, Type: EventResetFailed, Err: err})
	}
	l.counters.Resets++
	return append(events, Event{Uptime: now, Peer: l.peer, Type: EventPeerReset})
}

// transmit waits (bounded) for ch to be usable, then sends f.
func (e *Engine) transmit(ch bus.Channel, f bus.Frame) error {
	if !e.deps.PauseWaiter.Until(func() bool { return !ch.Paused() }) {
		return bus.ErrPaused
	}
	return ch.Send(f.Encode())
}

// deferOrFail counts a failed transmission against retries. It reports
// whether the retry ceiling was hit, in which case the channel is reported
// failed and the counter restarts.
func (e *Engine) deferOrFail(l *link, retries *int, kind bus.Kind, err error, events []Event) ([]Event, bool) {
	*retries++
	now := e.deps.Timebase.Now()

	if *retries > e.cfg.MaxPauseRetries {
		*retries = 0
		l.counters.ChannelFailures++
		e.deps.Reporter.Report(report.Error, fmt.Sprintf("heartbeat: %s channel to %s failed after %d retries: %v", kind, l.peer, e.cfg.MaxPauseRetries, err))
		return append(events, Event{Uptime: now, Peer: l.peer, Type: EventChannelFailed, Kind: kind, Err: err}), true
	}

	if *retries == 1 {
		sev := report.Debug
		if !errors.Is(err, bus.ErrPaused) {
			sev = report.Warning
		}
		e.deps.Reporter.Report(sev, fmt.Sprintf("heartbeat: %s to %s deferred: %v", kind, l.peer, err))
	}
	return append(events, Event{Uptime: now, Peer: l.peer, Type: EventChannelDeferred, Kind: kind, Err: err}), false
}

type discard struct{}

func (discard) Report(report.Severity, string) {}
