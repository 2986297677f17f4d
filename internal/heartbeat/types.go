// Package heartbeat is the liveness protocol engine run by each subsystem
// controller. It probes both peers on a fixed cadence, answers their probes,
// and pulses a peer's reset line once the peer has been silent for longer
// than the reset threshold.
//
// Receive handlers and the once-per-second tick only raise per-link atomic
// obligations. All other state is owned by RunOnce, which the host calls
// from its main loop. Time is always read from the injected timebase.
package heartbeat

import (
	"fmt"

	"github.com/sweeney/sat-heartbeat/internal/bus"
	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

const (
	// DefaultPingPeriod is the probe cadence in seconds when none is configured.
	DefaultPingPeriod uint32 = 10

	// DefaultResetThreshold is how long a peer may stay silent, in seconds.
	DefaultResetThreshold uint32 = 60 * 60

	// DefaultMaxPauseRetries is how many consecutive passes an obligation
	// waits on a paused channel before the channel is reported as failed.
	DefaultMaxPauseRetries = 10
)

// ProbeState is where a link is in the initiator conversation. Every state
// but PingSent holds between passes until the next ping, response or reset.
type ProbeState int

const (
	ProbeIdle         ProbeState = iota // nothing sent since boot
	ProbePingSent                       // inside the bounded response wait
	ProbeRespReceived                   // last probe answered
	ProbeTimedOut                       // last probe unanswered
	ProbeResetIssued                    // reset pulsed, awaiting the peer
)

func (s ProbeState) String() string {
	switch s {
	case ProbeIdle:
		return "IDLE"
	case ProbePingSent:
		return "PING_SENT"
	case ProbeRespReceived:
		return "RESP_RECEIVED"
	case ProbeTimedOut:
		return "TIMED_OUT"
	case ProbeResetIssued:
		return "RESET_ISSUED"
	}
	return fmt.Sprintf("ProbeState(%d)", int(s))
}

// ReplyState is where a link is in the responder conversation.
type ReplyState int

const (
	ReplyIdle         ReplyState = iota
	ReplyPingReceived            // responses owed but not yet sent
	ReplyRespSent                // everything owed has been answered
)

func (s ReplyState) String() string {
	switch s {
	case ReplyIdle:
		return "IDLE"
	case ReplyPingReceived:
		return "PING_RECEIVED"
	case ReplyRespSent:
		return "RESP_SENT"
	}
	return fmt.Sprintf("ReplyState(%d)", int(s))
}

// EventType names something RunOnce did.
type EventType string

const (
	EventPingSent        EventType = "PING_SENT"
	EventRespSent        EventType = "RESP_SENT"
	EventPeerLive        EventType = "PEER_LIVE"
	EventPingTimeout     EventType = "PING_TIMEOUT"
	EventChannelDeferred EventType = "CHANNEL_DEFERRED"
	EventChannelFailed   EventType = "CHANNEL_FAILED"
	EventPeerReset       EventType = "PEER_RESET"
	EventResetFailed     EventType = "RESET_FAILED"
)

// Event is emitted by RunOnce for the host to log or publish.
type Event struct {
	Uptime uint32
	Peer   subsystem.ID
	Type   EventType
	Kind   bus.Kind // channel events only
	Err    error    // failure events only
}

// Counters accumulate per-link activity since boot.
type Counters struct {
	PingsSent       uint64
	RespSent        uint64
	RespProcessed   uint64
	Timeouts        uint64
	Resets          uint64
	ResetFailures   uint64
	ChannelFailures uint64
	Dropped         uint64
}

// LinkStatus is a point-in-time view of one peer link.
type LinkStatus struct {
	Peer       subsystem.ID
	Probe      ProbeState
	Reply      ReplyState
	PingPeriod uint32
	LastPing   uint32
	LastAck    uint32
	Staleness  uint32
	WantPing   bool
	OwedResp   uint32
	Pending    uint32
	Counters   Counters
}
