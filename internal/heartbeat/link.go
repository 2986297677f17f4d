package heartbeat

import (
	"sync/atomic"

	"github.com/sweeney/sat-heartbeat/internal/bus"
	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

// link is the engine's view of one peer.
//
// wantPing, owedResp, pendingResp, dropped and lastPing are touched from the
// tick and receive paths and are atomic. Every other field belongs to RunOnce.
type link struct {
	peer   subsystem.ID
	rel    subsystem.Relation
	pingCh bus.Channel
	respCh bus.Channel
	period uint32

	wantPing    atomic.Bool   // raised by tick, cleared by RunOnce
	owedResp    atomic.Uint32 // pings received and not yet answered
	pendingResp atomic.Uint32 // responses received and not yet processed
	dropped     atomic.Uint32 // frames rejected by the receive path
	lastPing    atomic.Uint32 // read by tick

	lastAck     uint32
	probe       ProbeState
	reply       ReplyState
	pingRetries int
	respRetries int
	missed      int
	counters    Counters
}

// take consumes one unit from a single-consumer counter.
func take(c *atomic.Uint32) bool {
	for {
		v := c.Load()
		if v == 0 {
			return false
		}
		if c.CompareAndSwap(v, v-1) {
			return true
		}
	}
}

func (l *link) status(now uint32) LinkStatus {
	c := l.counters
	c.Dropped = uint64(l.dropped.Load())
	return LinkStatus{
		Peer:       l.peer,
		Probe:      l.probe,
		Reply:      l.reply,
		PingPeriod: l.period,
		LastPing:   l.lastPing.Load(),
		LastAck:    l.lastAck,
		Staleness:  now - l.lastAck,
		WantPing:   l.wantPing.Load(),
		OwedResp:   l.owedResp.Load(),
		Pending:    l.pendingResp.Load(),
		Counters:   c,
	}
}
