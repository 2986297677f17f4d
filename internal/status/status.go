// Package status provides a thread-safe status tracker for the hbnode daemon.
// It is read by the HTTP handlers and by the telemetry STATUS event.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/sat-heartbeat/internal/heartbeat"
)

// Config contains daemon configuration for display.
type Config struct {
	Self            string
	Broker          string
	HTTPAddr        string
	PollMs          int64
	ResetThresholdS uint32
	TelemetryTopic  string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	BootID        string
	Ready         bool
	UptimeS       uint32 // controller uptime counter, not wall clock
	Links         []heartbeat.LinkStatus
	BusDropped    uint64
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the wall-clock duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Link returns the status of one peer by name, if present.
func (s Snapshot) Link(peer string) (heartbeat.LinkStatus, bool) {
	for _, l := range s.Links {
		if l.Peer.String() == peer {
			return l, true
		}
	}
	return heartbeat.LinkStatus{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, boot id and config.
func NewTracker(startTime time.Time, bootID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces the link table and uptime.
// Called from the run loop after every RunOnce.
func (t *Tracker) Update(uptime uint32, links []heartbeat.LinkStatus) {
	cp := make([]heartbeat.LinkStatus, len(links))
	copy(cp, links)

	t.mu.Lock()
	t.snap.Ready = true
	t.snap.UptimeS = uptime
	t.snap.Links = cp
	t.mu.Unlock()
}

// SetMQTTConnected sets the bus connection status and the count of frames
// the bus dropped before they reached the engine.
func (t *Tracker) SetMQTTConnected(connected bool, dropped uint64) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.snap.BusDropped = dropped
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Links = append([]heartbeat.LinkStatus(nil), t.snap.Links...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
