// Package telemetry publishes engine events and lifecycle events to MQTT
// for ground-side monitoring. It is separate from the heartbeat bus: losing
// the telemetry broker never affects liveness.
package telemetry

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/sat-heartbeat/internal/heartbeat"
	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

// Lifecycle event names carried in SystemEvent.Event.
const (
	EventStartup  = "STARTUP"
	EventShutdown = "SHUTDOWN"
	EventStatus   = "STATUS"
	EventOffline  = "OFFLINE"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends an engine event. Failures are returned, never fatal.
	Publish(ev heartbeat.Event) error

	// PublishSystem sends a lifecycle event.
	PublishSystem(ev SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle event (startup, shutdown, periodic status).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // e.g. "SIGTERM" (shutdown only)
	RawPayload []byte // pre-formatted JSON; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Topics returns the event and system topics for self under base.
func Topics(base string, self subsystem.ID) (events, system string) {
	root := strings.TrimSuffix(base, "/") + "/" + strings.ToLower(self.String())
	return root + "/events", root + "/system"
}

// Payload is the MQTT message body for an engine event.
type Payload struct {
	Heartbeat EventPayload `json:"heartbeat"`
}

// EventPayload contains the engine event details.
type EventPayload struct {
	Timestamp string `json:"timestamp"`
	Self      string `json:"self"`
	Peer      string `json:"peer"`
	Event     string `json:"event"`
	Uptime    uint32 `json:"uptime"`
	Channel   string `json:"channel,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for an engine event observed at ts.
func FormatPayload(self subsystem.ID, ev heartbeat.Event, ts time.Time) ([]byte, error) {
	p := EventPayload{
		Timestamp: ts.UTC().Format(time.RFC3339),
		Self:      self.String(),
		Peer:      ev.Peer.String(),
		Event:     string(ev.Type),
		Uptime:    ev.Uptime,
	}
	if ev.Type == heartbeat.EventChannelDeferred || ev.Type == heartbeat.EventChannelFailed {
		p.Channel = ev.Kind.String()
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	return json.Marshal(Payload{Heartbeat: p})
}

// SystemPayload is the body for lifecycle events that carry no status
// snapshot (the LWT, for one).
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Self      string `json:"self,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If ev.RawPayload is set, it is returned directly.
func FormatSystemPayload(ev SystemEvent) ([]byte, error) {
	if ev.RawPayload != nil {
		return ev.RawPayload, nil
	}

	p := SystemPayload{
		System: SystemPayloadInner{
			Event:  ev.Event,
			Reason: ev.Reason,
		},
	}
	if !ev.Timestamp.IsZero() {
		p.System.Timestamp = ev.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(p)
}

// offlinePayload is registered as the last will. The broker publishes it
// with no timestamp since it cannot know when the node went away.
func offlinePayload(self subsystem.ID) []byte {
	data, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{
		Self:  self.String(),
		Event: EventOffline,
	}})
	return data
}

// Discard is a Publisher that drops everything. Used when telemetry is off.
type Discard struct{}

func (Discard) Publish(heartbeat.Event) error { return nil }
func (Discard) PublishSystem(SystemEvent) error { return nil }
func (Discard) Close() error { return nil }
func (Discard) IsConnected() bool { return false }
