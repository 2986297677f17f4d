package telemetry

import (
	"sync"

	"github.com/sweeney/sat-heartbeat/internal/heartbeat"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Events contains all engine events that were published.
	Events []heartbeat.Event

	// SystemEvents contains all lifecycle events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for lifecycle events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the engine event.
func (f *FakePublisher) Publish(ev heartbeat.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Events = append(f.Events, ev)
	return nil
}

// PublishSystem records the lifecycle event.
func (f *FakePublisher) PublishSystem(ev SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(ev)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, ev)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SystemEventNames returns the Event field of each lifecycle event, in order.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.SystemEvents))
	for i, ev := range f.SystemEvents {
		out[i] = ev.Event
	}
	return out
}

// EventTypes returns the Type of each engine event, in order.
func (f *FakePublisher) EventTypes() []heartbeat.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]heartbeat.EventType, len(f.Events))
	for i, ev := range f.Events {
		out[i] = ev.Type
	}
	return out
}
