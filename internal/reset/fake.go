package reset

import (
	"sync"

	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

// FakeActuator records pulses instead of driving hardware.
type FakeActuator struct {
	mu     sync.Mutex
	pulses []subsystem.Relation

	// PulseError, if set, is returned by Pulse. The attempt is still recorded.
	PulseError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeActuator creates an empty FakeActuator.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// Pulse records rel.
func (f *FakeActuator) Pulse(rel subsystem.Relation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulses = append(f.pulses, rel)
	return f.PulseError
}

// Close marks the actuator as closed.
func (f *FakeActuator) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Pulses returns every relation pulsed so far.
func (f *FakeActuator) Pulses() []subsystem.Relation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]subsystem.Relation, len(f.pulses))
	copy(out, f.pulses)
	return out
}

// Count returns how many times rel was pulsed.
func (f *FakeActuator) Count(rel subsystem.Relation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.pulses {
		if p == rel {
			n++
		}
	}
	return n
}

// SetError sets PulseError under the lock.
func (f *FakeActuator) SetError(err error) {
	f.mu.Lock()
	f.PulseError = err
	f.mu.Unlock()
}
