// Package reset drives the dedicated lines that force a peer controller to
// reboot. The real implementation pulses Linux GPIO character device lines.
// The fake implementation records pulses for tests.
package reset

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

// DefaultPulseWidth is how long a reset line is held asserted.
const DefaultPulseWidth = 100 * time.Millisecond

// ErrNoLine is returned when no line is wired for a relation.
var ErrNoLine = errors.New("reset: no line wired for relation")

// Actuator asserts a reset pulse on a peer.
type Actuator interface {
	// Pulse asserts and releases the reset line for rel.
	// Pulsing is idempotent: a second pulse just resets the peer again.
	Pulse(rel subsystem.Relation) error

	// Close releases the lines.
	Close() error
}

// Wiring maps each relation to a GPIO line offset on the chip.
type Wiring map[subsystem.Relation]int

// Unwired is an Actuator for nodes with no reset lines (bench setups,
// simulation). Every Pulse fails with ErrNoLine.
type Unwired struct{}

func (Unwired) Pulse(rel subsystem.Relation) error { return fmt.Errorf("%w: %s", ErrNoLine, rel) }
func (Unwired) Close() error { return nil }
