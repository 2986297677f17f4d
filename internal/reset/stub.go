//go:build !linux

package reset

import (
	"errors"
	"time"

	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

// GPIOActuator is not available on non-Linux platforms.
type GPIOActuator struct{}

// NewGPIOActuator returns an error on non-Linux platforms.
func NewGPIOActuator(chipName string, self subsystem.ID, wiring Wiring, width time.Duration, activeLow bool) (*GPIOActuator, error) {
	return nil, errors.New("reset: gpio not supported on this platform (requires Linux)")
}

// Pulse is not implemented on non-Linux platforms.
func (a *GPIOActuator) Pulse(rel subsystem.Relation) error {
	return errors.New("reset: gpio not supported")
}

// Close is not implemented on non-Linux platforms.
func (a *GPIOActuator) Close() error {
	return nil
}
