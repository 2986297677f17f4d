// Package timebase provides the monotonic seconds counter the heartbeat engine
// reads, plus the once-per-second callback facility it registers with.
// The real implementation counts process uptime.
// The fake implementation lets tests move time by hand.
package timebase

import "errors"

// MaxCallbacks is the number of tick callbacks a timebase accepts.
const MaxCallbacks = 5

// ErrTooManyCallbacks is returned by OnTick once MaxCallbacks are registered.
var ErrTooManyCallbacks = errors.New("timebase: callback table full")

// TickFunc is invoked once per second with the new uptime.
// It runs outside the main loop and must only do bounded, non-blocking work.
type TickFunc func(now uint32)

// Timebase is a monotonic seconds counter.
type Timebase interface {
	// Now returns whole seconds since boot.
	Now() uint32

	// OnTick registers fn to be called once per second.
	OnTick(fn TickFunc) error
}
