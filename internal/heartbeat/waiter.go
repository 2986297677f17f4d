package heartbeat

import (
	"time"

	"github.com/sweeney/sat-heartbeat/internal/timebase"
)

// Waiter blocks until a condition holds or a bound elapses.
type Waiter interface {
	// Until polls done and reports whether it held before the bound.
	Until(done func() bool) bool
}

// WaiterFunc adapts a function to Waiter.
type WaiterFunc func(done func() bool) bool

// Until calls f.
func (f WaiterFunc) Until(done func() bool) bool { return f(done) }

// Immediate checks the condition once without waiting.
var Immediate Waiter = WaiterFunc(func(done func() bool) bool { return done() })

// TickWaiter polls a condition until it holds or Ticks timebase seconds have
// passed. MaxPolls caps the number of polls so a stalled timebase cannot
// turn the wait into an unbounded spin.
type TickWaiter struct {
	Timebase timebase.Timebase
	Ticks    uint32
	Step     time.Duration
	MaxPolls int

	// Sleep pauses between polls; nil uses time.Sleep.
	Sleep func(time.Duration)
}

// Until implements Waiter.
func (w *TickWaiter) Until(done func() bool) bool {
	step := w.Step
	if step <= 0 {
		step = 10 * time.Millisecond
	}
	limit := w.MaxPolls
	if limit <= 0 {
		limit = int(time.Duration(w.Ticks+1) * time.Second / step)
	}
	sleep := w.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	start := w.Timebase.Now()
	for polls := 0; ; polls++ {
		if done() {
			return true
		}
		if w.Timebase.Now()-start >= w.Ticks || polls >= limit {
			return false
		}
		sleep(step)
	}
}
