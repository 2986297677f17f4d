package timebase

import (
	"sync"
	"sync/atomic"
)

// Fake is a test double whose clock only moves when Advance or Set is called.
type Fake struct {
	seconds atomic.Uint32

	mu        sync.Mutex
	callbacks []TickFunc
}

// NewFake creates a Fake starting at the given uptime.
func NewFake(start uint32) *Fake {
	f := &Fake{}
	f.seconds.Store(start)
	return f
}

// Now returns the scripted uptime.
func (f *Fake) Now() uint32 {
	return f.seconds.Load()
}

// OnTick registers fn, honouring MaxCallbacks like the real counter.
func (f *Fake) OnTick(fn TickFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.callbacks) >= MaxCallbacks {
		return ErrTooManyCallbacks
	}
	f.callbacks = append(f.callbacks, fn)
	return nil
}

// Advance moves the clock forward n seconds, firing callbacks once per second.
func (f *Fake) Advance(n uint32) {
	for i := uint32(0); i < n; i++ {
		now := f.seconds.Add(1)
		f.fire(now)
	}
}

// Set jumps the clock to t without firing callbacks in between, then fires
// callbacks once for t.
func (f *Fake) Set(t uint32) {
	f.seconds.Store(t)
	f.fire(t)
}

func (f *Fake) fire(now uint32) {
	f.mu.Lock()
	cbs := f.callbacks
	f.mu.Unlock()

	for _, fn := range cbs {
		fn(now)
	}
}
