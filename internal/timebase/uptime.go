package timebase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Uptime counts seconds from a 1 s ticker. The counter never goes backwards
// and is only reset by restarting the process.
type Uptime struct {
	seconds atomic.Uint32
	period  time.Duration

	mu        sync.Mutex
	callbacks []TickFunc
}

// NewUptime creates an uptime counter at zero. Call Run to start counting.
func NewUptime() *Uptime {
	return &Uptime{period: time.Second}
}

// Now returns the current uptime in seconds.
func (u *Uptime) Now() uint32 {
	return u.seconds.Load()
}

// OnTick registers fn to be called after every increment.
func (u *Uptime) OnTick(fn TickFunc) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.callbacks) >= MaxCallbacks {
		return ErrTooManyCallbacks
	}
	u.callbacks = append(u.callbacks, fn)
	return nil
}

// Run increments the counter once per period until ctx is cancelled.
func (u *Uptime) Run(ctx context.Context) {
	ticker := time.NewTicker(u.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.tick()
		}
	}
}

func (u *Uptime) tick() {
	now := u.seconds.Add(1)

	u.mu.Lock()
	cbs := u.callbacks
	u.mu.Unlock()

	for _, fn := range cbs {
		fn(now)
	}
}
