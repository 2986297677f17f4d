//go:build linux

package reset

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/sat-heartbeat/internal/subsystem"
)

// GPIOActuator pulses output lines on a GPIO chip, one per relation that
// starts at self.
type GPIOActuator struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[subsystem.Relation]*gpiocdev.Line
	width time.Duration
	sleep func(time.Duration)
}

// NewGPIOActuator requests the lines wired for relations originating at self.
// Lines are requested as outputs driven inactive; with activeLow the physical
// level is inverted so "asserted" pulls the line low.
func NewGPIOActuator(chipName string, self subsystem.ID, wiring Wiring, width time.Duration, activeLow bool) (*GPIOActuator, error) {
	if width <= 0 {
		width = DefaultPulseWidth
	}

	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	a := &GPIOActuator{
		chip:  chip,
		lines: make(map[subsystem.Relation]*gpiocdev.Line),
		width: width,
		sleep: time.Sleep,
	}

	for rel, offset := range wiring {
		if rel.From != self {
			continue
		}
		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("hbnode-" + rel.String())}
		if activeLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := chip.RequestLine(offset, opts...)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("request reset line %s (offset %d): %w", rel, offset, err)
		}
		a.lines[rel] = line
	}

	return a, nil
}

// Pulse asserts the line for rel for the configured width, then releases it.
func (a *GPIOActuator) Pulse(rel subsystem.Relation) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	line, ok := a.lines[rel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoLine, rel)
	}
	if err := line.SetValue(1); err != nil {
		return fmt.Errorf("assert %s: %w", rel, err)
	}
	a.sleep(a.width)
	if err := line.SetValue(0); err != nil {
		return fmt.Errorf("release %s: %w", rel, err)
	}
	return nil
}

// Close releases the lines, leaving them as inputs so the peer's own pull-up
// holds it out of reset while this process is gone.
func (a *GPIOActuator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for rel, line := range a.lines {
		if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", rel, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", rel, err))
		}
		delete(a.lines, rel)
	}
	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		a.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
