package location

import (
	"sync"
	"time"
)

// DefaultIdle is how long a value must sit unchanged before a lookup fires.
const DefaultIdle = 500 * time.Millisecond

// Debouncer coalesces rapid Trigger calls: only the last value within the
// idle window fires, and a newer Trigger supersedes any pending one. The fire
// callback receives the originating value so the applier can discard results
// for values that are no longer current.
type Debouncer struct {
	mu    sync.Mutex
	idle  time.Duration
	timer *time.Timer
	fire  func(value string)
}

func NewDebouncer(idle time.Duration, fire func(value string)) *Debouncer {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Debouncer{idle: idle, fire: fire}
}

// Trigger schedules fire(value) after the idle window, cancelling any
// previously scheduled value.
func (d *Debouncer) Trigger(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.idle, func() {
		d.fire(value)
	})
}

// Stop cancels any pending fire.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
