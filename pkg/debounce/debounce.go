// Package debounce provides a single-purpose debouncer: repeated triggers
// within the delay window collapse into one invocation of the flush callback.
package debounce

import (
	"sync"
	"time"
)

// Debouncer delays a flush callback until triggers go quiet for the
// configured duration. Safe for concurrent use.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
}

// New returns a Debouncer that invokes fn once triggers stop for delay.
func New(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger arms the debouncer, resetting the delay if already armed.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = true
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.fire)
		return
	}
	d.timer.Reset(d.delay)
}

// Flush invokes the callback immediately if a flush is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fire := d.pending
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	if fire {
		d.fn()
	}
}

// Stop cancels any pending flush. It reports whether a flush was pending.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	wasPending := d.pending
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
	return wasPending
}

// Pending reports whether a flush is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()

	d.fn()
}
