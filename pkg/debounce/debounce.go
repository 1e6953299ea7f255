// Package debounce provides a single-slot trailing-edge scheduler.
//
// Each Trigger replaces whatever task is pending and restarts the window,
// so only the last task of a burst runs, once the window has passed
// without further triggers.
package debounce

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Debouncer owns at most one pending task.
type Debouncer struct {
	clock  clock.Clock
	window time.Duration

	mu      sync.Mutex
	timer   *clock.Timer
	gen     uint64
	stopped bool
	runs    uint64
}

// New creates a debouncer. A nil clock means wall time.
func New(clk clock.Clock, window time.Duration) *Debouncer {
	if clk == nil {
		clk = clock.New()
	}
	return &Debouncer{
		clock:  clk,
		window: window,
	}
}

// Window returns the quiet period a task waits for.
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Trigger schedules fn, cancelling any task still pending.
// It does nothing after Stop.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.window, func() {
		d.mu.Lock()
		// A stopped timer can still fire if it raced with Stop
		if d.stopped || gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.runs++
		d.mu.Unlock()

		fn()
	})
}

// Pending reports whether a task is waiting to run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Runs returns how many tasks have executed.
func (d *Debouncer) Runs() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runs
}

// Stop cancels the pending task and disables the debouncer. Safe to call
// more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
