package integration

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of triggers into one callback invocation
// after a quiet period.
//
// Each target provider owns its own Debouncer, so a burst of file events
// on one provider never delays another provider's refresh.
//
// All methods are safe for concurrent use. The callback never runs
// concurrently with itself from the same Debouncer.
type Debouncer struct {
	mu      sync.Mutex
	run     sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending bool
	stopped bool
	seq     uint64 // invalidates timers that fired after a newer trigger
	fn      func()
}

// NewDebouncer creates a debouncer that calls fn once no trigger has
// arrived for delay. A non-positive delay runs fn on the next trigger
// without waiting.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger (re)starts the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	d.pending = true
	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}

	if d.delay <= 0 {
		d.timer = nil
		d.mu.Unlock()
		d.fire(seq)
		return
	}

	d.timer = time.AfterFunc(d.delay, func() { d.fire(seq) })
	d.mu.Unlock()
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if !d.pending || d.stopped || d.seq != seq {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.mu.Unlock()

	d.run.Lock()
	defer d.run.Unlock()
	d.fn()
}

// Flush runs a pending callback immediately.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	seq := d.seq
	d.mu.Unlock()
	d.fire(seq)
}

// Pending reports whether a callback is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Stop cancels any pending callback and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.pending = false
	d.stopped = true
}
