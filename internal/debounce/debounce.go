// Package debounce coalesces bursts of calls into a single trailing call.
package debounce

import (
	"context"
	"sync"
	"time"
)

// DefaultWait collapses per-keystroke bursts without noticeably delaying saves.
const DefaultWait = 300 * time.Millisecond

// Debouncer delays fn until wait has elapsed without another Call. Only the
// arguments of the latest Call are kept.
//
// States: idle (no pending call) and pending (timer armed, args held). Call
// moves to pending, firing/Flush/FlushSync/Cancel move back to idle.
type Debouncer[A any] struct {
	fn   func(A)
	wait time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64 // bumped on every transition so stale timers do nothing
	pending bool
	args    A

	running int
	idle    chan struct{} // closed while running == 0
}

// New creates a Debouncer. A non-positive wait means DefaultWait.
func New[A any](wait time.Duration, fn func(A)) *Debouncer[A] {
	if wait <= 0 {
		wait = DefaultWait
	}
	idle := make(chan struct{})
	close(idle)
	return &Debouncer[A]{fn: fn, wait: wait, idle: idle}
}

// Wait returns the configured quiet period.
func (d *Debouncer[A]) Wait() time.Duration { return d.wait }

// Call schedules fn(args), replacing any pending arguments and restarting the timer.
func (d *Debouncer[A]) Call(args A) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.args = args
	d.pending = true
	d.timer = time.AfterFunc(d.wait, func() { d.fire(gen) })
}

// Flush fires the pending call right away on a new goroutine and returns
// without waiting for it. No-op when idle.
func (d *Debouncer[A]) Flush() {
	if args, ok := d.take(0); ok {
		go d.run(args)
	}
}

// FlushSync fires the pending call on the caller's goroutine, then waits
// until every call already in flight (including timer-fired ones) has
// returned. It returns ctx.Err() if ctx ends first.
func (d *Debouncer[A]) FlushSync(ctx context.Context) error {
	if args, ok := d.take(0); ok {
		d.run(args)
	}

	d.mu.Lock()
	idle := d.idle
	d.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel drops the pending call without firing it.
func (d *Debouncer[A]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

// Pending reports whether a call is scheduled.
func (d *Debouncer[A]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer[A]) fire(gen uint64) {
	if args, ok := d.take(gen); ok {
		d.run(args)
	}
}

// take claims the pending args and marks a call as running. A non-zero gen
// must match the current generation, which filters out superseded timers.
func (d *Debouncer[A]) take(gen uint64) (A, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero A
	if !d.pending || (gen != 0 && gen != d.gen) {
		return zero, false
	}
	args := d.args
	d.reset()

	if d.running == 0 {
		d.idle = make(chan struct{})
	}
	d.running++
	return args, true
}

func (d *Debouncer[A]) run(args A) {
	defer d.done()
	d.fn(args)
}

func (d *Debouncer[A]) done() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running--
	if d.running == 0 {
		close(d.idle)
	}
}

// reset returns to idle. Caller holds mu.
func (d *Debouncer[A]) reset() {
	var zero A
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.pending = false
	d.args = zero
}
