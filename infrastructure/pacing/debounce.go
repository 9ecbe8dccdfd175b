// Package pacing rate-limits bursts of events.
package pacing

import (
	"io"
	"sync"
	"time"

	"github.com/romdo/go-debounce"
)

var _ io.Closer = (*Debouncer[string])(nil)

// Debouncer defers fn until no call has arrived for the delay window, then
// runs it once with the arguments of the most recent call. Each call
// supersedes the pending one.
type Debouncer[T any] struct {
	fn      func(T)
	delay   time.Duration
	trigger func()
	cancel  func()

	mu      sync.Mutex
	latest  T
	pending bool
	stopped bool
	calls   int
}

// NewDebouncer creates a trailing-edge Debouncer.
func NewDebouncer[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	d := &Debouncer[T]{fn: fn, delay: delay}
	d.trigger, d.cancel = debounce.New(delay, d.fire)
	return d
}

// Call records arg as the latest arguments and restarts the quiet window.
// Calls after Stop are ignored.
func (d *Debouncer[T]) Call(arg T) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.latest = arg
	d.pending = true
	d.mu.Unlock()

	d.trigger()
}

// Pending reports whether an invocation is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Delay returns the quiet window.
func (d *Debouncer[T]) Delay() time.Duration { return d.delay }

// Invocations returns how many times fn has run.
func (d *Debouncer[T]) Invocations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Flush runs a pending invocation immediately on the calling goroutine.
func (d *Debouncer[T]) Flush() {
	d.cancel()
	d.fire()
}

// Stop cancels any pending invocation. The Debouncer cannot be reused.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.pending = false
	var zero T
	d.latest = zero
	d.mu.Unlock()

	d.cancel()
}

// Close stops the Debouncer.
func (d *Debouncer[T]) Close() error {
	d.Stop()
	return nil
}

func (d *Debouncer[T]) fire() {
	d.mu.Lock()
	if !d.pending || d.stopped {
		d.mu.Unlock()
		return
	}
	arg := d.latest
	d.pending = false
	d.calls++
	d.mu.Unlock()

	d.fn(arg)
}
