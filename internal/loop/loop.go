// Package loop runs closures one at a time on a single goroutine.
//
// The dictation and reply state machines are only touched from inside a Loop.
// Key hooks, audio callbacks and backend goroutines hand their results over
// with Post instead of writing state themselves.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("loop stopped")

// Loop is a serial executor.
type Loop struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once

	// overflow holds closures posted while the queue was full. Once it is
	// non-empty every Post appends here, so closures run in posting order.
	mu       sync.Mutex
	overflow []func()
	wake     chan struct{}
}

// New creates a loop with a queue of the given size.
func New(size int) *Loop {
	if size <= 0 {
		size = 256
	}
	return &Loop{
		queue: make(chan func(), size),
		done:  make(chan struct{}),
		wake:  make(chan struct{}, 1),
	}
}

// Post schedules f without blocking. Closures run in the order they were
// posted. Closures posted after the loop stopped are dropped.
func (l *Loop) Post(f func()) {
	select {
	case <-l.done:
		return
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.overflow) == 0 {
		select {
		case l.queue <- f:
			return
		default:
			slog.Debug("loop queue full, spilling", "size", cap(l.queue))
		}
	}
	l.overflow = append(l.overflow, f)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs f on the loop and waits for it to return.
func (l *Loop) Do(f func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		f()
	})
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Run executes posted closures until ctx is cancelled.
// A panicking closure is logged and the loop keeps running.
func (l *Loop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })
	for {
		// The queue always holds older closures than the overflow.
		select {
		case <-ctx.Done():
			return
		case f := <-l.queue:
			run(f)
			continue
		default:
		}
		if f, ok := l.popOverflow(); ok {
			run(f)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case f := <-l.queue:
			run(f)
		case <-l.wake:
		}
	}
}

func (l *Loop) popOverflow() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.overflow) == 0 {
		return nil, false
	}
	f := l.overflow[0]
	l.overflow[0] = nil
	l.overflow = l.overflow[1:]
	return f, true
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

func run(f func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("loop task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	f()
}
