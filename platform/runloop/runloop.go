// Package runloop provides a single-goroutine serial task executor.
// This is part of the platform layer and contains no business logic.
//
// All state owned by the aggregation core (pending resolutions, the row
// collection, the recipient registry, the contact cache's local tables) is
// mutated only from tasks running on one Loop, which removes the need for
// locking inside the core. Blocking I/O runs off-loop and posts its results
// back as tasks.
package runloop

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Do when the loop has shut down and no longer
// accepts tasks.
var ErrClosed = errors.New("runloop: loop is closed")

// Loop is an unbounded FIFO task queue drained by a single goroutine.
// The zero value is not usable; create one with New.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
}

// New creates a new, empty loop. Call Run to start draining it.
func New() *Loop {
	l := &Loop{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Post enqueues a task and reports whether it was accepted. It never blocks
// and is safe to call from any goroutine, including from a task already
// running on the loop (this is how deferred next-turn work, such as the
// resolver's finished-check, is scheduled). Once the loop has shut down,
// tasks are rejected; every accepted task is guaranteed to run.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue = append(l.queue, task)
	l.cond.Signal()
	return true
}

// Do posts a task and waits for it to finish running, or for ctx to be
// cancelled. It is the bridge for callers outside the loop (HTTP handlers,
// tests) that need a consistent view of loop-owned state. On a loop that has
// shut down it returns ErrClosed immediately.
func (l *Loop) Do(ctx context.Context, task func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		task()
		close(done)
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled. It must be called at most
// once; tasks run sequentially in post order.
func (l *Loop) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		l.closed = true
		l.cond.Signal()
		l.mu.Unlock()
	})
	defer stop()

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			rest := l.queue
			l.queue = nil
			l.mu.Unlock()
			// Tasks accepted before shutdown still run, so a Do waiting on
			// one of them is always released.
			for _, task := range rest {
				task()
			}
			return ctx.Err()
		}
		task := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
	}
}

// Flush synchronously runs queued tasks until the queue is empty, including
// tasks posted by the tasks it runs. It exists for tests and for orderly
// shutdown, and must not be called concurrently with Run.
func (l *Loop) Flush() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
	}
}
