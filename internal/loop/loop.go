package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Call when the loop is no longer running.
var ErrStopped = errors.New("loop stopped")

// Scheduler runs callbacks one at a time.
type Scheduler interface {
	// Now returns the scheduler's current time.
	Now() time.Time

	// Post queues fn to run on the loop. Safe from any goroutine.
	Post(fn func())

	// AfterFunc runs fn on the loop after d unless the task is cancelled first.
	AfterFunc(d time.Duration, fn func()) *Task
}

// Task is a handle to delayed work.
type Task struct {
	cancelled atomic.Bool
	done      atomic.Bool
	stop      func()
}

// Cancel prevents the task from running. Safe on a nil Task.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	if t.cancelled.CompareAndSwap(false, true) && t.stop != nil {
		t.stop()
	}
}

// Pending reports whether the task is still waiting to run.
func (t *Task) Pending() bool {
	return t != nil && !t.cancelled.Load() && !t.done.Load()
}

// run executes fn unless the task was cancelled.
func (t *Task) run(fn func()) {
	if t.cancelled.Load() || !t.done.CompareAndSwap(false, true) {
		return
	}
	fn()
}

// Loop is the production Scheduler: one goroutine draining an unbounded queue.
type Loop struct {
	logger *slog.Logger

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	running bool
	stopped bool
}

// New creates a Loop. Call Run to start it.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Now returns the wall-clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post queues fn. Callbacks posted after the loop stopped are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc schedules fn on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Task {
	t := &Task{}
	timer := time.AfterFunc(d, func() {
		l.Post(func() { t.run(fn) })
	})
	t.stop = func() { timer.Stop() }
	return t
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("loop already running")
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.invoke(fn)

			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// invoke runs one callback, keeping the loop alive if it panics.
func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop callback panicked", "panic", r)
		}
	}()
	fn()
}
