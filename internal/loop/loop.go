// Package loop runs script work on a single goroutine. Every callback into
// a goja runtime goes through a Loop so the runtime is never touched
// concurrently. The goroutine and its timers belong to a goja_nodejs
// event loop; Loop adds rejection after Stop and panic recovery.
package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
)

var ErrStopped = errors.New("event loop stopped")

type Loop struct {
	el *eventloop.EventLoop
	// only touched from tasks running on the loop
	vm *goja.Runtime

	mu       sync.Mutex
	started  bool
	stopped  bool
	done     chan struct{}
	doneOnce sync.Once

	// serializes eventloop Start and Stop, which must not overlap
	lifecycle sync.Mutex

	logger *slog.Logger
}

func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loop{
		el:     eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Start runs the loop in its own goroutine until Stop is called or ctx is
// done.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started || l.stopped {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	l.lifecycle.Lock()
	l.el.Start()
	l.lifecycle.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			l.Stop()
		case <-l.done:
		}
	}()
}

// Runtime is the goja runtime owned by the loop. Only use it from a task
// running on the loop.
func (l *Loop) Runtime() *goja.Runtime {
	return l.vm
}

func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("recovered panic in event loop task", slog.Any("panic", r))
		}
	}()
	task()
}

// Dispatch queues f. It returns false once the loop has been stopped.
func (l *Loop) Dispatch(f func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	// queued under the lock so nothing lands behind the stop job
	l.el.RunOnLoop(func(vm *goja.Runtime) {
		l.vm = vm
		l.runTask(f)
	})
	return true
}

// Do runs f on the loop and waits for its result. It must not be called
// from a task already running on the loop.
func (l *Loop) Do(ctx context.Context, f func() error) error {
	result := make(chan error, 1)
	ok := l.Dispatch(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("panic in event loop task: %v", r)
			}
		}()
		result <- f()
	})
	if !ok {
		return ErrStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// Stop lets queued tasks finish and ends the loop. Later dispatches are
// rejected. Stop does not wait; use Wait for that.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	started := l.started
	l.mu.Unlock()

	if !started {
		l.closeDone()
		return
	}

	// Terminate blocks until the loop exits, which would deadlock when
	// Stop is called from a task. It also clears pending timers.
	go func() {
		l.lifecycle.Lock()
		l.el.Terminate()
		l.lifecycle.Unlock()
		l.closeDone()
	}()
}

func (l *Loop) closeDone() {
	l.doneOnce.Do(func() { close(l.done) })
}

// Wait blocks until the loop has exited or timeout elapses.
func (l *Loop) Wait(timeout time.Duration) bool {
	select {
	case <-l.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}
