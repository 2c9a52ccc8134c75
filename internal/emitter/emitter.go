// Package emitter is the listener registry shared by every capability
// wrapper. Wrappers compose an *Emitter rather than inherit from it.
package emitter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/synadia-io/accessorhost/models"
)

type Listener func(args ...any)

// Dispatcher runs a notification on the goroutine that owns script state.
// Dispatch reports false when the task was rejected because the owner has
// stopped.
type Dispatcher interface {
	Dispatch(func()) bool
}

// Inline runs notifications on the caller's goroutine.
type Inline struct{}

func (Inline) Dispatch(f func()) bool {
	f()
	return true
}

// Hook observes every emitted event, handled or not.
type Hook func(source, event string, handled bool)

type entry struct {
	id   uint64
	fn   Listener
	once bool
}

type Emitter struct {
	mu        sync.Mutex
	source    string
	listeners map[string][]*entry
	nextID    uint64

	dispatcher Dispatcher
	logger     *slog.Logger
	hook       Hook
}

func New(source string, dispatcher Dispatcher, logger *slog.Logger) *Emitter {
	if dispatcher == nil {
		dispatcher = Inline{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Emitter{
		source:     source,
		listeners:  make(map[string][]*entry),
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (e *Emitter) SetHook(h Hook) {
	e.mu.Lock()
	e.hook = h
	e.mu.Unlock()
}

func (e *Emitter) Source() string {
	return e.source
}

func (e *Emitter) Dispatcher() Dispatcher {
	return e.dispatcher
}

// On registers fn for event and returns a handle for Off.
func (e *Emitter) On(event string, fn Listener) uint64 {
	return e.add(event, fn, false)
}

// Once registers fn to run for the next occurrence of event only.
func (e *Emitter) Once(event string, fn Listener) uint64 {
	return e.add(event, fn, true)
}

func (e *Emitter) add(event string, fn Listener, once bool) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.listeners[event] = append(e.listeners[event], &entry{id: e.nextID, fn: fn, once: once})
	return e.nextID
}

func (e *Emitter) Off(event string, id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.listeners[event]
	for i, l := range list {
		if l.id == id {
			e.listeners[event] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveAllListeners drops the listeners for event, or for every event
// when event is empty.
func (e *Emitter) RemoveAllListeners(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if event == "" {
		e.listeners = make(map[string][]*entry)
		return
	}
	delete(e.listeners, event)
}

func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// Emit calls the listeners of event synchronously, in registration order,
// and reports whether there were any. An error event nobody listens for
// is logged and dropped.
func (e *Emitter) Emit(event string, args ...any) bool {
	e.mu.Lock()
	list := e.listeners[event]
	current := make([]*entry, len(list))
	copy(current, list)
	kept := list[:0:0]
	for _, l := range list {
		if !l.once {
			kept = append(kept, l)
		}
	}
	if len(kept) != len(list) {
		e.listeners[event] = kept
	}
	hook := e.hook
	e.mu.Unlock()

	if hook != nil {
		hook(e.source, event, len(current) > 0)
	}

	if len(current) == 0 {
		if event == models.EventError {
			e.logger.Warn("unhandled error event",
				slog.String("source", e.source),
				slog.String("error", errorText(args)),
			)
		}
		return false
	}

	for _, l := range current {
		l.fn(args...)
	}
	return true
}

// Notify hands the emit to the dispatcher. Goroutines doing I/O use it to
// deliver events into script context.
func (e *Emitter) Notify(event string, args ...any) {
	if !e.dispatcher.Dispatch(func() { e.Emit(event, args...) }) {
		e.logger.Debug("dropped event after shutdown",
			slog.String("source", e.source),
			slog.String("event", event),
		)
	}
}

// NotifyError emits an error event carrying err's message.
func (e *Emitter) NotifyError(err error) {
	e.Notify(models.EventError, err.Error())
}

func errorText(args []any) string {
	if len(args) == 0 {
		return "unknown error"
	}
	return fmt.Sprint(args[0])
}

// WaitFor blocks until event is emitted or ctx is done, returning the
// event's arguments. Tests and synchronous Go callers use it.
func (e *Emitter) WaitFor(ctx context.Context, event string) ([]any, error) {
	ch := make(chan []any, 1)
	id := e.Once(event, func(args ...any) {
		select {
		case ch <- args:
		default:
		}
	})
	select {
	case args := <-ch:
		return args, nil
	case <-ctx.Done():
		e.Off(event, id)
		return nil, ctx.Err()
	}
}
