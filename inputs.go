package accessorhost

import (
	"slices"
	"time"

	"github.com/dop251/goja"
	"github.com/synadia-io/accessorhost/internal/idgen"
	"github.com/synadia-io/accessorhost/internal/loop"
)

type inputHandler struct {
	handle string
	input  string
	fn     goja.Callable
	args   []goja.Value
}

// inputHandlers is only touched from the loop goroutine.
type inputHandlers struct {
	ids  idgen.Generator
	list []*inputHandler
}

func newInputHandlers(ids idgen.Generator) *inputHandlers {
	return &inputHandlers{ids: ids}
}

// add registers fn for input. An empty input means any input.
func (ih *inputHandlers) add(input string, fn goja.Callable, args []goja.Value) string {
	handle := ih.ids.Generate()
	ih.list = append(ih.list, &inputHandler{handle: handle, input: input, fn: fn, args: args})
	return handle
}

func (ih *inputHandlers) remove(handle string) bool {
	i := slices.IndexFunc(ih.list, func(h *inputHandler) bool { return h.handle == handle })
	if i < 0 {
		return false
	}
	ih.list = slices.Delete(ih.list, i, i+1)
	return true
}

// run calls the handlers for input, then the handlers for any input, each
// group in registration order.
func (ih *inputHandlers) run(input string, call func(goja.Callable, []goja.Value)) {
	current := slices.Clone(ih.list)
	for _, h := range current {
		if h.input == input {
			call(h.fn, h.args)
		}
	}
	for _, h := range current {
		if h.input == "" {
			call(h.fn, h.args)
		}
	}
}

func (ih *inputHandlers) count() int {
	return len(ih.list)
}

// timers are script timers. Handles count up from 1 like a browser's.
type timers struct {
	loop   *loop.Loop
	next   int64
	active map[int64]*loop.Timer
}

func newTimers(l *loop.Loop) *timers {
	return &timers{loop: l, active: make(map[int64]*loop.Timer)}
}

func (ts *timers) add(delay time.Duration, repeat bool, f func()) int64 {
	ts.next++
	id := ts.next
	if repeat {
		ts.active[id] = ts.loop.Every(delay, f)
		return id
	}
	ts.active[id] = ts.loop.AfterFunc(delay, func() {
		delete(ts.active, id)
		f()
	})
	return id
}

func (ts *timers) clear(id int64) {
	if t, ok := ts.active[id]; ok {
		t.Stop()
		delete(ts.active, id)
	}
}

func (ts *timers) stopAll() {
	for id, t := range ts.active {
		t.Stop()
		delete(ts.active, id)
	}
}

func (ts *timers) count() int {
	return len(ts.active)
}
