// Package jsbind exposes Go capability wrappers to goja scripts.
package jsbind

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dop251/goja"
	"github.com/synadia-io/accessorhost/internal/emitter"
	"github.com/synadia-io/accessorhost/internal/jsconv"
	"github.com/synadia-io/accessorhost/modules"
)

// Converter turns an emitted Go value into a script value. It reports false
// when it does not handle v.
type Converter func(v any) (goja.Value, bool)

type Binder struct {
	rt     *goja.Runtime
	logger *slog.Logger
}

func New(rt *goja.Runtime, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Binder{rt: rt, logger: logger}
}

func (b *Binder) Runtime() *goja.Runtime {
	return b.rt
}

// Throw raises err in the script as a TypeError. It does not return.
func (b *Binder) Throw(format string, args ...any) {
	panic(b.rt.NewTypeError(fmt.Sprintf(format, args...)))
}

// Options merges a script options object over dst. A value that is
// undefined or null leaves the defaults alone.
func (b *Binder) Options(v goja.Value, dst any) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		b.Throw("options must be an object")
	}
	overrides := make(map[string]any)
	for _, k := range obj.Keys() {
		fv := obj.Get(k)
		if goja.IsUndefined(fv) {
			continue
		}
		overrides[k] = fv.Export()
	}
	if err := modules.MergeOptions(dst, overrides); err != nil {
		b.Throw("invalid options: %s", err)
	}
}

// Value converts an emitted Go value, trying converters before the
// default token conversion.
func (b *Binder) Value(v any, converters ...Converter) goja.Value {
	for _, c := range converters {
		if gv, ok := c(v); ok {
			return gv
		}
	}
	return jsconv.ToValue(b.rt, v)
}

// Callable asserts that v is a function or throws.
func (b *Binder) Callable(v goja.Value, what string) goja.Callable {
	fn, ok := goja.AssertFunction(v)
	if !ok {
		b.Throw("%s must be a function", what)
	}
	return fn
}

type listenerKey struct {
	event string
	fn    *goja.Object
}

// Emitter installs on, once, addListener, removeListener, off,
// removeAllListeners and listenerCount on obj, backed by em.
func (b *Binder) Emitter(obj *goja.Object, em *emitter.Emitter, converters ...Converter) {
	var mu sync.Mutex
	ids := make(map[listenerKey][]uint64)

	register := func(call goja.FunctionCall, once bool) goja.Value {
		event := call.Argument(0).String()
		fnObj, ok := call.Argument(1).(*goja.Object)
		if !ok {
			b.Throw("listener for %q must be a function", event)
		}
		fn := b.Callable(fnObj, "listener")

		listener := func(args ...any) {
			vals := make([]goja.Value, len(args))
			for i, a := range args {
				vals[i] = b.Value(a, converters...)
			}
			if _, err := fn(obj, vals...); err != nil {
				b.logger.Error("listener failed",
					slog.String("source", em.Source()),
					slog.String("event", event),
					slog.Any("err", err),
				)
			}
		}

		var id uint64
		if once {
			id = em.Once(event, listener)
		} else {
			id = em.On(event, listener)
		}
		mu.Lock()
		key := listenerKey{event, fnObj}
		ids[key] = append(ids[key], id)
		mu.Unlock()
		return obj
	}

	remove := func(call goja.FunctionCall) goja.Value {
		event := call.Argument(0).String()
		fnObj, ok := call.Argument(1).(*goja.Object)
		if !ok {
			return obj
		}
		key := listenerKey{event, fnObj}
		mu.Lock()
		list := ids[key]
		if len(list) > 0 {
			em.Off(event, list[len(list)-1])
			ids[key] = list[:len(list)-1]
		}
		mu.Unlock()
		return obj
	}

	on := func(call goja.FunctionCall) goja.Value { return register(call, false) }
	_ = obj.Set("on", on)
	_ = obj.Set("addListener", on)
	_ = obj.Set("once", func(call goja.FunctionCall) goja.Value { return register(call, true) })
	_ = obj.Set("removeListener", remove)
	_ = obj.Set("off", remove)
	_ = obj.Set("removeAllListeners", func(call goja.FunctionCall) goja.Value {
		event := ""
		if a := call.Argument(0); !goja.IsUndefined(a) && !goja.IsNull(a) {
			event = a.String()
		}
		em.RemoveAllListeners(event)
		mu.Lock()
		for k := range ids {
			if event == "" || k.event == event {
				delete(ids, k)
			}
		}
		mu.Unlock()
		return obj
	})
	_ = obj.Set("listenerCount", func(event string) int {
		return em.ListenerCount(event)
	})
	_ = obj.Set("emit", func(call goja.FunctionCall) goja.Value {
		var args []any
		if len(call.Arguments) > 1 {
			for _, a := range call.Arguments[1:] {
				args = append(args, a)
			}
		}
		return b.rt.ToValue(em.Emit(call.Argument(0).String(), args...))
	})
}

// IsSet reports whether an argument was given a value other than undefined
// or null.
func IsSet(v goja.Value) bool {
	return v != nil && !goja.IsUndefined(v) && !goja.IsNull(v)
}
