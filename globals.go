package accessorhost

import (
	"time"

	"github.com/dop251/goja"
	"github.com/synadia-io/accessorhost/internal/actor"
	"github.com/synadia-io/accessorhost/internal/jsbind"
	"github.com/synadia-io/accessorhost/internal/jsconv"
	"github.com/synadia-io/accessorhost/models"
)

// installGlobals defines the top level functions an accessor script calls.
// The same functions are on the object lifecycle hooks see as this.
func (h *Host) installGlobals(rt *goja.Runtime) error {
	b := jsbind.New(rt, h.logger)

	nameArg := func(v goja.Value, what string) string {
		s, ok := v.Export().(string)
		if !ok {
			b.Throw("%s argument is required to be a string. Got: %s", what, typeOf(v))
		}
		return s
	}

	declare := func(kind actor.Kind) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			name := nameArg(call.Argument(0), "name")
			opts := endpointOptions(rt, call.Argument(1))
			if _, err := h.actor.Declare(kind, name, opts); err != nil {
				b.Throw("%s", err)
			}
			return goja.Undefined()
		}
	}

	fns := map[string]any{
		"input":     declare(actor.KindInput),
		"output":    declare(actor.KindOutput),
		"parameter": declare(actor.KindParameter),

		"getParameter": func(call goja.FunctionCall) goja.Value {
			name := nameArg(call.Argument(0), "name")
			t, err := h.actor.GetValue(name)
			if err != nil {
				b.Throw("No such parameter: %s", name)
			}
			return tokenValue(rt, t)
		},

		"get": func(call goja.FunctionCall) goja.Value {
			name := nameArg(call.Argument(0), "name")
			ep, ok := h.actor.Endpoint(name)
			if !ok || ep.Kind != actor.KindInput {
				b.Throw("No such input: %s", name)
			}
			t, _ := h.actor.GetValue(name)
			if s, isString := t.(models.StringToken); isString && ep.IsJSON {
				if v, err := jsconv.Parse(rt, string(s)); err == nil {
					return v
				}
			}
			return tokenValue(rt, t)
		},

		"send": func(call goja.FunctionCall) goja.Value {
			name := nameArg(call.Argument(0), "name")
			ep, ok := h.actor.Endpoint(name)
			if !ok || ep.Kind == actor.KindParameter {
				h.reportError("No such port: " + name)
				return goja.Undefined()
			}
			channel := 0
			if c := call.Argument(2); jsbind.IsSet(c) {
				channel = int(c.ToInteger())
			}
			t := jsconv.ToTagged(rt, call.Argument(1), ep.IsJSON)
			if ep.Kind == actor.KindInput {
				// the accessor sees its own input after this callback
				h.loop.Dispatch(func() {
					err := h.actor.Send(name, channel, t)
					if err == nil {
						err = h.react(h.ctx, name)
					}
					if err != nil {
						h.reportError(err.Error())
					}
				})
				return goja.Undefined()
			}
			if err := h.actor.Send(name, channel, t); err != nil {
				h.reportError(err.Error())
			}
			return goja.Undefined()
		},

		"setDefault": func(call goja.FunctionCall) goja.Value {
			name := nameArg(call.Argument(0), "input")
			ep, ok := h.actor.Endpoint(name)
			if !ok || ep.Kind != actor.KindInput {
				h.reportError("No such input: " + name)
				return goja.Undefined()
			}
			_ = h.actor.SetValue(name, jsconv.ToTagged(rt, call.Argument(1), ep.IsJSON))
			return goja.Undefined()
		},

		"setParameter": h.setParameter(rt, nameArg),
		"set":          h.setParameter(rt, nameArg),

		"error": func(call goja.FunctionCall) goja.Value {
			h.reportError(call.Argument(0).String())
			return goja.Undefined()
		},

		"addInputHandler": func(call goja.FunctionCall) goja.Value {
			input := ""
			if n := call.Argument(0); jsbind.IsSet(n) {
				input = nameArg(n, "input")
				if ep, ok := h.actor.Endpoint(input); !ok || ep.Kind != actor.KindInput {
					b.Throw("No such input: %s", input)
				}
			}
			fn := b.Callable(call.Argument(1), "input handler")
			var args []goja.Value
			if len(call.Arguments) > 2 {
				args = append(args, call.Arguments[2:]...)
			}
			return rt.ToValue(h.handlers.add(input, fn, args))
		},

		"removeInputHandler": func(handle string) bool {
			return h.handlers.remove(handle)
		},

		"setTimeout":    h.schedule(b, false),
		"setInterval":   h.schedule(b, true),
		"clearTimeout":  func(id int64) { h.timers.clear(id) },
		"clearInterval": func(id int64) { h.timers.clear(id) },
	}

	for name, fn := range fns {
		if err := rt.Set(name, fn); err != nil {
			return err
		}
		if err := h.this.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) setParameter(rt *goja.Runtime, nameArg func(goja.Value, string) string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		name := nameArg(call.Argument(0), "parameter")
		ep, ok := h.actor.Endpoint(name)
		if !ok || ep.Kind != actor.KindParameter {
			h.reportError("No such parameter: " + name)
			return goja.Undefined()
		}
		_ = h.actor.SetValue(name, jsconv.ToTagged(rt, call.Argument(1), ep.IsJSON))
		return goja.Undefined()
	}
}

// schedule backs setTimeout and setInterval. Extra arguments are passed to
// the callback.
func (h *Host) schedule(b *jsbind.Binder, repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn := b.Callable(call.Argument(0), "timer callback")
		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}
		run := func() {
			if _, err := fn(goja.Undefined(), args...); err != nil {
				h.reportError("timer callback failed: " + err.Error())
			}
		}
		return b.Runtime().ToValue(h.timers.add(delay, repeat, run))
	}
}

func endpointOptions(rt *goja.Runtime, v goja.Value) actor.EndpointOptions {
	var opts actor.EndpointOptions
	obj, ok := v.(*goja.Object)
	if !ok || !jsbind.IsSet(v) {
		return opts
	}
	if t := obj.Get("type"); jsbind.IsSet(t) {
		opts.Type = t.String()
	}
	if d := obj.Get("description"); jsbind.IsSet(d) {
		opts.Description = d.String()
	}
	if vis := obj.Get("visibility"); jsbind.IsSet(vis) {
		opts.Visibility = vis.String()
	}
	isJSON := opts.Type == "JSON" || opts.Type == "json"
	if val := obj.Get("value"); jsbind.IsSet(val) {
		opts.Value = jsconv.ToTagged(rt, val, isJSON)
	}
	if choices, ok := obj.Get("options").(*goja.Object); ok {
		if arr, ok := jsconv.ToTagged(rt, choices, false).(models.ArrayToken); ok {
			opts.Options = arr.Elements()
		}
	}
	return opts
}

func tokenValue(rt *goja.Runtime, t models.Token) goja.Value {
	if t == nil {
		return goja.Null()
	}
	return jsconv.ToValue(rt, t)
}

func typeOf(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "undefined"
	case goja.IsNull(v):
		return "object"
	}
	if _, ok := goja.AssertFunction(v); ok {
		return "function"
	}
	switch v.Export().(type) {
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	case string:
		return "string"
	}
	return "object"
}
