package eventbus

import (
	"log/slog"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/nats-io/nats.go"
	"github.com/synadia-io/accessorhost/internal/jsbind"
	"github.com/synadia-io/accessorhost/internal/jsconv"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

const (
	ModuleName = "eventBus"

	defaultRequestTimeout = 2 * time.Second
)

// Loader exposes EventBus. Buses that do not name their own servers share
// nc when it is set.
func Loader(env modules.Env, nc *nats.Conn) require.ModuleLoader {
	env = env.WithDefaults()
	return func(rt *goja.Runtime, module *goja.Object) {
		b := jsbind.New(rt, env.Logger)
		exports := module.Get("exports").(*goja.Object)

		_ = exports.Set("EventBus", func(call goja.ConstructorCall) *goja.Object {
			opts := DefaultOptions()
			b.Options(call.Argument(0), &opts)
			ownServers := false
			if o, ok := call.Argument(0).(*goja.Object); ok {
				ownServers = jsbind.IsSet(o.Get("servers"))
			}

			bus, err := New(env, opts)
			if err != nil {
				b.Throw("%s", err)
			}

			obj := call.This
			b.Emitter(obj, bus.Emitter(), func(v any) (goja.Value, bool) {
				msg, ok := v.(Message)
				if !ok {
					return nil, false
				}
				m := rt.NewObject()
				_ = m.Set("topic", msg.Topic)
				_ = m.Set("data", jsconv.ToValue(rt, msg.Data))
				return m, true
			})

			check := func(err error) {
				if err != nil {
					b.Throw("%s", err)
				}
			}
			_ = obj.Set("publish", func(topic string, data goja.Value) {
				check(bus.Publish(topic, jsconv.ToTagged(rt, data, false)))
			})
			_ = obj.Set("subscribe", func(topic string) string {
				id, err := bus.Subscribe(topic)
				check(err)
				return id
			})
			_ = obj.Set("unsubscribe", bus.Unsubscribe)
			_ = obj.Set("request", func(call goja.FunctionCall) goja.Value {
				topic := call.Argument(0).String()
				timeout := defaultRequestTimeout
				if t := call.Argument(2); jsbind.IsSet(t) {
					timeout = time.Duration(t.ToInteger()) * time.Millisecond
				}
				cb := b.Callable(call.Argument(3), "request callback")
				err := bus.Request(topic, jsconv.ToTagged(rt, call.Argument(1), false), timeout, func(data any, err error) {
					var cbErr error
					if err != nil {
						_, cbErr = cb(goja.Undefined(), rt.ToValue(err.Error()), goja.Null())
					} else {
						_, cbErr = cb(goja.Undefined(), goja.Null(), jsconv.ToValue(rt, data))
					}
					if cbErr != nil {
						env.Logger.Error("request callback failed", slog.String("topic", topic), slog.Any("err", cbErr))
					}
				})
				check(err)
				return goja.Undefined()
			})
			_ = obj.Set("reply", func(topic string, fnVal goja.Value) {
				fn := b.Callable(fnVal, "reply handler")
				check(bus.Reply(topic, func(data any) (models.Token, error) {
					res, err := fn(goja.Undefined(), jsconv.ToValue(rt, data))
					if err != nil {
						return nil, err
					}
					return jsconv.ToTagged(rt, res, false), nil
				}))
			})
			_ = obj.Set("close", func() { _ = bus.Close() })

			if ownServers {
				bus.Open(nil)
			} else {
				bus.Open(nc)
			}
			return nil
		})
	}
}
