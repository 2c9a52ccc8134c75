package builtins

import (
	"context"
	"log/slog"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/synadia-io/accessorhost/internal/jsbind"
	"github.com/synadia-io/accessorhost/internal/jsconv"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

const ModuleName = "hostServices"

// Loader exposes the builtin host services of a remote host. Every call is
// asynchronous and ends in a Node style callback, cb(err, result).
func Loader(env modules.Env, client *BuiltinServicesClient) require.ModuleLoader {
	env = env.WithDefaults()
	return func(rt *goja.Runtime, module *goja.Object) {
		b := jsbind.New(rt, env.Logger)
		exports := module.Get("exports").(*goja.Object)

		// async runs work off the loop and hands its result to cb on it
		async := func(what string, cbVal goja.Value, work func(context.Context) (any, error)) {
			var cb goja.Callable
			if jsbind.IsSet(cbVal) {
				cb = b.Callable(cbVal, what+" callback")
			}
			go func() {
				res, err := work(context.Background())
				env.Dispatcher.Dispatch(func() {
					if cb == nil {
						if err != nil {
							env.Logger.Warn("host service call failed", slog.String("call", what), slog.Any("err", err))
						}
						return
					}
					var cbErr error
					if err != nil {
						_, cbErr = cb(goja.Undefined(), rt.ToValue(err.Error()), goja.Null())
					} else {
						_, cbErr = cb(goja.Undefined(), goja.Null(), jsconv.ToValue(rt, res))
					}
					if cbErr != nil {
						env.Logger.Error("host service callback failed", slog.String("call", what), slog.Any("err", cbErr))
					}
				})
			}()
		}

		payload := func(v goja.Value) []byte {
			if !jsbind.IsSet(v) {
				return nil
			}
			switch t := jsconv.ToTagged(rt, v, false).(type) {
			case models.BytesToken:
				return t
			case models.StringToken:
				return []byte(t)
			default:
				return []byte(jsconv.Stringify(rt, v))
			}
		}

		// http(method, url, {headers, body}, cb)
		_ = exports.Set("http", func(call goja.FunctionCall) goja.Value {
			method := call.Argument(0).String()
			url := call.Argument(1).String()
			headers := map[string]string{}
			var body []byte
			if o, ok := call.Argument(2).(*goja.Object); ok {
				if h, ok := o.Get("headers").(*goja.Object); ok {
					for _, k := range h.Keys() {
						headers[k] = h.Get(k).String()
					}
				}
				body = payload(o.Get("body"))
			}
			async("http", call.Argument(3), func(ctx context.Context) (any, error) {
				resp, err := client.HTTPRequest(ctx, method, url, headers, body)
				if err != nil {
					return nil, err
				}
				hdrs := make(map[string]any, len(resp.Headers))
				for k, v := range resp.Headers {
					hdrs[k] = v
				}
				return map[string]any{
					"statusCode":    resp.Status,
					"statusMessage": resp.StatusMessage,
					"headers":       hdrs,
					"body":          string(resp.Body),
				}, nil
			})
			return goja.Undefined()
		})

		_ = exports.Set("discover", func(subnet string, cb goja.Value) {
			async("discover", cb, func(ctx context.Context) (any, error) {
				devices, err := client.Discover(ctx, subnet)
				if err != nil {
					return nil, err
				}
				out := make([]any, len(devices))
				for i, d := range devices {
					out[i] = map[string]any{"ip": d.IP, "mac": d.MAC, "name": d.Name}
				}
				return out, nil
			})
		})

		_ = exports.Set("hostAddress", func(cb goja.Value) {
			async("hostAddress", cb, func(ctx context.Context) (any, error) {
				return client.HostAddress(ctx)
			})
		})

		_ = exports.Set("publish", func(topic string, data, cb goja.Value) {
			p := payload(data)
			async("publish", cb, func(ctx context.Context) (any, error) {
				return nil, client.BusPublish(ctx, topic, p)
			})
		})

		// request(topic, data, timeoutMs, cb)
		_ = exports.Set("request", func(call goja.FunctionCall) goja.Value {
			topic := call.Argument(0).String()
			p := payload(call.Argument(1))
			var timeout time.Duration
			if t := call.Argument(2); jsbind.IsSet(t) {
				timeout = time.Duration(t.ToInteger()) * time.Millisecond
			}
			async("request", call.Argument(3), func(ctx context.Context) (any, error) {
				reply, err := client.BusRequest(ctx, topic, p, timeout)
				if err != nil {
					return nil, err
				}
				return string(reply), nil
			})
			return goja.Undefined()
		})
	}
}
