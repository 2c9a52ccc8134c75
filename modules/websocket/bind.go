package websocket

import (
	"context"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/synadia-io/accessorhost/internal/jsbind"
	"github.com/synadia-io/accessorhost/internal/jsconv"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

const ModuleName = "webSocket"

// Loader exposes Client and Server to scripts. Values sent as JSON are
// rendered with the runtime's own JSON.stringify.
func Loader(env modules.Env) require.ModuleLoader {
	env = env.WithDefaults()
	return func(rt *goja.Runtime, module *goja.Object) {
		b := jsbind.New(rt, env.Logger)
		exports := module.Get("exports").(*goja.Object)

		_ = exports.Set("Client", func(call goja.ConstructorCall) *goja.Object {
			opts := DefaultClientOptions()
			b.Options(call.Argument(0), &opts)
			client, err := NewClient(env, opts)
			if err != nil {
				b.Throw("%s", err)
			}

			obj := call.This
			b.Emitter(obj, client.Emitter())
			_ = obj.Set("send", func(v goja.Value) {
				if err := client.Send(outgoing(rt, v, opts.SendType)); err != nil {
					b.Throw("%s", err)
				}
			})
			_ = obj.Set("close", func() { _ = client.Close() })
			_ = obj.Set("isOpen", client.IsOpen)

			client.Connect()
			return nil
		})

		_ = exports.Set("Server", func(call goja.ConstructorCall) *goja.Object {
			opts := DefaultServerOptions()
			b.Options(call.Argument(0), &opts)
			server, err := NewServer(env, opts)
			if err != nil {
				b.Throw("%s", err)
			}

			obj := call.This
			b.Emitter(obj, server.Emitter(), func(v any) (goja.Value, bool) {
				sock, ok := v.(*Socket)
				if !ok {
					return nil, false
				}
				return socketObject(b, sock, opts.SendType), true
			})
			_ = obj.Set("start", func() { _ = server.Start(context.Background()) })
			_ = obj.Set("close", func() { _ = server.Close() })
			return nil
		})
	}
}

// outgoing pre-renders JSON in the runtime so the text matches what the
// script's own JSON.stringify would produce.
func outgoing(rt *goja.Runtime, v goja.Value, sendType string) models.Token {
	if sendType == TypeJSON {
		return jsonText(jsconv.Stringify(rt, v))
	}
	return jsconv.ToTagged(rt, v, false)
}

func socketObject(b *jsbind.Binder, sock *Socket, sendType string) *goja.Object {
	rt := b.Runtime()
	obj := rt.NewObject()
	b.Emitter(obj, sock.Emitter())
	_ = obj.Set("send", func(v goja.Value) {
		if err := sock.Send(outgoing(rt, v, sendType)); err != nil {
			b.Throw("%s", err)
		}
	})
	_ = obj.Set("close", func() { _ = sock.Close() })
	_ = obj.Set("isOpen", sock.IsOpen)
	_ = obj.Set("remoteAddress", sock.RemoteAddress)
	return obj
}
