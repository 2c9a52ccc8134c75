package socket

import (
	"context"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/synadia-io/accessorhost/internal/jsbind"
	"github.com/synadia-io/accessorhost/internal/jsconv"
	"github.com/synadia-io/accessorhost/modules"
)

// ModuleName is the name scripts require.
const ModuleName = "socket"

// Loader exposes SocketClient and SocketServer to scripts.
func Loader(env modules.Env, transport Transport) require.ModuleLoader {
	env = env.WithDefaults()
	return func(rt *goja.Runtime, module *goja.Object) {
		b := jsbind.New(rt, env.Logger)
		exports := module.Get("exports").(*goja.Object)

		_ = exports.Set("supportedReceiveTypes", ReceiveTypes)
		_ = exports.Set("supportedSendTypes", SendTypes)

		_ = exports.Set("SocketClient", func(call goja.ConstructorCall) *goja.Object {
			port := DefaultPort
			if a := call.Argument(0); jsbind.IsSet(a) {
				port = int(a.ToInteger())
			}
			host := DefaultHost
			if a := call.Argument(1); jsbind.IsSet(a) {
				host = a.String()
			}
			opts := DefaultClientOptions()
			b.Options(call.Argument(2), &opts)

			client, err := NewClient(env, transport, port, host, opts)
			if err != nil {
				b.Throw("%s", err)
			}

			obj := call.This
			b.Emitter(obj, client.Emitter())
			_ = obj.Set("send", func(v goja.Value) {
				if err := client.Send(jsconv.ToTagged(rt, v, false)); err != nil {
					b.Throw("%s", err)
				}
			})
			_ = obj.Set("close", func() { _ = client.Close() })
			_ = obj.Set("isOpen", client.IsOpen)

			client.Connect()
			return nil
		})

		_ = exports.Set("SocketServer", func(call goja.ConstructorCall) *goja.Object {
			opts := DefaultServerOptions()
			b.Options(call.Argument(0), &opts)

			server, err := NewServer(env, transport, opts)
			if err != nil {
				b.Throw("%s", err)
			}

			obj := call.This
			b.Emitter(obj, server.Emitter(), func(v any) (goja.Value, bool) {
				sock, ok := v.(*Socket)
				if !ok {
					return nil, false
				}
				return socketObject(b, sock), true
			})
			_ = obj.Set("start", func() { _ = server.Start(context.Background()) })
			_ = obj.Set("close", func() { _ = server.Close() })
			return nil
		})
	}
}

func socketObject(b *jsbind.Binder, sock *Socket) *goja.Object {
	rt := b.Runtime()
	obj := rt.NewObject()
	b.Emitter(obj, sock.Emitter())
	_ = obj.Set("send", func(v goja.Value) {
		if err := sock.Send(jsconv.ToTagged(rt, v, false)); err != nil {
			b.Throw("%s", err)
		}
	})
	_ = obj.Set("close", func() { _ = sock.Close() })
	_ = obj.Set("isOpen", sock.IsOpen)
	_ = obj.Set("remoteHost", sock.RemoteHost)
	_ = obj.Set("remotePort", sock.RemotePort)
	return obj
}
