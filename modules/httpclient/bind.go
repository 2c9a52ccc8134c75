package httpclient

import (
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/synadia-io/accessorhost/internal/jsbind"
	"github.com/synadia-io/accessorhost/internal/jsconv"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

const ModuleName = "httpClient"

// Loader exposes request, get, post and put. A nil doer sends requests
// over the network.
func Loader(env modules.Env, doer Doer) require.ModuleLoader {
	env = env.WithDefaults()
	return func(rt *goja.Runtime, module *goja.Object) {
		b := jsbind.New(rt, env.Logger)
		client := NewClient(env, doer)
		exports := module.Get("exports").(*goja.Object)

		send := func(method string, end bool) func(goja.FunctionCall) goja.Value {
			return func(call goja.FunctionCall) goja.Value {
				opts := scriptOptions(b, call.Argument(0))
				if method != "" {
					opts.Method = method
				}
				req, err := client.Request(opts)
				if err != nil {
					b.Throw("%s", err)
				}
				obj := requestObject(b, req)
				if cb := call.Argument(1); jsbind.IsSet(cb) {
					once, _ := goja.AssertFunction(obj.Get("once"))
					if _, err := once(obj, rt.ToValue("response"), cb); err != nil {
						panic(err)
					}
				}
				if end {
					req.End()
				}
				return obj
			}
		}

		_ = exports.Set("request", send("", false))
		_ = exports.Set("get", send("", true))
		_ = exports.Set("post", send("POST", true))
		_ = exports.Set("put", send("PUT", true))
	}
}

func scriptOptions(b *jsbind.Binder, v goja.Value) Options {
	rt := b.Runtime()
	if !jsbind.IsSet(v) {
		b.Throw("request options are required")
	}
	obj, isObject := v.(*goja.Object)
	if !isObject {
		opts, err := ParseOptions(v.String())
		if err != nil {
			b.Throw("%s", err)
		}
		return opts
	}

	fields := make(map[string]any)
	for _, k := range obj.Keys() {
		if k == "body" {
			continue
		}
		if fv := obj.Get(k); !goja.IsUndefined(fv) {
			fields[k] = fv.Export()
		}
	}
	opts, err := ParseOptions(fields)
	if err != nil {
		b.Throw("%s", err)
	}
	if body := obj.Get("body"); jsbind.IsSet(body) {
		opts.Body = jsconv.ToTagged(rt, body, false)
	}
	return opts
}

func requestObject(b *jsbind.Binder, req *Request) *goja.Object {
	rt := b.Runtime()
	obj := rt.NewObject()
	b.Emitter(obj, req.Emitter(), func(v any) (goja.Value, bool) {
		msg, ok := v.(*IncomingMessage)
		if !ok {
			return nil, false
		}
		return messageObject(rt, msg), true
	})
	_ = obj.Set("write", func(v goja.Value) {
		if err := req.Write(jsconv.ToTagged(rt, v, false)); err != nil {
			req.Emitter().Emit(models.EventError, err.Error())
		}
	})
	_ = obj.Set("end", req.End)
	_ = obj.Set("stop", req.Stop)
	return obj
}

func messageObject(rt *goja.Runtime, msg *IncomingMessage) *goja.Object {
	obj := rt.NewObject()
	_ = obj.Set("body", jsconv.ToValue(rt, msg.Body))
	cookies := make([]any, len(msg.Cookies))
	for i, c := range msg.Cookies {
		cookies[i] = c
	}
	_ = obj.Set("cookies", rt.NewArray(cookies...))
	headers := rt.NewObject()
	for k, v := range msg.Headers {
		_ = headers.Set(k, v)
	}
	_ = obj.Set("headers", headers)
	_ = obj.Set("statusCode", msg.StatusCode)
	_ = obj.Set("statusMessage", msg.StatusMessage)
	return obj
}
