package discovery

import (
	"context"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/synadia-io/accessorhost/internal/jsbind"
	"github.com/synadia-io/accessorhost/modules"
)

const ModuleName = "discovery"

// Loader exposes DiscoveryService. A nil prober uses ExecProber.
func Loader(env modules.Env, prober Prober) require.ModuleLoader {
	env = env.WithDefaults()
	return func(rt *goja.Runtime, module *goja.Object) {
		b := jsbind.New(rt, env.Logger)
		exports := module.Get("exports").(*goja.Object)

		_ = exports.Set("DiscoveryService", func(call goja.ConstructorCall) *goja.Object {
			opts := DefaultOptions()
			b.Options(call.Argument(0), &opts)
			svc := NewService(env, prober, opts)

			obj := call.This
			b.Emitter(obj, svc.Emitter(), func(v any) (goja.Value, bool) {
				devices, ok := v.([]Device)
				if !ok {
					return nil, false
				}
				items := make([]any, len(devices))
				for i, d := range devices {
					o := rt.NewObject()
					_ = o.Set("ip", d.IP)
					_ = o.Set("mac", d.MAC)
					_ = o.Set("name", d.Name)
					items[i] = o
				}
				return rt.NewArray(items...), true
			})

			_ = obj.Set("discoverDevices", func(call goja.FunctionCall) goja.Value {
				subnet := ""
				if a := call.Argument(0); jsbind.IsSet(a) {
					subnet = a.String()
				}
				if err := svc.DiscoverDevices(subnet); err != nil {
					b.Throw("%s", err)
				}
				return goja.Undefined()
			})
			_ = obj.Set("getHostAddress", func() string {
				ip, err := svc.HostAddress()
				if err != nil {
					b.Throw("%s", err)
				}
				return ip
			})
			_ = obj.Set("getMacAddress", func(ip string) string {
				mac, err := svc.MacAddress(context.Background(), ip)
				if err != nil {
					b.Throw("%s", err)
				}
				return mac
			})
			_ = obj.Set("close", func() { _ = svc.Close() })
			return nil
		})
	}
}
