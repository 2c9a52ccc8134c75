package audio

import (
	"strconv"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/synadia-io/accessorhost/internal/jsbind"
	"github.com/synadia-io/accessorhost/internal/jsconv"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

const ModuleName = "audio"

// Loader exposes Player, Capture and the WAV helpers. A nil devices uses
// WAV files.
func Loader(env modules.Env, devices Devices) require.ModuleLoader {
	env = env.WithDefaults()
	return func(rt *goja.Runtime, module *goja.Object) {
		b := jsbind.New(rt, env.Logger)
		exports := module.Get("exports").(*goja.Object)

		samplesArg := func(v goja.Value) []float64 {
			obj, ok := v.(*goja.Object)
			if !ok || obj.ClassName() != "Array" {
				b.Throw("samples must be an array of numbers")
			}
			n := int(obj.Get("length").ToInteger())
			out := make([]float64, n)
			for i := range out {
				out[i] = obj.Get(strconv.Itoa(i)).ToFloat()
			}
			return out
		}
		samplesValue := func(v any) (goja.Value, bool) {
			samples, ok := v.([]float64)
			if !ok {
				return nil, false
			}
			items := make([]any, len(samples))
			for i, s := range samples {
				items[i] = s
			}
			return rt.NewArray(items...), true
		}

		_ = exports.Set("Player", func(call goja.ConstructorCall) *goja.Object {
			opts := DefaultOptions()
			b.Options(call.Argument(0), &opts)
			p, err := NewPlayer(env, devices, opts)
			if err != nil {
				b.Throw("%s", err)
			}
			obj := call.This
			b.Emitter(obj, p.Emitter())
			_ = obj.Set("play", func(v goja.Value) {
				if err := p.Play(samplesArg(v)); err != nil {
					b.Throw("%s", err)
				}
			})
			_ = obj.Set("stop", func() { _ = p.Stop() })
			return nil
		})

		_ = exports.Set("Capture", func(call goja.ConstructorCall) *goja.Object {
			opts := DefaultOptions()
			b.Options(call.Argument(0), &opts)
			c, err := NewCapture(env, devices, opts)
			if err != nil {
				b.Throw("%s", err)
			}
			obj := call.This
			b.Emitter(obj, c.Emitter(), samplesValue)
			_ = obj.Set("start", func() {
				if err := c.Start(); err != nil {
					b.Throw("%s", err)
				}
			})
			_ = obj.Set("stop", func() { _ = c.Stop() })
			return nil
		})

		_ = exports.Set("tone", func(call goja.FunctionCall) goja.Value {
			rate := DefaultOptions().SampleRate
			if a := call.Argument(2); jsbind.IsSet(a) {
				rate = int(a.ToInteger())
			}
			if rate <= 0 {
				b.Throw("invalid sample rate %d", rate)
			}
			v, _ := samplesValue(Tone(call.Argument(0).ToFloat(), int(call.Argument(1).ToInteger()), rate))
			return v
		})
		_ = exports.Set("encodeWAV", func(samples, options goja.Value) goja.Value {
			opts := DefaultOptions()
			b.Options(options, &opts)
			data, err := EncodeWAV(samplesArg(samples), opts.Format())
			if err != nil {
				b.Throw("%s", err)
			}
			return jsconv.ToValue(rt, data)
		})
		_ = exports.Set("decodeWAV", func(v goja.Value) goja.Value {
			raw, ok := jsconv.ToTagged(rt, v, false).(models.BytesToken)
			if !ok {
				b.Throw("decodeWAV expects an ArrayBuffer")
			}
			samples, f, err := DecodeWAV(raw)
			if err != nil {
				b.Throw("%s", err)
			}
			obj := rt.NewObject()
			s, _ := samplesValue(samples)
			_ = obj.Set("samples", s)
			_ = obj.Set("sampleRate", f.SampleRate)
			_ = obj.Set("channels", f.Channels)
			_ = obj.Set("bitsPerSample", f.BitsPerSample)
			return obj
		})
	}
}
