package imagefilters

import (
	"image"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/synadia-io/accessorhost/internal/imagecodec"
	"github.com/synadia-io/accessorhost/internal/jsbind"
	"github.com/synadia-io/accessorhost/internal/jsconv"
	"github.com/synadia-io/accessorhost/models"
	"github.com/synadia-io/accessorhost/modules"
)

const ModuleName = "imageFilters"

func Loader(env modules.Env) require.ModuleLoader {
	env = env.WithDefaults()
	return func(rt *goja.Runtime, module *goja.Object) {
		b := jsbind.New(rt, env.Logger)
		exports := module.Get("exports").(*goja.Object)

		imageArg := func(v goja.Value) image.Image {
			switch x := jsconv.ToTagged(rt, v, false).(type) {
			case models.ImageToken:
				if x.Image != nil {
					return x.Image
				}
			case models.BytesToken:
				img, _, err := imagecodec.Decode(x)
				if err != nil {
					b.Throw("cannot decode image: %s", err)
				}
				return img
			}
			b.Throw("expected an image")
			return nil
		}

		_ = exports.Set("filters", func() []string { return Filters() })
		_ = exports.Set("filter", func(call goja.FunctionCall) goja.Value {
			img := imageArg(call.Argument(0))
			name := call.Argument(1).String()
			overrides := make(map[string]any)
			if o, ok := call.Argument(2).(*goja.Object); ok {
				for _, k := range o.Keys() {
					overrides[k] = o.Get(k).Export()
				}
			}
			out, err := Apply(img, name, overrides)
			if err != nil {
				b.Throw("%s", err)
			}
			return jsconv.ToValue(rt, models.ImageToken{Image: out})
		})
		_ = exports.Set("decode", func(v goja.Value) goja.Value {
			return jsconv.ToValue(rt, models.ImageToken{Image: imageArg(v)})
		})
		_ = exports.Set("encode", func(v goja.Value, format string) goja.Value {
			data, err := imagecodec.Encode(imageArg(v), format)
			if err != nil {
				b.Throw("%s", err)
			}
			return jsconv.ToValue(rt, data)
		})
		_ = exports.Set("size", func(v goja.Value) goja.Value {
			r := imageArg(v).Bounds()
			obj := rt.NewObject()
			_ = obj.Set("width", r.Dx())
			_ = obj.Set("height", r.Dy())
			return obj
		})
	}
}
