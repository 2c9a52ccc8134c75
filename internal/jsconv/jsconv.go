// Package jsconv bridges tokens and goja values. It follows the same rules
// as package convert, using the runtime's own JSON.stringify for textual
// conversion.
package jsconv

import (
	"bytes"
	"image"
	"slices"
	"strconv"
	"time"

	"github.com/dop251/goja"
	"github.com/synadia-io/accessorhost/internal/convert"
	"github.com/synadia-io/accessorhost/models"
)

// ToValue converts a token or dynamic Go value into a script value.
func ToValue(rt *goja.Runtime, v any) goja.Value {
	if gv, ok := v.(goja.Value); ok {
		return gv
	}
	return fromDynamic(rt, convert.ToDynamic(v))
}

func fromDynamic(rt *goja.Runtime, d any) goja.Value {
	switch x := d.(type) {
	case nil:
		return goja.Null()
	case convert.UndefinedType:
		return goja.Undefined()
	case goja.Value:
		return x
	case models.Token:
		// variants without a dynamic form travel as host objects
		if tok, ok := x.(models.LongToken); ok {
			return rt.ToValue(int64(tok))
		}
		return rt.ToValue(x)
	case []byte:
		return rt.ToValue(rt.NewArrayBuffer(bytes.Clone(x)))
	case time.Time:
		return newDate(rt, x)
	case []any:
		items := make([]any, len(x))
		for i, e := range x {
			items[i] = fromDynamic(rt, convert.ToDynamic(e))
		}
		return rt.NewArray(items...)
	case map[string]any:
		obj := rt.NewObject()
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			_ = obj.Set(k, fromDynamic(rt, convert.ToDynamic(x[k])))
		}
		return obj
	default:
		return rt.ToValue(x)
	}
}

func newDate(rt *goja.Runtime, t time.Time) goja.Value {
	ctor := rt.Get("Date")
	obj, err := rt.New(ctor, rt.ToValue(t.UnixMilli()))
	if err != nil {
		return rt.ToValue(t)
	}
	return obj
}

// ToTagged converts a script value into a token. It never throws; values
// with no tagged shape are wrapped in an ObjectToken.
func ToTagged(rt *goja.Runtime, v goja.Value, isJSON bool) models.Token {
	if isJSON {
		return models.StringToken(Stringify(rt, v))
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return models.Nil
	}

	obj, isObject := v.(*goja.Object)
	if !isObject {
		switch x := v.Export().(type) {
		case int64:
			return convert.FromInt(x)
		case float64:
			return convert.FromFloat(x)
		case string:
			return models.StringToken(x)
		case bool:
			return models.BooleanToken(x)
		default:
			return models.ObjectToken{Value: x}
		}
	}

	switch obj.ClassName() {
	case "Array":
		n := int(obj.Get("length").ToInteger())
		if n == 0 {
			return models.NewArrayToken(models.TypeString, nil)
		}
		elems := make([]models.Token, n)
		for i := range elems {
			elems[i] = ToTagged(rt, obj.Get(strconv.Itoa(i)), false)
		}
		return models.NewArrayToken(models.TypeGeneral, elems)
	case "Date":
		if t, ok := obj.Export().(time.Time); ok {
			return models.NewDateToken(t)
		}
		return models.NewDateToken(time.UnixMilli(obj.ToInteger()))
	case "Function":
		return models.ObjectToken{Value: obj}
	}

	exported := obj.Export()
	switch x := exported.(type) {
	case models.Token:
		return x
	case goja.ArrayBuffer:
		return models.BytesToken(bytes.Clone(x.Bytes()))
	case models.Entity:
		return models.ActorToken{Entity: x}
	case image.Image:
		return models.ImageToken{Image: x}
	case map[string]any:
		if obj.ClassName() != "Object" {
			break
		}
		fields := make(map[string]models.Token)
		for _, k := range obj.Keys() {
			fields[k] = ToTagged(rt, obj.Get(k), false)
		}
		return models.NewRecordToken(fields)
	}

	// Go values handed to the runtime earlier come back through the
	// plain converter.
	return convert.ToTagged(exported, false)
}

// Stringify runs the runtime's JSON.stringify. Values it cannot render
// (undefined, functions) give "null".
func Stringify(rt *goja.Runtime, v goja.Value) string {
	if v == nil {
		return "null"
	}
	jsonObj := rt.Get("JSON").ToObject(rt)
	stringify, ok := goja.AssertFunction(jsonObj.Get("stringify"))
	if !ok {
		return convert.Stringify(v.Export())
	}
	res, err := stringify(jsonObj, v)
	if err != nil || res == nil || goja.IsUndefined(res) {
		return "null"
	}
	return res.String()
}

// Parse runs the runtime's JSON.parse.
func Parse(rt *goja.Runtime, text string) (goja.Value, error) {
	jsonObj := rt.Get("JSON").ToObject(rt)
	parse, _ := goja.AssertFunction(jsonObj.Get("parse"))
	return parse(jsonObj, rt.ToValue(text))
}

// Export converts a script value into the dynamic Go domain.
func Export(rt *goja.Runtime, v goja.Value) any {
	if v == nil || goja.IsUndefined(v) {
		return convert.Undefined
	}
	return convert.ToDynamic(ToTagged(rt, v, false))
}
