// Package convert maps tagged tokens to plain Go dynamic values and back.
//
// The dynamic domain is: nil (null), Undefined, bool, the Go numeric kinds,
// string, []byte, slices, map[string]any, time.Time, models.Entity,
// image.Image and anything that is already a models.Token. Both directions
// are total and never fail.
package convert

import (
	"bytes"
	"encoding/json"
	"image"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/synadia-io/accessorhost/models"
)

// UndefinedType is the type of Undefined.
type UndefinedType struct{}

// Undefined is the dynamic value for a script's undefined, which is
// different from null (a Go nil).
var Undefined = UndefinedType{}

const maxSafeInteger = 1 << 53

// ToDynamic converts a token into its dynamic form. Values that are not
// tokens are returned unchanged, as are token variants without a dynamic
// form (images, for example).
func ToDynamic(v any) any {
	t, ok := v.(models.Token)
	if !ok {
		return v
	}
	if t.IsNil() {
		return nil
	}

	switch tt := t.(type) {
	case models.DoubleToken:
		return float64(tt)
	case models.StringToken:
		return string(tt)
	case models.IntToken:
		return int64(tt)
	case models.UnsignedByteToken:
		return int64(tt)
	case models.LongToken:
		if tt >= -maxSafeInteger && tt <= maxSafeInteger {
			return int64(tt)
		}
		return tt
	case models.BooleanToken:
		return bool(tt)
	case models.BytesToken:
		return bytes.Clone(tt)
	case models.ArrayToken:
		out := make([]any, tt.Len())
		for i := range out {
			out[i] = ToDynamic(tt.Element(i))
		}
		return out
	case models.RecordToken:
		out := make(map[string]any, tt.Len())
		for _, label := range tt.Labels() {
			f, _ := tt.Get(label)
			out[label] = ToDynamic(f)
		}
		return out
	case models.DateToken:
		return tt.Time()
	case models.ActorToken:
		return tt.Entity
	case models.ObjectToken:
		return tt.Value
	default:
		return t
	}
}

// ToTagged converts a dynamic value into a token. When isJSON is set the
// value is rendered as JSON text and returned as a string token no matter
// what its shape is.
func ToTagged(v any, isJSON bool) models.Token {
	if isJSON {
		return models.StringToken(Stringify(v))
	}

	switch x := v.(type) {
	case models.Token:
		return x
	case nil, UndefinedType:
		return models.Nil
	case bool:
		return models.BooleanToken(x)
	case string:
		return models.StringToken(x)
	case float64:
		return FromFloat(x)
	case float32:
		return FromFloat(float64(x))
	case int:
		return FromInt(int64(x))
	case int8:
		return FromInt(int64(x))
	case int16:
		return FromInt(int64(x))
	case int32:
		return FromInt(int64(x))
	case int64:
		return FromInt(x)
	case uint:
		return fromUint(uint64(x))
	case uint8:
		return FromInt(int64(x))
	case uint16:
		return FromInt(int64(x))
	case uint32:
		return FromInt(int64(x))
	case uint64:
		return fromUint(x)
	case []byte:
		return models.BytesToken(bytes.Clone(x))
	case []any:
		return arrayOf(len(x), func(i int) any { return x[i] })
	case time.Time:
		return models.NewDateToken(x)
	case models.Entity:
		return models.ActorToken{Entity: x}
	case image.Image:
		return models.ImageToken{Image: x}
	case map[string]any:
		return recordOf(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return arrayOf(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			fields := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				fields[iter.Key().String()] = iter.Value().Interface()
			}
			return recordOf(fields)
		}
	}

	return models.ObjectToken{Value: v}
}

// FromFloat applies the numeric policy: integral values within the 32-bit
// signed range are ints, other integral values are longs (saturating at the
// int64 bounds) and everything else is a double.
func FromFloat(f float64) models.Token {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return models.DoubleToken(f)
	}
	if f >= math.MinInt32 && f <= math.MaxInt32 {
		return models.IntToken(int32(f))
	}
	switch {
	case f >= math.MaxInt64:
		return models.LongToken(math.MaxInt64)
	case f <= math.MinInt64:
		return models.LongToken(math.MinInt64)
	}
	return models.LongToken(int64(f))
}

// FromInt is FromFloat for values that are already integers.
func FromInt(i int64) models.Token {
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return models.IntToken(int32(i))
	}
	return models.LongToken(i)
}

func fromUint(u uint64) models.Token {
	if u > math.MaxInt64 {
		return models.DoubleToken(float64(u))
	}
	return FromInt(int64(u))
}

func arrayOf(n int, at func(int) any) models.Token {
	if n == 0 {
		return models.NewArrayToken(models.TypeString, nil)
	}
	elems := make([]models.Token, n)
	for i := range elems {
		elems[i] = ToTagged(at(i), false)
	}
	return models.NewArrayToken(models.TypeGeneral, elems)
}

func recordOf(m map[string]any) models.Token {
	fields := make(map[string]models.Token, len(m))
	for k, v := range m {
		fields[k] = ToTagged(v, false)
	}
	return models.NewRecordToken(fields)
}

// Stringify renders a dynamic value as JSON text the way a script engine's
// JSON.stringify would: undefined record fields are omitted, undefined array
// elements and non-finite numbers become null, dates become ISO strings and
// HTML characters are not escaped. Values that cannot be rendered produce
// "null".
func Stringify(v any) string {
	norm, ok := jsonable(v)
	if !ok {
		return "null"
	}

	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm); err != nil {
		return "null"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// jsonable reports false for values JSON.stringify would skip entirely.
func jsonable(v any) (any, bool) {
	if t, ok := v.(models.Token); ok {
		if _, isImage := t.(models.ImageToken); !isImage {
			v = ToDynamic(t)
		}
	}

	switch x := v.(type) {
	case nil:
		return nil, true
	case UndefinedType:
		return nil, false
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, true
		}
		return x, true
	case float32:
		return jsonable(float64(x))
	case bool, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return x, true
	case time.Time:
		return x.UTC().Format("2006-01-02T15:04:05.000Z"), true
	case []byte:
		// an ArrayBuffer has no enumerable fields
		return map[string]any{}, true
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			n, ok := jsonable(e)
			if !ok {
				n = nil
			}
			out[i] = n
		}
		return out, true
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			if n, ok := jsonable(e); ok {
				out[k] = n
			}
		}
		return out, true
	case models.LongToken:
		return int64(x), true
	case models.Entity:
		return x.FullName(), true
	case models.Token:
		return x.String(), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan:
		return nil, false
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return jsonable(items)
	}
	return v, true
}
