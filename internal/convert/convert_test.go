package convert

import (
	"image"
	"math"
	"testing"
	"time"

	"github.com/carlmjohnson/be"
	"github.com/synadia-io/accessorhost/models"
)

type testEntity struct{ name string }

func (e *testEntity) FullName() string { return "." + e.name }

func TestNumericPolicy(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want models.Token
	}{
		{"zero", 0.0, models.IntToken(0)},
		{"max int32", float64(math.MaxInt32), models.IntToken(math.MaxInt32)},
		{"min int32", float64(math.MinInt32), models.IntToken(math.MinInt32)},
		{"two to the 31", 2147483648.0, models.LongToken(2147483648)},
		{"below min int32", -2147483649.0, models.LongToken(-2147483649)},
		{"fraction", 1.5, models.DoubleToken(1.5)},
		{"negative fraction", -0.25, models.DoubleToken(-0.25)},
		{"nan", math.NaN(), models.DoubleToken(math.NaN())},
		{"inf", math.Inf(1), models.DoubleToken(math.Inf(1))},
		{"huge saturates", 1e300, models.LongToken(math.MaxInt64)},
		{"go int", 7, models.IntToken(7)},
		{"go int64 big", int64(1) << 40, models.LongToken(1 << 40)},
		{"go uint64 huge", uint64(math.MaxUint64), models.DoubleToken(float64(uint64(math.MaxUint64)))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ToTagged(tc.in, false)
			be.True(t, models.Equal(tc.want, got))
		})
	}
}

func TestToTaggedScenario(t *testing.T) {
	in := map[string]any{"a": 1.0, "b": []any{1.0, 2.0, 3.0}}

	got := ToTagged(in, false)
	rec, ok := got.(models.RecordToken)
	be.True(t, ok)

	a, _ := rec.Get("a")
	be.True(t, models.Equal(models.IntToken(1), a))

	b, _ := rec.Get("b")
	want := models.NewArrayToken(models.TypeGeneral, []models.Token{
		models.IntToken(1), models.IntToken(2), models.IntToken(3),
	})
	be.True(t, models.Equal(want, b))

	back := ToDynamic(got).(map[string]any)
	be.Equal(t, int64(1), back["a"].(int64))
	be.Equal(t, 3, len(back["b"].([]any)))
}

func TestToTaggedShapes(t *testing.T) {
	t.Run("null", func(t *testing.T) {
		be.True(t, ToTagged(nil, false).IsNil())
		be.Equal(t, nil, ToDynamic(models.Nil))
	})
	t.Run("undefined", func(t *testing.T) {
		be.Equal(t, models.Nil, ToTagged(Undefined, false))
	})
	t.Run("empty array defaults to string elements", func(t *testing.T) {
		arr := ToTagged([]any{}, false).(models.ArrayToken)
		be.Equal(t, models.TypeString, arr.ElementType())
		be.Equal(t, 0, len(ToDynamic(arr).([]any)))
	})
	t.Run("typed slice", func(t *testing.T) {
		arr := ToTagged([]string{"x", "y"}, false).(models.ArrayToken)
		be.Equal(t, models.TypeString, arr.ElementType())
		be.Equal(t, 2, arr.Len())
	})
	t.Run("date", func(t *testing.T) {
		when := time.UnixMilli(1700000000123)
		d := ToTagged(when, false).(models.DateToken)
		be.Equal(t, int64(1700000000123), d.Millis)
		be.True(t, ToDynamic(d).(time.Time).Equal(when))
	})
	t.Run("entity", func(t *testing.T) {
		e := &testEntity{name: "top"}
		tok := ToTagged(e, false)
		be.Equal(t, models.TypeActor, tok.Type())
		be.Equal(t, models.Entity(e), ToDynamic(tok).(models.Entity))
	})
	t.Run("image", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 2, 2))
		tok := ToTagged(img, false)
		be.Equal(t, models.TypeImage, tok.Type())
		// images have no dynamic form and come back as the token
		_, isToken := ToDynamic(tok).(models.ImageToken)
		be.True(t, isToken)
	})
	t.Run("already tagged", func(t *testing.T) {
		tok := models.LongToken(5)
		be.Equal(t, models.Token(tok), ToTagged(tok, false))
	})
	t.Run("bytes", func(t *testing.T) {
		tok := ToTagged([]byte{1, 2, 3}, false)
		be.True(t, models.Equal(models.BytesToken{1, 2, 3}, tok))
	})
	t.Run("opaque fallback", func(t *testing.T) {
		fn := func() {}
		tok := ToTagged(fn, false)
		be.Equal(t, models.TypeObject, tok.Type())
	})
	t.Run("record keeps undefined fields as nil", func(t *testing.T) {
		rec := ToTagged(map[string]any{"a": Undefined, "b": 1.0}, false).(models.RecordToken)
		be.Equal(t, 2, rec.Len())
		a, ok := rec.Get("a")
		be.True(t, ok)
		be.True(t, a.IsNil())
		b, _ := rec.Get("b")
		be.True(t, models.Equal(models.IntToken(1), b))
	})
}

func TestToTaggedJSON(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{map[string]any{"b": 1.0, "a": "x<y"}, `{"a":"x<y","b":1}`},
		{[]any{1.0, Undefined, math.NaN()}, `[1,null,null]`},
		{Undefined, `null`},
		{nil, `null`},
		{"s", `"s"`},
		{2.5, `2.5`},
		{time.UnixMilli(0), `"1970-01-01T00:00:00.000Z"`},
		{models.NewRecordToken(map[string]models.Token{"n": models.IntToken(3)}), `{"n":3}`},
	}
	for _, tc := range tests {
		got := ToTagged(tc.in, true)
		be.Equal(t, models.Token(models.StringToken(tc.want)), got)
	}
}

func TestRoundTrip(t *testing.T) {
	tokens := []models.Token{
		models.BooleanToken(true),
		models.IntToken(math.MaxInt32),
		models.IntToken(math.MinInt32),
		models.LongToken(math.MaxInt32 + 1),
		models.LongToken(-(1 << 50)),
		models.DoubleToken(3.25),
		models.StringToken("hello"),
		models.NewDateToken(time.UnixMilli(1234567)),
		models.NewArrayToken(models.TypeGeneral, []models.Token{models.StringToken("a"), models.StringToken("b")}),
		models.NewRecordToken(map[string]models.Token{
			"nested": models.NewRecordToken(map[string]models.Token{
				"list": models.NewArrayToken(models.TypeGeneral, []models.Token{models.DoubleToken(0.5)}),
			}),
			"flag": models.BooleanToken(false),
		}),
	}
	for _, tok := range tokens {
		t.Run(tok.String(), func(t *testing.T) {
			got := ToTagged(ToDynamic(tok), false)
			be.True(t, models.Equal(tok, got))
		})
	}
}

func TestLongOutsideSafeRange(t *testing.T) {
	tok := models.LongToken(math.MaxInt64)
	// too big to be a script number without losing precision
	be.Equal(t, any(tok), ToDynamic(tok))
}

func TestLongSafeRangeBoundary(t *testing.T) {
	const limit = int64(1) << 53
	be.Equal(t, any(limit), ToDynamic(models.LongToken(limit)))
	be.Equal(t, any(-limit), ToDynamic(models.LongToken(-limit)))

	above := models.LongToken(limit + 1)
	be.Equal(t, any(above), ToDynamic(above))
	below := models.LongToken(-limit - 1)
	be.Equal(t, any(below), ToDynamic(below))
}
