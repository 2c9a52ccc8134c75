package models

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/carlmjohnson/be"
)

func TestTokenStrings(t *testing.T) {
	be.Equal(t, "nil", Nil.String())
	be.Equal(t, "42", IntToken(42).String())
	be.Equal(t, "42L", LongToken(42).String())
	be.Equal(t, "1.0", DoubleToken(1).String())
	be.Equal(t, "1.5", DoubleToken(1.5).String())
	be.Equal(t, "NaN", DoubleToken(math.NaN()).String())
	be.Equal(t, `"a\"b"`, StringToken(`a"b`).String())
	be.Equal(t, "7ub", UnsignedByteToken(7).String())
	be.Equal(t, `bytes("0102")`, BytesToken{1, 2}.String())

	arr := NewArrayToken(TypeGeneral, []Token{IntToken(1), IntToken(2)})
	be.Equal(t, "{1, 2}", arr.String())

	rec := NewRecordToken(map[string]Token{"b": StringToken("x"), "a": IntToken(1)})
	be.Equal(t, `{a=1, b="x"}`, rec.String())
}

func TestArrayElementType(t *testing.T) {
	t.Run("uniform", func(t *testing.T) {
		arr := NewArrayToken(TypeGeneral, []Token{IntToken(1), IntToken(2)})
		be.Equal(t, TypeInt, arr.ElementType())
	})
	t.Run("numeric widening", func(t *testing.T) {
		arr := NewArrayToken(TypeGeneral, []Token{IntToken(1), LongToken(1 << 40), DoubleToken(0.5)})
		be.Equal(t, TypeDouble, arr.ElementType())
	})
	t.Run("mixed", func(t *testing.T) {
		arr := NewArrayToken(TypeGeneral, []Token{IntToken(1), StringToken("a")})
		be.Equal(t, TypeGeneral, arr.ElementType())
	})
	t.Run("empty keeps declared type", func(t *testing.T) {
		arr := NewArrayToken(TypeString, nil)
		be.Equal(t, TypeString, arr.ElementType())
		be.Equal(t, 0, arr.Len())
	})
}

func TestEqual(t *testing.T) {
	be.True(t, Equal(Nil, NilToken{}))
	be.True(t, Equal(IntToken(3), IntToken(3)))
	be.False(t, Equal(IntToken(3), LongToken(3)))
	be.True(t, Equal(DoubleToken(math.NaN()), DoubleToken(math.NaN())))

	a := NewRecordToken(map[string]Token{
		"a": IntToken(1),
		"b": NewArrayToken(TypeGeneral, []Token{IntToken(1), IntToken(2)}),
	})
	b := NewRecordToken(map[string]Token{
		"b": NewArrayToken(TypeGeneral, []Token{IntToken(1), IntToken(2)}),
		"a": IntToken(1),
	})
	be.True(t, Equal(a, b))

	c := NewRecordToken(map[string]Token{"a": IntToken(2)})
	be.False(t, Equal(a, c))

	be.False(t, Equal(NewArrayToken(TypeString, nil), NewArrayToken(TypeInt, nil)))
	be.True(t, Equal(BytesToken{1, 2}, BytesToken{1, 2}))

	m := map[string]int{}
	be.True(t, Equal(ObjectToken{Value: &m}, ObjectToken{Value: &m}))
	be.False(t, Equal(ObjectToken{Value: []int{1}}, ObjectToken{Value: []int{1}}))
}

func TestDateToken(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 5_000_000, time.UTC)
	d := NewDateToken(now)
	be.Equal(t, now.UnixMilli(), d.Millis)
	be.True(t, d.Time().Equal(now))
}

func TestParseType(t *testing.T) {
	typ, ok := ParseType("number")
	be.True(t, ok)
	be.Equal(t, TypeDouble, typ)

	typ, ok = ParseType("JSON")
	be.True(t, ok)
	be.Equal(t, TypeString, typ)

	_, ok = ParseType("quaternion")
	be.False(t, ok)
}

func TestNoopLifecycle(t *testing.T) {
	var l Lifecycle = NoopLifecycle{}
	be.NilErr(t, l.Setup(context.Background()))
	be.NilErr(t, l.Fire(context.Background()))
}
