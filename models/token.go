package models

import (
	"encoding/hex"
	"fmt"
	"image"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Token is a tagged value exchanged with the host runtime.
type Token interface {
	Type() Type
	IsNil() bool
	String() string
}

// Entity is a host-managed structural object, such as an actor, that
// scripts may hold a reference to.
type Entity interface {
	FullName() string
}

type (
	NilToken          struct{}
	BooleanToken      bool
	UnsignedByteToken uint8
	IntToken          int32
	LongToken         int64
	DoubleToken       float64
	StringToken       string
	BytesToken        []byte

	// DateToken holds milliseconds since the Unix epoch.
	DateToken struct {
		Millis int64
	}

	ArrayToken struct {
		elemType Type
		elems    []Token
	}

	RecordToken struct {
		fields map[string]Token
	}

	// ObjectToken wraps a host value that has no tagged representation.
	ObjectToken struct {
		Value any
	}

	ActorToken struct {
		Entity Entity
	}

	ImageToken struct {
		Image image.Image
	}
)

// Nil is the canonical absent value. It is distinct from having no token at all.
var Nil Token = NilToken{}

func (NilToken) Type() Type     { return TypeNil }
func (NilToken) IsNil() bool    { return true }
func (NilToken) String() string { return "nil" }

func (BooleanToken) Type() Type  { return TypeBoolean }
func (BooleanToken) IsNil() bool { return false }
func (t BooleanToken) String() string {
	return strconv.FormatBool(bool(t))
}

func (UnsignedByteToken) Type() Type  { return TypeUnsignedByte }
func (UnsignedByteToken) IsNil() bool { return false }
func (t UnsignedByteToken) String() string {
	return strconv.Itoa(int(t)) + "ub"
}

func (IntToken) Type() Type  { return TypeInt }
func (IntToken) IsNil() bool { return false }
func (t IntToken) String() string {
	return strconv.FormatInt(int64(t), 10)
}

func (LongToken) Type() Type  { return TypeLong }
func (LongToken) IsNil() bool { return false }
func (t LongToken) String() string {
	return strconv.FormatInt(int64(t), 10) + "L"
}

func (DoubleToken) Type() Type  { return TypeDouble }
func (DoubleToken) IsNil() bool { return false }
func (t DoubleToken) String() string {
	f := float64(t)
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (StringToken) Type() Type  { return TypeString }
func (StringToken) IsNil() bool { return false }
func (t StringToken) String() string {
	return strconv.Quote(string(t))
}

func (BytesToken) Type() Type  { return TypeBytes }
func (BytesToken) IsNil() bool { return false }
func (t BytesToken) String() string {
	return "bytes(\"" + hex.EncodeToString(t) + "\")"
}

func NewDateToken(t time.Time) DateToken {
	return DateToken{Millis: t.UnixMilli()}
}

func (DateToken) Type() Type  { return TypeDate }
func (DateToken) IsNil() bool { return false }
func (t DateToken) Time() time.Time {
	return time.UnixMilli(t.Millis).UTC()
}
func (t DateToken) String() string {
	return "date(\"" + t.Time().Format("2006-01-02 15:04:05.000 -0700") + "\")"
}

// NewArrayToken builds an array. When elemType is TypeGeneral and elems is
// not empty, the element type is inferred from the elements.
func NewArrayToken(elemType Type, elems []Token) ArrayToken {
	if elemType == TypeGeneral && len(elems) > 0 {
		elemType = elems[0].Type()
		for _, e := range elems[1:] {
			elemType = LeastUpperBound(elemType, e.Type())
		}
	}
	return ArrayToken{elemType: elemType, elems: slices.Clone(elems)}
}

func (ArrayToken) Type() Type            { return TypeArray }
func (ArrayToken) IsNil() bool           { return false }
func (t ArrayToken) ElementType() Type   { return t.elemType }
func (t ArrayToken) Len() int            { return len(t.elems) }
func (t ArrayToken) Element(i int) Token { return t.elems[i] }
func (t ArrayToken) Elements() []Token   { return slices.Clone(t.elems) }
func (t ArrayToken) String() string {
	parts := make([]string, len(t.elems))
	for i, e := range t.elems {
		parts[i] = e.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func NewRecordToken(fields map[string]Token) RecordToken {
	return RecordToken{fields: maps.Clone(fields)}
}

func (RecordToken) Type() Type  { return TypeRecord }
func (RecordToken) IsNil() bool { return false }

// Labels returns the field names in sorted order. Field order carries no
// meaning; sorting only keeps output stable.
func (t RecordToken) Labels() []string {
	labels := make([]string, 0, len(t.fields))
	for k := range t.fields {
		labels = append(labels, k)
	}
	slices.Sort(labels)
	return labels
}

func (t RecordToken) Get(label string) (Token, bool) {
	v, ok := t.fields[label]
	return v, ok
}

func (t RecordToken) Len() int { return len(t.fields) }

func (t RecordToken) String() string {
	labels := t.Labels()
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l + "=" + t.fields[l].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (ObjectToken) Type() Type { return TypeObject }
func (t ObjectToken) IsNil() bool {
	return t.Value == nil
}
func (t ObjectToken) String() string {
	if t.Value == nil {
		return "object(null)"
	}
	return fmt.Sprintf("object(%T)", t.Value)
}

func (ActorToken) Type() Type { return TypeActor }
func (t ActorToken) IsNil() bool {
	return t.Entity == nil
}
func (t ActorToken) String() string {
	if t.Entity == nil {
		return "actor(null)"
	}
	return "actor(" + t.Entity.FullName() + ")"
}

func (ImageToken) Type() Type { return TypeImage }
func (t ImageToken) IsNil() bool {
	return t.Image == nil
}
func (t ImageToken) String() string {
	if t.Image == nil {
		return "image(null)"
	}
	b := t.Image.Bounds()
	return fmt.Sprintf("image(%dx%d)", b.Dx(), b.Dy())
}

// Equal compares tokens by variant and content. Records compare without
// regard to field order and opaque references compare by identity.
func Equal(a, b Token) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Type() != b.Type() {
		return false
	}
	switch at := a.(type) {
	case NilToken:
		return true
	case DoubleToken:
		bt := b.(DoubleToken)
		return at == bt || (math.IsNaN(float64(at)) && math.IsNaN(float64(bt)))
	case BytesToken:
		return slices.Equal(at, b.(BytesToken))
	case ArrayToken:
		bt := b.(ArrayToken)
		if at.Len() != bt.Len() {
			return false
		}
		if at.Len() == 0 {
			return at.elemType == bt.elemType
		}
		for i := range at.elems {
			if !Equal(at.elems[i], bt.elems[i]) {
				return false
			}
		}
		return true
	case RecordToken:
		bt := b.(RecordToken)
		if len(at.fields) != len(bt.fields) {
			return false
		}
		for k, v := range at.fields {
			w, ok := bt.fields[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case ObjectToken:
		return sameReference(at.Value, b.(ObjectToken).Value)
	case ActorToken:
		return sameReference(at.Entity, b.(ActorToken).Entity)
	case ImageToken:
		return sameReference(at.Image, b.(ImageToken).Image)
	default:
		return a == b
	}
}

func sameReference(a, b any) (eq bool) {
	defer func() {
		// uncomparable dynamic types are never the same reference
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}
