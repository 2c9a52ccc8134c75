package models

import "strings"

// Type is the variant tag carried by every Token.
type Type int

const (
	TypeGeneral Type = iota
	TypeNil
	TypeBoolean
	TypeUnsignedByte
	TypeInt
	TypeLong
	TypeDouble
	TypeString
	TypeBytes
	TypeDate
	TypeArray
	TypeRecord
	TypeObject
	TypeActor
	TypeImage
)

var typeNames = map[Type]string{
	TypeGeneral:      "general",
	TypeNil:          "niltype",
	TypeBoolean:      "boolean",
	TypeUnsignedByte: "unsignedByte",
	TypeInt:          "int",
	TypeLong:         "long",
	TypeDouble:       "double",
	TypeString:       "string",
	TypeBytes:        "bytes",
	TypeDate:         "date",
	TypeArray:        "arrayType",
	TypeRecord:       "record",
	TypeObject:       "object",
	TypeActor:        "actor",
	TypeImage:        "image",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "unknown"
}

// IsNumeric reports whether values of t participate in numeric widening.
func (t Type) IsNumeric() bool {
	switch t {
	case TypeUnsignedByte, TypeInt, TypeLong, TypeDouble:
		return true
	}
	return false
}

// ParseType resolves the type names accepted by endpoint declarations.
// "number" is an alias of double and "JSON" declares a string endpoint
// that is written in JSON form.
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(s) {
	case "", "general":
		return TypeGeneral, true
	case "boolean":
		return TypeBoolean, true
	case "unsignedbyte":
		return TypeUnsignedByte, true
	case "int":
		return TypeInt, true
	case "long":
		return TypeLong, true
	case "double", "number":
		return TypeDouble, true
	case "string", "json":
		return TypeString, true
	case "bytes":
		return TypeBytes, true
	case "date":
		return TypeDate, true
	case "arraytype", "array":
		return TypeArray, true
	case "record":
		return TypeRecord, true
	case "object":
		return TypeObject, true
	case "actor":
		return TypeActor, true
	case "image":
		return TypeImage, true
	}
	return TypeGeneral, false
}

// LeastUpperBound returns the narrowest type that holds values of both a
// and b. Numeric types widen along unsignedByte < int < long < double;
// everything else meets at general.
func LeastUpperBound(a, b Type) Type {
	if a == b {
		return a
	}
	if a.IsNumeric() && b.IsNumeric() {
		return max(a, b)
	}
	return TypeGeneral
}
