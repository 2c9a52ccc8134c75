// Package codec is the binary wire form of tokens. Unlike JSON it keeps
// the distinction between ints, longs and doubles, and carries dates,
// bytes and images without loss.
package codec

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/synadia-io/accessorhost/internal/imagecodec"
	"github.com/synadia-io/accessorhost/models"
)

var ErrNotPortable = errors.New("token cannot leave the host")

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

type wire struct {
	Type   models.Type     `cbor:"1,keyasint"`
	Bool   bool            `cbor:"2,keyasint,omitempty"`
	Int    int64           `cbor:"3,keyasint,omitempty"`
	Float  float64         `cbor:"4,keyasint,omitempty"`
	Text   string          `cbor:"5,keyasint,omitempty"`
	Bytes  []byte          `cbor:"6,keyasint,omitempty"`
	Elem   models.Type     `cbor:"7,keyasint,omitempty"`
	Items  []wire          `cbor:"8,keyasint,omitempty"`
	Fields map[string]wire `cbor:"9,keyasint,omitempty"`
}

func Marshal(t models.Token) ([]byte, error) {
	w, err := toWire(t)
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(w)
}

func Unmarshal(data []byte) (models.Token, error) {
	var w wire
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("codec: unmarshal token: %w", err)
	}
	return fromWire(w)
}

func toWire(t models.Token) (wire, error) {
	if t == nil {
		return wire{Type: models.TypeNil}, nil
	}

	switch tt := t.(type) {
	case models.NilToken:
		return wire{Type: models.TypeNil}, nil
	case models.BooleanToken:
		return wire{Type: models.TypeBoolean, Bool: bool(tt)}, nil
	case models.UnsignedByteToken:
		return wire{Type: models.TypeUnsignedByte, Int: int64(tt)}, nil
	case models.IntToken:
		return wire{Type: models.TypeInt, Int: int64(tt)}, nil
	case models.LongToken:
		return wire{Type: models.TypeLong, Int: int64(tt)}, nil
	case models.DoubleToken:
		return wire{Type: models.TypeDouble, Float: float64(tt)}, nil
	case models.StringToken:
		return wire{Type: models.TypeString, Text: string(tt)}, nil
	case models.BytesToken:
		return wire{Type: models.TypeBytes, Bytes: []byte(tt)}, nil
	case models.DateToken:
		return wire{Type: models.TypeDate, Int: tt.Millis}, nil
	case models.ArrayToken:
		w := wire{Type: models.TypeArray, Elem: tt.ElementType(), Items: make([]wire, tt.Len())}
		for i := range w.Items {
			item, err := toWire(tt.Element(i))
			if err != nil {
				return wire{}, fmt.Errorf("element %d: %w", i, err)
			}
			w.Items[i] = item
		}
		return w, nil
	case models.RecordToken:
		w := wire{Type: models.TypeRecord, Fields: make(map[string]wire, tt.Len())}
		for _, label := range tt.Labels() {
			f, _ := tt.Get(label)
			fw, err := toWire(f)
			if err != nil {
				return wire{}, fmt.Errorf("field %s: %w", label, err)
			}
			w.Fields[label] = fw
		}
		return w, nil
	case models.ImageToken:
		if tt.Image == nil {
			return wire{Type: models.TypeNil}, nil
		}
		data, err := imagecodec.Encode(tt.Image, "png")
		if err != nil {
			return wire{}, err
		}
		return wire{Type: models.TypeImage, Bytes: data}, nil
	}
	return wire{}, fmt.Errorf("%w: %s", ErrNotPortable, t.Type())
}

func fromWire(w wire) (models.Token, error) {
	switch w.Type {
	case models.TypeNil:
		return models.Nil, nil
	case models.TypeBoolean:
		return models.BooleanToken(w.Bool), nil
	case models.TypeUnsignedByte:
		return models.UnsignedByteToken(uint8(w.Int)), nil
	case models.TypeInt:
		return models.IntToken(int32(w.Int)), nil
	case models.TypeLong:
		return models.LongToken(w.Int), nil
	case models.TypeDouble:
		return models.DoubleToken(w.Float), nil
	case models.TypeString:
		return models.StringToken(w.Text), nil
	case models.TypeBytes:
		if w.Bytes == nil {
			return models.BytesToken{}, nil
		}
		return models.BytesToken(w.Bytes), nil
	case models.TypeDate:
		return models.DateToken{Millis: w.Int}, nil
	case models.TypeArray:
		elems := make([]models.Token, len(w.Items))
		for i, item := range w.Items {
			e, err := fromWire(item)
			if err != nil {
				return nil, err
			}
			elems[i] = e
		}
		return models.NewArrayToken(w.Elem, elems), nil
	case models.TypeRecord:
		fields := make(map[string]models.Token, len(w.Fields))
		for k, fw := range w.Fields {
			f, err := fromWire(fw)
			if err != nil {
				return nil, err
			}
			fields[k] = f
		}
		return models.NewRecordToken(fields), nil
	case models.TypeImage:
		img, _, err := imagecodec.Decode(w.Bytes)
		if err != nil {
			return nil, err
		}
		return models.ImageToken{Image: img}, nil
	}
	return nil, fmt.Errorf("codec: unknown token type %d", w.Type)
}
