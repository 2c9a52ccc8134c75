package socket

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/synadia-io/accessorhost/internal/convert"
	"github.com/synadia-io/accessorhost/internal/imagecodec"
	"github.com/synadia-io/accessorhost/models"
)

type numericType struct {
	size   int
	encode func(dst []byte, v float64)
	decode func(src []byte) any
}

// all numeric types are big endian
var numericTypes = map[string]numericType{
	"byte": {1,
		func(d []byte, v float64) { d[0] = byte(int8(v)) },
		func(s []byte) any { return int64(int8(s[0])) }},
	"unsignedbyte": {1,
		func(d []byte, v float64) { d[0] = byte(uint8(int64(v))) },
		func(s []byte) any { return int64(s[0]) }},
	"short": {2,
		func(d []byte, v float64) { binary.BigEndian.PutUint16(d, uint16(int16(v))) },
		func(s []byte) any { return int64(int16(binary.BigEndian.Uint16(s))) }},
	"unsignedshort": {2,
		func(d []byte, v float64) { binary.BigEndian.PutUint16(d, uint16(int64(v))) },
		func(s []byte) any { return int64(binary.BigEndian.Uint16(s)) }},
	"int": {4,
		func(d []byte, v float64) { binary.BigEndian.PutUint32(d, uint32(int32(v))) },
		func(s []byte) any { return int64(int32(binary.BigEndian.Uint32(s))) }},
	"long": {8,
		func(d []byte, v float64) { binary.BigEndian.PutUint64(d, uint64(int64(v))) },
		func(s []byte) any { return convert.ToDynamic(models.LongToken(int64(binary.BigEndian.Uint64(s)))) }},
	"float": {4,
		func(d []byte, v float64) { binary.BigEndian.PutUint32(d, math.Float32bits(float32(v))) },
		func(s []byte) any { return float64(math.Float32frombits(binary.BigEndian.Uint32(s))) }},
	"double": {8,
		func(d []byte, v float64) { binary.BigEndian.PutUint64(d, math.Float64bits(v)) },
		func(s []byte) any { return math.Float64frombits(binary.BigEndian.Uint64(s)) }},
}

func init() {
	numericTypes["number"] = numericTypes["double"]
}

func numericTypeNames() []string {
	names := make([]string, 0, len(numericTypes))
	for k := range numericTypes {
		names = append(names, k)
	}
	return names
}

// encodeData renders a token as the payload of one message. Arrays are
// flattened and their elements concatenated.
func encodeData(tok models.Token, sendType string) ([]byte, error) {
	sendType = strings.ToLower(sendType)

	if arr, ok := tok.(models.ArrayToken); ok {
		var out []byte
		for _, e := range arr.Elements() {
			b, err := encodeData(e, sendType)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return out, nil
	}

	if nt, ok := numericTypes[sendType]; ok {
		if b, isBytes := tok.(models.BytesToken); isBytes && nt.size == 1 {
			return []byte(b), nil
		}
		v, err := numberOf(tok)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, nt.size)
		nt.encode(buf, v)
		return buf, nil
	}

	if sendType == "string" {
		return []byte(textOf(tok)), nil
	}

	if imagecodec.IsFormat(sendType) {
		img, ok := tok.(models.ImageToken)
		if !ok || img.Image == nil {
			return nil, fmt.Errorf("expected an image to send as %s, got %s", sendType, tok.Type())
		}
		return imagecodec.Encode(img.Image, sendType)
	}

	return nil, fmt.Errorf("unsupported send type: %s", sendType)
}

func numberOf(tok models.Token) (float64, error) {
	switch t := tok.(type) {
	case models.IntToken:
		return float64(t), nil
	case models.LongToken:
		return float64(t), nil
	case models.DoubleToken:
		return float64(t), nil
	case models.UnsignedByteToken:
		return float64(t), nil
	case models.BooleanToken:
		if t {
			return 1, nil
		}
		return 0, nil
	case models.StringToken:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot send %q as a number", string(t))
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot send %s as a number", tok.Type())
}

// textOf is the string form of a token as a script would print it.
func textOf(tok models.Token) string {
	switch t := tok.(type) {
	case models.StringToken:
		return string(t)
	case models.BytesToken:
		return string(t)
	}
	return convert.Stringify(tok)
}

// decodeMessage splits one received message into elements of the receive
// type. Leftover bytes that do not fill a numeric element are returned.
func decodeMessage(data []byte, receiveType string) ([]any, []byte, error) {
	receiveType = strings.ToLower(receiveType)
	switch receiveType {
	case "string":
		return []any{string(data)}, nil, nil
	case "image":
		img, _, err := imagecodec.Decode(data)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode received image: %w", err)
		}
		return []any{img}, nil, nil
	}

	nt, ok := numericTypes[receiveType]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported receive type: %s", receiveType)
	}
	n := len(data) / nt.size
	out := make([]any, n)
	for i := 0; i < n; i++ {
		out[i] = nt.decode(data[i*nt.size : (i+1)*nt.size])
	}
	return out, data[n*nt.size:], nil
}
