package eventbus

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/synadia-io/accessorhost/internal/codec"
	"github.com/synadia-io/accessorhost/internal/convert"
	"github.com/synadia-io/accessorhost/models"
)

const (
	EncodingJSON  = "json"
	EncodingText  = "text"
	EncodingToken = "token"
)

func validEncoding(enc string) bool {
	switch strings.ToLower(enc) {
	case EncodingJSON, EncodingText, EncodingToken:
		return true
	}
	return false
}

func encode(tok models.Token, enc string) ([]byte, error) {
	switch strings.ToLower(enc) {
	case EncodingText:
		switch t := tok.(type) {
		case models.StringToken:
			return []byte(t), nil
		case models.BytesToken:
			return []byte(t), nil
		}
		return []byte(convert.Stringify(tok)), nil
	case EncodingToken:
		return codec.Marshal(tok)
	}
	return []byte(convert.Stringify(tok)), nil
}

// decode returns the dynamic value of a payload, or a token for the token
// encoding.
func decode(data []byte, enc string) (any, error) {
	switch strings.ToLower(enc) {
	case EncodingText:
		return string(data), nil
	case EncodingToken:
		return codec.Unmarshal(data)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode JSON payload: %w", err)
	}
	return v, nil
}
