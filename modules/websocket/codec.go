package websocket

import (
	"encoding/json"
	"fmt"
	"strings"

	gws "github.com/gorilla/websocket"
	"github.com/synadia-io/accessorhost/internal/convert"
	"github.com/synadia-io/accessorhost/internal/imagecodec"
	"github.com/synadia-io/accessorhost/models"
)

// jsonText is JSON that was rendered before it reached the wrapper.
type jsonText string

func (jsonText) Type() models.Type { return models.TypeString }
func (jsonText) IsNil() bool       { return false }
func (j jsonText) String() string  { return string(j) }

// encodeMessage renders tok as one frame of the given MIME type.
func encodeMessage(tok models.Token, mime string) (int, []byte, error) {
	mime = strings.ToLower(mime)
	switch {
	case mime == TypeJSON:
		if j, ok := tok.(jsonText); ok {
			return gws.TextMessage, []byte(j), nil
		}
		return gws.TextMessage, []byte(convert.Stringify(tok)), nil
	case strings.HasPrefix(mime, "text/"):
		return gws.TextMessage, []byte(textOf(tok)), nil
	case strings.HasPrefix(mime, "image/"):
		img, ok := tok.(models.ImageToken)
		if !ok || img.Image == nil {
			return 0, nil, fmt.Errorf("expected an image to send as %s, got %s", mime, tok.Type())
		}
		data, err := imagecodec.Encode(img.Image, mime)
		return gws.BinaryMessage, data, err
	}
	if b, ok := tok.(models.BytesToken); ok {
		return gws.BinaryMessage, []byte(b), nil
	}
	return gws.BinaryMessage, []byte(textOf(tok)), nil
}

func textOf(tok models.Token) string {
	switch t := tok.(type) {
	case models.StringToken:
		return string(t)
	case jsonText:
		return string(t)
	case models.BytesToken:
		return string(t)
	}
	return convert.Stringify(tok)
}

// decodeMessage turns a received frame into the value emitted with
// message. JSON that does not parse is an error.
func decodeMessage(data []byte, mime string) (any, error) {
	mime = strings.ToLower(mime)
	switch {
	case mime == TypeJSON:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to parse received JSON: %w", err)
		}
		return v, nil
	case strings.HasPrefix(mime, "text/"):
		return string(data), nil
	case strings.HasPrefix(mime, "image/"):
		img, _, err := imagecodec.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode received image: %w", err)
		}
		return img, nil
	}
	return data, nil
}
