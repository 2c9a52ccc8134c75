// Package imagecodec encodes and decodes images for every module that
// moves them over the wire.
package imagecodec

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

var formats = []string{"bmp", "gif", "jpeg", "jpg", "png", "tiff"}

// Formats lists the names accepted by Encode.
func Formats() []string {
	return append([]string(nil), formats...)
}

// IsFormat reports whether name is an image format (or the generic
// "image", which means png).
func IsFormat(name string) bool {
	name = Normalize(name)
	if name == "image" {
		return true
	}
	for _, f := range formats {
		if f == name {
			return true
		}
	}
	return false
}

// Normalize strips a MIME prefix ("image/png" becomes "png").
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimPrefix(name, "image/")
}

func Encode(img image.Image, format string) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to encode")
	}
	buf := new(bytes.Buffer)
	var err error
	switch Normalize(format) {
	case "", "image", "png":
		err = png.Encode(buf, img)
	case "jpg", "jpeg":
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: 90})
	case "gif":
		err = gif.Encode(buf, img, nil)
	case "bmp":
		err = bmp.Encode(buf, img)
	case "tiff":
		err = tiff.Encode(buf, img, nil)
	default:
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode sniffs the format from the data.
func Decode(data []byte) (image.Image, string, error) {
	return image.Decode(bytes.NewReader(data))
}
