package imagecodec

import (
	"image"
	"image/color"
	"testing"

	"github.com/carlmjohnson/be"
)

func TestEncodeDecode(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	for _, format := range []string{"png", "image/bmp", "tiff", "gif", "jpg"} {
		t.Run(format, func(t *testing.T) {
			data, err := Encode(img, format)
			be.NilErr(t, err)

			out, name, err := Decode(data)
			be.NilErr(t, err)
			be.Equal(t, 4, out.Bounds().Dx())
			be.Equal(t, 3, out.Bounds().Dy())
			be.True(t, name != "")
		})
	}
}

func TestUnsupportedFormat(t *testing.T) {
	_, err := Encode(image.NewGray(image.Rect(0, 0, 1, 1)), "webp")
	be.True(t, err != nil)
	be.False(t, IsFormat("webp"))
	be.True(t, IsFormat("image/PNG"))
	be.True(t, IsFormat("image"))
}
