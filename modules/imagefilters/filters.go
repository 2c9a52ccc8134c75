// Package imagefilters applies simple pixel operations to images.
package imagefilters

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"

	"github.com/synadia-io/accessorhost/modules"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var ErrUnknownFilter = errors.New("unknown filter")

// Options carries the parameters of every filter. Each filter reads only
// the fields it needs.
type Options struct {
	Threshold int     `json:"threshold"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Degrees   int     `json:"degrees"`
	X         int     `json:"x"`
	Y         int     `json:"y"`
	Amount    float64 `json:"amount"`
	Text      string  `json:"text"`
	Color     string  `json:"color"`
}

func DefaultOptions() Options {
	return Options{
		Threshold: 128,
		Degrees:   90,
		Amount:    1,
		Color:     "#ff0000",
	}
}

type Filter func(src *image.NRGBA, opts Options) (*image.NRGBA, error)

var registry = map[string]Filter{
	"Invert":         invert,
	"Gray":           gray,
	"Threshold":      threshold,
	"Scale":          scale,
	"Rotate":         rotate,
	"FlipHorizontal": flipHorizontal,
	"FlipVertical":   flipVertical,
	"Crop":           crop,
	"Brightness":     brightness,
	"Contrast":       contrast,
	"Annotate":       annotate,
}

// Filters lists the filter names in sorted order.
func Filters() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Apply runs the named filter on a copy of img. overrides are merged over
// DefaultOptions.
func Apply(img image.Image, name string, overrides map[string]any) (image.Image, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFilter, name)
	}
	if img == nil {
		return nil, errors.New("no image to filter")
	}
	opts := DefaultOptions()
	if err := modules.MergeOptions(&opts, overrides); err != nil {
		return nil, fmt.Errorf("invalid options for %s: %w", name, err)
	}
	return f(toNRGBA(img), opts)
}

// toNRGBA copies img into a fresh NRGBA whose bounds start at the origin.
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// mapPixels rewrites every pixel in place.
func mapPixels(img *image.NRGBA, fn func(r, g, b uint8) (uint8, uint8, uint8)) *image.NRGBA {
	for i := 0; i+3 < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2] = fn(img.Pix[i], img.Pix[i+1], img.Pix[i+2])
	}
	return img
}

func luma(r, g, b uint8) uint8 {
	return uint8(math.Round(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)))
}

func clamp(v float64) uint8 {
	return uint8(math.Round(max(0, min(255, v))))
}

func invert(img *image.NRGBA, _ Options) (*image.NRGBA, error) {
	return mapPixels(img, func(r, g, b uint8) (uint8, uint8, uint8) {
		return 255 - r, 255 - g, 255 - b
	}), nil
}

func gray(img *image.NRGBA, _ Options) (*image.NRGBA, error) {
	return mapPixels(img, func(r, g, b uint8) (uint8, uint8, uint8) {
		y := luma(r, g, b)
		return y, y, y
	}), nil
}

func threshold(img *image.NRGBA, opts Options) (*image.NRGBA, error) {
	if opts.Threshold < 0 || opts.Threshold > 255 {
		return nil, fmt.Errorf("threshold %d is outside 0..255", opts.Threshold)
	}
	t := uint8(opts.Threshold)
	return mapPixels(img, func(r, g, b uint8) (uint8, uint8, uint8) {
		if luma(r, g, b) >= t {
			return 255, 255, 255
		}
		return 0, 0, 0
	}), nil
}

// scale keeps the aspect ratio when only one of width and height is set.
func scale(img *image.NRGBA, opts Options) (*image.NRGBA, error) {
	sw, sh := img.Bounds().Dx(), img.Bounds().Dy()
	w, h := opts.Width, opts.Height
	switch {
	case w <= 0 && h <= 0:
		return nil, errors.New("scale needs a width or a height")
	case w <= 0:
		w = max(1, int(math.Round(float64(sw)*float64(h)/float64(sh))))
	case h <= 0:
		h = max(1, int(math.Round(float64(sh)*float64(w)/float64(sw))))
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

func rotate(img *image.NRGBA, opts Options) (*image.NRGBA, error) {
	if opts.Degrees%90 != 0 {
		return nil, fmt.Errorf("rotation must be a multiple of 90 degrees, got %d", opts.Degrees)
	}
	turns := ((opts.Degrees/90)%4 + 4) % 4
	for i := 0; i < turns; i++ {
		img = rotate90(img)
	}
	return img, nil
}

// rotate90 turns img a quarter clockwise.
func rotate90(img *image.NRGBA) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.SetNRGBA(h-1-y, x, img.NRGBAAt(x, y))
		}
	}
	return dst
}

func flipHorizontal(img *image.NRGBA, _ Options) (*image.NRGBA, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	dst := image.NewNRGBA(img.Bounds())
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.SetNRGBA(w-1-x, y, img.NRGBAAt(x, y))
		}
	}
	return dst, nil
}

func flipVertical(img *image.NRGBA, _ Options) (*image.NRGBA, error) {
	h := img.Bounds().Dy()
	dst := image.NewNRGBA(img.Bounds())
	for y := 0; y < h; y++ {
		copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], img.Pix[(h-1-y)*img.Stride:(h-y)*img.Stride])
	}
	return dst, nil
}

func crop(img *image.NRGBA, opts Options) (*image.NRGBA, error) {
	w, h := opts.Width, opts.Height
	if w <= 0 {
		w = img.Bounds().Dx() - opts.X
	}
	if h <= 0 {
		h = img.Bounds().Dy() - opts.Y
	}
	r := image.Rect(opts.X, opts.Y, opts.X+w, opts.Y+h).Intersect(img.Bounds())
	if r.Empty() {
		return nil, errors.New("crop rectangle is outside the image")
	}
	return toNRGBA(img.SubImage(r)), nil
}

// brightness scales every channel by amount; 1 leaves the image alone.
func brightness(img *image.NRGBA, opts Options) (*image.NRGBA, error) {
	if opts.Amount < 0 {
		return nil, fmt.Errorf("brightness amount must not be negative, got %g", opts.Amount)
	}
	a := opts.Amount
	return mapPixels(img, func(r, g, b uint8) (uint8, uint8, uint8) {
		return clamp(float64(r) * a), clamp(float64(g) * a), clamp(float64(b) * a)
	}), nil
}

// contrast stretches channels away from mid gray by amount.
func contrast(img *image.NRGBA, opts Options) (*image.NRGBA, error) {
	if opts.Amount < 0 {
		return nil, fmt.Errorf("contrast amount must not be negative, got %g", opts.Amount)
	}
	a := opts.Amount
	stretch := func(c uint8) uint8 { return clamp((float64(c)-128)*a + 128) }
	return mapPixels(img, func(r, g, b uint8) (uint8, uint8, uint8) {
		return stretch(r), stretch(g), stretch(b)
	}), nil
}

// annotate draws a box at (x, y) with text inside it.
func annotate(img *image.NRGBA, opts Options) (*image.NRGBA, error) {
	c, err := parseColor(opts.Color)
	if err != nil {
		return nil, err
	}
	face := basicfont.Face7x13
	w := font.MeasureString(face, opts.Text).Ceil() + 4
	h := face.Height + 4
	box := image.Rect(opts.X, opts.Y, opts.X+w, opts.Y+h)

	for x := box.Min.X; x < box.Max.X; x++ {
		setIn(img, x, box.Min.Y, c)
		setIn(img, x, box.Max.Y-1, c)
	}
	for y := box.Min.Y; y < box.Max.Y; y++ {
		setIn(img, box.Min.X, y, c)
		setIn(img, box.Max.X-1, y, c)
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(opts.X+2, opts.Y+2+face.Ascent),
	}
	d.DrawString(opts.Text)
	return img, nil
}

func setIn(img *image.NRGBA, x, y int, c color.NRGBA) {
	if (image.Point{x, y}).In(img.Bounds()) {
		img.SetNRGBA(x, y, c)
	}
}

// parseColor reads #rgb or #rrggbb.
func parseColor(s string) (color.NRGBA, error) {
	c := color.NRGBA{A: 255}
	var err error
	switch len(s) {
	case 7:
		_, err = fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B)
	case 4:
		_, err = fmt.Sscanf(s, "#%1x%1x%1x", &c.R, &c.G, &c.B)
		c.R *= 17
		c.G *= 17
		c.B *= 17
	default:
		err = errors.New("bad length")
	}
	if err != nil {
		return c, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return c, nil
}
