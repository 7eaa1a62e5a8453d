package types

import (
	"fmt"
	"math"
)

// Layout describes how samples are packed for a single pixel
type Layout int

// Supported channel layouts
const (
	LayoutRGB  Layout = 3
	LayoutRGBA Layout = 4
)

// String returns the layout name
func (l Layout) String() string {
	switch l {
	case LayoutRGB:
		return "rgb"
	case LayoutRGBA:
		return "rgba"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// PixelBuffer is a decoded, row-major image with 8-bit samples.
//
// The core never mutates a buffer it receives; every operation allocates
// its own output buffer.
type PixelBuffer struct {
	Width  int
	Height int
	Layout Layout
	Pix    []uint8
}

// NewPixelBuffer allocates a zeroed buffer. Alpha, if present, is set to opaque.
func NewPixelBuffer(width, height int, layout Layout) *PixelBuffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	b := &PixelBuffer{
		Width:  width,
		Height: height,
		Layout: layout,
		Pix:    make([]uint8, width*height*int(layout)),
	}
	if layout == LayoutRGBA {
		for i := 3; i < len(b.Pix); i += 4 {
			b.Pix[i] = 255
		}
	}
	return b
}

// FromNormalized builds a buffer from samples in [0,1]. Values outside the
// range are clamped.
func FromNormalized(width, height int, layout Layout, samples []float32) (*PixelBuffer, error) {
	if len(samples) != width*height*int(layout) {
		return nil, fmt.Errorf("%w: expected %d samples, got %d", ErrInvalidInput, width*height*int(layout), len(samples))
	}
	b := &PixelBuffer{Width: width, Height: height, Layout: layout, Pix: make([]uint8, len(samples))}
	for i, v := range samples {
		b.Pix[i] = ClampByte(float64(v) * 255)
	}
	return b, b.Validate()
}

// Validate checks dimensions, layout and sample count
func (b *PixelBuffer) Validate() error {
	if b == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidInput)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: zero-dimension buffer %dx%d", ErrInvalidInput, b.Width, b.Height)
	}
	if b.Layout != LayoutRGB && b.Layout != LayoutRGBA {
		return fmt.Errorf("%w: unsupported %s", ErrInvalidInput, b.Layout)
	}
	if len(b.Pix) != b.Width*b.Height*int(b.Layout) {
		return fmt.Errorf("%w: buffer has %d samples, want %d", ErrInvalidInput, len(b.Pix), b.Width*b.Height*int(b.Layout))
	}
	return nil
}

// Channels returns the number of samples per pixel
func (b *PixelBuffer) Channels() int {
	return int(b.Layout)
}

// Area returns the number of pixels
func (b *PixelBuffer) Area() int {
	return b.Width * b.Height
}

// Offset returns the index of the first sample of pixel (x, y)
func (b *PixelBuffer) Offset(x, y int) int {
	return (y*b.Width + x) * int(b.Layout)
}

// RGB returns the colour samples of pixel (x, y)
func (b *PixelBuffer) RGB(x, y int) (uint8, uint8, uint8) {
	i := b.Offset(x, y)
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2]
}

// SetRGB writes the colour samples of pixel (x, y), leaving alpha untouched
func (b *PixelBuffer) SetRGB(x, y int, r, g, bl uint8) {
	i := b.Offset(x, y)
	b.Pix[i] = r
	b.Pix[i+1] = g
	b.Pix[i+2] = bl
}

// Luminance returns Rec.601 luma of pixel (x, y) in [0,255]
func (b *PixelBuffer) Luminance(x, y int) float64 {
	r, g, bl := b.RGB(x, y)
	return Luma(float64(r), float64(g), float64(bl))
}

// LumaPlane returns the luma of every pixel in row-major order
func (b *PixelBuffer) LumaPlane() []float64 {
	out := make([]float64, b.Area())
	c := b.Channels()
	for i, j := 0, 0; i < len(out); i, j = i+1, j+c {
		out[i] = Luma(float64(b.Pix[j]), float64(b.Pix[j+1]), float64(b.Pix[j+2]))
	}
	return out
}

// Clone returns a deep copy
func (b *PixelBuffer) Clone() *PixelBuffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return &PixelBuffer{Width: b.Width, Height: b.Height, Layout: b.Layout, Pix: pix}
}

// Equal reports whether two buffers have identical geometry and samples
func (b *PixelBuffer) Equal(o *PixelBuffer) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.Width != o.Width || b.Height != o.Height || b.Layout != o.Layout || len(b.Pix) != len(o.Pix) {
		return false
	}
	for i := range b.Pix {
		if b.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// Luma computes Rec.601 luma from 0..255 channel values
func Luma(r, g, b float64) float64 {
	return 0.299*r + 0.587*g + 0.114*b
}

// ClampByte rounds and clamps v into [0,255]
func ClampByte(v float64) uint8 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SafeDiv returns a/b, or fallback when |b| is too small to divide by
func SafeDiv(a, b, fallback float64) float64 {
	if math.Abs(b) < 1e-9 {
		return fallback
	}
	return a / b
}
