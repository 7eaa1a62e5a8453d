package processing

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/scene-enhancer/pkg/types"
)

// Processor handles host-side image I/O around the pixel-buffer core
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
	}
	if _, err := f.Seek(0, 0); err == nil {
		if img, _, err := image.Decode(f); err == nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// LoadBuffer loads a file and converts it to an RGBA pixel buffer
func (p *Processor) LoadBuffer(path string) (*types.PixelBuffer, error) {
	img, err := p.LoadImage(path)
	if err != nil {
		return nil, err
	}
	return FromImage(img, types.LayoutRGBA), nil
}

// LoadMask loads a grayscale or colour image and marks pixels whose luma is
// above threshold (0..255).
func (p *Processor) LoadMask(path string, threshold float64) (*types.Mask, error) {
	img, err := p.LoadImage(path)
	if err != nil {
		return nil, err
	}
	return MaskFromImage(img, threshold), nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// SaveBuffer encodes a pixel buffer to a file
func (p *Processor) SaveBuffer(buf *types.PixelBuffer, path, format string, quality int, lossless bool) error {
	return p.SaveImage(ToNRGBA(buf), path, format, quality, lossless)
}

// ToNRGBA converts a pixel buffer into a new *image.NRGBA
func ToNRGBA(buf *types.PixelBuffer) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	c := buf.Channels()
	for i, j := 0, 0; j < len(buf.Pix); i, j = i+4, j+c {
		img.Pix[i] = buf.Pix[j]
		img.Pix[i+1] = buf.Pix[j+1]
		img.Pix[i+2] = buf.Pix[j+2]
		if c == 4 {
			img.Pix[i+3] = buf.Pix[j+3]
		} else {
			img.Pix[i+3] = 255
		}
	}
	return img
}

// FromImage converts any image into a new pixel buffer with the given layout
func FromImage(img image.Image, layout types.Layout) *types.PixelBuffer {
	src, ok := img.(*image.NRGBA)
	if !ok || src.Rect.Min != (image.Point{}) || src.Stride != 4*src.Rect.Dx() {
		src = imaging.Clone(img)
	}
	w, h := src.Rect.Dx(), src.Rect.Dy()
	buf := &types.PixelBuffer{Width: w, Height: h, Layout: layout, Pix: make([]uint8, w*h*int(layout))}
	c := int(layout)
	for i, j := 0, 0; j < len(buf.Pix); i, j = i+4, j+c {
		buf.Pix[j] = src.Pix[i]
		buf.Pix[j+1] = src.Pix[i+1]
		buf.Pix[j+2] = src.Pix[i+2]
		if c == 4 {
			buf.Pix[j+3] = src.Pix[i+3]
		}
	}
	return buf
}

// MaskFromImage marks pixels whose luma exceeds threshold
func MaskFromImage(img image.Image, threshold float64) *types.Mask {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	m := types.NewMask(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := nrgba.PixOffset(x, y)
			l := types.Luma(float64(nrgba.Pix[i]), float64(nrgba.Pix[i+1]), float64(nrgba.Pix[i+2]))
			if l > threshold && nrgba.Pix[i+3] > 0 {
				m.Set(x, y, true)
			}
		}
	}
	return m
}

// MaskToImage renders a mask as a black/white image
func MaskToImage(m *types.Mask) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.At(x, y) {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	return img
}

// Overlay describes what CreateDebugOverlay draws on top of an image
type Overlay struct {
	Masks   []MaskLayer
	Horizon int // row index, negative for none
	Boxes   []image.Rectangle
}

// MaskLayer tints covered pixels with a colour
type MaskLayer struct {
	Mask  *types.Mask
	Color color.NRGBA
}

// CreateDebugOverlay renders detector output on top of a buffer: tinted
// masks, the horizon line and candidate boxes.
func (p *Processor) CreateDebugOverlay(buf *types.PixelBuffer, ov Overlay) image.Image {
	nrgba := ToNRGBA(buf)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	for _, layer := range ov.Masks {
		if layer.Mask == nil || layer.Mask.Width != w || layer.Mask.Height != h {
			continue
		}
		a := float64(layer.Color.A) / 255
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if !layer.Mask.At(x, y) {
					continue
				}
				i := nrgba.PixOffset(x, y)
				nrgba.Pix[i+0] = types.ClampByte(float64(nrgba.Pix[i+0])*(1-a) + float64(layer.Color.R)*a)
				nrgba.Pix[i+1] = types.ClampByte(float64(nrgba.Pix[i+1])*(1-a) + float64(layer.Color.G)*a)
				nrgba.Pix[i+2] = types.ClampByte(float64(nrgba.Pix[i+2])*(1-a) + float64(layer.Color.B)*a)
			}
		}
	}

	stroke := int(math.Max(1, 0.004*float64(minInt(w, h)))) // ~0.4% of min side
	gold := color.NRGBA{255, 204, 0, 255}
	red := color.NRGBA{255, 0, 0, 255}

	for _, r := range ov.Boxes {
		drawBox(nrgba, r, gold, stroke)
	}
	if ov.Horizon >= 0 && ov.Horizon < h {
		for s := 0; s < stroke; s++ {
			drawHLine(nrgba, ov.Horizon+s, 0, w, red)
		}
	}
	return nrgba
}

// Helper functions
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawBox(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	x0, y0, x1, y1 := r.Min.X, r.Min.Y, r.Max.X, r.Max.Y
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
