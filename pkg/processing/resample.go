package processing

import (
	"image"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/menta2k/scene-enhancer/pkg/types"
)

// Downsample shrinks buf so its long side is at most maxDim, averaging with a
// box filter. It returns the input itself when no reduction is needed, along
// with the applied scale factor (output/input).
func Downsample(buf *types.PixelBuffer, maxDim int) (*types.PixelBuffer, float64) {
	long := buf.Width
	if buf.Height > long {
		long = buf.Height
	}
	if maxDim <= 0 || long <= maxDim {
		return buf, 1
	}
	scale := float64(maxDim) / float64(long)
	w := int(float64(buf.Width)*scale + 0.5)
	h := int(float64(buf.Height)*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return Resize(buf, w, h), scale
}

// Resize resamples buf to exactly w x h using an area-averaging filter
func Resize(buf *types.PixelBuffer, w, h int) *types.PixelBuffer {
	if w == buf.Width && h == buf.Height {
		return buf.Clone()
	}
	out := imaging.Resize(ToNRGBA(buf), w, h, imaging.Box)
	return FromImage(out, buf.Layout)
}

// UpsampleBilinear resamples buf to w x h with bilinear interpolation
func UpsampleBilinear(buf *types.PixelBuffer, w, h int) *types.PixelBuffer {
	src := ToNRGBA(buf)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return FromImage(dst, buf.Layout)
}

// DownsampleMask maps a mask onto a w x h grid. A coarse pixel is covered
// when any fine pixel it spans is covered.
func DownsampleMask(m *types.Mask, w, h int) *types.Mask {
	out := types.NewMask(w, h)
	if w <= 0 || h <= 0 {
		return out
	}
	sx := float64(m.Width) / float64(w)
	sy := float64(m.Height) / float64(h)
	for y := 0; y < m.Height; y++ {
		cy := int(float64(y) / sy)
		if cy >= h {
			cy = h - 1
		}
		for x := 0; x < m.Width; x++ {
			if !m.At(x, y) {
				continue
			}
			cx := int(float64(x) / sx)
			if cx >= w {
				cx = w - 1
			}
			out.Set(cx, cy, true)
		}
	}
	return out
}

// UpsampleMask maps a mask onto a larger w x h grid by nearest neighbour
func UpsampleMask(m *types.Mask, w, h int) *types.Mask {
	out := types.NewMask(w, h)
	for y := 0; y < h; y++ {
		sy := y * m.Height / h
		for x := 0; x < w; x++ {
			if m.At(x*m.Width/w, sy) {
				out.Set(x, y, true)
			}
		}
	}
	return out
}
