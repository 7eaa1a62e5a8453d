package types

import (
	"fmt"
	"image"
	"math"
)

// Mask is a bitmap coverage over a buffer-sized grid. Set operations return
// new masks and never modify their operands.
type Mask struct {
	Width  int
	Height int
	bits   []bool
}

// NewMask allocates an empty mask
func NewMask(width, height int) *Mask {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Mask{Width: width, Height: height, bits: make([]bool, width*height)}
}

// MaskFromRect returns a mask covering r clipped to the grid. Parts of r
// outside the grid are dropped silently; a rectangle entirely outside gives
// an empty mask. Callers that must reject such input check r.In first, or
// use MaskFromPoints.
func MaskFromRect(width, height int, r image.Rectangle) *Mask {
	m := NewMask(width, height)
	r = r.Intersect(image.Rect(0, 0, width, height))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			m.bits[y*width+x] = true
		}
	}
	return m
}

// MaskFromPoints builds a mask from explicit coordinates. Any coordinate
// outside the grid is rejected.
func MaskFromPoints(width, height int, pts []image.Point) (*Mask, error) {
	m := NewMask(width, height)
	for _, p := range pts {
		if p.X < 0 || p.Y < 0 || p.X >= width || p.Y >= height {
			return nil, fmt.Errorf("%w: mask point (%d,%d) outside %dx%d", ErrInvalidInput, p.X, p.Y, width, height)
		}
		m.bits[p.Y*width+p.X] = true
	}
	return m, nil
}

// At reports whether (x, y) is covered. Coordinates outside the grid are not.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.bits[y*m.Width+x]
}

// Set marks or clears (x, y)
func (m *Mask) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.bits[y*m.Width+x] = v
}

// Count returns the number of covered pixels
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// Coverage returns the covered fraction of the grid
func (m *Mask) Coverage() float64 {
	return SafeDiv(float64(m.Count()), float64(len(m.bits)), 0)
}

// Empty reports whether nothing is covered
func (m *Mask) Empty() bool {
	for _, b := range m.bits {
		if b {
			return false
		}
	}
	return true
}

// Bounds returns the tight bounding box of covered pixels
func (m *Mask) Bounds() image.Rectangle {
	minX, minY, maxX, maxY := m.Width, m.Height, -1, -1
	for y := 0; y < m.Height; y++ {
		row := m.bits[y*m.Width : (y+1)*m.Width]
		for x, b := range row {
			if !b {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			maxY = y
		}
	}
	if maxX < 0 {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// Points lists covered coordinates in row-major order
func (m *Mask) Points() []image.Point {
	pts := make([]image.Point, 0, m.Count())
	for i, b := range m.bits {
		if b {
			pts = append(pts, image.Pt(i%m.Width, i/m.Width))
		}
	}
	return pts
}

// Clone returns a deep copy
func (m *Mask) Clone() *Mask {
	bits := make([]bool, len(m.bits))
	copy(bits, m.bits)
	return &Mask{Width: m.Width, Height: m.Height, bits: bits}
}

// Fits checks the mask has the same geometry as a buffer
func (m *Mask) Fits(b *PixelBuffer) error {
	if m == nil {
		return fmt.Errorf("%w: nil mask", ErrInvalidInput)
	}
	if b == nil || m.Width != b.Width || m.Height != b.Height || len(m.bits) != m.Width*m.Height {
		return fmt.Errorf("%w: mask %dx%d does not match buffer", ErrInvalidInput, m.Width, m.Height)
	}
	return nil
}

func (m *Mask) combine(o *Mask, op func(a, b bool) bool) *Mask {
	out := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			i := y*m.Width + x
			out.bits[i] = op(m.bits[i], o.At(x, y))
		}
	}
	return out
}

// Union returns pixels covered by either mask
func (m *Mask) Union(o *Mask) *Mask {
	return m.combine(o, func(a, b bool) bool { return a || b })
}

// Intersect returns pixels covered by both masks
func (m *Mask) Intersect(o *Mask) *Mask {
	return m.combine(o, func(a, b bool) bool { return a && b })
}

// Subtract returns pixels covered by m but not by o
func (m *Mask) Subtract(o *Mask) *Mask {
	return m.combine(o, func(a, b bool) bool { return a && !b })
}

// Invert returns the complement
func (m *Mask) Invert() *Mask {
	out := NewMask(m.Width, m.Height)
	for i, b := range m.bits {
		out.bits[i] = !b
	}
	return out
}

// Boundary returns covered pixels with at least one 4-neighbour that is not
// covered. Pixels on the grid edge count as boundary.
func (m *Mask) Boundary() *Mask {
	out := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.bits[y*m.Width+x] {
				continue
			}
			if !m.At(x-1, y) || !m.At(x+1, y) || !m.At(x, y-1) || !m.At(x, y+1) {
				out.bits[y*m.Width+x] = true
			}
		}
	}
	return out
}

// Dilate grows the mask by r pixels using a square structuring element
func (m *Mask) Dilate(r int) *Mask {
	if r <= 0 {
		return m.Clone()
	}
	// separable: horizontal then vertical
	tmp := NewMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		last := -r - 1
		for x := 0; x < m.Width+r; x++ {
			if x < m.Width && m.bits[y*m.Width+x] {
				last = x
			}
			c := x - r
			if c >= 0 && c < m.Width && x-last <= 2*r && last >= 0 {
				tmp.bits[y*m.Width+c] = true
			}
		}
	}
	out := NewMask(m.Width, m.Height)
	for x := 0; x < m.Width; x++ {
		last := -r - 1
		for y := 0; y < m.Height+r; y++ {
			if y < m.Height && tmp.bits[y*m.Width+x] {
				last = y
			}
			c := y - r
			if c >= 0 && c < m.Height && y-last <= 2*r && last >= 0 {
				out.bits[c*m.Width+x] = true
			}
		}
	}
	return out
}

// SignedDistance returns, for every pixel, the approximate Euclidean distance
// to the mask edge: positive inside the mask, negative outside. A 3-4 chamfer
// transform is used. When the mask is empty or full the distances saturate.
func (m *Mask) SignedDistance() []float32 {
	inside := chamfer(m, true)
	outside := chamfer(m, false)
	out := make([]float32, len(m.bits))
	for i, b := range m.bits {
		if b {
			out[i] = inside[i] - 0.5
		} else {
			out[i] = -(outside[i] - 0.5)
		}
	}
	return out
}

// chamfer computes the distance from pixels whose coverage equals target to
// the nearest pixel whose coverage differs.
func chamfer(m *Mask, target bool) []float32 {
	const inf = float32(math.MaxFloat32 / 4)
	w, h := m.Width, m.Height
	d := make([]float32, w*h)
	for i, b := range m.bits {
		if b == target {
			d[i] = inf
		}
	}
	relax := func(i, x, y int, cost float32) {
		if x < 0 || y < 0 || x >= w || y >= h {
			return
		}
		if v := d[y*w+x] + cost; v < d[i] {
			d[i] = v
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if d[i] == 0 {
				continue
			}
			relax(i, x-1, y, 3)
			relax(i, x, y-1, 3)
			relax(i, x-1, y-1, 4)
			relax(i, x+1, y-1, 4)
		}
	}
	for y := h - 1; y >= 0; y-- {
		for x := w - 1; x >= 0; x-- {
			i := y*w + x
			if d[i] == 0 {
				continue
			}
			relax(i, x+1, y, 3)
			relax(i, x, y+1, 3)
			relax(i, x+1, y+1, 4)
			relax(i, x-1, y+1, 4)
		}
	}
	for i := range d {
		d[i] /= 3
	}
	return d
}

// MaskIntegral is a summed-area table over mask coverage
type MaskIntegral struct {
	width int
	sum   []int32
}

// Integral builds a summed-area table for O(1) rectangle counts
func (m *Mask) Integral() *MaskIntegral {
	w := m.Width + 1
	sum := make([]int32, w*(m.Height+1))
	for y := 0; y < m.Height; y++ {
		var row int32
		for x := 0; x < m.Width; x++ {
			if m.bits[y*m.Width+x] {
				row++
			}
			sum[(y+1)*w+x+1] = sum[y*w+x+1] + row
		}
	}
	return &MaskIntegral{width: w, sum: sum}
}

// Count returns the number of covered pixels in r. r must lie inside the grid.
func (mi *MaskIntegral) Count(r image.Rectangle) int {
	w := mi.width
	return int(mi.sum[r.Max.Y*w+r.Max.X] - mi.sum[r.Min.Y*w+r.Max.X] - mi.sum[r.Max.Y*w+r.Min.X] + mi.sum[r.Min.Y*w+r.Min.X])
}
