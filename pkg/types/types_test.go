package types

import (
	"errors"
	"image"
	"math"
	"testing"
)

func TestPixelBufferValidate(t *testing.T) {
	if err := NewPixelBuffer(0, 10, LayoutRGB).Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero width, got %v", err)
	}

	var nilBuf *PixelBuffer
	if err := nilBuf.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil buffer, got %v", err)
	}

	short := &PixelBuffer{Width: 2, Height: 2, Layout: LayoutRGB, Pix: make([]uint8, 5)}
	if err := short.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for short sample slice, got %v", err)
	}

	if err := NewPixelBuffer(4, 3, LayoutRGBA).Validate(); err != nil {
		t.Errorf("Valid buffer failed validation: %v", err)
	}
}

func TestNewPixelBufferOpaqueAlpha(t *testing.T) {
	b := NewPixelBuffer(3, 2, LayoutRGBA)
	for i := 3; i < len(b.Pix); i += 4 {
		if b.Pix[i] != 255 {
			t.Fatalf("Expected opaque alpha at sample %d, got %d", i, b.Pix[i])
		}
	}
}

func TestFromNormalized(t *testing.T) {
	b, err := FromNormalized(1, 2, LayoutRGB, []float32{0, 0.5, 1, 1.5, -1, 0.25})
	if err != nil {
		t.Fatalf("FromNormalized failed: %v", err)
	}
	want := []uint8{0, 128, 255, 255, 0, 64}
	for i, v := range want {
		if b.Pix[i] != v {
			t.Errorf("Sample %d: expected %d, got %d", i, v, b.Pix[i])
		}
	}

	if _, err := FromNormalized(2, 2, LayoutRGB, []float32{0}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for wrong sample count, got %v", err)
	}
}

func TestCloneAndEqual(t *testing.T) {
	b := NewPixelBuffer(4, 4, LayoutRGB)
	b.SetRGB(1, 2, 10, 20, 30)
	c := b.Clone()
	if !b.Equal(c) {
		t.Fatal("Clone should equal original")
	}
	c.SetRGB(1, 2, 11, 20, 30)
	if b.Equal(c) {
		t.Error("Modified clone should differ")
	}
	if r, _, _ := b.RGB(1, 2); r != 10 {
		t.Errorf("Clone shares storage with original")
	}
}

func TestSafeDiv(t *testing.T) {
	if v := SafeDiv(1, 0, 7); v != 7 {
		t.Errorf("Expected fallback 7, got %f", v)
	}
	if v := SafeDiv(6, 3, 0); v != 2 {
		t.Errorf("Expected 2, got %f", v)
	}
}

func TestMaskFromPointsOutOfBounds(t *testing.T) {
	_, err := MaskFromPoints(4, 4, []image.Point{{1, 1}, {4, 0}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}

	m, err := MaskFromPoints(4, 4, []image.Point{{1, 1}, {2, 3}})
	if err != nil {
		t.Fatalf("MaskFromPoints failed: %v", err)
	}
	if m.Count() != 2 || !m.At(2, 3) {
		t.Errorf("Unexpected mask contents: count=%d", m.Count())
	}
}

func TestMaskFromRectClips(t *testing.T) {
	m := MaskFromRect(10, 10, image.Rect(-3, 7, 4, 15))
	if n := m.Count(); n != 4*3 {
		t.Errorf("Expected the 4x3 overlap to be covered, got %d pixels", n)
	}
	if b := m.Bounds(); b != image.Rect(0, 7, 4, 10) {
		t.Errorf("Expected clipped bounds, got %v", b)
	}
	if !MaskFromRect(10, 10, image.Rect(20, 20, 30, 30)).Empty() {
		t.Error("A rectangle outside the grid should give an empty mask")
	}
}

func TestMaskSetOperations(t *testing.T) {
	a := MaskFromRect(10, 10, image.Rect(0, 0, 5, 5))
	b := MaskFromRect(10, 10, image.Rect(3, 3, 8, 8))

	if n := a.Union(b).Count(); n != 25+25-4 {
		t.Errorf("Union count: expected 46, got %d", n)
	}
	if n := a.Intersect(b).Count(); n != 4 {
		t.Errorf("Intersect count: expected 4, got %d", n)
	}
	if n := a.Subtract(b).Count(); n != 21 {
		t.Errorf("Subtract count: expected 21, got %d", n)
	}
	if n := a.Invert().Count(); n != 75 {
		t.Errorf("Invert count: expected 75, got %d", n)
	}
	if a.Count() != 25 {
		t.Error("Set operations must not modify operands")
	}
}

func TestMaskBoundary(t *testing.T) {
	m := MaskFromRect(10, 10, image.Rect(2, 2, 7, 7))
	boundary := m.Boundary()

	// 5x5 square has 16 boundary pixels
	if n := boundary.Count(); n != 16 {
		t.Errorf("Expected 16 boundary pixels, got %d", n)
	}
	if boundary.At(4, 4) {
		t.Error("Centre pixel should not be on the boundary")
	}
}

func TestMaskDilateAndBounds(t *testing.T) {
	m := NewMask(20, 20)
	m.Set(10, 10, true)

	d := m.Dilate(2)
	if d.Count() != 25 {
		t.Errorf("Expected 25 pixels after dilating a point by 2, got %d", d.Count())
	}
	if got := d.Bounds(); got != image.Rect(8, 8, 13, 13) {
		t.Errorf("Unexpected bounds %v", got)
	}

	edge := NewMask(5, 5)
	edge.Set(0, 0, true)
	if n := edge.Dilate(1).Count(); n != 4 {
		t.Errorf("Expected dilation clipped at the corner to cover 4 pixels, got %d", n)
	}

	if !NewMask(3, 3).Bounds().Empty() {
		t.Error("Empty mask should have empty bounds")
	}
}

func TestMaskSignedDistance(t *testing.T) {
	m := MaskFromRect(21, 21, image.Rect(5, 5, 16, 16))
	d := m.SignedDistance()

	centre := d[10*21+10]
	if centre < 4 || centre > 6 {
		t.Errorf("Expected centre distance around 5, got %f", centre)
	}
	if v := d[5*21+10]; v <= 0 || v > 1 {
		t.Errorf("Expected small positive distance on the inner edge, got %f", v)
	}
	if v := d[0]; v >= -4 {
		t.Errorf("Expected corner to be well outside, got %f", v)
	}
	if math.IsNaN(float64(centre)) {
		t.Error("Distance must not be NaN")
	}
}

func TestMaskIntegral(t *testing.T) {
	m := MaskFromRect(8, 8, image.Rect(2, 2, 6, 6))
	mi := m.Integral()
	if n := mi.Count(image.Rect(0, 0, 8, 8)); n != 16 {
		t.Errorf("Expected 16, got %d", n)
	}
	if n := mi.Count(image.Rect(0, 0, 3, 3)); n != 1 {
		t.Errorf("Expected 1, got %d", n)
	}
	if n := mi.Count(image.Rect(6, 0, 8, 8)); n != 0 {
		t.Errorf("Expected 0, got %d", n)
	}
}

func TestWeightMapThreshold(t *testing.T) {
	w := NewWeightMap(2, 2)
	w.Values = []float32{0.1, 0.5, 0.9, 0.49}
	m := w.Threshold(0.5)
	if m.Count() != 2 || !m.At(1, 0) || !m.At(0, 1) {
		t.Errorf("Unexpected threshold result, count=%d", m.Count())
	}
}
