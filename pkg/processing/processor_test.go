package processing

import (
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/menta2k/scene-enhancer/pkg/types"
)

// createGradientBuffer creates an RGBA buffer with a colour ramp and varying alpha
func createGradientBuffer(width, height int) *types.PixelBuffer {
	buf := types.NewPixelBuffer(width, height, types.LayoutRGBA)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := buf.Offset(x, y)
			buf.Pix[i] = uint8(x * 255 / width)
			buf.Pix[i+1] = uint8(y * 255 / height)
			buf.Pix[i+2] = 90
			buf.Pix[i+3] = uint8(128 + x%2*127)
		}
	}
	return buf
}

func createSolidBuffer(width, height int, r, g, b uint8) *types.PixelBuffer {
	buf := types.NewPixelBuffer(width, height, types.LayoutRGB)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			buf.SetRGB(x, y, r, g, b)
		}
	}
	return buf
}

func TestNewProcessor(t *testing.T) {
	if NewProcessor() == nil {
		t.Fatal("NewProcessor() returned nil")
	}
}

func TestImageConversion(t *testing.T) {
	buf := createGradientBuffer(17, 9)
	back := FromImage(ToNRGBA(buf), types.LayoutRGBA)
	if !back.Equal(buf) {
		t.Error("RGBA buffer did not survive conversion through NRGBA")
	}

	rgb := FromImage(ToNRGBA(buf), types.LayoutRGB)
	if rgb.Layout != types.LayoutRGB || len(rgb.Pix) != 17*9*3 {
		t.Fatalf("Unexpected RGB buffer %dx%d %s with %d samples", rgb.Width, rgb.Height, rgb.Layout, len(rgb.Pix))
	}
	r0, g0, b0 := buf.RGB(5, 3)
	r1, g1, b1 := rgb.RGB(5, 3)
	if r0 != r1 || g0 != g1 || b0 != b1 {
		t.Error("Colour changed when dropping alpha")
	}
	if ToNRGBA(rgb).Pix[3] != 255 {
		t.Error("RGB buffers should convert to opaque images")
	}
}

func TestMaskImageConversion(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 8))
	img.SetGray(2, 3, color.Gray{Y: 255})
	img.SetGray(7, 7, color.Gray{Y: 200})
	img.SetGray(4, 4, color.Gray{Y: 100})

	m := MaskFromImage(img, 128)
	if m.Count() != 2 || !m.At(2, 3) || !m.At(7, 7) {
		t.Errorf("Expected pixels (2,3) and (7,7) masked, got %v", m.Points())
	}
	back := MaskToImage(m)
	if back.GrayAt(2, 3).Y != 255 || back.GrayAt(4, 4).Y != 0 {
		t.Error("MaskToImage should render covered pixels white and others black")
	}
}

func TestDownsample(t *testing.T) {
	buf := createSolidBuffer(300, 200, 40, 80, 120)
	same, scale := Downsample(buf, 512)
	if same != buf || scale != 1 {
		t.Error("Downsample should return the input when it already fits")
	}

	small, scale := Downsample(buf, 150)
	if small.Width != 150 || small.Height != 100 || scale != 0.5 {
		t.Fatalf("Expected 150x100 at 0.5, got %dx%d at %f", small.Width, small.Height, scale)
	}
	if r, g, b := small.RGB(70, 50); r != 40 || g != 80 || b != 120 {
		t.Errorf("Area averaging changed a uniform colour: %d,%d,%d", r, g, b)
	}
}

func TestUpsampleBilinear(t *testing.T) {
	buf := createSolidBuffer(10, 10, 200, 100, 50)
	up := UpsampleBilinear(buf, 25, 20)
	if up.Width != 25 || up.Height != 20 {
		t.Fatalf("Expected 25x20, got %dx%d", up.Width, up.Height)
	}
	if r, g, b := up.RGB(12, 9); r != 200 || g != 100 || b != 50 {
		t.Errorf("Bilinear scaling changed a uniform colour: %d,%d,%d", r, g, b)
	}
}

func TestMaskResampling(t *testing.T) {
	m := types.NewMask(10, 10)
	m.Set(5, 5, true)

	coarse := DownsampleMask(m, 5, 5)
	if coarse.Count() != 1 || !coarse.At(2, 2) {
		t.Errorf("A single covered pixel should mark its coarse cell, got %v", coarse.Points())
	}
	fine := UpsampleMask(coarse, 10, 10)
	if fine.Count() != 4 || !fine.At(4, 4) || !fine.At(5, 5) {
		t.Errorf("Expected a 2x2 block after upsampling, got %v", fine.Points())
	}
}

func TestLocalStdDev(t *testing.T) {
	const w, h = 12, 10
	flat := make([]float64, w*h)
	for i := range flat {
		flat[i] = 77
	}
	for i, v := range LocalStdDev(flat, w, h, 2) {
		if v != 0 {
			t.Fatalf("Flat plane should have zero deviation, got %f at %d", v, i)
		}
	}

	checker := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			checker[y*w+x] = float64((x + y) % 2 * 100)
		}
	}
	dev := LocalStdDev(checker, w, h, 1)
	if dev[5*w+5] < 45 || dev[5*w+5] > 55 {
		t.Errorf("Expected a deviation near 50 on a checkerboard, got %f", dev[5*w+5])
	}
}

func TestVerticalGradient(t *testing.T) {
	const w, h = 12, 10
	ramp := make([]float64, w*h)
	columns := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ramp[y*w+x] = 3 * float64(y)
			columns[y*w+x] = float64(x % 2 * 100)
		}
	}
	for i, v := range VerticalGradient(ramp, w, h, 2) {
		if math.Abs(v-3) > 1e-9 {
			t.Fatalf("Expected a gradient of 3 levels per row, got %f at %d", v, i)
		}
	}

	// columns vary only horizontally
	for i, v := range VerticalGradient(columns, w, h, 2) {
		if v != 0 {
			t.Fatalf("Expected no vertical gradient across columns, got %f at %d", v, i)
		}
	}
	if dev := LocalStdDev(columns, w, h, 2); dev[5*w+5] == 0 {
		t.Error("Columns should still have local deviation")
	}
}

func TestSobelMagnitude(t *testing.T) {
	const w, h = 10, 6
	luma := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 5; x < w; x++ {
			luma[y*w+x] = 100
		}
	}
	edges := SobelMagnitude(luma, w, h)
	if edges[3*w+4] != 400 || edges[3*w+5] != 400 {
		t.Errorf("Expected magnitude 400 beside the step, got %f / %f", edges[3*w+4], edges[3*w+5])
	}
	if edges[3*w+1] != 0 || edges[3*w+8] != 0 {
		t.Error("Expected no gradient away from the step")
	}

	d := ComputeDetailMap(luma, w, h, 1)
	if d.Width != w || len(d.StdDev) != w*h || len(d.Edges) != w*h {
		t.Error("Detail map has the wrong shape")
	}
}

func TestCreateDebugOverlay(t *testing.T) {
	buf := createSolidBuffer(40, 30, 100, 100, 100)
	m := types.MaskFromRect(40, 30, image.Rect(0, 0, 10, 10))
	img := NewProcessor().CreateDebugOverlay(buf, Overlay{
		Masks:   []MaskLayer{{Mask: m, Color: color.NRGBA{0, 0, 255, 255}}},
		Horizon: 20,
		Boxes:   []image.Rectangle{image.Rect(20, 2, 35, 12)},
	})
	nrgba := img.(*image.NRGBA)

	if c := nrgba.NRGBAAt(5, 5); c.B != 255 || c.R != 0 {
		t.Errorf("Masked pixel should be tinted blue, got %v", c)
	}
	if c := nrgba.NRGBAAt(15, 20); c.R != 255 || c.G != 0 {
		t.Errorf("Horizon row should be red, got %v", c)
	}
	if c := nrgba.NRGBAAt(20, 5); c.R != 255 || c.G != 204 {
		t.Errorf("Box edge should be gold, got %v", c)
	}
	if c := nrgba.NRGBAAt(27, 7); c.R != 100 {
		t.Errorf("Box interior should be untouched, got %v", c)
	}
	if r, _, _ := buf.RGB(5, 5); r != 100 {
		t.Error("Overlay must not modify the source buffer")
	}
}

func TestSaveAndLoadBuffer(t *testing.T) {
	p := NewProcessor()
	buf := createGradientBuffer(16, 12)
	path := filepath.Join(t.TempDir(), "out.png")

	if err := p.SaveBuffer(buf, path, "png", 90, false); err != nil {
		t.Fatalf("SaveBuffer failed: %v", err)
	}
	loaded, err := p.LoadBuffer(path)
	if err != nil {
		t.Fatalf("LoadBuffer failed: %v", err)
	}
	if !loaded.Equal(buf) {
		t.Error("PNG round trip should be lossless")
	}
}

func TestImageInfo(t *testing.T) {
	info := GetImageInfo(createSolidBuffer(200, 100, 0, 0, 0))
	if info.Width != 200 || info.Height != 100 || info.Area != 20000 || math.Abs(info.AspectRatio-2) > 1e-9 {
		t.Errorf("Unexpected info %+v", info)
	}
	if err := ValidateSize(createSolidBuffer(50, 50, 0, 0, 0), 64); err == nil {
		t.Error("Expected a size error")
	}
	for format, want := range map[string]bool{"jpg": true, "PNG": true, "webp": true, "gif": false} {
		if IsFormatSupported(format) != want {
			t.Errorf("IsFormatSupported(%q) = %v", format, !want)
		}
	}
	if FormatFromPath("/tmp/Photo.JPEG") != "jpeg" {
		t.Errorf("Unexpected format %q", FormatFromPath("/tmp/Photo.JPEG"))
	}
}
