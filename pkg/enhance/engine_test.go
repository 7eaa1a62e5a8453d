package enhance

import (
	"errors"
	"math"
	"testing"

	"github.com/menta2k/scene-enhancer/pkg/performance"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

var medium = performance.ProfileFor(performance.Medium)

func createSolidBuffer(width, height int, r, g, b uint8) *types.PixelBuffer {
	buf := types.NewPixelBuffer(width, height, types.LayoutRGB)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			buf.SetRGB(x, y, r, g, b)
		}
	}
	return buf
}

// createWarmGradient is a dim, low-contrast image with a warm cast
func createWarmGradient(width, height int) *types.PixelBuffer {
	buf := types.NewPixelBuffer(width, height, types.LayoutRGB)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			f := float64(x) / float64(width-1)
			buf.SetRGB(x, y, types.ClampByte(70+51*f), types.ClampByte(55+38*f), types.ClampByte(35+25*f))
		}
	}
	return buf
}

func createPortraitBuffer(width, height int) *types.PixelBuffer {
	buf := types.NewPixelBuffer(width, height, types.LayoutRGB)
	cx, cy := float64(width)/2, float64(height)/2
	rx, ry := float64(width)*0.35, float64(height)*0.4
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := (float64(x)+0.5-cx)/rx, (float64(y)+0.5-cy)/ry
			if dx*dx+dy*dy <= 1 {
				buf.SetRGB(x, y, 224, 172, 140)
			} else {
				buf.SetRGB(x, y, 90, 110, 130)
			}
		}
	}
	return buf
}

func createLandscapeBuffer(width, height, horizon int) *types.PixelBuffer {
	buf := types.NewPixelBuffer(width, height, types.LayoutRGB)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if y < horizon {
				buf.SetRGB(x, y, 110, 160, 230)
				continue
			}
			f := 0.8 + 0.1*float64((x*7+y*13)%5)
			buf.SetRGB(x, y, types.ClampByte(60*f), types.ClampByte(140*f), types.ClampByte(50*f))
		}
	}
	return buf
}

func TestNew(t *testing.T) {
	engine := New()
	if engine == nil {
		t.Fatal("New() returned nil")
	}
	if engine.config.ExposureDamping != 0.6 {
		t.Errorf("Expected exposure damping 0.6, got %f", engine.config.ExposureDamping)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeSmart, "smart": ModeSmart, "portrait": ModePortrait, "landscape": ModeLandscape} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("vivid"); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestSmartRejectsInvalidBuffer(t *testing.T) {
	_, err := New().Smart(types.NewPixelBuffer(0, 0, types.LayoutRGB), medium)
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestSmartDegenerateBuffersUnchanged(t *testing.T) {
	engine := New()
	for _, v := range []uint8{0, 255} {
		buf := createSolidBuffer(16, 16, v, v, v)
		res, err := engine.Smart(buf, medium)
		if err != nil {
			t.Fatalf("Smart failed: %v", err)
		}
		if !res.Buffer.Equal(buf) {
			t.Errorf("Solid %d buffer should be left unchanged", v)
		}
		if res.Parameters.ContrastDelta != 0 || res.Parameters.Gamma != 1 {
			t.Errorf("Expected neutral tone parameters, got %+v", res.Parameters)
		}
	}
}

func TestSmartDoesNotMutateInput(t *testing.T) {
	buf := createWarmGradient(64, 16)
	orig := buf.Clone()
	res, err := New().Smart(buf, medium)
	if err != nil {
		t.Fatalf("Smart failed: %v", err)
	}
	if !buf.Equal(orig) {
		t.Error("Input buffer was modified")
	}
	if res.Buffer.Equal(buf) {
		t.Error("Expected a dim warm image to be adjusted")
	}
	if res.Metrics.ChangedPixels == 0 || res.Metrics.Coverage != 1 {
		t.Errorf("Unexpected metrics %+v", res.Metrics)
	}
}

func TestSmartCorrectionDirections(t *testing.T) {
	res, err := New().Smart(createWarmGradient(128, 32), medium)
	if err != nil {
		t.Fatalf("Smart failed: %v", err)
	}
	p := res.Parameters
	if p.ExposureDelta <= 0 || p.Gamma >= 1 {
		t.Errorf("Dim image should be brightened, got delta %f gamma %f", p.ExposureDelta, p.Gamma)
	}
	if !(p.ColorGains[0] < 1 && p.ColorGains[2] > 1) {
		t.Errorf("Warm cast should reduce red and boost blue, got %v", p.ColorGains)
	}
	if p.ContrastDelta <= 0 || p.ContrastDelta > 0.3 {
		t.Errorf("Expected clamped positive contrast delta, got %f", p.ContrastDelta)
	}
	// damping: never a full gray-world correction
	if p.ColorGains[2] >= 1.52 {
		t.Errorf("Blue gain should be damped, got %f", p.ColorGains[2])
	}
}

// createBlueCast creates a horizontal ramp with a strong blue cast
func createBlueCast(width, height int) *types.PixelBuffer {
	buf := types.NewPixelBuffer(width, height, types.LayoutRGBA)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := float64(x) * 255 / float64(width-1)
			buf.SetRGB(x, y, uint8(0.6*v), uint8(0.8*v), uint8(v))
		}
	}
	return buf
}

// createBimodal creates a mostly dark frame with a bright band
func createBimodal(width, height int) *types.PixelBuffer {
	buf := types.NewPixelBuffer(width, height, types.LayoutRGBA)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width*3/5 {
				buf.SetRGB(x, y, 15, 15, 15)
			} else {
				buf.SetRGB(x, y, 240, 240, 240)
			}
		}
	}
	return buf
}

// createLowContrast creates a grey ramp spanning only a few levels
func createLowContrast(width, height int) *types.PixelBuffer {
	buf := types.NewPixelBuffer(width, height, types.LayoutRGBA)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(110 + x*30/(width-1))
			buf.SetRGB(x, y, v, v, v)
		}
	}
	return buf
}

func TestSmartConverges(t *testing.T) {
	const passes = 4
	const tolerance = 0.02

	fixtures := []struct {
		name string
		buf  *types.PixelBuffer
	}{
		{"warm gradient", createWarmGradient(128, 32)},
		{"blue cast", createBlueCast(128, 32)},
		{"bimodal", createBimodal(128, 32)},
		{"low contrast", createLowContrast(128, 32)},
	}

	engine := New()
	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			buf := f.buf
			var prev Parameters
			for pass := 0; pass < passes; pass++ {
				res, err := engine.Smart(buf, medium)
				if err != nil {
					t.Fatalf("Smart failed: %v", err)
				}
				p := res.Parameters
				if pass > 0 {
					if p.Magnitude() > prev.Magnitude()+tolerance {
						t.Errorf("Pass %d adjusted more (%f) than pass %d (%f)", pass+1, p.Magnitude(), pass, prev.Magnitude())
					}
					if math.Abs(p.ExposureDelta) > math.Abs(prev.ExposureDelta)+tolerance {
						t.Errorf("Pass %d exposure grew: %f -> %f", pass+1, prev.ExposureDelta, p.ExposureDelta)
					}
					if p.ContrastDelta > prev.ContrastDelta+tolerance {
						t.Errorf("Pass %d contrast grew: %f -> %f", pass+1, prev.ContrastDelta, p.ContrastDelta)
					}
					if prev.ExposureDelta*p.ExposureDelta < 0 && math.Abs(p.ExposureDelta) > tolerance {
						t.Errorf("Pass %d exposure reversed: %f -> %f", pass+1, prev.ExposureDelta, p.ExposureDelta)
					}
				}
				prev = p
				buf = res.Buffer
			}
		})
	}
}

func TestSmartLeavesColourlessImagesUnsaturated(t *testing.T) {
	engine := New()
	res, err := engine.Smart(createBlueCast(128, 32), medium)
	if err != nil {
		t.Fatalf("Smart failed: %v", err)
	}
	// the cast is removed by the gains, not amplified by saturation
	if res.Parameters.SaturationDelta != 0 {
		t.Errorf("Expected no saturation change on a tinted grey ramp, got %f", res.Parameters.SaturationDelta)
	}
	if g := res.Parameters.ColorGains; g[0] <= 1 || g[2] >= 1 {
		t.Errorf("Expected red lifted and blue cut, got %v", g)
	}
}

func TestContrastForStopsAtClipping(t *testing.T) {
	// the top already sits at white, so no expansion widens the spread
	if d := contrastFor(60, 255, 60, 0.9, 0.3); d != 0 {
		t.Errorf("Expected no contrast when both ends are pinned, got %f", d)
	}
	d := contrastFor(100, 160, 128, 0.3, 0.3)
	if d <= 0 || d > 0.3 {
		t.Fatalf("Expected a bounded expansion, got %f", d)
	}
	if got := (160 - 100) * (1 + d) / 255; math.Abs(got-0.3) > 1e-6 {
		t.Errorf("Expansion %f reaches spread %f, want 0.3", d, got)
	}
}

func TestApplyGlobalPreservesAlpha(t *testing.T) {
	buf := types.NewPixelBuffer(4, 4, types.LayoutRGBA)
	for i := 0; i < len(buf.Pix); i += 4 {
		buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2], buf.Pix[i+3] = 100, 80, 60, 77
	}
	p := NeutralParameters()
	p.Gamma = 0.8
	p.SaturationDelta = 0.2

	out := ApplyGlobal(buf, p)
	for i := 3; i < len(out.Pix); i += 4 {
		if out.Pix[i] != 77 {
			t.Fatalf("Alpha changed to %d", out.Pix[i])
		}
	}
	if out.Pix[0] <= 100 {
		t.Errorf("Gamma < 1 should brighten, got %d", out.Pix[0])
	}
}

func TestNeutralParametersAreIdentity(t *testing.T) {
	buf := createWarmGradient(32, 8)
	if !ApplyGlobal(buf, NeutralParameters()).Equal(buf) {
		t.Error("Neutral parameters should not change pixels")
	}
	if NeutralParameters().Magnitude() != 0 {
		t.Error("Neutral parameters should have zero magnitude")
	}
}

func TestEnhanceDispatch(t *testing.T) {
	engine := New()
	res, err := engine.Enhance(createPortraitBuffer(40, 50), nil, ModePortrait, medium)
	if err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}
	if res.Mode != ModePortrait || res.Parameters.SkinSmoothing != engine.config.DefaultIntensity {
		t.Errorf("Unexpected portrait result: mode %s smoothing %f", res.Mode, res.Parameters.SkinSmoothing)
	}
	if _, err := engine.Enhance(createPortraitBuffer(40, 50), nil, Mode(9), medium); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for unknown mode, got %v", err)
	}
}

func BenchmarkSmart(b *testing.B) {
	engine := New()
	buf := createWarmGradient(1024, 768)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Smart(buf, medium)
	}
}
