package sceneenhancer

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/menta2k/scene-enhancer/pkg/enhance"
	"github.com/menta2k/scene-enhancer/pkg/performance"
	"github.com/menta2k/scene-enhancer/pkg/scene"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

func createSolidBuffer(width, height int, r, g, b uint8) *types.PixelBuffer {
	buf := types.NewPixelBuffer(width, height, types.LayoutRGB)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			buf.SetRGB(x, y, r, g, b)
		}
	}
	return buf
}

// createPortraitBuffer paints a centred skin-toned ellipse on dark grey
func createPortraitBuffer(width, height int) *types.PixelBuffer {
	buf := createSolidBuffer(width, height, 70, 70, 70)
	cx, cy := float64(width)/2, float64(height)/2
	rx, ry := float64(width)*0.4, float64(height)*0.45
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := (float64(x)+0.5-cx)/rx, (float64(y)+0.5-cy)/ry
			if dx*dx+dy*dy <= 1 {
				buf.SetRGB(x, y, 224, 172, 140)
			}
		}
	}
	return buf
}

// createHealBuffer paints a uniform frame around a blacked-out hole
func createHealBuffer() (*types.PixelBuffer, *types.Mask) {
	buf := createSolidBuffer(64, 64, 90, 140, 110)
	hole := image.Rect(24, 24, 40, 40)
	for y := hole.Min.Y; y < hole.Max.Y; y++ {
		for x := hole.Min.X; x < hole.Max.X; x++ {
			buf.SetRGB(x, y, 0, 0, 0)
		}
	}
	return buf, types.MaskFromRect(64, 64, hole)
}

func TestNew(t *testing.T) {
	enhancer := New()
	if enhancer == nil {
		t.Fatal("New() returned nil")
	}
	if enhancer.histogram == nil || enhancer.scene == nil || enhancer.engine == nil {
		t.Error("analysis components are nil")
	}
	if enhancer.source == nil || enhancer.synthesizer == nil {
		t.Error("healing components are nil")
	}
	if enhancer.cache == nil {
		t.Error("Expected a scene cache by default")
	}
	if enhancer.Performance().Mode() != performance.Medium {
		t.Errorf("Expected medium mode, got %s", enhancer.Performance().Mode())
	}
}

func TestNewWithOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.CacheSize = 0
	opts.Mode = performance.Lite
	enhancer := NewWithOptions(opts)

	if enhancer.cache != nil {
		t.Error("CacheSize 0 should disable the cache")
	}
	if enhancer.Performance().Mode() != performance.Lite {
		t.Errorf("Expected lite mode, got %s", enhancer.Performance().Mode())
	}
	enhancer.SetMode(performance.Advanced)
	if enhancer.Performance().Snapshot().PatchSize != 11 {
		t.Error("SetMode should change the profile for later operations")
	}
}

func TestComputeHistogramDegenerate(t *testing.T) {
	enhancer := New()
	for _, v := range []uint8{0, 255} {
		stats, err := enhancer.ComputeHistogram(createSolidBuffer(50, 40, v, v, v))
		if err != nil {
			t.Fatalf("ComputeHistogram failed: %v", err)
		}
		if stats.DynamicRange != 0 {
			t.Errorf("Solid %d: expected dynamic range 0, got %f", v, stats.DynamicRange)
		}
	}
	if _, err := enhancer.ComputeHistogram(&types.PixelBuffer{}); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestAnalyzeScene(t *testing.T) {
	enhancer := New()
	buf := createPortraitBuffer(80, 100)

	analysis, err := enhancer.AnalyzeScene(context.Background(), buf)
	if err != nil {
		t.Fatalf("AnalyzeScene failed: %v", err)
	}
	if analysis.Type != scene.TypePortrait || analysis.Confidence <= 0.5 {
		t.Errorf("Expected a confident portrait, got %s (%f)", analysis.Type, analysis.Confidence)
	}

	if _, err := enhancer.AnalyzeScene(context.Background(), buf); err != nil {
		t.Fatalf("AnalyzeScene failed: %v", err)
	}
	if hits, misses := enhancer.CacheStats(); hits != 1 || misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d/%d", hits, misses)
	}
}

func TestSmartEnhanceConverges(t *testing.T) {
	enhancer := New()
	// dim, low-contrast and warm
	buf := types.NewPixelBuffer(64, 16, types.LayoutRGB)
	for y := 0; y < 16; y++ {
		for x := 0; x < 64; x++ {
			f := float64(x) / 63
			buf.SetRGB(x, y, types.ClampByte(70+51*f), types.ClampByte(55+38*f), types.ClampByte(35+25*f))
		}
	}

	first, err := enhancer.SmartEnhance(context.Background(), buf, enhance.ModeSmart)
	if err != nil {
		t.Fatalf("SmartEnhance failed: %v", err)
	}
	second, err := enhancer.SmartEnhance(context.Background(), first.Buffer, enhance.ModeSmart)
	if err != nil {
		t.Fatalf("SmartEnhance failed: %v", err)
	}
	if second.Parameters.Magnitude() > first.Parameters.Magnitude() {
		t.Errorf("Second pass adjusted more: %f > %f", second.Parameters.Magnitude(), first.Parameters.Magnitude())
	}
}

func TestEnhancePortrait(t *testing.T) {
	enhancer := New()
	buf := createPortraitBuffer(80, 100)

	res, err := enhancer.EnhancePortrait(context.Background(), buf, 0)
	if err != nil {
		t.Fatalf("EnhancePortrait failed: %v", err)
	}
	if !res.Buffer.Equal(buf) {
		t.Error("Intensity 0 must return an identical buffer")
	}

	if _, err := enhancer.EnhancePortrait(context.Background(), buf, 120); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for intensity 120, got %v", err)
	}
}

func TestEnhanceLandscapeNoRegion(t *testing.T) {
	buf := createSolidBuffer(40, 40, 130, 30, 30)
	res, err := New().EnhanceLandscape(buf, enhance.DefaultLandscapeParams())
	if err != nil {
		t.Fatalf("EnhanceLandscape failed: %v", err)
	}
	if res.Status != types.StatusNoApplicableRegion || !res.Buffer.Equal(buf) {
		t.Errorf("Expected an unchanged buffer flagged no_applicable_region, got %s", res.Status)
	}
}

func TestHealArea(t *testing.T) {
	buf, mask := createHealBuffer()
	res, err := New().HealArea(context.Background(), buf, mask, performance.Lite, nil)
	if err != nil {
		t.Fatalf("HealArea failed: %v", err)
	}
	for _, pt := range mask.Points() {
		if r, g, b := res.Buffer.RGB(pt.X, pt.Y); r != 90 || g != 140 || b != 110 {
			t.Fatalf("Healed pixel %v is (%d,%d,%d)", pt, r, g, b)
		}
	}
	if res.Status != types.StatusOK {
		t.Errorf("Expected ok, got %s", res.Status)
	}
}

func TestHealAreaInvalidMask(t *testing.T) {
	buf, _ := createHealBuffer()
	_, err := New().HealArea(context.Background(), buf, types.NewMask(10, 10), performance.Lite, nil)
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestStartHealArea(t *testing.T) {
	buf, mask := createHealBuffer()
	job := New().StartHealArea(context.Background(), buf, mask, performance.Medium)

	res, err := job.Wait()
	if err != nil {
		t.Fatalf("Heal job failed: %v", err)
	}
	select {
	case <-job.Done():
	default:
		t.Error("Done should be closed after Wait returns")
	}
	done, total := job.Progress()
	if total == 0 || done != total || total != res.Patches {
		t.Errorf("Expected progress %d/%d, got %d/%d", res.Patches, res.Patches, done, total)
	}
}

func TestStartHealAreaCancelled(t *testing.T) {
	buf, mask := createHealBuffer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := New().StartHealArea(ctx, buf, mask, performance.Medium)
	res, err := job.Wait()
	if res != nil {
		t.Error("A cancelled job must not return a buffer")
	}
	if !errors.Is(err, types.ErrCancelled) {
		t.Errorf("Expected ErrCancelled, got %v", err)
	}
}

func TestStartAnalyzeScene(t *testing.T) {
	job := New().StartAnalyzeScene(context.Background(), createPortraitBuffer(80, 100))
	analysis, err := job.Wait()
	if err != nil {
		t.Fatalf("Analyze job failed: %v", err)
	}
	if analysis.Type != scene.TypePortrait {
		t.Errorf("Expected portrait, got %s", analysis.Type)
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version || Version == "" {
		t.Errorf("Unexpected version %q", GetVersion())
	}
}

func BenchmarkAnalyzeScene(b *testing.B) {
	opts := DefaultOptions()
	opts.CacheSize = 0
	enhancer := NewWithOptions(opts)
	buf := createPortraitBuffer(400, 300)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		enhancer.AnalyzeScene(context.Background(), buf)
	}
}

func BenchmarkHealArea(b *testing.B) {
	enhancer := New()
	buf, mask := createHealBuffer()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		enhancer.HealArea(context.Background(), buf, mask, performance.Medium, nil)
	}
}
