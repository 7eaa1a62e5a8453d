// Package sceneenhancer provides on-device photo scene analysis, automatic
// enhancement and patch-based healing.
//
// This package combines histogram statistics, skin and landscape detection
// and composition analysis to classify a photo, derives damped enhancement
// parameters from that classification, and removes unwanted areas by
// synthesizing texture from nearby source patches.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		sceneenhancer "github.com/menta2k/scene-enhancer"
//		"github.com/menta2k/scene-enhancer/pkg/enhance"
//		"github.com/menta2k/scene-enhancer/pkg/processing"
//	)
//
//	func main() {
//		enhancer := sceneenhancer.New()
//		proc := processing.NewProcessor()
//
//		buf, err := proc.LoadBuffer("photo.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		analysis, err := enhancer.AnalyzeScene(context.Background(), buf)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("Scene: %s (confidence %.2f)\n", analysis.Type, analysis.Confidence)
//
//		result, err := enhancer.SmartEnhance(context.Background(), buf, enhance.ModeSmart)
//		if err != nil {
//			log.Fatal(err)
//		}
//		if err := proc.SaveBuffer(result.Buffer, "photo_enhanced.jpg", "jpg", 90, false); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these components:
//
// 1. Histogram (pkg/histogram): exposure, dynamic range and colour balance statistics
// 2. Scene (pkg/scene): scene classification built on the skin and landscape detectors
// 3. Enhance (pkg/enhance): smart, portrait and landscape enhancement
// 4. Source (pkg/source): candidate source patches around a healing mask
// 5. Synthesis (pkg/synthesis): multi-scale texture synthesis
// 6. Performance (pkg/performance): Lite/Medium/Advanced processing budgets
//
// Every operation reads its input buffer and returns a newly allocated one.
// Healing checks for cancellation between patches and returns either a
// complete buffer or none.
package sceneenhancer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/menta2k/scene-enhancer/pkg/enhance"
	"github.com/menta2k/scene-enhancer/pkg/histogram"
	"github.com/menta2k/scene-enhancer/pkg/performance"
	"github.com/menta2k/scene-enhancer/pkg/processing"
	"github.com/menta2k/scene-enhancer/pkg/scene"
	"github.com/menta2k/scene-enhancer/pkg/source"
	"github.com/menta2k/scene-enhancer/pkg/synthesis"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

// Version of the scene enhancer library
const Version = "1.0.0"

// Options configure an Enhancer
type Options struct {
	Histogram histogram.Config
	Scene     scene.Config
	Enhance   enhance.Config
	Source    source.Config
	Synthesis synthesis.Config

	// Mode is the initial performance tier
	Mode performance.Mode
	// CacheSize is the number of scene analyses memoized; 0 disables the cache
	CacheSize int
	Logger    zerolog.Logger
}

// DefaultOptions returns options with every component at its defaults and
// logging disabled
func DefaultOptions() Options {
	return Options{
		Histogram: histogram.DefaultConfig(),
		Scene:     scene.DefaultConfig(),
		Enhance:   enhance.DefaultConfig(),
		Source:    source.DefaultConfig(),
		Synthesis: synthesis.DefaultConfig(),
		Mode:      performance.Medium,
		CacheSize: 8,
		Logger:    zerolog.Nop(),
	}
}

// Enhancer provides a high-level interface for analysis, enhancement and healing
type Enhancer struct {
	histogram   *histogram.Analyzer
	scene       *scene.Analyzer
	cache       *scene.Cache
	engine      *enhance.Engine
	source      *source.Detector
	synthesizer *synthesis.Synthesizer
	performance *performance.Manager
	logger      zerolog.Logger
}

// New creates a new Enhancer with default configuration
func New() *Enhancer {
	return NewWithOptions(DefaultOptions())
}

// NewWithOptions creates a new Enhancer with custom configuration
func NewWithOptions(opts Options) *Enhancer {
	detector := source.NewWithConfig(opts.Source)
	synthesizer := synthesis.NewWithConfig(opts.Synthesis)
	synthesizer.SetSourceDetector(detector)
	synthesizer.SetLogger(opts.Logger.With().Str("component", "synthesis").Logger())

	analyzer := scene.NewWithConfig(opts.Scene)
	e := &Enhancer{
		histogram:   histogram.NewWithConfig(opts.Histogram),
		scene:       analyzer,
		engine:      enhance.NewWithConfig(opts.Enhance),
		source:      detector,
		synthesizer: synthesizer,
		performance: performance.NewManager(opts.Mode),
		logger:      opts.Logger,
	}
	if opts.CacheSize > 0 {
		e.cache = scene.NewCache(analyzer, opts.CacheSize)
	}
	return e
}

// Performance returns the manager holding the current performance tier
func (e *Enhancer) Performance() *performance.Manager {
	return e.performance
}

// SetMode changes the performance tier for operations started afterwards
func (e *Enhancer) SetMode(mode performance.Mode) {
	e.performance.Set(mode)
}

// ComputeHistogram returns histogram statistics measured at the current
// tier's analysis resolution
func (e *Enhancer) ComputeHistogram(buf *types.PixelBuffer) (histogram.Stats, error) {
	if err := buf.Validate(); err != nil {
		return histogram.Stats{}, err
	}
	profile := e.performance.Snapshot()
	work, _ := processing.Downsample(buf, profile.AnalysisMaxDim)
	return e.histogram.Analyze(work)
}

// AnalyzeScene classifies buf. Results are memoized when a cache is configured.
func (e *Enhancer) AnalyzeScene(ctx context.Context, buf *types.PixelBuffer) (*scene.Analysis, error) {
	profile := e.performance.Snapshot()
	start := time.Now()

	var (
		analysis *scene.Analysis
		err      error
	)
	if e.cache != nil {
		analysis, err = e.cache.AnalyzeAt(ctx, buf, profile.AnalysisMaxDim)
	} else {
		analysis, err = e.scene.AnalyzeAt(ctx, buf, profile.AnalysisMaxDim)
	}
	if err != nil {
		return nil, fmt.Errorf("scene analysis failed: %w", err)
	}

	e.logger.Debug().
		Str("type", analysis.Type.String()).
		Float64("confidence", analysis.Confidence).
		Str("lighting", analysis.Lighting.String()).
		Dur("elapsed", time.Since(start)).
		Msg("scene analyzed")
	return analysis, nil
}

// SmartEnhance applies mode with automatically chosen parameters
func (e *Enhancer) SmartEnhance(ctx context.Context, buf *types.PixelBuffer, mode enhance.Mode) (*enhance.Result, error) {
	profile := e.performance.Snapshot()

	var analysis *scene.Analysis
	if mode == enhance.ModePortrait {
		var err error
		if analysis, err = e.AnalyzeScene(ctx, buf); err != nil {
			return nil, err
		}
	}
	res, err := e.engine.Enhance(buf, analysis, mode, profile)
	if err != nil {
		return nil, fmt.Errorf("%s enhancement failed: %w", mode, err)
	}
	e.logResult(res)
	return res, nil
}

// EnhancePortrait smooths and lifts detected skin. intensity is in [0,100].
func (e *Enhancer) EnhancePortrait(ctx context.Context, buf *types.PixelBuffer, intensity float64) (*enhance.Result, error) {
	profile := e.performance.Snapshot()
	analysis, err := e.AnalyzeScene(ctx, buf)
	if err != nil {
		return nil, err
	}
	res, err := e.engine.Portrait(buf, analysis, intensity, profile)
	if err != nil {
		return nil, fmt.Errorf("portrait enhancement failed: %w", err)
	}
	e.logResult(res)
	return res, nil
}

// EnhanceLandscape grades sky and foliage regions
func (e *Enhancer) EnhanceLandscape(buf *types.PixelBuffer, params enhance.LandscapeParams) (*enhance.Result, error) {
	profile := e.performance.Snapshot()
	res, err := e.engine.Landscape(buf, params, profile)
	if err != nil {
		return nil, fmt.Errorf("landscape enhancement failed: %w", err)
	}
	e.logResult(res)
	return res, nil
}

// HealArea fills mask with synthesized texture using the budgets of mode.
// progress, when non-nil, is called after every patch. On cancellation no
// buffer is returned.
func (e *Enhancer) HealArea(ctx context.Context, buf *types.PixelBuffer, mask *types.Mask, mode performance.Mode, progress synthesis.ProgressFunc) (*synthesis.Result, error) {
	start := time.Now()
	res, err := e.synthesizer.Synthesize(ctx, buf, mask, synthesis.Options{
		Profile:  performance.ProfileFor(mode),
		Progress: progress,
	})
	if err != nil {
		return nil, fmt.Errorf("healing failed: %w", err)
	}

	e.logger.Info().
		Str("mode", mode.String()).
		Str("status", res.Status.String()).
		Int("patches", res.Patches).
		Int("operations", res.Operations).
		Float64("confidence", res.Confidence).
		Dur("elapsed", time.Since(start)).
		Msg("area healed")
	return res, nil
}

// FindSources returns the ranked source candidates HealArea would use at
// full resolution
func (e *Enhancer) FindSources(buf *types.PixelBuffer, mask *types.Mask, mode performance.Mode) ([]source.Candidate, error) {
	return e.source.FindCandidates(buf, mask, performance.ProfileFor(mode))
}

// CacheStats reports scene cache hits and misses
func (e *Enhancer) CacheStats() (hits, misses int) {
	if e.cache == nil {
		return 0, 0
	}
	return e.cache.Stats()
}

func (e *Enhancer) logResult(res *enhance.Result) {
	e.logger.Debug().
		Str("mode", res.Mode.String()).
		Str("status", res.Status.String()).
		Int("changed_pixels", res.Metrics.ChangedPixels).
		Float64("mean_delta", res.Metrics.MeanDelta).
		Msg("enhancement applied")
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
