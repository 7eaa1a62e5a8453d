package scene

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/scene-enhancer/pkg/histogram"
	"github.com/menta2k/scene-enhancer/pkg/landscape"
	"github.com/menta2k/scene-enhancer/pkg/processing"
	"github.com/menta2k/scene-enhancer/pkg/skin"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

// Analyzer classifies scenes
type Analyzer struct {
	config    Config
	histogram *histogram.Analyzer
	skin      *skin.Detector
	landscape *landscape.Detector
}

// Config holds configuration for scene analysis
type Config struct {
	Thresholds Thresholds
	// EdgeThreshold is the edge strength above which a pixel counts as detail
	EdgeThreshold float64
	// SquareTolerance is the aspect-ratio deviation from 1 still framed square
	SquareTolerance float64
	// FocusRatio is how much denser than the average of the other cells the
	// densest grid cell must be to define a focus
	FocusRatio float64
	// PortraitCenterRadius bounds the skin centroid's distance from the
	// frame centre, in normalised units
	PortraitCenterRadius float64
	// PortraitMaxPeriphery is the background edge density still treated as
	// a shallow depth of field
	PortraitMaxPeriphery float64

	BacklitClip   float64
	BacklitDelta  float64
	HarshRange    float64
	HarshClip     float64
	HighKeyMedian float64

	Histogram histogram.Config
	Skin      skin.Config
	Landscape landscape.Config
}

// DefaultConfig returns the default scene configuration
func DefaultConfig() Config {
	return Config{
		Thresholds:           DefaultThresholds(),
		EdgeThreshold:        0.08,
		SquareTolerance:      0.1,
		FocusRatio:           1.5,
		PortraitCenterRadius: 0.3,
		PortraitMaxPeriphery: 0.2,
		BacklitClip:          0.05,
		BacklitDelta:         40,
		HarshRange:           0.9,
		HarshClip:            0.1,
		HighKeyMedian:        185,
		Histogram:            histogram.DefaultConfig(),
		Skin:                 skin.DefaultConfig(),
		Landscape:            landscape.DefaultConfig(),
	}
}

// New creates a new Analyzer with default configuration
func New() *Analyzer {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new Analyzer with custom configuration
func NewWithConfig(config Config) *Analyzer {
	return &Analyzer{
		config:    config,
		histogram: histogram.NewWithConfig(config.Histogram),
		skin:      skin.NewWithConfig(config.Skin),
		landscape: landscape.NewWithConfig(config.Landscape),
	}
}

// Analysis is the immutable result of a scene analysis. Width and Height
// are the working resolution the masks refer to; Scale maps it back to
// the source buffer.
type Analysis struct {
	Type        Type           `json:"type"`
	Confidence  float64        `json:"confidence"`
	Candidates  []Candidate    `json:"candidates,omitempty"`
	Composition Composition    `json:"composition"`
	Lighting    types.Lighting `json:"lighting"`

	SkinCoverage    float64 `json:"skin_coverage"`
	SkyCoverage     float64 `json:"sky_coverage"`
	FoliageCoverage float64 `json:"foliage_coverage"`

	Signals   Signals            `json:"-"`
	Stats     histogram.Stats    `json:"stats"`
	Skin      skin.Result        `json:"skin"`
	Landscape landscape.Analysis `json:"landscape"`

	Width  int     `json:"width"`
	Height int     `json:"height"`
	Scale  float64 `json:"scale"`
}

// AnalyzeAt downsamples buf so its long side is at most maxDim, computes
// histogram statistics there and analyzes the scene.
func (a *Analyzer) AnalyzeAt(ctx context.Context, buf *types.PixelBuffer, maxDim int) (*Analysis, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	work, scale := processing.Downsample(buf, maxDim)
	stats, err := a.histogram.Analyze(work)
	if err != nil {
		return nil, fmt.Errorf("failed to compute histogram: %w", err)
	}
	res, err := a.Analyze(ctx, work, stats)
	if err != nil {
		return nil, err
	}
	res.Scale = scale
	return res, nil
}

// Analyze classifies buf given its histogram statistics. Skin, landscape and
// edge analysis run concurrently.
func (a *Analyzer) Analyze(ctx context.Context, buf *types.PixelBuffer, stats histogram.Stats) (*Analysis, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, types.Cancelled(err)
	}

	centerLuma, surroundLuma := centerSurround(buf)
	lighting := a.classifyLighting(stats, centerLuma, surroundLuma)

	var (
		skinRes skin.Result
		landRes landscape.Analysis
		edges   []float64
		group   errgroup.Group
	)
	group.Go(func() error {
		var err error
		skinRes, err = a.skin.Detect(buf, lighting)
		if err != nil {
			return fmt.Errorf("skin detection failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		var err error
		landRes, err = a.landscape.Detect(buf)
		if err != nil {
			return fmt.Errorf("landscape detection failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		edges = EdgeMap(buf)
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, types.Cancelled(err)
	}

	comp := a.analyzeComposition(edges, buf.Width, buf.Height)
	signals := Signals{
		SkinCoverage:       skinRes.Coverage,
		CompositionSupport: a.portraitSupport(skinRes, comp),
		NatureCoverage:     landRes.Combined(),
		MeanLuminance:      stats.MeanLuminance,
		DynamicRange:       stats.DynamicRange,
	}
	class := Classify(signals, a.config.Thresholds)

	return &Analysis{
		Type:            class.Type,
		Confidence:      class.Confidence,
		Candidates:      class.Candidates,
		Composition:     comp,
		Lighting:        lighting,
		SkinCoverage:    skinRes.Coverage,
		SkyCoverage:     landRes.SkyCoverage,
		FoliageCoverage: landRes.FoliageCoverage,
		Signals:         signals,
		Stats:           stats,
		Skin:            skinRes,
		Landscape:       landRes,
		Width:           buf.Width,
		Height:          buf.Height,
		Scale:           1,
	}, nil
}

// portraitSupport checks that skin mass sits near the centre and that the
// background is calmer than the subject or below the periphery limit.
func (a *Analyzer) portraitSupport(s skin.Result, c Composition) bool {
	if s.Coverage == 0 {
		return false
	}
	dist := math.Hypot(s.CentroidX-0.5, s.CentroidY-0.5)
	if dist > a.config.PortraitCenterRadius {
		return false
	}
	return c.PeripheryDensity <= math.Max(a.config.PortraitMaxPeriphery, c.CenterDensity)
}
