// Package enhance derives adjustment parameters from scene analysis and
// applies them as smart, portrait or landscape enhancements.
package enhance

import (
	"fmt"
	"math"

	"github.com/menta2k/scene-enhancer/pkg/histogram"
	"github.com/menta2k/scene-enhancer/pkg/landscape"
	"github.com/menta2k/scene-enhancer/pkg/performance"
	"github.com/menta2k/scene-enhancer/pkg/scene"
	"github.com/menta2k/scene-enhancer/pkg/skin"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

// Mode selects an enhancement
type Mode int

const (
	ModeSmart Mode = iota
	ModePortrait
	ModeLandscape
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeSmart:
		return "smart"
	case ModePortrait:
		return "portrait"
	case ModeLandscape:
		return "landscape"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMode parses an enhancement mode name
func ParseMode(s string) (Mode, error) {
	switch s {
	case "smart", "":
		return ModeSmart, nil
	case "portrait":
		return ModePortrait, nil
	case "landscape":
		return ModeLandscape, nil
	default:
		return ModeSmart, fmt.Errorf("%w: unknown enhancement mode %q", types.ErrInvalidInput, s)
	}
}

// Engine applies enhancements
type Engine struct {
	config    Config
	histogram *histogram.Analyzer
	skin      *skin.Detector
	landscape *landscape.Detector
}

// Config holds configuration for the enhancement engine
type Config struct {
	// Smart enhance. The median luma moves toward TargetMidpoint unless it
	// is already within ExposureDeadband levels of it.
	TargetMidpoint   float64
	ExposureDeadband float64
	ExposureDamping  float64
	MaxExposureShift float64
	MinGamma         float64
	MaxGamma         float64
	// ColorDamping scales the balance gains toward 1; BalanceBlend mixes in
	// the max-RGB estimate (0 is pure gray-world).
	ColorDamping       float64
	BalanceBlend       float64
	MinGain            float64
	MaxGain            float64
	TargetDynamicRange float64
	ContrastGain       float64
	MaxContrastDelta   float64
	TargetSaturation   float64
	SaturationGain     float64
	MaxSaturationDelta float64
	// MinChroma is the cast-free saturation below which an image is treated
	// as colourless and never saturated
	MinChroma float64

	// Portrait
	SigmaRange        float64
	MinSmoothingDelta float64
	MinSkinCoverage   float64
	DefaultIntensity  float64

	// Landscape
	MinRegionCoverage float64
	ClaritySigma      float64
	DefaultLandscape  LandscapeParams

	Histogram histogram.Config
	Skin      skin.Config
	Landscape landscape.Config
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		TargetMidpoint:     128,
		ExposureDeadband:   2,
		ExposureDamping:    0.6,
		MaxExposureShift:   48,
		MinGamma:           0.4,
		MaxGamma:           2.5,
		ColorDamping:       0.5,
		BalanceBlend:       0,
		MinGain:            0.5,
		MaxGain:            2,
		TargetDynamicRange: 0.85,
		ContrastGain:       0.5,
		MaxContrastDelta:   0.3,
		TargetSaturation:   0.35,
		SaturationGain:     0.5,
		MaxSaturationDelta: 0.25,
		MinChroma:          0.05,
		SigmaRange:         25,
		MinSmoothingDelta:  3,
		MinSkinCoverage:    0.005,
		DefaultIntensity:   60,
		MinRegionCoverage:  0.01,
		ClaritySigma:       3,
		DefaultLandscape:   DefaultLandscapeParams(),
		Histogram:          histogram.DefaultConfig(),
		Skin:               skin.DefaultConfig(),
		Landscape:          landscape.DefaultConfig(),
	}
}

// New creates a new Engine with default configuration
func New() *Engine {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new Engine with custom configuration
func NewWithConfig(config Config) *Engine {
	return &Engine{
		config:    config,
		histogram: histogram.NewWithConfig(config.Histogram),
		skin:      skin.NewWithConfig(config.Skin),
		landscape: landscape.NewWithConfig(config.Landscape),
	}
}

// Parameters are the adjustments an enhancement applied. Zero values mean
// no adjustment; gains of 1 are neutral.
type Parameters struct {
	// ExposureDelta is the shift of the median luma in [-1,1] (1 = 128 levels)
	ExposureDelta float64 `json:"exposure_delta"`
	// Gamma is the tone curve exponent, in [MinGamma,MaxGamma]
	Gamma float64 `json:"gamma"`
	// Pivot is the median luma after gamma and gains; contrast expands around it
	Pivot float64 `json:"pivot"`
	// ColorGains are the applied per-channel gains, in [MinGain,MaxGain]
	ColorGains [3]float64 `json:"color_gains"`
	// ContrastDelta is the relative expansion around Pivot, in [0,MaxContrastDelta]
	ContrastDelta float64 `json:"contrast_delta"`
	// SaturationDelta is the relative chroma change, in [-MaxSaturationDelta,MaxSaturationDelta]
	SaturationDelta float64 `json:"saturation_delta"`

	// SkinSmoothing is the portrait intensity in [0,100]; SkinLift the added levels
	SkinSmoothing float64 `json:"skin_smoothing"`
	SkinLift      float64 `json:"skin_lift"`

	Landscape LandscapeParams `json:"landscape"`
	// Feather is the blend radius at mask edges in pixels
	Feather float64 `json:"feather"`
}

// NeutralParameters returns parameters that change nothing
func NeutralParameters() Parameters {
	return Parameters{Gamma: 1, Pivot: 128, ColorGains: [3]float64{1, 1, 1}}
}

// Magnitude sums the absolute global adjustments
func (p Parameters) Magnitude() float64 {
	m := math.Abs(p.ExposureDelta) + math.Abs(p.ContrastDelta) + math.Abs(p.SaturationDelta)
	for _, g := range p.ColorGains {
		m += math.Abs(g - 1)
	}
	return m
}

// Metrics summarise how much an enhancement changed the buffer
type Metrics struct {
	ChangedPixels int     `json:"changed_pixels"`
	MeanDelta     float64 `json:"mean_delta"`
	MaxDelta      float64 `json:"max_delta"`
	// Coverage is the fraction of the buffer the enhancement targeted
	Coverage float64 `json:"coverage"`
}

// Result is the outcome of an enhancement. Buffer is always a new buffer;
// with StatusNoApplicableRegion it equals the input.
type Result struct {
	Buffer     *types.PixelBuffer `json:"-"`
	Parameters Parameters         `json:"parameters"`
	Metrics    Metrics            `json:"metrics"`
	Status     types.Status       `json:"status"`
	Mode       Mode               `json:"mode"`
	// Mask is the region a selective enhancement worked on
	Mask *types.Mask `json:"-"`
}

// Enhance applies mode with automatic parameters: default portrait intensity
// and default landscape grading. analysis may be nil.
func (e *Engine) Enhance(buf *types.PixelBuffer, analysis *scene.Analysis, mode Mode, profile performance.Profile) (*Result, error) {
	switch mode {
	case ModeSmart:
		return e.Smart(buf, profile)
	case ModePortrait:
		return e.Portrait(buf, analysis, e.config.DefaultIntensity, profile)
	case ModeLandscape:
		return e.Landscape(buf, e.config.DefaultLandscape, profile)
	default:
		return nil, fmt.Errorf("%w: unknown enhancement mode %d", types.ErrInvalidInput, int(mode))
	}
}

// unchanged builds the result for an enhancement that found nothing to do
func unchanged(buf *types.PixelBuffer, mode Mode, params Parameters, status types.Status, mask *types.Mask) *Result {
	res := &Result{
		Buffer:     buf.Clone(),
		Parameters: params,
		Status:     status,
		Mode:       mode,
		Mask:       mask,
	}
	if mask != nil {
		res.Metrics.Coverage = mask.Coverage()
	}
	return res
}

// measure compares two equally sized buffers channel by channel
func measure(before, after *types.PixelBuffer) Metrics {
	var m Metrics
	var total float64
	c := before.Channels()
	for i := 0; i < len(before.Pix); i += c {
		var pixelMax float64
		for ch := 0; ch < 3; ch++ {
			d := math.Abs(float64(after.Pix[i+ch]) - float64(before.Pix[i+ch]))
			total += d
			pixelMax = math.Max(pixelMax, d)
		}
		if pixelMax > 0 {
			m.ChangedPixels++
			m.MaxDelta = math.Max(m.MaxDelta, pixelMax)
		}
	}
	m.MeanDelta = total / float64(3*before.Area())
	return m
}
