// Package landscape segments sky and foliage and locates the horizon line.
package landscape

import (
	"image/color"
	"math"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/menta2k/scene-enhancer/pkg/processing"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

// Detector finds sky, foliage and horizon in a buffer
type Detector struct {
	config Config
}

// Config holds configuration for landscape detection
type Config struct {
	// Sky colour: blue hues, or near-neutral bright tones (white/grey cloud)
	SkyHueMin  float64
	SkyHueMax  float64
	SkySatMin  float64
	SkyValMin  float64
	GreySatMax float64
	GreyValMin float64
	// TextureRadius is the window radius for local luma deviation
	TextureRadius int
	// SkySmoothMax is the mean vertical luma gradient, in levels per row, up
	// to which a pixel is fully smooth; the smoothness score falls to zero at
	// twice this value.
	SkySmoothMax float64
	// SkyPriorFull is the normalised row above which sky is fully plausible;
	// below it plausibility fades to zero at the bottom edge.
	SkyPriorFull float64

	FoliageHueMin float64
	FoliageHueMax float64
	FoliageSatMin float64
	FoliageValMin float64
	// FoliageTextureMin is the local deviation at which vegetation scores fully
	FoliageTextureMin float64

	// MaskThreshold converts probabilities to masks
	MaskThreshold float32
	// HorizonMinGradient is the minimum drop in row sky probability for a
	// horizon to be reported
	HorizonMinGradient float64
	// DominantColors is the number of quantized colours reported
	DominantColors int
}

// DefaultConfig returns the default landscape configuration
func DefaultConfig() Config {
	return Config{
		SkyHueMin:          180,
		SkyHueMax:          250,
		SkySatMin:          0.15,
		SkyValMin:          0.35,
		GreySatMax:         0.15,
		GreyValMin:         0.55,
		TextureRadius:      2,
		SkySmoothMax:       6,
		SkyPriorFull:       0.6,
		FoliageHueMin:      60,
		FoliageHueMax:      170,
		FoliageSatMin:      0.2,
		FoliageValMin:      0.12,
		FoliageTextureMin:  6,
		MaskThreshold:      0.5,
		HorizonMinGradient: 0.25,
		DominantColors:     5,
	}
}

// New creates a new Detector with default configuration
func New() *Detector {
	return &Detector{config: DefaultConfig()}
}

// NewWithConfig creates a new Detector with custom configuration
func NewWithConfig(config Config) *Detector {
	return &Detector{config: config}
}

// DominantColor is a quantized colour and the fraction of pixels it holds
type DominantColor struct {
	Color    color.RGBA `json:"color"`
	Fraction float64    `json:"fraction"`
}

// Analysis is the outcome of landscape detection
type Analysis struct {
	SkyMask        *types.Mask      `json:"-"`
	FoliageMask    *types.Mask      `json:"-"`
	SkyWeights     *types.WeightMap `json:"-"`
	FoliageWeights *types.WeightMap `json:"-"`

	SkyCoverage     float64 `json:"sky_coverage"`
	FoliageCoverage float64 `json:"foliage_coverage"`

	// HorizonY is the first row below the sky, -1 when no clear transition exists
	HorizonY        int     `json:"horizon_y"`
	HasHorizon      bool    `json:"has_horizon"`
	HorizonStrength float64 `json:"horizon_strength"`

	DominantColors []DominantColor `json:"dominant_colors"`
}

// Combined returns the fraction of pixels that are sky or foliage
func (a Analysis) Combined() float64 {
	if a.SkyMask == nil || a.FoliageMask == nil {
		return 0
	}
	return a.SkyMask.Union(a.FoliageMask).Coverage()
}

// Detect segments sky and foliage and estimates the horizon
func (d *Detector) Detect(buf *types.PixelBuffer) (Analysis, error) {
	if err := buf.Validate(); err != nil {
		return Analysis{}, err
	}
	w, h := buf.Width, buf.Height
	luma := buf.LumaPlane()
	dev := processing.LocalStdDev(luma, w, h, d.config.TextureRadius)
	vgrad := processing.VerticalGradient(luma, w, h, d.config.TextureRadius)

	sky := types.NewWeightMap(w, h)
	foliage := types.NewWeightMap(w, h)
	for y := 0; y < h; y++ {
		prior := d.skyPrior(y, h)
		for x := 0; x < w; x++ {
			i := y*w + x
			r, g, b := buf.RGB(x, y)
			hue, sat, val := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}.Hsv()

			if prior > 0 && d.isSkyColor(hue, sat, val) {
				sky.Values[i] = float32(prior * d.smoothness(vgrad[i]))
			}
			if d.isFoliageColor(hue, sat, val) {
				foliage.Values[i] = float32(math.Min(1, dev[i]/d.config.FoliageTextureMin))
			}
		}
	}

	skyMask := sky.Threshold(d.config.MaskThreshold)
	// a pixel belongs to at most one class; smooth sky wins over texture
	foliageMask := foliage.Threshold(d.config.MaskThreshold).Subtract(skyMask)

	res := Analysis{
		SkyMask:         skyMask,
		FoliageMask:     foliageMask,
		SkyWeights:      sky,
		FoliageWeights:  foliage,
		SkyCoverage:     skyMask.Coverage(),
		FoliageCoverage: foliageMask.Coverage(),
		HorizonY:        -1,
		DominantColors:  DominantColors(buf, nil, d.config.DominantColors),
	}
	res.HorizonY, res.HorizonStrength = d.horizon(sky)
	res.HasHorizon = res.HorizonY >= 0
	return res, nil
}

func (d *Detector) isSkyColor(hue, sat, val float64) bool {
	if sat < d.config.GreySatMax {
		return val >= d.config.GreyValMin
	}
	return hue >= d.config.SkyHueMin && hue <= d.config.SkyHueMax &&
		sat >= d.config.SkySatMin && val >= d.config.SkyValMin
}

func (d *Detector) isFoliageColor(hue, sat, val float64) bool {
	return hue >= d.config.FoliageHueMin && hue <= d.config.FoliageHueMax &&
		sat >= d.config.FoliageSatMin && val >= d.config.FoliageValMin
}

func (d *Detector) smoothness(dev float64) float64 {
	m := d.config.SkySmoothMax
	if dev <= m {
		return 1
	}
	return math.Max(0, 2-dev/m)
}

func (d *Detector) skyPrior(y, h int) float64 {
	yn := (float64(y) + 0.5) / float64(h)
	if yn <= d.config.SkyPriorFull {
		return 1
	}
	return math.Max(0, (1-yn)/(1-d.config.SkyPriorFull))
}

// horizon scans the row profile of sky probability from the top and returns
// the row with the largest drop between the band above and the band below.
func (d *Detector) horizon(sky *types.WeightMap) (int, float64) {
	w, h := sky.Width, sky.Height
	if h < 2 {
		return -1, 0
	}
	profile := make([]float64, h)
	for y := 0; y < h; y++ {
		var sum float64
		for x := 0; x < w; x++ {
			sum += float64(sky.Values[y*w+x])
		}
		profile[y] = sum / float64(w)
	}

	span := h / 50
	if span < 2 {
		span = 2
	}
	best, bestDrop := -1, 0.0
	for y := 1; y < h; y++ {
		above := bandMean(profile, y-span, y)
		below := bandMean(profile, y, y+span)
		if drop := above - below; drop > bestDrop {
			best, bestDrop = y, drop
		}
	}
	if bestDrop < d.config.HorizonMinGradient {
		return -1, bestDrop
	}
	return best, bestDrop
}

func bandMean(p []float64, lo, hi int) float64 {
	if lo < 0 {
		lo = 0
	}
	if hi > len(p) {
		hi = len(p)
	}
	if hi <= lo {
		return 0
	}
	var s float64
	for _, v := range p[lo:hi] {
		s += v
	}
	return s / float64(hi-lo)
}

// DominantColors extracts the most frequent colours, quantized to 4 bits per
// channel, from the masked pixels (all pixels when mask is nil). Results are
// ordered by frequency, then by colour value.
func DominantColors(buf *types.PixelBuffer, mask *types.Mask, limit int) []DominantColor {
	colorMap := make(map[uint32]int)
	total := 0
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			if mask != nil && !mask.At(x, y) {
				continue
			}
			r, g, b := buf.RGB(x, y)
			// quantize colors to reduce noise
			key := uint32(r&0xf0)<<16 | uint32(g&0xf0)<<8 | uint32(b&0xf0)
			colorMap[key]++
			total++
		}
	}
	if total == 0 || limit <= 0 {
		return nil
	}

	keys := make([]uint32, 0, len(colorMap))
	for k := range colorMap {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := colorMap[keys[i]], colorMap[keys[j]]
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}

	colors := make([]DominantColor, len(keys))
	for i, k := range keys {
		colors[i] = DominantColor{
			// report the bucket centre
			Color: color.RGBA{
				R: uint8(k>>16) | 0x08,
				G: uint8(k>>8) | 0x08,
				B: uint8(k) | 0x08,
				A: 255,
			},
			Fraction: float64(colorMap[k]) / float64(total),
		}
	}
	return colors
}
