package histogram

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/menta2k/scene-enhancer/pkg/types"
)

// Bins is the number of histogram buckets per channel
const Bins = 256

// Analyzer computes exposure, colour-balance and dynamic-range statistics
type Analyzer struct {
	config Config
}

// Config holds configuration for the histogram analyzer
type Config struct {
	// LowPercentile and HighPercentile bound the luma spread used for
	// dynamic range, in (0,1).
	LowPercentile  float64
	HighPercentile float64
	// DominantMass is the fraction of pixels in the narrowest luma window
	// that defines the exposure centre.
	DominantMass float64
	// FlatThreshold is the dynamic range below which a buffer is flat
	FlatThreshold float64
	// ClipLow and ClipHigh are the luma levels counted as clipped
	ClipLow  int
	ClipHigh int
}

// DefaultConfig returns the default analyzer configuration
func DefaultConfig() Config {
	return Config{
		LowPercentile:  0.01,
		HighPercentile: 0.99,
		DominantMass:   0.5,
		FlatThreshold:  0.02,
		ClipLow:        2,
		ClipHigh:       253,
	}
}

// New creates a new Analyzer with default configuration
func New() *Analyzer {
	return &Analyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new Analyzer with custom configuration
func NewWithConfig(config Config) *Analyzer {
	return &Analyzer{config: config}
}

// Stats is the immutable result of a histogram analysis
type Stats struct {
	Red   [Bins]int `json:"-"`
	Green [Bins]int `json:"-"`
	Blue  [Bins]int `json:"-"`
	Luma  [Bins]int `json:"-"`

	PixelCount int `json:"pixel_count"`

	// Exposure is the offset of the dominant luma mass from mid-grey,
	// in [-1,1]. ExposureCenter is that mass's weighted luma.
	Exposure       float64 `json:"exposure"`
	ExposureCenter float64 `json:"exposure_center"`

	MeanLuminance   float64 `json:"mean_luminance"`
	MedianLuminance float64 `json:"median_luminance"`
	LowLuminance    float64 `json:"low_luminance"`
	HighLuminance   float64 `json:"high_luminance"`

	// ChannelMeans is the per-channel mean (R, G, B)
	ChannelMeans [3]float64 `json:"channel_means"`
	// ChannelHighs is the per-channel HighPercentile level
	ChannelHighs [3]float64 `json:"channel_highs"`
	// GrayWorldGains equalise channel means; MaxRGBGains equalise robust channel maxima
	GrayWorldGains [3]float64 `json:"gray_world_gains"`
	MaxRGBGains    [3]float64 `json:"max_rgb_gains"`

	// DynamicRange is the low/high percentile luma spread in [0,1]
	DynamicRange float64 `json:"dynamic_range"`
	Flat         bool    `json:"flat"`

	ShadowClip     float64 `json:"shadow_clip"`
	HighlightClip  float64 `json:"highlight_clip"`
	MeanSaturation float64 `json:"mean_saturation"`
	// NeutralSaturation is the mean saturation once the gray-world gains
	// remove any colour cast. Pixels darker than NeutralFloor are ignored.
	NeutralSaturation float64 `json:"neutral_saturation"`
}

// NeutralFloor is the channel maximum below which a pixel carries no
// reliable hue
const NeutralFloor = 16

// BalanceGains blends the two colour-balance estimators; w=0 is pure gray-world
func (s Stats) BalanceGains(w float64) [3]float64 {
	w = types.Clamp(w, 0, 1)
	var g [3]float64
	for c := range g {
		g[c] = (1-w)*s.GrayWorldGains[c] + w*s.MaxRGBGains[c]
	}
	return g
}

// Analyze computes Stats for a buffer
func (a *Analyzer) Analyze(buf *types.PixelBuffer) (Stats, error) {
	var s Stats
	if err := buf.Validate(); err != nil {
		return s, err
	}

	var satSum float64
	c := buf.Channels()
	for i := 0; i < len(buf.Pix); i += c {
		r, g, b := buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2]
		s.Red[r]++
		s.Green[g]++
		s.Blue[b]++
		l := types.Luma(float64(r), float64(g), float64(b))
		s.Luma[lumaBin(l)]++
		hi, lo := maxByte(r, g, b), minByte(r, g, b)
		if hi > 0 {
			satSum += float64(hi-lo) / float64(hi)
		}
	}
	s.PixelCount = buf.Area()
	n := float64(s.PixelCount)

	levels := binLevels()
	luma := weights(s.Luma[:])
	s.MeanLuminance = weightedMean(levels, luma, 128)
	s.MedianLuminance = stat.Quantile(0.5, stat.Empirical, levels, luma)
	s.LowLuminance = stat.Quantile(a.config.LowPercentile, stat.Empirical, levels, luma)
	s.HighLuminance = stat.Quantile(a.config.HighPercentile, stat.Empirical, levels, luma)

	s.DynamicRange = types.Clamp((s.HighLuminance-s.LowLuminance)/255, 0, 1)
	s.Flat = s.DynamicRange < a.config.FlatThreshold

	s.ExposureCenter = a.dominantCenter(s.Luma[:], s.PixelCount, s.MedianLuminance)
	s.Exposure = types.Clamp((s.ExposureCenter-128)/128, -1, 1)

	var dark, bright int
	for i := 0; i <= a.config.ClipLow && i < Bins; i++ {
		dark += s.Luma[i]
	}
	for i := max(a.config.ClipHigh, 0); i < Bins; i++ {
		bright += s.Luma[i]
	}
	s.ShadowClip = float64(dark) / n
	s.HighlightClip = float64(bright) / n
	s.MeanSaturation = satSum / n

	channels := [3][Bins]int{s.Red, s.Green, s.Blue}
	var maxima [3]float64
	for ch := range channels {
		w := weights(channels[ch][:])
		s.ChannelMeans[ch] = weightedMean(levels, w, 0)
		maxima[ch] = stat.Quantile(a.config.HighPercentile, stat.Empirical, levels, w)
	}
	s.ChannelHighs = maxima
	s.GrayWorldGains = GrayWorld(s.ChannelMeans)
	s.MaxRGBGains = MaxRGB(maxima)
	s.NeutralSaturation = neutralSaturation(buf, s.GrayWorldGains)

	return s, nil
}

// dominantCenter finds the narrowest luma window holding DominantMass of the
// pixels and returns its count-weighted centre. Isolated extremes such as a
// blown-out sky barely move it. Equally narrow windows resolve to the one
// centred closest to the median.
func (a *Analyzer) dominantCenter(hist []int, total int, median float64) float64 {
	need := int(math.Ceil(a.config.DominantMass * float64(total)))
	if need < 1 {
		need = 1
	}
	bestLo, bestHi := 0, Bins-1
	lo, sum := 0, 0
	for hi := 0; hi < Bins; hi++ {
		sum += hist[hi]
		for lo < hi && sum-hist[lo] >= need {
			sum -= hist[lo]
			lo++
		}
		if sum < need {
			continue
		}
		width, bestWidth := hi-lo, bestHi-bestLo
		if width < bestWidth || (width == bestWidth && math.Abs(float64(lo+hi)/2-median) < math.Abs(float64(bestLo+bestHi)/2-median)) {
			bestLo, bestHi = lo, hi
		}
	}
	var acc, cnt float64
	for i := bestLo; i <= bestHi; i++ {
		acc += float64(i) * float64(hist[i])
		cnt += float64(hist[i])
	}
	return types.SafeDiv(acc, cnt, 128)
}

// Balance blends gray-world gains for the channel means with max-RGB gains
// for the channel highs; w=0 is pure gray-world
func Balance(means, highs [3]float64, w float64) [3]float64 {
	s := Stats{GrayWorldGains: GrayWorld(means), MaxRGBGains: MaxRGB(highs)}
	return s.BalanceGains(w)
}

// GrayWorld returns gains that equalise the channel means
func GrayWorld(means [3]float64) [3]float64 {
	gains := [3]float64{1, 1, 1}
	gray := (means[0] + means[1] + means[2]) / 3
	if gray < 1 {
		return gains
	}
	for c := range gains {
		gains[c] = types.SafeDiv(gray, means[c], 1)
		if means[c] < 1 {
			gains[c] = 1
		}
	}
	return gains
}

// MaxRGB returns gains that bring every channel maximum to the brightest one
func MaxRGB(maxima [3]float64) [3]float64 {
	gains := [3]float64{1, 1, 1}
	top := math.Max(maxima[0], math.Max(maxima[1], maxima[2]))
	if top < 1 {
		return gains
	}
	for c := range gains {
		if maxima[c] < 1 {
			continue
		}
		gains[c] = top / maxima[c]
	}
	return gains
}

func neutralSaturation(buf *types.PixelBuffer, gains [3]float64) float64 {
	var sum float64
	n := 0
	c := buf.Channels()
	for i := 0; i < len(buf.Pix); i += c {
		r := math.Min(255, float64(buf.Pix[i])*gains[0])
		g := math.Min(255, float64(buf.Pix[i+1])*gains[1])
		b := math.Min(255, float64(buf.Pix[i+2])*gains[2])
		hi := math.Max(r, math.Max(g, b))
		if hi < NeutralFloor {
			continue
		}
		sum += (hi - math.Min(r, math.Min(g, b))) / hi
		n++
	}
	return types.SafeDiv(sum, float64(n), 0)
}

func lumaBin(l float64) int {
	b := int(l + 0.5)
	if b < 0 {
		return 0
	}
	if b >= Bins {
		return Bins - 1
	}
	return b
}

func binLevels() []float64 {
	x := make([]float64, Bins)
	for i := range x {
		x[i] = float64(i)
	}
	return x
}

func weights(hist []int) []float64 {
	w := make([]float64, len(hist))
	for i, v := range hist {
		w[i] = float64(v)
	}
	return w
}

func weightedMean(x, w []float64, fallback float64) float64 {
	var total float64
	for _, v := range w {
		total += v
	}
	if total == 0 {
		return fallback
	}
	return stat.Mean(x, w)
}

func maxByte(a, b, c uint8) uint8 {
	if b > a {
		a = b
	}
	if c > a {
		a = c
	}
	return a
}

func minByte(a, b, c uint8) uint8 {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
