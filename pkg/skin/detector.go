// Package skin segments skin-coloured regions with an HSV window that adapts
// to the scene's lighting.
package skin

import (
	"image"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/menta2k/scene-enhancer/pkg/types"
)

// Detector segments skin-coloured pixels
type Detector struct {
	config Config
}

// Band is an HSV acceptance window. Hue is in degrees and may wrap through 0
// when HueMin > HueMax.
type Band struct {
	HueMin float64
	HueMax float64
	SatMin float64
	SatMax float64
	ValMin float64
	ValMax float64
}

// Config holds configuration for skin detection
type Config struct {
	Band Band
	// LowLightWiden is added to the hue range on both sides and subtracted
	// from SatMin/ValMin when the scene is dark; skin reads warmer there.
	LowLightHueWiden float64
	LowLightSatWiden float64
	LowLightValWiden float64
	// HarshNarrow shrinks the hue window under harsh or high-key light
	HarshNarrow float64
	// Softness is the width of the graded falloff outside the band, as a
	// fraction of each range.
	Softness float64
	// Threshold converts graded weights to the binary mask
	Threshold float32
}

// DefaultConfig returns the default skin window. The hue band 345..50
// degrees with saturation 0.12..0.70 covers light to dark skin under
// daylight white balance.
func DefaultConfig() Config {
	return Config{
		Band: Band{
			HueMin: 345,
			HueMax: 50,
			SatMin: 0.12,
			SatMax: 0.70,
			ValMin: 0.30,
			ValMax: 0.98,
		},
		LowLightHueWiden: 10,
		LowLightSatWiden: 0.05,
		LowLightValWiden: 0.15,
		HarshNarrow:      5,
		Softness:         0.15,
		Threshold:        0.5,
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

// Result is the outcome of skin detection
type Result struct {
	Mask    *types.Mask      `json:"-"`
	Weights *types.WeightMap `json:"-"`
	// Coverage is the masked fraction of the image
	Coverage float64 `json:"coverage"`
	// Confidence weights every detected pixel by how many of its neighbours
	// are also skin; isolated hits count for nothing.
	Confidence float64 `json:"confidence"`
	// Centroid is the normalised centre of mass of the mask, (0.5,0.5) when empty
	CentroidX float64         `json:"centroid_x"`
	CentroidY float64         `json:"centroid_y"`
	Bounds    image.Rectangle `json:"bounds"`
	Band      Band            `json:"band"`
}

// BandFor returns the HSV window used under the given lighting
func (d *Detector) BandFor(lighting types.Lighting) Band {
	b := d.config.Band
	switch lighting {
	case types.LightingLowLight, types.LightingBacklit:
		b.HueMin -= d.config.LowLightHueWiden
		b.HueMax += d.config.LowLightHueWiden
		b.SatMin -= d.config.LowLightSatWiden
		b.ValMin -= d.config.LowLightValWiden
	case types.LightingHarsh, types.LightingHighKey:
		b.HueMin += d.config.HarshNarrow
		b.HueMax -= d.config.HarshNarrow
	}
	b.HueMin = wrapHue(b.HueMin)
	b.HueMax = wrapHue(b.HueMax)
	b.SatMin = math.Max(0, b.SatMin)
	b.ValMin = math.Max(0, b.ValMin)
	return b
}

// Detect segments skin in buf using the window for the given lighting
func (d *Detector) Detect(buf *types.PixelBuffer, lighting types.Lighting) (Result, error) {
	if err := buf.Validate(); err != nil {
		return Result{}, err
	}
	band := d.BandFor(lighting)
	w, h := buf.Width, buf.Height

	weights := types.NewWeightMap(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := buf.RGB(x, y)
			col := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
			hue, sat, val := col.Hsv()
			weights.Values[y*w+x] = float32(d.membership(band, hue, sat, val))
		}
	}

	raw := weights.Threshold(d.config.Threshold)
	mask := types.NewMask(w, h)
	var support, sumX, sumY float64
	detected := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !raw.At(x, y) {
				continue
			}
			n := neighbours(raw, x, y)
			if n == 0 {
				// isolated hit: kept out of the mask
				weights.Values[y*w+x] = 0
				continue
			}
			mask.Set(x, y, true)
			detected++
			support += float64(n) / 8
			sumX += float64(x)
			sumY += float64(y)
		}
	}

	res := Result{
		Mask:      mask,
		Weights:   weights,
		Coverage:  float64(detected) / float64(w*h),
		CentroidX: 0.5,
		CentroidY: 0.5,
		Bounds:    mask.Bounds(),
		Band:      band,
	}
	if rawCount := raw.Count(); rawCount > 0 {
		res.Confidence = support / float64(rawCount)
	}
	if detected > 0 {
		res.CentroidX = (sumX/float64(detected) + 0.5) / float64(w)
		res.CentroidY = (sumY/float64(detected) + 0.5) / float64(h)
	}
	return res, nil
}

// membership returns a graded score: 1 inside the band, falling linearly to
// 0 over Softness of each range outside it.
func (d *Detector) membership(b Band, hue, sat, val float64) float64 {
	hueSpan := hueRange(b.HueMin, b.HueMax)
	hs := rangeScore(hueDistance(hue, b.HueMin, b.HueMax), hueSpan*d.config.Softness)
	ss := rangeScore(linearDistance(sat, b.SatMin, b.SatMax), (b.SatMax-b.SatMin)*d.config.Softness)
	vs := rangeScore(linearDistance(val, b.ValMin, b.ValMax), (b.ValMax-b.ValMin)*d.config.Softness)
	return math.Min(hs, math.Min(ss, vs))
}

func rangeScore(dist, soft float64) float64 {
	if dist <= 0 {
		return 1
	}
	if soft <= 0 {
		return 0
	}
	return math.Max(0, 1-dist/soft)
}

func linearDistance(v, lo, hi float64) float64 {
	if v < lo {
		return lo - v
	}
	if v > hi {
		return v - hi
	}
	return 0
}

// hueDistance is the angular distance from hue to the (possibly wrapping)
// interval [lo, hi], 0 when inside.
func hueDistance(hue, lo, hi float64) float64 {
	if inHue(hue, lo, hi) {
		return 0
	}
	return math.Min(angular(hue, lo), angular(hue, hi))
}

func inHue(hue, lo, hi float64) bool {
	if lo <= hi {
		return hue >= lo && hue <= hi
	}
	return hue >= lo || hue <= hi
}

func hueRange(lo, hi float64) float64 {
	if lo <= hi {
		return hi - lo
	}
	return 360 - lo + hi
}

func angular(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func wrapHue(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

func neighbours(m *types.Mask, x, y int) int {
	n := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if (dx != 0 || dy != 0) && m.At(x+dx, y+dy) {
				n++
			}
		}
	}
	return n
}
