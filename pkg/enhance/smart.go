package enhance

import (
	"fmt"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/scene-enhancer/pkg/histogram"
	"github.com/menta2k/scene-enhancer/pkg/performance"
	"github.com/menta2k/scene-enhancer/pkg/processing"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

// gammaSteps bounds the bisection that fits the exposure curve
const gammaSteps = 12

// Smart derives global corrections from histogram statistics measured at the
// profile's analysis resolution and applies them to the full buffer.
func (e *Engine) Smart(buf *types.PixelBuffer, profile performance.Profile) (*Result, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	work, _ := processing.Downsample(buf, profile.AnalysisMaxDim)
	stats, err := e.histogram.Analyze(work)
	if err != nil {
		return nil, fmt.Errorf("failed to compute histogram: %w", err)
	}

	params, err := e.SmartParameters(work, stats)
	if err != nil {
		return nil, err
	}
	out := ApplyGlobal(buf, params)
	return &Result{
		Buffer:     out,
		Parameters: params,
		Metrics:    withCoverage(measure(buf, out), 1),
		Status:     types.StatusOK,
		Mode:       ModeSmart,
	}, nil
}

// SmartParameters derives damped corrections for work, whose statistics are
// s. Each correction is sized on the image as it looks after the corrections
// before it and closes only part of the remaining gap, so repeated
// application converges instead of overshooting.
func (e *Engine) SmartParameters(work *types.PixelBuffer, s histogram.Stats) (Parameters, error) {
	cfg := e.config
	p := NeutralParameters()

	// exposure: move the median luma part of the way to the midpoint
	c := s.MedianLuminance
	target := c
	if c >= 1 && c <= 254 && math.Abs(cfg.TargetMidpoint-c) > cfg.ExposureDeadband {
		shift := types.Clamp(cfg.ExposureDamping*(cfg.TargetMidpoint-c), -cfg.MaxExposureShift, cfg.MaxExposureShift)
		target = types.Clamp(c+shift, 1, 254)
	}
	tone, err := e.fitTone(work, s, c, target)
	if err != nil {
		return p, err
	}
	p.Gamma = tone.gamma
	p.ColorGains = tone.gains
	p.Pivot = tone.stats.MedianLuminance
	p.ExposureDelta = types.Clamp((p.Pivot-c)/128, -1, 1)

	// contrast: judged on the tone-mapped distribution; flat buffers have
	// no spread to expand
	t := tone.stats
	if !t.Flat && t.DynamicRange < cfg.TargetDynamicRange {
		goal := t.DynamicRange + cfg.ContrastGain*(cfg.TargetDynamicRange-t.DynamicRange)
		p.ContrastDelta = contrastFor(t.LowLuminance, t.HighLuminance, p.Pivot, goal, cfg.MaxContrastDelta)
	}

	// saturation: measured without the cast the gains are still removing
	if ns := t.NeutralSaturation; ns >= cfg.MinChroma {
		p.SaturationDelta = types.Clamp(cfg.SaturationGain*(cfg.TargetSaturation-ns),
			-cfg.MaxSaturationDelta, cfg.MaxSaturationDelta)
	}
	return p, nil
}

// toneFit is a candidate exposure curve with the balance gains that go with
// it and the statistics of work once both are applied
type toneFit struct {
	gamma float64
	gains [3]float64
	stats histogram.Stats
}

// fitTone bisects the gamma that brings the median luma closest to target
// from the current side without crossing it. The gains are re-derived for
// each gamma because the curve changes the channel means they balance.
func (e *Engine) fitTone(work *types.PixelBuffer, s histogram.Stats, current, target float64) (toneFit, error) {
	fit, err := e.toneAt(work, s, 1)
	if err != nil || target == current {
		return fit, err
	}

	dir, far := 1.0, math.Log(e.config.MinGamma)
	if target < current {
		dir, far = -1, math.Log(e.config.MaxGamma)
	}
	lo, hi := 0.0, far
	for i := 0; i < gammaSteps; i++ {
		mid := (lo + hi) / 2
		f, err := e.toneAt(work, s, math.Exp(mid))
		if err != nil {
			return fit, err
		}
		if (f.stats.MedianLuminance-target)*dir > 0 {
			hi = mid
		} else {
			lo, fit = mid, f
		}
	}
	return fit, nil
}

func (e *Engine) toneAt(work *types.PixelBuffer, s histogram.Stats, gamma float64) (toneFit, error) {
	gains := e.gainsAfter(s, gamma)
	stats, err := e.histogram.Analyze(applyTone(work, gamma, gains))
	if err != nil {
		return toneFit{}, fmt.Errorf("failed to compute histogram: %w", err)
	}
	return toneFit{gamma: gamma, gains: gains, stats: stats}, nil
}

// gainsAfter derives damped balance gains for the channel means and highs
// as they will be after the gamma curve
func (e *Engine) gainsAfter(s histogram.Stats, gamma float64) [3]float64 {
	cfg := e.config
	hists := [3]*[histogram.Bins]int{&s.Red, &s.Green, &s.Blue}
	var means, highs [3]float64
	for ch, h := range hists {
		var sum, n float64
		for v, count := range h {
			sum += float64(count) * gammaLevel(float64(v), gamma)
			n += float64(count)
		}
		means[ch] = types.SafeDiv(sum, n, 0)
		highs[ch] = gammaLevel(s.ChannelHighs[ch], gamma)
	}

	raw := histogram.Balance(means, highs, cfg.BalanceBlend)
	var gains [3]float64
	for ch := range raw {
		gains[ch] = types.Clamp(1+cfg.ColorDamping*(raw[ch]-1), cfg.MinGain, cfg.MaxGain)
	}
	return gains
}

// applyTone renders gamma and gains into a copy of buf
func applyTone(buf *types.PixelBuffer, gamma float64, gains [3]float64) *types.PixelBuffer {
	var lut [3][256]uint8
	for v := 0; v < 256; v++ {
		x := gammaLevel(float64(v), gamma)
		for ch := 0; ch < 3; ch++ {
			lut[ch][v] = types.ClampByte(x * gains[ch])
		}
	}
	out := buf.Clone()
	c := out.Channels()
	for i := 0; i < len(out.Pix); i += c {
		for ch := 0; ch < 3; ch++ {
			out.Pix[i+ch] = lut[ch][out.Pix[i+ch]]
		}
	}
	return out
}

// contrastFor returns the smallest expansion around pivot that stretches
// the [lo,hi] luma spread to goal, or to the widest spread reachable
// within maxDelta once the ends clip
func contrastFor(lo, hi, pivot, goal, maxDelta float64) float64 {
	spread := func(d float64) float64 {
		return (math.Min(255, pivot+(hi-pivot)*(1+d)) - math.Max(0, pivot-(pivot-lo)*(1+d))) / 255
	}
	const eps = 1e-9
	goal = math.Min(goal, spread(maxDelta))
	if spread(0) >= goal-eps {
		return 0
	}
	a, b := 0.0, maxDelta
	for i := 0; i < 32; i++ {
		m := (a + b) / 2
		if spread(m) >= goal-eps {
			b = m
		} else {
			a = m
		}
	}
	return b
}

func gammaLevel(v, gamma float64) float64 {
	return 255 * math.Pow(v/255, gamma)
}

// ApplyGlobal applies the exposure curve, colour gains, contrast and the
// saturation change to every pixel, in that order. Alpha is preserved.
func ApplyGlobal(buf *types.PixelBuffer, p Parameters) *types.PixelBuffer {
	var tone [3][256]float64
	for v := 0; v < 256; v++ {
		x := gammaLevel(float64(v), p.Gamma)
		for ch := 0; ch < 3; ch++ {
			y := math.Min(255, x*p.ColorGains[ch])
			tone[ch][v] = p.Pivot + (y-p.Pivot)*(1+p.ContrastDelta)
		}
	}
	sat := 1 + p.SaturationDelta

	out := imaging.AdjustFunc(processing.ToNRGBA(buf), func(c color.NRGBA) color.NRGBA {
		r := tone[0][c.R]
		g := tone[1][c.G]
		b := tone[2][c.B]
		l := types.Luma(r, g, b)
		return color.NRGBA{
			R: types.ClampByte(l + (r-l)*sat),
			G: types.ClampByte(l + (g-l)*sat),
			B: types.ClampByte(l + (b-l)*sat),
			A: c.A,
		}
	})
	return processing.FromImage(out, buf.Layout)
}

func withCoverage(m Metrics, coverage float64) Metrics {
	m.Coverage = coverage
	return m
}
