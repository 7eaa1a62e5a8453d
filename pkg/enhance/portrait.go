package enhance

import (
	"fmt"
	"math"

	"github.com/menta2k/scene-enhancer/pkg/performance"
	"github.com/menta2k/scene-enhancer/pkg/scene"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

// Portrait smooths skin with an edge-preserving bilateral filter and lifts
// skin luminosity, blended with the original by intensity in [0,100]. Only
// pixels inside the full-resolution skin mask are written. The lighting of
// analysis, when given, selects the skin window.
func (e *Engine) Portrait(buf *types.PixelBuffer, analysis *scene.Analysis, intensity float64, profile performance.Profile) (*Result, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(intensity) || intensity < 0 || intensity > 100 {
		return nil, fmt.Errorf("%w: portrait intensity %v outside [0,100]", types.ErrInvalidInput, intensity)
	}

	lighting := types.LightingNormal
	if analysis != nil {
		lighting = analysis.Lighting
	}
	skinRes, err := e.skin.Detect(buf, lighting)
	if err != nil {
		return nil, fmt.Errorf("skin detection failed: %w", err)
	}

	params := NeutralParameters()
	if skinRes.Coverage < e.config.MinSkinCoverage {
		return unchanged(buf, ModePortrait, params, types.StatusNoApplicableRegion, skinRes.Mask), nil
	}
	params.SkinSmoothing = intensity
	if intensity == 0 {
		return unchanged(buf, ModePortrait, params, types.StatusOK, skinRes.Mask), nil
	}

	t := intensity / 100
	lift := math.Ceil(e.config.MinSmoothingDelta * t)
	params.SkinLift = lift

	out := buf.Clone()
	radius := profile.SmoothingRadius
	if radius < 1 {
		radius = 1
	}
	sigmaSpatial := float64(radius)
	rangeDen := 2 * e.config.SigmaRange * e.config.SigmaRange
	spatialDen := 2 * sigmaSpatial * sigmaSpatial

	for _, pt := range skinRes.Mask.Points() {
		x, y := pt.X, pt.Y
		r0, g0, b0 := buf.RGB(x, y)
		o := [3]float64{float64(r0), float64(g0), float64(b0)}

		var acc [3]float64
		var wsum float64
		for dy := -radius; dy <= radius; dy++ {
			ny := y + dy
			if ny < 0 || ny >= buf.Height {
				continue
			}
			for dx := -radius; dx <= radius; dx++ {
				nx := x + dx
				if nx < 0 || nx >= buf.Width {
					continue
				}
				r, g, b := buf.RGB(nx, ny)
				n := [3]float64{float64(r), float64(g), float64(b)}
				dist := (n[0]-o[0])*(n[0]-o[0]) + (n[1]-o[1])*(n[1]-o[1]) + (n[2]-o[2])*(n[2]-o[2])
				w := math.Exp(-float64(dx*dx+dy*dy)/spatialDen - dist/rangeDen)
				for c := range acc {
					acc[c] += w * n[c]
				}
				wsum += w
			}
		}

		var blended [3]float64
		var drift float64
		for c := range blended {
			blended[c] = o[c] + t*(acc[c]/wsum-o[c])
			drift += blended[c] - o[c]
		}

		// lift in the direction smoothing moved the pixel; fall back to the
		// other direction when clipping would swallow the lift
		dir := 1.0
		if drift < 0 {
			dir = -1
		}
		px := shift(blended, dir*lift)
		if maxDiff(px, o) < lift {
			px = shift(blended, -dir*lift)
		}
		out.SetRGB(x, y, px[0], px[1], px[2])
	}

	metrics := measure(buf, out)
	metrics.Coverage = skinRes.Coverage
	return &Result{
		Buffer:     out,
		Parameters: params,
		Metrics:    metrics,
		Status:     types.StatusOK,
		Mode:       ModePortrait,
		Mask:       skinRes.Mask,
	}, nil
}

func shift(v [3]float64, d float64) [3]uint8 {
	return [3]uint8{types.ClampByte(v[0] + d), types.ClampByte(v[1] + d), types.ClampByte(v[2] + d)}
}

func maxDiff(px [3]uint8, o [3]float64) float64 {
	var m float64
	for c := range px {
		m = math.Max(m, math.Abs(float64(px[c])-o[c]))
	}
	return m
}
