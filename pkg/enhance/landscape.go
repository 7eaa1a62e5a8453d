package enhance

import (
	"fmt"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/scene-enhancer/pkg/performance"
	"github.com/menta2k/scene-enhancer/pkg/processing"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

// LandscapeParams grade sky and foliage independently. Every value is in
// [-1,1]; 0 leaves the region alone.
type LandscapeParams struct {
	SkyContrast       float64 `json:"sky_contrast"`
	SkySaturation     float64 `json:"sky_saturation"`
	SkyClarity        float64 `json:"sky_clarity"`
	FoliageSaturation float64 `json:"foliage_saturation"`
}

// DefaultLandscapeParams returns a moderate grade
func DefaultLandscapeParams() LandscapeParams {
	return LandscapeParams{
		SkyContrast:       0.25,
		SkySaturation:     0.2,
		SkyClarity:        0.3,
		FoliageSaturation: 0.25,
	}
}

// Validate checks every value lies in [-1,1]
func (p LandscapeParams) Validate() error {
	for name, v := range map[string]float64{
		"sky_contrast":       p.SkyContrast,
		"sky_saturation":     p.SkySaturation,
		"sky_clarity":        p.SkyClarity,
		"foliage_saturation": p.FoliageSaturation,
	} {
		if math.IsNaN(v) || v < -1 || v > 1 {
			return fmt.Errorf("%w: %s %v outside [-1,1]", types.ErrInvalidInput, name, v)
		}
	}
	return nil
}

// Landscape grades sky and foliage regions, feathering each adjustment over
// the profile's feather radius around the mask edge.
func (e *Engine) Landscape(buf *types.PixelBuffer, lp LandscapeParams, profile performance.Profile) (*Result, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if err := lp.Validate(); err != nil {
		return nil, err
	}

	land, err := e.landscape.Detect(buf)
	if err != nil {
		return nil, fmt.Errorf("landscape detection failed: %w", err)
	}
	region := land.SkyMask.Union(land.FoliageMask)

	params := NeutralParameters()
	hasSky := land.SkyCoverage >= e.config.MinRegionCoverage
	hasFoliage := land.FoliageCoverage >= e.config.MinRegionCoverage
	if !hasSky && !hasFoliage {
		return unchanged(buf, ModeLandscape, params, types.StatusNoApplicableRegion, region), nil
	}

	feather := float64(profile.FeatherRadius)
	if feather < 1 {
		feather = 1
	}
	params.Landscape = lp
	params.Feather = feather

	w, h := buf.Width, buf.Height
	var skyW, folW []float64
	if hasSky {
		skyW = FeatherWeights(land.SkyMask, feather)
	}
	if hasFoliage {
		folW = FeatherWeights(land.FoliageMask, feather)
	}

	// sky statistics and local-contrast base
	var skyMean float64
	var blurLuma []float64
	if hasSky {
		var n float64
		for _, pt := range land.SkyMask.Points() {
			skyMean += buf.Luminance(pt.X, pt.Y)
			n++
		}
		skyMean /= n
		if lp.SkyClarity != 0 {
			blurred := processing.FromImage(imaging.Blur(processing.ToNRGBA(buf), e.config.ClaritySigma), types.LayoutRGB)
			blurLuma = blurred.LumaPlane()
		}
	}

	out := buf.Clone()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			var ws, wf float64
			if skyW != nil {
				ws = skyW[i]
			}
			if folW != nil {
				wf = folW[i]
			}
			if ws == 0 && wf == 0 {
				continue
			}

			r, g, b := buf.RGB(x, y)
			o := [3]float64{float64(r), float64(g), float64(b)}
			l := types.Luma(o[0], o[1], o[2])
			var delta [3]float64

			if ws > 0 {
				// contrast around the sky mean, clarity against the blurred base
				dl := (l - skyMean) * 0.5 * lp.SkyContrast
				if blurLuma != nil {
					dl += (l - blurLuma[i]) * lp.SkyClarity
				}
				sat := 1 + lp.SkySaturation
				for c := range delta {
					v := l + dl + (o[c]-l)*sat
					delta[c] += ws * (v - o[c])
				}
			}
			if wf > 0 {
				// the boost follows how strongly green dominates the pixel
				green := types.Clamp((o[1]-math.Max(o[0], o[2]))/64, 0, 1)
				sat := 1 + lp.FoliageSaturation*green
				for c := range delta {
					v := l + (o[c]-l)*sat
					delta[c] += wf * (v - o[c])
				}
			}
			out.SetRGB(x, y,
				types.ClampByte(o[0]+delta[0]),
				types.ClampByte(o[1]+delta[1]),
				types.ClampByte(o[2]+delta[2]))
		}
	}

	metrics := measure(buf, out)
	metrics.Coverage = region.Coverage()
	return &Result{
		Buffer:     out,
		Parameters: params,
		Metrics:    metrics,
		Status:     types.StatusOK,
		Mode:       ModeLandscape,
		Mask:       region,
	}, nil
}

// FeatherWeights maps the signed distance to the mask edge onto a blend
// weight: 0.5 at the edge, 1 at feather pixels inside, 0 at feather outside.
func FeatherWeights(m *types.Mask, feather float64) []float64 {
	sd := m.SignedDistance()
	w := make([]float64, len(sd))
	for i, d := range sd {
		w[i] = types.Clamp(0.5+float64(d)/(2*feather), 0, 1)
	}
	return w
}
