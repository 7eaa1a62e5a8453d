package scene

import (
	"fmt"
	"math"

	"github.com/menta2k/scene-enhancer/pkg/histogram"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

// Framing is the orientation of the frame
type Framing int

const (
	FramingLandscape Framing = iota
	FramingPortrait
	FramingSquare
)

// String returns the framing name
func (f Framing) String() string {
	switch f {
	case FramingLandscape:
		return "landscape"
	case FramingPortrait:
		return "portrait"
	case FramingSquare:
		return "square"
	default:
		return fmt.Sprintf("framing(%d)", int(f))
	}
}

// MarshalText implements encoding.TextMarshaler
func (f Framing) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Focus describes where detail concentrates in the frame
type Focus int

const (
	FocusDistributed Focus = iota
	FocusCentered
	FocusThirds
)

// String returns the focus name
func (f Focus) String() string {
	switch f {
	case FocusDistributed:
		return "distributed"
	case FocusCentered:
		return "centered"
	case FocusThirds:
		return "thirds"
	default:
		return fmt.Sprintf("focus(%d)", int(f))
	}
}

// MarshalText implements encoding.TextMarshaler
func (f Focus) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Composition summarises framing and the distribution of edges
type Composition struct {
	Framing     Framing `json:"framing"`
	Focus       Focus   `json:"focus"`
	AspectRatio float64 `json:"aspect_ratio"`
	// Grid is the edge density of each third of the frame, [row][col]
	Grid             [3][3]float64 `json:"grid"`
	EdgeDensity      float64       `json:"edge_density"`
	CenterDensity    float64       `json:"center_density"`
	PeripheryDensity float64       `json:"periphery_density"`
}

// EdgeMap computes a per-pixel edge strength in [0,1]: the mean RGB distance
// to the 8 neighbours. Border pixels compare against clamped neighbours.
func EdgeMap(buf *types.PixelBuffer) []float64 {
	w, h := buf.Width, buf.Height
	edges := make([]float64, w*h)
	norm := 8 * 255 * math.Sqrt(3)
	neighbors := [8][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r1, g1, b1 := buf.RGB(x, y)
			var strength float64
			for _, off := range neighbors {
				nx := min(max(x+off[0], 0), w-1)
				ny := min(max(y+off[1], 0), h-1)
				r2, g2, b2 := buf.RGB(nx, ny)
				dr := float64(r1) - float64(r2)
				dg := float64(g1) - float64(g2)
				db := float64(b1) - float64(b2)
				strength += math.Sqrt(dr*dr + dg*dg + db*db)
			}
			edges[y*w+x] = strength / norm
		}
	}
	return edges
}

// analyzeComposition bins edge pixels into a 3x3 grid
func (a *Analyzer) analyzeComposition(edges []float64, w, h int) Composition {
	c := Composition{AspectRatio: float64(w) / float64(h)}
	switch {
	case c.AspectRatio > 1+a.config.SquareTolerance:
		c.Framing = FramingLandscape
	case c.AspectRatio < 1-a.config.SquareTolerance:
		c.Framing = FramingPortrait
	default:
		c.Framing = FramingSquare
	}

	var counts, totals [3][3]float64
	strong := 0
	for y := 0; y < h; y++ {
		row := min(3*y/h, 2)
		for x := 0; x < w; x++ {
			col := min(3*x/w, 2)
			totals[row][col]++
			if edges[y*w+x] > a.config.EdgeThreshold {
				counts[row][col]++
				strong++
			}
		}
	}
	c.EdgeDensity = float64(strong) / float64(w*h)

	var periphery, peripheryArea float64
	bestRow, bestCol := 1, 1
	for r := 0; r < 3; r++ {
		for col := 0; col < 3; col++ {
			c.Grid[r][col] = types.SafeDiv(counts[r][col], totals[r][col], 0)
			if r != 1 || col != 1 {
				periphery += counts[r][col]
				peripheryArea += totals[r][col]
			}
			if c.Grid[r][col] > c.Grid[bestRow][bestCol] {
				bestRow, bestCol = r, col
			}
		}
	}
	c.CenterDensity = c.Grid[1][1]
	c.PeripheryDensity = types.SafeDiv(periphery, peripheryArea, 0)

	best := c.Grid[bestRow][bestCol]
	var others float64
	for r := 0; r < 3; r++ {
		for col := 0; col < 3; col++ {
			if r != bestRow || col != bestCol {
				others += c.Grid[r][col]
			}
		}
	}
	others /= 8
	switch {
	case best == 0 || best < a.config.FocusRatio*others:
		c.Focus = FocusDistributed
	case bestRow == 1 && bestCol == 1:
		c.Focus = FocusCentered
	default:
		c.Focus = FocusThirds
	}
	return c
}

// classifyLighting derives the lighting class from histogram statistics and
// the brightness of the frame centre relative to its surround.
func (a *Analyzer) classifyLighting(stats histogram.Stats, centerLuma, surroundLuma float64) types.Lighting {
	cfg := a.config
	switch {
	case stats.MeanLuminance < cfg.Thresholds.LowLightLuminance:
		return types.LightingLowLight
	case stats.HighlightClip >= cfg.BacklitClip && surroundLuma-centerLuma >= cfg.BacklitDelta:
		return types.LightingBacklit
	case stats.DynamicRange >= cfg.HarshRange && stats.ShadowClip+stats.HighlightClip >= cfg.HarshClip:
		return types.LightingHarsh
	case stats.MedianLuminance >= cfg.HighKeyMedian:
		return types.LightingHighKey
	default:
		return types.LightingNormal
	}
}

// centerSurround returns the mean luma of the centre third and of the rest
func centerSurround(buf *types.PixelBuffer) (float64, float64) {
	w, h := buf.Width, buf.Height
	var center, surround, nc, ns float64
	for y := 0; y < h; y++ {
		inRow := 3*y/h == 1
		for x := 0; x < w; x++ {
			l := buf.Luminance(x, y)
			if inRow && 3*x/w == 1 {
				center += l
				nc++
			} else {
				surround += l
				ns++
			}
		}
	}
	return types.SafeDiv(center, nc, 0), types.SafeDiv(surround, ns, 0)
}
