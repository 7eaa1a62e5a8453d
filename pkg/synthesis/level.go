package synthesis

import (
	"image"
	"math"

	"github.com/menta2k/scene-enhancer/pkg/processing"
	"github.com/menta2k/scene-enhancer/pkg/source"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

// pixel states within a level
const (
	stateUnknown uint8 = iota
	stateKnown
	stateFilled
	stateGuess
)

// level is one scale of the pyramid. work holds the image being filled;
// pixels outside the mask are never written.
type level struct {
	work    *types.PixelBuffer
	mask    *types.Mask
	maskInt *types.MaskIntegral
	state   []uint8
	w, h  int
	size  int
	cands []source.Candidate
	cfg   Config

	patches   []image.Point
	known     []int
	remaining []int
}

type match struct {
	origin image.Point
	score  float64
	offset [3]float64
}

func newLevel(work *types.PixelBuffer, mask *types.Mask, size int, cands []source.Candidate, cfg Config) *level {
	lv := &level{
		work:    work,
		mask:    mask,
		maskInt: mask.Integral(),
		state:   make([]uint8, work.Width*work.Height),
		w:       work.Width,
		h:       work.Height,
		size:    size,
		cands:   cands,
		cfg:     cfg,
	}
	lv.patches = patchGrid(mask, size)
	lv.remaining = make([]int, len(lv.patches))
	for i := range lv.remaining {
		lv.remaining[i] = i
	}
	return lv
}

// patchGrid places patches centred on a half-patch grid over the mask
// bounds, clamped into the image, keeping those touching the mask. Every
// masked pixel is covered by at least one patch.
func patchGrid(mask *types.Mask, size int) []image.Point {
	bounds := mask.Bounds()
	if bounds.Empty() || size > mask.Width || size > mask.Height {
		return nil
	}
	xs := axisPositions(bounds.Min.X, bounds.Max.X, mask.Width, size)
	ys := axisPositions(bounds.Min.Y, bounds.Max.Y, mask.Height, size)
	integral := mask.Integral()

	var out []image.Point
	for _, y := range ys {
		for _, x := range xs {
			if integral.Count(image.Rect(x, y, x+size, y+size)) > 0 {
				out = append(out, image.Pt(x, y))
			}
		}
	}
	return out
}

func axisPositions(lo, hi, n, size int) []int {
	step := max(1, size/2)
	var out []int
	add := func(c int) {
		p := min(max(c-size/2, 0), n-size)
		if len(out) == 0 || out[len(out)-1] != p {
			out = append(out, p)
		}
	}
	for c := lo; c < hi; c += step {
		add(c)
	}
	add(hi - 1)
	return out
}

// seed marks pixel states and fills masked pixels from the coarser result
// when there is one
func (lv *level) seed(guide *types.PixelBuffer) {
	if guide != nil && (guide.Width != lv.w || guide.Height != lv.h) {
		guide = processing.UpsampleBilinear(guide, lv.w, lv.h)
	}
	for y := 0; y < lv.h; y++ {
		for x := 0; x < lv.w; x++ {
			i := y*lv.w + x
			switch {
			case !lv.mask.At(x, y):
				lv.state[i] = stateKnown
			case guide != nil:
				r, g, b := guide.RGB(x, y)
				lv.work.SetRGB(x, y, r, g, b)
				lv.state[i] = stateGuess
			default:
				lv.state[i] = stateUnknown
			}
		}
	}
	lv.known = make([]int, len(lv.patches))
	for i := range lv.patches {
		lv.known[i] = lv.countKnown(lv.patches[i])
	}
}

func (lv *level) countKnown(p image.Point) int {
	n := 0
	for y := p.Y; y < p.Y+lv.size; y++ {
		for x := p.X; x < p.X+lv.size; x++ {
			if s := lv.state[y*lv.w+x]; s == stateKnown || s == stateFilled {
				n++
			}
		}
	}
	return n
}

// next removes and returns the remaining patch with the most resolved
// pixels, so filling proceeds from the mask boundary inward. Ties go to
// the earlier patch in row-major order.
func (lv *level) next() image.Point {
	best := 0
	for k := 1; k < len(lv.remaining); k++ {
		i, b := lv.remaining[k], lv.remaining[best]
		if lv.known[i] > lv.known[b] || (lv.known[i] == lv.known[b] && i < b) {
			best = k
		}
	}
	idx := lv.remaining[best]
	lv.remaining = append(lv.remaining[:best], lv.remaining[best+1:]...)
	return lv.patches[idx]
}

func (lv *level) weight(s uint8) float64 {
	switch s {
	case stateKnown, stateFilled:
		return 1
	case stateGuess:
		return lv.cfg.GuessWeight
	default:
		return 0
	}
}

// compare scores the source window at src against the resolved pixels of
// the target patch with weighted per-channel normalised cross-correlation,
// and returns the mean offset that moves the source onto the target
func (lv *level) compare(target, src image.Point) (float64, [3]float64) {
	var wsum float64
	var sa, sb, saa, sbb, sab [3]float64
	for dy := 0; dy < lv.size; dy++ {
		for dx := 0; dx < lv.size; dx++ {
			tx, ty := target.X+dx, target.Y+dy
			wt := lv.weight(lv.state[ty*lv.w+tx])
			if wt == 0 {
				continue
			}
			ar, ag, ab := lv.work.RGB(tx, ty)
			br, bg, bb := lv.work.RGB(src.X+dx, src.Y+dy)
			a := [3]float64{float64(ar), float64(ag), float64(ab)}
			b := [3]float64{float64(br), float64(bg), float64(bb)}
			wsum += wt
			for c := 0; c < 3; c++ {
				sa[c] += wt * a[c]
				sb[c] += wt * b[c]
				saa[c] += wt * a[c] * a[c]
				sbb[c] += wt * b[c] * b[c]
				sab[c] += wt * a[c] * b[c]
			}
		}
	}

	var offset [3]float64
	if wsum == 0 {
		return 0, offset
	}
	var score float64
	for c := 0; c < 3; c++ {
		ma, mb := sa[c]/wsum, sb[c]/wsum
		da := math.Sqrt(math.Max(0, saa[c]/wsum-ma*ma))
		db := math.Sqrt(math.Max(0, sbb[c]/wsum-mb*mb))
		flatA, flatB := da < lv.cfg.FlatStd, db < lv.cfg.FlatStd

		switch {
		case flatA && flatB:
			score += 1 - 2*math.Min(1, math.Abs(ma-mb)/lv.cfg.FlatTolerance)
		case flatA || flatB:
		default:
			cov := sab[c]/wsum - ma*mb
			score += types.Clamp(cov/(da*db), -1, 1)
		}
		offset[c] = types.Clamp(ma-mb, -lv.cfg.MaxOffset, lv.cfg.MaxOffset)
	}
	return score / 3, offset
}

// localSearch scores every mask-free window within margin pixels of the
// target, sampled at the finest stride that keeps the scan within budget
// windows. It returns the best match and the number of comparisons made.
func (lv *level) localSearch(target image.Point, margin, budget int) (match, int) {
	best := match{score: math.Inf(-1)}
	x0, y0 := max(0, target.X-margin), max(0, target.Y-margin)
	x1, y1 := min(lv.w-lv.size, target.X+margin), min(lv.h-lv.size, target.Y+margin)
	if x1 < x0 || y1 < y0 || budget <= 0 {
		return best, 0
	}
	stride := 1
	for ((x1-x0)/stride+1)*((y1-y0)/stride+1) > budget {
		stride++
	}

	ops := 0
	for y := y0; y <= y1; y += stride {
		for x := x0; x <= x1; x += stride {
			if lv.maskInt.Count(image.Rect(x, y, x+lv.size, y+lv.size)) > 0 {
				continue
			}
			score, offset := lv.compare(target, image.Pt(x, y))
			ops++
			if score > best.score {
				best = match{origin: image.Pt(x, y), score: score, offset: offset}
			}
		}
	}
	return best, ops
}

// apply copies the matched source into the masked pixels of the target
// patch. Pixels already filled at this level are feathered toward the new
// patch by their distance from its border.
func (lv *level) apply(target image.Point, m match) {
	half := float64(lv.size / 2)
	for dy := 0; dy < lv.size; dy++ {
		for dx := 0; dx < lv.size; dx++ {
			tx, ty := target.X+dx, target.Y+dy
			i := ty*lv.w + tx
			s := lv.state[i]
			if s == stateKnown {
				continue
			}
			sr, sg, sb := lv.work.RGB(m.origin.X+dx, m.origin.Y+dy)
			v := [3]float64{float64(sr) + m.offset[0], float64(sg) + m.offset[1], float64(sb) + m.offset[2]}
			if s == stateFilled {
				edge := min(min(dx, dy), min(lv.size-1-dx, lv.size-1-dy))
				alpha := math.Min(1, float64(edge+1)/(half+1))
				or, og, ob := lv.work.RGB(tx, ty)
				old := [3]float64{float64(or), float64(og), float64(ob)}
				for c := range v {
					v[c] = old[c]*(1-alpha) + v[c]*alpha
				}
			}
			lv.work.SetRGB(tx, ty, types.ClampByte(v[0]), types.ClampByte(v[1]), types.ClampByte(v[2]))
			lv.state[i] = stateFilled
		}
	}

	for _, k := range lv.remaining {
		q := lv.patches[k]
		if abs(q.X-target.X) < lv.size && abs(q.Y-target.Y) < lv.size {
			lv.known[k] = lv.countKnown(q)
		}
	}
}

// diffuse fills any masked pixel still unknown by repeatedly averaging its
// resolved neighbours, peeling inward from the boundary. It returns the
// number of pixels filled this way.
func (lv *level) diffuse() int {
	type fill struct {
		i int
		v [3]uint8
	}
	filled := 0
	for {
		var frontier []fill
		for y := 0; y < lv.h; y++ {
			for x := 0; x < lv.w; x++ {
				i := y*lv.w + x
				if lv.state[i] != stateUnknown {
					continue
				}
				var sum [3]float64
				n := 0
				for ny := max(0, y-1); ny <= min(lv.h-1, y+1); ny++ {
					for nx := max(0, x-1); nx <= min(lv.w-1, x+1); nx++ {
						if lv.state[ny*lv.w+nx] == stateUnknown {
							continue
						}
						r, g, b := lv.work.RGB(nx, ny)
						sum[0] += float64(r)
						sum[1] += float64(g)
						sum[2] += float64(b)
						n++
					}
				}
				if n == 0 {
					continue
				}
				k := float64(n)
				frontier = append(frontier, fill{i, [3]uint8{
					types.ClampByte(sum[0] / k), types.ClampByte(sum[1] / k), types.ClampByte(sum[2] / k),
				}})
			}
		}
		if len(frontier) == 0 {
			return filled
		}
		for _, f := range frontier {
			lv.work.SetRGB(f.i%lv.w, f.i/lv.w, f.v[0], f.v[1], f.v[2])
			lv.state[f.i] = stateFilled
		}
		filled += len(frontier)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
