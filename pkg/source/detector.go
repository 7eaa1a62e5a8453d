// Package source proposes and ranks source patches for healing.
package source

import (
	"fmt"
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/menta2k/scene-enhancer/pkg/performance"
	"github.com/menta2k/scene-enhancer/pkg/processing"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

// Detector finds candidate source patches around a mask
type Detector struct {
	config Config
}

// Config holds configuration for source region detection
type Config struct {
	// RingWidth is how far around the mask the reference surround extends
	RingWidth int
	// ColorSigma and TextureSigma control how quickly similarity decays with
	// mean colour distance and luma deviation mismatch
	ColorSigma   float64
	TextureSigma float64
	// EdgeThreshold is the Sobel magnitude treated as a strong edge
	EdgeThreshold float64

	SimilarityWeight float64
	DistanceWeight   float64
	EdgeWeight       float64
	// MinSimilarity is the similarity a candidate needs to be proposed
	MinSimilarity float64
	// MaxWindows bounds how many positions are scored; the stride grows to
	// stay under it
	MaxWindows int
}

// DefaultConfig returns the default source detector configuration
func DefaultConfig() Config {
	return Config{
		RingWidth:        3,
		ColorSigma:       24,
		TextureSigma:     10,
		EdgeThreshold:    120,
		SimilarityWeight: 1,
		DistanceWeight:   0.5,
		EdgeWeight:       0.5,
		MinSimilarity:    0.5,
		MaxWindows:       4096,
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

// Candidate is a square source window lying entirely outside the mask
type Candidate struct {
	Rect image.Rectangle `json:"rect"`
	// Similarity to the mask surround, in [0,1]
	Similarity float64 `json:"similarity"`
	// Distance from the window centre to the nearest masked pixel
	Distance float64 `json:"distance"`
	// EdgePenalty is the fraction of strong-edge pixels in the window
	EdgePenalty float64 `json:"edge_penalty"`
	Score       float64 `json:"score"`
	// Fallback marks the single lowest-penalty window returned when nothing
	// cleared MinSimilarity
	Fallback bool `json:"fallback"`
}

// Origin returns the top-left corner of the window
func (c Candidate) Origin() image.Point {
	return c.Rect.Min
}

// Surround describes the pixels just outside the mask
type Surround struct {
	Mean     [3]float64
	LumaStd  float64
	Pixels   int
	Boundary *types.Mask
}

// FindCandidates returns candidate windows of profile.PatchSize ordered by
// score, ties broken by smaller distance. At most profile.MaxCandidates
// windows clearing MinSimilarity are returned; when none does, the single
// lowest-penalty window is returned instead. The list is empty only when no
// window fits outside the mask.
func (d *Detector) FindCandidates(buf *types.PixelBuffer, mask *types.Mask, profile performance.Profile) ([]Candidate, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if err := mask.Fits(buf); err != nil {
		return nil, err
	}
	if mask.Empty() {
		return nil, fmt.Errorf("%w: empty mask", types.ErrInvalidInput)
	}
	size := profile.PatchSize
	if size < 3 {
		size = 3
	}
	w, h := buf.Width, buf.Height
	if size > w || size > h {
		return nil, nil
	}

	s := newScanner(d, buf, mask, size)
	full := image.Rect(0, 0, w, h)
	area := searchArea(mask.Bounds(), full, size, profile.SearchMaxDim)
	cands := s.scan(area, profile.SearchStride)
	if len(cands) == 0 && area != full {
		cands = s.scan(full, profile.SearchStride)
	}
	if len(cands) == 0 {
		return nil, nil
	}

	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.Rect.Min.Y != b.Rect.Min.Y {
			return a.Rect.Min.Y < b.Rect.Min.Y
		}
		return a.Rect.Min.X < b.Rect.Min.X
	})

	var out []Candidate
	for _, c := range cands {
		if c.Similarity >= d.config.MinSimilarity {
			out = append(out, c)
			if len(out) == profile.MaxCandidates {
				break
			}
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	best := cands[0]
	for _, c := range cands[1:] {
		if pa, pb := s.penalty(c), s.penalty(best); pa < pb || (pa == pb && c.Distance < best.Distance) {
			best = c
		}
	}
	best.Fallback = true
	return []Candidate{best}, nil
}

// DescribeSurround measures the ring of pixels around the mask
func (d *Detector) DescribeSurround(buf *types.PixelBuffer, mask *types.Mask) Surround {
	ring := mask.Dilate(d.config.RingWidth).Subtract(mask)
	pts := ring.Points()
	s := Surround{Pixels: len(pts), Boundary: ring}
	if len(pts) == 0 {
		return s
	}
	chans := [3][]float64{make([]float64, len(pts)), make([]float64, len(pts)), make([]float64, len(pts))}
	luma := make([]float64, len(pts))
	for i, p := range pts {
		r, g, b := buf.RGB(p.X, p.Y)
		chans[0][i], chans[1][i], chans[2][i] = float64(r), float64(g), float64(b)
		luma[i] = types.Luma(float64(r), float64(g), float64(b))
	}
	for c := range chans {
		s.Mean[c] = stat.Mean(chans[c], nil)
	}
	if len(luma) > 1 {
		_, s.LumaStd = stat.PopMeanStdDev(luma, nil)
	}
	return s
}

// searchArea grows the mask bounds by a margin, capped so neither side of
// the area exceeds maxDim (unless the bounds themselves do).
func searchArea(bounds, full image.Rectangle, size, maxDim int) image.Rectangle {
	margin := max(2*size, max(bounds.Dx(), bounds.Dy()))
	if maxDim > 0 {
		limit := (maxDim - max(bounds.Dx(), bounds.Dy())) / 2
		margin = min(margin, max(limit, size))
	}
	return bounds.Inset(-margin).Intersect(full)
}

type scanner struct {
	d        *Detector
	size     int
	surround Surround
	maskInt  *types.MaskIntegral
	edgeInt  *types.MaskIntegral
	planes   *planeIntegrals
	dist     []float32
	width    int
	diag     float64
}

func newScanner(d *Detector, buf *types.PixelBuffer, mask *types.Mask, size int) *scanner {
	w, h := buf.Width, buf.Height
	luma := buf.LumaPlane()
	edges := processing.SobelMagnitude(luma, w, h)
	strong := types.NewMask(w, h)
	for i, e := range edges {
		if e > d.config.EdgeThreshold {
			strong.Set(i%w, i/w, true)
		}
	}
	return &scanner{
		d:        d,
		size:     size,
		surround: d.DescribeSurround(buf, mask),
		maskInt:  mask.Integral(),
		edgeInt:  strong.Integral(),
		planes:   newPlaneIntegrals(buf, luma),
		dist:     mask.SignedDistance(),
		width:    w,
		diag:     math.Hypot(float64(w), float64(h)),
	}
}

// scan scores every window in area on a stride grid
func (s *scanner) scan(area image.Rectangle, stride int) []Candidate {
	size := s.size
	if area.Dx() < size || area.Dy() < size {
		return nil
	}
	if stride < 1 {
		stride = 1
	}
	nx, ny := area.Dx()-size+1, area.Dy()-size+1
	if limit := s.d.config.MaxWindows; limit > 0 {
		for (nx+stride-1)/stride*((ny+stride-1)/stride) > limit {
			stride++
		}
	}

	var cands []Candidate
	for y := area.Min.Y; y+size <= area.Max.Y; y += stride {
		for x := area.Min.X; x+size <= area.Max.X; x += stride {
			r := image.Rect(x, y, x+size, y+size)
			if s.maskInt.Count(r) > 0 {
				continue
			}
			cands = append(cands, s.score(r))
		}
	}
	return cands
}

func (s *scanner) score(r image.Rectangle) Candidate {
	cfg := s.d.config
	n := float64(r.Dx() * r.Dy())
	mean, lumaStd := s.planes.stats(r)

	var colorDist float64
	for c := range mean {
		diff := mean[c] - s.surround.Mean[c]
		colorDist += diff * diff
	}
	texDiff := lumaStd - s.surround.LumaStd
	similarity := math.Exp(-colorDist/(2*cfg.ColorSigma*cfg.ColorSigma)) *
		math.Exp(-texDiff*texDiff/(2*cfg.TextureSigma*cfg.TextureSigma))

	cx, cy := (r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2
	cand := Candidate{
		Rect:        r,
		Similarity:  similarity,
		Distance:    -float64(s.dist[cy*s.width+cx]),
		EdgePenalty: float64(s.edgeInt.Count(r)) / n,
	}
	cand.Score = cfg.SimilarityWeight*similarity - s.penalty(cand)
	return cand
}

func (s *scanner) penalty(c Candidate) float64 {
	return s.d.config.DistanceWeight*c.Distance/s.diag + s.d.config.EdgeWeight*c.EdgePenalty
}

// planeIntegrals holds summed-area tables for the colour channels, luma and
// squared luma
type planeIntegrals struct {
	width int
	sums  [5][]float64
}

func newPlaneIntegrals(buf *types.PixelBuffer, luma []float64) *planeIntegrals {
	w, h := buf.Width, buf.Height
	iw := w + 1
	p := &planeIntegrals{width: iw}
	for k := range p.sums {
		p.sums[k] = make([]float64, iw*(h+1))
	}
	var row [5]float64
	for y := 0; y < h; y++ {
		row = [5]float64{}
		for x := 0; x < w; x++ {
			r, g, b := buf.RGB(x, y)
			l := luma[y*w+x]
			vals := [5]float64{float64(r), float64(g), float64(b), l, l * l}
			idx := (y+1)*iw + x + 1
			for k, v := range vals {
				row[k] += v
				p.sums[k][idx] = p.sums[k][idx-iw] + row[k]
			}
		}
	}
	return p
}

func (p *planeIntegrals) sum(k int, r image.Rectangle) float64 {
	s, w := p.sums[k], p.width
	return s[r.Max.Y*w+r.Max.X] - s[r.Min.Y*w+r.Max.X] - s[r.Max.Y*w+r.Min.X] + s[r.Min.Y*w+r.Min.X]
}

// stats returns the mean colour and luma standard deviation inside r
func (p *planeIntegrals) stats(r image.Rectangle) ([3]float64, float64) {
	n := float64(r.Dx() * r.Dy())
	var mean [3]float64
	for c := range mean {
		mean[c] = p.sum(c, r) / n
	}
	lm := p.sum(3, r) / n
	v := p.sum(4, r)/n - lm*lm
	if v < 0 {
		v = 0
	}
	return mean, math.Sqrt(v)
}
