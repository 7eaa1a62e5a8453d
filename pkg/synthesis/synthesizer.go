// Package synthesis fills masked regions with multi-scale, boundary-first
// patch synthesis.
package synthesis

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/rs/zerolog"

	"github.com/menta2k/scene-enhancer/pkg/performance"
	"github.com/menta2k/scene-enhancer/pkg/processing"
	"github.com/menta2k/scene-enhancer/pkg/source"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

// Synthesizer heals masked regions
type Synthesizer struct {
	config   Config
	detector *source.Detector
	logger   zerolog.Logger
}

// Config holds configuration for texture synthesis
type Config struct {
	// MinScore is the correlation a match needs; below it the patch is
	// recorded as degraded
	MinScore float64
	// GuessWeight is the matching weight of pixels carried up from the
	// coarser scale relative to known pixels
	GuessWeight float64
	// FlatStd is the deviation under which a patch channel is treated as flat
	FlatStd float64
	// FlatTolerance is the mean difference at which two flat patches stop matching
	FlatTolerance float64
	// MaxOffset bounds the per-channel mean correction applied to a source patch
	MaxOffset float64
	// DiffusionConfidence is reported when no source patch existed at all
	DiffusionConfidence float64
	// A match below MinScore triggers a search of up to LocalWindows
	// windows within LocalMargin patch sizes of the target
	LocalMargin  int
	LocalWindows int
}

// DefaultConfig returns the default synthesis configuration
func DefaultConfig() Config {
	return Config{
		MinScore:            0.5,
		GuessWeight:         0.35,
		FlatStd:             2,
		FlatTolerance:       16,
		MaxOffset:           24,
		DiffusionConfidence: 0.25,
		LocalMargin:         2,
		LocalWindows:        256,
	}
}

// New creates a new Synthesizer with default configuration
func New() *Synthesizer {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new Synthesizer with custom configuration
func NewWithConfig(config Config) *Synthesizer {
	return &Synthesizer{
		config:   config,
		detector: source.New(),
		logger:   zerolog.Nop(),
	}
}

// SetSourceDetector sets the detector used to find candidates at each scale
func (s *Synthesizer) SetSourceDetector(detector *source.Detector) {
	s.detector = detector
}

// SetLogger sets the logger for per-scale and degraded-match events
func (s *Synthesizer) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// ProgressFunc receives the number of processed patches and the total
type ProgressFunc func(done, total int)

// Options control a single synthesis run
type Options struct {
	Profile performance.Profile
	// Candidates, when set, are used at full resolution instead of running
	// the source detector
	Candidates []source.Candidate
	Progress   ProgressFunc
}

// PatchRecord is the provenance of one full-resolution patch
type PatchRecord struct {
	Target image.Rectangle `json:"target"`
	Source image.Point     `json:"source"`
	Score  float64         `json:"score"`
	Offset [3]float64      `json:"offset"`
}

// Result is a completed healing. Every masked pixel has a value.
type Result struct {
	Buffer     *types.PixelBuffer `json:"-"`
	Provenance []PatchRecord      `json:"provenance"`
	Status     types.Status       `json:"status"`
	// Confidence is the mean rescaled match score in [0,1], halved when degraded
	Confidence float64 `json:"confidence"`
	// DegradedPatches counts full-resolution patches matched below MinScore
	DegradedPatches int `json:"degraded_patches"`
	// Diffused is true when pixels were filled without a source patch
	Diffused bool `json:"diffused"`
	// Patches is the number of patches over all scales, Candidates the
	// largest candidate list used and Operations the patch comparisons made
	Patches    int `json:"patches"`
	Candidates int `json:"candidates"`
	Operations int `json:"operations"`
	Scales     int `json:"scales"`
}

// Synthesize fills mask in buf. The input is never modified; on
// cancellation no result is returned.
func (s *Synthesizer) Synthesize(ctx context.Context, buf *types.PixelBuffer, mask *types.Mask, opts Options) (*Result, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if err := mask.Fits(buf); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, types.Cancelled(err)
	}
	if mask.Count() == buf.Area() {
		return nil, fmt.Errorf("%w: mask covers the whole buffer", types.ErrInvalidInput)
	}
	if mask.Empty() {
		return &Result{Buffer: buf.Clone(), Status: types.StatusOK, Confidence: 1, Scales: 1}, nil
	}

	profile := opts.Profile
	if profile.PatchSize < 3 {
		profile = performance.ProfileFor(profile.Mode)
	}
	if err := validateCandidates(opts.Candidates, buf, mask, profile.PatchSize); err != nil {
		return nil, err
	}

	levels, err := s.buildLevels(buf, mask, profile, opts.Candidates)
	if err != nil {
		return nil, err
	}

	res := &Result{Scales: len(levels)}
	total := 0
	for _, lv := range levels {
		if len(lv.cands) == 0 {
			continue
		}
		total += len(lv.patches)
		res.Patches += len(lv.patches)
		res.Candidates = max(res.Candidates, len(lv.cands))
	}

	done := 0
	var guide *types.PixelBuffer
	for i, lv := range levels {
		finest := i == len(levels)-1
		lv.seed(guide)

		if len(lv.cands) == 0 {
			s.logger.Debug().Int("level", i).Int("width", lv.w).Msg("no source candidates, diffusing")
			lv.diffuse()
			if finest {
				res.Diffused = true
			}
			guide = lv.work
			continue
		}

		for len(lv.remaining) > 0 {
			if err := ctx.Err(); err != nil {
				return nil, types.Cancelled(err)
			}
			p := lv.next()
			match, ops := s.bestMatch(lv, p)
			res.Operations += ops
			lv.apply(p, match)

			if finest {
				res.Provenance = append(res.Provenance, PatchRecord{
					Target: image.Rect(p.X, p.Y, p.X+lv.size, p.Y+lv.size),
					Source: match.origin,
					Score:  match.score,
					Offset: match.offset,
				})
				if match.score < s.config.MinScore {
					res.DegradedPatches++
				}
			}
			done++
			if opts.Progress != nil {
				opts.Progress(done, total)
			}
		}
		if lv.diffuse() > 0 && finest {
			res.Diffused = true
		}
		s.logger.Debug().
			Int("level", i).
			Int("width", lv.w).
			Int("height", lv.h).
			Int("patches", len(lv.patches)).
			Int("candidates", len(lv.cands)).
			Msg("scale synthesized")
		guide = lv.work
	}

	res.Buffer = levels[len(levels)-1].work
	res.Confidence = s.confidence(res)
	if res.DegradedPatches > 0 || res.Diffused {
		res.Status = types.StatusDegraded
		s.logger.Info().
			Int("degraded_patches", res.DegradedPatches).
			Bool("diffused", res.Diffused).
			Float64("confidence", res.Confidence).
			Msg("healing degraded")
	}
	return res, nil
}

// bestMatch compares every candidate against the target patch and returns
// the highest scoring one with the number of comparisons made. When no
// candidate reaches MinScore the neighbourhood of the target is searched too.
func (s *Synthesizer) bestMatch(lv *level, target image.Point) (match, int) {
	best := match{score: math.Inf(-1)}
	for _, c := range lv.cands {
		score, offset := lv.compare(target, c.Origin())
		if score > best.score {
			best = match{origin: c.Origin(), score: score, offset: offset}
		}
	}
	ops := len(lv.cands)
	if best.score >= s.config.MinScore {
		return best, ops
	}

	local, n := lv.localSearch(target, s.config.LocalMargin*lv.size, s.config.LocalWindows)
	if local.score > best.score {
		best = local
	}
	return best, ops + n
}

// validateCandidates checks caller-supplied sources: each must be a
// size-by-size window inside buf that no masked pixel touches
func validateCandidates(cands []source.Candidate, buf *types.PixelBuffer, mask *types.Mask, size int) error {
	if len(cands) == 0 {
		return nil
	}
	bounds := image.Rect(0, 0, buf.Width, buf.Height)
	integral := mask.Integral()
	for i, c := range cands {
		r := c.Rect
		if r.Dx() != size || r.Dy() != size {
			return fmt.Errorf("%w: candidate %d is %dx%d, want %dx%d", types.ErrInvalidInput, i, r.Dx(), r.Dy(), size, size)
		}
		if !r.In(bounds) {
			return fmt.Errorf("%w: candidate %d at %v leaves the buffer", types.ErrInvalidInput, i, r)
		}
		if integral.Count(r) > 0 {
			return fmt.Errorf("%w: candidate %d at %v overlaps the mask", types.ErrInvalidInput, i, r)
		}
	}
	return nil
}

func (s *Synthesizer) confidence(res *Result) float64 {
	if len(res.Provenance) == 0 {
		if res.Diffused {
			return s.config.DiffusionConfidence
		}
		return 1
	}
	var sum float64
	for _, p := range res.Provenance {
		sum += (p.Score + 1) / 2
	}
	c := types.Clamp(sum/float64(len(res.Provenance)), 0, 1)
	if res.DegradedPatches > 0 || res.Diffused {
		c /= 2
	}
	return c
}

// buildLevels prepares coarse-to-fine levels. Coarse levels too small for a
// patch search are skipped; full resolution is always the last level.
func (s *Synthesizer) buildLevels(buf *types.PixelBuffer, mask *types.Mask, profile performance.Profile, finestCands []source.Candidate) ([]*level, error) {
	var levels []*level
	for k := profile.Scales - 1; k >= 1; k-- {
		f := 1 << k
		w, h := (buf.Width+f-1)/f, (buf.Height+f-1)/f
		if w < 2*profile.PatchSize || h < 2*profile.PatchSize {
			continue
		}
		lbuf := processing.Resize(buf, w, h)
		lmask := processing.DownsampleMask(mask, w, h)
		if lmask.Count() == lmask.Width*lmask.Height {
			continue
		}
		cands, err := s.detector.FindCandidates(lbuf, lmask, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to find candidates at 1/%d scale: %w", f, err)
		}
		levels = append(levels, newLevel(lbuf, lmask, profile.PatchSize, cands, s.config))
	}

	cands := finestCands
	if cands == nil {
		var err error
		cands, err = s.detector.FindCandidates(buf, mask, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to find candidates: %w", err)
		}
	}
	levels = append(levels, newLevel(buf.Clone(), mask, profile.PatchSize, cands, s.config))
	return levels, nil
}
