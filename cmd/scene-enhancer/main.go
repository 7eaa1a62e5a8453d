package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	sceneenhancer "github.com/menta2k/scene-enhancer"
	"github.com/menta2k/scene-enhancer/internal/config"
	"github.com/menta2k/scene-enhancer/internal/utils"
	"github.com/menta2k/scene-enhancer/pkg/enhance"
	"github.com/menta2k/scene-enhancer/pkg/performance"
	"github.com/menta2k/scene-enhancer/pkg/processing"
	"github.com/menta2k/scene-enhancer/pkg/scene"
	"github.com/menta2k/scene-enhancer/pkg/synthesis"
	"github.com/menta2k/scene-enhancer/pkg/types"
)

// options collects the command line
type options struct {
	in, outDir, op string
	mode           string
	intensity      float64
	maskPath, rect string
	configPath     string
	ext            string
	quality        int
	lossless       bool
	debug          bool
	verbose        bool
}

// record is the JSON written next to every output
type record struct {
	Input       string               `json:"input"`
	Op          string               `json:"op"`
	Mode        performance.Mode     `json:"mode"`
	Info        processing.ImageInfo `json:"info"`
	Analysis    *scene.Analysis      `json:"analysis,omitempty"`
	Enhancement *enhance.Result      `json:"enhancement,omitempty"`
	Healing     *synthesis.Result    `json:"healing,omitempty"`
	Output      string               `json:"output,omitempty"`
	Elapsed     string               `json:"elapsed"`
}

func main() {
	_ = godotenv.Load()

	var o options
	flag.StringVar(&o.in, "in", "", "input image or directory (jpg/png/webp)")
	flag.StringVar(&o.outDir, "out", "", "output directory (default from config)")
	flag.StringVar(&o.op, "op", "analyze", "operation: analyze|smart|portrait|landscape|heal")
	flag.StringVar(&o.mode, "mode", os.Getenv("SCENE_ENHANCER_MODE"), "performance mode: lite|medium|advanced")
	flag.Float64Var(&o.intensity, "intensity", -1, "portrait intensity 0..100 (default from config)")
	flag.StringVar(&o.maskPath, "mask", "", "heal mask image; bright pixels are healed")
	flag.StringVar(&o.rect, "rect", "", "heal rectangle x,y,w,h (alternative to -mask)")
	flag.StringVar(&o.configPath, "config", os.Getenv("SCENE_ENHANCER_CONFIG"), "configuration file (JSON)")
	flag.StringVar(&o.ext, "ext", "", "output format: jpg|png|webp (default from config)")
	flag.IntVar(&o.quality, "quality", 0, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&o.lossless, "lossless", false, "WebP output lossless mode")
	flag.BoolVar(&o.debug, "debug", false, "write debug overlay images")
	flag.BoolVar(&o.verbose, "v", false, "verbose logging")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)
	if o.verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}

	if o.in == "" {
		logger.Fatal().Msgf("usage: %s -in photo.jpg|dir [-op analyze|smart|portrait|landscape|heal] [-mode lite|medium|advanced] [-mask mask.png | -rect x,y,w,h] [-out outdir] [-ext jpg|png|webp]", filepath.Base(os.Args[0]))
	}

	cfg, err := loadConfig(o)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	opts, err := cfg.Options(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		logger.Fatal().Err(err).Msg("cannot create output directory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputs := []string{o.in}
	if utils.DirExists(o.in) {
		if inputs, err = utils.ListImageFiles(o.in); err != nil {
			logger.Fatal().Err(err).Msg("cannot list input directory")
		}
	}

	app := &app{
		enhancer:  sceneenhancer.NewWithOptions(opts),
		processor: processing.NewProcessor(),
		cfg:       cfg,
		opts:      o,
		logger:    logger,
	}
	failed := 0
	for _, in := range inputs {
		if err := app.process(ctx, in); err != nil {
			failed++
			logger.Error().Err(err).Str("input", in).Msg("processing failed")
			if ctx.Err() != nil {
				break
			}
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// loadConfig reads the configuration file when one is given and applies
// flag overrides
func loadConfig(o options) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.LoadFromFile(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.mode != "" {
		cfg.Mode = o.mode
	}
	if o.outDir != "" {
		cfg.Output.OutputDir = o.outDir
	}
	if o.ext != "" {
		cfg.Output.DefaultFormat = strings.ToLower(o.ext)
	}
	if o.quality > 0 {
		cfg.Output.Quality = o.quality
	}
	if o.lossless {
		cfg.Output.Lossless = true
	}
	if o.intensity >= 0 {
		cfg.Enhance.PortraitIntensity = o.intensity
	}
	return cfg, cfg.Validate()
}

type app struct {
	enhancer  *sceneenhancer.Enhancer
	processor *processing.Processor
	cfg       *config.Config
	opts      options
	logger    zerolog.Logger
}

func (a *app) process(ctx context.Context, in string) error {
	start := time.Now()
	buf, err := a.processor.LoadBuffer(in)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	if err := processing.ValidateSize(buf, 8); err != nil {
		return err
	}

	rec := record{
		Input: in,
		Op:    a.opts.op,
		Mode:  a.enhancer.Performance().Mode(),
		Info:  processing.GetImageInfo(buf),
	}
	log := a.logger.With().Str("input", filepath.Base(in)).Str("op", a.opts.op).Logger()

	var out *types.PixelBuffer
	switch a.opts.op {
	case "analyze":
		rec.Analysis, err = a.enhancer.AnalyzeScene(ctx, buf)
		if err == nil {
			log.Info().
				Str("type", rec.Analysis.Type.String()).
				Float64("confidence", rec.Analysis.Confidence).
				Str("lighting", rec.Analysis.Lighting.String()).
				Msg("scene analyzed")
			if a.opts.debug {
				a.saveDebug(in, "scene", a.sceneOverlay(buf, rec.Analysis))
			}
		}
	case "smart":
		rec.Enhancement, err = a.enhancer.SmartEnhance(ctx, buf, enhance.ModeSmart)
	case "portrait":
		rec.Enhancement, err = a.enhancer.EnhancePortrait(ctx, buf, a.cfg.Enhance.PortraitIntensity)
	case "landscape":
		rec.Enhancement, err = a.enhancer.EnhanceLandscape(buf, a.cfg.LandscapeParams())
	case "heal":
		rec.Healing, err = a.heal(ctx, in, buf, log)
	default:
		return fmt.Errorf("unknown operation %q", a.opts.op)
	}
	if err != nil {
		return err
	}

	if rec.Enhancement != nil {
		out = rec.Enhancement.Buffer
		log.Info().
			Str("status", rec.Enhancement.Status.String()).
			Int("changed_pixels", rec.Enhancement.Metrics.ChangedPixels).
			Float64("mean_delta", rec.Enhancement.Metrics.MeanDelta).
			Msg("enhanced")
		if a.opts.debug && rec.Enhancement.Mask != nil {
			a.saveDebug(in, "mask", a.processor.CreateDebugOverlay(buf, processing.Overlay{
				Masks:   []processing.MaskLayer{{Mask: fitMask(rec.Enhancement.Mask, buf), Color: color.NRGBA{255, 0, 255, 110}}},
				Horizon: -1,
			}))
		}
	}
	if rec.Healing != nil {
		out = rec.Healing.Buffer
	}

	if out != nil {
		rec.Output = utils.GenerateOutputFilename(in, a.cfg.Output.OutputDir, a.cfg.Output.Suffix+"_"+a.opts.op, a.cfg.Output.DefaultFormat)
		if err := a.processor.SaveBuffer(out, rec.Output, a.cfg.Output.DefaultFormat, a.cfg.Output.Quality, a.cfg.Output.Lossless); err != nil {
			return fmt.Errorf("failed to save %s: %w", rec.Output, err)
		}
		size := int64(0)
		if st, err := os.Stat(rec.Output); err == nil {
			size = st.Size()
		}
		log.Info().Str("path", rec.Output).Str("size", utils.FormatFileSize(size)).Msg("wrote")
	}

	rec.Elapsed = time.Since(start).Round(time.Millisecond).String()
	js, _ := json.MarshalIndent(rec, "", "  ")
	recPath := utils.GenerateOutputFilename(in, a.cfg.Output.OutputDir, "_"+a.opts.op, "json")
	return os.WriteFile(recPath, js, 0o644)
}

func (a *app) heal(ctx context.Context, in string, buf *types.PixelBuffer, log zerolog.Logger) (*synthesis.Result, error) {
	mask, err := a.healMask(buf)
	if err != nil {
		return nil, err
	}
	mode := a.enhancer.Performance().Mode()

	job := a.enhancer.StartHealArea(ctx, buf, mask, mode)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-job.Done():
			res, err := job.Wait()
			if err != nil {
				return nil, err
			}
			log.Info().
				Str("status", res.Status.String()).
				Int("patches", res.Patches).
				Float64("confidence", res.Confidence).
				Msg("healed")
			if a.opts.debug {
				a.saveDebug(in, "heal", a.healOverlay(buf, mask, mode))
			}
			return res, nil
		case <-ticker.C:
			done, total := job.Progress()
			log.Debug().Int("done", done).Int("total", total).Msg("healing")
		}
	}
}

func (a *app) healMask(buf *types.PixelBuffer) (*types.Mask, error) {
	switch {
	case a.opts.maskPath != "":
		mask, err := a.processor.LoadMask(a.opts.maskPath, 127)
		if err != nil {
			return nil, fmt.Errorf("failed to load mask: %w", err)
		}
		if mask.Width != buf.Width || mask.Height != buf.Height {
			mask = processing.UpsampleMask(mask, buf.Width, buf.Height)
		}
		return mask, nil
	case a.opts.rect != "":
		r, err := utils.ParseRect(a.opts.rect)
		if err != nil {
			return nil, err
		}
		if !r.In(image.Rect(0, 0, buf.Width, buf.Height)) {
			return nil, fmt.Errorf("%w: rectangle %v outside %dx%d image", types.ErrInvalidInput, r, buf.Width, buf.Height)
		}
		return types.MaskFromRect(buf.Width, buf.Height, r), nil
	default:
		return nil, fmt.Errorf("heal needs -mask or -rect")
	}
}

// sceneOverlay tints skin, sky and foliage and draws the horizon. Masks are
// at analysis resolution and are scaled back up.
func (a *app) sceneOverlay(buf *types.PixelBuffer, an *scene.Analysis) image.Image {
	horizon := -1
	if an.Landscape.HasHorizon && an.Scale > 0 {
		horizon = int(float64(an.Landscape.HorizonY) / an.Scale)
	}
	return a.processor.CreateDebugOverlay(buf, processing.Overlay{
		Masks: []processing.MaskLayer{
			{Mask: fitMask(an.Skin.Mask, buf), Color: color.NRGBA{255, 120, 0, 110}},
			{Mask: fitMask(an.Landscape.SkyMask, buf), Color: color.NRGBA{0, 120, 255, 110}},
			{Mask: fitMask(an.Landscape.FoliageMask, buf), Color: color.NRGBA{0, 200, 60, 110}},
		},
		Horizon: horizon,
	})
}

// healOverlay tints the mask and outlines the ranked source candidates
func (a *app) healOverlay(buf *types.PixelBuffer, mask *types.Mask, mode performance.Mode) image.Image {
	ov := processing.Overlay{
		Masks:   []processing.MaskLayer{{Mask: mask, Color: color.NRGBA{255, 0, 0, 120}}},
		Horizon: -1,
	}
	if cands, err := a.enhancer.FindSources(buf, mask, mode); err == nil {
		for _, c := range cands {
			ov.Boxes = append(ov.Boxes, c.Rect)
		}
	}
	return a.processor.CreateDebugOverlay(buf, ov)
}

// fitMask scales a working-resolution mask to the buffer
func fitMask(m *types.Mask, buf *types.PixelBuffer) *types.Mask {
	if m == nil || (m.Width == buf.Width && m.Height == buf.Height) {
		return m
	}
	return processing.UpsampleMask(m, buf.Width, buf.Height)
}

func (a *app) saveDebug(in, name string, img image.Image) {
	path := utils.GenerateOutputFilename(in, a.cfg.Output.OutputDir, "_debug_"+name, "png")
	if err := a.processor.SaveImage(img, path, "png", 0, false); err != nil {
		a.logger.Warn().Err(err).Str("path", path).Msg("debug overlay save failed")
		return
	}
	a.logger.Info().Str("path", path).Msg("wrote")
}
