package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	sceneenhancer "github.com/menta2k/scene-enhancer"
	"github.com/menta2k/scene-enhancer/pkg/enhance"
	"github.com/menta2k/scene-enhancer/pkg/performance"
	"github.com/menta2k/scene-enhancer/pkg/processing"
)

// Config holds the application configuration
type Config struct {
	Mode      string          `json:"mode"`
	Scene     SceneConfig     `json:"scene"`
	Enhance   EnhanceConfig   `json:"enhance"`
	Landscape LandscapeConfig `json:"landscape"`
	Healing   HealingConfig   `json:"healing"`
	Output    OutputConfig    `json:"output"`
}

// SceneConfig holds configuration for scene classification
type SceneConfig struct {
	PortraitSkin    float64 `json:"portrait_skin"`
	LandscapeNature float64 `json:"landscape_nature"`
	LowLightLuma    float64 `json:"low_light_luma"`
	HighContrastDR  float64 `json:"high_contrast_dr"`
	CacheSize       int     `json:"cache_size"`
	// SkinHueMin and SkinHueMax are degrees; the band wraps through 0 when
	// SkinHueMin > SkinHueMax
	SkinHueMin      float64 `json:"skin_hue_min"`
	SkinHueMax      float64 `json:"skin_hue_max"`
	SkinMinCoverage float64 `json:"skin_min_coverage"`
}

// EnhanceConfig holds configuration for automatic enhancement
type EnhanceConfig struct {
	ExposureDamping   float64 `json:"exposure_damping"`
	ColorDamping      float64 `json:"color_damping"`
	TargetSaturation  float64 `json:"target_saturation"`
	PortraitIntensity float64 `json:"portrait_intensity"`
	MinSmoothingDelta float64 `json:"min_smoothing_delta"`
}

// LandscapeConfig holds the default landscape grade, each value in [-1,1]
type LandscapeConfig struct {
	SkyContrast       float64 `json:"sky_contrast"`
	SkySaturation     float64 `json:"sky_saturation"`
	SkyClarity        float64 `json:"sky_clarity"`
	FoliageSaturation float64 `json:"foliage_saturation"`
}

// HealingConfig holds configuration for source search and synthesis
type HealingConfig struct {
	MinSimilarity float64 `json:"min_similarity"`
	MinScore      float64 `json:"min_score"`
	MaxOffset     float64 `json:"max_offset"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string `json:"default_format"`
	Quality       int    `json:"quality"`
	Lossless      bool   `json:"lossless"`
	OutputDir     string `json:"output_dir"`
	Suffix        string `json:"suffix"`
}

// Default returns a configuration with default values
func Default() *Config {
	opts := sceneenhancer.DefaultOptions()
	return &Config{
		Mode: opts.Mode.String(),
		Scene: SceneConfig{
			PortraitSkin:    opts.Scene.Thresholds.PortraitSkin,
			LandscapeNature: opts.Scene.Thresholds.LandscapeNature,
			LowLightLuma:    opts.Scene.Thresholds.LowLightLuminance,
			HighContrastDR:  opts.Scene.Thresholds.HighContrastRange,
			CacheSize:       opts.CacheSize,
			SkinHueMin:      opts.Scene.Skin.Band.HueMin,
			SkinHueMax:      opts.Scene.Skin.Band.HueMax,
			SkinMinCoverage: opts.Enhance.MinSkinCoverage,
		},
		Enhance: EnhanceConfig{
			ExposureDamping:   opts.Enhance.ExposureDamping,
			ColorDamping:      opts.Enhance.ColorDamping,
			TargetSaturation:  opts.Enhance.TargetSaturation,
			PortraitIntensity: opts.Enhance.DefaultIntensity,
			MinSmoothingDelta: opts.Enhance.MinSmoothingDelta,
		},
		Landscape: LandscapeConfig{
			SkyContrast:       opts.Enhance.DefaultLandscape.SkyContrast,
			SkySaturation:     opts.Enhance.DefaultLandscape.SkySaturation,
			SkyClarity:        opts.Enhance.DefaultLandscape.SkyClarity,
			FoliageSaturation: opts.Enhance.DefaultLandscape.FoliageSaturation,
		},
		Healing: HealingConfig{
			MinSimilarity: opts.Source.MinSimilarity,
			MinScore:      opts.Synthesis.MinScore,
			MaxOffset:     opts.Synthesis.MaxOffset,
		},
		Output: OutputConfig{
			DefaultFormat: "jpg",
			Quality:       90,
			OutputDir:     "./out",
			Suffix:        "_enhanced",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from
// the file keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := performance.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("mode: %w", err)
	}

	for name, v := range map[string]float64{
		"scene.portrait_skin":       c.Scene.PortraitSkin,
		"scene.landscape_nature":    c.Scene.LandscapeNature,
		"scene.high_contrast_dr":    c.Scene.HighContrastDR,
		"scene.skin_min_coverage":   c.Scene.SkinMinCoverage,
		"enhance.exposure_damping":  c.Enhance.ExposureDamping,
		"enhance.color_damping":     c.Enhance.ColorDamping,
		"enhance.target_saturation": c.Enhance.TargetSaturation,
		"healing.min_similarity":    c.Healing.MinSimilarity,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}

	if c.Scene.LowLightLuma < 0 || c.Scene.LowLightLuma > 255 {
		return fmt.Errorf("scene.low_light_luma must be between 0 and 255")
	}

	for name, v := range map[string]float64{"scene.skin_hue_min": c.Scene.SkinHueMin, "scene.skin_hue_max": c.Scene.SkinHueMax} {
		if v < 0 || v >= 360 {
			return fmt.Errorf("%s must be in [0,360)", name)
		}
	}

	if c.Scene.CacheSize < 0 {
		return fmt.Errorf("scene.cache_size cannot be negative")
	}

	if c.Enhance.PortraitIntensity < 0 || c.Enhance.PortraitIntensity > 100 {
		return fmt.Errorf("enhance.portrait_intensity must be between 0 and 100")
	}

	if c.Enhance.MinSmoothingDelta < 0 {
		return fmt.Errorf("enhance.min_smoothing_delta cannot be negative")
	}

	if err := c.LandscapeParams().Validate(); err != nil {
		return fmt.Errorf("landscape: %w", err)
	}

	if c.Healing.MinScore < -1 || c.Healing.MinScore > 1 {
		return fmt.Errorf("healing.min_score must be between -1 and 1")
	}

	if c.Healing.MaxOffset < 0 {
		return fmt.Errorf("healing.max_offset cannot be negative")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if !processing.IsFormatSupported(c.Output.DefaultFormat) {
		return fmt.Errorf("output.default_format %q is not supported", c.Output.DefaultFormat)
	}

	return nil
}

// LandscapeParams returns the configured default landscape grade
func (c *Config) LandscapeParams() enhance.LandscapeParams {
	return enhance.LandscapeParams{
		SkyContrast:       c.Landscape.SkyContrast,
		SkySaturation:     c.Landscape.SkySaturation,
		SkyClarity:        c.Landscape.SkyClarity,
		FoliageSaturation: c.Landscape.FoliageSaturation,
	}
}

// Options maps the configuration onto enhancer options
func (c *Config) Options(logger zerolog.Logger) (sceneenhancer.Options, error) {
	if err := c.Validate(); err != nil {
		return sceneenhancer.Options{}, err
	}
	mode, _ := performance.ParseMode(c.Mode)

	opts := sceneenhancer.DefaultOptions()
	opts.Mode = mode
	opts.CacheSize = c.Scene.CacheSize
	opts.Logger = logger

	opts.Scene.Thresholds.PortraitSkin = c.Scene.PortraitSkin
	opts.Scene.Thresholds.LandscapeNature = c.Scene.LandscapeNature
	opts.Scene.Thresholds.LowLightLuminance = c.Scene.LowLightLuma
	opts.Scene.Thresholds.HighContrastRange = c.Scene.HighContrastDR
	opts.Scene.Skin.Band.HueMin = c.Scene.SkinHueMin
	opts.Scene.Skin.Band.HueMax = c.Scene.SkinHueMax

	opts.Enhance.Skin = opts.Scene.Skin
	opts.Enhance.MinSkinCoverage = c.Scene.SkinMinCoverage
	opts.Enhance.ExposureDamping = c.Enhance.ExposureDamping
	opts.Enhance.ColorDamping = c.Enhance.ColorDamping
	opts.Enhance.TargetSaturation = c.Enhance.TargetSaturation
	opts.Enhance.DefaultIntensity = c.Enhance.PortraitIntensity
	opts.Enhance.MinSmoothingDelta = c.Enhance.MinSmoothingDelta
	opts.Enhance.DefaultLandscape = c.LandscapeParams()

	opts.Source.MinSimilarity = c.Healing.MinSimilarity
	opts.Synthesis.MinScore = c.Healing.MinScore
	opts.Synthesis.MaxOffset = c.Healing.MaxOffset
	return opts, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "scene-enhancer", "config.json")
}
