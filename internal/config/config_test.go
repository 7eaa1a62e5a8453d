package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/menta2k/scene-enhancer/pkg/performance"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.Mode = "advanced"
	cfg.Enhance.PortraitIntensity = 35

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Mode != "advanced" || loaded.Enhance.PortraitIntensity != 35 {
		t.Errorf("Loaded config differs: %+v", loaded)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"healing": {"min_score": 0.7}}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Healing.MinScore != 0.7 {
		t.Errorf("Expected min score 0.7, got %f", cfg.Healing.MinScore)
	}
	if cfg.Output.Quality != 90 || cfg.Mode != "medium" {
		t.Errorf("Missing fields should keep defaults, got quality %d mode %q", cfg.Output.Quality, cfg.Mode)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"mode":      func(c *Config) { c.Mode = "turbo" },
		"intensity": func(c *Config) { c.Enhance.PortraitIntensity = 150 },
		"landscape": func(c *Config) { c.Landscape.SkyClarity = 2 },
		"hue":       func(c *Config) { c.Scene.SkinHueMax = 400 },
		"format":    func(c *Config) { c.Output.DefaultFormat = "gif" },
		"quality":   func(c *Config) { c.Output.Quality = 0 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", name)
		}
	}
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.Mode = "lite"
	cfg.Scene.SkinHueMin = 350
	cfg.Healing.MinSimilarity = 0.6

	opts, err := cfg.Options(zerolog.Nop())
	if err != nil {
		t.Fatalf("Options failed: %v", err)
	}
	if opts.Mode != performance.Lite {
		t.Errorf("Expected lite mode, got %s", opts.Mode)
	}
	if opts.Scene.Skin.Band.HueMin != 350 || opts.Enhance.Skin.Band.HueMin != 350 {
		t.Error("Skin band should reach both the scene analyzer and the engine")
	}
	if opts.Source.MinSimilarity != 0.6 {
		t.Errorf("Expected min similarity 0.6, got %f", opts.Source.MinSimilarity)
	}

	cfg.Mode = "turbo"
	if _, err := cfg.Options(zerolog.Nop()); err == nil {
		t.Error("Expected an error for an invalid config")
	}
}
