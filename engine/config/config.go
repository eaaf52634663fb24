package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/glaciergfx/glacier/engine/core"
)

// Config is the engine configuration, loaded from a TOML file at startup.
type Config struct {
	AppName         string `toml:"app_name"`
	Width           uint32 `toml:"width"`
	Height          uint32 `toml:"height"`
	FramesInFlight  int    `toml:"frames_in_flight"`
	ValidationLayer bool   `toml:"validation_layer"`
	Verbose         bool   `toml:"verbose"`
	AssetsDir       string `toml:"assets_dir"`

	// Size of the global bindless descriptor arrays. Zero selects the
	// renderer default.
	BindlessCapacity uint32 `toml:"bindless_capacity"`
}

func Default() Config {
	return Config{
		AppName:        "Glacier",
		Width:          1280,
		Height:         720,
		FramesInFlight: 2,
		AssetsDir:      "assets",
	}
}

// Load reads the configuration file, falling back to defaults when the
// file does not exist.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			core.LogWarn("config file %s not found, using defaults", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if cfg.FramesInFlight < 1 {
		return cfg, fmt.Errorf("frames_in_flight must be at least 1, got %d", cfg.FramesInFlight)
	}
	return cfg, nil
}
