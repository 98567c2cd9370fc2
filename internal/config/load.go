package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Try to load from file (explicit path takes priority)
	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	// Apply CLI flags (highest priority)
	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrInvalidConfig is returned for settings the animation core cannot use.
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks value ranges.
func (c *Config) Validate() error {
	a := c.Animation
	switch {
	case a.BlendRate <= 0:
		return fmt.Errorf("%w: blend_rate must be positive, got %v", ErrInvalidConfig, a.BlendRate)
	case a.EndSpeed <= 0:
		return fmt.Errorf("%w: end_speed must be positive, got %v", ErrInvalidConfig, a.EndSpeed)
	case a.EndReverseThreshold < 0 || a.EndReverseThreshold > 1:
		return fmt.Errorf("%w: end_reverse_threshold must be in [0, 1], got %v", ErrInvalidConfig, a.EndReverseThreshold)
	case a.ActorPlaybackSpeed <= 0:
		return fmt.Errorf("%w: actor_playback_speed must be positive, got %v", ErrInvalidConfig, a.ActorPlaybackSpeed)
	case a.MaxWeights <= 0:
		return fmt.Errorf("%w: max_weights must be positive, got %d", ErrInvalidConfig, a.MaxWeights)
	case a.TickRate <= 0:
		return fmt.Errorf("%w: tick_rate must be positive, got %d", ErrInvalidConfig, a.TickRate)
	case c.Assets.LoadWorkers <= 0:
		return fmt.Errorf("%w: load_workers must be positive, got %d", ErrInvalidConfig, c.Assets.LoadWorkers)
	}
	return nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "MidgardAnim")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "MidgardAnim")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "midgard-anim")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "midgard-anim")
	}
}

// loadFromFile loads config from a YAML file, merging with existing values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
