// Package config handles animation tool configuration loading and management.
package config

// Config holds all settings.
type Config struct {
	Animation AnimationConfig `yaml:"animation"`
	Assets    AssetsConfig    `yaml:"assets"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AnimationConfig holds playback and transition settings.
type AnimationConfig struct {
	BlendRate           float32 `yaml:"blend_rate"`            // Blend progress per second
	EndSpeed            float32 `yaml:"end_speed"`             // Rewind speed multiplier while ending
	EndReverseThreshold float32 `yaml:"end_reverse_threshold"` // Clip fraction below which ending rewinds
	ForceReverseEnd     bool    `yaml:"force_reverse_end"`     // Always rewind when ending
	ActorPlaybackSpeed  float32 `yaml:"actor_playback_speed"`
	MaxWeights          int     `yaml:"max_weights"` // Influences per vertex
	TickRate            int     `yaml:"tick_rate"`   // Simulation ticks per second
}

// AssetsConfig holds clip locations and loading settings.
type AssetsConfig struct {
	ClipDirs    []string `yaml:"clip_dirs"` // Searched last to first
	Manifest    string   `yaml:"manifest"`
	LoadWorkers int      `yaml:"load_workers"`
	Watch       bool     `yaml:"watch"` // Reload clips when their files change
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Animation: AnimationConfig{
			BlendRate:           0.4,
			EndSpeed:            2.0,
			EndReverseThreshold: 0.36,
			ForceReverseEnd:     true,
			ActorPlaybackSpeed:  1.0,
			MaxWeights:          4,
			TickRate:            60,
		},
		Assets: AssetsConfig{
			ClipDirs:    []string{"."},
			Manifest:    "actors.yaml",
			LoadWorkers: 4,
			Watch:       false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
