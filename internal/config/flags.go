package config

import "flag"

var (
	flagConfig   = flag.String("config", "", "Path to config file")
	flagDebug    = flag.Bool("debug", false, "Enable debug logging")
	flagManifest = flag.String("manifest", "", "Path to actor manifest")
	flagWatch    = flag.Bool("watch", false, "Reload clips when their files change")
	flagWorkers  = flag.Int("workers", 0, "Clip loader workers")
	flagSpeed    = flag.Float64("speed", 0, "Actor playback speed")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the arguments left after flag parsing.
func Args() []string {
	return flag.Args()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagManifest != "" {
		cfg.Assets.Manifest = *flagManifest
	}
	if *flagWatch {
		cfg.Assets.Watch = true
	}
	if *flagWorkers > 0 {
		cfg.Assets.LoadWorkers = *flagWorkers
	}
	if *flagSpeed > 0 {
		cfg.Animation.ActorPlaybackSpeed = float32(*flagSpeed)
	}
}
