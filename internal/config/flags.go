package config

import "flag"

var (
	flagConfig      = flag.String("config", "", "Path to config file")
	flagDebug       = flag.Bool("debug", false, "Enable debug logging")
	flagWorkers     = flag.Int("workers", 0, "Number of concurrent bake workers")
	flagCompression = flag.String("compression", "", "Payload compression: none, lz4 or zlib")
	flagNoProgress  = flag.Bool("no-progress", false, "Disable the progress bar")
	flagLogFile     = flag.String("log-file", "", "Write logs to this file as well")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag arguments left after ParseFlags.
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
	if *flagWorkers > 0 {
		cfg.Bake.Workers = *flagWorkers
	}
	if *flagCompression != "" {
		cfg.Bake.Compression = *flagCompression
	}
	if *flagNoProgress {
		cfg.Bake.Progress = false
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
}
