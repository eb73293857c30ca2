package config

import "flag"

var (
	flagConfig      = flag.String("config", "", "Path to config file")
	flagDebug       = flag.Bool("debug", false, "Enable debug logging")
	flagMaxVertices = flag.Int("max-vertices", 0, "Maximum vertices per mesh piece")
	flagResolution  = flag.Int("resolution", 0, "Heightmap resolution")
	flagWorkers     = flag.Int("workers", -1, "Mesh worker count (0 = all CPUs)")
	flagModel       = flag.String("model", "", "Height model (e.g. SRTMGL1)")
	flagAPIKey      = flag.String("api-key", "", "Elevation provider API key")
	flagOut         = flag.String("out", "", "Output directory")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// Args returns the non-flag arguments.
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
	if *flagMaxVertices > 0 {
		cfg.Terrain.MaxVerticesPerPiece = *flagMaxVertices
	}
	if *flagResolution > 0 {
		cfg.Terrain.HeightmapResolution = *flagResolution
	}
	if *flagWorkers >= 0 {
		cfg.Terrain.Workers = *flagWorkers
	}
	if *flagModel != "" {
		cfg.Provider.Model = *flagModel
	}
	if *flagAPIKey != "" {
		cfg.Provider.APIKey = *flagAPIKey
	}
	if *flagOut != "" {
		cfg.Output.Dir = *flagOut
	}
}
