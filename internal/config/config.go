// Package config handles demterrain configuration loading and management.
package config

import "time"

// Config holds all settings.
type Config struct {
	Terrain  TerrainConfig  `yaml:"terrain"`
	Provider ProviderConfig `yaml:"provider"`
	Output   OutputConfig   `yaml:"output"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TerrainConfig holds mesh and heightmap generation parameters.
type TerrainConfig struct {
	MaxVerticesPerPiece int  `yaml:"max_vertices_per_piece"`
	HeightmapResolution int  `yaml:"heightmap_resolution"`
	Workers             int  `yaml:"workers"` // 0 = GOMAXPROCS
	FillNoData          bool `yaml:"fill_no_data"`
}

// ProviderConfig holds elevation data provider settings.
type ProviderConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	RangeMeters float64       `yaml:"range_meters"`
}

// OutputConfig holds export settings.
type OutputConfig struct {
	Dir             string `yaml:"dir"`
	MeshFormat      string `yaml:"mesh_format"`
	HeightmapFormat string `yaml:"heightmap_format"`
}

// ServerConfig holds streaming server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Terrain: TerrainConfig{
			MaxVerticesPerPiece: 65535,
			HeightmapResolution: 4097,
			Workers:             0,
			FillNoData:          true,
		},
		Provider: ProviderConfig{
			BaseURL:     "https://portal.opentopography.org/API/globaldem",
			Model:       "SRTMGL3",
			Timeout:     30 * time.Second,
			RangeMeters: 2000,
		},
		Output: OutputConfig{
			Dir:             "out",
			MeshFormat:      "obj",
			HeightmapFormat: "tiff",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
