package config

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/Faultbox/demterrain/pkg/dem"
	"github.com/Faultbox/demterrain/pkg/terrain"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	fail := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Terrain.MaxVerticesPerPiece < 4 {
		fail("terrain.max_vertices_per_piece %d < 4", c.Terrain.MaxVerticesPerPiece)
	}
	if r := c.Terrain.HeightmapResolution; r < 2 || r > terrain.MaxHeightmapResolution {
		fail("terrain.heightmap_resolution %d outside 2..%d", r, terrain.MaxHeightmapResolution)
	}
	if c.Terrain.Workers < 0 {
		fail("terrain.workers %d < 0", c.Terrain.Workers)
	}
	if _, perr := dem.ParseHeightModel(c.Provider.Model); perr != nil {
		fail("provider.model: %v", perr)
	}
	if c.Provider.Timeout <= 0 {
		fail("provider.timeout %v <= 0", c.Provider.Timeout)
	}
	if c.Provider.RangeMeters <= 0 {
		fail("provider.range_meters %v <= 0", c.Provider.RangeMeters)
	}
	switch c.Output.MeshFormat {
	case "obj":
	default:
		fail("output.mesh_format %q (want obj)", c.Output.MeshFormat)
	}
	switch c.Output.HeightmapFormat {
	case "tiff", "r16":
	default:
		fail("output.heightmap_format %q (want tiff or r16)", c.Output.HeightmapFormat)
	}
	return err
}

// HeightModel returns the configured height model.
func (c *Config) HeightModel() (dem.HeightModel, error) {
	return dem.ParseHeightModel(c.Provider.Model)
}
