// demterrain converts elevation grids into mesh pieces and heightmaps.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Faultbox/demterrain/internal/config"
	"github.com/Faultbox/demterrain/internal/export"
	"github.com/Faultbox/demterrain/internal/logger"
	"github.com/Faultbox/demterrain/internal/pipeline"
	"github.com/Faultbox/demterrain/internal/provider"
	"github.com/Faultbox/demterrain/internal/server"
	"github.com/Faultbox/demterrain/pkg/dem"
	"github.com/Faultbox/demterrain/pkg/geo"
	"github.com/Faultbox/demterrain/pkg/terrain"
)

func main() {
	config.ParseFlags()
	args := config.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	args = args[1:]
	if command == "help" || command == "-h" || command == "--help" {
		printUsage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "info":
		err = cmdInfo(cfg, args)
	case "build":
		err = cmdBuild(ctx, cfg, args, true, true)
	case "mesh":
		err = cmdBuild(ctx, cfg, args, true, false)
	case "heightmap":
		err = cmdBuild(ctx, cfg, args, false, true)
	case "fetch":
		err = cmdFetch(ctx, cfg, args)
	case "serve":
		err = cmdServe(ctx, cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`demterrain - elevation grid to mesh and heightmap converter

Usage:
  demterrain [flags] <command> [options]

Commands:
  info <file.asc>                  Show grid information and partition plan
  build <file.asc>                 Write mesh pieces and the heightmap
  mesh <file.asc>                  Write mesh pieces only
  heightmap <file.asc>             Write the heightmap only
  fetch -lat <deg> -lon <deg>      Download a grid around a point and build it
        [-range m] [-format asc|gtiff] [-no-build]
  serve <file.asc>                 Stream pieces to websocket clients

Flags:
  -config <path>       Config file (default ./demterrain.yaml)
  -out <dir>           Output directory
  -max-vertices <n>    Vertex budget per mesh piece
  -resolution <n>      Heightmap resolution
  -model <name>        Height model (SRTMGL3, SRTMGL1, COP30, ...)
  -workers <n>         Mesh workers (0 = all CPUs)
  -api-key <key>       OpenTopography API key
  -debug               Enable debug logging

Grid files may be gzip-compressed (.asc.gz).

Examples:
  demterrain info dem.asc
  demterrain -out terrain -max-vertices 16641 build dem.asc
  demterrain -model COP30 -api-key KEY fetch -lat 45.83 -lon 6.86
  demterrain -api-key KEY fetch -lat 45.83 -lon 6.86 -format gtiff
  demterrain serve dem.asc`)
}

func loadGrid(cfg *config.Config, args []string, usage string) (*dem.Grid, *dem.ASCIIHeader, error) {
	if len(args) < 1 {
		return nil, nil, fmt.Errorf("usage: demterrain %s", usage)
	}
	model, err := cfg.HeightModel()
	if err != nil {
		return nil, nil, err
	}
	return dem.ParseASCIIGridFile(args[0], model)
}

func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		MaxVertices: cfg.Terrain.MaxVerticesPerPiece,
		Resolution:  cfg.Terrain.HeightmapResolution,
		Workers:     cfg.Terrain.Workers,
		FillNoData:  cfg.Terrain.FillNoData,
	}
}

func cmdInfo(cfg *config.Config, args []string) error {
	g, hdr, err := loadGrid(cfg, args, "info <file.asc>")
	if err != nil {
		return err
	}

	p := message.NewPrinter(language.English)

	p.Printf("Grid:       %s\n", args[0])
	p.Printf("Samples:    %d x %d (%d)\n", g.Rows(), g.Cols(), g.Len())
	p.Printf("Cell size:  %v m (%s)\n", g.CellSize(), cfg.Provider.Model)

	west, south, east, north := hdr.Extent()
	p.Printf("Extent:     %.6f,%.6f to %.6f,%.6f\n", south, west, north, east)
	span := geo.ToLocal(geo.Coord{Lat: south, Lon: west}, geo.Coord{Lat: north, Lon: east})
	p.Printf("Footprint:  %.0f x %.0f m\n", span.X, span.Z)

	if lo, hi, ok := g.MinMax(); ok {
		p.Printf("Elevation:  %.1f to %.1f m (range %.1f m)\n", lo, hi, hi-lo)
	}
	if n := g.CountNoData(); n > 0 {
		p.Printf("No data:    %d samples\n", n)
	}

	pieces, err := terrain.Partition(g.Rows(), g.Cols(), cfg.Terrain.MaxVerticesPerPiece)
	if err != nil {
		return err
	}
	var vertices, triangles int
	for _, pc := range pieces {
		vertices += pc.VertexCount()
		triangles += pc.TriangleCount()
	}
	fmt.Println()
	p.Printf("Pieces:     %d (budget %d vertices)\n", len(pieces), cfg.Terrain.MaxVerticesPerPiece)
	p.Printf("Vertices:   %d\n", vertices)
	p.Printf("Triangles:  %d\n", triangles)
	p.Printf("Heightmap:  %d x %d covering %.0f m\n",
		cfg.Terrain.HeightmapResolution, cfg.Terrain.HeightmapResolution, float64(g.Rows())*g.CellSize())
	return nil
}

func cmdBuild(ctx context.Context, cfg *config.Config, args []string, meshes, heightmap bool) error {
	g, _, err := loadGrid(cfg, args, "build <file.asc>")
	if err != nil {
		return err
	}
	return build(ctx, cfg, g, meshes, heightmap)
}

func build(ctx context.Context, cfg *config.Config, g *dem.Grid, meshes, heightmap bool) error {
	dir := cfg.Output.Dir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	opts := pipelineOptions(cfg)
	if !heightmap {
		opts.Resolution = 0
	}

	var res *pipeline.Result
	var err error
	if meshes {
		res, err = pipeline.Run(ctx, g, opts, func(m *terrain.MeshPiece) error {
			_, err := export.WritePiece(dir, m)
			return err
		})
	} else {
		res, err = buildHeightmapOnly(g, opts)
	}
	if err != nil {
		return err
	}

	p := message.NewPrinter(language.English)
	if meshes {
		p.Printf("Wrote %d pieces (%d vertices, %d triangles) to %s\n",
			res.Stats.Pieces, res.Stats.Vertices, res.Stats.Triangles, dir)
	}
	if res.Heightmap != nil {
		path, err := export.WriteHeightmap(dir, cfg.Output.HeightmapFormat, res.Heightmap)
		if err != nil {
			return err
		}
		if _, err := export.WriteHeightmapMeta(path, res.Heightmap); err != nil {
			return err
		}
		p.Printf("Wrote %dx%d heightmap to %s (vertical range %.1f m, extent %.0f m)\n",
			res.Heightmap.Resolution, res.Heightmap.Resolution, path,
			res.Heightmap.VerticalRange, res.Heightmap.HorizontalExtent)
	}
	return nil
}

func buildHeightmapOnly(g *dem.Grid, opts pipeline.Options) (*pipeline.Result, error) {
	if opts.FillNoData {
		g = g.FillNoData()
	}
	hm, err := terrain.BuildHeightmap(g, opts.Resolution)
	if err != nil {
		return nil, err
	}
	return &pipeline.Result{Heightmap: hm}, nil
}

func cmdFetch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude of the center in degrees")
	lon := fs.Float64("lon", 0, "Longitude of the center in degrees")
	rangeMeters := fs.Float64("range", cfg.Provider.RangeMeters, "Side of the square area in meters")
	format := fs.String("format", "asc", "Download format: asc or gtiff")
	noBuild := fs.Bool("no-build", false, "Only download the grid")
	fs.Parse(args)

	center := geo.Coord{Lat: *lat, Lon: *lon}
	if err := center.Validate(); err != nil {
		return err
	}
	model, err := cfg.HeightModel()
	if err != nil {
		return err
	}

	var (
		fetch func(context.Context, geo.Bounds, dem.HeightModel) ([]byte, error)
		ext   string
	)
	ot := provider.NewOpenTopography(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.Timeout)
	switch *format {
	case "asc":
		fetch, ext = ot.FetchASCIIGrid, "asc"
	case "gtiff":
		fetch, ext = ot.FetchGeoTIFF, "tif"
	default:
		return fmt.Errorf("unknown fetch format %q (want asc or gtiff)", *format)
	}

	data, err := fetch(ctx, geo.BoundsAround(center, *rangeMeters), model)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return err
	}
	name := fmt.Sprintf("dem_%s_%s_%s.%s",
		strconv.FormatFloat(*lat, 'f', 5, 64), strconv.FormatFloat(*lon, 'f', 5, 64), model, ext)
	path := filepath.Join(cfg.Output.Dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)

	// GeoTIFF downloads are kept as files for external tools.
	if *noBuild || ext == "tif" {
		return nil
	}
	g, _, err := dem.ParseASCIIGridFile(path, model)
	if err != nil {
		return err
	}
	return build(ctx, cfg, g, true, true)
}

func cmdServe(ctx context.Context, cfg *config.Config, args []string) error {
	g, _, err := loadGrid(cfg, args, "serve <file.asc>")
	if err != nil {
		return err
	}

	fmt.Printf("Serving %s on ws://%s/ws\n", args[0], cfg.Server.Addr)
	err = server.New(g, pipelineOptions(cfg)).ListenAndServe(ctx, cfg.Server.Addr)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
