// Package pipeline runs the mesh and heightmap builders for one grid,
// building mesh pieces on a worker pool while the heightmap is computed
// alongside.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/demterrain/internal/logger"
	"github.com/Faultbox/demterrain/pkg/dem"
	"github.com/Faultbox/demterrain/pkg/terrain"
)

// Options controls a pipeline run.
type Options struct {
	MaxVertices int  // Per-piece vertex budget
	Resolution  int  // Heightmap resolution; 0 skips the heightmap
	Workers     int  // Mesh workers; 0 = GOMAXPROCS
	FillNoData  bool // Replace "no data" samples before building
}

// DefaultOptions returns the renderer defaults.
func DefaultOptions() Options {
	return Options{
		MaxVertices: terrain.DefaultMaxVertices,
		Resolution:  terrain.DefaultHeightmapResolution,
		FillNoData:  true,
	}
}

// Sink receives mesh pieces in row-major order. Returning an error stops the run.
type Sink func(*terrain.MeshPiece) error

// Stats summarizes a run.
type Stats struct {
	Pieces        int           `json:"pieces"`
	Vertices      int           `json:"vertices"`
	Triangles     int           `json:"triangles"`
	MeshTime      time.Duration `json:"mesh_time"`
	HeightmapTime time.Duration `json:"heightmap_time"`
}

// Result holds the outputs of a run. Pieces is only filled when no sink is given.
type Result struct {
	Pieces    []*terrain.MeshPiece
	Heightmap *terrain.Heightmap
	Stats     Stats
}

type built struct {
	mesh *terrain.MeshPiece
	err  error
}

// Run builds every mesh piece and the heightmap of g. Canceling ctx stops
// dispatching new pieces; pieces already handed to the sink stay valid.
func Run(ctx context.Context, g *dem.Grid, opts Options, sink Sink) (*Result, error) {
	log := logger.Named("pipeline")

	if opts.FillNoData {
		if n := g.CountNoData(); n > 0 {
			log.Warn("filling no-data samples", zap.Int("count", n))
			g = g.FillNoData()
		}
	}

	pieces, err := terrain.Partition(g.Rows(), g.Cols(), opts.MaxVertices)
	if err != nil {
		return nil, err
	}
	layout := terrain.NewLayout(g)

	log.Info("partitioned grid",
		zap.Int("rows", g.Rows()),
		zap.Int("cols", g.Cols()),
		zap.Float64("cell_size", g.CellSize()),
		zap.Int("pieces", len(pieces)),
		zap.Int("max_vertices", opts.MaxVertices))

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	res := &Result{}

	// Heightmap path
	var hmErr error
	if opts.Resolution > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			res.Heightmap, hmErr = terrain.BuildHeightmap(g, opts.Resolution)
			res.Stats.HeightmapTime = time.Since(start)
		}()
	}

	// Mesh path
	meshStart := time.Now()
	slots := make([]chan built, len(pieces))
	for i := range slots {
		slots[i] = make(chan built, 1)
	}
	jobs := make(chan terrain.Piece)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, len(pieces))

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				m, err := terrain.BuildPiece(g, layout, p, opts.MaxVertices)
				slots[p.Index] <- built{mesh: m, err: err}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobs)
		for _, p := range pieces {
			select {
			case jobs <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	for i := range pieces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var b built
		select {
		case b = <-slots[i]:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if b.err != nil {
			log.Error("building mesh piece failed", zap.Int("piece", i), zap.Error(b.err))
			return nil, b.err
		}

		res.Stats.Pieces++
		res.Stats.Vertices += len(b.mesh.Vertices)
		res.Stats.Triangles += b.mesh.TriangleCount()
		log.Debug("built mesh piece",
			zap.Int("piece", i),
			zap.Int("vertices", len(b.mesh.Vertices)),
			zap.Int("triangles", b.mesh.TriangleCount()))

		if sink == nil {
			res.Pieces = append(res.Pieces, b.mesh)
			continue
		}
		if err := sink(b.mesh); err != nil {
			return nil, fmt.Errorf("delivering piece %d: %w", i, err)
		}
	}
	res.Stats.MeshTime = time.Since(meshStart)

	// Wait for the heightmap before reading its result.
	cancel()
	wg.Wait()
	if hmErr != nil {
		return nil, hmErr
	}

	fields := []zap.Field{
		zap.Int("pieces", res.Stats.Pieces),
		zap.Int("vertices", res.Stats.Vertices),
		zap.Int("triangles", res.Stats.Triangles),
		zap.Duration("mesh_time", res.Stats.MeshTime),
	}
	if res.Heightmap != nil {
		fields = append(fields,
			zap.Int("resolution", res.Heightmap.Resolution),
			zap.Float64("vertical_range", res.Heightmap.VerticalRange),
			zap.Duration("heightmap_time", res.Stats.HeightmapTime))
	}
	log.Info("terrain built", fields...)

	return res, nil
}
