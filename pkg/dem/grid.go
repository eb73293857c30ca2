// Package dem holds the elevation grid model shared by the mesh and heightmap
// builders, plus readers for the grid formats elevation providers return.
package dem

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// ErrInvalidGrid is returned when grid dimensions, samples or cell size
// are out of range.
var ErrInvalidGrid = errors.New("invalid elevation grid")

// MinDimension is the smallest number of samples per axis that can form geometry.
const MinDimension = 2

// Grid is an immutable row-major elevation grid with uniform cell spacing.
// Row 0 is the northern edge, column 0 the western edge.
type Grid struct {
	rows     int
	cols     int
	cellSize float64
	heights  []float32

	noData    float32
	hasNoData bool
}

// GridOption configures optional grid metadata.
type GridOption func(*Grid)

// WithNoData marks v as the "no data" sentinel of the grid.
func WithNoData(v float32) GridOption {
	return func(g *Grid) {
		g.noData = v
		g.hasNoData = true
	}
}

// NewGrid validates and builds a grid. The heights slice is copied.
func NewGrid(rows, cols int, cellSize float64, heights []float32, opts ...GridOption) (*Grid, error) {
	var err error
	if rows < MinDimension {
		err = multierr.Append(err, fmt.Errorf("%w: rows %d < %d", ErrInvalidGrid, rows, MinDimension))
	}
	if cols < MinDimension {
		err = multierr.Append(err, fmt.Errorf("%w: cols %d < %d", ErrInvalidGrid, cols, MinDimension))
	}
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		err = multierr.Append(err, fmt.Errorf("%w: cell size %v", ErrInvalidGrid, cellSize))
	}
	if rows > 0 && cols > 0 && len(heights) != rows*cols {
		err = multierr.Append(err, fmt.Errorf("%w: %d samples for %dx%d grid", ErrInvalidGrid, len(heights), rows, cols))
	}
	if err != nil {
		return nil, err
	}

	g := &Grid{
		rows:     rows,
		cols:     cols,
		cellSize: cellSize,
		heights:  make([]float32, len(heights)),
	}
	copy(g.heights, heights)
	for _, opt := range opts {
		opt(g)
	}

	// Non-finite samples are only allowed as the "no data" sentinel.
	for i, h := range g.heights {
		if isFinite(h) || g.isNoData(h) {
			continue
		}
		return nil, fmt.Errorf("%w: non-finite sample %v at (%d, %d)", ErrInvalidGrid, h, i/cols, i%cols)
	}
	return g, nil
}

func isFinite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Rows returns the number of sample rows.
func (g *Grid) Rows() int { return g.rows }

// Cols returns the number of sample columns.
func (g *Grid) Cols() int { return g.cols }

// CellSize returns the spacing between adjacent samples in meters.
func (g *Grid) CellSize() float64 { return g.cellSize }

// NoData returns the "no data" sentinel, if the grid has one.
func (g *Grid) NoData() (float32, bool) { return g.noData, g.hasNoData }

// At returns the elevation at (row, col). It panics on out-of-range indices.
func (g *Grid) At(row, col int) float32 {
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		panic(fmt.Sprintf("dem: sample (%d, %d) outside %dx%d grid", row, col, g.rows, g.cols))
	}
	return g.heights[row*g.cols+col]
}

// Heights returns a copy of the row-major sample buffer.
func (g *Grid) Heights() []float32 {
	out := make([]float32, len(g.heights))
	copy(out, g.heights)
	return out
}

// Len returns the total number of samples.
func (g *Grid) Len() int { return len(g.heights) }

func (g *Grid) isNoData(v float32) bool {
	if !g.hasNoData {
		return false
	}
	if math.IsNaN(float64(g.noData)) {
		return math.IsNaN(float64(v))
	}
	return v == g.noData
}

// MinMax returns the lowest and highest valid elevation.
// ok is false when every sample is "no data".
func (g *Grid) MinMax() (lo, hi float32, ok bool) {
	for _, h := range g.heights {
		if g.isNoData(h) {
			continue
		}
		if !ok {
			lo, hi, ok = h, h, true
			continue
		}
		lo = min(lo, h)
		hi = max(hi, h)
	}
	return lo, hi, ok
}

// FillNoData returns a grid whose "no data" samples are replaced by the
// lowest valid elevation (0 when nothing is valid). Grids without a sentinel
// are returned unchanged.
func (g *Grid) FillNoData() *Grid {
	if !g.hasNoData {
		return g
	}
	fill, _, _ := g.MinMax()

	out := &Grid{
		rows:     g.rows,
		cols:     g.cols,
		cellSize: g.cellSize,
		heights:  make([]float32, len(g.heights)),
	}
	for i, h := range g.heights {
		if g.isNoData(h) {
			h = fill
		}
		out.heights[i] = h
	}
	return out
}

// CountNoData returns the number of "no data" samples.
func (g *Grid) CountNoData() int {
	if !g.hasNoData {
		return 0
	}
	n := 0
	for _, h := range g.heights {
		if g.isNoData(h) {
			n++
		}
	}
	return n
}
