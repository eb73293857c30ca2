// Package terrain turns elevation grids into seam-free mesh pieces and
// normalized heightmaps.
package terrain

import (
	"errors"

	"github.com/Faultbox/demterrain/pkg/math"
)

// DefaultMaxVertices is the per-mesh vertex limit of 16-bit index buffers.
const DefaultMaxVertices = 65535

// DefaultHeightmapResolution is the largest heightmap terrain renderers accept.
const DefaultHeightmapResolution = 4097

// MaxHeightmapResolution bounds the resampled matrix at 1 GiB of samples.
const MaxHeightmapResolution = 16385

// Terrain errors.
var (
	ErrInvalidVertexBudget  = errors.New("vertex budget too small for a quad")
	ErrVertexBudgetExceeded = errors.New("mesh piece exceeds vertex budget")
	ErrInvalidResolution    = errors.New("invalid heightmap resolution")
)

// Piece describes one rectangular block of grid samples. Pieces after the
// first in each axis start on the last sample of their neighbor.
type Piece struct {
	Index    int // Row-major position in the partition
	BandRow  int // Row band index
	BandCol  int // Column band index
	RowStart int
	RowCount int
	ColStart int
	ColCount int
}

// VertexCount returns the number of samples (and vertices) in the piece.
func (p Piece) VertexCount() int {
	return p.RowCount * p.ColCount
}

// TriangleCount returns the number of triangles the piece owns.
func (p Piece) TriangleCount() int {
	return 2 * (p.RowCount - 1) * (p.ColCount - 1)
}

// MeshPiece holds one independently renderable fragment ready for upload.
type MeshPiece struct {
	Piece    Piece
	Vertices []math.Vec3 // X = east-west, Y = elevation, Z = north-south
	UVs      []math.Vec2 // Normalized against the full grid
	Normals  []math.Vec3
	Indices  []uint32
	Bounds   Bounds
}

// TriangleCount returns the number of triangles in the piece.
func (m *MeshPiece) TriangleCount() int {
	return len(m.Indices) / 3
}

// Bounds holds an axis-aligned bounding box.
type Bounds struct {
	Min math.Vec3
	Max math.Vec3
}

// Layout holds the grid-wide constants every piece is built with, so that
// shared seam samples produce identical vertices in both pieces.
type Layout struct {
	Rows          int
	Cols          int
	CellSize      float64
	ScalingFactor float64 // Column axis scale giving a square footprint
	RowOffset     float64
	ColOffset     float64
}

// Matrix is a square row-major matrix of elevations.
type Matrix struct {
	Size int
	Data []float32
}

// NewMatrix allocates a size x size matrix.
func NewMatrix(size int) *Matrix {
	return &Matrix{Size: size, Data: make([]float32, size*size)}
}

// At returns the value at (row, col).
func (m *Matrix) At(row, col int) float32 {
	return m.Data[row*m.Size+col]
}

// Set stores v at (row, col).
func (m *Matrix) Set(row, col int, v float32) {
	m.Data[row*m.Size+col] = v
}

// Heightmap is a normalized R x R elevation surface.
type Heightmap struct {
	Resolution       int
	Heights          []float32 // Row-major, values in [0, 1]
	MinElevation     float64   // Meters
	MaxElevation     float64   // Meters
	VerticalRange    float64   // MaxElevation - MinElevation
	HorizontalExtent float64   // Width and depth of the square footprint in meters
}

// At returns the normalized height at (row, col).
func (h *Heightmap) At(row, col int) float32 {
	return h.Heights[row*h.Resolution+col]
}

// Elevation converts a normalized value back to meters.
func (h *Heightmap) Elevation(row, col int) float64 {
	return h.MinElevation + float64(h.At(row, col))*h.VerticalRange
}
