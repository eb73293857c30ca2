package terrain

import (
	"fmt"

	"github.com/Faultbox/demterrain/pkg/dem"
	"github.com/Faultbox/demterrain/pkg/math"
)

// NewLayout computes the aspect-ratio scale and centering offsets for g.
// The column axis is scaled so its extent matches the row extent.
func NewLayout(g *dem.Grid) Layout {
	rows, cols := g.Rows(), g.Cols()
	cell := g.CellSize()

	aspect := float64(cols) / float64(rows)
	scale := 1 / aspect

	return Layout{
		Rows:          rows,
		Cols:          cols,
		CellSize:      cell,
		ScalingFactor: scale,
		RowOffset:     float64(rows) * cell / 2,
		ColOffset:     float64(cols) * scale * cell / 2,
	}
}

// Position returns the centered local position of sample (row, col).
func (l Layout) Position(row, col int, height float32) math.Vec3 {
	return math.Vec3{
		X: float32(float64(col)*l.ScalingFactor*l.CellSize - l.ColOffset),
		Y: height,
		Z: float32(float64(row)*l.CellSize - l.RowOffset),
	}
}

// UV returns the texture coordinate of sample (row, col) across the whole grid.
func (l Layout) UV(row, col int) math.Vec2 {
	return math.Vec2{
		X: float32(col) / float32(l.Cols-1),
		Y: float32(row) / float32(l.Rows-1),
	}
}

// BuildPiece creates the mesh for one partition piece.
// The piece's last row and column only contribute vertices; their quads
// belong to the neighboring piece.
func BuildPiece(g *dem.Grid, layout Layout, p Piece, maxVertices int) (*MeshPiece, error) {
	n := p.VertexCount()
	if n > maxVertices {
		return nil, fmt.Errorf("%w: piece %d has %d vertices, budget %d",
			ErrVertexBudgetExceeded, p.Index, n, maxVertices)
	}
	if p.RowStart < 0 || p.ColStart < 0 || p.RowStart+p.RowCount > g.Rows() || p.ColStart+p.ColCount > g.Cols() {
		return nil, fmt.Errorf("%w: piece %d outside %dx%d grid", dem.ErrInvalidGrid, p.Index, g.Rows(), g.Cols())
	}

	mesh := &MeshPiece{
		Piece:    p,
		Vertices: make([]math.Vec3, 0, n),
		UVs:      make([]math.Vec2, 0, n),
		Indices:  make([]uint32, 0, p.TriangleCount()*3),
	}

	for row := p.RowStart; row < p.RowStart+p.RowCount; row++ {
		for col := p.ColStart; col < p.ColStart+p.ColCount; col++ {
			mesh.Vertices = append(mesh.Vertices, layout.Position(row, col, g.At(row, col)))
			mesh.UVs = append(mesh.UVs, layout.UV(row, col))

			// Two triangles per quad, skipping the piece's own last row/column
			if row < p.RowStart+p.RowCount-1 && col < p.ColStart+p.ColCount-1 {
				current := uint32((row-p.RowStart)*p.ColCount + (col - p.ColStart))
				down := current + uint32(p.ColCount)
				right := current + 1
				downRight := down + 1

				mesh.Indices = append(mesh.Indices,
					current, down, right,
					right, down, downRight,
				)
			}
		}
	}

	mesh.Normals = computeNormals(mesh.Vertices, mesh.Indices)
	mesh.Bounds = computeBounds(mesh.Vertices)
	return mesh, nil
}

// BuildMeshes partitions g and builds every piece in row-major order.
func BuildMeshes(g *dem.Grid, maxVertices int) ([]*MeshPiece, error) {
	pieces, err := Partition(g.Rows(), g.Cols(), maxVertices)
	if err != nil {
		return nil, err
	}

	layout := NewLayout(g)
	meshes := make([]*MeshPiece, 0, len(pieces))
	for _, p := range pieces {
		m, err := BuildPiece(g, layout, p, maxVertices)
		if err != nil {
			return nil, err
		}
		meshes = append(meshes, m)
	}
	return meshes, nil
}

// computeNormals accumulates face normals onto each corner and normalizes.
// Faces are not area-weighted beyond what the cross product gives.
func computeNormals(vertices []math.Vec3, indices []uint32) []math.Vec3 {
	sums := make([]math.Vec3, len(vertices))
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		face := vertices[b].Sub(vertices[a]).Cross(vertices[c].Sub(vertices[a]))
		sums[a] = sums[a].Add(face)
		sums[b] = sums[b].Add(face)
		sums[c] = sums[c].Add(face)
	}

	normals := make([]math.Vec3, len(vertices))
	for i, s := range sums {
		normals[i] = s.NormalizeOr(math.Up)
	}
	return normals
}

func computeBounds(vertices []math.Vec3) Bounds {
	if len(vertices) == 0 {
		return Bounds{}
	}
	b := Bounds{Min: vertices[0], Max: vertices[0]}
	for _, v := range vertices[1:] {
		b.Min = b.Min.Min(v)
		b.Max = b.Max.Max(v)
	}
	return b
}
