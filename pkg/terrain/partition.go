package terrain

import (
	"fmt"
	"math"

	"github.com/Faultbox/demterrain/pkg/dem"
)

// PieceEdge returns the number of quads along each side of a full piece:
// the largest edge for which (edge+1)^2 samples fit in maxVertices.
func PieceEdge(maxVertices int) int {
	return int(math.Floor(math.Sqrt(float64(maxVertices)))) - 1
}

// Partition splits a rows x cols sample grid into pieces of at most
// maxVertices samples. Neighboring pieces share their boundary row or
// column, so the union covers the grid without gaps. Pieces are returned
// in row-major order.
func Partition(rows, cols, maxVertices int) ([]Piece, error) {
	if rows < dem.MinDimension || cols < dem.MinDimension {
		return nil, fmt.Errorf("%w: %dx%d", dem.ErrInvalidGrid, rows, cols)
	}
	edge := PieceEdge(maxVertices)
	if edge < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVertexBudget, maxVertices)
	}

	// Small grids fit in a single piece regardless of shape.
	if rows*cols <= maxVertices {
		return []Piece{{RowCount: rows, ColCount: cols}}, nil
	}

	rowBands := bands(rows, edge)
	colBands := bands(cols, edge)

	pieces := make([]Piece, 0, len(rowBands)*len(colBands))
	for br, rb := range rowBands {
		for bc, cb := range colBands {
			pieces = append(pieces, Piece{
				Index:    len(pieces),
				BandRow:  br,
				BandCol:  bc,
				RowStart: rb.start,
				RowCount: rb.count,
				ColStart: cb.start,
				ColCount: cb.count,
			})
		}
	}
	return pieces, nil
}

type band struct {
	start int
	count int
}

// bands cuts n samples into runs of edge quads. Each run after the first
// starts on the previous run's last sample; the final run takes the
// remainder.
func bands(n, edge int) []band {
	quads := n - 1
	out := make([]band, 0, (quads+edge-1)/edge)
	for start := 0; start < quads; start += edge {
		count := min(edge, quads-start) + 1
		out = append(out, band{start: start, count: count})
	}
	return out
}
