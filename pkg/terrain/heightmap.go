package terrain

import (
	"fmt"
	"math"

	"github.com/Faultbox/demterrain/pkg/dem"
)

// Resample stretches g onto a resolution x resolution matrix with bilinear
// interpolation. The result keeps the grid's orientation (row = north-south
// axis), and corner samples pass through exactly. resolution must lie in
// [2, MaxHeightmapResolution].
func Resample(g *dem.Grid, resolution int) (*Matrix, error) {
	if resolution < 2 || resolution > MaxHeightmapResolution {
		return nil, fmt.Errorf("%w: %d (want 2..%d)", ErrInvalidResolution, resolution, MaxHeightmapResolution)
	}

	rows, cols := g.Rows(), g.Cols()
	out := NewMatrix(resolution)
	span := float64(resolution - 1)

	for i := 0; i < resolution; i++ {
		// Column axis
		x := float64(i*(cols-1)) / span
		xFloor := int(x)
		xCeil := min(xFloor+1, cols-1)
		xWeight := float32(x - float64(xFloor))

		for j := 0; j < resolution; j++ {
			// Row axis
			y := float64(j*(rows-1)) / span
			yFloor := int(y)
			yCeil := min(yFloor+1, rows-1)
			yWeight := float32(y - float64(yFloor))

			topLeft := g.At(yFloor, xFloor)
			topRight := g.At(yFloor, xCeil)
			bottomLeft := g.At(yCeil, xFloor)
			bottomRight := g.At(yCeil, xCeil)

			top := topLeft*(1-xWeight) + topRight*xWeight
			bottom := bottomLeft*(1-xWeight) + bottomRight*xWeight

			out.Set(j, i, top*(1-yWeight)+bottom*yWeight)
		}
	}
	return out, nil
}

// Normalize maps m onto [0, 1] by its own minimum and maximum.
// A flat matrix normalizes to all zeros. Non-finite values, which only
// come from unfilled "no data" samples, are left out of the range; NaN
// maps to 0 and infinities clamp to the nearest bound.
func Normalize(m *Matrix) (normalized *Matrix, lo, hi float64) {
	normalized = NewMatrix(m.Size)

	found := false
	for _, v := range m.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		if !found {
			lo, hi, found = f, f, true
			continue
		}
		lo = min(lo, f)
		hi = max(hi, f)
	}
	if !found {
		return normalized, 0, 0
	}

	span := hi - lo
	if span == 0 {
		return normalized, lo, hi
	}
	for i, v := range m.Data {
		n := (float64(v) - lo) / span
		if math.IsNaN(n) {
			continue
		}
		normalized.Data[i] = float32(min(max(n, 0), 1))
	}
	return normalized, lo, hi
}

// Reorient remaps m into the heightmap convention of terrain renderers.
// Indexing the source by (i, j) = (column, row), the value moves to
// (R-1-j, i). Values are not touched.
func Reorient(m *Matrix) *Matrix {
	size := m.Size
	out := NewMatrix(size)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			out.Set(size-1-j, i, m.At(j, i))
		}
	}
	return out
}

// BuildHeightmap resamples, normalizes and reorients g into a heightmap of
// the given resolution.
func BuildHeightmap(g *dem.Grid, resolution int) (*Heightmap, error) {
	resampled, err := Resample(g, resolution)
	if err != nil {
		return nil, err
	}

	normalized, lo, hi := Normalize(resampled)
	oriented := Reorient(normalized)

	return &Heightmap{
		Resolution:       resolution,
		Heights:          oriented.Data,
		MinElevation:     lo,
		MaxElevation:     hi,
		VerticalRange:    hi - lo,
		HorizontalExtent: float64(g.Rows()) * g.CellSize(),
	}, nil
}
