package terrain

import (
	"errors"
	"math"
	"testing"

	"github.com/Faultbox/demterrain/pkg/dem"
)

func TestResample_Passthrough(t *testing.T) {
	g := createTestGrid(t, 6, 6, 30)

	m, err := Resample(g, 6)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			if got, want := m.At(r, c), g.At(r, c); math.Abs(float64(got-want)) > 1e-4 {
				t.Errorf("At(%d, %d) = %v, want %v", r, c, got, want)
			}
		}
	}
}

func TestResample_Corners(t *testing.T) {
	g := createTestGrid(t, 3, 4, 30)
	const res = 7

	m, err := Resample(g, res)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}

	corners := []struct {
		r, c       int
		srcR, srcC int
	}{
		{0, 0, 0, 0},
		{0, res - 1, 0, 3},
		{res - 1, 0, 2, 0},
		{res - 1, res - 1, 2, 3},
	}
	for _, tt := range corners {
		if got, want := m.At(tt.r, tt.c), g.At(tt.srcR, tt.srcC); got != want {
			t.Errorf("corner (%d, %d) = %v, want %v", tt.r, tt.c, got, want)
		}
	}
}

func TestResample_Bilinear(t *testing.T) {
	g, err := dem.NewGrid(2, 2, 1, []float32{0, 10, 20, 30})
	if err != nil {
		t.Fatalf("NewGrid failed: %v", err)
	}
	m, err := Resample(g, 3)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}

	// Midpoints along each axis and the center.
	tests := []struct {
		r, c int
		want float32
	}{
		{0, 1, 5},
		{1, 0, 10},
		{1, 1, 15},
		{2, 1, 25},
		{1, 2, 20},
	}
	for _, tt := range tests {
		if got := m.At(tt.r, tt.c); got != tt.want {
			t.Errorf("At(%d, %d) = %v, want %v", tt.r, tt.c, got, tt.want)
		}
	}
}

func TestResample_InvalidResolution(t *testing.T) {
	g := createTestGrid(t, 3, 3, 30)
	if _, err := Resample(g, 1); !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("expected ErrInvalidResolution, got %v", err)
	}
	if _, err := BuildHeightmap(g, 0); !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("expected ErrInvalidResolution, got %v", err)
	}

	// Sizes whose square overflows or exceeds the cap fail before allocating.
	for _, res := range []int{MaxHeightmapResolution + 1, 3037000500, math.MaxInt} {
		if _, err := BuildHeightmap(g, res); !errors.Is(err, ErrInvalidResolution) {
			t.Errorf("BuildHeightmap(%d): expected ErrInvalidResolution, got %v", res, err)
		}
	}
}

func TestNormalize_NonFinite(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	m := &Matrix{Size: 2, Data: []float32{10, nan, 20, inf}}

	n, lo, hi := Normalize(m)
	if lo != 10 || hi != 20 {
		t.Errorf("range = %v..%v, want 10..20", lo, hi)
	}
	want := []float32{0, 0, 1, 1}
	for i, v := range n.Data {
		if v != want[i] {
			t.Errorf("normalized[%d] = %v, want %v", i, v, want[i])
		}
	}
}

func TestBuildHeightmap_NaNNoData(t *testing.T) {
	nan := float32(math.NaN())
	g, err := dem.NewGrid(3, 3, 30, []float32{
		100, 110, 120,
		130, nan, 150,
		160, 170, 180,
	}, dem.WithNoData(nan))
	if err != nil {
		t.Fatalf("NewGrid failed: %v", err)
	}

	hm, err := BuildHeightmap(g, 5)
	if err != nil {
		t.Fatalf("BuildHeightmap failed: %v", err)
	}
	if math.IsNaN(hm.VerticalRange) || hm.VerticalRange <= 0 || hm.VerticalRange > 80 {
		t.Errorf("VerticalRange = %v, want finite and within 0..80", hm.VerticalRange)
	}
	for i, v := range hm.Heights {
		if !(v >= 0 && v <= 1) {
			t.Fatalf("height %d = %v outside [0, 1]", i, v)
		}
	}
}

func TestNormalize_Bounds(t *testing.T) {
	g := createTestGrid(t, 9, 13, 30)
	m, err := Resample(g, 17)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}

	n, lo, hi := Normalize(m)
	if lo >= hi {
		t.Fatalf("expected non-degenerate range, got %v..%v", lo, hi)
	}

	hasZero, hasOne := false, false
	for _, v := range n.Data {
		if v < 0 || v > 1 {
			t.Errorf("normalized value %v outside [0, 1]", v)
		}
		hasZero = hasZero || v == 0
		hasOne = hasOne || v == 1
	}
	if !hasZero || !hasOne {
		t.Errorf("expected exact 0 and 1 present, got zero=%v one=%v", hasZero, hasOne)
	}
}

func TestBuildHeightmap_Flat(t *testing.T) {
	heights := make([]float32, 4*5)
	for i := range heights {
		heights[i] = 100.0
	}
	g, err := dem.NewGrid(4, 5, 30, heights)
	if err != nil {
		t.Fatalf("NewGrid failed: %v", err)
	}

	hm, err := BuildHeightmap(g, 9)
	if err != nil {
		t.Fatalf("BuildHeightmap failed: %v", err)
	}
	if hm.VerticalRange != 0 {
		t.Errorf("expected vertical range 0, got %v", hm.VerticalRange)
	}
	for i, v := range hm.Heights {
		if v != 0 {
			t.Fatalf("height %d = %v, want 0", i, v)
		}
	}
	if got := hm.Elevation(3, 3); got != 100 {
		t.Errorf("Elevation() = %v, want 100", got)
	}
}

func TestReorient(t *testing.T) {
	m := &Matrix{Size: 3, Data: []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}}
	got := Reorient(m)
	want := []float32{
		7, 8, 9,
		4, 5, 6,
		1, 2, 3,
	}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Fatalf("Reorient() = %v, want %v", got.Data, want)
		}
	}
	// Source untouched.
	if m.At(0, 0) != 1 {
		t.Error("Reorient mutated its input")
	}
}

func TestBuildHeightmap(t *testing.T) {
	g, err := dem.NewGrid(3, 3, 90, []float32{
		500, 510, 520,
		530, 540, 550,
		560, 570, 600,
	})
	if err != nil {
		t.Fatalf("NewGrid failed: %v", err)
	}

	hm, err := BuildHeightmap(g, 3)
	if err != nil {
		t.Fatalf("BuildHeightmap failed: %v", err)
	}

	if hm.Resolution != 3 || len(hm.Heights) != 9 {
		t.Fatalf("unexpected heightmap size %d (%d values)", hm.Resolution, len(hm.Heights))
	}
	if hm.VerticalRange != 100 || hm.MinElevation != 500 || hm.MaxElevation != 600 {
		t.Errorf("range = %v (%v..%v), want 100 (500..600)", hm.VerticalRange, hm.MinElevation, hm.MaxElevation)
	}
	if hm.HorizontalExtent != 270 {
		t.Errorf("horizontal extent = %v, want 270", hm.HorizontalExtent)
	}

	// The north-west sample lands in the last heightmap row.
	if got := hm.At(2, 0); got != 0 {
		t.Errorf("At(2, 0) = %v, want 0", got)
	}
	if got := hm.At(0, 2); got != 1 {
		t.Errorf("At(0, 2) = %v, want 1", got)
	}
	if got := hm.Elevation(1, 1); math.Abs(got-540) > 1e-3 {
		t.Errorf("Elevation(1, 1) = %v, want 540", got)
	}
}
