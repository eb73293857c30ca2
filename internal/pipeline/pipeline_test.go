package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Faultbox/demterrain/pkg/dem"
	"github.com/Faultbox/demterrain/pkg/terrain"
)

func createTestGrid(t *testing.T, rows, cols int, opts ...dem.GridOption) *dem.Grid {
	t.Helper()
	heights := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			heights[r*cols+c] = float32(800 + 4*r - c + (r*7+c*3)%11)
		}
	}
	g, err := dem.NewGrid(rows, cols, 30, heights, opts...)
	if err != nil {
		t.Fatalf("NewGrid failed: %v", err)
	}
	return g
}

func TestRun_MatchesSequentialBuild(t *testing.T) {
	g := createTestGrid(t, 37, 29)
	opts := Options{MaxVertices: 64, Resolution: 33, Workers: 4}

	res, err := Run(context.Background(), g, opts, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want, err := terrain.BuildMeshes(g, opts.MaxVertices)
	if err != nil {
		t.Fatalf("BuildMeshes failed: %v", err)
	}
	if len(res.Pieces) != len(want) {
		t.Fatalf("expected %d pieces, got %d", len(want), len(res.Pieces))
	}
	for i := range want {
		if !reflect.DeepEqual(res.Pieces[i], want[i]) {
			t.Errorf("piece %d differs from sequential build", i)
		}
	}

	wantHM, err := terrain.BuildHeightmap(g, opts.Resolution)
	if err != nil {
		t.Fatalf("BuildHeightmap failed: %v", err)
	}
	if !reflect.DeepEqual(res.Heightmap, wantHM) {
		t.Error("heightmap differs from direct build")
	}

	if res.Stats.Pieces != len(want) {
		t.Errorf("stats pieces = %d, want %d", res.Stats.Pieces, len(want))
	}
	if res.Stats.Triangles != 2*36*28 {
		t.Errorf("stats triangles = %d, want %d", res.Stats.Triangles, 2*36*28)
	}
}

func TestRun_SinkOrder(t *testing.T) {
	g := createTestGrid(t, 20, 20)

	var order []int
	res, err := Run(context.Background(), g, Options{MaxVertices: 16, Workers: 8}, func(m *terrain.MeshPiece) error {
		order = append(order, m.Piece.Index)
		return nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Pieces != nil {
		t.Error("expected no collected pieces when streaming to a sink")
	}
	if res.Heightmap != nil {
		t.Error("expected no heightmap with resolution 0")
	}
	for i, idx := range order {
		if idx != i {
			t.Fatalf("piece %d delivered at position %d", idx, i)
		}
	}
	if len(order) != res.Stats.Pieces {
		t.Errorf("sink saw %d pieces, stats report %d", len(order), res.Stats.Pieces)
	}
}

func TestRun_CancelFromSink(t *testing.T) {
	g := createTestGrid(t, 30, 30)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	_, err := Run(ctx, g, Options{MaxVertices: 16, Resolution: 65, Workers: 2}, func(*terrain.MeshPiece) error {
		calls++
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 delivered piece after cancel, got %d", calls)
	}
}

func TestRun_SinkError(t *testing.T) {
	g := createTestGrid(t, 10, 10)
	errUpload := errors.New("upload failed")

	_, err := Run(context.Background(), g, Options{MaxVertices: 9}, func(*terrain.MeshPiece) error {
		return errUpload
	})
	if !errors.Is(err, errUpload) {
		t.Errorf("expected upload error, got %v", err)
	}
}

func TestRun_FillNoData(t *testing.T) {
	g := createTestGrid(t, 6, 6)
	heights := g.Heights()
	heights[7] = -9999
	g, err := dem.NewGrid(6, 6, 30, heights, dem.WithNoData(-9999))
	if err != nil {
		t.Fatalf("NewGrid failed: %v", err)
	}

	res, err := Run(context.Background(), g, Options{MaxVertices: 100, Resolution: 6, FillNoData: true}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, m := range res.Pieces {
		for _, v := range m.Vertices {
			if v.Y == -9999 {
				t.Fatal("no-data sample leaked into mesh")
			}
		}
	}
	if res.Heightmap.MinElevation < 0 {
		t.Errorf("no-data sample leaked into heightmap range: %v", res.Heightmap.MinElevation)
	}
}

func TestRun_InvalidBudget(t *testing.T) {
	g := createTestGrid(t, 4, 4)
	if _, err := Run(context.Background(), g, Options{MaxVertices: 2}, nil); !errors.Is(err, terrain.ErrInvalidVertexBudget) {
		t.Errorf("expected ErrInvalidVertexBudget, got %v", err)
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.MaxVertices != 65535 || opts.Resolution != 4097 || !opts.FillNoData {
		t.Errorf("unexpected defaults %+v", opts)
	}
}
