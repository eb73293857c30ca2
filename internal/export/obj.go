// Package export writes mesh pieces and heightmaps to files renderers and
// DCC tools can import.
package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Faultbox/demterrain/pkg/terrain"
)

// PieceFilename returns the OBJ file name of a piece.
func PieceFilename(p terrain.Piece) string {
	return fmt.Sprintf("piece_%03d_%03d.obj", p.BandRow, p.BandCol)
}

// WriteOBJ writes one piece as a Wavefront OBJ object with positions,
// texture coordinates and normals.
func WriteOBJ(w io.Writer, m *terrain.MeshPiece) error {
	bw := bufio.NewWriter(w)

	ff := func(v float32) string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }

	fmt.Fprintf(bw, "o piece_%d_%d\n", m.Piece.BandRow, m.Piece.BandCol)
	for _, v := range m.Vertices {
		fmt.Fprintf(bw, "v %s %s %s\n", ff(v.X), ff(v.Y), ff(v.Z))
	}
	for _, uv := range m.UVs {
		fmt.Fprintf(bw, "vt %s %s\n", ff(uv.X), ff(uv.Y))
	}
	for _, n := range m.Normals {
		fmt.Fprintf(bw, "vn %s %s %s\n", ff(n.X), ff(n.Y), ff(n.Z))
	}
	for i := 0; i+2 < len(m.Indices); i += 3 {
		// OBJ indices are 1-based.
		a, b, c := m.Indices[i]+1, m.Indices[i+1]+1, m.Indices[i+2]+1
		fmt.Fprintf(bw, "f %d/%d/%d %d/%d/%d %d/%d/%d\n", a, a, a, b, b, b, c, c, c)
	}
	return bw.Flush()
}

// WritePiece writes m to its OBJ file in dir, which must exist.
func WritePiece(dir string, m *terrain.MeshPiece) (string, error) {
	path := filepath.Join(dir, PieceFilename(m.Piece))
	if err := writeFile(path, func(w io.Writer) error { return WriteOBJ(w, m) }); err != nil {
		return "", fmt.Errorf("writing piece %d: %w", m.Piece.Index, err)
	}
	return path, nil
}

// WriteMeshes writes every piece to its own OBJ file in dir and returns the
// paths written.
func WriteMeshes(dir string, pieces []*terrain.MeshPiece) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(pieces))
	for _, m := range pieces {
		path, err := WritePiece(dir, m)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
