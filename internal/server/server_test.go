package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/Faultbox/demterrain/internal/pipeline"
	"github.com/Faultbox/demterrain/pkg/dem"
)

func newTestGrid(t *testing.T, rows, cols int) *dem.Grid {
	t.Helper()
	heights := make([]float32, rows*cols)
	for i := range heights {
		heights[i] = float32(i)
	}
	g, err := dem.NewGrid(rows, cols, 30, heights)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readAll reads messages until done or error.
func readAll(t *testing.T, conn *websocket.Conn) []Message {
	t.Helper()
	var msgs []Message
	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("ReadJSON after %d messages: %v", len(msgs), err)
		}
		msgs = append(msgs, m)
		if m.Type == TypeDone || m.Type == TypeError {
			return msgs
		}
	}
}

func TestStreamPieces(t *testing.T) {
	opts := pipeline.DefaultOptions()
	opts.Resolution = 9
	srv := httptest.NewServer(New(newTestGrid(t, 5, 5), opts).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteJSON(Request{MaxVertices: 9, IncludeHeights: true}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	msgs := readAll(t, conn)

	// 4 pieces, heightmap, done
	if len(msgs) != 6 {
		t.Fatalf("got %d messages, want 6", len(msgs))
	}
	for i := 0; i < 4; i++ {
		m := msgs[i]
		if m.Type != TypePiece || m.Piece == nil {
			t.Fatalf("message %d: type %q, want piece", i, m.Type)
		}
		if m.Piece.Index != i {
			t.Errorf("message %d: piece index %d", i, m.Piece.Index)
		}
		if len(m.Piece.Positions) != 27 || len(m.Piece.UVs) != 18 || len(m.Piece.Normals) != 27 {
			t.Errorf("piece %d: buffer sizes %d/%d/%d", i,
				len(m.Piece.Positions), len(m.Piece.UVs), len(m.Piece.Normals))
		}
		if len(m.Piece.Indices) != 24 {
			t.Errorf("piece %d: %d indices, want 24", i, len(m.Piece.Indices))
		}
	}

	hm := msgs[4]
	if hm.Type != TypeHeightmap || hm.Heightmap == nil {
		t.Fatalf("message 4: type %q, want heightmap", hm.Type)
	}
	if hm.Heightmap.Resolution != 9 || len(hm.Heightmap.Heights) != 81 {
		t.Errorf("heightmap resolution %d with %d heights", hm.Heightmap.Resolution, len(hm.Heightmap.Heights))
	}
	if hm.Heightmap.VerticalRange != 24 {
		t.Errorf("VerticalRange = %v, want 24", hm.Heightmap.VerticalRange)
	}

	done := msgs[5]
	if done.Type != TypeDone || done.Stats == nil {
		t.Fatalf("message 5: type %q, want done", done.Type)
	}
	if done.Stats.Pieces != 4 || done.Stats.Triangles != 32 {
		t.Errorf("stats = %+v", *done.Stats)
	}
}

func TestStreamDefaultsWithoutHeights(t *testing.T) {
	opts := pipeline.DefaultOptions()
	opts.Resolution = 5
	srv := httptest.NewServer(New(newTestGrid(t, 4, 6), opts).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteJSON(Request{}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	msgs := readAll(t, conn)

	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Piece == nil || len(msgs[0].Piece.Positions) != 3*24 {
		t.Errorf("single piece expected with 24 vertices")
	}
	if msgs[1].Heightmap == nil || msgs[1].Heightmap.Heights != nil {
		t.Errorf("heightmap heights should be omitted unless requested")
	}
}

func TestStreamInvalidBudget(t *testing.T) {
	srv := httptest.NewServer(New(newTestGrid(t, 3, 3), pipeline.DefaultOptions()).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteJSON(Request{MaxVertices: 3}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	msgs := readAll(t, conn)
	if len(msgs) != 1 || msgs[0].Type != TypeError || msgs[0].Error == "" {
		t.Fatalf("got %+v, want one error message", msgs)
	}
}

func TestStreamRejectsOversizedRequest(t *testing.T) {
	opts := pipeline.DefaultOptions()
	opts.Resolution = 17
	opts.MaxVertices = 100
	srv := httptest.NewServer(New(newTestGrid(t, 6, 6), opts).Handler())
	defer srv.Close()

	tests := []struct {
		name string
		req  Request
	}{
		{"huge resolution", Request{Resolution: 3037000500}},
		{"resolution above default", Request{Resolution: 18}},
		{"budget above default", Request{MaxVertices: 101}},
		{"negative resolution", Request{Resolution: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, srv)
			if err := conn.WriteJSON(tt.req); err != nil {
				t.Fatalf("WriteJSON: %v", err)
			}
			msgs := readAll(t, conn)
			if len(msgs) != 1 || msgs[0].Type != TypeError {
				t.Fatalf("got %+v, want one error message", msgs)
			}
			if !strings.Contains(msgs[0].Error, ErrInvalidRequest.Error()) {
				t.Errorf("error = %q, want %q", msgs[0].Error, ErrInvalidRequest)
			}
		})
	}

	// The server is still serving after the rejected requests.
	conn := dial(t, srv)
	if err := conn.WriteJSON(Request{Resolution: 17}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	msgs := readAll(t, conn)
	if last := msgs[len(msgs)-1]; last.Type != TypeDone {
		t.Errorf("last message type %q, want done", last.Type)
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(New(newTestGrid(t, 2, 2), pipeline.DefaultOptions()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
