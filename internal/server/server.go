// Package server streams mesh pieces and heightmaps of a loaded grid to
// websocket clients as they are built.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Faultbox/demterrain/internal/logger"
	"github.com/Faultbox/demterrain/internal/pipeline"
	"github.com/Faultbox/demterrain/pkg/dem"
	"github.com/Faultbox/demterrain/pkg/terrain"
)

// Message types sent to clients.
const (
	TypePiece     = "piece"
	TypeHeightmap = "heightmap"
	TypeDone      = "done"
	TypeError     = "error"
)

// ErrInvalidRequest is reported to clients whose request exceeds the server limits.
var ErrInvalidRequest = errors.New("invalid terrain request")

// maxStreamedHeights caps heightmaps sent inline; larger ones are sent as a summary.
const maxStreamedHeights = 1025 * 1025

// Request is the optional first client message; zero fields use server defaults.
type Request struct {
	MaxVertices    int  `json:"max_vertices"`
	Resolution     int  `json:"resolution"`
	IncludeHeights bool `json:"include_heights"`
}

// PiecePayload carries one mesh piece in flat buffers.
type PiecePayload struct {
	Index     int       `json:"index"`
	BandRow   int       `json:"band_row"`
	BandCol   int       `json:"band_col"`
	Positions []float32 `json:"positions"` // x,y,z per vertex
	UVs       []float32 `json:"uvs"`       // u,v per vertex
	Normals   []float32 `json:"normals"`   // x,y,z per vertex
	Indices   []uint32  `json:"indices"`
}

// HeightmapPayload describes the heightmap; Heights is only set when requested.
type HeightmapPayload struct {
	Resolution       int       `json:"resolution"`
	MinElevation     float64   `json:"min_elevation"`
	VerticalRange    float64   `json:"vertical_range"`
	HorizontalExtent float64   `json:"horizontal_extent"`
	Heights          []float32 `json:"heights,omitempty"`
}

// Message is the envelope of every server message.
type Message struct {
	Type      string            `json:"type"`
	Piece     *PiecePayload     `json:"piece,omitempty"`
	Heightmap *HeightmapPayload `json:"heightmap,omitempty"`
	Stats     *pipeline.Stats   `json:"stats,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Server serves one grid.
type Server struct {
	grid     *dem.Grid
	defaults pipeline.Options
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// New creates a server for g. defaults fill in request fields left at zero.
func New(g *dem.Grid, defaults pipeline.Options) *Server {
	return &Server{
		grid:     g,
		defaults: defaults,
		log:      logger.Named("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			// Viewers are served from anywhere during development
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			s.log.Debug("writing health response failed", zap.Error(err))
		}
	})
	return mux
}

// ListenAndServe serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := s.log.With(zap.String("remote", r.RemoteAddr))

	var req Request
	if err := conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
		log.Debug("setting read deadline failed", zap.Error(err))
	}
	if err := conn.ReadJSON(&req); err != nil {
		log.Warn("reading request failed", zap.Error(err))
		return
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		log.Debug("clearing read deadline failed", zap.Error(err))
	}

	opts, err := s.options(req)
	if err != nil {
		log.Warn("rejected request", zap.Error(err))
		sendError(log, conn, err)
		return
	}
	log.Info("streaming terrain",
		zap.Int("max_vertices", opts.MaxVertices),
		zap.Int("resolution", opts.Resolution))

	// Detect clients going away; only this goroutine reads from now on.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	res, err := pipeline.Run(ctx, s.grid, opts, func(m *terrain.MeshPiece) error {
		return conn.WriteJSON(Message{Type: TypePiece, Piece: piecePayload(m)})
	})
	if err != nil {
		log.Warn("streaming stopped", zap.Error(err))
		sendError(log, conn, err)
		return
	}

	if res.Heightmap != nil {
		hp := &HeightmapPayload{
			Resolution:       res.Heightmap.Resolution,
			MinElevation:     res.Heightmap.MinElevation,
			VerticalRange:    res.Heightmap.VerticalRange,
			HorizontalExtent: res.Heightmap.HorizontalExtent,
		}
		if req.IncludeHeights && len(res.Heightmap.Heights) <= maxStreamedHeights {
			hp.Heights = res.Heightmap.Heights
		}
		if err := conn.WriteJSON(Message{Type: TypeHeightmap, Heightmap: hp}); err != nil {
			log.Warn("sending heightmap failed", zap.Error(err))
			return
		}
	}

	if err := conn.WriteJSON(Message{Type: TypeDone, Stats: &res.Stats}); err != nil {
		log.Warn("sending done failed", zap.Error(err))
		return
	}
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		log.Debug("sending close frame failed", zap.Error(err))
	}
}

func sendError(log *zap.Logger, conn *websocket.Conn, cause error) {
	if err := conn.WriteJSON(Message{Type: TypeError, Error: cause.Error()}); err != nil {
		log.Debug("sending error message failed", zap.Error(err))
	}
}

// options merges req into the server defaults. Requests may lower the
// vertex budget and heightmap resolution but never raise them.
func (s *Server) options(req Request) (pipeline.Options, error) {
	opts := s.defaults
	if req.MaxVertices < 0 || req.Resolution < 0 {
		return opts, fmt.Errorf("%w: negative max_vertices or resolution", ErrInvalidRequest)
	}
	if req.MaxVertices > 0 {
		if req.MaxVertices > s.defaults.MaxVertices {
			return opts, fmt.Errorf("%w: max_vertices %d above limit %d",
				ErrInvalidRequest, req.MaxVertices, s.defaults.MaxVertices)
		}
		opts.MaxVertices = req.MaxVertices
	}
	if req.Resolution > 0 {
		if req.Resolution > s.defaults.Resolution {
			return opts, fmt.Errorf("%w: resolution %d above limit %d",
				ErrInvalidRequest, req.Resolution, s.defaults.Resolution)
		}
		opts.Resolution = req.Resolution
	}
	return opts, nil
}

func piecePayload(m *terrain.MeshPiece) *PiecePayload {
	p := &PiecePayload{
		Index:     m.Piece.Index,
		BandRow:   m.Piece.BandRow,
		BandCol:   m.Piece.BandCol,
		Positions: make([]float32, 0, 3*len(m.Vertices)),
		UVs:       make([]float32, 0, 2*len(m.UVs)),
		Normals:   make([]float32, 0, 3*len(m.Normals)),
		Indices:   m.Indices,
	}
	for _, v := range m.Vertices {
		p.Positions = append(p.Positions, v.X, v.Y, v.Z)
	}
	for _, uv := range m.UVs {
		p.UVs = append(p.UVs, uv.X, uv.Y)
	}
	for _, n := range m.Normals {
		p.Normals = append(p.Normals, n.X, n.Y, n.Z)
	}
	return p
}
