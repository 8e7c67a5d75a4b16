// Package server exposes the atlas over HTTP: level control, the committed frame as
// GeoJSON, a server-sent event stream of frames and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/mountainatlas/internal/atlas"
	"github.com/MeKo-Tech/mountainatlas/internal/datasource"
	"github.com/MeKo-Tech/mountainatlas/internal/geojson"
	"github.com/MeKo-Tech/mountainatlas/internal/layers"
	"github.com/MeKo-Tech/mountainatlas/internal/types"
	orbgeojson "github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the HTTP handlers.
type Config struct {
	Logger  *slog.Logger
	DemoDir string
	// RequestTimeout bounds level and zoom changes. Default 30s.
	RequestTimeout time.Duration
	// KeepAlive is the interval of SSE comment pings. Default 15s.
	KeepAlive time.Duration
}

// Server serves one atlas drawing onto a Board.
type Server struct {
	atlas  *atlas.Atlas
	board  *Board
	hub    *Hub
	logger *slog.Logger
	cfg    Config
}

// New creates the server and registers its stream hub as a renderer of a.
func New(a *atlas.Atlas, board *Board, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 15 * time.Second
	}

	s := &Server{
		atlas:  a,
		board:  board,
		hub:    NewHub(),
		logger: cfg.Logger,
		cfg:    cfg,
	}
	a.AddRenderer(s.hub)
	return s
}

func (s *Server) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// Hub returns the frame stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/levels", s.handleLevels)
	mux.HandleFunc("GET /api/frame", s.handleFrame)
	mux.HandleFunc("POST /api/level", s.handleSetLevel)
	mux.HandleFunc("PUT /api/zoom", s.handleSetZoom)
	mux.HandleFunc("GET /api/layers", s.handleLayers)
	mux.HandleFunc("GET /api/layers/{key}", s.handleLayer)
	mux.HandleFunc("GET /api/peaks", s.handlePeaks)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.Handle("GET /metrics", promhttp.Handler())

	if s.cfg.DemoDir != "" {
		mux.Handle("GET /demo/", http.StripPrefix("/demo/", http.FileServer(http.Dir(s.cfg.DemoDir))))
		mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/demo/", http.StatusFound)
		})
	}

	return withCORS(mux)
}

type errorResponse struct {
	Error    string `json:"error"`
	Resource string `json:"resource,omitempty"`
	URL      string `json:"url,omitempty"`
}

type statusResponse struct {
	Store    datasource.Status `json:"store"`
	Level    types.Level       `json:"level"`
	Layers   int               `json:"layers"`
	Streams  int               `json:"streams"`
	Warnings int               `json:"warnings"`
}

type levelsResponse struct {
	Levels  []types.Level `json:"levels"`
	Current types.Level   `json:"current"`
}

type frameResponse struct {
	Frame *atlas.Frame                  `json:"frame"`
	Areas *orbgeojson.FeatureCollection `json:"areas"`
	Peaks *orbgeojson.FeatureCollection `json:"peaks"`
}

type levelRequest struct {
	Level types.Level `json:"level"`
	All   bool        `json:"all"`
}

type zoomRequest struct {
	Zoom *float64 `json:"zoom"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Store:   s.atlas.Store().Status(),
		Level:   s.atlas.Level(),
		Layers:  len(s.board.Layers()),
		Streams: s.hub.Len(),
	}
	if e, err := s.atlas.Engine(); err == nil {
		resp.Warnings = len(e.Warnings())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := s.atlas.Levels()
	if err != nil {
		s.writeAtlasError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levelsResponse{Levels: levels, Current: s.atlas.Level()})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	f := s.atlas.Current()
	if f == nil {
		s.writeAtlasError(w, atlas.ErrNotLoaded)
		return
	}
	writeJSON(w, http.StatusOK, newFrameResponse(f))
}

func (s *Server) handleSetLevel(w http.ResponseWriter, r *http.Request) {
	var req levelRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	level := req.Level
	if req.All {
		level = types.AllLevels
	}
	if !level.Valid() && !level.IsAll() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `missing "level" (or "all": true)`})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	f, err := s.atlas.SetLevel(ctx, level)
	if err != nil {
		s.writeAtlasError(w, err)
		return
	}
	s.log().Info("Level changed", "level", level, "seq", f.Seq, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, newFrameResponse(f))
}

func (s *Server) handleSetZoom(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if req.Zoom == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: `missing "zoom"`})
		return
	}
	if *req.Zoom < 0 || *req.Zoom > 24 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("zoom %v out of range [0, 24]", *req.Zoom)})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	f, err := s.atlas.SetZoom(ctx, *req.Zoom)
	if err != nil {
		s.writeAtlasError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newFrameResponse(f))
}

func (s *Server) handleLayers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.board.Layers())
}

func (s *Server) handleLayer(w http.ResponseWriter, r *http.Request) {
	key := layers.Key(r.PathValue("key"))
	l, ok := s.board.Layer(key)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("no %s layer attached", key)})
		return
	}

	switch key {
	case layers.KeyAreas:
		writeJSON(w, http.StatusOK, geojson.AreasToGeoJSON(l.Areas))
	default:
		writeJSON(w, http.StatusOK, geojson.ClustersToGeoJSON(l.Clusters))
	}
}

func (s *Server) handlePeaks(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("map_name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing map_name"})
		return
	}

	peaks, err := s.atlas.PeaksByMapName(name)
	if err != nil {
		s.writeAtlasError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, geojson.PeaksToGeoJSON(peaks))
}

// handleStream pushes every committed frame (without geometry) as a server-sent event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	frames, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	if f := s.atlas.Current(); f != nil {
		sendFrameEvent(w, flusher, f)
	} else {
		_, _ = fmt.Fprint(w, ": waiting for data\n\n")
		flusher.Flush()
	}

	ticker := time.NewTicker(s.cfg.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case f := <-frames:
			sendFrameEvent(w, flusher, f)
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func sendFrameEvent(w http.ResponseWriter, flusher http.Flusher, f *atlas.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "id: %d\nevent: frame\ndata: %s\n\n", f.Seq, data)
	flusher.Flush()
}

func newFrameResponse(f *atlas.Frame) frameResponse {
	return frameResponse{
		Frame: f,
		Areas: geojson.AreasToGeoJSON(f.Areas),
		Peaks: geojson.ClustersToGeoJSON(f.Clusters),
	}
}

// writeAtlasError maps atlas and load errors to HTTP statuses.
func (s *Server) writeAtlasError(w http.ResponseWriter, err error) {
	var loadErr *datasource.LoadError
	switch {
	case errors.As(err, &loadErr):
		writeJSON(w, http.StatusServiceUnavailable, loadErrorResponse(loadErr))
	case errors.Is(err, atlas.ErrNotLoaded):
		if errors.As(s.atlas.Store().Err(), &loadErr) {
			writeJSON(w, http.StatusServiceUnavailable, loadErrorResponse(loadErr))
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case errors.Is(err, atlas.ErrSuperseded):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
	default:
		s.log().Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func loadErrorResponse(err *datasource.LoadError) errorResponse {
	return errorResponse{Error: err.Error(), Resource: err.Resource, URL: err.URL}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
