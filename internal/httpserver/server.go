// Package httpserver exposes the read-only admin/health surface and hosts
// the websocket signaling endpoint.
package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/peerwave/signaling-relay/internal/config"
	"github.com/peerwave/signaling-relay/internal/metrics"
	"github.com/peerwave/signaling-relay/internal/room"
)

var ErrServerClosed = http.ErrServerClosed

type BuildInfo struct {
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

// RoomDirectory is the registry surface the admin endpoints read from.
// They must never mutate registry state.
type RoomDirectory interface {
	Stats() room.Stats
	RoomInfo(roomID string) (room.Info, bool)
}

type Server struct {
	log   *slog.Logger
	cfg   config.Config
	build BuildInfo

	rooms   RoomDirectory
	metrics *metrics.Metrics
	started time.Time

	ready atomic.Bool

	router chi.Router
	srv    *http.Server
}

func New(cfg config.Config, logger *slog.Logger, build BuildInfo, rooms RoomDirectory, m *metrics.Metrics, signalingHandler http.Handler) *Server {
	s := &Server{
		log:     logger,
		cfg:     cfg,
		build:   build,
		rooms:   rooms,
		metrics: m,
		started: time.Now(),
		router:  chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger(logger))

	s.registerRoutes(signalingHandler)

	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		// Other timeouts stay zero: /ws is a long-lived upgraded connection.
	}

	return s
}

// Handler returns the configured router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Serve(l net.Listener) error {
	s.ready.Store(true)
	s.log.Info("http server serving", "addr", l.Addr().String())
	return s.srv.Serve(l)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	return s.srv.Shutdown(ctx)
}

func (s *Server) Close() error {
	s.ready.Store(false)
	return s.srv.Close()
}

func (s *Server) registerRoutes(signalingHandler http.Handler) {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, healthResponse{
			Status: "healthy",
			Uptime: time.Since(s.started).Seconds(),
			Stats:  s.rooms.Stats(),
		})
	})

	s.router.Get("/rooms", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, s.rooms.Stats())
	})

	s.router.Get("/rooms/{roomID}", func(w http.ResponseWriter, r *http.Request) {
		info, ok := s.rooms.RoomInfo(chi.URLParam(r, "roomID"))
		if !ok {
			WriteJSON(w, http.StatusNotFound, map[string]any{"error": "Room not found"})
			return
		}
		WriteJSON(w, http.StatusOK, info)
	})

	s.router.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, s.build)
	})

	s.router.Method(http.MethodGet, "/metrics", metrics.PrometheusHandler(s.metrics))

	if signalingHandler != nil {
		s.router.Handle("/ws", signalingHandler)
	}
}

type healthResponse struct {
	Status string     `json:"status"`
	Uptime float64    `json:"uptime"`
	Stats  room.Stats `json:"stats"`
}

// WriteJSON writes a JSON response body and sets the Content-Type header.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
