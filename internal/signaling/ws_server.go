package signaling

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/peerwave/signaling-relay/internal/config"
	"github.com/peerwave/signaling-relay/internal/metrics"
	"github.com/peerwave/signaling-relay/internal/protocol"
	"github.com/peerwave/signaling-relay/internal/ratelimit"
)

const connectedGreeting = "Connected to WebRTC signaling server"

// WebSocketServer accepts signaling connections and feeds their frames to
// the Router. Each connection is served by the goroutine gorilla hands us;
// the Router's disconnect handler runs exactly once per connection, on
// close or error alike.
type WebSocketServer struct {
	router  *Router
	log     *slog.Logger
	metrics *metrics.Metrics

	writeTimeout         time.Duration
	maxMessageBytes      int64
	maxMessagesPerSecond int

	upgrader websocket.Upgrader
}

func NewWebSocketServer(cfg config.Config, router *Router, log *slog.Logger, m *metrics.Metrics) *WebSocketServer {
	if log == nil {
		log = slog.Default()
	}
	return &WebSocketServer{
		router:  router,
		log:     log,
		metrics: m,

		writeTimeout:         cfg.WriteTimeout,
		maxMessageBytes:      cfg.MaxMessageBytes,
		maxMessagesPerSecond: cfg.MaxMessagesPerSecond,

		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.AllowedOrigins),
		},
	}
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p := newPeer(conn, s.writeTimeout)
	log := s.log.With("conn_id", p.ID(), "remote_addr", conn.RemoteAddr().String())
	log.Info("websocket connected")

	defer func() {
		s.router.HandleDisconnect(p)
		p.Close()
		log.Info("websocket disconnected")
	}()

	// Accepting a connection has no registry side effect; the acknowledgment
	// goes out before any frame is read.
	if err := p.WriteEnvelope(protocol.Connected(connectedGreeting)); err != nil {
		return
	}

	conn.SetReadLimit(s.maxMessageBytes)
	limiter := ratelimit.NewTokenBucket(ratelimit.RealClock{}, s.maxMessagesPerSecond, s.maxMessagesPerSecond)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		// Limit after reading so the bytes already buffered by the kernel are
		// consumed before a potential close.
		if !limiter.Allow() {
			s.metrics.Inc(metrics.DropReasonRateLimited)
			log.Warn("signaling rate limit exceeded")
			p.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			p.closeWith(websocket.CloseUnsupportedData, "expected text message")
			return
		}

		s.router.HandleFrame(p, data)
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients send no Origin header.
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
