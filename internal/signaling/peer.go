package signaling

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/peerwave/signaling-relay/internal/protocol"
)

var errPeerClosed = errors.New("peer connection closed")

// peer wraps one websocket connection with single-writer semantics: all
// outbound envelopes for a connection funnel through its write lock, so
// delivery order per destination equals submission order.
type peer struct {
	id   string
	conn *websocket.Conn

	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newPeer(conn *websocket.Conn, writeTimeout time.Duration) *peer {
	return &peer{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (p *peer) ID() string { return p.id }

// WriteEnvelope writes one envelope as a text frame. Writes are
// fire-and-forget: a slow remote is bounded only by the write deadline.
func (p *peer) WriteEnvelope(msg protocol.ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerClosed
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		p.closed = true
		return err
	}
	return nil
}

func (p *peer) Open() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

func (p *peer) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	_ = p.conn.Close()
}

func (p *peer) closeWith(code int, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(p.writeTimeout))
}
