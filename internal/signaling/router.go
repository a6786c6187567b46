package signaling

import (
	"fmt"
	"log/slog"

	"github.com/peerwave/signaling-relay/internal/metrics"
	"github.com/peerwave/signaling-relay/internal/protocol"
	"github.com/peerwave/signaling-relay/internal/room"
)

// Client is the router's view of one live transport connection.
type Client interface {
	room.Conn
	ID() string
}

// Router decodes inbound frames, validates them per message kind and
// dispatches to the room registry.
//
// Failure reporting is intentionally asymmetric, matching the protocol
// contract: decode failures, join-room failures and unknown kinds are
// echoed to the sender as error envelopes; invalid or unroutable
// offer/answer/ice-candidate/peer-message traffic is logged and dropped,
// except that an unreachable offer/answer target is reported back to the
// originating user. No failure on one connection's frame ever touches
// another connection.
type Router struct {
	rooms   *room.Manager
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewRouter(rooms *room.Manager, log *slog.Logger, m *metrics.Metrics) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{rooms: rooms, log: log, metrics: m}
}

// HandleFrame processes one inbound text frame from the given client.
func (r *Router) HandleFrame(c Client, data []byte) {
	// A corrupted registry or a panicking codepath must not take down the
	// other connections; report to the sender and keep serving.
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic while handling frame", "conn_id", c.ID(), "recover", rec)
			_ = c.WriteEnvelope(protocol.ErrorMessage("Internal server error"))
		}
	}()

	msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		r.metrics.Inc(metrics.DropReasonMalformed)
		r.log.Warn("malformed frame", "conn_id", c.ID(), "err", err)
		_ = c.WriteEnvelope(protocol.ErrorMessage("Invalid message format"))
		return
	}

	r.log.Debug("received message", "conn_id", c.ID(), "type", msg.Type)

	switch msg.Type {
	case protocol.MessageTypeJoinRoom:
		r.handleJoinRoom(c, msg)
	case protocol.MessageTypeOffer, protocol.MessageTypeAnswer:
		r.handleSessionSignal(c, msg)
	case protocol.MessageTypeICECandidate:
		r.handleICECandidate(c, msg)
	case protocol.MessageTypePeerMessage:
		r.handlePeerMessage(c, msg)
	default:
		r.metrics.Inc(metrics.DropReasonUnknownType)
		r.log.Warn("unknown message type", "conn_id", c.ID(), "type", msg.Type)
		_ = c.WriteEnvelope(protocol.ErrorMessage(fmt.Sprintf("Unknown message type: %s", msg.Type)))
	}
}

// HandleDisconnect removes whatever user currently owns the connection.
// It is safe to call more than once for the same connection.
func (r *Router) HandleDisconnect(c Client) {
	r.rooms.CleanupConn(c)
}

func (r *Router) handleJoinRoom(c Client, msg protocol.ClientMessage) {
	p, err := msg.JoinRoom()
	if err != nil {
		r.metrics.Inc(metrics.DropReasonInvalidPayload)
		_ = c.WriteEnvelope(protocol.ErrorMessage("Missing roomId or userId"))
		return
	}

	joined, err := r.rooms.JoinRoom(p.RoomID, p.UserID, c)
	if err != nil {
		r.log.Error("join failed", "conn_id", c.ID(), "user_id", p.UserID, "room_id", p.RoomID, "err", err)
		_ = c.WriteEnvelope(protocol.ErrorMessage("Failed to join room"))
		return
	}
	if !joined {
		_ = c.WriteEnvelope(protocol.ErrorMessage("Failed to join room"))
		return
	}

	_ = c.WriteEnvelope(protocol.RoomJoined(p.RoomID, p.UserID, r.rooms.RoomUsers(p.RoomID)))
}

func (r *Router) handleSessionSignal(c Client, msg protocol.ClientMessage) {
	p, err := msg.SessionSignal()
	if err != nil {
		// Dropped without a sender notification, unlike join-room.
		r.metrics.Inc(metrics.DropReasonInvalidPayload)
		r.log.Warn("invalid signal payload", "conn_id", c.ID(), "type", msg.Type, "err", err)
		return
	}

	relayed := r.rooms.SendToUser(p.To, protocol.ServerMessage{Type: msg.Type, Payload: p})
	if !relayed {
		r.metrics.Inc(metrics.DropReasonUnroutable)
		r.log.Warn("signal target unreachable", "type", msg.Type, "from", p.From, "to", p.To)
		r.rooms.SendToUser(p.From, protocol.ErrorMessage(fmt.Sprintf("Failed to send %s to %s", msg.Type, p.To)))
	}
}

func (r *Router) handleICECandidate(c Client, msg protocol.ClientMessage) {
	p, err := msg.ICECandidate()
	if err != nil {
		r.metrics.Inc(metrics.DropReasonInvalidPayload)
		r.log.Warn("invalid ice-candidate payload", "conn_id", c.ID(), "err", err)
		return
	}

	// Candidates are numerous and best effort; an unreachable target is
	// logged, never echoed back to the sender.
	if !r.rooms.SendToUser(p.To, protocol.ServerMessage{Type: protocol.MessageTypeICECandidate, Payload: p}) {
		r.metrics.Inc(metrics.DropReasonUnroutable)
		r.log.Warn("ice candidate target unreachable", "from", p.From, "to", p.To)
	}
}

func (r *Router) handlePeerMessage(c Client, msg protocol.ClientMessage) {
	p, err := msg.PeerMessage()
	if err != nil {
		r.metrics.Inc(metrics.DropReasonInvalidPayload)
		r.log.Warn("invalid peer-message payload", "conn_id", c.ID(), "err", err)
		return
	}

	roomID, ok := r.rooms.UserRoom(p.From)
	if !ok {
		r.metrics.Inc(metrics.DropReasonUnroutable)
		r.log.Warn("peer-message from unknown or roomless user", "from", p.From)
		return
	}

	// The payload is relayed structurally intact, fields beyond type/from
	// included.
	r.rooms.BroadcastToRoom(roomID, protocol.ServerMessage{Type: protocol.MessageTypePeerMessage, Payload: msg.Payload}, p.From)
}
