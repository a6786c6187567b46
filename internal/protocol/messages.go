package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"
)

// MessageType is the "type" discriminator of a wire envelope.
type MessageType string

const (
	// Inbound from clients.
	MessageTypeJoinRoom     MessageType = "join-room"
	MessageTypeOffer        MessageType = "offer"
	MessageTypeAnswer       MessageType = "answer"
	MessageTypeICECandidate MessageType = "ice-candidate"
	MessageTypePeerMessage  MessageType = "peer-message"

	// Outbound only.
	MessageTypeConnected  MessageType = "connected"
	MessageTypeRoomJoined MessageType = "room-joined"
	MessageTypeUserJoined MessageType = "user-joined"
	MessageTypeUserLeft   MessageType = "user-left"
	MessageTypeError      MessageType = "error"
)

// ClientMessage is one decoded inbound frame. The payload is kept raw so
// each kind can be decoded and validated separately, and so peer-message
// payloads can be relayed structurally intact.
type ClientMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage is an outbound envelope. Error envelopes carry a top-level
// error string and no payload.
type ServerMessage struct {
	Type    MessageType `json:"type,omitempty"`
	Payload any         `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ParseClientMessage decodes one inbound frame.
//
// The envelope itself is decoded strictly (unknown top-level fields and
// trailing data are rejected); payload contents are only inspected by the
// per-kind accessors below.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg ClientMessage
	if err := dec.Decode(&msg); err != nil {
		return ClientMessage{}, err
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("envelope missing type")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return ClientMessage{}, fmt.Errorf("unexpected trailing data")
	}
	return msg, nil
}

// JoinRoomPayload is the payload of a join-room request.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// SessionSignalPayload is the payload of an offer or answer envelope. The
// SDP is relayed verbatim.
type SessionSignalPayload struct {
	To   string `json:"to"`
	From string `json:"from"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors the browser's RTCIceCandidateInit shape.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

func ICECandidateFromPion(init webrtc.ICECandidateInit) ICECandidate {
	return ICECandidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func (c ICECandidate) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

// ICECandidatePayload is the payload of an ice-candidate envelope.
type ICECandidatePayload struct {
	To        string        `json:"to"`
	From      string        `json:"from"`
	Candidate *ICECandidate `json:"candidate"`
}

// PeerMessagePayload is the validated subset of a peer-message payload.
// The full payload, including fields not modeled here, is relayed raw.
type PeerMessagePayload struct {
	Type string `json:"type"`
	From string `json:"from"`
}

// JoinRoom decodes and validates a join-room payload.
func (m ClientMessage) JoinRoom() (JoinRoomPayload, error) {
	var p JoinRoomPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return JoinRoomPayload{}, fmt.Errorf("join-room payload: %w", err)
	}
	if p.RoomID == "" || p.UserID == "" {
		return JoinRoomPayload{}, fmt.Errorf("join-room payload missing roomId or userId")
	}
	return p, nil
}

// SessionSignal decodes and validates an offer or answer payload.
func (m ClientMessage) SessionSignal() (SessionSignalPayload, error) {
	var p SessionSignalPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return SessionSignalPayload{}, fmt.Errorf("%s payload: %w", m.Type, err)
	}
	if p.To == "" || p.From == "" || p.SDP == "" {
		return SessionSignalPayload{}, fmt.Errorf("%s payload missing to, from or sdp", m.Type)
	}
	return p, nil
}

// ICECandidate decodes and validates an ice-candidate payload.
func (m ClientMessage) ICECandidate() (ICECandidatePayload, error) {
	var p ICECandidatePayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return ICECandidatePayload{}, fmt.Errorf("ice-candidate payload: %w", err)
	}
	// The candidate only needs to be present. Its fields are relayed as-is;
	// browsers legitimately send an empty candidate string to signal
	// end-of-candidates.
	if p.To == "" || p.From == "" || p.Candidate == nil {
		return ICECandidatePayload{}, fmt.Errorf("ice-candidate payload missing to, from or candidate")
	}
	return p, nil
}

// PeerMessage decodes and validates the routable fields of a peer-message
// payload.
func (m ClientMessage) PeerMessage() (PeerMessagePayload, error) {
	var p PeerMessagePayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return PeerMessagePayload{}, fmt.Errorf("peer-message payload: %w", err)
	}
	if p.Type == "" || p.From == "" {
		return PeerMessagePayload{}, fmt.Errorf("peer-message payload missing type or from")
	}
	return p, nil
}

// ConnectedPayload is sent once immediately after a connection is accepted.
type ConnectedPayload struct {
	Message string `json:"message"`
}

// RoomJoinedPayload acknowledges a successful join to the joining user.
type RoomJoinedPayload struct {
	RoomID string   `json:"roomId"`
	UserID string   `json:"userId"`
	Users  []string `json:"users"`
}

// UserEventPayload is the payload of user-joined and user-left broadcasts.
type UserEventPayload struct {
	UserID string `json:"userId"`
}

func Connected(message string) ServerMessage {
	return ServerMessage{Type: MessageTypeConnected, Payload: ConnectedPayload{Message: message}}
}

func RoomJoined(roomID, userID string, users []string) ServerMessage {
	return ServerMessage{Type: MessageTypeRoomJoined, Payload: RoomJoinedPayload{RoomID: roomID, UserID: userID, Users: users}}
}

func UserJoined(userID string) ServerMessage {
	return ServerMessage{Type: MessageTypeUserJoined, Payload: UserEventPayload{UserID: userID}}
}

func UserLeft(userID string) ServerMessage {
	return ServerMessage{Type: MessageTypeUserLeft, Payload: UserEventPayload{UserID: userID}}
}

func ErrorMessage(message string) ServerMessage {
	return ServerMessage{Type: MessageTypeError, Error: message}
}
