package room

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/peerwave/signaling-relay/internal/metrics"
	"github.com/peerwave/signaling-relay/internal/protocol"
)

// Conn is the transport handle used to deliver envelopes to a user. It is
// exclusively owned by the user record for as long as the user is
// registered, and must be comparable so it can key the reverse index.
type Conn interface {
	// WriteEnvelope writes one envelope to the connection's outbound
	// buffer. It must not block on the remote peer.
	WriteEnvelope(protocol.ServerMessage) error

	// Open reports whether the connection is still writable.
	Open() bool
}

// Stats is the registry-wide room/user count.
type Stats struct {
	TotalRooms int `json:"totalRooms"`
	TotalUsers int `json:"totalUsers"`
}

// Info is a read-only snapshot of one room.
type Info struct {
	Users     []string  `json:"users"`
	CreatedAt time.Time `json:"createdAt"`
}

type user struct {
	id     string
	conn   Conn
	roomID string
}

type roomState struct {
	id        string
	members   map[string]*user
	createdAt time.Time
}

// Manager is the authoritative connection registry.
//
// Connections are handled by one goroutine each, so every mutating
// operation takes the single registry mutex; deliveries happen outside the
// lock over a membership snapshot, so a user removed mid-broadcast neither
// receives the message nor blocks delivery to others.
type Manager struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	rooms map[string]*roomState
	users map[string]*user
	conns map[Conn]string // reverse index: connection -> user id
}

func NewManager(log *slog.Logger, m *metrics.Metrics) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:     log,
		metrics: m,
		now:     time.Now,
		rooms:   make(map[string]*roomState),
		users:   make(map[string]*user),
		conns:   make(map[Conn]string),
	}
}

// CreateRoom ensures the named room exists and returns its current info.
// Creation is idempotent.
func (m *Manager) CreateRoom(roomID string) Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.createRoomLocked(roomID)
	return Info{Users: memberIDsLocked(r), CreatedAt: r.createdAt}
}

func (m *Manager) createRoomLocked(roomID string) *roomState {
	if r, ok := m.rooms[roomID]; ok {
		return r
	}
	r := &roomState{
		id:        roomID,
		members:   make(map[string]*user),
		createdAt: m.now(),
	}
	m.rooms[roomID] = r
	m.metrics.Inc(metrics.RoomCreated)
	m.log.Info("room created", "room_id", roomID)
	return r
}

// JoinRoom registers the user in the named room, creating the room if
// needed and broadcasting user-joined to the other members.
//
// It returns false with a nil error when the user is already a member of
// that room (no-op). A user registered in a different room is switched:
// the old room sees a single user-left broadcast before the join. A
// non-nil error means the registry found its own state inconsistent; the
// join is aborted and the inconsistency repaired so a retry can succeed.
func (m *Manager) JoinRoom(roomID, userID string, conn Conn) (bool, error) {
	m.mu.Lock()

	var left *pendingBroadcast
	if existing, ok := m.users[userID]; ok {
		if existing.roomID == roomID {
			m.mu.Unlock()
			m.log.Debug("user already in room", "user_id", userID, "room_id", roomID)
			return false, nil
		}
		var err error
		left, err = m.removeLocked(existing)
		if err != nil {
			m.mu.Unlock()
			return false, err
		}
	}

	r := m.createRoomLocked(roomID)
	u := &user{id: userID, conn: conn, roomID: roomID}
	r.members[userID] = u
	m.users[userID] = u
	m.conns[conn] = userID

	joined := m.snapshotLocked(r, userID)
	m.mu.Unlock()

	m.metrics.Inc(metrics.UserJoined)
	m.log.Info("user joined room", "user_id", userID, "room_id", roomID)

	if left != nil {
		m.deliver(left.targets, protocol.UserLeft(userID))
	}
	m.deliver(joined, protocol.UserJoined(userID))
	return true, nil
}

// LeaveRoom removes the user from their room, broadcasting exactly one
// user-left to the remaining members and deleting the room if it became
// empty. It returns false when the user is not registered.
func (m *Manager) LeaveRoom(userID string) bool {
	m.mu.Lock()
	u, ok := m.users[userID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	left, err := m.removeLocked(u)
	m.mu.Unlock()

	if err != nil {
		// The user record was still deleted; log for operators.
		m.log.Error("registry inconsistency during leave", "user_id", userID, "err", err)
	}
	if left != nil {
		m.deliver(left.targets, protocol.UserLeft(userID))
	}
	return true
}

type pendingBroadcast struct {
	targets []Conn
}

// removeLocked deregisters the user and returns the user-left broadcast
// for the survivors of their room, if any. The returned error reports a
// user whose roomID had no backing room; the user is deregistered anyway
// so the maps end up consistent.
func (m *Manager) removeLocked(u *user) (*pendingBroadcast, error) {
	delete(m.users, u.id)
	delete(m.conns, u.conn)
	m.metrics.Inc(metrics.UserLeft)

	r, ok := m.rooms[u.roomID]
	if !ok {
		return nil, fmt.Errorf("user %q references missing room %q", u.id, u.roomID)
	}

	delete(r.members, u.id)
	m.log.Info("user left room", "user_id", u.id, "room_id", u.roomID)

	if len(r.members) == 0 {
		delete(m.rooms, u.roomID)
		m.metrics.Inc(metrics.RoomDeleted)
		m.log.Info("room deleted", "room_id", u.roomID)
		return nil, nil
	}
	return &pendingBroadcast{targets: m.snapshotLocked(r, u.id)}, nil
}

// SendToUser delivers one envelope to the named user's connection. It
// returns false when the user is unknown or the connection is no longer
// writable; a closed peer is an expected condition, never a panic.
func (m *Manager) SendToUser(userID string, msg protocol.ServerMessage) bool {
	m.mu.Lock()
	u, ok := m.users[userID]
	m.mu.Unlock()
	if !ok || !u.conn.Open() {
		return false
	}

	if err := u.conn.WriteEnvelope(msg); err != nil {
		m.metrics.Inc(metrics.SendFailed)
		m.log.Warn("send to user failed", "user_id", userID, "err", err)
		return false
	}
	m.metrics.Inc(metrics.EnvelopeRelayed)
	return true
}

// BroadcastToRoom delivers one envelope to every member of the room whose
// connection is open, skipping excludeUserID. Fan-out is best effort:
// unwritable members are skipped silently. Unknown rooms deliver to no one.
func (m *Manager) BroadcastToRoom(roomID string, msg protocol.ServerMessage, excludeUserID string) {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	targets := m.snapshotLocked(r, excludeUserID)
	m.mu.Unlock()

	m.deliver(targets, msg)
}

// CleanupConn resolves a connection handle to its owning user and removes
// that user. Unknown handles (including handles already cleaned up) are a
// no-op. Lookup and removal happen under one lock acquisition so a stale
// handle's cleanup can never tear down a registration the same user id
// re-established on a newer connection.
func (m *Manager) CleanupConn(conn Conn) {
	m.mu.Lock()
	userID, ok := m.conns[conn]
	if !ok {
		m.mu.Unlock()
		return
	}
	left, err := m.removeLocked(m.users[userID])
	m.mu.Unlock()

	if err != nil {
		m.log.Error("registry inconsistency during cleanup", "user_id", userID, "err", err)
	}
	if left != nil {
		m.deliver(left.targets, protocol.UserLeft(userID))
	}
}

// UserRoom returns the room the user is currently in.
func (m *Manager) UserRoom(userID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return "", false
	}
	return u.roomID, true
}

// RoomUsers returns the ids of the room's current members. Unknown rooms
// return an empty slice.
func (m *Manager) RoomUsers(roomID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return []string{}
	}
	return memberIDsLocked(r)
}

// Stats reports registry-wide counts for the admin surface.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{TotalRooms: len(m.rooms), TotalUsers: len(m.users)}
}

// RoomInfo reports one room's members and creation time.
func (m *Manager) RoomInfo(roomID string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return Info{}, false
	}
	return Info{Users: memberIDsLocked(r), CreatedAt: r.createdAt}, true
}

func (m *Manager) snapshotLocked(r *roomState, excludeUserID string) []Conn {
	targets := make([]Conn, 0, len(r.members))
	for id, member := range r.members {
		if id == excludeUserID {
			continue
		}
		targets = append(targets, member.conn)
	}
	return targets
}

func (m *Manager) deliver(targets []Conn, msg protocol.ServerMessage) {
	for _, conn := range targets {
		if !conn.Open() {
			continue
		}
		if err := conn.WriteEnvelope(msg); err != nil {
			m.metrics.Inc(metrics.SendFailed)
			m.log.Debug("broadcast delivery failed", "err", err)
			continue
		}
		m.metrics.Inc(metrics.BroadcastDelivered)
	}
}

func memberIDsLocked(r *roomState) []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}
