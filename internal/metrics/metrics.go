package metrics

import "sync"

// Event counter names.
const (
	RoomCreated        = "room_created"
	RoomDeleted        = "room_deleted"
	UserJoined         = "user_joined"
	UserLeft           = "user_left"
	EnvelopeRelayed    = "envelope_relayed"
	BroadcastDelivered = "broadcast_delivered"
	SendFailed         = "send_failed"

	DropReasonMalformed      = "dropped_malformed"
	DropReasonInvalidPayload = "dropped_invalid_payload"
	DropReasonUnknownType    = "dropped_unknown_type"
	DropReasonRateLimited    = "dropped_rate_limited"
	DropReasonUnroutable     = "dropped_unroutable"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The zero value is usable; a nil *Metrics is also accepted by all methods
// so components can run without a registry wired in.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{m: make(map[string]uint64)}
}

func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		snap[k] = v
	}
	return snap
}
