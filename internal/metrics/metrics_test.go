package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetrics_IncAndSnapshot(t *testing.T) {
	m := New()
	m.Inc(UserJoined)
	m.Inc(UserJoined)
	m.Inc(RoomCreated)

	if got := m.Get(UserJoined); got != 2 {
		t.Fatalf("user_joined=%d, want 2", got)
	}
	if got := m.Get("never_incremented"); got != 0 {
		t.Fatalf("unknown counter=%d, want 0", got)
	}

	snap := m.Snapshot()
	m.Inc(RoomCreated)
	if snap[RoomCreated] != 1 {
		t.Fatalf("snapshot must be a copy, got %d", snap[RoomCreated])
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	m.Inc(UserJoined)
	if m.Get(UserJoined) != 0 {
		t.Fatalf("nil registry must read zero")
	}
	if m.Snapshot() != nil {
		t.Fatalf("nil registry snapshot must be nil")
	}
}

func TestPrometheusHandler(t *testing.T) {
	m := New()
	m.Inc(UserJoined)
	m.Inc(UserJoined)
	m.Inc(RoomDeleted)

	rec := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status=%d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"# TYPE signaling_relay_events_total counter",
		`signaling_relay_events_total{event="user_joined"} 2`,
		`signaling_relay_events_total{event="room_deleted"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestPrometheusHandler_NilRegistry(t *testing.T) {
	rec := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 500 {
		t.Fatalf("status=%d, want 500", rec.Code)
	}
}
