package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/gridironlabs/draftpulse/internal/latency"
)

func TestNewTimerSyncEvent_CompensatesPerLatency(t *testing.T) {
	t.Parallel()

	roomID := uuid.New()
	now := time.Now().UTC()

	event := newTimerSyncEvent(roomID, 30000, 300, now)
	if event.Type != EventTypeTimerSync {
		t.Fatalf("type=%q, want %q", event.Type, EventTypeTimerSync)
	}
	if event.CompensatedTimerMS != 30150 {
		t.Fatalf("compensated=%v, want 30150", event.CompensatedTimerMS)
	}
	if event.ServerTimerMS != 30000 || event.EstimatedLatencyMS != 300 {
		t.Fatalf("event echoed wrong inputs: %+v", event)
	}
	if event.RoomID != roomID.String() {
		t.Fatalf("room_id=%q, want %q", event.RoomID, roomID.String())
	}
}

func TestNewTimerSyncEvent_FloorsDisplayedValueAtZero(t *testing.T) {
	t.Parallel()

	// A server timer below zero is a caller precondition violation; the
	// presentation layer still must not show a negative countdown.
	event := newTimerSyncEvent(uuid.New(), -500, 0, time.Now())
	if event.CompensatedTimerMS != 0 {
		t.Fatalf("compensated=%v, want 0", event.CompensatedTimerMS)
	}
}

func dialRoom(t *testing.T, srvURL string, roomID uuid.UUID) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srvURL, "http") + "/ws/draft?room_id=" + roomID.String()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	return conn
}

func TestGateway_BroadcastTimerSyncReachesClient(t *testing.T) {
	t.Parallel()

	cm := NewConnectionManager(DefaultConnectionConfig(), clockwork.NewRealClock())
	mux := http.NewServeMux()
	NewHandler(cm).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	roomID := uuid.New()
	client := dialRoom(t, srv.URL, roomID)
	defer client.Close()

	// Wait for the server side to register the connection.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if total, _ := cm.ConnectionStats(); total == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Seed the server-side tracker for this connection so the broadcast has
	// a latency estimate to compensate with.
	cm.mu.RLock()
	var serverConn *Connection
	for conn := range cm.roomConnections[roomID] {
		serverConn = conn
	}
	cm.mu.RUnlock()
	for _, rtt := range []float64{100, 200, 300} {
		serverConn.Latency.Add(latency.Measurement{RoundTripTimeMS: rtt})
	}

	cm.BroadcastTimerSync(roomID, 30000)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}

	var event TimerSyncEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != EventTypeTimerSync {
		t.Fatalf("type=%q, want %q", event.Type, EventTypeTimerSync)
	}
	if event.EstimatedLatencyMS != 200 {
		t.Fatalf("estimated=%v, want 200", event.EstimatedLatencyMS)
	}
	if event.CompensatedTimerMS != 30100 {
		t.Fatalf("compensated=%v, want 30100", event.CompensatedTimerMS)
	}
}

func TestGateway_BroadcastDuringDisconnectDoesNotPanic(t *testing.T) {
	t.Parallel()

	cm := NewConnectionManager(DefaultConnectionConfig(), clockwork.NewRealClock())
	roomID := uuid.New()

	conn := &Connection{
		ID:      uuid.New().String(),
		RoomID:  roomID,
		Send:    make(chan []byte, 1),
		done:    make(chan struct{}),
		Latency: latency.NewTracker(latency.DefaultWindowSize),
		manager: cm,
	}
	cm.registerConnection(conn)

	// A pump exiting on client disconnect unregisters the connection. A
	// broadcast that snapshotted the room before that must still be able
	// to send without panicking.
	cm.unregisterConnection(conn)

	select {
	case <-conn.done:
	default:
		t.Fatal("unregister did not signal writer shutdown")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("send after unregister panicked: %v", r)
		}
	}()
	select {
	case conn.Send <- []byte(`{"type":"TimerSync"}`):
	default:
		t.Fatal("send buffer unexpectedly full")
	}

	// The room itself is empty now; broadcasting is a no-op, not a crash.
	cm.BroadcastTimerSync(roomID, 30000)
}

func TestNewConnectionManager_ZeroPingIntervalFallsBack(t *testing.T) {
	t.Parallel()

	config := DefaultConnectionConfig()
	config.PingInterval = 0
	cm := NewConnectionManager(config, clockwork.NewRealClock())

	if cm.config.PingInterval != DefaultConnectionConfig().PingInterval {
		t.Fatalf("ping interval=%v, want default %v", cm.config.PingInterval, DefaultConnectionConfig().PingInterval)
	}
}

func TestHandler_RejectsMissingOrBadRoomID(t *testing.T) {
	t.Parallel()

	cm := NewConnectionManager(DefaultConnectionConfig(), clockwork.NewRealClock())
	mux := http.NewServeMux()
	NewHandler(cm).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws/draft")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing room_id status=%d, want 400", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/ws/draft?room_id=not-a-uuid")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad room_id status=%d, want 400", resp.StatusCode)
	}
}

func TestGateway_PongFeedsLatencyTracker(t *testing.T) {
	t.Parallel()

	config := DefaultConnectionConfig()
	config.PingInterval = 50 * time.Millisecond
	cm := NewConnectionManager(config, clockwork.NewRealClock())
	mux := http.NewServeMux()
	NewHandler(cm).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	roomID := uuid.New()
	client := dialRoom(t, srv.URL, roomID)
	defer client.Close()

	// gorilla clients answer pings with pongs from NextReader; keep a read
	// loop running so the pong handler fires.
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, snap := range cm.RoomSnapshots() {
			if snap.RoomID == roomID.String() && snap.Latency.Count > 0 {
				if snap.Latency.CurrentMS < 0 {
					t.Fatalf("negative rtt recorded: %+v", snap.Latency)
				}
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no pong round trip recorded")
}
