package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ridedispatch/internal/service"
)

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitConnected(t *testing.T, hub *Hub, userID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Connected(userID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d sessions for %s, got %d", n, userID, hub.Connected(userID))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_DeliversToEverySessionOfRecipient(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)

	phone := dial(t, srv, "driver-1")
	tablet := dial(t, srv, "driver-1")
	other := dial(t, srv, "driver-2")
	waitConnected(t, hub, "driver-1", 2)
	waitConnected(t, hub, "driver-2", 1)

	hub.Emit("driver-1", service.EventRideUnavailable, service.RideClosedPayload{RideRequestID: "ride-1"})

	for _, conn := range []*websocket.Conn{phone, tablet} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg struct {
			Event   string                    `json:"event"`
			Payload service.RideClosedPayload `json:"payload"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Event != string(service.EventRideUnavailable) || msg.Payload.RideRequestID != "ride-1" {
			t.Errorf("unexpected message: %s", data)
		}
	}

	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("another user must not receive the event")
	}
}

func TestHub_EmitWithoutSessionIsNoop(t *testing.T) {
	hub := NewHub(nil)
	hub.Emit("nobody", service.EventRideExpired, nil)
	if hub.Connected("nobody") != 0 {
		t.Error("emitting must not create sessions")
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(nil)
	srv := newTestServer(t, hub)

	conn := dial(t, srv, "rider-1")
	waitConnected(t, hub, "rider-1", 1)

	conn.Close()
	waitConnected(t, hub, "rider-1", 0)
}

func TestHub_DropsWhenBufferFull(t *testing.T) {
	hub := NewHub(nil)
	s := &session{userID: "rider-1", send: make(chan []byte, 1)}
	hub.sessions["rider-1"] = map[*session]struct{}{s: {}}

	hub.Emit("rider-1", service.EventRideAccepted, nil)
	hub.Emit("rider-1", service.EventRideAccepted, nil)

	if len(s.send) != 1 {
		t.Errorf("expected the second event dropped, buffer holds %d", len(s.send))
	}
}
