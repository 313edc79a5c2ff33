package events

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	router := gin.New()
	router.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func TestConnectionGreeting(t *testing.T) {
	_, srv := newTestHub(t)
	conn := dial(t, srv)

	env := readEnvelope(t, conn)
	if env.Event != "connection_established" {
		t.Fatalf("first event = %q, want connection_established", env.Event)
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data type %T, want object", env.Data)
	}
	if data["clientId"] == "" {
		t.Fatal("greeting missing clientId")
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub, srv := newTestHub(t)
	c1 := dial(t, srv)
	c2 := dial(t, srv)
	readEnvelope(t, c1)
	readEnvelope(t, c2)

	waitForClients(t, hub, 2)
	hub.Broadcast("incident_detected", map[string]any{"issueType": "high_cpu"})

	for _, conn := range []*websocket.Conn{c1, c2} {
		env := readEnvelope(t, conn)
		if env.Event != "incident_detected" {
			t.Fatalf("event = %q, want incident_detected", env.Event)
		}
		data := env.Data.(map[string]any)
		if data["issueType"] != "high_cpu" {
			t.Fatalf("payload = %v", data)
		}
	}
}

func TestDisconnectRemovesClient(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv)
	readEnvelope(t, conn)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Broadcasting to an empty hub must not panic or block.
	hub.Broadcast("metrics_update", nil)
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
}
