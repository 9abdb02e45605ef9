package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHub_BroadcastEventReachesMonitor(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer conn.Close()

	// Registration goes through the hub's channel; give it a moment before
	// broadcasting so the event is not dropped on an empty client set.
	deadline := time.Now().Add(2 * time.Second)
	var msg WebSocketMessage
	for time.Now().Before(deadline) {
		hub.BroadcastEvent(&ClientEvent{
			Timestamp:  time.Now(),
			ConnID:     "abc123",
			RemoteAddr: "10.0.0.1:1000",
			Kind:       "connected",
		})

		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		_, data, err := conn.ReadMessage()
		if err != nil {
			continue
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		break
	}

	if msg.Type != "client_event" {
		t.Fatalf("Expected a client_event message, got %+v", msg)
	}
}

func TestHub_BroadcastWithoutMonitorsDoesNotBlock(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			hub.BroadcastStats(&HarnessStats{Timestamp: time.Now(), ActiveConnections: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked with no monitors attached")
	}
}
