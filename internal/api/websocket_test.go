package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lightmanager/lightmanager/internal/channel"
	"github.com/lightmanager/lightmanager/internal/event"
	"github.com/lightmanager/lightmanager/internal/infrastructure/config"
	"github.com/lightmanager/lightmanager/internal/infrastructure/logging"
	"github.com/lightmanager/lightmanager/internal/session"
)

// =============================================================================
// Helpers
// =============================================================================

func testHub() *Hub {
	return NewHub(config.WebSocketConfig{PingInterval: 5, PongTimeout: 5, MaxMessageSize: 4096}, logging.Discard())
}

// dialStream starts a test server with hub and opens a WebSocket to it.
func dialStream(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	deps := testDeps()
	deps.Hub = hub
	ts := httptest.NewServer(testServer(t, deps).buildRouter())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func subscribe(t *testing.T, conn *websocket.Conn, streams ...string) {
	t.Helper()
	err := conn.WriteJSON(map[string]any{
		"type":    WSTypeSubscribe,
		"id":      "sub-1",
		"payload": WSSubscribePayload{Streams: streams},
	})
	if err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readFrame(t, conn); msg.Type != WSTypeResponse || msg.ID != "sub-1" {
		t.Fatalf("subscribe reply = %+v", msg)
	}
}

// =============================================================================
// Stream Tests
// =============================================================================

func TestWebSocket_ChannelChanged(t *testing.T) {
	hub := testHub()
	conn := dialStream(t, hub)
	subscribe(t, conn, StreamChannelChanged)

	hub.ChannelChanged(channel.Channel{ID: 2, Pin: "GPIO27", State: channel.Asserted}, channel.Deasserted)

	msg := readFrame(t, conn)
	if msg.Type != WSTypeEvent || msg.Stream != StreamChannelChanged {
		t.Fatalf("frame = %+v", msg)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload = %T", msg.Payload)
	}
	if payload["id"] != float64(2) || payload["state"] != "asserted" || payload["previous"] != "deasserted" {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebSocket_MessageReceived(t *testing.T) {
	hub := testHub()
	conn := dialStream(t, hub)
	subscribe(t, conn, StreamMessageReceived)

	hub.Observe(context.Background(), session.Observation{
		Topic:      "/hq/main/lights",
		AuditTopic: "/audit/hq/main/lights",
		Event:      event.Event{UUID: "u-1", Type: "TOGGLE", Source: "panel"},
		Handled:    true,
		AuditErr:   errors.New("publish failed"),
	})

	msg := readFrame(t, conn)
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var ev MessageEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	want := MessageEvent{
		Topic:      "/hq/main/lights",
		AuditTopic: "/audit/hq/main/lights",
		UUID:       "u-1",
		Type:       "TOGGLE",
		Source:     "panel",
		Handled:    true,
		AuditOK:    false,
	}
	if ev != want {
		t.Errorf("event = %+v, want %+v", ev, want)
	}
}

func TestWebSocket_UnsubscribedStreamNotDelivered(t *testing.T) {
	hub := testHub()
	conn := dialStream(t, hub)
	subscribe(t, conn, StreamMessageReceived)

	hub.ChannelChanged(channel.Channel{ID: 1, Pin: "GPIO17"}, channel.Asserted)
	hub.Observe(context.Background(), session.Observation{Event: event.Event{Type: "TOGGLE"}})

	// Frames are delivered in order, so the first one must be the message.
	if msg := readFrame(t, conn); msg.Stream != StreamMessageReceived {
		t.Errorf("stream = %q, want %q", msg.Stream, StreamMessageReceived)
	}
}

func TestWebSocket_PingAndUnknown(t *testing.T) {
	conn := dialStream(t, testHub())

	if err := conn.WriteJSON(map[string]string{"type": WSTypePing, "id": "p1"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readFrame(t, conn); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("ping reply = %+v", msg)
	}

	if err := conn.WriteJSON(map[string]string{"type": "reboot", "id": "x"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readFrame(t, conn); msg.Type != WSTypeError {
		t.Errorf("unknown reply = %+v", msg)
	}
}

func TestWebSocket_HubRunClosesClients(t *testing.T) {
	hub := testHub()
	conn := dialStream(t, hub)
	subscribe(t, conn, StreamChannelChanged)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if n := hub.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d after shutdown", n)
	}
}

func TestWebSocket_NoHub(t *testing.T) {
	rec := get(t, testServer(t, testDeps()), "/api/v1/ws")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
