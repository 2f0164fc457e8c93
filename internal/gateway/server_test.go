package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatsim/chatsim/internal/chatmodel"
	"github.com/chatsim/chatsim/internal/wsproto"
)

func wsURL(addr string) string {
	return "ws://" + addr + "/ws"
}

func TestServerCheckOriginAllowsEmptyAllowlist(t *testing.T) {
	s := NewServer(Config{}, newTestServiceContext(t))
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example")
	if !s.checkOrigin(req) {
		t.Fatal("expected an empty allowlist to permit all origins")
	}
}

func TestServerCheckOriginEnforcesAllowlist(t *testing.T) {
	s := NewServer(Config{AllowedOrigins: []string{"https://good.example"}}, newTestServiceContext(t))
	good := httptest.NewRequest(http.MethodGet, "/ws", nil)
	good.Header.Set("Origin", "https://good.example")
	bad := httptest.NewRequest(http.MethodGet, "/ws", nil)
	bad.Header.Set("Origin", "https://evil.example")
	if !s.checkOrigin(good) {
		t.Fatal("expected an allowlisted origin to pass")
	}
	if s.checkOrigin(bad) {
		t.Fatal("expected a non-allowlisted origin to be rejected")
	}
}

func TestWebSocketSubscribeAndReceivesFanOut(t *testing.T) {
	svc := newTestServiceContext(t)
	s := NewServer(Config{}, svc)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addr, start := StartTestServer(s, ctx)
	go start()
	time.Sleep(50 * time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(addr), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub, _ := json.Marshal(wsproto.SubscribeFrame{Type: wsproto.TypeSubscribe, RoomID: "room:demo"})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read subscribed ack: %v", err)
	}
	var ack wsproto.SubscribedFrame
	if err := json.Unmarshal(raw, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Type != wsproto.TypeSubscribed || ack.RoomID != "room:demo" {
		t.Fatalf("unexpected ack: %+v", ack)
	}

	// Give the broadcaster's Run loop a moment to finish EnsureGroup before
	// publishing, since it runs in its own goroutine started by start().
	time.Sleep(50 * time.Millisecond)

	msg := chatmodel.ChatMessage{
		Envelope: chatmodel.Envelope{SchemaName: chatmodel.SchemaChatMessage, SchemaVersion: 1, ID: "h1", RoomID: "room:demo", TS: 1},
		Origin:   chatmodel.OriginHuman,
		UserID:   "u1",
		Content:  "hello there",
	}
	payload, _ := json.Marshal(msg)
	if _, err := svc.Bus.Publish(ctx, streamIngest, payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read fanned-out frame: %v", err)
	}
	if !strings.Contains(string(raw), "hello there") {
		t.Fatalf("expected the fanned-out frame to contain the message content, got %s", raw)
	}
}

func TestWebSocketFanOutSkipsOtherRooms(t *testing.T) {
	svc := newTestServiceContext(t)
	s := NewServer(Config{}, svc)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addr, start := StartTestServer(s, ctx)
	go start()
	time.Sleep(50 * time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(addr), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub, _ := json.Marshal(wsproto.SubscribeFrame{Type: wsproto.TypeSubscribe, RoomID: "room:other"})
	conn.WriteMessage(websocket.TextMessage, sub)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read subscribed ack: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	msg := chatmodel.ChatMessage{
		Envelope: chatmodel.Envelope{SchemaName: chatmodel.SchemaChatMessage, SchemaVersion: 1, ID: "h2", RoomID: "room:demo", TS: 1},
		Origin:   chatmodel.OriginHuman,
		UserID:   "u1",
		Content:  "not for you",
	}
	payload, _ := json.Marshal(msg)
	if _, err := svc.Bus.Publish(ctx, streamIngest, payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected no frame for a client subscribed to a different room")
	}
}

func TestHandleHealthReportsOK(t *testing.T) {
	svc := newTestServiceContext(t)
	s := NewServer(Config{}, svc)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.handleHealth(rec, req)
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("expected ok status with a healthy bus, got %s", rec.Body.String())
	}
}

func TestHandleStatsReportsConnectedClients(t *testing.T) {
	svc := newTestServiceContext(t)
	s := NewServer(Config{}, svc)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addr, start := StartTestServer(s, ctx)
	go start()
	time.Sleep(50 * time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(addr), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	s.handleStats(rec, req)
	var stats map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if int(stats["clients_connected"].(float64)) != 1 {
		t.Fatalf("expected 1 connected client, got %+v", stats["clients_connected"])
	}
}
