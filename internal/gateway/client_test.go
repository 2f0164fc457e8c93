package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatsim/chatsim/internal/wsproto"
)

// TestClientEnqueueRawEvictsOldestOnFullQueue drives enqueueRaw directly on
// a subscribed client, pushing outboundQueueSize+50 frames in a tight loop
// while the client's write pump drains the queue concurrently, to exercise
// the FIFO-eviction path once the queue fills.
func TestClientEnqueueRawEvictsOldestOnFullQueue(t *testing.T) {
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
	conn.WriteMessage(websocket.TextMessage, sub)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read subscribed ack: %v", err)
	}

	s.mu.RLock()
	var c *Client
	for _, client := range s.clients {
		c = client
	}
	s.mu.RUnlock()
	if c == nil {
		t.Fatal("expected exactly one registered client")
	}

	for i := 0; i < outboundQueueSize+50; i++ {
		c.enqueueRaw([]byte("frame"))
	}
	if c.Dropped() == 0 {
		t.Fatal("expected enqueueRaw to evict and count drops once the queue fills")
	}
}

func TestClientRoomIDEmptyUntilSubscribed(t *testing.T) {
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

	s.mu.RLock()
	var c *Client
	for _, client := range s.clients {
		c = client
	}
	s.mu.RUnlock()
	if c == nil {
		t.Fatal("expected exactly one registered client")
	}
	if c.RoomID() != "" {
		t.Fatalf("expected empty RoomID before subscribing, got %q", c.RoomID())
	}
}
