package gateway

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatsim/chatsim/internal/wsproto"
)

// outboundQueueSize bounds each client's pending-send queue. When full, the
// oldest queued frame is dropped (spec.md §4.3 "Backpressure") — the
// broadcaster never blocks upstream consumption on a slow client.
const outboundQueueSize = 256

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one subscribed WebSocket connection. Authored fresh (absent
// from the retrieved pack) in the teacher's per-connection-goroutine idiom:
// a buffered outbound channel drained by a dedicated write pump, a read
// pump that only handles the initial subscribe handshake and keepalives.
// Only the write pump ever calls conn.WriteMessage, since gorilla/websocket
// connections are not safe for concurrent writers.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server

	roomID  atomic.Value // string, empty until subscribed
	send    chan []byte
	dropped atomic.Int64

	closed chan struct{}
}

// NewClient wraps conn for fan-out delivery.
func NewClient(id string, conn *websocket.Conn, server *Server) *Client {
	c := &Client{
		id:     id,
		conn:   conn,
		server: server,
		send:   make(chan []byte, outboundQueueSize),
		closed: make(chan struct{}),
	}
	c.roomID.Store("")
	return c
}

// RoomID returns the room this client has subscribed to, or "" if none yet.
func (c *Client) RoomID() string {
	v, _ := c.roomID.Load().(string)
	return v
}

// Dropped returns the count of frames dropped due to a full outbound queue.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

// Enqueue marshals and queues frame for delivery. On a full queue the
// oldest queued frame is dropped first (FIFO eviction) rather than blocking
// the caller, which is always the broadcaster's fan-out path.
func (c *Client) Enqueue(frame wsproto.MessageFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.enqueueRaw(payload)
}

func (c *Client) enqueueRaw(payload []byte) {
	select {
	case c.send <- payload:
		return
	default:
	}
	select {
	case <-c.send:
		c.dropped.Add(1)
	default:
	}
	select {
	case c.send <- payload:
	default:
		c.dropped.Add(1)
	}
}

// Run drives the read and write pumps until the connection closes.
func (c *Client) Run() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	c.readPump()
	<-done
}

// readPump handles the subscribe handshake and discards anything else the
// client sends (this protocol is server-push only beyond subscribe).
func (c *Client) readPump() {
	defer close(c.closed)
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var sub wsproto.SubscribeFrame
		if err := json.Unmarshal(raw, &sub); err != nil {
			continue
		}
		if sub.Type != wsproto.TypeSubscribe || sub.RoomID == "" {
			continue
		}
		c.roomID.Store(sub.RoomID)
		c.server.subscribeClient(c, sub.RoomID)
		ack, _ := json.Marshal(wsproto.SubscribedFrame{Type: wsproto.TypeSubscribed, RoomID: sub.RoomID})
		c.enqueueRaw(ack)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				slog.Debug("gateway: write failed", "client", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }
