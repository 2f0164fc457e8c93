// Package gateway implements the Broadcaster: the bridge between the
// inbound chat.ingest stream and subscribed WebSocket clients, and the
// source of firehose truth. Grounded directly on the teacher's
// internal/gateway/server.go Server/BuildMux/Start/handleWebSocket shape,
// re-targeted from a generic event-subscription model to room-scoped
// ChatMessage fan-out.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chatsim/chatsim/internal/svcctx"
)

// Config holds the gateway's own listen/CORS settings, distinct from any
// one room's RoomConfig.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	GraceS         int
}

// Server is the gateway's WebSocket + HTTP surface and owns the
// Broadcaster loop.
type Server struct {
	cfg Config
	svc *svcctx.ServiceContext

	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[string]*Client
	roomSubs map[string]map[*Client]bool

	broadcaster *Broadcaster

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer builds a gateway server bound to svc's bus/validator/safety.
func NewServer(cfg Config, svc *svcctx.ServiceContext) *Server {
	s := &Server{
		cfg:      cfg,
		svc:      svc,
		clients:  make(map[string]*Client),
		roomSubs: make(map[string]map[*Client]bool),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.broadcaster = NewBroadcaster(svc, s.fanOut)
	return s
}

// checkOrigin validates the WebSocket handshake's Origin header against the
// allowlist; an empty allowlist permits all origins (dev mode), and
// non-browser clients sending no Origin header are always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range s.cfg.AllowedOrigins {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("gateway: origin rejected", "origin", origin)
	return false
}

// BuildMux constructs (and caches) the HTTP mux.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	s.mux = mux
	return mux
}

// Start runs the Broadcaster loop and the HTTP/WebSocket listener until ctx
// is cancelled, then drains for up to GraceS seconds.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	grace := s.cfg.GraceS
	if grace <= 0 {
		grace = 5
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.broadcaster.Run(ctx) }()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(grace)*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway starting", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway: listen: %w", err)
	}
	return <-errCh
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("gateway: upgrade failed", "error", err)
		return
	}
	client := NewClient(uuid.NewString(), conn, s)
	s.registerClient(client)
	defer func() {
		s.unregisterClient(client)
		client.Close()
	}()
	client.Run()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := "ok"
	if s.svc.Bus.Degraded() {
		status = "degraded"
	}
	fmt.Fprintf(w, `{"status":%q}`, status)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	clientCount := len(s.clients)
	roomCount := len(s.roomSubs)
	s.mu.RUnlock()

	stats := map[string]any{
		"messages_published": s.broadcaster.Published(),
		"messages_dropped":   s.broadcaster.Dropped(),
		"clients_connected":  clientCount,
		"rooms_subscribed":   roomCount,
		"bus_degraded":       s.svc.Bus.Degraded(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
	slog.Info("gateway: client connected", "id", c.id)
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
	if room := c.RoomID(); room != "" {
		if subs, ok := s.roomSubs[room]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(s.roomSubs, room)
			}
		}
	}
	slog.Info("gateway: client disconnected", "id", c.id)
}

func (s *Server) subscribeClient(c *Client, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomSubs[room] == nil {
		s.roomSubs[room] = make(map[*Client]bool)
	}
	s.roomSubs[room][c] = true
}

// fanOut delivers frame to every client subscribed to room, in the order
// the broadcaster accepted the underlying ingest record (spec.md §5
// "Broadcaster preserves accept order").
func (s *Server) fanOut(room string, frame []byte) {
	s.mu.RLock()
	subs := s.roomSubs[room]
	targets := make([]*Client, 0, len(subs))
	for c := range subs {
		targets = append(targets, c)
	}
	s.mu.RUnlock()
	for _, c := range targets {
		c.enqueueRaw(frame)
	}
}

// StartTestServer listens on a random local port for integration tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	mux := s.BuildMux()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("gateway: listen: " + err.Error())
	}
	s.httpServer = &http.Server{Handler: mux}
	addr = ln.Addr().String()

	start = func() {
		errCh := make(chan error, 1)
		go func() { errCh <- s.broadcaster.Run(ctx) }()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.httpServer.Shutdown(shutdownCtx)
		}()
		s.httpServer.Serve(ln)
	}
	return addr, start
}
