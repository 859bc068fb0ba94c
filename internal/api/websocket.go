package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// DefaultWSConnectionsPerIP applies when HubConfig.MaxPerIP is zero
	DefaultWSConnectionsPerIP = 5

	wsWriteWait = 5 * time.Second
)

// Event is the envelope of every message pushed to clients.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// HubConfig configures a WebSocketHub.
type HubConfig struct {
	Origins  []string // origin patterns; nil allows localhost only
	MaxPerIP int
	Logger   *slog.Logger
}

type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// WebSocketHub fans broadcasts out to every connected client.
// Only the Run goroutine writes to connections.
type WebSocketHub struct {
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	done       chan struct{}
	mu         sync.RWMutex

	upgrader websocket.Upgrader
	limiter  *ConnLimiter
	logger   *slog.Logger
}

// NewWebSocketHub creates a hub. Call Run before accepting connections.
func NewWebSocketHub(cfg HubConfig) *WebSocketHub {
	if cfg.MaxPerIP <= 0 {
		cfg.MaxPerIP = DefaultWSConnectionsPerIP
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := originsOrDefault(cfg.Origins)

	h := &WebSocketHub{
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		limiter:    NewConnLimiter(cfg.MaxPerIP),
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if originAllowed(origin, origins) {
				return true
			}
			logger.Warn("⚠️ WebSocket connection rejected", slog.String("origin", origin))
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// originAllowed matches origin against go-chi/cors style patterns. Requests
// without an Origin header do not come from a browser and are allowed.
func originAllowed(origin string, patterns []string) bool {
	if origin == "" {
		return true
	}
	for _, p := range patterns {
		if p == "*" || p == origin {
			return true
		}
		if ok, _ := path.Match(p, origin); ok {
			return true
		}
	}
	return false
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every connection. Call it once.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn, client := range h.clients {
				h.limiter.Release(client.ip)
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("📱 Client connected", slog.String("ip", client.ip), slog.Int("total", count))
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.drop(conn)

		case message := <-h.broadcast:
			h.mu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.mu.RUnlock()

			for _, conn := range conns {
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					h.drop(conn)
				}
			}
			IncrementWSMessages()
		}
	}
}

func (h *WebSocketHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	client, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.limiter.Release(client.ip)
	conn.Close()
	h.logger.Debug("📱 Client disconnected", slog.Int("remaining", count))
	UpdateWSConnections(count)
}

// Broadcast queues an event for every client. It drops the event when the
// hub is backed up.
func (h *WebSocketHub) Broadcast(event string, data any) {
	msg, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		h.logger.Warn("⚠️ broadcast encode failed", slog.String("event", event), slog.Any("error", err))
		return
	}
	select {
	case h.broadcast <- msg:
	default:
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop pushes "cache:stats" with every map's summary each
// interval while at least one client is connected.
func (h *WebSocketHub) StartBroadcastLoop(ctx context.Context, maps MapService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if h.ClientCount() == 0 {
				continue
			}
			h.Broadcast("cache:stats", summarize(maps))
		}
	}()
}

// HandleWebSocket upgrades the request and registers the connection.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if total := h.ClientCount(); total >= MaxWSConnectionsTotal {
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.limiter.Acquire(ip) {
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.limiter.Release(ip)
		return
	}

	select {
	case h.register <- &wsClient{conn: conn, ip: ip}:
	case <-h.done:
		h.limiter.Release(ip)
		conn.Close()
		return
	}

	// Clients only listen; reading detects the close.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
