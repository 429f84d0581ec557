package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/autobuild/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendBuffer     = 16
)

// ReloadMessage is sent to browsers after a rebuild.
type ReloadMessage struct {
	Type      string    `json:"type"`
	Path      string    `json:"path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub tracks connected browsers and fans out reload messages.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	logger     logging.Logger

	mu        sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
}

// Client is one connected browser tab.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, sendBuffer),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run processes registrations and broadcasts until ctx ends or Close.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeClients()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug(ctx, "websocket client connected", "client", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug(ctx, "websocket client disconnected", "client", client.id)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client; drop it rather than block the rest.
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues msg for every connected client.
func (h *Hub) Broadcast(msg ReloadMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn(context.Background(), err, "failed to marshal reload message")
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the hub. Safe to call more than once.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) closeClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	origin, ok := s.checkOrigin(r)
	if !ok {
		s.logger.Warn(r.Context(), nil, "rejected websocket origin", "origin", r.Header.Get("Origin"))
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	opts := &websocket.AcceptOptions{}
	if origin != "" {
		opts.OriginPatterns = []string{origin}
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  s.hub,
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	// The request context ends when the handler returns, so the pumps
	// get their own.
	ctx, cancel := context.WithCancel(context.Background())
	go client.writePump(ctx, cancel)
	client.readPump(ctx, cancel)
}

// checkOrigin accepts same-origin requests, the local aliases of the
// listening port and any configured origins. It returns the origin host
// to hand to the websocket library.
func (s *Server) checkOrigin(r *http.Request) (string, bool) {
	raw := r.Header.Get("Origin")
	if raw == "" {
		// Non-browser clients do not send an origin.
		return "", true
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}

	if u.Host == r.Host || slices.Contains(s.allowedHosts(), u.Host) {
		return u.Host, true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == raw || allowed == u.Host {
			return u.Host, true
		}
	}
	return "", false
}

func (s *Server) allowedHosts() []string {
	port := strconv.Itoa(s.Port())
	hosts := []string{
		net.JoinHostPort("localhost", port),
		net.JoinHostPort("127.0.0.1", port),
		net.JoinHostPort("::1", port),
	}
	if s.opts.Host != "" {
		hosts = append(hosts, net.JoinHostPort(s.opts.Host, port))
	}
	return hosts
}

func (c *Client) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer func() {
		cancel()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	// Browsers never send anything meaningful; reading only detects
	// the close. A deadline here would close the connection.
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case message, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			writeCancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				return
			}
		}
	}
}
