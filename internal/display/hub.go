package display

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/versecue/internal/observe"
)

const (
	clientBuffer = 8
	writeTimeout = 5 * time.Second
)

var (
	_ Surface      = (*Hub)(nil)
	_ http.Handler = (*Hub)(nil)
)

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithOriginPatterns sets the host patterns allowed to open a display
// connection from a browser on another origin.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.origins = patterns }
}

// WithHubMetrics records connected clients on m.
func WithHubMetrics(m *observe.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithHubLogger sets the hub logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.log = l }
}

type client struct {
	send chan []byte
	gone chan struct{}
	once sync.Once
}

func (c *client) drop() { c.once.Do(func() { close(c.gone) }) }

// Hub is a WebSocket fan-out [Surface]. Every pushed payload goes to every
// connected client and is kept as the current display, which new clients
// receive immediately after connecting. A client that falls behind by more
// than a few payloads is disconnected.
type Hub struct {
	origins []string
	metrics *observe.Metrics
	log     *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

// NewHub returns an empty [Hub].
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		metrics: observe.DefaultMetrics(),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Push implements [Surface]. It never blocks on a slow client.
func (h *Hub) Push(_ context.Context, p Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("display: marshal payload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("display client too slow, disconnecting")
			c.drop()
			delete(h.clients, c)
		}
	}
	return nil
}

// Current returns the last pushed payload, if any.
func (h *Hub) Current() (Payload, bool) {
	h.mu.Lock()
	data := h.last
	h.mu.Unlock()
	if data == nil {
		return Payload{}, false
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, false
	}
	return p, true
}

// Clients returns the number of connected display clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a WebSocket and streams payloads until
// the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Debug("display websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// Display clients only listen; CloseRead handles control frames and
	// cancels ctx when the peer disconnects.
	ctx := conn.CloseRead(r.Context())

	c := h.register()
	defer h.unregister(c)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.gone:
			conn.Close(websocket.StatusPolicyViolation, "too slow")
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) register() *client {
	c := &client{send: make(chan []byte, clientBuffer), gone: make(chan struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()
	h.metrics.DisplayClients.Add(context.Background(), 1)
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.drop()
	h.metrics.DisplayClients.Add(context.Background(), -1)
}
