// Package stream exposes execution lifecycle events over WebSocket. It
// runs on its own net/http listener next to the REST API because the
// gorilla upgrader needs a standard ResponseWriter.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coverpath/coverpath/pkg/broadcast"
	"github.com/coverpath/coverpath/pkg/events"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 64
)

// clientMessage is what a connected client sends to manage its
// subscriptions.
type clientMessage struct {
	Action      string `json:"action"`
	ExecutionID string `json:"execution_id"`
}

// serverMessage wraps control frames the hub sends outside of event
// delivery.
type serverMessage struct {
	Type        string `json:"type"`
	ExecutionID string `json:"execution_id,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Hub upgrades WebSocket connections and bridges them onto the
// in-process broadcaster. Each client manages its own subscription set;
// a client that cannot keep up with event volume is disconnected rather
// than allowed to stall the sequencer.
type Hub struct {
	broadcaster *broadcast.Broadcaster
	upgrader    websocket.Upgrader
	logger      *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	mu   sync.Mutex
	subs map[string]*broadcast.Subscription
}

func NewHub(broadcaster *broadcast.Broadcaster, logger *slog.Logger) *Hub {
	return &Hub{
		broadcaster: broadcaster,
		logger:      logger.With("module", "stream"),
		clients:     make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Start serves the /ws endpoint until the context is cancelled.
func (h *Hub) Start(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	h.logger.Info("WebSocket stream listening", "port", port)

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Handler returns the upgrade handler for embedding into an existing
// mux, used by tests and by deployments that front the hub themselves.
func (h *Hub) Handler() http.HandlerFunc {
	return h.handleWebSocket
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)

		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]*broadcast.Subscription),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	c.enqueueMessage(serverMessage{Type: "connection_established"})

	go h.writePump(c)
	go h.readPump(c)
}

// readPump consumes subscription commands until the connection closes,
// then tears the client down.
func (h *Hub) readPump(c *client) {
	defer h.dropClient(c)

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage

		err = json.Unmarshal(payload, &msg)
		if err != nil {
			c.enqueueMessage(serverMessage{Type: "error", Detail: "malformed message"})

			continue
		}

		switch msg.Action {
		case "subscribe":
			h.subscribe(c, msg.ExecutionID)
		case "unsubscribe":
			h.unsubscribe(c, msg.ExecutionID)
		default:
			c.enqueueMessage(serverMessage{Type: "error", Detail: "unknown action: " + msg.Action})
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			err := c.conn.WriteMessage(websocket.TextMessage, payload)
			if err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}
		}
	}
}

// subscribe registers the client for one execution id (or
// broadcast.AllExecutions). The broadcast handler serializes the event
// and enqueues it; a full send buffer means the client fell behind and
// the subscription errors out, which drops it from the broadcaster.
func (h *Hub) subscribe(c *client, executionID string) {
	if executionID == "" {
		c.enqueueMessage(serverMessage{Type: "error", Detail: "execution_id is required"})

		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.subs[executionID]; exists {
		return
	}

	sub := h.broadcaster.Subscribe(executionID, func(event events.Event) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize event: %w", err)
		}

		select {
		case c.send <- payload:
			return nil
		default:
			return fmt.Errorf("client send buffer full")
		}
	})

	c.subs[executionID] = sub

	c.enqueueMessage(serverMessage{Type: "subscribed", ExecutionID: executionID})
}

func (h *Hub) unsubscribe(c *client, executionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[executionID]
	if !ok {
		return
	}

	h.broadcaster.Unsubscribe(sub)
	delete(c.subs, executionID)

	c.enqueueMessage(serverMessage{Type: "unsubscribed", ExecutionID: executionID})
}

func (h *Hub) dropClient(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if !present {
		return
	}

	c.mu.Lock()
	for _, sub := range c.subs {
		h.broadcaster.Unsubscribe(sub)
	}

	c.subs = make(map[string]*broadcast.Subscription)
	c.mu.Unlock()

	close(c.send)
	_ = c.conn.Close()
}

// ClientCount reports connected clients, for health reporting.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

func (c *client) enqueueMessage(msg serverMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case c.send <- payload:
	default:
	}
}
