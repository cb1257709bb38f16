// Package livehub pushes dashboard events to open browser tabs over
// websockets: table refreshes after a mutation and upload progress.
package livehub

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	EventHello    = "hello"
	EventRefresh  = "refresh"
	EventProgress = "progress"

	sendBuffer = 32
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Event is one message sent to a browser.
type Event struct {
	Type  string `json:"type"`
	Topic string `json:"topic,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// TableTopic is the topic tabs viewing a table subscribe to.
func TableTopic(table int64) string {
	return "table:" + strconv.FormatInt(table, 10)
}

type client struct {
	id    string
	topic string
	conn  *websocket.Conn
	send  chan []byte
}

type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		logger:   logger,
		clients:  make(map[string]*client),
	}
}

// ServeHTTP upgrades the request and keeps the connection until the
// browser goes away. The optional topic query parameter subscribes the
// connection to Publish calls for that topic. The first event is a hello
// carrying the connection id, which uploads echo back to receive progress.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		id:    uuid.NewString(),
		topic: r.URL.Query().Get("topic"),
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.logger.Debug("websocket client connected", zap.String("client", c.id), zap.String("topic", c.topic))

	go h.writeLoop(c)
	h.enqueue(c, Event{Type: EventHello, Topic: c.topic, Data: map[string]string{"client_id": c.id}})
	h.readLoop(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
}

// readLoop discards browser messages and returns once the connection fails.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
		h.logger.Debug("websocket client disconnected", zap.String("client", c.id))
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue queues ev for c. A client whose buffer is full is dropped.
func (h *Hub) enqueue(c *client, ev Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode websocket event", zap.String("type", ev.Type), zap.Error(err))
		return false
	}
	h.mu.RLock()
	_, live := h.clients[c.id]
	if live {
		select {
		case c.send <- data:
			h.mu.RUnlock()
			return true
		default:
		}
	}
	h.mu.RUnlock()
	if live {
		h.logger.Warn("dropping slow websocket client", zap.String("client", c.id))
		h.unregister(c)
	}
	return false
}

// Publish sends ev to every connection subscribed to topic and returns how
// many were reached.
func (h *Hub) Publish(topic string, ev Event) int {
	ev.Topic = topic
	h.mu.RLock()
	var targets []*client
	for _, c := range h.clients {
		if c.topic == topic {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if h.enqueue(c, ev) {
			sent++
		}
	}
	return sent
}

// SendTo sends ev to a single connection by id.
func (h *Hub) SendTo(id string, ev Event) bool {
	if id == "" {
		return false
	}
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.enqueue(c, ev)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
	h.mu.Unlock()
}
