package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"mediassist/ml"
	"mediassist/predict"
)

// MessageType tags every frame sent to stream clients.
type MessageType string

const (
	PredictionMessage MessageType = "prediction"
	CacheMessage      MessageType = "cache"
	ArtifactMessage   MessageType = "artifact"
)

const (
	writeWait   = 10 * time.Second
	pingPeriod  = 30 * time.Second
	sendBuffer  = 64
	queueBuffer = 256
)

type Message struct {
	Type      MessageType     `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// allTopics subscribes a client to every disease.
const allTopics = "all"

// ClientMessage is what a client may send: subscribe or unsubscribe to a
// topic. A topic is a disease identifier or route slug, or "all".
type ClientMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	id   string

	mu            sync.Mutex
	all           bool
	subscriptions map[ml.Disease]bool
}

// wants reports whether the client should receive a message on topic.
// Messages without a topic go to every client.
func (c *client) wants(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return topic == "" || c.all || c.subscriptions[ml.Disease(topic)]
}

// parseTopic normalizes a disease identifier or slug. It returns "" for "all".
func parseTopic(topic string) (ml.Disease, error) {
	if topic == allTopics {
		return "", nil
	}
	d, err := ml.ParseDisease(topic)
	return d, errors.Wrap(err, "unknown topic")
}

type outbound struct {
	topic   string
	payload []byte
}

// Hub broadcasts prediction events to websocket clients. It implements
// predict.Publisher.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan outbound
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	onCount    func(int)

	mu    sync.RWMutex
	count int
}

// NewHub creates a hub. Origins lists the allowed Origin headers; empty allows any.
func NewHub(logger *zap.Logger, origins []string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan outbound, queueBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// OnClientCount registers a callback invoked with the client count whenever it
// changes. It must be set before Run.
func (h *Hub) OnClientCount(fn func(int)) {
	h.onCount = fn
}

// Run services the hub until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.setCount(len(h.clients))
			h.logger.Debug("stream client connected", zap.String("client", c.id), zap.Int("total", len(h.clients)))

		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				h.setCount(len(h.clients))
				h.logger.Debug("stream client disconnected", zap.String("client", c.id), zap.Int("total", len(h.clients)))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				if !c.wants(msg.topic) {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					// slow consumer
					delete(h.clients, c)
					close(c.send)
					h.setCount(len(h.clients))
				}
			}

		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.setCount(0)
			return
		}
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
	if h.onCount != nil {
		h.onCount(n)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topics := r.URL.Query()["disease"]
	subscriptions := make(map[ml.Disease]bool, len(topics))
	all := len(topics) == 0
	for _, topic := range topics {
		d, err := parseTopic(topic)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if d == "" {
			all = true
			continue
		}
		subscriptions[d] = true
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		id:            uuid.NewString(),
		all:           all,
		subscriptions: subscriptions,
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go h.writePump(c)
	go h.readPump(c)
}

// Publish implements predict.Publisher. It never blocks: when the queue is
// full the event is dropped.
func (h *Hub) Publish(event predict.Event) {
	h.Send(PredictionMessage, string(event.Disease), event)
}

// Send marshals data and queues it for every client subscribed to topic.
func (h *Hub) Send(kind MessageType, topic string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("marshal stream message", zap.Error(err))
		return
	}
	payload, err := json.Marshal(Message{
		Type:      kind,
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Data:      raw,
		ID:        uuid.NewString(),
	})
	if err != nil {
		h.logger.Error("marshal stream message", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{topic: topic, payload: payload}:
	default:
		h.logger.Warn("stream queue full, dropping message", zap.String("type", string(kind)))
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("websocket write failed", zap.String("client", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("bad client message", zap.String("client", c.id), zap.Error(err))
			continue
		}
		if err := c.handle(msg); err != nil {
			h.logger.Debug("client message ignored", zap.String("client", c.id), zap.Error(err))
		}
	}
}

// handle applies a subscription change. Unsubscribing from the last disease
// leaves the client with only untopiced messages; it does not fall back to
// receiving everything.
func (c *client) handle(msg ClientMessage) error {
	d, err := parseTopic(msg.Topic)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case "subscribe":
		if d == "" {
			c.all = true
		} else {
			c.subscriptions[d] = true
		}
	case "unsubscribe":
		c.all = false
		delete(c.subscriptions, d)
	default:
		return errors.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}
