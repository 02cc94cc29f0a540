package jobmanager

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TaskWSHub fans task events out to WebSocket subscribers.
type TaskWSHub struct {
	clients    map[*TaskWSClient]bool
	broadcast  chan models.TaskEvent
	register   chan *TaskWSClient
	unregister chan *TaskWSClient
	done       chan struct{}
	mu         sync.RWMutex
	logger     *common.Logger
}

// TaskWSClient is one subscriber. An empty kinds set receives every event.
type TaskWSClient struct {
	hub   *TaskWSHub
	conn  *websocket.Conn
	send  chan []byte
	kinds map[string]bool
}

func (c *TaskWSClient) wants(kind string) bool {
	return len(c.kinds) == 0 || c.kinds[kind]
}

// NewTaskWSHub creates a new hub. Run must be started before clients connect.
func NewTaskWSHub(logger *common.Logger) *TaskWSHub {
	return &TaskWSHub{
		clients:    make(map[*TaskWSClient]bool),
		broadcast:  make(chan models.TaskEvent, 256),
		register:   make(chan *TaskWSClient),
		unregister: make(chan *TaskWSClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's event loop.
func (h *TaskWSHub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug().Int("clients", n).Msg("Task subscriber connected")

		case c := <-h.unregister:
			h.drop(c)

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn().Err(err).Msg("Failed to marshal task event")
				continue
			}
			var slow []*TaskWSClient
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(event.Task.Kind) {
					continue
				}
				select {
				case c.send <- data:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.drop(c)
			}
		}
	}
}

func (h *TaskWSHub) drop(c *TaskWSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug().Int("clients", n).Msg("Task subscriber disconnected")
	}
}

// Stop signals the event loop to exit and disconnects all clients.
func (h *TaskWSHub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// Broadcast queues an event for subscribers. Events are dropped rather than
// blocking the caller when the hub falls behind.
func (h *TaskWSHub) Broadcast(event models.TaskEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Debug().Str("type", event.Type).Msg("Task event channel full, dropping event")
	}
}

// ClientCount returns the number of connected clients.
func (h *TaskWSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and subscribes it to task events. The optional
// "kind" query parameter is a comma-separated filter. initial events are sent
// before any live event.
func (h *TaskWSHub) ServeWS(w http.ResponseWriter, r *http.Request, initial []models.TaskEvent) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &TaskWSClient{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBuffer+len(initial)),
		kinds: parseKinds(r.URL.Query().Get("kind")),
	}
	for _, ev := range initial {
		if !c.wants(ev.Task.Kind) {
			continue
		}
		if data, err := json.Marshal(ev); err == nil {
			c.send <- data
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func parseKinds(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	kinds := make(map[string]bool)
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds[k] = true
		}
	}
	return kinds
}

func (c *TaskWSClient) writePump() {
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

// readPump only exists to notice the peer going away.
func (c *TaskWSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
