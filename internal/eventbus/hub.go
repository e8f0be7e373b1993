package eventbus

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/pkg/logger"
)

const (
	// pingPeriod is how often the server pings each client (spec §6
	// "sends a ping every 30 s").
	pingPeriod = 30 * time.Second
	// pongWait must exceed pingPeriod by the 10s pong-timeout window
	// (spec §6 "expects a pong within 10 s").
	pongWait       = pingPeriod + 10*time.Second
	writeWait      = 5 * time.Second
	clientSendSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one open WebSocket subscriber, with a bounded outbound
// buffer consumed by a dedicated sender goroutine so a slow or
// disconnected subscriber never blocks the broadcaster (spec §4.8, §5
// "must never block the producer").
type client struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	closed    atomic.Bool
}

func (c *client) safeSend(data []byte) bool {
	defer func() { recover() }()
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.send)
	})
}

// Hub is the WebSocket broadcast fan-out for the Event Bus.
type Hub struct {
	log *logger.Logger

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub constructs an empty Hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{log: log, clients: make(map[*client]bool)}
}

// ServeHTTP upgrades the request to a WebSocket connection and registers
// the client (spec §6 "A separate listener accepts JSON text frames").
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithField("error", err).Warn("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendSize)}
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast serializes ev and fans it out to every connected client,
// non-blocking per client (spec §4.8 step 2).
func (h *Hub) Broadcast(ev model.AlarmEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.WithField("error", err).Warn("failed to marshal event for broadcast")
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.safeSend(data) {
			h.log.Debug("websocket client send buffer full or closed, dropping broadcast")
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// writePump pumps queued messages and periodic pings to the connection.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// readPump reads frames from the client, echoing arbitrary text frames
// by default (spec §6 "Clients sending arbitrary text frames receive
// them echoed"), and enforces the pong deadline; on timeout the
// connection is closed with a protocol error (spec §6).
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseProtocolError, "pong timeout"),
					time.Now().Add(writeWait))
			}
			return
		}
		c.safeSend(data)
	}
}
