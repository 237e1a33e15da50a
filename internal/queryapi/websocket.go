package queryapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/wellsgz/rrdb/internal/logging"
	"github.com/wellsgz/rrdb/internal/updatecache"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServerMessage is one event pushed to a connected client.
type ServerMessage struct {
	Type string      `json:"type"` // "commit_result" or "error"
	Data interface{} `json:"data"`
}

// Hub fans out updatecache.CommitResult events to websocket clients, each
// subscribed to exactly one database (the one named in its URL).
type Hub struct {
	clients map[*wsClient]bool

	broadcast  chan updatecache.CommitResult
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}

	cacheSub <-chan updatecache.CommitResult
	mu       sync.RWMutex
}

// NewHub creates a Hub subscribed to cache's commit-result stream.
func NewHub(cache *updatecache.Cache) *Hub {
	h := &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan updatecache.CommitResult, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
	if cache != nil {
		h.cacheSub = cache.Subscribe()
	}
	return h
}

// Run is the hub's main loop; call it in its own goroutine.
func (h *Hub) Run() {
	if h.cacheSub != nil {
		go h.listenCache()
	}

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case result := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if client.database != result.Path {
					continue
				}
				select {
				case client.send <- result:
				default:
					logging.Error("API", "websocket client send buffer full, dropping", nil)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop shuts the hub down, closing every client connection.
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) listenCache() {
	for result := range h.cacheSub {
		h.broadcast <- result
	}
}

type wsClient struct {
	hub      *Hub
	conn     *websocket.Conn
	database string
	send     chan updatecache.CommitResult
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case result, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload := struct {
				Path  string `json:"path"`
				Time  int64  `json:"time"`
				Error string `json:"error,omitempty"`
			}{Path: result.Path, Time: result.Time}
			if result.Error != nil {
				payload.Error = result.Error.Error()
			}
			msg := ServerMessage{Type: "commit_result", Data: payload}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
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

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
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

// ServeWebSocket upgrades the request and streams commit-result events
// for the database named in the URL.
func ServeWebSocket(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logging.Error("API", "websocket upgrade failed", err)
			return
		}

		client := &wsClient{
			hub:      hub,
			conn:     conn,
			database: c.Param("name"),
			send:     make(chan updatecache.CommitResult, 256),
		}
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
