package masterapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/zapempire/economy-engine/internal/supervisor"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local ops surface
	},
}

// Hub maintains the set of connected stream clients and fans fleet
// lifecycle alerts out to them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
	log       *logrus.Entry
}

func NewHub(log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
		log:       log,
	}
}

// Run drains the broadcast channel until it is closed. Slow clients are
// bounded by a write deadline and dropped on failure so one stuck
// subscriber cannot hang the hub.
func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			_ = client.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				h.log.Warnf("[API] Stream write: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades an HTTP request into a stream client.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnf("[API] Websocket upgrade: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()

	h.log.Infof("[API] Stream client connected (%d total)", total)

	// The stream is push-only, but we must keep reading to notice
	// disconnects.
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
			h.log.Infof("[API] Stream client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast queues a payload for every connected client.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		// Backpressure from a full queue drops the alert rather than
		// blocking the supervisor.
	}
}

// BroadcastLifecycle adapts the hub into the supervisor's Notify hook,
// wrapping each lifecycle transition as a JSON alert frame.
func BroadcastLifecycle(hub *Hub) func(supervisor.Event) {
	return func(ev supervisor.Event) {
		payload, err := json.Marshal(gin.H{
			"type":  "lifecycle",
			"event": ev,
		})
		if err != nil {
			return
		}
		hub.Broadcast(payload)
	}
}
