package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"devharness/internal/shared/logger"
)

// ClientEvent is one harness lifecycle or traffic event streamed to monitors.
type ClientEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	ConnID     string    `json:"conn_id"`
	RemoteAddr string    `json:"remote_addr"`
	Kind       string    `json:"kind"`
	Detail     string    `json:"detail,omitempty"`
}

// HarnessStats carries the periodic statistics broadcast.
type HarnessStats struct {
	Timestamp         time.Time `json:"timestamp"`
	ActiveConnections int       `json:"active_connections"`
}

// WebSocketMessage is the generic envelope for all hub messages.
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active monitor sockets and broadcasts harness
// events and stats to them.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		clients:    make(map[*websocket.Conn]bool),
	}
}

// Run owns the clients map; all membership changes and broadcasts go through
// its channels so no lock is needed.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.clients[conn] = true
			logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("Monitor client registered.")
		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				logger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("Monitor client unregistered.")
			}
		case message := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					logger.Warn().Err(err).Str("remote_addr", conn.RemoteAddr().String()).Msg("Error writing to monitor client.")
					// The read pump will unregister the broken client.
				}
			}
		}
	}
}

// BroadcastEvent streams one harness event to all monitors. Dropping when the
// channel is full is fine, monitoring is best-effort.
func (h *Hub) BroadcastEvent(event *ClientEvent) {
	msg := WebSocketMessage{Type: "client_event", Data: event}
	jsonMsg, err := json.Marshal(msg)
	if err != nil {
		logger.Error().Err(err).Msg("Hub: failed to marshal client event")
		return
	}

	select {
	case h.broadcast <- jsonMsg:
	default:
	}
}

// BroadcastStats streams the periodic statistics update.
func (h *Hub) BroadcastStats(stats *HarnessStats) {
	msg := WebSocketMessage{Type: "stats", Data: stats}
	jsonMsg, err := json.Marshal(msg)
	if err != nil {
		logger.Error().Err(err).Msg("Hub: failed to marshal stats")
		return
	}

	select {
	case h.broadcast <- jsonMsg:
	default:
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Allow all origins
}

// ServeWs handles websocket requests from monitor clients.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to upgrade websocket")
		return
	}
	hub.register <- conn

	// Read pump: its only job is to notice when the monitor goes away.
	go func() {
		defer func() {
			hub.unregister <- conn
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn().Err(err).Msg("Unexpected websocket close error")
				}
				break
			}
		}
	}()
}
