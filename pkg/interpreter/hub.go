package interpreter

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Readings queued per client before it counts as stalled and is dropped
	clientSendBuffer = 256
	writeTimeout     = 10 * time.Second
)

// Hub broadcasts readings to websocket clients and serves the latest values.
// Publish never blocks: every client has its own queue drained by a writer
// goroutine.
type Hub struct {
	store    *Store
	logger   *zap.Logger
	upgrader websocket.Upgrader

	// ws clients for broadcasting live readings.
	// A client's send channel is only written and closed under clientsMutex.
	clientsMutex sync.RWMutex
	clients      map[*websocket.Conn]chan []byte
}

func NewHub(store *Store, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		store:  store,
		logger: logger.Named("hub"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins on the local network
			},
		},
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.serveIndex)
	mux.HandleFunc("/latest", h.serveLatest)
	mux.HandleFunc("/ws", h.serveWS)
	return mux
}

// Publish queues reading for every connected client. Clients whose queue is
// full are disconnected.
func (h *Hub) Publish(reading *Reading) {
	msg := reading.ToJsonBytes()

	var stalled []*websocket.Conn
	h.clientsMutex.RLock()
	for conn, send := range h.clients {
		select {
		case send <- msg:
		default:
			stalled = append(stalled, conn)
		}
	}
	h.clientsMutex.RUnlock()

	for _, conn := range stalled {
		h.logger.Warn("Dropping websocket client that stopped reading", zap.Stringer("remote", conn.RemoteAddr()))
		h.removeClient(conn)
	}
}

func (h *Hub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "P1 Mini API",
		"status":  "running",
	})
}

func (h *Hub) serveLatest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	readings := h.store.Latest()
	if len(readings) == 0 {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "No readings available yet",
		})
		return
	}
	json.NewEncoder(w).Encode(readings)
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade error", zap.Error(err))
		return
	}

	// Current readings go out before the live ones
	send := make(chan []byte, clientSendBuffer)
	for _, reading := range h.store.Latest() {
		select {
		case send <- reading.ToJsonBytes():
		default:
		}
	}
	h.addClient(conn, send)
	go h.writeLoop(conn, send)

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.removeClient(conn)
			break
		}
	}
}

// writeLoop drains send until the client is removed.
func (h *Hub) writeLoop(conn *websocket.Conn, send <-chan []byte) {
	for msg := range send {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.removeClient(conn)
			// Keep draining until removeClient closes the channel
		}
	}
}

func (h *Hub) addClient(conn *websocket.Conn, send chan []byte) {
	h.clientsMutex.Lock()
	h.clients[conn] = send
	h.clientsMutex.Unlock()
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMutex.Lock()
	send, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(send)
	}
	h.clientsMutex.Unlock()
	if ok {
		conn.Close()
	}
}
