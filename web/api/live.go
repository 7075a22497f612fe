package api

import (
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// liveHub fans batch events out to websocket clients. A client subscribes
// to a single batch; batch 0 means all batches.
type liveHub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*liveClient]bool
}

type liveClient struct {
	conn    *websocket.Conn
	batchID int
	send    chan SSEEvent
}

func newLiveHub() *liveHub {
	return &liveHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*liveClient]bool),
	}
}

// Broadcast queues an event for every client watching its batch. Slow
// clients are dropped rather than blocking the hub.
func (h *liveHub) Broadcast(event SSEEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.batchID != 0 && client.batchID != event.BatchID {
			continue
		}
		select {
		case client.send <- event:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// HandleLive upgrades the request to a websocket and streams batch events
func (h *liveHub) HandleLive(w http.ResponseWriter, r *http.Request, batchID int) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed: %v", err)
		return
	}

	client := &liveClient{
		conn:    conn,
		batchID: batchID,
		send:    make(chan SSEEvent, 16),
	}
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()

	go h.writeLoop(client)
	h.readLoop(client)
}

func (h *liveHub) writeLoop(client *liveClient) {
	for event := range client.send {
		if err := client.conn.WriteJSON(event); err != nil {
			break
		}
	}
	client.conn.Close()
}

// readLoop drains the connection so close frames are processed, then
// unregisters the client.
func (h *liveHub) readLoop(client *liveClient) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
		}
		h.mu.Unlock()
		client.conn.Close()
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("live read error: %v", err)
			}
			return
		}
	}
}

func (s *Server) liveHandler(rest string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, err := strconv.Atoi(rest)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid batch id")
			return
		}
		s.live.HandleLive(w, r, batchID)
	}
}
