package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// SSEEvent is one event on the stream: a batch lifecycle change or
// per-command progress.
type SSEEvent struct {
	Type    string      `json:"type"`
	BatchID int         `json:"batch_id,omitempty"`
	Data    interface{} `json:"data"`
}

// sseSubscription pairs a client channel with its batch filter
type sseSubscription struct {
	ch      chan SSEEvent
	batchID int // 0 subscribes to every batch
}

// SSEHub fans events out to event-stream subscribers, each optionally
// filtered to one batch. All bookkeeping happens on the Run goroutine.
type SSEHub struct {
	clients    map[chan SSEEvent]int
	broadcast  chan SSEEvent
	register   chan sseSubscription
	unregister chan chan SSEEvent
}

// NewSSEHub creates an empty hub; Run must be started for it to deliver
func NewSSEHub() *SSEHub {
	return &SSEHub{
		clients:    make(map[chan SSEEvent]int),
		broadcast:  make(chan SSEEvent),
		register:   make(chan sseSubscription),
		unregister: make(chan chan SSEEvent),
	}
}

// Run owns the subscriber set until the process exits. Slow subscribers
// are dropped rather than stalling every other stream.
func (h *SSEHub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.clients[sub.ch] = sub.batchID

		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}

		case event := <-h.broadcast:
			for ch, filter := range h.clients {
				if filter != 0 && filter != event.BatchID {
					continue
				}
				select {
				case ch <- event:
				default:
					close(ch)
					delete(h.clients, ch)
				}
			}
		}
	}
}

// Broadcast queues an event for every subscriber watching its batch
func (h *SSEHub) Broadcast(event SSEEvent) {
	h.broadcast <- event
}

// sseHandler streams hub events as text/event-stream frames. An optional
// batch_id query parameter narrows the stream to one batch.
func (s *Server) sseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		batchID := 0
		if raw := r.URL.Query().Get("batch_id"); raw != "" {
			id, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid batch_id")
				return
			}
			batchID = id
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		ch := make(chan SSEEvent, 8)
		s.sseHub.register <- sseSubscription{ch: ch, batchID: batchID}
		go func() {
			<-r.Context().Done()
			s.sseHub.unregister <- ch
		}()

		for event := range ch {
			data, _ := json.Marshal(event)
			fmt.Fprintf(w, "event: %s\n", event.Type)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
