// Package api serves the HTTP interface for batches: submission, listing,
// lifecycle control, export, and live event streaming.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/batchstore"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/runner"
)

// Store interface for database operations
type Store interface {
	CreateBatch(batch *domain.Batch, commands []*domain.BatchCommand) error
	ListBatches(opts batchstore.ListOptions) ([]*domain.Batch, error)
	GetBatch(id int) (*domain.Batch, error)
	Commands(batchID int) ([]*domain.BatchCommand, error)
	StopBatch(id int) error
	RestartBatch(id int) error
}

// Server is the HTTP API server
type Server struct {
	store  Store
	addr   string
	mux    *http.ServeMux
	sseHub *SSEHub
	live   *liveHub
}

// NewServer creates a new API server
func NewServer(store Store, addr string) *Server {
	s := &Server{
		store:  store,
		addr:   addr,
		mux:    http.NewServeMux(),
		sseHub: NewSSEHub(),
		live:   newLiveHub(),
	}
	s.setupRoutes()
	go s.sseHub.Run()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/batches", s.batchesHandler())
	s.mux.HandleFunc("/api/batches/", s.batchHandler())
	s.mux.HandleFunc("/api/events", s.sseHandler())
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler exposes the route mux, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Broadcast sends an event to all SSE clients and to websocket clients
// watching the affected batch.
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
	s.live.Broadcast(event)
}

// BroadcastRunnerEvents adapts runner status changes into hub broadcasts,
// so command progress streams over /api/events and the per-batch live
// feed. Register the result with runner.OnEvent.
func (s *Server) BroadcastRunnerEvents() func(runner.Event) {
	return func(e runner.Event) {
		typ := "batch_update"
		if e.Kind == "command" {
			typ = "command_update"
		}
		s.Broadcast(SSEEvent{Type: typ, BatchID: e.BatchID, Data: e})
	}
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
