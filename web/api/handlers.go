package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/batchstore"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/exporter"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/parser"
)

// BatchResponse is the API response for a batch
type BatchResponse struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	Status          string `json:"status"`
	Message         string `json:"message,omitempty"`
	BlockOnErrors   bool   `json:"block_on_errors"`
	CombineCommands bool   `json:"combine_commands"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// CommandResponse is the API response for a command
type CommandResponse struct {
	Index        int             `json:"index"`
	Raw          string          `json:"raw,omitempty"`
	Operation    string          `json:"operation"`
	Action       string          `json:"action"`
	Status       string          `json:"status"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Response     json.RawMessage `json:"response,omitempty"`
	Summary      string          `json:"summary,omitempty"`
}

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Total   int `json:"total"`
	Initial int `json:"initial"`
	Running int `json:"running"`
	Done    int `json:"done"`
	Blocked int `json:"blocked"`
	Stopped int `json:"stopped"`
}

// CreateBatchRequest is the payload for batch submission
type CreateBatchRequest struct {
	Name            string `json:"name"`
	Username        string `json:"username"`
	Notation        string `json:"notation"` // "v1" or "csv"
	Data            string `json:"data"`
	BlockOnErrors   bool   `json:"block_on_errors"`
	CombineCommands bool   `json:"combine_commands"`
}

func batchToResponse(b *domain.Batch) BatchResponse {
	return BatchResponse{
		ID:              b.ID,
		Name:            b.Name,
		Username:        b.Username,
		Status:          string(b.Status),
		Message:         b.Message,
		BlockOnErrors:   b.BlockOnErrors,
		CombineCommands: b.CombineCommands,
		CreatedAt:       b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       b.UpdatedAt.Format(time.RFC3339),
	}
}

func commandToResponse(c *domain.BatchCommand) CommandResponse {
	resp := CommandResponse{
		Index:     c.Index,
		Raw:       c.Raw,
		Operation: string(c.Operation),
		Action:    string(c.Action),
		Status:    string(c.Status),
		Response:  c.Response,
		Summary:   c.UserSummary,
	}
	if c.Error != nil {
		resp.ErrorKind = string(c.Error.Kind)
		resp.ErrorMessage = c.Error.Message
	}
	return resp
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		batches, err := s.store.ListBatches(batchstore.ListOptions{})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		var status StatusResponse
		status.Total = len(batches)
		for _, b := range batches {
			switch b.Status {
			case domain.BatchInitial:
				status.Initial++
			case domain.BatchRunning:
				status.Running++
			case domain.BatchDone:
				status.Done++
			case domain.BatchBlocked:
				status.Blocked++
			case domain.BatchStopped:
				status.Stopped++
			}
		}

		writeJSON(w, status)
	}
}

func (s *Server) batchesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.listBatches(w, r)
		case http.MethodPost:
			s.createBatch(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) listBatches(w http.ResponseWriter, r *http.Request) {
	opts := batchstore.ListOptions{
		Username: r.URL.Query().Get("username"),
		Status:   domain.BatchStatus(r.URL.Query().Get("status")),
	}
	batches, err := s.store.ListBatches(opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responses := make([]BatchResponse, len(batches))
	for i, b := range batches {
		responses[i] = batchToResponse(b)
	}
	writeJSON(w, responses)
}

func (s *Server) createBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username required")
		return
	}

	var builder *parser.BatchBuilder
	switch req.Notation {
	case "csv":
		var err error
		builder, err = parser.NewGrid(req.Name, req.Username, req.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	case "v1", "":
		builder = parser.NewV1(req.Name, req.Username, req.Data)
	default:
		writeError(w, http.StatusBadRequest, "unknown notation "+req.Notation)
		return
	}

	builder.Batch.BlockOnErrors = req.BlockOnErrors
	builder.Batch.CombineCommands = req.CombineCommands

	if err := builder.Commit(s.store); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := batchToResponse(builder.Batch)
	s.Broadcast(SSEEvent{Type: "batch_created", BatchID: builder.Batch.ID, Data: resp})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// batchHandler routes /api/batches/{id}[/commands|/stop|/restart|/export|/live]
func (s *Server) batchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/batches/")
		if path == "" {
			writeError(w, http.StatusBadRequest, "batch id required")
			return
		}

		idPart, rest := path, ""
		if idx := strings.Index(path, "/"); idx >= 0 {
			idPart, rest = path[:idx], path[idx+1:]
		}

		id, err := strconv.Atoi(idPart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid batch id")
			return
		}

		switch rest {
		case "":
			s.getBatch(w, r, id)
		case "commands":
			s.getCommands(w, r, id)
		case "stop":
			s.stopBatch(w, r, id)
		case "restart":
			s.restartBatch(w, r, id)
		case "export":
			s.exportBatch(w, r, id)
		case "live":
			s.liveHandler(idPart)(w, r)
		default:
			writeError(w, http.StatusNotFound, "not found")
		}
	}
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	batch, err := s.store.GetBatch(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	writeJSON(w, batchToResponse(batch))
}

func (s *Server) getCommands(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	commands, err := s.store.Commands(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	responses := make([]CommandResponse, len(commands))
	for i, c := range commands {
		responses[i] = commandToResponse(c)
	}
	writeJSON(w, responses)
}

func (s *Server) stopBatch(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.store.StopBatch(id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.Broadcast(SSEEvent{Type: "batch_update", BatchID: id, Data: map[string]string{"status": string(domain.BatchStopped)}})
	writeJSON(w, map[string]string{"status": "stopped"})
}

func (s *Server) restartBatch(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.store.RestartBatch(id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.Broadcast(SSEEvent{Type: "batch_update", BatchID: id, Data: map[string]string{"status": string(domain.BatchInitial)}})
	writeJSON(w, map[string]string{"status": "restarted"})
}

func (s *Server) exportBatch(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=batch-"+strconv.Itoa(id)+".csv")
	if err := exporter.WriteBatch(s.store, id, w); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
}
