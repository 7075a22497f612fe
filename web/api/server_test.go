package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/batchstore"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/runner"
)

func testServer(t *testing.T) (*Server, *batchstore.Store) {
	t.Helper()
	store, err := batchstore.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return NewServer(store, "127.0.0.1:0"), store
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, []byte) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, rec.Body.Bytes()
}

func createTestBatch(t *testing.T, handler http.Handler) BatchResponse {
	t.Helper()
	rec, body := doJSON(t, handler, http.MethodPost, "/api/batches",
		`{"name":"people","username":"alice","notation":"v1","data":"CREATE\nLAST|Len|\"Regina Phalange\""}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, body)
	}
	var resp BatchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestCreateAndGetBatch(t *testing.T) {
	server, _ := testServer(t)
	handler := server.Handler()

	created := createTestBatch(t, handler)
	if created.Username != "alice" || created.Status != "initial" {
		t.Errorf("created = %+v", created)
	}

	rec, body := doJSON(t, handler, http.MethodGet, "/api/batches/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got BatchResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != created.ID || got.Name != "people" {
		t.Errorf("got = %+v", got)
	}
}

func TestCreateBatchValidation(t *testing.T) {
	server, _ := testServer(t)
	handler := server.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"missing username", `{"name":"x","data":"CREATE"}`},
		{"unknown notation", `{"username":"alice","notation":"xml","data":"CREATE"}`},
		{"bad body", `not json`},
	}
	for _, tt := range tests {
		rec, _ := doJSON(t, handler, http.MethodPost, "/api/batches", tt.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", tt.name, rec.Code)
		}
	}
}

func TestGetCommands(t *testing.T) {
	server, _ := testServer(t)
	handler := server.Handler()
	createTestBatch(t, handler)

	rec, body := doJSON(t, handler, http.MethodGet, "/api/batches/1/commands", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var commands []CommandResponse
	if err := json.Unmarshal(body, &commands); err != nil {
		t.Fatal(err)
	}
	if len(commands) != 2 {
		t.Fatalf("commands = %d", len(commands))
	}
	if commands[0].Operation != "create_item" || commands[0].Status != "initial" {
		t.Errorf("command 0 = %+v", commands[0])
	}
	if commands[1].Operation != "set_label" {
		t.Errorf("command 1 = %+v", commands[1])
	}
}

func TestListBatchesFilters(t *testing.T) {
	server, _ := testServer(t)
	handler := server.Handler()
	createTestBatch(t, handler)

	rec, body := doJSON(t, handler, http.MethodGet, "/api/batches?username=alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var batches []BatchResponse
	if err := json.Unmarshal(body, &batches); err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 {
		t.Errorf("alice batches = %d", len(batches))
	}

	_, body = doJSON(t, handler, http.MethodGet, "/api/batches?username=bob", "")
	if err := json.Unmarshal(body, &batches); err != nil {
		t.Fatal(err)
	}
	if len(batches) != 0 {
		t.Errorf("bob batches = %d", len(batches))
	}
}

func TestStopAndRestart(t *testing.T) {
	server, store := testServer(t)
	handler := server.Handler()
	created := createTestBatch(t, handler)

	// Stop only applies to running batches
	rec, _ := doJSON(t, handler, http.MethodPost, "/api/batches/1/stop", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("stop initial batch: status = %d", rec.Code)
	}

	if err := store.UpdateBatchStatus(created.ID, "running", ""); err != nil {
		t.Fatal(err)
	}
	rec, _ = doJSON(t, handler, http.MethodPost, "/api/batches/1/stop", "")
	if rec.Code != http.StatusOK {
		t.Errorf("stop running batch: status = %d", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/api/batches/1/restart", "")
	if rec.Code != http.StatusOK {
		t.Errorf("restart stopped batch: status = %d", rec.Code)
	}

	batch, err := store.GetBatch(created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(batch.Status) != "initial" {
		t.Errorf("status after restart = %s", batch.Status)
	}
}

func TestStatusEndpoint(t *testing.T) {
	server, _ := testServer(t)
	handler := server.Handler()
	createTestBatch(t, handler)

	rec, body := doJSON(t, handler, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		t.Fatal(err)
	}
	if status.Total != 1 || status.Initial != 1 {
		t.Errorf("status = %+v", status)
	}
}

func TestExportBatch(t *testing.T) {
	server, _ := testServer(t)
	handler := server.Handler()
	createTestBatch(t, handler)

	rec, body := doJSON(t, handler, http.MethodGet, "/api/batches/1/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 3 {
		t.Errorf("export lines = %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "index,raw,operation") {
		t.Errorf("header = %q", lines[0])
	}
}

func TestBadBatchID(t *testing.T) {
	server, _ := testServer(t)
	handler := server.Handler()

	rec, _ := doJSON(t, handler, http.MethodGet, "/api/batches/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodGet, "/api/batches/999", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing batch: status = %d", rec.Code)
	}
}

func TestRunnerEventsReachSubscribers(t *testing.T) {
	server, _ := testServer(t)

	ch := make(chan SSEEvent, 2)
	server.sseHub.register <- sseSubscription{ch: ch}

	wsClient := &liveClient{batchID: 5, send: make(chan SSEEvent, 2)}
	server.live.mu.Lock()
	server.live.clients[wsClient] = true
	server.live.mu.Unlock()

	forward := server.BroadcastRunnerEvents()
	forward(runner.Event{Kind: "command", BatchID: 7, Index: 2, Status: "done"})
	forward(runner.Event{Kind: "batch", BatchID: 5, Status: "done"})

	select {
	case got := <-ch:
		if got.Type != "command_update" || got.BatchID != 7 {
			t.Errorf("first event = %q batch %d", got.Type, got.BatchID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no command event delivered to stream subscriber")
	}
	select {
	case got := <-ch:
		if got.Type != "batch_update" || got.BatchID != 5 {
			t.Errorf("second event = %q batch %d", got.Type, got.BatchID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no batch event delivered to stream subscriber")
	}

	select {
	case got := <-wsClient.send:
		if got.BatchID != 5 {
			t.Errorf("websocket client for batch 5 got batch %d", got.BatchID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered to websocket client")
	}
	select {
	case got := <-wsClient.send:
		t.Errorf("websocket client for batch 5 got extra event for batch %d", got.BatchID)
	default:
	}
}

func TestEventStreamBatchFilter(t *testing.T) {
	server, _ := testServer(t)

	all := make(chan SSEEvent, 1)
	only3 := make(chan SSEEvent, 1)
	server.sseHub.register <- sseSubscription{ch: all}
	server.sseHub.register <- sseSubscription{ch: only3, batchID: 3}

	server.Broadcast(SSEEvent{Type: "batch_update", BatchID: 7})

	select {
	case got := <-all:
		if got.BatchID != 7 {
			t.Errorf("unfiltered subscriber got batch %d", got.BatchID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unfiltered subscriber got nothing")
	}
	select {
	case got := <-only3:
		t.Errorf("subscriber filtered to batch 3 got batch %d", got.BatchID)
	default:
	}
}
