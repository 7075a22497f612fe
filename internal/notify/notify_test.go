package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookNotifier_Send(t *testing.T) {
	var received webhookPayload

	// Mock webhook server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Batch done",
		Message: "all 12 commands succeeded",
		Type:    NotifySuccess,
		BatchID: 7,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if received.Title != "Batch done" {
		t.Errorf("title = %q", received.Title)
	}
	if received.Level != "success" {
		t.Errorf("level = %q", received.Level)
	}
	if received.BatchID != 7 {
		t.Errorf("batch_id = %d", received.BatchID)
	}
}

func TestWebhookNotifier_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL)
	if err := notifier.Send(Notification{Title: "x"}); err == nil {
		t.Error("expected error on 500 response")
	}
}

func TestWebhookNotifier_EmptyURLDisabled(t *testing.T) {
	notifier := NewWebhookNotifier("")
	if err := notifier.Send(Notification{Title: "x"}); err != nil {
		t.Errorf("disabled notifier should be a no-op, got %v", err)
	}
}

func TestBatchNotifications(t *testing.T) {
	done := BatchDone(7)
	if done.Type != NotifySuccess || done.BatchID != 7 {
		t.Errorf("done = %+v", done)
	}
	if !strings.Contains(done.Message, "batch 7") {
		t.Errorf("message = %q", done.Message)
	}

	blocked := BatchBlocked(9, "user is not autoconfirmed")
	if blocked.Type != NotifyError || blocked.BatchID != 9 {
		t.Errorf("blocked = %+v", blocked)
	}
	if !strings.Contains(blocked.Message, "not autoconfirmed") {
		t.Errorf("message = %q", blocked.Message)
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifyInfo, "info"},
		{NotifySuccess, "success"},
		{NotifyWarning, "warning"},
		{NotifyError, "error"},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.typ); got != tt.want {
			t.Errorf("LevelFor(%d) = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

type recordingNotifier struct {
	sent []Notification
	err  error
}

func (r *recordingNotifier) Send(n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func TestMultiNotifier(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{err: errors.New("b failed")}
	c := &recordingNotifier{}

	multi := NewMultiNotifier(a, b, c)
	err := multi.Send(Notification{Title: "hello"})
	if err == nil || err.Error() != "b failed" {
		t.Errorf("err = %v", err)
	}
	for i, n := range []*recordingNotifier{a, b, c} {
		if len(n.sent) != 1 {
			t.Errorf("notifier %d received %d notifications", i, len(n.sent))
		}
	}
}
