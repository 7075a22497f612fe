package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier posts JSON notifications to a configured URL
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// webhookPayload is the wire shape posted to the webhook
type webhookPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`
	BatchID int    `json:"batch_id,omitempty"`
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// LevelFor returns the wire level for a notification type
func LevelFor(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "success"
	case NotifyWarning:
		return "warning"
	case NotifyError:
		return "error"
	default:
		return "info"
	}
}

// Send posts the notification to the webhook URL
func (w *WebhookNotifier) Send(n Notification) error {
	if w.url == "" {
		return nil // Disabled
	}

	payload, err := json.Marshal(webhookPayload{
		Title:   n.Title,
		Message: n.Message,
		Level:   LevelFor(n.Type),
		BatchID: n.BatchID,
	})
	if err != nil {
		return err
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}

	return nil
}
