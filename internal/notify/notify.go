// Package notify delivers batch lifecycle notifications
package notify

import "fmt"

// NotificationType classifies a notification's severity
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification is one message about a batch's lifecycle
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	BatchID int
}

// BatchDone is the notification for a batch that ran to completion
func BatchDone(batchID int) Notification {
	return Notification{
		Title:   "Batch finished",
		Message: fmt.Sprintf("batch %d ran to completion", batchID),
		Type:    NotifySuccess,
		BatchID: batchID,
	}
}

// BatchBlocked is the notification for a batch halted by a failed
// precondition or a blocking command failure
func BatchBlocked(batchID int, reason string) Notification {
	return Notification{
		Title:   "Batch blocked",
		Message: fmt.Sprintf("batch %d: %s", batchID, reason),
		Type:    NotifyError,
		BatchID: batchID,
	}
}

// Notifier delivers one notification to a sink
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier fans one notification out to several sinks. Every sink is
// attempted; the last failure is reported.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier discards notifications; used when no webhook is configured
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
