// Package notifier defines the push-notification port.
package notifier

import (
	"context"

	"github.com/skyfuse/skyfuse/internal/domain/task"
)

// Notification is the payload delivered to a task's callback target once,
// on reaching a terminal state.
type Notification struct {
	TaskID    string       `json:"task_id"`
	SessionID string       `json:"session_id"`
	Status    task.Status  `json:"status"`
	Result    *task.Result `json:"result,omitempty"`
}

// Notifier delivers signed notifications to webhook targets.
type Notifier interface {
	// Push delivers the notification to the target URL. The payload is
	// signed so the receiver can authenticate the sender.
	Push(ctx context.Context, target string, n Notification) error
}
