// Package event defines the append-only task event record.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies what happened to a task.
type Type string

const (
	TypeSubmitted  Type = "task.submitted"
	TypeStatus     Type = "task.status"
	TypeDispatched Type = "task.dispatched"
	TypeDelegated  Type = "task.delegated"
	TypeCompleted  Type = "task.completed"
	TypeFailed     Type = "task.failed"
	TypeCanceled   Type = "task.canceled"
)

// TaskEvent is one immutable entry in a task's audit trail.
type TaskEvent struct {
	ID        int64           `json:"id"`
	TaskID    string          `json:"task_id"`
	SessionID string          `json:"session_id"`
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
