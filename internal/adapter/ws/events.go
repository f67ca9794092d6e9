package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventTaskStatus      = "task.status"
	EventTaskPartial     = "task.partial"
	EventSpecialistState = "specialist.state"
)

// TaskStatusEvent is broadcast when a task's status changes.
type TaskStatusEvent struct {
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// TaskPartialEvent is broadcast when one specialist's contribution arrives.
type TaskPartialEvent struct {
	TaskID      string `json:"task_id"`
	SourceAgent string `json:"source_agent"`
	Content     string `json:"content"`
}

// SpecialistStateEvent is broadcast when a specialist's health changes.
type SpecialistStateEvent struct {
	SpecialistID string `json:"specialist_id"`
	Health       string `json:"health"`
}

// BroadcastEvent marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
