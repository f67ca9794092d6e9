// Package task defines the Task domain entity and its state machine.
package task

import (
	"time"

	"github.com/skyfuse/skyfuse/internal/domain/agent"
)

// Status represents the current state of a task.
type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusWorking       Status = "working"
	StatusInputRequired Status = "input_required"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCanceled      Status = "canceled"
)

// Terminal reports whether the status is final. Terminal statuses are
// never revisited.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// transitions is the allowed state machine. Every task passes through
// working before any terminal state; submitted never jumps straight to one.
var transitions = map[Status][]Status{
	StatusSubmitted:     {StatusWorking},
	StatusWorking:       {StatusInputRequired, StatusCompleted, StatusFailed, StatusCanceled},
	StatusInputRequired: {StatusWorking, StatusCanceled},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Part is one content part of a message: plain text or structured data.
type Part struct {
	Type string         `json:"type"` // "text" or "data"
	Text string         `json:"text,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) Part {
	return Part{Type: "text", Text: text}
}

// DataPart builds a structured data content part.
func DataPart(data map[string]any) Part {
	return Part{Type: "data", Data: data}
}

// Message is one entry in a task's history. Immutable once appended.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// SourceResult is one specialist's contribution to a task result,
// tagged with which specialist and capability produced it. Unavailable
// specialists appear as explicit entries rather than being omitted.
type SourceResult struct {
	Specialist  string           `json:"specialist"`
	Capability  agent.Capability `json:"capability"`
	Text        string           `json:"text,omitempty"`
	Data        map[string]any   `json:"data,omitempty"`
	Delegated   bool             `json:"delegated,omitempty"`
	Unavailable bool             `json:"unavailable,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Result is the aggregated payload of a finished task.
type Result struct {
	Sources []SourceResult `json:"sources,omitempty"`
	// Correlation holds the fused demand signal when one was computed.
	// Stored as a generic map so the result payload stays wire-shaped.
	Correlation map[string]any `json:"correlation,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// UnavailableSources lists the specialists that contributed no data,
// for labeling partial results.
func (r *Result) UnavailableSources() []string {
	var out []string
	for _, src := range r.Sources {
		if src.Unavailable {
			out = append(out, src.Specialist)
		}
	}
	return out
}

// Task represents one unit of orchestrated work with its own lifecycle.
// It is owned exclusively by the task manager and mutated only through
// defined transitions.
type Task struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Status    Status    `json:"status"`
	History   []Message `json:"history"`
	Result    *Result   `json:"result,omitempty"`
	// PushTarget is an optional webhook URL notified once on terminal state.
	PushTarget string    `json:"push_target,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UserText returns the text of the most recent user message, which is the
// request the orchestrator routes on.
func (t *Task) UserText() string {
	for i := len(t.History) - 1; i >= 0; i-- {
		if t.History[i].Role != RoleUser {
			continue
		}
		for _, p := range t.History[i].Parts {
			if p.Type == "text" {
				return p.Text
			}
		}
	}
	return ""
}
