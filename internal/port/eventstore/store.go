// Package eventstore defines the append-only task event store port.
package eventstore

import (
	"context"

	"github.com/skyfuse/skyfuse/internal/domain/event"
)

// Store is the port interface for the task audit trail.
type Store interface {
	// Append inserts a new event. Events are never updated or deleted.
	Append(ctx context.Context, ev *event.TaskEvent) error

	// LoadByTask returns all events for the given task, oldest first.
	LoadByTask(ctx context.Context, taskID string) ([]event.TaskEvent, error)
}
