// Package database defines the persistence port (interface).
package database

import (
	"context"

	"github.com/skyfuse/skyfuse/internal/domain/agent"
	"github.com/skyfuse/skyfuse/internal/domain/task"
)

// Store is the port interface for durable storage of agent cards and tasks.
// The in-memory registry and task manager are the runtime authority; the
// store is write-through so state survives restarts and can be inspected.
type Store interface {
	// UpsertCard inserts or updates an agent card by ID.
	UpsertCard(ctx context.Context, c *agent.Card) error

	// ListCards returns all known agent cards.
	ListCards(ctx context.Context) ([]agent.Card, error)

	// SaveTask inserts or updates a task by ID, including history and result.
	SaveTask(ctx context.Context, t *task.Task) error

	// GetTask returns a task by ID, or domain.ErrNotFound.
	GetTask(ctx context.Context, id string) (*task.Task, error)

	// ListTasksBySession returns all tasks in a session, oldest first.
	ListTasksBySession(ctx context.Context, sessionID string) ([]task.Task, error)
}
