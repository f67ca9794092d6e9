package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skyfuse/skyfuse/internal/domain/event"
)

// EventStore implements the task audit trail using PostgreSQL (append-only).
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts a new event into the task_events table.
func (s *EventStore) Append(ctx context.Context, ev *event.TaskEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_events (task_id, session_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.TaskID, ev.SessionID, string(ev.Type), ev.Payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// LoadByTask returns all events for the given task, oldest first.
func (s *EventStore) LoadByTask(ctx context.Context, taskID string) ([]event.TaskEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, task_id, session_id, event_type, payload, created_at
		 FROM task_events WHERE task_id = $1 ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("load events by task %s: %w", taskID, err)
	}
	defer rows.Close()

	var events []event.TaskEvent
	for rows.Next() {
		var ev event.TaskEvent
		var evType string
		if err := rows.Scan(&ev.ID, &ev.TaskID, &ev.SessionID, &evType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = event.Type(evType)
		events = append(events, ev)
	}
	return events, rows.Err()
}
