package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skyfuse/skyfuse/internal/domain"
	"github.com/skyfuse/skyfuse/internal/domain/agent"
	"github.com/skyfuse/skyfuse/internal/domain/task"
)

// Store implements the database port using PostgreSQL. Cards, histories,
// and results are stored as JSONB so the wire shape round-trips.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UpsertCard inserts or updates an agent card by ID.
func (s *Store) UpsertCard(ctx context.Context, c *agent.Card) error {
	capabilities, err := json.Marshal(c.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	skills, err := json.Marshal(c.Skills)
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO agent_cards (id, name, url, version, capabilities, skills, health, last_seen, failures, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, url = EXCLUDED.url, version = EXCLUDED.version,
		   capabilities = EXCLUDED.capabilities, skills = EXCLUDED.skills,
		   health = EXCLUDED.health, last_seen = EXCLUDED.last_seen,
		   failures = EXCLUDED.failures, updated_at = now()`,
		c.ID, c.Name, c.URL, c.Version, capabilities, skills, string(c.Health), nullTime(c.LastSeen), c.Failures)
	if err != nil {
		return fmt.Errorf("upsert card %s: %w", c.ID, err)
	}
	return nil
}

// ListCards returns all known agent cards, ordered by ID.
func (s *Store) ListCards(ctx context.Context) ([]agent.Card, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, url, version, capabilities, skills, health, last_seen, failures
		 FROM agent_cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var cards []agent.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

func scanCard(row pgx.Row) (*agent.Card, error) {
	var (
		c            agent.Card
		capabilities []byte
		skills       []byte
		health       string
		lastSeen     *time.Time
	)
	if err := row.Scan(&c.ID, &c.Name, &c.URL, &c.Version, &capabilities, &skills, &health, &lastSeen, &c.Failures); err != nil {
		return nil, fmt.Errorf("scan card: %w", err)
	}
	if err := json.Unmarshal(capabilities, &c.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshal capabilities: %w", err)
	}
	if err := json.Unmarshal(skills, &c.Skills); err != nil {
		return nil, fmt.Errorf("unmarshal skills: %w", err)
	}
	c.Health = agent.Health(health)
	if lastSeen != nil {
		c.LastSeen = *lastSeen
	}
	return &c, nil
}

// SaveTask inserts or updates a task by ID, including history and result.
func (s *Store) SaveTask(ctx context.Context, t *task.Task) error {
	history, err := json.Marshal(t.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	var result []byte
	if t.Result != nil {
		if result, err = json.Marshal(t.Result); err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tasks (id, session_id, status, history, result, push_target, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status, history = EXCLUDED.history,
		   result = EXCLUDED.result, updated_at = EXCLUDED.updated_at`,
		t.ID, t.SessionID, string(t.Status), history, result, t.PushTarget, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

const taskColumns = `id, session_id, status, history, result, push_target, created_at, updated_at`

// GetTask returns a task by ID, or domain.ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1`, taskColumns), id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// ListTasksBySession returns all tasks in a session, oldest first.
func (s *Store) ListTasksBySession(ctx context.Context, sessionID string) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM tasks WHERE session_id = $1 ORDER BY created_at`, taskColumns), sessionID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t       task.Task
		status  string
		history []byte
		result  []byte
	)
	if err := row.Scan(&t.ID, &t.SessionID, &status, &history, &result, &t.PushTarget, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	if err := json.Unmarshal(history, &t.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	if len(result) > 0 {
		t.Result = &task.Result{}
		if err := json.Unmarshal(result, t.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return &t, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
