package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	skotel "github.com/skyfuse/skyfuse/internal/adapter/otel"
	"github.com/skyfuse/skyfuse/internal/domain"
	"github.com/skyfuse/skyfuse/internal/domain/event"
	"github.com/skyfuse/skyfuse/internal/domain/task"
	"github.com/skyfuse/skyfuse/internal/port/broadcast"
	"github.com/skyfuse/skyfuse/internal/port/database"
	"github.com/skyfuse/skyfuse/internal/port/eventstore"
	"github.com/skyfuse/skyfuse/internal/port/messagequeue"
	"github.com/skyfuse/skyfuse/internal/port/notifier"
)

// FrameType classifies one streamed task update.
type FrameType string

const (
	FrameStatus   FrameType = "status"
	FramePartial  FrameType = "partial"
	FrameComplete FrameType = "complete"
	FrameError    FrameType = "error"
	FrameDone     FrameType = "done"
)

// Frame is one update on a task's stream. Subscribers receive status
// changes, per-specialist partial results, and exactly one terminal frame
// followed by done.
type Frame struct {
	Type        FrameType    `json:"type"`
	TaskID      string       `json:"task_id"`
	Status      task.Status  `json:"status,omitempty"`
	SourceAgent string       `json:"source_agent,omitempty"`
	Content     string       `json:"content,omitempty"`
	Result      *task.Result `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// ManagerDeps are the collaborators of the task manager. All of them are
// optional; a nil dependency disables that side effect.
type ManagerDeps struct {
	Store    database.Store
	Events   eventstore.Store
	Queue    messagequeue.Queue
	Hub      broadcast.Broadcaster
	Notifier notifier.Notifier
	Metrics  *skotel.Metrics
}

// Manager owns every task's lifecycle. The in-memory map is the runtime
// authority; persistence, the audit trail, the queue, the hub, and push
// notifications are write-through and best-effort. A task moves through
// the state machine only via the manager, so invalid transitions cannot
// happen concurrently.
type Manager struct {
	deps ManagerDeps
	now  func() time.Time

	mu       sync.RWMutex
	tasks    map[string]*task.Task
	subs     map[string]map[chan Frame]struct{}
	cancels  map[string]context.CancelFunc
	notified map[string]bool
}

// NewManager creates a task manager.
func NewManager(deps ManagerDeps) *Manager {
	return &Manager{
		deps:     deps,
		now:      time.Now,
		tasks:    make(map[string]*task.Task),
		subs:     make(map[string]map[chan Frame]struct{}),
		cancels:  make(map[string]context.CancelFunc),
		notified: make(map[string]bool),
	}
}

// Submit creates a task in the submitted state, or returns the existing
// task unchanged when the ID was seen before. The second return reports
// whether a new task was created.
func (m *Manager) Submit(ctx context.Context, id, sessionID string, msg task.Message, pushTarget string) (*task.Task, bool, error) {
	m.mu.Lock()
	if existing, ok := m.tasks[id]; ok {
		snapshot := cloneTask(existing)
		m.mu.Unlock()
		return snapshot, false, nil
	}
	t := &task.Task{
		ID:         id,
		SessionID:  sessionID,
		Status:     task.StatusSubmitted,
		History:    []task.Message{msg},
		PushTarget: pushTarget,
		CreatedAt:  m.now(),
		UpdatedAt:  m.now(),
	}
	m.tasks[id] = t
	snapshot := cloneTask(t)
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	m.record(ctx, snapshot, event.TypeSubmitted, nil)
	m.publish(ctx, messagequeue.SubjectTaskSubmitted, snapshot)
	m.broadcastStatus(ctx, snapshot)
	slog.Info("task submitted", "task_id", id, "session_id", sessionID)
	return snapshot, true, nil
}

// Get returns a task by ID, falling back to durable storage for tasks
// from before the last restart.
func (m *Manager) Get(ctx context.Context, id string) (*task.Task, error) {
	m.mu.RLock()
	t, ok := m.tasks[id]
	if ok {
		snapshot := cloneTask(t)
		m.mu.RUnlock()
		return snapshot, nil
	}
	m.mu.RUnlock()

	if m.deps.Store != nil {
		return m.deps.Store.GetTask(ctx, id)
	}
	return nil, domain.ErrNotFound
}

// ListBySession returns the session's tasks, oldest first.
func (m *Manager) ListBySession(ctx context.Context, sessionID string) ([]task.Task, error) {
	if m.deps.Store != nil {
		return m.deps.Store.ListTasksBySession(ctx, sessionID)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []task.Task
	for _, t := range m.tasks {
		if t.SessionID == sessionID {
			out = append(out, *cloneTask(t))
		}
	}
	sortTasksByCreation(out)
	return out, nil
}

// History returns the task's audit trail, oldest first.
func (m *Manager) History(ctx context.Context, taskID string) ([]event.TaskEvent, error) {
	if m.deps.Events == nil {
		return nil, nil
	}
	return m.deps.Events.LoadByTask(ctx, taskID)
}

// Transition moves a task to a non-terminal status. Moves out of a
// terminal state are rejected with domain.ErrInvalidTransition.
func (m *Manager) Transition(ctx context.Context, id string, to task.Status) (*task.Task, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	if !task.CanTransition(t.Status, to) {
		from := t.Status
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	t.Status = to
	t.UpdatedAt = m.now()
	snapshot := cloneTask(t)
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	m.record(ctx, snapshot, event.TypeStatus, statusPayload(to))
	m.publish(ctx, messagequeue.SubjectTaskStatus, snapshot)
	m.broadcastStatus(ctx, snapshot)
	m.emit(id, Frame{Type: FrameStatus, TaskID: id, Status: to})
	return snapshot, nil
}

// AppendMessage appends one entry to the task's history.
func (m *Manager) AppendMessage(ctx context.Context, id string, msg task.Message) error {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	t.History = append(t.History, msg)
	t.UpdatedAt = m.now()
	snapshot := cloneTask(t)
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	return nil
}

// Complete finalizes a task with its aggregated result.
func (m *Manager) Complete(ctx context.Context, id string, result *task.Result) (*task.Task, error) {
	snapshot, err := m.finalize(ctx, id, task.StatusCompleted, result)
	if err != nil {
		return nil, err
	}
	if m.deps.Metrics != nil {
		m.deps.Metrics.TasksCompleted.Add(ctx, 1)
	}
	m.emit(id, Frame{Type: FrameComplete, TaskID: id, Status: task.StatusCompleted, Result: snapshot.Result})
	m.finish(ctx, id, snapshot, event.TypeCompleted, messagequeue.SubjectTaskCompleted)
	return snapshot, nil
}

// Fail finalizes a task with a captured error.
func (m *Manager) Fail(ctx context.Context, id string, cause error) (*task.Task, error) {
	result := &task.Result{Error: cause.Error()}
	snapshot, err := m.finalize(ctx, id, task.StatusFailed, result)
	if err != nil {
		return nil, err
	}
	if m.deps.Metrics != nil {
		m.deps.Metrics.TasksFailed.Add(ctx, 1)
	}
	slog.Warn("task failed", "task_id", id, "error", cause)
	m.emit(id, Frame{Type: FrameError, TaskID: id, Status: task.StatusFailed, Error: cause.Error(), Result: snapshot.Result})
	m.finish(ctx, id, snapshot, event.TypeFailed, messagequeue.SubjectTaskFailed)
	return snapshot, nil
}

// Cancel requests cooperative cancellation. In-flight dispatches are
// canceled via the processing context; the task confirms canceled. A task
// already in a terminal state cannot be canceled and is returned as is
// with domain.ErrInvalidTransition, so the caller can report the final
// state that won the race.
func (m *Manager) Cancel(ctx context.Context, id string) (*task.Task, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	if t.Status.Terminal() {
		snapshot := cloneTask(t)
		m.mu.Unlock()
		if snapshot.Status == task.StatusCanceled {
			return snapshot, nil
		}
		return snapshot, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, snapshot.Status, task.StatusCanceled)
	}
	cancel := m.cancels[id]
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	snapshot, err := m.finalize(ctx, id, task.StatusCanceled, nil)
	if err != nil {
		return nil, err
	}
	if m.deps.Metrics != nil {
		m.deps.Metrics.TasksCanceled.Add(ctx, 1)
	}
	slog.Info("task canceled", "task_id", id)
	m.emit(id, Frame{Type: FrameStatus, TaskID: id, Status: task.StatusCanceled})
	m.finish(ctx, id, snapshot, event.TypeCanceled, messagequeue.SubjectTaskCanceled)
	return snapshot, nil
}

// BindCancel registers the cancel function of the task's processing
// context, making Cancel cooperative.
func (m *Manager) BindCancel(id string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[id] = cancel
}

// RecordSources appends one audit event per specialist contribution,
// distinguishing delegated results from direct dispatches.
func (m *Manager) RecordSources(ctx context.Context, id string, sources []task.SourceResult) {
	m.mu.RLock()
	t, ok := m.tasks[id]
	var snapshot *task.Task
	if ok {
		snapshot = cloneTask(t)
	}
	m.mu.RUnlock()
	if snapshot == nil {
		return
	}

	for i := range sources {
		evType := event.TypeDispatched
		if sources[i].Delegated {
			evType = event.TypeDelegated
		}
		payload, err := json.Marshal(sources[i])
		if err != nil {
			slog.Error("marshal source event", "task_id", id, "error", err)
			continue
		}
		m.record(ctx, snapshot, evType, payload)
	}
}

// EmitPartial streams one specialist's contribution to attached clients.
func (m *Manager) EmitPartial(id, sourceAgent, content string) {
	m.emit(id, Frame{Type: FramePartial, TaskID: id, SourceAgent: sourceAgent, Content: content})
}

// Attach subscribes to a task's update stream. For a task already in a
// terminal state the stream replays the final frame and closes, so late
// subscribers always observe the outcome. The returned stop function
// must be called when the subscriber goes away.
func (m *Manager) Attach(id string) (<-chan Frame, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}

	ch := make(chan Frame, 16)
	if t.Status.Terminal() {
		ch <- terminalFrame(t)
		ch <- Frame{Type: FrameDone, TaskID: id}
		close(ch)
		return ch, func() {}, nil
	}

	if m.subs[id] == nil {
		m.subs[id] = make(map[chan Frame]struct{})
	}
	m.subs[id][ch] = struct{}{}

	stop := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if set, ok := m.subs[id]; ok {
			if _, subscribed := set[ch]; subscribed {
				delete(set, ch)
				close(ch)
			}
		}
	}
	return ch, stop, nil
}

// finalize applies a terminal transition and stores the result. The push
// notification fires here, exactly once per task.
func (m *Manager) finalize(ctx context.Context, id string, to task.Status, result *task.Result) (*task.Task, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	// A cancel can land before processing starts. The status trace still
	// passes through working, so it is applied as an intermediate hop.
	var hop *task.Task
	if t.Status == task.StatusSubmitted && to == task.StatusCanceled {
		t.Status = task.StatusWorking
		t.UpdatedAt = m.now()
		hop = cloneTask(t)
	}
	if !task.CanTransition(t.Status, to) {
		from := t.Status
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	t.Status = to
	if result != nil {
		t.Result = result
	}
	t.UpdatedAt = m.now()
	delete(m.cancels, id)

	shouldNotify := t.PushTarget != "" && !m.notified[id]
	if shouldNotify {
		m.notified[id] = true
	}
	snapshot := cloneTask(t)
	m.mu.Unlock()

	if hop != nil {
		m.persist(ctx, hop)
		m.record(ctx, hop, event.TypeStatus, statusPayload(task.StatusWorking))
		m.publish(ctx, messagequeue.SubjectTaskStatus, hop)
		m.broadcastStatus(ctx, hop)
		m.emit(id, Frame{Type: FrameStatus, TaskID: id, Status: task.StatusWorking})
	}
	m.persist(ctx, snapshot)
	if shouldNotify && m.deps.Notifier != nil {
		m.pushNotification(snapshot)
	}
	return snapshot, nil
}

// finish handles the shared terminal side effects: audit event, queue
// publish, hub broadcast, and closing all attached streams.
func (m *Manager) finish(ctx context.Context, id string, snapshot *task.Task, evType event.Type, subject string) {
	m.record(ctx, snapshot, evType, resultPayload(snapshot))
	m.publish(ctx, subject, snapshot)
	m.broadcastStatus(ctx, snapshot)

	m.emit(id, Frame{Type: FrameDone, TaskID: id})
	m.mu.Lock()
	for ch := range m.subs[id] {
		close(ch)
	}
	delete(m.subs, id)
	m.mu.Unlock()
}

func (m *Manager) emit(id string, f Frame) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for ch := range m.subs[id] {
		select {
		case ch <- f:
		default:
			// A slow subscriber loses frames rather than stalling the task.
			slog.Debug("dropping frame for slow subscriber", "task_id", id, "frame", f.Type)
		}
	}
}

func (m *Manager) pushNotification(t *task.Task) {
	// Delivery must not block or fail the terminal transition.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		n := notifier.Notification{
			TaskID:    t.ID,
			SessionID: t.SessionID,
			Status:    t.Status,
			Result:    t.Result,
		}
		if err := m.deps.Notifier.Push(ctx, t.PushTarget, n); err != nil {
			slog.Error("push notification failed", "task_id", t.ID, "target", t.PushTarget, "error", err)
		}
	}()
}

func (m *Manager) persist(ctx context.Context, t *task.Task) {
	if m.deps.Store == nil {
		return
	}
	if err := m.deps.Store.SaveTask(ctx, t); err != nil {
		slog.Error("persist task failed", "task_id", t.ID, "error", err)
	}
}

func (m *Manager) record(ctx context.Context, t *task.Task, evType event.Type, payload json.RawMessage) {
	if m.deps.Events == nil {
		return
	}
	ev := &event.TaskEvent{
		TaskID:    t.ID,
		SessionID: t.SessionID,
		Type:      evType,
		Payload:   payload,
		CreatedAt: m.now(),
	}
	if err := m.deps.Events.Append(ctx, ev); err != nil {
		slog.Error("append task event failed", "task_id", t.ID, "type", evType, "error", err)
	}
}

func (m *Manager) publish(ctx context.Context, subject string, t *task.Task) {
	if m.deps.Queue == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := m.deps.Queue.Publish(ctx, subject, data); err != nil {
		slog.Error("publish task event failed", "task_id", t.ID, "subject", subject, "error", err)
	}
}

func (m *Manager) broadcastStatus(ctx context.Context, t *task.Task) {
	if m.deps.Hub == nil {
		return
	}
	m.deps.Hub.BroadcastEvent(ctx, string(event.TypeStatus), map[string]any{
		"task_id":    t.ID,
		"session_id": t.SessionID,
		"status":     t.Status,
	})
}

func terminalFrame(t *task.Task) Frame {
	switch t.Status {
	case task.StatusFailed:
		f := Frame{Type: FrameError, TaskID: t.ID, Status: t.Status, Result: t.Result}
		if t.Result != nil {
			f.Error = t.Result.Error
		}
		return f
	case task.StatusCanceled:
		return Frame{Type: FrameStatus, TaskID: t.ID, Status: t.Status}
	default:
		return Frame{Type: FrameComplete, TaskID: t.ID, Status: t.Status, Result: t.Result}
	}
}

func statusPayload(s task.Status) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"status": string(s)})
	return data
}

func resultPayload(t *task.Task) json.RawMessage {
	data, _ := json.Marshal(map[string]any{"status": t.Status, "result": t.Result})
	return data
}

func cloneTask(t *task.Task) *task.Task {
	cp := *t
	cp.History = append([]task.Message(nil), t.History...)
	return &cp
}

func sortTasksByCreation(tasks []task.Task) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].CreatedAt.Before(tasks[j].CreatedAt) })
}
