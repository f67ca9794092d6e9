package http

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/skyfuse/skyfuse/internal/config"
	"github.com/skyfuse/skyfuse/internal/domain/agent"
	"github.com/skyfuse/skyfuse/internal/domain/correlation"
	"github.com/skyfuse/skyfuse/internal/domain/task"
	"github.com/skyfuse/skyfuse/internal/service"
)

const maxBodyBytes = 1 << 20

// KeyPublisher exposes the push-notification verification key.
type KeyPublisher interface {
	PublicKey() ed25519.PublicKey
}

// HealthCheck probes one dependency's liveness.
type HealthCheck func(ctx context.Context) error

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	agentCfg     config.Agent
	orchestrator *service.Orchestrator
	manager      *service.Manager
	registry     *service.Registry
	auth         *service.AuthService
	keys         KeyPublisher // nil when push notifications are disabled
	checks       map[string]HealthCheck
}

// NewHandlers creates the handler set.
func NewHandlers(agentCfg config.Agent, o *service.Orchestrator, m *service.Manager, reg *service.Registry, auth *service.AuthService, keys KeyPublisher) *Handlers {
	return &Handlers{
		agentCfg:     agentCfg,
		orchestrator: o,
		manager:      m,
		registry:     reg,
		auth:         auth,
		keys:         keys,
		checks:       make(map[string]HealthCheck),
	}
}

// AddHealthCheck registers a named dependency probe reported by /health.
func (h *Handlers) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// Health reports liveness, the size of the routable specialist set, and
// the state of each registered dependency probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	routable := 0
	for _, c := range h.registry.Snapshot() {
		if c.Routable() {
			routable++
		}
	}

	body := map[string]any{
		"status":               "ok",
		"routable_specialists": routable,
	}
	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		if err := check(ctx); err != nil {
			body[name] = err.Error()
			body["status"] = "degraded"
		} else {
			body[name] = "ok"
		}
		cancel()
	}
	writeJSON(w, http.StatusOK, body)
}

// AgentDescriptor serves this orchestrator's own capability advertisement,
// making it discoverable the same way it discovers specialists. Its
// capability set is the union of what its routable specialists advertise.
func (h *Handlers) AgentDescriptor(w http.ResponseWriter, _ *http.Request) {
	seen := make(map[agent.Capability]bool)
	var capabilities []string
	for _, c := range h.registry.Snapshot() {
		if !c.Routable() {
			continue
		}
		for _, tag := range c.Capabilities {
			if !seen[tag] {
				seen[tag] = true
				capabilities = append(capabilities, string(tag))
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                     h.agentCfg.ID,
		"name":                   h.agentCfg.Name,
		"url":                    h.agentCfg.URL,
		"version":                h.agentCfg.Version,
		"capabilities":           capabilities,
		"health_check_supported": true,
	})
}

type submitTaskRequest struct {
	ID         string `json:"id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Text       string `json:"text"`
	PushTarget string `json:"push_target,omitempty"`
	Async      bool   `json:"async,omitempty"`
}

// SubmitTask accepts a new task. Sync submissions block until the task
// reaches a resting state; async submissions return 202 immediately.
func (h *Handlers) SubmitTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[submitTaskRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	if !requireField(w, req.Text, "text") {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	msg := task.Message{Role: task.RoleUser, Parts: []task.Part{task.TextPart(req.Text)}}

	if req.Async {
		t, err := h.orchestrator.HandleAsync(r.Context(), req.ID, req.SessionID, msg, req.PushTarget)
		if err != nil {
			writeDomainError(w, err, "task not found")
			return
		}
		writeJSON(w, http.StatusAccepted, t)
		return
	}

	t, err := h.orchestrator.HandleSync(r.Context(), req.ID, req.SessionID, msg, req.PushTarget)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetTask returns a task by ID.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.manager.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CancelTask requests cooperative cancellation. A task that already
// reached another terminal state is reported with 409 and its final state.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.manager.Cancel(r.Context(), urlParam(r, "id"))
	if err != nil {
		if t != nil {
			writeJSON(w, http.StatusConflict, t)
			return
		}
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListTaskEvents returns the task's audit trail.
func (h *Handlers) ListTaskEvents(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if _, err := h.manager.Get(r.Context(), id); err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	events, err := h.manager.History(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// ListSessionTasks returns all tasks in a session, oldest first.
func (h *Handlers) ListSessionTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.manager.ListBySession(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

// ListSpecialists returns every known specialist card including health.
func (h *Handlers) ListSpecialists(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"specialists": h.registry.Snapshot()})
}

type registerSpecialistRequest struct {
	Endpoint string `json:"endpoint"`
}

// RegisterSpecialist adds a specialist endpoint to the discovery set and
// probes it immediately. A failed probe still leaves the endpoint
// registered for the next discovery pass.
func (h *Handlers) RegisterSpecialist(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[registerSpecialistRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	if !requireField(w, req.Endpoint, "endpoint") {
		return
	}

	card, err := h.registry.Register(r.Context(), req.Endpoint)
	if err != nil {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"endpoint": req.Endpoint,
			"status":   "pending",
			"error":    err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

type correlateRequest struct {
	Scores   map[string]float64 `json:"scores"`
	BaseFare *float64           `json:"base_fare,omitempty"`
	Expected []string           `json:"expected,omitempty"`
}

// Correlate exposes the correlation engine directly, for callers that
// already hold impact scores.
func (h *Handlers) Correlate(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[correlateRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}

	in := correlation.Input{
		Scores: make(map[correlation.Factor]float64, len(req.Scores)),
		Base:   req.BaseFare,
	}
	for name, value := range req.Scores {
		in.Scores[correlation.Factor(name)] = value
	}
	for _, name := range req.Expected {
		in.Expected = append(in.Expected, correlation.Factor(name))
	}

	res, err := correlation.Correlate(in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// NotificationKey publishes the ed25519 key receivers use to verify
// push-notification signatures.
func (h *Handlers) NotificationKey(w http.ResponseWriter, _ *http.Request) {
	if h.keys == nil {
		writeError(w, http.StatusNotFound, "push notifications disabled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"algorithm":  "ed25519",
		"public_key": base64.StdEncoding.EncodeToString(h.keys.PublicKey()),
	})
}

// requireAdmin gates handlers behind the bcrypt-hashed admin API key.
func (h *Handlers) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.auth.VerifyAdminKey(r.Header.Get("X-API-Key")); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
