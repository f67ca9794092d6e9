package http

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skyfuse/skyfuse/internal/config"
	"github.com/skyfuse/skyfuse/internal/domain/agent"
	"github.com/skyfuse/skyfuse/internal/domain/task"
	"github.com/skyfuse/skyfuse/internal/port/specialist"
	"github.com/skyfuse/skyfuse/internal/service"
)

// stubSpecialist serves one weather specialist with a canned response.
type stubSpecialist struct {
	card *agent.Card
	resp *specialist.Response
}

func (s *stubSpecialist) FetchCard(_ context.Context, endpoint string) (*agent.Card, error) {
	cp := *s.card
	cp.URL = endpoint
	return &cp, nil
}

func (s *stubSpecialist) Send(context.Context, *agent.Card, specialist.Request) (*specialist.Response, error) {
	return s.resp, nil
}

// stubClassifier tags everything as a weather request.
type stubClassifier struct{}

func (stubClassifier) Classify(context.Context, string) []agent.Capability {
	return []agent.Capability{agent.CapabilityWeather}
}

type testEnv struct {
	router   chi.Router
	registry *service.Registry
	manager  *service.Manager
	handlers *Handlers
	adminKey string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	stub := &stubSpecialist{
		card: &agent.Card{
			ID:           "weather-1",
			Name:         "weather-1",
			Capabilities: []agent.Capability{agent.CapabilityWeather},
		},
		resp: &specialist.Response{Text: "sunny", Data: map[string]any{"impact_score": 2.0}},
	}

	registry := service.NewRegistry(config.Discovery{
		Interval:         time.Hour,
		FailureThreshold: 3,
		ProbeTimeout:     time.Second,
	}, stub, nil)
	if _, err := registry.Register(context.Background(), "http://weather"); err != nil {
		t.Fatal(err)
	}

	routerSvc := service.NewRouter(config.Router{
		DispatchTimeout: time.Second,
		MaxFanout:       5,
		ResponseTTL:     time.Minute,
	}, registry, stub, stubClassifier{}, nil, nil)

	manager := service.NewManager(service.ManagerDeps{})
	orch := service.NewOrchestrator(routerSvc, manager)

	const adminKey = "letmein"
	hash, err := service.HashAdminKey(adminKey)
	if err != nil {
		t.Fatal(err)
	}
	auth := service.NewAuthService(config.Auth{AdminKeyHash: hash})

	h := NewHandlers(config.Agent{
		ID:      "skyfuse-orchestrator",
		Name:    "Skyfuse Orchestrator",
		URL:     "http://localhost:8080",
		Version: "0.1.0",
	}, orch, manager, registry, auth, nil)

	r := chi.NewRouter()
	MountRoutes(r, h)
	return &testEnv{router: r, registry: registry, manager: manager, handlers: h, adminKey: adminKey}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitTaskSync(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/tasks", `{"id":"t1","text":"weather in paris"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var got task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != "t1" || got.Status != task.StatusCompleted {
		t.Errorf("task = %+v", got)
	}
	if got.Result == nil || len(got.Result.Sources) != 1 || got.Result.Sources[0].Specialist != "weather-1" {
		t.Errorf("result = %+v", got.Result)
	}
}

func TestSubmitTaskRequiresText(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/tasks", `{"id":"t1"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSubmitTaskAsyncReturnsAccepted(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/tasks", `{"id":"t1","text":"weather","async":true}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	var got task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusSubmitted {
		t.Errorf("immediate status = %s", got.Status)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/tasks/missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestCancelCompletedTaskConflicts(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodPost, "/api/v1/tasks", `{"id":"t1","text":"weather"}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/tasks/t1/cancel", "", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	var got task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusCompleted {
		t.Errorf("reported final state = %s", got.Status)
	}
}

func TestRegisterSpecialistRequiresAdminKey(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/specialists", `{"endpoint":"http://new"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without key: status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/specialists", `{"endpoint":"http://new"}`,
		map[string]string{"X-API-Key": env.adminKey})
	if rec.Code != http.StatusCreated {
		t.Fatalf("with key: status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestListSpecialists(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/specialists", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Specialists []agent.Card `json:"specialists"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Specialists) != 1 || body.Specialists[0].ID != "weather-1" {
		t.Errorf("specialists = %+v", body.Specialists)
	}
}

func TestAgentDescriptorAggregatesCapabilities(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/.well-known/agent.json", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		ID           string   `json:"id"`
		Capabilities []string `json:"capabilities"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.ID != "skyfuse-orchestrator" {
		t.Errorf("id = %s", body.ID)
	}
	if len(body.Capabilities) != 1 || body.Capabilities[0] != "weather" {
		t.Errorf("capabilities = %v", body.Capabilities)
	}
}

func TestCorrelateEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/correlate",
		`{"scores":{"weather_impact":8.5},"base_fare":400}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var body struct {
		Composite float64  `json:"composite"`
		Adjusted  *float64 `json:"adjusted"`
		Tier      string   `json:"tier"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Composite != 8.5 || body.Tier != "HIGH" {
		t.Errorf("body = %+v", body)
	}
	if body.Adjusted == nil || *body.Adjusted != 570.0 {
		t.Errorf("adjusted = %v", body.Adjusted)
	}
}

func TestCorrelateRejectsOutOfRangeScore(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/correlate", `{"scores":{"weather_impact":11}}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestNotificationKeyDisabled(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/notifications/key", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHealthReportsDependencyState(t *testing.T) {
	env := newTestEnv(t)
	env.handlers.AddHealthCheck("postgres", func(context.Context) error { return nil })
	env.handlers.AddHealthCheck("nats", func(context.Context) error { return errors.New("connection closed") })

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v", body["status"])
	}
	if body["postgres"] != "ok" || body["nats"] != "connection closed" {
		t.Errorf("body = %v", body)
	}
}

type stubKeys struct{ pub ed25519.PublicKey }

func (s stubKeys) PublicKey() ed25519.PublicKey { return s.pub }

func TestNotificationKeyPublished(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	manager := service.NewManager(service.ManagerDeps{})
	registry := service.NewRegistry(config.Discovery{Interval: time.Hour, ProbeTimeout: time.Second}, &stubSpecialist{card: &agent.Card{ID: "x"}}, nil)
	h := NewHandlers(config.Agent{}, nil, manager, registry, service.NewAuthService(config.Auth{}), stubKeys{pub: pub})

	r := chi.NewRouter()
	MountRoutes(r, h)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/key", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["algorithm"] != "ed25519" || body["public_key"] == "" {
		t.Errorf("body = %v", body)
	}
}

func TestStreamTaskReplaysTerminalOutcome(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodPost, "/api/v1/tasks", `{"id":"t1","text":"weather"}`, nil); rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/tasks/t1/stream", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %s", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: complete") || !strings.Contains(body, "event: done") {
		t.Errorf("stream = %q", body)
	}
}
