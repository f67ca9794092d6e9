package a2a

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skyfuse/skyfuse/internal/domain/agent"
	"github.com/skyfuse/skyfuse/internal/port/specialist"
	"github.com/skyfuse/skyfuse/internal/resilience"
)

func newTestClient() *Client {
	return NewClient(2*time.Second, 5, time.Minute)
}

func TestFetchCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DescriptorPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "weather-1",
			"name": "Aviation Weather",
			"version": "1.2.0",
			"capabilities": ["weather"],
			"skills": [{"id": "metar", "name": "METAR lookup"}],
			"health_check_supported": true
		}`))
	}))
	defer srv.Close()

	card, err := newTestClient().FetchCard(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if card.ID != "weather-1" {
		t.Errorf("id = %s", card.ID)
	}
	// Descriptor omitted url; the probed endpoint is used.
	if card.URL != srv.URL {
		t.Errorf("url = %s, want %s", card.URL, srv.URL)
	}
	if len(card.Capabilities) != 1 || card.Capabilities[0] != agent.CapabilityWeather {
		t.Errorf("capabilities = %v", card.Capabilities)
	}
	if len(card.Skills) != 1 || card.Skills[0].ID != "metar" {
		t.Errorf("skills = %v", card.Skills)
	}
}

func TestFetchCardRejectsMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name": "anonymous"}`))
	}))
	defer srv.Close()

	if _, err := newTestClient().FetchCard(context.Background(), srv.URL); err == nil {
		t.Error("expected error for descriptor without id")
	}
}

func TestSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tasks/send" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{
			"text": "storms expected at ORD",
			"data": {"impact_score": 8.0},
			"delegate": {"capability": "economic", "query": "fuel prices"}
		}`))
	}))
	defer srv.Close()

	card := &agent.Card{ID: "weather-1", URL: srv.URL}
	resp, err := newTestClient().Send(context.Background(), card, specialist.Request{
		TaskID:    "t1",
		SessionID: "s1",
		Text:      "weather at ORD tomorrow",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "storms expected at ORD" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Data["impact_score"] != 8.0 {
		t.Errorf("data = %v", resp.Data)
	}
	if resp.Delegate == nil || resp.Delegate.Capability != agent.CapabilityEconomic {
		t.Errorf("delegate = %v", resp.Delegate)
	}
}

func TestSendSurfacesSpecialistError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error": "upstream API quota exhausted"}`))
	}))
	defer srv.Close()

	card := &agent.Card{ID: "news-1", URL: srv.URL}
	_, err := newTestClient().Send(context.Background(), card, specialist.Request{Text: "united news"})
	if err == nil {
		t.Fatal("expected specialist error")
	}
}

func TestSendNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	card := &agent.Card{ID: "x", URL: srv.URL}
	if _, err := newTestClient().Send(context.Background(), card, specialist.Request{}); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestBreakerOpensPerEndpoint(t *testing.T) {
	c := NewClient(time.Second, 1, time.Minute)

	// One failed call against a closed port opens that endpoint's breaker.
	card := &agent.Card{ID: "down", URL: "http://127.0.0.1:1"}
	_, _ = c.Send(context.Background(), card, specialist.Request{})
	_, err := c.Send(context.Background(), card, specialist.Request{})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}

	// A different endpoint is unaffected.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()
	if _, err := c.Send(context.Background(), &agent.Card{ID: "up", URL: srv.URL}, specialist.Request{}); err != nil {
		t.Errorf("healthy endpoint blocked: %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	if !specialist.IsTransient(context.DeadlineExceeded) {
		t.Error("deadline exceeded should be transient")
	}
	if specialist.IsTransient(nil) {
		t.Error("nil is not transient")
	}
	if specialist.IsTransient(errors.New("parse failure")) {
		t.Error("plain errors are not transient")
	}
}
