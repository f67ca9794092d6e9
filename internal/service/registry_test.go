package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skyfuse/skyfuse/internal/config"
	"github.com/skyfuse/skyfuse/internal/domain/agent"
	"github.com/skyfuse/skyfuse/internal/port/specialist"
)

// fakeSpecialist implements the specialist port for tests. Cards and
// failures are keyed by endpoint/card URL.
type fakeSpecialist struct {
	mu        sync.Mutex
	cards     map[string]*agent.Card           // endpoint -> descriptor
	down      map[string]bool                  // endpoint/url -> unreachable
	responses map[string]*specialist.Response  // card ID -> canned response
	sendErr   map[string]error                 // card ID -> error
	sendHook  func(card *agent.Card, req specialist.Request) (*specialist.Response, error)
	sent      []specialist.Request
}

func newFakeSpecialist() *fakeSpecialist {
	return &fakeSpecialist{
		cards:     make(map[string]*agent.Card),
		down:      make(map[string]bool),
		responses: make(map[string]*specialist.Response),
		sendErr:   make(map[string]error),
	}
}

func (f *fakeSpecialist) FetchCard(_ context.Context, endpoint string) (*agent.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down[endpoint] {
		return nil, errors.New("connection refused")
	}
	c, ok := f.cards[endpoint]
	if !ok {
		return nil, errors.New("no descriptor")
	}
	cp := *c
	return &cp, nil
}

func (f *fakeSpecialist) Send(_ context.Context, card *agent.Card, req specialist.Request) (*specialist.Response, error) {
	f.mu.Lock()
	hook := f.sendHook
	f.sent = append(f.sent, req)
	errOut := f.sendErr[card.ID]
	resp := f.responses[card.ID]
	f.mu.Unlock()

	if hook != nil {
		return hook(card, req)
	}
	if errOut != nil {
		return nil, errOut
	}
	if resp == nil {
		return &specialist.Response{Text: "ok from " + card.ID}, nil
	}
	return resp, nil
}

func (f *fakeSpecialist) setDown(endpoint string, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[endpoint] = down
}

func discoveryConfig(endpoints ...string) config.Discovery {
	return config.Discovery{
		Endpoints:        endpoints,
		Interval:         time.Hour,
		FailureThreshold: 3,
		ProbeTimeout:     time.Second,
	}
}

func weatherCard(id, url string) *agent.Card {
	return &agent.Card{
		ID:           id,
		Name:         id,
		URL:          url,
		Version:      "1.0.0",
		Capabilities: []agent.Capability{agent.CapabilityWeather},
	}
}

func TestRegisterProbesAndStoresCard(t *testing.T) {
	fake := newFakeSpecialist()
	fake.cards["http://w1"] = weatherCard("weather-1", "http://w1")

	r := NewRegistry(discoveryConfig(), fake, nil)
	card, err := r.Register(context.Background(), "http://w1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if card.Health != agent.HealthHealthy {
		t.Errorf("health = %s, want healthy", card.Health)
	}

	got := r.Query([]agent.Capability{agent.CapabilityWeather})
	if len(got) != 1 || got[0].ID != "weather-1" {
		t.Errorf("Query = %v", got)
	}
}

func TestRegisterIsIdempotentByID(t *testing.T) {
	fake := newFakeSpecialist()
	fake.cards["http://w1"] = weatherCard("weather-1", "http://w1")

	r := NewRegistry(discoveryConfig(), fake, nil)
	if _, err := r.Register(context.Background(), "http://w1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register(context.Background(), "http://w1"); err != nil {
		t.Fatal(err)
	}
	if got := len(r.Snapshot()); got != 1 {
		t.Errorf("cards = %d, want 1", got)
	}
}

func TestEvictionAfterExactlyKFailures(t *testing.T) {
	fake := newFakeSpecialist()
	fake.cards["http://w1"] = weatherCard("weather-1", "http://w1")

	r := NewRegistry(discoveryConfig("http://w1"), fake, nil)
	r.ProbeAll(context.Background())
	fake.setDown("http://w1", true)

	// K-1 failures: suspect but still routable.
	for i := 0; i < 2; i++ {
		r.ProbeAll(context.Background())
		got := r.Query([]agent.Capability{agent.CapabilityWeather})
		if len(got) != 1 {
			t.Fatalf("after %d failures: Query = %v, want still routable", i+1, got)
		}
		if got[0].Health != agent.HealthSuspect {
			t.Errorf("after %d failures: health = %s, want suspect", i+1, got[0].Health)
		}
	}

	// Kth failure: unreachable, excluded from routing.
	r.ProbeAll(context.Background())
	if got := r.Query([]agent.Capability{agent.CapabilityWeather}); len(got) != 0 {
		t.Fatalf("after 3 failures: Query = %v, want excluded", got)
	}

	// A single success fully restores health.
	fake.setDown("http://w1", false)
	r.ProbeAll(context.Background())
	got := r.Query([]agent.Capability{agent.CapabilityWeather})
	if len(got) != 1 || got[0].Health != agent.HealthHealthy || got[0].Failures != 0 {
		t.Errorf("after recovery: %+v", got)
	}
}

func TestQueryOrdering(t *testing.T) {
	fake := newFakeSpecialist()
	fake.cards["http://a"] = weatherCard("weather-a", "http://a")
	fake.cards["http://b"] = weatherCard("weather-b", "http://b")
	fake.cards["http://c"] = weatherCard("weather-c", "http://c")

	r := NewRegistry(discoveryConfig(), fake, nil)
	current := time.Unix(1000, 0)
	r.now = func() time.Time { return current }

	// a and c verified at the same instant, b later.
	if _, err := r.Register(context.Background(), "http://a"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register(context.Background(), "http://c"); err != nil {
		t.Fatal(err)
	}
	current = current.Add(time.Minute)
	if _, err := r.Register(context.Background(), "http://b"); err != nil {
		t.Fatal(err)
	}

	got := r.Query([]agent.Capability{agent.CapabilityWeather})
	if len(got) != 3 {
		t.Fatalf("Query returned %d cards", len(got))
	}
	// Most recently verified first; tie broken lexicographically.
	if got[0].ID != "weather-b" || got[1].ID != "weather-a" || got[2].ID != "weather-c" {
		t.Errorf("order = [%s %s %s]", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestDiscoveryFailureNeverRemovesLastSnapshot(t *testing.T) {
	fake := newFakeSpecialist()
	fake.cards["http://w1"] = weatherCard("weather-1", "http://w1")

	r := NewRegistry(discoveryConfig("http://w1"), fake, nil)
	r.ProbeAll(context.Background())

	fake.setDown("http://w1", true)
	r.ProbeAll(context.Background())

	// One failure: the last known-good card is still served.
	if got := r.Query([]agent.Capability{agent.CapabilityWeather}); len(got) != 1 {
		t.Errorf("Query = %v, want last known-good card", got)
	}
}

func TestStartStopsCleanly(t *testing.T) {
	fake := newFakeSpecialist()
	r := NewRegistry(discoveryConfig(), fake, nil)

	stop := r.Start(context.Background())
	stop() // must not hang or panic
}
