// Package service contains the orchestration application services.
package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/skyfuse/skyfuse/internal/config"
	"github.com/skyfuse/skyfuse/internal/domain/agent"
	"github.com/skyfuse/skyfuse/internal/port/database"
	"github.com/skyfuse/skyfuse/internal/port/specialist"
)

// Registry maintains ground truth of which specialists exist and are
// reachable. It owns the card set: discovery mutates it under lock, the
// request path reads copies and never blocks on a probe.
type Registry struct {
	cfg    config.Discovery
	client specialist.Client
	store  database.Store // optional write-through persistence
	now    func() time.Time

	mu        sync.RWMutex
	cards     map[string]*agent.Card // by card ID
	endpoints map[string]string      // probe URL -> card ID ("" until first success)
}

// NewRegistry creates a registry seeded with the configured candidate
// endpoints. No probe happens until Register or the discovery loop runs.
func NewRegistry(cfg config.Discovery, client specialist.Client, store database.Store) *Registry {
	r := &Registry{
		cfg:       cfg,
		client:    client,
		store:     store,
		now:       time.Now,
		cards:     make(map[string]*agent.Card),
		endpoints: make(map[string]string),
	}
	for _, ep := range cfg.Endpoints {
		r.endpoints[ep] = ""
	}
	return r
}

// Register probes a candidate endpoint and, on success, inserts or updates
// its card. Idempotent by card ID. The endpoint joins the discovery set
// either way, so a currently-down specialist is retried on the next tick.
func (r *Registry) Register(ctx context.Context, endpoint string) (*agent.Card, error) {
	r.mu.Lock()
	if _, ok := r.endpoints[endpoint]; !ok {
		r.endpoints[endpoint] = ""
	}
	r.mu.Unlock()

	return r.probe(ctx, endpoint)
}

// Start launches the periodic discovery loop and returns a stop function.
// Probe failures are logged and retried on the next tick; they never
// propagate to the request path.
func (r *Registry) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		r.ProbeAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.ProbeAll(ctx)
			}
		}
	}()

	slog.Info("discovery loop started", "interval", r.cfg.Interval, "endpoints", len(r.cfg.Endpoints))
	return func() {
		cancel()
		<-done
	}
}

// ProbeAll re-probes every known and configured endpoint once.
func (r *Registry) ProbeAll(ctx context.Context) {
	r.mu.RLock()
	targets := make([]string, 0, len(r.endpoints))
	for ep := range r.endpoints {
		targets = append(targets, ep)
	}
	r.mu.RUnlock()

	for _, ep := range targets {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.probe(ctx, ep); err != nil {
			slog.Warn("discovery probe failed", "endpoint", ep, "error", err)
		}
	}
}

// probe fetches one descriptor and applies the health policy.
func (r *Registry) probe(ctx context.Context, endpoint string) (*agent.Card, error) {
	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	fresh, err := r.client.FetchCard(probeCtx, endpoint)
	if err != nil {
		r.recordFailure(endpoint)
		return nil, err
	}

	r.mu.Lock()
	card, ok := r.cards[fresh.ID]
	if !ok {
		card = fresh
		r.cards[fresh.ID] = card
		slog.Info("specialist discovered", "id", card.ID, "url", card.URL, "capabilities", card.Capabilities)
	} else {
		// Refresh the advertisement; the specialist may have moved or
		// gained skills since the last probe.
		card.Name = fresh.Name
		card.URL = fresh.URL
		card.Version = fresh.Version
		card.Capabilities = fresh.Capabilities
		card.Skills = fresh.Skills
	}
	// A single successful probe fully restores health.
	card.Failures = 0
	card.Health = agent.HealthHealthy
	card.LastSeen = r.now()
	r.endpoints[endpoint] = card.ID
	snapshot := *card
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.UpsertCard(ctx, &snapshot); err != nil {
			slog.Error("persist agent card failed", "id", snapshot.ID, "error", err)
		}
	}
	return &snapshot, nil
}

// recordFailure applies the consecutive-failure policy to the card behind
// an endpoint, if one was ever discovered there.
func (r *Registry) recordFailure(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.endpoints[endpoint]
	if id == "" {
		return
	}
	card, ok := r.cards[id]
	if !ok {
		return
	}

	card.Failures++
	switch {
	case card.Failures >= r.cfg.FailureThreshold:
		if card.Health != agent.HealthUnreachable {
			slog.Warn("specialist marked unreachable", "id", card.ID, "failures", card.Failures)
		}
		card.Health = agent.HealthUnreachable
	default:
		card.Health = agent.HealthSuspect
	}
}

// Query returns the routable cards advertising any of the requested tags,
// most recently verified first, ties broken by ID. Unreachable specialists
// are never returned.
func (r *Registry) Query(tags []agent.Capability) []agent.Card {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []agent.Card
	for _, card := range r.cards {
		if card.Routable() && card.HasAny(tags) {
			out = append(out, *card)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Snapshot returns a copy of every known card, for listing and health
// reporting.
func (r *Registry) Snapshot() []agent.Card {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]agent.Card, 0, len(r.cards))
	for _, card := range r.cards {
		out = append(out, *card)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
