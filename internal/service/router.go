package service

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	skotel "github.com/skyfuse/skyfuse/internal/adapter/otel"
	"github.com/skyfuse/skyfuse/internal/config"
	"github.com/skyfuse/skyfuse/internal/domain"
	"github.com/skyfuse/skyfuse/internal/domain/agent"
	"github.com/skyfuse/skyfuse/internal/domain/task"
	"github.com/skyfuse/skyfuse/internal/port/cache"
	"github.com/skyfuse/skyfuse/internal/port/classifier"
	"github.com/skyfuse/skyfuse/internal/port/specialist"
)

// Router translates one free-form request into a bounded set of parallel
// specialist dispatches and aggregates their results.
type Router struct {
	cfg        config.Router
	registry   *Registry
	client     specialist.Client
	classifier classifier.Classifier
	cache      cache.Cache   // optional response reuse
	metrics    *skotel.Metrics // optional
}

// NewRouter creates a router. cache and metrics may be nil.
func NewRouter(cfg config.Router, registry *Registry, client specialist.Client, cls classifier.Classifier, c cache.Cache, m *skotel.Metrics) *Router {
	return &Router{
		cfg:        cfg,
		registry:   registry,
		client:     client,
		classifier: cls,
		cache:      c,
		metrics:    m,
	}
}

// Route classifies the task's latest user message, dispatches to the best
// specialist per matched capability in parallel, and returns the ordered,
// attributed result set.
//
// A request matching no capability returns domain.ErrCapabilityMismatch.
// Individual specialist failures become explicit unavailable entries; only
// total unavailability of every matched specialist is an error.
func (r *Router) Route(ctx context.Context, t *task.Task) ([]task.SourceResult, error) {
	ctx, span := skotel.StartRouteSpan(ctx, t.ID, t.SessionID)
	defer span.End()

	text := t.UserText()
	tags := r.classifier.Classify(ctx, text)
	if len(tags) == 0 {
		return nil, domain.ErrCapabilityMismatch
	}
	if len(tags) > r.cfg.MaxFanout {
		slog.Warn("fan-out capped", "task_id", t.ID, "matched", len(tags), "max", r.cfg.MaxFanout)
		tags = tags[:r.cfg.MaxFanout]
	}

	// One slot per capability keeps aggregation order deterministic while
	// the dispatches run in parallel.
	buckets := make([][]task.SourceResult, len(tags))
	g, gctx := errgroup.WithContext(ctx)
	for i, tag := range tags {
		g.Go(func() error {
			buckets[i] = r.dispatchCapability(gctx, t, tag, text)
			return nil
		})
	}
	_ = g.Wait() // dispatch errors are folded into unavailable entries

	var results []task.SourceResult
	available := 0
	for _, bucket := range buckets {
		for _, res := range bucket {
			if !res.Unavailable {
				available++
			}
			results = append(results, res)
		}
	}
	if available == 0 {
		return results, domain.ErrAllUnavailable
	}
	return results, nil
}

// dispatchCapability sends the request to the best routable specialist for
// one capability and resolves at most one delegation hop.
func (r *Router) dispatchCapability(ctx context.Context, t *task.Task, tag agent.Capability, query string) []task.SourceResult {
	cards := r.registry.Query([]agent.Capability{tag})
	if len(cards) == 0 {
		return []task.SourceResult{{
			Capability:  tag,
			Unavailable: true,
			Error:       "no routable specialist",
		}}
	}
	card := cards[0]

	resp, err := r.send(ctx, &card, tag, specialist.Request{
		TaskID:    t.ID,
		SessionID: t.SessionID,
		Text:      query,
		Depth:     0,
	})
	if err != nil {
		return []task.SourceResult{{
			Specialist:  card.ID,
			Capability:  tag,
			Unavailable: true,
			Error:       err.Error(),
		}}
	}

	out := []task.SourceResult{{
		Specialist: card.ID,
		Capability: tag,
		Text:       resp.Text,
		Data:       resp.Data,
	}}
	if resp.Delegate != nil {
		out = append(out, r.delegate(ctx, t, card.ID, resp.Delegate))
	}
	return out
}

// delegate performs the single permitted agent-to-agent hop. The delegated
// specialist's own delegation requests are past the ceiling and are
// rejected; the original result stands without the extra context.
func (r *Router) delegate(ctx context.Context, t *task.Task, requester string, d *specialist.Delegation) task.SourceResult {
	cards := r.registry.Query([]agent.Capability{d.Capability})
	if len(cards) == 0 {
		// Graceful degradation: the parent proceeds without the context.
		return task.SourceResult{
			Capability:  d.Capability,
			Delegated:   true,
			Unavailable: true,
			Error:       "no routable specialist for delegated context",
		}
	}
	card := cards[0]

	resp, err := r.send(ctx, &card, d.Capability, specialist.Request{
		TaskID:    t.ID,
		SessionID: t.SessionID,
		Text:      d.Query,
		Depth:     specialist.MaxDelegationDepth,
	})
	if err != nil {
		return task.SourceResult{
			Specialist:  card.ID,
			Capability:  d.Capability,
			Delegated:   true,
			Unavailable: true,
			Error:       err.Error(),
		}
	}
	if resp.Delegate != nil {
		// Not surfaced to the user; the requesting specialist proceeds
		// without the second-hop context.
		slog.Debug("delegation rejected at depth ceiling",
			"task_id", t.ID, "origin", requester, "requester", card.ID,
			"wanted", resp.Delegate.Capability, "error", domain.ErrDelegationDepth)
		if r.metrics != nil {
			r.metrics.DelegationsRejected.Add(ctx, 1)
		}
	}

	return task.SourceResult{
		Specialist: card.ID,
		Capability: d.Capability,
		Text:       resp.Text,
		Data:       resp.Data,
		Delegated:  true,
	}
}

// send performs one dispatch under its own timeout with a single retry on
// timeout or transient network failure. Responses are reused from cache
// within the configured TTL.
func (r *Router) send(ctx context.Context, card *agent.Card, tag agent.Capability, req specialist.Request) (*specialist.Response, error) {
	key := responseKey(card.ID, req.Text, req.Depth)
	if r.cache != nil {
		if data, ok, err := r.cache.Get(ctx, key); err == nil && ok {
			var cached specialist.Response
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached, nil
			}
		}
	}

	resp, err := r.sendOnce(ctx, card, tag, req)
	if err != nil && specialist.IsTransient(err) && ctx.Err() == nil {
		slog.Debug("retrying transient dispatch failure", "specialist", card.ID, "error", err)
		resp, err = r.sendOnce(ctx, card, tag, req)
	}
	if err != nil {
		if r.metrics != nil {
			r.metrics.DispatchFailures.Add(ctx, 1)
		}
		return nil, err
	}

	if r.cache != nil {
		if data, merr := json.Marshal(resp); merr == nil {
			_ = r.cache.Set(ctx, key, data, r.cfg.ResponseTTL)
		}
	}
	return resp, nil
}

func (r *Router) sendOnce(ctx context.Context, card *agent.Card, tag agent.Capability, req specialist.Request) (*specialist.Response, error) {
	ctx, span := skotel.StartDispatchSpan(ctx, card.ID, string(tag), req.Depth)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.DispatchTimeout)
	defer cancel()

	start := time.Now()
	resp, err := r.client.Send(ctx, card, req)
	if r.metrics != nil {
		r.metrics.Dispatches.Add(ctx, 1)
		r.metrics.DispatchDuration.Record(ctx, time.Since(start).Seconds())
	}
	return resp, err
}

func responseKey(specialistID, query string, depth int) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("dispatch:%s:%d:%x", specialistID, depth, sum[:8])
}
