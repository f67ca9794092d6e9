package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	skotel "github.com/skyfuse/skyfuse/internal/adapter/otel"
	"github.com/skyfuse/skyfuse/internal/domain"
	"github.com/skyfuse/skyfuse/internal/domain/agent"
	"github.com/skyfuse/skyfuse/internal/domain/correlation"
	"github.com/skyfuse/skyfuse/internal/domain/task"
)

// factorFor maps each specialist capability to its correlation factor.
var factorFor = map[agent.Capability]correlation.Factor{
	agent.CapabilityWeather:       correlation.FactorWeather,
	agent.CapabilityEvents:        correlation.FactorEvent,
	agent.CapabilityEconomic:      correlation.FactorEconomic,
	agent.CapabilityNews:          correlation.FactorNews,
	agent.CapabilityFlightPricing: correlation.FactorPricing,
}

// Orchestrator drives a task from submission to a terminal state: route,
// stream partials, correlate, finalize. It holds no task state of its own;
// the manager is the single authority.
type Orchestrator struct {
	router  *Router
	manager *Manager
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(router *Router, manager *Manager) *Orchestrator {
	return &Orchestrator{router: router, manager: manager}
}

// HandleSync submits a task and processes it to a resting state before
// returning. Resubmitting a known task ID returns its current state
// without reprocessing.
func (o *Orchestrator) HandleSync(ctx context.Context, id, sessionID string, msg task.Message, pushTarget string) (*task.Task, error) {
	t, created, err := o.manager.Submit(ctx, id, sessionID, msg, pushTarget)
	if err != nil {
		return nil, err
	}
	if !created {
		return t, nil
	}
	o.process(ctx, id)
	return o.manager.Get(ctx, id)
}

// HandleAsync submits a task and processes it in the background. The
// caller observes progress via Attach, polling, or the push target.
func (o *Orchestrator) HandleAsync(ctx context.Context, id, sessionID string, msg task.Message, pushTarget string) (*task.Task, error) {
	t, created, err := o.manager.Submit(ctx, id, sessionID, msg, pushTarget)
	if err != nil {
		return nil, err
	}
	if created {
		go o.process(context.Background(), id)
	}
	return t, nil
}

// process runs one task to a resting state. Cancellation is cooperative:
// the manager holds this context's cancel, and a terminal transition that
// lost the race to Cancel is discarded by the state machine.
func (o *Orchestrator) process(parent context.Context, id string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	o.manager.BindCancel(id, cancel)

	t, err := o.manager.Transition(ctx, id, task.StatusWorking)
	if err != nil {
		slog.Debug("task not processable", "task_id", id, "error", err)
		return
	}

	results, err := o.router.Route(ctx, t)
	switch {
	case errors.Is(err, domain.ErrCapabilityMismatch):
		o.requestClarification(ctx, id)
		return
	case errors.Is(err, domain.ErrAllUnavailable):
		o.fail(ctx, id, fmt.Errorf("no specialist could answer: %w", err))
		return
	case errors.Is(err, context.Canceled):
		// Cancel finalized the task; nothing left to record.
		return
	case err != nil:
		o.fail(ctx, id, err)
		return
	}

	o.manager.RecordSources(ctx, id, results)
	for _, src := range results {
		if !src.Unavailable {
			o.manager.EmitPartial(id, src.Specialist, src.Text)
		}
	}

	result := &task.Result{Sources: results}
	if corr := o.correlate(ctx, id, results); corr != nil {
		result.Correlation = corr
	}

	reply := task.Message{
		Role:  task.RoleAgent,
		Parts: []task.Part{task.TextPart(summarize(results, result.Correlation))},
	}
	if result.Correlation != nil {
		reply.Parts = append(reply.Parts, task.DataPart(result.Correlation))
	}
	if err := o.manager.AppendMessage(ctx, id, reply); err != nil {
		slog.Error("append reply failed", "task_id", id, "error", err)
	}

	if _, err := o.manager.Complete(ctx, id, result); err != nil {
		// A concurrent cancel won the race; the result is discarded.
		slog.Debug("discarding result for finished task", "task_id", id, "error", err)
	}
}

// requestClarification parks the task until the user rephrases.
func (o *Orchestrator) requestClarification(ctx context.Context, id string) {
	msg := task.Message{
		Role: task.RoleAgent,
		Parts: []task.Part{task.TextPart(
			"I couldn't match your request to any specialist. " +
				"Try asking about weather, events, economy, news, or flight pricing.",
		)},
	}
	if err := o.manager.AppendMessage(ctx, id, msg); err != nil {
		slog.Error("append clarification failed", "task_id", id, "error", err)
	}
	if _, err := o.manager.Transition(ctx, id, task.StatusInputRequired); err != nil {
		slog.Debug("clarification transition rejected", "task_id", id, "error", err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, id string, cause error) {
	if _, err := o.manager.Fail(ctx, id, cause); err != nil {
		slog.Debug("failure discarded for finished task", "task_id", id, "error", err)
	}
}

// correlate fuses the specialists' impact scores into a demand signal.
// Returns nil when the results carry nothing to correlate.
func (o *Orchestrator) correlate(ctx context.Context, id string, results []task.SourceResult) map[string]any {
	_, span := skotel.StartCorrelateSpan(ctx, id)
	defer span.End()

	in := correlation.Input{Scores: make(map[correlation.Factor]float64)}
	seen := make(map[correlation.Factor]bool)
	for _, src := range results {
		factor, ok := factorFor[src.Capability]
		if !ok {
			continue
		}
		if !seen[factor] {
			seen[factor] = true
			in.Expected = append(in.Expected, factor)
		}
		if src.Unavailable || src.Data == nil {
			continue
		}
		if score, ok := numberField(src.Data, "impact_score"); ok {
			if score < 0 || score > 10 {
				slog.Warn("impact score out of range, skipping", "task_id", id, "specialist", src.Specialist, "score", score)
			} else {
				in.Scores[factor] = score
			}
		}
		if src.Capability == agent.CapabilityFlightPricing {
			if base, ok := numberField(src.Data, "base_fare"); ok {
				in.Base = &base
			}
		}
	}
	if len(in.Scores) == 0 && in.Base == nil {
		return nil
	}

	res, err := correlation.Correlate(in)
	if err != nil {
		slog.Error("correlation failed", "task_id", id, "error", err)
		return nil
	}
	return correlationMap(res)
}

// correlationMap converts the typed result to the wire-shaped map stored
// on the task.
func correlationMap(res correlation.Result) map[string]any {
	data, err := json.Marshal(res)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func numberField(data map[string]any, key string) (float64, bool) {
	v, ok := data[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// summarize builds the human-readable reply from the attributed results.
func summarize(results []task.SourceResult, corr map[string]any) string {
	var b strings.Builder
	var unavailable []string
	for _, src := range results {
		if src.Unavailable {
			name := src.Specialist
			if name == "" {
				name = string(src.Capability)
			}
			unavailable = append(unavailable, name)
			continue
		}
		if src.Text == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", src.Specialist, src.Text)
	}
	if corr != nil {
		if tier, ok := corr["tier"].(string); ok {
			fmt.Fprintf(&b, "Demand signal: %v (composite %v)\n", tier, corr["composite"])
		}
		if adjusted, ok := corr["adjusted"]; ok {
			fmt.Fprintf(&b, "Adjusted fare estimate: %v\n", adjusted)
		}
	}
	if len(unavailable) > 0 {
		fmt.Fprintf(&b, "Partial result; unavailable: %s\n", strings.Join(unavailable, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
