// Package specialist defines the port for talking to remote specialist agents.
package specialist

import (
	"context"
	"errors"
	"net"

	"github.com/skyfuse/skyfuse/internal/domain/agent"
)

// Request is a sub-task dispatched to one specialist.
type Request struct {
	TaskID    string
	SessionID string
	Text      string
	// Depth counts agent-to-agent hops taken to answer the original
	// dispatch. The router enforces a hard ceiling of MaxDelegationDepth.
	Depth int
	// Context carries delegated context from another capability, if any.
	Context map[string]any
}

// MaxDelegationDepth is the hard ceiling on agent-to-agent hops per
// original dispatch. Guarantees termination without cycle detection.
const MaxDelegationDepth = 1

// Delegation is a specialist's request for context from another capability.
type Delegation struct {
	Capability agent.Capability `json:"capability"`
	Query      string           `json:"query"`
}

// Response is a specialist's structured answer.
type Response struct {
	Text string         `json:"text"`
	Data map[string]any `json:"data,omitempty"`
	// Delegate, if set, asks the router for one hop of extra context.
	Delegate *Delegation `json:"delegate,omitempty"`
}

// Client is the port interface for probing and dispatching to specialists.
type Client interface {
	// FetchCard probes an endpoint's identity/capability descriptor.
	FetchCard(ctx context.Context, endpoint string) (*agent.Card, error)

	// Send dispatches a sub-task to the specialist behind the card.
	Send(ctx context.Context, card *agent.Card, req Request) (*Response, error)
}

// IsTransient reports whether a dispatch error is worth one retry:
// timeouts and connection-level network failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
