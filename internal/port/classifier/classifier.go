// Package classifier defines the intent classification port.
package classifier

import (
	"context"

	"github.com/skyfuse/skyfuse/internal/domain/agent"
)

// Classifier maps a free-form request to zero or more capability tags.
// Implementations may be rule-based or model-based; the router treats
// them interchangeably.
type Classifier interface {
	Classify(ctx context.Context, request string) []agent.Capability
}
