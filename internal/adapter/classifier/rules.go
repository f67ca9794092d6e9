// Package classifier implements a rule-based capability classifier.
// It maps free-form requests to capability tags with a keyword table,
// and satisfies the classifier port so a model-based implementation can
// replace it without touching the router.
package classifier

import (
	"context"
	"strings"

	"github.com/skyfuse/skyfuse/internal/domain/agent"
)

// rules maps each capability to the phrases that select it. Multi-intent
// requests match several capabilities; matching is case-insensitive
// substring search over the whole request.
var rules = map[agent.Capability][]string{
	agent.CapabilityWeather: {
		"weather", "storm", "snow", "rain", "wind", "turbulence",
		"forecast", "visibility", "metar",
	},
	agent.CapabilityEvents: {
		"event", "concert", "conference", "festival", "game",
		"convention", "marathon",
	},
	agent.CapabilityEconomic: {
		"economic", "economy", "gdp", "inflation", "fuel price",
		"oil price", "consumer confidence", "unemployment",
	},
	agent.CapabilityNews: {
		"news", "headline", "announcement", "press", "competitor",
	},
	agent.CapabilityFlightPricing: {
		"price", "pricing", "fare", "flight", "route", "demand",
		"booking", "load factor",
	},
}

// order fixes the capability evaluation order so multi-intent requests
// produce deterministic dispatch ordering.
var order = []agent.Capability{
	agent.CapabilityWeather,
	agent.CapabilityEvents,
	agent.CapabilityEconomic,
	agent.CapabilityNews,
	agent.CapabilityFlightPricing,
}

// Rules is the rule-based classifier.
type Rules struct{}

// NewRules creates a rule-based classifier.
func NewRules() *Rules {
	return &Rules{}
}

// Classify returns the capabilities whose keyword rules match the request.
// An empty result means no capability matched.
func (r *Rules) Classify(_ context.Context, request string) []agent.Capability {
	lowered := strings.ToLower(request)

	var matched []agent.Capability
	for _, cap := range order {
		for _, keyword := range rules[cap] {
			if strings.Contains(lowered, keyword) {
				matched = append(matched, cap)
				break
			}
		}
	}
	return matched
}
