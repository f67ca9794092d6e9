// Package agent defines the AgentCard domain entity describing a specialist.
package agent

import "time"

// Health represents the reachability state of a specialist.
type Health string

const (
	HealthHealthy     Health = "healthy"
	HealthSuspect     Health = "suspect"
	HealthUnreachable Health = "unreachable"
)

// Capability is a named category of work a specialist can perform.
type Capability string

const (
	CapabilityWeather       Capability = "weather"
	CapabilityEvents        Capability = "events"
	CapabilityEconomic      Capability = "economic"
	CapabilityNews          Capability = "news"
	CapabilityFlightPricing Capability = "flight-pricing"
)

// Skill describes a single named operation a specialist advertises.
type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Card is the discoverable identity/capability descriptor of a specialist.
// A card is unique by ID; the ID/URL pair is globally unique at any instant.
type Card struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	URL          string       `json:"url"`
	Version      string       `json:"version"`
	Capabilities []Capability `json:"capabilities"`
	Skills       []Skill      `json:"skills,omitempty"`
	Health       Health       `json:"health"`
	// LastSeen is the time of the last successful probe.
	LastSeen time.Time `json:"last_seen"`
	// Failures counts consecutive failed probes. Reset to zero on success.
	Failures int `json:"failures"`
}

// Has reports whether the card advertises the given capability.
func (c *Card) Has(cap Capability) bool {
	for _, have := range c.Capabilities {
		if have == cap {
			return true
		}
	}
	return false
}

// HasAny reports whether the card advertises any of the given capabilities.
func (c *Card) HasAny(caps []Capability) bool {
	for _, want := range caps {
		if c.Has(want) {
			return true
		}
	}
	return false
}

// Routable reports whether the card may receive dispatches.
// Unreachable specialists are never routed to; suspect ones still are.
func (c *Card) Routable() bool {
	return c.Health != HealthUnreachable
}
