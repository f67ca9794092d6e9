package agent

import "testing"

func TestCardHas(t *testing.T) {
	c := &Card{Capabilities: []Capability{CapabilityWeather, CapabilityEvents}}
	if !c.Has(CapabilityWeather) {
		t.Error("expected card to have weather capability")
	}
	if c.Has(CapabilityNews) {
		t.Error("did not expect news capability")
	}
	if !c.HasAny([]Capability{CapabilityNews, CapabilityEvents}) {
		t.Error("expected HasAny to match events")
	}
	if c.HasAny([]Capability{CapabilityNews, CapabilityEconomic}) {
		t.Error("expected HasAny to miss")
	}
}

func TestCardRoutable(t *testing.T) {
	tests := []struct {
		health Health
		want   bool
	}{
		{HealthHealthy, true},
		{HealthSuspect, true},
		{HealthUnreachable, false},
	}
	for _, tt := range tests {
		c := &Card{Health: tt.health}
		if got := c.Routable(); got != tt.want {
			t.Errorf("Routable() with %s = %v, want %v", tt.health, got, tt.want)
		}
	}
}
