package classifier

import (
	"context"
	"testing"

	"github.com/skyfuse/skyfuse/internal/domain/agent"
)

func TestClassifySingleIntent(t *testing.T) {
	c := NewRules()
	got := c.Classify(context.Background(), "What's the weather at ORD tomorrow?")
	if len(got) != 1 || got[0] != agent.CapabilityWeather {
		t.Errorf("Classify = %v, want [weather]", got)
	}
}

func TestClassifyMultiIntent(t *testing.T) {
	c := NewRules()
	got := c.Classify(context.Background(), "Storm forecast plus any concerts in Denver affecting fares")
	want := []agent.Capability{agent.CapabilityWeather, agent.CapabilityEvents, agent.CapabilityFlightPricing}
	if len(got) != len(want) {
		t.Fatalf("Classify = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Classify[%d] = %s, want %s (order must be deterministic)", i, got[i], want[i])
		}
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	c := NewRules()
	got := c.Classify(context.Background(), "LATEST NEWS ON INFLATION")
	if len(got) != 2 || got[0] != agent.CapabilityEconomic || got[1] != agent.CapabilityNews {
		t.Fatalf("Classify = %v, want [economic news]", got)
	}
}

func TestClassifyNoMatch(t *testing.T) {
	c := NewRules()
	if got := c.Classify(context.Background(), "tell me a joke"); len(got) != 0 {
		t.Errorf("Classify = %v, want empty", got)
	}
}
