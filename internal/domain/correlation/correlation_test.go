package correlation

import (
	"math"
	"testing"
)

func fp(v float64) *float64 { return &v }

func TestCorrelateFullInputs(t *testing.T) {
	res, err := Correlate(Input{
		Scores:   map[Factor]float64{FactorWeather: 8, FactorEvent: 9},
		Base:     fp(300),
		Expected: []Factor{FactorWeather, FactorEvent},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Composite != 8.5 {
		t.Errorf("composite = %v, want 8.5", res.Composite)
	}
	// 300 * (1 + 8/20 + 9/15) = 300 * 2.
	if res.Adjusted == nil || *res.Adjusted != 600.00 {
		t.Errorf("adjusted = %v, want 600.00", res.Adjusted)
	}
	if res.Tier != TierHigh {
		t.Errorf("tier = %s, want HIGH", res.Tier)
	}
	if !res.Complete {
		t.Error("expected complete=true")
	}
}

func TestCorrelateMissingExpectedFactor(t *testing.T) {
	res, err := Correlate(Input{
		Scores:   map[Factor]float64{FactorWeather: 8},
		Base:     fp(300),
		Expected: []Factor{FactorWeather, FactorEvent},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Complete {
		t.Error("expected complete=false when an expected factor is missing")
	}
	// Missing event impact contributes zero to the multiplier.
	if res.Adjusted == nil || *res.Adjusted != 420.00 {
		t.Errorf("adjusted = %v, want 420.00", res.Adjusted)
	}
	// But it is excluded from the mean, not treated as zero.
	if res.Composite != 8.0 {
		t.Errorf("composite = %v, want 8.0", res.Composite)
	}
}

func TestCorrelateTiers(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		want  Tier
	}{
		{"low is normal", 2, TierNormal},
		{"boundary below moderate", 3.9, TierNormal},
		{"moderate lower bound", 4, TierModerate},
		{"moderate upper bound", 7, TierModerate},
		{"above seven is high", 7.1, TierHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Correlate(Input{Scores: map[Factor]float64{FactorEconomic: tt.score}})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Tier != tt.want {
				t.Errorf("tier for %v = %s, want %s", tt.score, res.Tier, tt.want)
			}
		})
	}
}

func TestCorrelateAdvisoryFactorsDoNotAdjustPrice(t *testing.T) {
	res, err := Correlate(Input{
		Scores: map[Factor]float64{FactorEconomic: 10, FactorNews: 10},
		Base:   fp(200),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Adjusted == nil || *res.Adjusted != 200.00 {
		t.Errorf("adjusted = %v, want 200.00 (advisory factors carry no multiplier weight)", res.Adjusted)
	}
	if res.Composite != 10.0 {
		t.Errorf("composite = %v, want 10.0", res.Composite)
	}
}

func TestCorrelateCompositeRounding(t *testing.T) {
	res, err := Correlate(Input{
		Scores: map[Factor]float64{FactorWeather: 7, FactorEvent: 7, FactorEconomic: 6},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 20/3 = 6.666... rounds to 6.7.
	if math.Abs(res.Composite-6.7) > 1e-9 {
		t.Errorf("composite = %v, want 6.7", res.Composite)
	}
}

func TestCorrelateRationaleOrderedAndWeighted(t *testing.T) {
	res, err := Correlate(Input{
		Scores: map[Factor]float64{FactorWeather: 5, FactorEvent: 5, FactorNews: 5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rationale) != 3 {
		t.Fatalf("rationale entries = %d, want 3", len(res.Rationale))
	}
	// Sorted by factor name: event_impact, news_impact, weather_impact.
	if res.Rationale[0].Factor != FactorEvent || res.Rationale[2].Factor != FactorWeather {
		t.Errorf("rationale order = %v", res.Rationale)
	}
	if res.Rationale[2].Weight != 1.0/20.0 {
		t.Errorf("weather weight = %v, want 0.05", res.Rationale[2].Weight)
	}
	if res.Rationale[1].Weight != 0 {
		t.Errorf("news weight = %v, want 0 (advisory)", res.Rationale[1].Weight)
	}
}

func TestCorrelateRejectsOutOfRangeScore(t *testing.T) {
	if _, err := Correlate(Input{Scores: map[Factor]float64{FactorWeather: 11}}); err == nil {
		t.Error("expected error for score > 10")
	}
	if _, err := Correlate(Input{Scores: map[Factor]float64{FactorWeather: -1}}); err == nil {
		t.Error("expected error for score < 0")
	}
}

func TestCorrelateRejectsEmptyInput(t *testing.T) {
	if _, err := Correlate(Input{}); err == nil {
		t.Error("expected error for empty input")
	}
}
