// Package correlation implements the multi-factor demand correlation engine.
// Correlate is pure and deterministic: no I/O, no clock, no randomness.
package correlation

import (
	"fmt"
	"math"
	"sort"
)

// Factor names a single impact score contributed by a specialist.
type Factor string

const (
	FactorWeather  Factor = "weather_impact"
	FactorEvent    Factor = "event_impact"
	FactorEconomic Factor = "economic_impact"
	FactorNews     Factor = "news_impact"
	FactorPricing  Factor = "pricing_impact"
)

// Weights in the price-adjustment formula. Weather and event impact are
// price-determining; all other factors are advisory and carry zero weight
// in the multiplier while still contributing to the composite score.
const (
	weatherWeight = 1.0 / 20.0
	eventWeight   = 1.0 / 15.0
)

// Tier classifies the fused demand signal.
type Tier string

const (
	TierNormal   Tier = "NORMAL"
	TierModerate Tier = "MODERATE"
	TierHigh     Tier = "HIGH"
)

// Input carries zero or more named impact scores (0–10), an optional base
// value such as a fare, and the set of factors the caller expected to
// supply. Partial inputs are valid; Expected lets the engine distinguish
// omission from intentional absence.
type Input struct {
	Scores   map[Factor]float64
	Base     *float64
	Expected []Factor
}

// RationaleEntry records one contributing factor for auditability.
type RationaleEntry struct {
	Factor Factor  `json:"factor"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

// Result is the fused demand signal.
type Result struct {
	Composite float64          `json:"composite"`
	Adjusted  *float64         `json:"adjusted,omitempty"`
	Tier      Tier             `json:"tier"`
	Complete  bool             `json:"complete"`
	Rationale []RationaleEntry `json:"rationale"`
}

// Correlate fuses the provided impact scores into a composite score,
// an optional adjusted value, and a tier.
//
// The composite is the arithmetic mean of the provided scores only —
// missing factors are excluded, not zeroed — rounded to one decimal.
// The adjusted value, computed only when a base is supplied, is
// base * (1 + weather/20 + event/15) rounded to two decimals, with zero
// for either factor if absent.
func Correlate(in Input) (Result, error) {
	if len(in.Scores) == 0 && in.Base == nil {
		return Result{}, fmt.Errorf("correlate: no scores and no base value")
	}
	for f, v := range in.Scores {
		if v < 0 || v > 10 {
			return Result{}, fmt.Errorf("correlate: factor %s out of range [0,10]: %v", f, v)
		}
	}

	res := Result{
		Complete:  complete(in),
		Rationale: rationale(in.Scores),
	}

	if len(in.Scores) > 0 {
		var sum float64
		for _, v := range in.Scores {
			sum += v
		}
		res.Composite = round1(sum / float64(len(in.Scores)))
	}
	res.Tier = tierFor(res.Composite)

	if in.Base != nil {
		adj := *in.Base * (1 + in.Scores[FactorWeather]*weatherWeight + in.Scores[FactorEvent]*eventWeight)
		adj = round2(adj)
		res.Adjusted = &adj
	}

	return res, nil
}

// tierFor classifies the rounded composite score, so the documented
// thresholds match what callers observe in the result.
func tierFor(composite float64) Tier {
	switch {
	case composite > 7:
		return TierHigh
	case composite >= 4:
		return TierModerate
	default:
		return TierNormal
	}
}

func complete(in Input) bool {
	for _, f := range in.Expected {
		if _, ok := in.Scores[f]; !ok {
			return false
		}
	}
	return true
}

// rationale lists the provided factors sorted by name so the audit trail
// is deterministic regardless of map iteration order.
func rationale(scores map[Factor]float64) []RationaleEntry {
	entries := make([]RationaleEntry, 0, len(scores))
	for f, v := range scores {
		entries = append(entries, RationaleEntry{Factor: f, Value: v, Weight: formulaWeight(f)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Factor < entries[j].Factor })
	return entries
}

func formulaWeight(f Factor) float64 {
	switch f {
	case FactorWeather:
		return weatherWeight
	case FactorEvent:
		return eventWeight
	default:
		return 0
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
