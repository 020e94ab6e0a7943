package stats

import "math"

// Interaction measures how far a variant pair's combined click-through
// deviates from the additive expectation.
type Interaction struct {
	VariantA          string  `json:"variant_a"`
	VariantB          string  `json:"variant_b"`
	ExpectedCombined  float64 `json:"expected_combined"`
	ActualCombined    float64 `json:"actual_combined"`
	InteractionEffect float64 `json:"interaction_effect"`
	Synergy           string  `json:"synergy"` // positive, negative or neutral
}

type MVTResult struct {
	Interactions               []Interaction `json:"interactions"`
	HasSignificantInteractions bool          `json:"has_significant_interactions"`
}

// InteractionEffects computes pairwise interaction effects for multivariate
// tests. Returns nil for fewer than three variants, where the comparison is
// not meaningful.
func InteractionEffects(variants []VariantResult) *MVTResult {
	if len(variants) < 3 {
		return nil
	}

	result := &MVTResult{}
	for i := 0; i < len(variants); i++ {
		for j := i + 1; j < len(variants); j++ {
			a, b := variants[i], variants[j]

			expected := (a.ConversionRate + b.ConversionRate) / 2

			combinedShown := a.InterventionShown + b.InterventionShown
			actual := 0.0
			if combinedShown > 0 {
				actual = float64(a.Clicked+b.Clicked) / float64(combinedShown) * 100
			}

			effect := actual - expected
			synergy := "neutral"
			if effect > 1 {
				synergy = "positive"
			} else if effect < -1 {
				synergy = "negative"
			}

			result.Interactions = append(result.Interactions, Interaction{
				VariantA:          a.Name,
				VariantB:          b.Name,
				ExpectedCombined:  expected,
				ActualCombined:    actual,
				InteractionEffect: effect,
				Synergy:           synergy,
			})

			if math.Abs(effect) > 5 {
				result.HasSignificantInteractions = true
			}
		}
	}

	return result
}
