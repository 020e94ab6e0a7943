package stats

import (
	"math"
	"math/rand"
	"time"
)

// RandSource supplies uniform draws in [0, 1) for the Monte Carlo
// simulation. *rand.Rand satisfies it; tests inject a seeded source.
type RandSource interface {
	Float64() float64
}

// BayesianVariant holds the Beta posterior for one variant's click-through
// rate under a uniform Beta(1,1) prior.
type BayesianVariant struct {
	VariantID           string  `json:"variant_id"`
	Name                string  `json:"variant_name"`
	ExpectedConversion  float64 `json:"expected_conversion"` // percent
	CredibleLow         float64 `json:"credible_low"`        // 95% interval, percent
	CredibleHigh        float64 `json:"credible_high"`
	Alpha               float64 `json:"alpha"`
	Beta                float64 `json:"beta"`
	SampleSize          int     `json:"sample_size"`
	ProbabilityToBeBest float64 `json:"probability_to_be_best"` // percent
}

const simulationRuns = 10000

// BayesianAnalysis computes the posterior for each variant and estimates
// each variant's probability of having the highest true conversion rate via
// Monte Carlo sampling.
func BayesianAnalysis(variants []VariantResult, rng RandSource) []BayesianVariant {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	out := make([]BayesianVariant, len(variants))
	for i, v := range variants {
		alpha := 1 + float64(v.Clicked)
		beta := 1 + float64(v.InterventionShown-v.Clicked)

		expected := alpha / (alpha + beta)
		variance := (alpha * beta) / (math.Pow(alpha+beta, 2) * (alpha + beta + 1))
		stddev := math.Sqrt(variance)

		out[i] = BayesianVariant{
			VariantID:          v.VariantID,
			Name:               v.Name,
			ExpectedConversion: expected * 100,
			CredibleLow:        math.Max(0, expected-1.96*stddev) * 100,
			CredibleHigh:       math.Min(1, expected+1.96*stddev) * 100,
			Alpha:              alpha,
			Beta:               beta,
			SampleSize:         v.InterventionShown,
		}
	}

	if len(out) == 0 {
		return out
	}

	wins := make([]int, len(out))
	for i := 0; i < simulationRuns; i++ {
		best := -1.0
		winner := -1
		for j := range out {
			sample := betaRandom(out[j].Alpha, out[j].Beta, rng)
			if sample > best {
				best = sample
				winner = j
			}
		}
		if winner >= 0 {
			wins[winner]++
		}
	}

	for i := range out {
		out[i].ProbabilityToBeBest = float64(wins[i]) / simulationRuns * 100
	}

	return out
}

// betaRandom draws from Beta(alpha, beta). Large posteriors use the normal
// approximation; tiny ones fall back to a uniform draw, which is crude but
// only matters before a variant has meaningful exposure.
func betaRandom(alpha, beta float64, rng RandSource) float64 {
	if alpha+beta < 50 {
		return rng.Float64()
	}

	mean := alpha / (alpha + beta)
	variance := (alpha * beta) / (math.Pow(alpha+beta, 2) * (alpha + beta + 1))
	sample := normalRandom(mean, math.Sqrt(variance), rng)

	return math.Max(0, math.Min(1, sample))
}

// normalRandom samples N(mean, stddev) via the Box-Muller transform.
func normalRandom(mean, stddev float64, rng RandSource) float64 {
	u1 := rng.Float64()
	u2 := rng.Float64()
	if u1 == 0 {
		u1 = math.SmallestNonzeroFloat64
	}
	z0 := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return mean + z0*stddev
}
