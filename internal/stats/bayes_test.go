package stats_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifecyclelab/intervene/internal/stats"
)

func TestBayesianAnalysis_Empty(t *testing.T) {
	out := stats.BayesianAnalysis(nil, rand.New(rand.NewSource(1)))
	assert.Empty(t, out)
}

func TestBayesianAnalysis_PosteriorParameters(t *testing.T) {
	variants := []stats.VariantResult{
		{VariantID: "control", InterventionShown: 100, Clicked: 20},
	}

	out := stats.BayesianAnalysis(variants, rand.New(rand.NewSource(1)))
	require.Len(t, out, 1)

	b := out[0]
	assert.Equal(t, 21.0, b.Alpha) // 1 + clicked
	assert.Equal(t, 81.0, b.Beta)  // 1 + shown - clicked
	assert.Equal(t, 100, b.SampleSize)
	assert.InDelta(t, 20.59, b.ExpectedConversion, 0.05) // 21/102
	assert.Less(t, b.CredibleLow, b.ExpectedConversion)
	assert.Greater(t, b.CredibleHigh, b.ExpectedConversion)
}

func TestBayesianAnalysis_ClearWinnerDominatesSimulation(t *testing.T) {
	variants := []stats.VariantResult{
		{VariantID: "control", InterventionShown: 500, Clicked: 50},
		{VariantID: "treatment", InterventionShown: 500, Clicked: 150},
	}

	out := stats.BayesianAnalysis(variants, rand.New(rand.NewSource(42)))
	require.Len(t, out, 2)

	assert.Greater(t, out[1].ProbabilityToBeBest, 99.0)
	assert.Less(t, out[0].ProbabilityToBeBest, 1.0)

	total := out[0].ProbabilityToBeBest + out[1].ProbabilityToBeBest
	assert.InDelta(t, 100.0, total, 1e-9)
}

func TestBayesianAnalysis_EvenSplitIsNearCoinFlip(t *testing.T) {
	variants := []stats.VariantResult{
		{VariantID: "control", InterventionShown: 1000, Clicked: 100},
		{VariantID: "treatment", InterventionShown: 1000, Clicked: 100},
	}

	out := stats.BayesianAnalysis(variants, rand.New(rand.NewSource(7)))
	require.Len(t, out, 2)

	assert.InDelta(t, 50.0, out[0].ProbabilityToBeBest, 5.0)
	assert.InDelta(t, 50.0, out[1].ProbabilityToBeBest, 5.0)
}
