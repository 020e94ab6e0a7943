package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifecyclelab/intervene/internal/stats"
)

func TestInteractionEffects_RequiresThreeVariants(t *testing.T) {
	variants := []stats.VariantResult{
		{VariantID: "a", ConversionRate: 10},
		{VariantID: "b", ConversionRate: 20},
	}
	assert.Nil(t, stats.InteractionEffects(variants))
}

func TestInteractionEffects_PairwiseCount(t *testing.T) {
	variants := []stats.VariantResult{
		{VariantID: "a", Name: "A", InterventionShown: 100, Clicked: 10, ConversionRate: 10},
		{VariantID: "b", Name: "B", InterventionShown: 100, Clicked: 20, ConversionRate: 20},
		{VariantID: "c", Name: "C", InterventionShown: 100, Clicked: 30, ConversionRate: 30},
	}

	result := stats.InteractionEffects(variants)
	require.NotNil(t, result)
	assert.Len(t, result.Interactions, 3) // C(3,2)
}

func TestInteractionEffects_BalancedPairsAreNeutral(t *testing.T) {
	// With equal exposure the pooled rate equals the average rate, so every
	// interaction effect is zero.
	variants := []stats.VariantResult{
		{VariantID: "a", Name: "A", InterventionShown: 100, Clicked: 10, ConversionRate: 10},
		{VariantID: "b", Name: "B", InterventionShown: 100, Clicked: 20, ConversionRate: 20},
		{VariantID: "c", Name: "C", InterventionShown: 100, Clicked: 30, ConversionRate: 30},
	}

	result := stats.InteractionEffects(variants)
	require.NotNil(t, result)
	assert.False(t, result.HasSignificantInteractions)
	for _, in := range result.Interactions {
		assert.Equal(t, "neutral", in.Synergy)
		assert.InDelta(t, 0.0, in.InteractionEffect, 1e-9)
	}
}

func TestInteractionEffects_UnbalancedExposureShowsInteraction(t *testing.T) {
	// The small high-performing variant drags the pooled rate far from the
	// simple average.
	variants := []stats.VariantResult{
		{VariantID: "a", Name: "A", InterventionShown: 1000, Clicked: 50, ConversionRate: 5},
		{VariantID: "b", Name: "B", InterventionShown: 10, Clicked: 9, ConversionRate: 90},
		{VariantID: "c", Name: "C", InterventionShown: 1000, Clicked: 50, ConversionRate: 5},
	}

	result := stats.InteractionEffects(variants)
	require.NotNil(t, result)
	assert.True(t, result.HasSignificantInteractions)

	// Pair A-B: expected (5+90)/2 = 47.5, actual 59/1010 = 5.84.
	ab := result.Interactions[0]
	assert.Equal(t, "A", ab.VariantA)
	assert.Equal(t, "B", ab.VariantB)
	assert.Equal(t, "negative", ab.Synergy)
	assert.Less(t, ab.InteractionEffect, -5.0)
}
